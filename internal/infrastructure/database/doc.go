// Package database opens the relay's SQLite store and applies its schema
// migrations.
//
// The store only holds diagnostic event history. It is opened with a single
// connection (SQLite has one writer), WAL journaling when configured and a
// busy timeout so short lock contention does not surface as errors.
//
// Migrations are read from any fs.FS, normally the embedded files of the
// migrations package:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Each migration is a YYYYMMDD_HHMMSS_name.up.sql file with an optional
// .down.sql counterpart. Applied versions are tracked in schema_migrations.
package database
