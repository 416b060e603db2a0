package migrations

import (
	"context"
	"testing"

	"github.com/damaru/doorbell/internal/infrastructure/config"
	"github.com/damaru/doorbell/internal/infrastructure/database"
)

func TestEmbeddedMigrationsApply(t *testing.T) {
	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx, FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if _, err := db.ExecContext(ctx,
		"INSERT INTO event_history (kind, value, occurred_at) VALUES ('sensor', 'ping', '2026-03-01T12:00:00.000Z')",
	); err != nil {
		t.Fatalf("insert into event_history error = %v", err)
	}
	if _, err := db.ExecContext(ctx,
		"INSERT INTO event_history (kind, value, occurred_at) VALUES ('bogus', 'x', '2026-03-01T12:00:00.000Z')",
	); err == nil {
		t.Error("insert with unknown kind succeeded, want CHECK failure")
	}

	for i := 0; i < 2; i++ {
		if err := db.MigrateDown(ctx, FS); err != nil {
			t.Fatalf("MigrateDown() error = %v", err)
		}
	}
}
