// Package history keeps a diagnostic log of what the relay observed.
//
// A Recorder is registered with the coordinator as a background observer.
// It receives every connection change and sensor event regardless of which
// foreground observer is attached, mirrors it to an optional Exporter
// (InfluxDB) and writes it to a Repository. SQLiteRepository stores entries
// in the event_history table created by the embedded migrations.
//
// History is informational. It does not buffer or replay messages and the
// coordinator never reads it back.
package history
