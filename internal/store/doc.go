// Package store persists orchestrator state in SQLite.
//
// Two tables are kept: slice_states holds the latest lifecycle status,
// health, usage and dispatch counters per component, refreshed on every
// transition; global_state is a JSON key/value table used for
// process-wide snapshots such as the execution metrics saved on shutdown.
//
// The database is opened through the pure-Go modernc.org/sqlite driver in
// WAL mode, and schema changes are applied as numbered migrations.
package store
