// Package app bootstraps the nanoclaw host process.
//
// NewApplication loads configuration, initializes logging and wires the
// orchestrator with its optional SQLite state store and JSONL event journal.
// Run starts the auto-start components and serves until cancelled: a
// Prometheus endpoint and /healthz on metrics.listen, route table hot reload
// through the configuration watcher, periodic component heartbeats and
// systemd readiness notification.
package app
