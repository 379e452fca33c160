// Package logging provides the subsystem-oriented logger used across nanoclaw.
//
// It is a thin layer over log/slog. Every entry carries a subsystem name so
// that lifecycle, routing and allocation records can be filtered without
// parsing the message text.
//
// # Usage
//
//	logging.Init(logging.LevelInfo, logging.FormatJSON, os.Stderr)
//
//	logging.Info("Registry", "Registered component %s", id)
//	logging.Warn("Router", "No route for operation %q, using default %s", op, def)
//	logging.Error("Lifecycle", err, "Start hook failed for %s", id)
//
// Records that downstream tooling parses use Event with explicit attributes:
//
//	logging.Event(logging.LevelInfo, "Orchestrator", "request completed",
//	    slog.String("request_id", id), slog.Bool("success", ok))
//
// Before Init is called, Debug and Info are dropped and Warn/Error are
// written to stderr.
package logging
