// Package events carries orchestrator events, alerts and execution records
// to an external observability sink.
//
// Architecture:
//
//   - Sink: the three-method boundary (PublishEvent, PublishAlert,
//     TrackExecution) implemented by dashboards or log aggregators
//   - Emitter: renders event descriptions from templates and forwards them
//   - MessageTemplateEngine: text/template messages with sprig functions
//   - LogSink, FileSink, MultiSink, Recorder, NopSink: bundled sinks
//
// FileSink writes events.jsonl, alerts.jsonl and metrics.jsonl so a separate
// dashboard process can tail them.
//
// Usage:
//
//	emitter := events.NewEmitter(events.MultiSink{events.LogSink{}, fileSink})
//	emitter.Emit(events.ReasonComponentRegistered, events.EventData{ComponentID: "slice_memory"})
package events
