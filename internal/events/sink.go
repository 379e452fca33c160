package events

import (
	"log/slog"
	"time"

	"nanoclaw/pkg/logging"
)

// Sink is the observability boundary. Implementations must be safe for
// concurrent use and must not block for long: they are called inline from
// lifecycle and dispatch paths.
type Sink interface {
	PublishEvent(componentID, eventType, description string)
	PublishAlert(componentID, alertType, title, message string)
	TrackExecution(componentID string, latency time.Duration, success bool)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) PublishEvent(string, string, string)         {}
func (NopSink) PublishAlert(string, string, string, string) {}
func (NopSink) TrackExecution(string, time.Duration, bool)  {}

// LogSink writes every call as a structured log record.
type LogSink struct{}

func (LogSink) PublishEvent(componentID, eventType, description string) {
	logging.Event(logging.LevelInfo, "Events", description,
		slog.String("component", componentID),
		slog.String("event_type", eventType))
}

func (LogSink) PublishAlert(componentID, alertType, title, message string) {
	level := logging.LevelWarn
	if alertType == AlertError {
		level = logging.LevelError
	}
	logging.Event(level, "Events", title,
		slog.String("component", componentID),
		slog.String("alert_type", alertType),
		slog.String("detail", message))
}

func (LogSink) TrackExecution(componentID string, latency time.Duration, success bool) {
	logging.Event(logging.LevelDebug, "Events", "execution tracked",
		slog.String("component", componentID),
		slog.Float64("latency_ms", float64(latency)/float64(time.Millisecond)),
		slog.Bool("success", success))
}

// MultiSink fans every call out to each sink in order.
type MultiSink []Sink

func (m MultiSink) PublishEvent(componentID, eventType, description string) {
	for _, s := range m {
		s.PublishEvent(componentID, eventType, description)
	}
}

func (m MultiSink) PublishAlert(componentID, alertType, title, message string) {
	for _, s := range m {
		s.PublishAlert(componentID, alertType, title, message)
	}
}

func (m MultiSink) TrackExecution(componentID string, latency time.Duration, success bool) {
	for _, s := range m {
		s.TrackExecution(componentID, latency, success)
	}
}
