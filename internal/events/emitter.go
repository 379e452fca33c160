package events

import (
	"time"

	"nanoclaw/pkg/logging"
)

// Emitter renders event messages from templates and forwards them to a Sink.
// A nil *Emitter is valid and emits nothing.
type Emitter struct {
	sink      Sink
	templates *MessageTemplateEngine
}

// NewEmitter creates an Emitter writing to sink. A nil sink discards events.
func NewEmitter(sink Sink) *Emitter {
	if sink == nil {
		sink = NopSink{}
	}
	return &Emitter{
		sink:      sink,
		templates: NewMessageTemplateEngine(),
	}
}

// Emit publishes an event for data.ComponentID. Warning-type reasons are also
// logged at warn level.
func (e *Emitter) Emit(reason EventReason, data EventData) {
	if e == nil {
		return
	}

	message := e.templates.Render(reason, data)
	eventType := getEventType(reason)

	logging.Debug("Events", "Emitting event: reason=%s, component=%s, type=%s, message=%s",
		string(reason), data.ComponentID, eventType, message)
	if eventType == EventTypeWarning {
		logging.Warn("Events", "%s", message)
	}

	e.sink.PublishEvent(data.ComponentID, string(reason), message)
}

// Alert publishes an alert with a rendered message and the given title.
func (e *Emitter) Alert(alertType string, reason EventReason, title string, data EventData) {
	if e == nil {
		return
	}
	e.sink.PublishAlert(data.ComponentID, alertType, title, e.templates.Render(reason, data))
}

// TrackExecution forwards a per-dispatch execution record.
func (e *Emitter) TrackExecution(componentID string, latency time.Duration, success bool) {
	if e == nil {
		return
	}
	e.sink.TrackExecution(componentID, latency, success)
}

// Templates exposes the engine so callers can override messages.
func (e *Emitter) Templates() *MessageTemplateEngine {
	return e.templates
}
