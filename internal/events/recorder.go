package events

import (
	"sync"
	"time"
)

// Recorded is one call captured by Recorder.
type Recorded struct {
	Kind        string // "event", "alert" or "execution"
	ComponentID string
	Type        string // event type or alert type
	Title       string
	Message     string
	Latency     time.Duration
	Success     bool
}

// Recorder is an in-memory Sink that keeps every call in order. It is used
// by tests and by the check command to preview what a run would emit.
type Recorder struct {
	mu    sync.Mutex
	calls []Recorded
}

func (r *Recorder) PublishEvent(componentID, eventType, description string) {
	r.add(Recorded{Kind: "event", ComponentID: componentID, Type: eventType, Message: description})
}

func (r *Recorder) PublishAlert(componentID, alertType, title, message string) {
	r.add(Recorded{Kind: "alert", ComponentID: componentID, Type: alertType, Title: title, Message: message})
}

func (r *Recorder) TrackExecution(componentID string, latency time.Duration, success bool) {
	r.add(Recorded{Kind: "execution", ComponentID: componentID, Latency: latency, Success: success})
}

func (r *Recorder) add(c Recorded) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

// All returns a copy of every recorded call.
func (r *Recorder) All() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.calls))
	copy(out, r.calls)
	return out
}

// Events returns recorded events, optionally filtered by event type.
func (r *Recorder) Events(eventType string) []Recorded {
	return r.filter("event", eventType)
}

// Alerts returns recorded alerts for a component, or all alerts when
// componentID is empty.
func (r *Recorder) Alerts(componentID string) []Recorded {
	var out []Recorded
	for _, c := range r.filter("alert", "") {
		if componentID == "" || c.ComponentID == componentID {
			out = append(out, c)
		}
	}
	return out
}

// Executions returns recorded TrackExecution calls.
func (r *Recorder) Executions() []Recorded {
	return r.filter("execution", "")
}

func (r *Recorder) filter(kind, typ string) []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Recorded
	for _, c := range r.calls {
		if c.Kind == kind && (typ == "" || c.Type == typ) {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears all recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
