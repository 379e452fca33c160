package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"nanoclaw/pkg/logging"
)

// Journal file names written by FileSink.
const (
	EventsFile  = "events.jsonl"
	AlertsFile  = "alerts.jsonl"
	MetricsFile = "metrics.jsonl"
)

// EventRecord is one line of events.jsonl.
type EventRecord struct {
	EventID     string    `json:"eventId"`
	ComponentID string    `json:"componentId"`
	EventType   string    `json:"eventType"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// AlertRecord is one line of alerts.jsonl.
type AlertRecord struct {
	AlertID     string    `json:"alertId"`
	ComponentID string    `json:"componentId"`
	AlertType   string    `json:"alertType"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// MetricRecord is one line of metrics.jsonl.
type MetricRecord struct {
	ComponentID string                 `json:"componentId"`
	MetricType  string                 `json:"metricType"`
	Name        string                 `json:"name"`
	Value       float64                `json:"value"`
	Unit        string                 `json:"unit"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// FileSink appends events, alerts and execution metrics as JSON lines to
// three files in a directory, for consumption by an external dashboard.
type FileSink struct {
	mu      sync.Mutex
	dir     string
	events  *os.File
	alerts  *os.File
	metrics *os.File
	now     func() time.Time
}

// NewFileSink creates dir if needed and opens the journal files for append.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating events directory: %w", err)
	}

	s := &FileSink{dir: dir, now: time.Now}

	var err error
	if s.events, err = openAppend(filepath.Join(dir, EventsFile)); err != nil {
		return nil, err
	}
	if s.alerts, err = openAppend(filepath.Join(dir, AlertsFile)); err != nil {
		s.events.Close()
		return nil, err
	}
	if s.metrics, err = openAppend(filepath.Join(dir, MetricsFile)); err != nil {
		s.events.Close()
		s.alerts.Close()
		return nil, err
	}
	return s, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}

// Dir returns the journal directory.
func (s *FileSink) Dir() string {
	return s.dir
}

func (s *FileSink) PublishEvent(componentID, eventType, description string) {
	ts := s.now().UTC()
	s.write(&s.events, EventRecord{
		EventID:     fmt.Sprintf("%s_%s_%d", componentID, eventType, ts.UnixNano()),
		ComponentID: componentID,
		EventType:   eventType,
		Description: description,
		Timestamp:   ts,
	})
}

func (s *FileSink) PublishAlert(componentID, alertType, title, message string) {
	ts := s.now().UTC()
	s.write(&s.alerts, AlertRecord{
		AlertID:     fmt.Sprintf("%s_%s_%d", componentID, alertType, ts.UnixNano()),
		ComponentID: componentID,
		AlertType:   alertType,
		Title:       title,
		Message:     message,
		Timestamp:   ts,
	})
}

func (s *FileSink) TrackExecution(componentID string, latency time.Duration, success bool) {
	s.write(&s.metrics, MetricRecord{
		ComponentID: componentID,
		MetricType:  "histogram",
		Name:        "execution_latency",
		Value:       float64(latency) / float64(time.Millisecond),
		Unit:        "ms",
		Timestamp:   s.now().UTC(),
		Metadata:    map[string]interface{}{"success": success},
	})
}

func (s *FileSink) write(target **os.File, record interface{}) {
	line, err := json.Marshal(record)
	if err != nil {
		logging.Error("Events", err, "Failed to encode journal record")
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	f := *target
	if f == nil {
		return
	}
	if _, err := f.Write(line); err != nil {
		logging.Error("Events", err, "Failed to append to %s", f.Name())
	}
}

// Close closes the journal files. Later calls are no-ops.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, f := range []**os.File{&s.events, &s.alerts, &s.metrics} {
		if *f == nil {
			continue
		}
		if err := (*f).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		*f = nil
	}
	return firstErr
}
