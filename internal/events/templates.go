package events

import (
	"bytes"
	"fmt"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// MessageTemplateEngine renders human-readable event descriptions.
// Templates are text/template strings with the sprig function map.
type MessageTemplateEngine struct {
	mu        sync.RWMutex
	templates map[EventReason]*template.Template
}

var defaultTemplates = map[EventReason]string{
	ReasonComponentRegistered:   `Component {{.ComponentID}} registered`,
	ReasonComponentUnregistered: `Component {{.ComponentID}} unregistered`,
	ReasonStateChanged:          `Component {{.ComponentID}} {{.From}} -> {{.To}}{{if .Duration}} in {{.Duration}}{{end}}`,
	ReasonHookFailed:            `Component {{.ComponentID}} {{.Operation}} hook failed{{if .Error}}: {{.Error | trunc 200}}{{end}}`,
	ReasonRouteFallback:         `No route for operation {{.Operation | quote}}, falling back to {{.ComponentID}}`,
	ReasonRequestCompleted:      `Request {{.RequestID}} ({{.Operation}}) completed on {{join ", " .Targets}}{{if .Duration}} in {{.Duration}}{{end}}`,
	ReasonRequestFailed:         `Request {{.RequestID}} ({{.Operation}}) failed on {{.Failed}}/{{len .Targets}} components{{if .Error}}: {{.Error | trunc 200}}{{end}}`,
	ReasonRoutesUpdated:         `Route table replaced{{if .Targets}} ({{len .Targets}} routes){{end}}`,
	ReasonQuotaUpdated:          `Quota updated for component {{.ComponentID}}`,
	ReasonNearCapacity:          `Component {{.ComponentID}} is near capacity{{if .Error}}: {{.Error}}{{end}}`,
	ReasonSelfImproved:          `Component {{.ComponentID}} applied self-improvement{{if .Error}} ({{.Error}}){{end}}`,
	ReasonOrchestratorStarted:   `Orchestrator started with {{len .Targets}} components`,
	ReasonOrchestratorShutdown:  `Orchestrator shut down{{if .Failed}} ({{.Failed}} components reported errors){{end}}`,
}

// NewMessageTemplateEngine creates a new message template engine with default templates.
func NewMessageTemplateEngine() *MessageTemplateEngine {
	engine := &MessageTemplateEngine{
		templates: make(map[EventReason]*template.Template, len(defaultTemplates)),
	}
	for reason, text := range defaultTemplates {
		// Default templates are static and known to parse.
		_ = engine.SetTemplate(reason, text)
	}
	return engine
}

// Render generates a message for the given event reason and data.
func (e *MessageTemplateEngine) Render(reason EventReason, data EventData) string {
	e.mu.RLock()
	tmpl, exists := e.templates[reason]
	e.mu.RUnlock()

	if !exists {
		return fmt.Sprintf("Event: %s for %s", string(reason), data.ComponentID)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("Event: %s for %s (render error: %v)", string(reason), data.ComponentID, err)
	}
	return buf.String()
}

// SetTemplate replaces the message template for a specific event reason.
func (e *MessageTemplateEngine) SetTemplate(reason EventReason, text string) error {
	tmpl, err := template.New(string(reason)).Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return fmt.Errorf("parsing template for %s: %w", reason, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[reason] = tmpl
	return nil
}

// HasTemplate reports whether a template exists for the reason.
func (e *MessageTemplateEngine) HasTemplate(reason EventReason) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.templates[reason]
	return ok
}
