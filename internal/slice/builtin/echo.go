package builtin

import (
	"context"
	"strings"

	"nanoclaw/internal/slice"
)

// Echo returns its payload unchanged, or upper-cased for "*.upper" operations.
type Echo struct {
	*slice.BaseComponent
}

// NewEcho creates an echo slice with the given id.
func NewEcho(id string) *Echo {
	return &Echo{
		BaseComponent: slice.NewBaseComponent(id, "Echo", Version, []string{"echo", "echo.upper"}),
	}
}

func (e *Echo) Execute(ctx context.Context, req slice.Request) (slice.Result, error) {
	if err := ctx.Err(); err != nil {
		return slice.Result{}, err
	}

	out := make(map[string]interface{}, len(req.Payload)+1)
	upper := strings.HasSuffix(req.Operation, ".upper")
	for k, v := range req.Payload {
		if s, ok := v.(string); ok && upper {
			v = strings.ToUpper(s)
		}
		out[k] = v
	}
	out["handledBy"] = e.ID()

	return slice.Result{RequestID: req.RequestID, Success: true, Payload: out}, nil
}
