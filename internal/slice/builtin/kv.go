package builtin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"nanoclaw/internal/slice"
)

const defaultMaxEntries = 1024

// KV is an in-memory key/value slice. It serves "<prefix>.store",
// "<prefix>.get", "<prefix>.delete" and "<prefix>.list" for any prefix, so it
// can sit behind the memory route.
type KV struct {
	*slice.BaseComponent

	mu         sync.RWMutex
	entries    map[string]interface{}
	maxEntries int
}

// NewKV creates a key/value slice with the given id.
func NewKV(id string) *KV {
	return &KV{
		BaseComponent: slice.NewBaseComponent(id, "Key/Value Memory", Version,
			[]string{"memory.store", "memory.get", "memory.delete", "memory.list"}),
		entries:    make(map[string]interface{}),
		maxEntries: defaultMaxEntries,
	}
}

// Shutdown drops all entries.
func (kv *KV) Shutdown(ctx context.Context) error {
	kv.mu.Lock()
	kv.entries = make(map[string]interface{})
	kv.mu.Unlock()
	return kv.BaseComponent.Shutdown(ctx)
}

func (kv *KV) HealthCheck(ctx context.Context) slice.HealthReport {
	report := kv.BaseComponent.HealthCheck(ctx)
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	report.StoreConnected = kv.entries != nil
	report.Details = map[string]interface{}{
		"entries":    len(kv.entries),
		"maxEntries": kv.maxEntries,
	}
	return report
}

func (kv *KV) Execute(ctx context.Context, req slice.Request) (slice.Result, error) {
	if err := ctx.Err(); err != nil {
		return slice.Result{}, err
	}

	verb := req.Operation
	if i := strings.LastIndex(verb, "."); i >= 0 {
		verb = verb[i+1:]
	}

	fail := func(format string, args ...interface{}) (slice.Result, error) {
		return slice.Result{RequestID: req.RequestID, ErrorMessage: fmt.Sprintf(format, args...)}, nil
	}
	ok := func(payload map[string]interface{}) (slice.Result, error) {
		return slice.Result{RequestID: req.RequestID, Success: true, Payload: payload}, nil
	}

	key, _ := req.Payload["key"].(string)

	switch verb {
	case "store":
		if key == "" {
			return fail("missing key")
		}
		kv.mu.Lock()
		defer kv.mu.Unlock()
		if _, exists := kv.entries[key]; !exists && len(kv.entries) >= kv.maxEntries {
			return fail("store full (%d entries)", kv.maxEntries)
		}
		kv.entries[key] = req.Payload["value"]
		return ok(map[string]interface{}{"key": key, "stored": true})

	case "get":
		if key == "" {
			return fail("missing key")
		}
		kv.mu.RLock()
		defer kv.mu.RUnlock()
		v, found := kv.entries[key]
		if !found {
			return fail("key %q not found", key)
		}
		return ok(map[string]interface{}{"key": key, "value": v})

	case "delete":
		if key == "" {
			return fail("missing key")
		}
		kv.mu.Lock()
		defer kv.mu.Unlock()
		_, found := kv.entries[key]
		delete(kv.entries, key)
		return ok(map[string]interface{}{"key": key, "deleted": found})

	case "list":
		kv.mu.RLock()
		keys := make([]string, 0, len(kv.entries))
		for k := range kv.entries {
			keys = append(keys, k)
		}
		kv.mu.RUnlock()
		sort.Strings(keys)
		return ok(map[string]interface{}{"keys": keys})
	}

	return fail("unsupported operation %q", req.Operation)
}

// SelfImprove accepts {"maxEntries": n} and resizes the store limit.
func (kv *KV) SelfImprove(ctx context.Context, feedback slice.Feedback) (slice.Improvements, error) {
	var items []map[string]interface{}

	if raw, found := feedback["maxEntries"]; found {
		n, err := toInt(raw)
		if err != nil || n <= 0 {
			return slice.Improvements{}, fmt.Errorf("invalid maxEntries %v", raw)
		}
		kv.mu.Lock()
		old := kv.maxEntries
		kv.maxEntries = n
		kv.mu.Unlock()
		items = append(items, map[string]interface{}{"setting": "maxEntries", "from": old, "to": n})
	}

	return slice.Improvements{Items: items}, nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}
