// Package builtin ships the reference slices the host process can run
// without any external component: an echo slice and an in-memory key/value
// store.
package builtin

import (
	"fmt"
	"sort"

	"nanoclaw/internal/slice"
)

// Version is reported by every built-in slice.
const Version = "1.0.0"

var constructors = map[string]func(id string) slice.Component{
	"echo": func(id string) slice.Component { return NewEcho(id) },
	"kv":   func(id string) slice.Component { return NewKV(id) },
}

// Kinds lists the available built-in kinds in sorted order.
func Kinds() []string {
	kinds := make([]string, 0, len(constructors))
	for k := range constructors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Factory returns a factory building a slice of the given kind under id.
func Factory(kind, id string) (slice.Factory, error) {
	ctor, ok := constructors[kind]
	if !ok {
		return nil, fmt.Errorf("unknown component kind %q (available: %v)", kind, Kinds())
	}
	return func() (slice.Component, error) {
		return ctor(id), nil
	}, nil
}
