package watch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"calwatch/internal/calendar"
)

// Callback handles one matched event instance.
type Callback interface {
	Invoke(ctx context.Context, ev calendar.Event) error
}

// CallbackFunc adapts a plain function to Callback.
type CallbackFunc func(ctx context.Context, ev calendar.Event) error

func (f CallbackFunc) Invoke(ctx context.Context, ev calendar.Event) error {
	return f(ctx, ev)
}

// Registry maps callback names to implementations. Configurations
// reference callbacks by name only; resolution happens at dispatch
// time, so a name may disappear between ticks (e.g. on config reload).
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Callback
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]Callback{}}
}

// Register binds a name to a callback. Re-registering a name replaces
// the previous binding.
func (r *Registry) Register(name string, cb Callback) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("callback name required")
	}
	if cb == nil {
		return fmt.Errorf("callback %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = cb
	return nil
}

// Unregister removes a binding. Unknown names are a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byName, name)
}

// Resolve returns the callback bound to name.
func (r *Registry) Resolve(name string) (Callback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.byName[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCallback, name)
	}
	return cb, nil
}

// Names returns all registered callback names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
