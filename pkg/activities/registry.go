// Package activities implements the Activity Catalog: the deterministic-
// free, side-effecting functions an orchestration schedules by name. Each
// one receives its input already decoded from the ActivityScheduled event
// and returns a value to serialize back onto ActivityCompleted, or an
// error to serialize onto ActivityFailed.
package activities

import (
	"context"
	"encoding/json"
	"fmt"
)

// Func is the shape every registered activity implements. ctx carries
// cancellation for the worker's own shutdown, not workflow semantics —
// activities have no notion of replay.
type Func func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// Registry maps activity names to their implementation.
type Registry struct {
	activities map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{activities: map[string]Func{}}
}

// Register adds fn under name. Re-registering the same name panics: this
// only happens at process startup and indicates a programming error.
func (r *Registry) Register(name string, fn Func) {
	if _, exists := r.activities[name]; exists {
		panic(fmt.Sprintf("fatal: activity %q already registered", name))
	}
	r.activities[name] = fn
}

// Lookup resolves an activity by name.
func (r *Registry) Lookup(name string) (Func, bool) {
	fn, ok := r.activities[name]
	return fn, ok
}

// RegisterTyped adapts a strongly-typed activity function to Func,
// handling input decode and output encode so individual activities never
// touch json.RawMessage directly.
func RegisterTyped[In any, Out any](r *Registry, name string, fn func(ctx context.Context, input In) (Out, error)) {
	r.Register(name, func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var in In
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, fmt.Errorf("fatal: decode input for activity %q: %w", name, err)
			}
		}
		out, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("fatal: encode output for activity %q: %w", name, err)
		}
		return data, nil
	})
}
