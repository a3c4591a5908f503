// Package registry maps tool names to their invocation contract: a handler,
// a parameter schema, and the pipeline stage discipline the coordinator
// enforces before and after running the handler. Registration happens at
// startup; descriptors are immutable once stored.
package registry

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"

	"crucible/internal/pipeline"
)

// ParamType constrains the JSON-ish value space of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
)

// ParamSpec describes one tool parameter. Default applies only to optional
// parameters and is substituted before the handler runs.
type ParamSpec struct {
	Name        string
	Type        ParamType
	Required    bool
	Default     any
	Description string
}

// Call is the execution context the coordinator hands to a handler: the
// validated parameters, the acquired worker (nil for worker-less tools), and
// a snapshot of the session's slots at precondition-check time.
type Call struct {
	SessionKey string
	Params     map[string]any
	Worker     pipeline.Worker
	Stage      pipeline.Stage
	Slots      map[string]any
}

// Outcome is what a handler reports back. Slots are written to the session
// atomically with the stage advance; both are nil/empty for read-only tools.
type Outcome struct {
	Payload map[string]any
	Slots   map[string]any
	Advance pipeline.Stage // "" = no stage transition
}

// Handler is the fixed function-signature contract every tool conforms to.
type Handler func(ctx context.Context, call *Call) (*Outcome, error)

// Descriptor is one registered tool. Requires is the minimum stage the
// session must have reached ("" = callable at any stage); Worker is the kind
// the coordinator acquires before running the handler ("" = none).
type Descriptor struct {
	Name        string
	Description string
	Worker      pipeline.Kind
	Requires    pipeline.Stage
	Params      []ParamSpec
	Handler     Handler
}

// DuplicateToolError is returned when a name is registered twice. Identical
// schemas do not soften this: a duplicate at load time is always a wiring
// mistake.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q already registered", e.Name)
}

// UnknownToolError is returned by Lookup for names never registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// Registry holds tool descriptors. Mutation is serialized behind a single
// writer lock so lookups stay safe during a hot reload.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Descriptor
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{tools: make(map[string]*Descriptor)}
}

// Register stores the descriptor. The name must be non-empty and unused, the
// handler non-nil, and every schema entry well-formed.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil || strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("register: descriptor needs a name")
	}
	if d.Handler == nil {
		return fmt.Errorf("register %q: handler is nil", d.Name)
	}
	if d.Worker != "" && !d.Worker.Valid() {
		return fmt.Errorf("register %q: unknown worker kind %q", d.Name, d.Worker)
	}
	if d.Requires != "" && !d.Requires.Valid() {
		return fmt.Errorf("register %q: unknown required stage %q", d.Name, d.Requires)
	}
	seen := make(map[string]bool, len(d.Params))
	for _, p := range d.Params {
		if p.Name == "" {
			return fmt.Errorf("register %q: parameter with empty name", d.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("register %q: duplicate parameter %q", d.Name, p.Name)
		}
		seen[p.Name] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[d.Name]; exists {
		return &DuplicateToolError{Name: d.Name}
	}
	r.tools[d.Name] = d.clone()
	return nil
}

// clone copies a descriptor so callers cannot reach the stored Params slice.
// Register copies on the way in; reads copy on the way out.
func (d *Descriptor) clone() *Descriptor {
	cp := *d
	cp.Params = slices.Clone(d.Params)
	return &cp
}

// Lookup returns a copy of the descriptor for name.
func (r *Registry) Lookup(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	return d.clone(), nil
}

// All yields a copy of every registered descriptor. The sequence is
// restartable and snapshots the registry at first iteration; order is
// unspecified.
func (r *Registry) All() iter.Seq[*Descriptor] {
	return func(yield func(*Descriptor) bool) {
		r.mu.RLock()
		snapshot := make([]*Descriptor, 0, len(r.tools))
		for _, d := range r.tools {
			snapshot = append(snapshot, d.clone())
		}
		r.mu.RUnlock()
		for _, d := range snapshot {
			if !yield(d) {
				return
			}
		}
	}
}

// List returns all descriptors sorted by name, for help/introspection
// surfaces.
func (r *Registry) List() []*Descriptor {
	var out []*Descriptor
	for d := range r.All() {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b *Descriptor) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
