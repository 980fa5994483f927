package agent

import (
	"context"
	"sort"
	"sync"

	"github.com/wilhg/agentcore/pkg/errmodel"
)

// Registry keeps tools by descriptor name. The zero value is ready to use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry returns a registry holding tools, failing on the first invalid
// or duplicate name.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a Tool under its descriptor name. Names are never overwritten.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return errmodel.Validation("bad_tool", "tool is nil", nil)
	}
	d := t.Describe()
	if d.Name == "" {
		return errmodel.Validation("bad_tool", "tool name is empty", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tools == nil {
		r.tools = map[string]Tool{}
	}
	if _, exists := r.tools[d.Name]; exists {
		return errmodel.Validation("duplicate_tool", "tool already registered", map[string]any{"tool": d.Name})
	}
	r.tools[d.Name] = t
	r.order = append(r.order, d.Name)
	return nil
}

// Resolve returns a Tool by name.
func (r *Registry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// SortedNames returns tool names in lexical order.
func (r *Registry) SortedNames() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}

// Range iterates tools in registration order until fn returns false.
func (r *Registry) Range(fn func(name string, t Tool) bool) {
	r.mu.RLock()
	names := append([]string(nil), r.order...)
	tools := make([]Tool, len(names))
	for i, n := range names {
		tools[i] = r.tools[n]
	}
	r.mu.RUnlock()
	for i, n := range names {
		if !fn(n, tools[i]) {
			return
		}
	}
}

// SafeInvoke validates input against the tool's schema, invokes it, and validates output.
// Permission checks are passed in by the caller via allowed set; missing permissions cause a policy error.
func SafeInvoke(ctx context.Context, t Tool, args map[string]any, allowed map[string]bool, validate ValidateFunc) (map[string]any, error) {
	if t == nil {
		return nil, errmodel.Validation("bad_tool", "tool is nil", nil)
	}
	if validate == nil {
		validate = JSONSchemaValidator
	}
	if args == nil {
		args = map[string]any{}
	}
	d := t.Describe()
	for _, p := range d.Permissions {
		if !allowed[p.Name] {
			return nil, errmodel.Policy("forbidden", "permission denied for tool", map[string]any{"permission": p.Name, "tool": d.Name})
		}
	}
	if err := validate(d.InputSchema, args); err != nil {
		return nil, errmodel.Validation("invalid_input", "tool input validation failed", map[string]any{"tool": d.Name, "error": err.Error()})
	}
	out, err := t.Invoke(ctx, args)
	if err != nil {
		return nil, err
	}
	if err := validate(d.OutputSchema, out); err != nil {
		return nil, errmodel.Validation("invalid_output", "tool output validation failed", map[string]any{"tool": d.Name, "error": err.Error()})
	}
	return out, nil
}
