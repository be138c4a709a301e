package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kompanion-dev/kompanion/pkg/chat"
	"github.com/kompanion-dev/kompanion/pkg/observability"
)

// Registry maps tool names to their definitions and dispatch targets.
// It is populated at startup and read-only afterwards, so it is safe
// to share across concurrent invocations without locking.
type Registry struct {
	tools   map[string]Tool
	aliases map[string]string
	order   []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		aliases: make(map[string]string),
	}
}

// Register adds a tool. Duplicate names are an error: ambiguous
// definitions must be caught at startup, not at call time.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tools: tool name must not be empty")
	}
	if t.Dispatch == nil {
		return fmt.Errorf("tools: tool %q has no dispatcher", t.Name)
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tools: tool %q already registered", t.Name)
	}
	if _, exists := r.aliases[t.Name]; exists {
		return fmt.Errorf("tools: name %q already taken by an alias", t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Alias routes an alternate name to an existing tool. Older models
// keep emitting pre-rename tool names; aliases let those calls land
// without advertising duplicate definitions.
func (r *Registry) Alias(alias, canonical string) error {
	if alias == "" {
		return fmt.Errorf("tools: alias must not be empty")
	}
	if _, exists := r.tools[alias]; exists {
		return fmt.Errorf("tools: alias %q collides with a registered tool", alias)
	}
	if _, exists := r.aliases[alias]; exists {
		return fmt.Errorf("tools: alias %q already registered", alias)
	}
	if _, ok := r.tools[canonical]; !ok {
		return fmt.Errorf("tools: alias %q targets unknown tool %q", alias, canonical)
	}
	r.aliases[alias] = canonical
	return nil
}

// resolve maps an alias to its canonical tool name.
func (r *Registry) resolve(name string) string {
	if canonical, ok := r.aliases[name]; ok {
		return canonical
	}
	return name
}

// Lookup returns the tool with the given name or alias.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[r.resolve(name)]
	return t, ok
}

// Has reports whether a tool with the given name or alias is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[r.resolve(name)]
	return ok
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Specs returns the model-facing tool definitions in registration order.
func (r *Registry) Specs() []chat.ToolSpec {
	specs := make([]chat.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Spec())
	}
	return specs
}

// Dispatch invokes the named tool. It is total: unknown names,
// dispatcher errors, and dispatcher panics all return an error Result.
// The only side effects are those of the underlying provider call.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (result Result) {
	name = r.resolve(name)
	t, ok := r.tools[name]
	if !ok {
		observability.ToolExecutionsTotal.WithLabelValues(name, "error").Inc()
		return ErrorResult(fmt.Sprintf("Tool %q not found", name))
	}

	if args == nil {
		args = map[string]any{}
	}

	start := time.Now()
	defer func() {
		observability.ToolDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

		if rec := recover(); rec != nil {
			slog.Error("tool dispatcher panicked", "tool", name, "panic", rec)
			result = ErrorResult(fmt.Sprintf("Tool execution failed: %v", rec))
			observability.ToolExecutionsTotal.WithLabelValues(name, "panic").Inc()
			return
		}

		status := "success"
		if result.IsError() {
			status = "error"
		}
		observability.ToolExecutionsTotal.WithLabelValues(name, status).Inc()
	}()

	value, err := t.Dispatch(ctx, args)
	if err != nil {
		slog.Warn("tool execution error", "tool", name, "error", err.Error())
		return ErrorResult(fmt.Sprintf("Tool execution failed: %s", err.Error()))
	}
	return Result{Value: value}
}
