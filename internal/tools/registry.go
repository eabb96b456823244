package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// ParamType is the JSON type of a tool parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
)

// ParamSpec describes one tool parameter.
type ParamSpec struct {
	Name        string
	Type        ParamType
	Required    bool
	Description string
}

// Arguments are the decoded arguments of one invocation.
type Arguments map[string]any

// String returns the string argument name, or "".
func (a Arguments) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Number returns the numeric argument name, or 0.
func (a Arguments) Number(name string) float64 {
	switch v := a[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Bool returns the boolean argument name, or false.
func (a Arguments) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

// Result is the text a tool hands back to the reasoning engine.
type Result struct {
	Text    string
	IsError bool
}

// TextResult builds a successful Result.
func TextResult(text string) Result {
	return Result{Text: text}
}

// ErrorResult builds a failed Result.
func ErrorResult(text string) Result {
	return Result{Text: text, IsError: true}
}

// Handler runs a tool with validated arguments. A returned error means the
// tool could not run at all (for example because no credential could be
// obtained); a failed operation is reported through Result.IsError.
type Handler func(ctx context.Context, args Arguments) (Result, error)

// ToolSpec describes a tool. Specs are immutable once registered.
type ToolSpec struct {
	Name        string
	Description string
	Params      []ParamSpec
	Scopes      []string
	Handler     Handler
}

// Registry maps tool names to specs, preserving registration order.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]ToolSpec
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]ToolSpec)}
}

// Register adds spec. Names must be unique and non-empty and every spec
// needs a handler.
func (r *Registry) Register(spec ToolSpec) error {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return errors.New("tool name is required")
	}
	if spec.Handler == nil {
		return fmt.Errorf("tool %s: handler is required", name)
	}
	seen := make(map[string]bool, len(spec.Params))
	for _, p := range spec.Params {
		switch p.Type {
		case ParamString, ParamNumber, ParamBoolean:
		default:
			return fmt.Errorf("tool %s: parameter %q has unsupported type %q", name, p.Name, p.Type)
		}
		if seen[p.Name] {
			return fmt.Errorf("tool %s: duplicate parameter %q", name, p.Name)
		}
		seen[p.Name] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[name]; exists {
		return fmt.Errorf("tool %s is already registered", name)
	}
	spec.Name = name
	spec.Params = append([]ParamSpec(nil), spec.Params...)
	spec.Scopes = append([]string(nil), spec.Scopes...)
	r.specs[name] = spec
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the spec registered under name.
func (r *Registry) Lookup(name string) (ToolSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Specs returns the specs in registration order.
func (r *Registry) Specs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.specs[name])
	}
	return specs
}

// Catalog returns the MCP schema of every tool in registration order.
func (r *Registry) Catalog() []mcp.Tool {
	specs := r.Specs()
	catalog := make([]mcp.Tool, 0, len(specs))
	for _, spec := range specs {
		catalog = append(catalog, spec.Tool())
	}
	return catalog
}

// Tool converts the spec into its MCP schema.
func (s ToolSpec) Tool() mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(s.Description)}
	for _, p := range s.Params {
		propOpts := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			propOpts = append(propOpts, mcp.Required())
		}
		switch p.Type {
		case ParamNumber:
			opts = append(opts, mcp.WithNumber(p.Name, propOpts...))
		case ParamBoolean:
			opts = append(opts, mcp.WithBoolean(p.Name, propOpts...))
		default:
			opts = append(opts, mcp.WithString(p.Name, propOpts...))
		}
	}
	return mcp.NewTool(s.Name, opts...)
}

// Validate checks args against the spec's parameters. Missing required
// parameters and values of the wrong type are reported as
// *ToolInputError; unknown arguments are ignored.
func (s ToolSpec) Validate(args Arguments) error {
	for _, p := range s.Params {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				return &ToolInputError{Tool: s.Name, Param: p.Name, Message: "is required"}
			}
			continue
		}
		if !hasType(v, p.Type) {
			return &ToolInputError{
				Tool:    s.Name,
				Param:   p.Name,
				Message: fmt.Sprintf("must be a %s, got %T", p.Type, v),
			}
		}
	}
	return nil
}

func hasType(v any, t ParamType) bool {
	switch t {
	case ParamString:
		_, ok := v.(string)
		return ok
	case ParamBoolean:
		_, ok := v.(bool)
		return ok
	case ParamNumber:
		switch n := v.(type) {
		case float64:
			return !math.IsNaN(n) && !math.IsInf(n, 0)
		case int, int64:
			return true
		}
	}
	return false
}
