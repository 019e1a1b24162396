package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
)

// ToolSpec describes a tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Tool is something the model may call during a turn.
type Tool interface {
	Spec() ToolSpec
	Call(ctx context.Context, input json.RawMessage) ([]domain.ToolResultContent, error)
}

// ExecutorFunc runs a tool call.
type ExecutorFunc func(ctx context.Context, input json.RawMessage) ([]domain.ToolResultContent, error)

// FuncTool adapts a function to the Tool interface.
type FuncTool struct {
	ToolSpec
	Exec ExecutorFunc
}

func (t FuncTool) Spec() ToolSpec { return t.ToolSpec }

func (t FuncTool) Call(ctx context.Context, input json.RawMessage) ([]domain.ToolResultContent, error) {
	return t.Exec(ctx, input)
}

// Registry stores tools keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool is required")
	}
	name := t.Spec().Name
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered for %s", name)
	}
	r.tools[name] = t
	return nil
}

// Specs lists the registered tools ordered by name.
func (r *Registry) Specs() []ToolSpec {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, t.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Execute runs the named tool.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) ([]domain.ToolResultContent, error) {
	if name == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	var t Tool
	if r != nil {
		r.mu.RLock()
		t = r.tools[name]
		r.mu.RUnlock()
	}
	if t == nil {
		return nil, fmt.Errorf("no tool registered for %s", name)
	}
	return t.Call(ctx, input)
}
