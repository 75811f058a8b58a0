// Package registry provides the per-run tool registry used by the agent loop.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/hrygo/repurpose/ai/core/llm"
)

// ToolCategory represents a category for grouping tools.
type ToolCategory string

const (
	// CategoryContent groups content generation tools.
	CategoryContent ToolCategory = "content"
	// CategoryControl groups loop control tools such as finish.
	CategoryControl ToolCategory = "control"
	// CategoryCustom groups everything else.
	CategoryCustom ToolCategory = "custom"
)

// Handler executes a tool with schema-validated arguments.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// ToolMetadata contains additional metadata about a registered tool.
type ToolMetadata struct {
	// Description is shown to the model. Defaults to the schema description.
	Description string
	// Category is the tool's category for grouping.
	Category ToolCategory
	// Tags are optional tags for discovery.
	Tags []string
}

// ToolEntry is a registered tool.
type ToolEntry struct {
	Name     string
	Schema   *openapi3.Schema
	Handler  Handler
	Metadata ToolMetadata

	parameters string
}

// ToolRegistry maps tool names to schemas and handlers. It is built once per
// run and is read-only afterwards.
type ToolRegistry struct {
	mu       sync.RWMutex
	tools    map[string]*ToolEntry
	order    []string
	observer Observer
}

// Observer is told about every dispatched call and how long it took.
type Observer func(res Result, elapsed time.Duration)

// Observe sets the dispatch observer.
func (r *ToolRegistry) Observe(fn Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = fn
}

// NewToolRegistry creates a new tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*ToolEntry),
	}
}

// Register adds a tool. The schema must describe a JSON object.
func (r *ToolRegistry) Register(name string, schema *openapi3.Schema, handler Handler) error {
	return r.RegisterWithMetadata(name, schema, handler, ToolMetadata{})
}

// RegisterWithMetadata registers a tool with metadata.
func (r *ToolRegistry) RegisterWithMetadata(name string, schema *openapi3.Schema, handler Handler, metadata ToolMetadata) error {
	if name == "" {
		return errors.New("tool name is required")
	}
	if handler == nil {
		return fmt.Errorf("tool %s: handler is required", name)
	}
	if schema == nil {
		schema = openapi3.NewObjectSchema()
	}
	if schema.Type == nil || !schema.Type.Is(openapi3.TypeObject) {
		return fmt.Errorf("tool %s: schema must be an object schema", name)
	}

	params, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("tool %s: marshal schema: %w", name, err)
	}

	if metadata.Description == "" {
		metadata.Description = schema.Description
	}
	if metadata.Category == "" {
		metadata.Category = CategoryCustom
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return &DuplicateToolError{Name: name}
	}
	r.tools[name] = &ToolEntry{
		Name:       name,
		Schema:     schema,
		Handler:    handler,
		Metadata:   metadata,
		parameters: string(params),
	}
	r.order = append(r.order, name)
	return nil
}

// Lookup retrieves a tool by name.
func (r *ToolRegistry) Lookup(name string) (*ToolEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.tools[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	return entry, nil
}

// Invoke validates args against the tool schema and runs the handler.
//
// Errors are *UnknownToolError, *SchemaValidationError or *ToolExecutionError;
// a handler panic is recovered into a *ToolExecutionError.
func (r *ToolRegistry) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	entry, err := r.Lookup(name)
	if err != nil {
		return "", err
	}

	if args == nil {
		args = map[string]any{}
	}
	args = coerceArguments(entry.Schema, args)
	if verr := validateArguments(name, entry.Schema, args); verr != nil {
		return "", verr
	}

	return runHandler(ctx, entry, args)
}

func runHandler(ctx context.Context, entry *ToolEntry, args map[string]any) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = ""
			err = &ToolExecutionError{Tool: entry.Name, Cause: fmt.Errorf("panic: %v", rec)}
		}
	}()

	out, err = entry.Handler(ctx, args)
	if err != nil {
		return "", &ToolExecutionError{Tool: entry.Name, Cause: err}
	}
	return out, nil
}

// Dispatch parses a model-issued call and invokes it. Every failure is
// folded into the Result so the caller can feed it back to the model.
func (r *ToolRegistry) Dispatch(ctx context.Context, tc llm.ToolCall) Result {
	start := time.Now()
	res := r.dispatch(ctx, tc)

	r.mu.RLock()
	observer := r.observer
	r.mu.RUnlock()
	if observer != nil {
		observer(res, time.Since(start))
	}
	return res
}

func (r *ToolRegistry) dispatch(ctx context.Context, tc llm.ToolCall) Result {
	call, err := ParseCall(tc)
	if err != nil {
		return Result{CallID: tc.ID, Name: tc.Function.Name, Err: err}
	}
	out, err := r.Invoke(ctx, call.Name, call.Arguments)
	return Result{CallID: call.ID, Name: call.Name, Output: out, Err: err}
}

// Descriptors returns tool descriptors in registration order.
func (r *ToolRegistry) Descriptors() []llm.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]llm.ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		entry := r.tools[name]
		out = append(out, llm.ToolDescriptor{
			Name:        name,
			Description: entry.Metadata.Description,
			Parameters:  entry.parameters,
		})
	}
	return out
}

// Descriptor returns the descriptor of a single tool.
func (r *ToolRegistry) Descriptor(name string) (llm.ToolDescriptor, error) {
	entry, err := r.Lookup(name)
	if err != nil {
		return llm.ToolDescriptor{}, err
	}
	return llm.ToolDescriptor{Name: name, Description: entry.Metadata.Description, Parameters: entry.parameters}, nil
}

// Names returns registered tool names in registration order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Describe returns a formatted description of all registered tools.
func (r *ToolRegistry) Describe() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.tools) == 0 {
		return "No tools registered"
	}

	var sb strings.Builder
	for _, name := range r.order {
		entry := r.tools[name]
		sb.WriteString(fmt.Sprintf("- %s [%s]: %s\n", name, entry.Metadata.Category, entry.Metadata.Description))
		if len(entry.Metadata.Tags) > 0 {
			sb.WriteString(fmt.Sprintf("  Tags: %s\n", strings.Join(entry.Metadata.Tags, ", ")))
		}
	}
	return sb.String()
}
