package registry

import (
	"fmt"
	"strings"
)

// DuplicateToolError is returned by Register when the name is taken.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool already registered: %s", e.Name)
}

// UnknownToolError is returned when a name has no registered tool.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// SchemaValidationError lists every way the arguments missed the tool schema.
type SchemaValidationError struct {
	Tool     string
	Missing  []string
	Mistyped []string
	// Problems holds failures that are neither missing nor mistyped keys
	// (enum, bounds, malformed JSON).
	Problems []string
}

func (e *SchemaValidationError) Error() string {
	parts := make([]string, 0, 3)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Mistyped) > 0 {
		parts = append(parts, "mistyped: "+strings.Join(e.Mistyped, ", "))
	}
	if len(e.Problems) > 0 {
		parts = append(parts, strings.Join(e.Problems, "; "))
	}
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(parts, "; "))
}

func (e *SchemaValidationError) empty() bool {
	return len(e.Missing) == 0 && len(e.Mistyped) == 0 && len(e.Problems) == 0
}

// ToolExecutionError wraps any failure raised by a tool handler, panics included.
type ToolExecutionError struct {
	Tool  string
	Cause error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }
