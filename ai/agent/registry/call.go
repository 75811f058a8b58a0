package registry

import (
	"encoding/json"
	"strings"

	"github.com/hrygo/repurpose/ai/core/llm"
)

// Call is a model-issued tool invocation: a tool name plus decoded arguments.
type Call struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ParseCall decodes the raw JSON arguments of tc. Empty arguments decode to
// an empty map; anything that is not a JSON object is a *SchemaValidationError.
func ParseCall(tc llm.ToolCall) (Call, error) {
	call := Call{ID: tc.ID, Name: tc.Function.Name, Arguments: map[string]any{}}

	raw := strings.TrimSpace(tc.Function.Arguments)
	if raw == "" {
		return call, nil
	}
	if err := json.Unmarshal([]byte(raw), &call.Arguments); err != nil {
		return call, &SchemaValidationError{
			Tool:     tc.Function.Name,
			Problems: []string{"arguments are not a valid JSON object: " + err.Error()},
		}
	}
	if call.Arguments == nil {
		call.Arguments = map[string]any{}
	}
	return call, nil
}

// Result is the outcome of one dispatched tool call.
type Result struct {
	CallID string
	Name   string
	Output string
	Err    error
}

// Failed reports whether the call produced an error.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Content is the text fed back to the model as the tool message.
func (r Result) Content() string {
	if r.Err != nil {
		return "error: " + r.Err.Error()
	}
	return r.Output
}

// Message converts the result into a tool message.
func (r Result) Message() llm.Message {
	if r.Failed() {
		return llm.ToolErrorMessage(r.CallID, r.Name, r.Content())
	}
	return llm.ToolMessage(r.CallID, r.Name, r.Content())
}
