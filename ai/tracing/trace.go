// Package tracing records what one workflow run did: its phases, LLM calls
// and tool calls, with durations and errors.
package tracing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status of a traced operation.
type Status int

const (
	StatusOK Status = iota
	StatusError
	StatusCanceled
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Phase is a named stage of a workflow, such as one Reflexion artifact.
type Phase struct {
	SpanID   string
	Name     string
	Start    time.Time
	Duration time.Duration
	Status   Status
	Error    string
}

// LLMCall is one completion request.
type LLMCall struct {
	SpanID           string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
	Start            time.Time
	Duration         time.Duration
	Status           Status
	Error            string
}

// ToolCall is one tool invocation.
type ToolCall struct {
	SpanID   string
	Name     string
	Input    string
	Output   string
	Start    time.Time
	Duration time.Duration
	Status   Status
	Error    string
}

// Trace holds everything recorded during one run. It is safe for concurrent
// use; Compare records both workflows into sibling traces.
type Trace struct {
	TraceID   string
	Operation string
	StartTime time.Time
	EndTime   time.Time

	mu        sync.Mutex
	status    Status
	phases    []*Phase
	llmCalls  []*LLMCall
	toolCalls []*ToolCall
	tags      map[string]string
	maxEvents int
}

const defaultMaxEvents = 1000

// New starts a trace for operation.
func New(operation string) *Trace {
	return &Trace{
		TraceID:   uuid.NewString(),
		Operation: operation,
		StartTime: time.Now(),
		tags:      make(map[string]string, 4),
		maxEvents: defaultMaxEvents,
	}
}

// SetTag sets a tag on the trace.
func (t *Trace) SetTag(key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tags[key] = value
}

// Tags returns a copy of the trace tags.
func (t *Trace) Tags() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.tags))
	for k, v := range t.tags {
		out[k] = v
	}
	return out
}

// RecordPhase runs fn as a phase of the trace.
func (t *Trace) RecordPhase(name string, fn func() error) error {
	if t == nil {
		return fn()
	}
	phase := &Phase{SpanID: uuid.NewString(), Name: name, Start: time.Now()}

	err := fn()

	phase.Duration = time.Since(phase.Start)
	phase.Status, phase.Error = statusOf(err)

	t.mu.Lock()
	if len(t.phases) < t.maxEvents {
		t.phases = append(t.phases, phase)
	}
	t.mu.Unlock()
	return err
}

// RecordLLMCall records a completion request.
func (t *Trace) RecordLLMCall(call LLMCall, err error) {
	if t == nil {
		return
	}
	call.SpanID = uuid.NewString()
	call.Status, call.Error = statusOf(err)

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.llmCalls) < t.maxEvents {
		t.llmCalls = append(t.llmCalls, &call)
	}
}

// RecordToolCall records a tool invocation.
func (t *Trace) RecordToolCall(call ToolCall, err error) {
	if t == nil {
		return
	}
	call.SpanID = uuid.NewString()
	call.Status, call.Error = statusOf(err)

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.toolCalls) < t.maxEvents {
		t.toolCalls = append(t.toolCalls, &call)
	}
}

// Finish closes the trace with a status derived from err.
func (t *Trace) Finish(err error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.EndTime = time.Now()
	t.status, _ = statusOf(err)
}

// Status returns the trace status.
func (t *Trace) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Duration returns the trace duration, up to now while it is running.
func (t *Trace) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.EndTime.IsZero() {
		return time.Since(t.StartTime)
	}
	return t.EndTime.Sub(t.StartTime)
}

// Phases returns the recorded phases.
func (t *Trace) Phases() []Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Phase, len(t.phases))
	for i, p := range t.phases {
		out[i] = *p
	}
	return out
}

// LLMCalls returns the recorded completion requests.
func (t *Trace) LLMCalls() []LLMCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]LLMCall, len(t.llmCalls))
	for i, c := range t.llmCalls {
		out[i] = *c
	}
	return out
}

// ToolCalls returns the recorded tool invocations.
func (t *Trace) ToolCalls() []ToolCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ToolCall, len(t.toolCalls))
	for i, c := range t.toolCalls {
		out[i] = *c
	}
	return out
}

// TotalTokens sums prompt and completion tokens over all LLM calls.
func (t *Trace) TotalTokens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, c := range t.llmCalls {
		total += c.PromptTokens + c.CompletionTokens
	}
	return total
}

func statusOf(err error) (Status, string) {
	switch {
	case err == nil:
		return StatusOK, ""
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return StatusCanceled, err.Error()
	default:
		return StatusError, err.Error()
	}
}

type contextKey struct{}

// WithContext stores the trace in ctx.
func WithContext(ctx context.Context, t *Trace) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext returns the trace stored in ctx, or nil.
func FromContext(ctx context.Context) *Trace {
	t, _ := ctx.Value(contextKey{}).(*Trace)
	return t
}
