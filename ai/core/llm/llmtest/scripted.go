// Package llmtest provides a deterministic completion service for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/hrygo/repurpose/ai/core/llm"
)

// Response configures one completion turn in a scripted sequence.
type Response struct {
	Content   string
	ToolCalls []llm.ToolCall
	Stats     *llm.LLMCallStats
	Err       error
}

// Text is a plain-text turn.
func Text(content string) Response {
	return Response{Content: content}
}

// Calls is a tool-calling turn.
func Calls(calls ...llm.ToolCall) Response {
	return Response{ToolCalls: calls}
}

// Fail is a turn that returns err.
func Fail(err error) Response {
	return Response{Err: err}
}

// Call builds a tool call with raw JSON arguments.
func Call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{
		ID:       id,
		Type:     "function",
		Function: llm.FunctionCall{Name: name, Arguments: args},
	}
}

// Scripted replays responses in order and records every request.
type Scripted struct {
	mu        sync.Mutex
	index     int
	responses []Response
	fallback  *Response
	requests  []llm.Request
}

var _ llm.Service = (*Scripted)(nil)

// NewScripted returns a service that answers with responses in order.
func NewScripted(responses ...Response) *Scripted {
	cloned := make([]Response, len(responses))
	copy(cloned, responses)
	return &Scripted{responses: cloned}
}

// WithFallback sets the response used once the script is exhausted.
func (s *Scripted) WithFallback(r Response) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = &r
	return s
}

// Complete returns the next scripted response.
func (s *Scripted) Complete(ctx context.Context, req *llm.Request) (*llm.ChatResponse, *llm.LLMCallStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	recorded := *req
	recorded.Messages = append([]llm.Message(nil), req.Messages...)
	recorded.Tools = append([]llm.ToolDescriptor(nil), req.Tools...)
	s.requests = append(s.requests, recorded)

	var current Response
	switch {
	case s.index < len(s.responses):
		current = s.responses[s.index]
	case s.fallback != nil:
		current = *s.fallback
	default:
		return nil, nil, fmt.Errorf("script exhausted at call %d", s.index+1)
	}
	s.index++

	if current.Err != nil {
		return nil, nil, current.Err
	}
	stats := current.Stats
	if stats == nil {
		stats = &llm.LLMCallStats{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
	}
	return &llm.ChatResponse{
		Content:   current.Content,
		ToolCalls: append([]llm.ToolCall(nil), current.ToolCalls...),
	}, stats, nil
}

// Requests returns the requests seen so far.
func (s *Scripted) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// CallCount returns how many completions were requested.
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}
