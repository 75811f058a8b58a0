// Package universal provides the two bounded execution loops: the Reflexion
// pipeline (draft, critique, revise) and the tool-calling agent loop.
package universal

import (
	"errors"

	"github.com/hrygo/repurpose/ai/core/llm"
)

// StrategyType names an execution loop. Used as a log field and metric label.
type StrategyType string

const (
	// StrategyReflexion drafts, critiques and revises until a quality gate passes.
	StrategyReflexion StrategyType = "reflexion"

	// StrategyAgent lets the model pick tools until it calls the finish tool.
	StrategyAgent StrategyType = "agent"
)

// State is a loop state. Both loops end in exactly one terminal state.
type State string

const (
	StateDrafting   State = "DRAFTING"
	StateCritiquing State = "CRITIQUING"
	StateRevising   State = "REVISING"
	StateDone       State = "DONE"

	StateThinking  State = "THINKING"
	StateActing    State = "ACTING"
	StateObserving State = "OBSERVING"
	StateFinished  State = "FINISHED"

	StateFailed State = "FAILED"
)

// Terminal reports whether s ends a loop.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateFinished, StateFailed:
		return true
	}
	return false
}

// ErrIterationLimit is attached to a FAILED outcome when a loop ran out of
// revisions or steps.
var ErrIterationLimit = errors.New("iteration limit exceeded")

// ExecutionStats tracks metrics for a single execution.
type ExecutionStats struct {
	Strategy StrategyType

	// LLM metrics
	LLMCalls         int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CacheReadTokens  int

	// Tool metrics
	ToolCalls int

	// Timing (milliseconds)
	TotalDurationMs  int64
	ThinkingDuration int64
	ToolDurationMs   int64
}

// AccumulateLLM adds LLM call statistics to this execution stats.
// This is the single source of truth for accumulating LLM metrics.
func (s *ExecutionStats) AccumulateLLM(llmStats *llm.LLMCallStats) {
	s.LLMCalls++
	if llmStats == nil {
		return
	}
	s.PromptTokens += llmStats.PromptTokens
	s.CompletionTokens += llmStats.CompletionTokens
	s.TotalTokens += llmStats.TotalTokens
	s.CacheReadTokens += llmStats.CacheReadTokens
	s.ThinkingDuration += llmStats.TotalDurationMs
}

// Merge adds the counters of other into s. Strategy is left unchanged.
func (s *ExecutionStats) Merge(other *ExecutionStats) {
	if other == nil {
		return
	}
	s.LLMCalls += other.LLMCalls
	s.PromptTokens += other.PromptTokens
	s.CompletionTokens += other.CompletionTokens
	s.TotalTokens += other.TotalTokens
	s.CacheReadTokens += other.CacheReadTokens
	s.ToolCalls += other.ToolCalls
	s.TotalDurationMs += other.TotalDurationMs
	s.ThinkingDuration += other.ThinkingDuration
	s.ToolDurationMs += other.ToolDurationMs
}
