package universal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/repurpose/ai/agent/registry"
	"github.com/hrygo/repurpose/ai/core/llm"
	"github.com/hrygo/repurpose/ai/internal/strutil"
)

/*
AgentExecutor - Native Tool Calling Loop

ALGORITHM:
  THINKING   call the model with the conversation and the tool descriptors;
             plain text ends in FINISHED with that text as the answer
  ACTING     if any call in the turn targets the finish tool, only that call
             is dispatched and a successful finish ends in FINISHED;
             otherwise every call is dispatched through the registry
  OBSERVING  append the assistant turn and one tool message per call;
             after MaxSteps observed turns the loop ends in FAILED

  Tool failures (unknown tool, malformed JSON, schema mismatch, handler
  error or panic) never end the loop: they are observed as "error: ..."
  tool messages so the model can correct itself.
*/

const (
	defaultMaxSteps = 20

	// DefaultFinishTool is the tool name that ends the agent loop.
	DefaultFinishTool = "finish"
)

// AgentConfig configures an AgentExecutor.
type AgentConfig struct {
	// MaxSteps caps THINKING calls; values <= 0 use 20.
	MaxSteps   int
	FinishTool string
	Logger     *slog.Logger
}

// AgentResult is the terminal outcome of one agent run.
type AgentResult struct {
	State  State
	Answer string
	Reason string
	Err    error

	// Steps counts THINKING calls.
	Steps      int
	ToolCalls  int
	FinishArgs map[string]any

	// Observations holds every dispatched tool result in order.
	Observations []registry.Result
	Transcript   []llm.Message
	Stats        *ExecutionStats
}

// AgentExecutor runs the think/act/observe loop over a tool registry.
type AgentExecutor struct {
	maxSteps   int
	finishTool string
	logger     *slog.Logger
}

// NewAgentExecutor creates a new AgentExecutor.
func NewAgentExecutor(cfg AgentConfig) *AgentExecutor {
	e := &AgentExecutor{
		maxSteps:   cfg.MaxSteps,
		finishTool: cfg.FinishTool,
		logger:     cfg.Logger,
	}
	if e.maxSteps <= 0 {
		e.maxSteps = defaultMaxSteps
	}
	if e.finishTool == "" {
		e.finishTool = DefaultFinishTool
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Name returns the strategy name.
func (e *AgentExecutor) Name() string {
	return string(StrategyAgent)
}

// FinishTool returns the name of the termination tool.
func (e *AgentExecutor) FinishTool() string {
	return e.finishTool
}

// MaxSteps returns the step cap.
func (e *AgentExecutor) MaxSteps() int {
	return e.maxSteps
}

// Execute runs the loop on conv until a terminal state. conv is appended to
// in place and must be owned by the caller's run. It never returns nil.
func (e *AgentExecutor) Execute(ctx context.Context, svc llm.Service, tools *registry.ToolRegistry, conv *llm.Conversation) *AgentResult {
	stats := &ExecutionStats{Strategy: StrategyAgent}
	startTime := time.Now()
	result := &AgentResult{State: StateThinking, Stats: stats}
	defer func() {
		stats.TotalDurationMs = time.Since(startTime).Milliseconds()
		result.Transcript = conv.Messages()
	}()

	logger := e.logger.With("strategy", e.Name())
	guard := NewIterationGuard(e.maxSteps)
	descriptors := tools.Descriptors()

	for {
		// THINKING
		result.State = StateThinking
		if err := ctx.Err(); err != nil {
			return e.fail(result, err, "cancelled")
		}

		response, llmStats, err := svc.Complete(ctx, &llm.Request{
			Messages: conv.Messages(),
			Tools:    descriptors,
		})
		result.Steps++
		stats.AccumulateLLM(llmStats)
		if err != nil {
			return e.fail(result, err, "completion failed: "+err.Error())
		}

		logger.Info("agent: model turn",
			"step", result.Steps,
			"remaining", guard.Remaining(),
			"tool_calls", len(response.ToolCalls),
			"content_preview", strutil.Truncate(response.Content, 100))

		if !response.HasToolCalls() {
			if err := conv.Append(llm.AssistantMessage(response.Content)); err != nil {
				return e.fail(result, err, "append assistant turn: "+err.Error())
			}
			result.State = StateFinished
			result.Answer = response.Content
			result.Reason = "model answered without tool calls"
			return result
		}

		// ACTING
		result.State = StateActing
		calls := response.ToolCalls
		finishing := false
		for _, tc := range calls {
			if tc.Function.Name == e.finishTool {
				calls = []llm.ToolCall{tc}
				finishing = true
				break
			}
		}
		if finishing && len(response.ToolCalls) > 1 {
			logger.Info("agent: finish requested, discarding sibling calls", "discarded", len(response.ToolCalls)-1)
		}
		// Each tool message must answer exactly one call of the turn.
		calls = llm.UniqueCallIDs(calls)

		toolStart := time.Now()
		results := make([]registry.Result, 0, len(calls))
		for _, tc := range calls {
			res := tools.Dispatch(ctx, tc)
			results = append(results, res)
			if res.Failed() {
				logger.Warn("agent: tool call failed", "tool", res.Name, "error", res.Err)
			} else {
				logger.Debug("agent: tool call", "tool", res.Name, "output_length", len(res.Output))
			}
		}
		stats.ToolDurationMs += time.Since(toolStart).Milliseconds()
		stats.ToolCalls += len(results)
		result.ToolCalls += len(results)
		result.Observations = append(result.Observations, results...)

		// OBSERVING
		result.State = StateObserving
		turn := llm.Message{Role: llm.RoleAssistant, Content: response.Content, ToolCalls: calls}
		msgs := make([]llm.Message, 0, len(results)+1)
		msgs = append(msgs, turn)
		for _, res := range results {
			msgs = append(msgs, res.Message())
		}
		if err := conv.Append(msgs...); err != nil {
			return e.fail(result, err, "append observations: "+err.Error())
		}

		if finishing && !results[0].Failed() {
			finish, _ := registry.ParseCall(calls[0])
			result.State = StateFinished
			result.Answer = results[0].Output
			result.FinishArgs = finish.Arguments
			result.Reason = "finish tool called"
			return result
		}

		guard.Step()
		if guard.Exhausted() {
			return e.fail(result, ErrIterationLimit, fmt.Sprintf("step limit exceeded (%d steps)", guard.Max()))
		}
	}
}

func (e *AgentExecutor) fail(result *AgentResult, err error, reason string) *AgentResult {
	result.State = StateFailed
	result.Err = err
	result.Reason = reason
	e.logger.Warn("agent failed", "reason", reason, "steps", result.Steps, "tool_calls", result.ToolCalls)
	return result
}
