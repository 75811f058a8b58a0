package universal

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/repurpose/ai/agent/registry"
	"github.com/hrygo/repurpose/ai/core/llm"
	"github.com/hrygo/repurpose/ai/core/llm/llmtest"
)

type toolCounter struct {
	echo   int
	finish int
}

func newAgentRegistry(t *testing.T) (*registry.ToolRegistry, *toolCounter) {
	t.Helper()
	counts := &toolCounter{}
	r := registry.NewToolRegistry()

	echoSchema := openapi3.NewObjectSchema().
		WithProperty("text", openapi3.NewStringSchema()).
		WithRequired([]string{"text"})
	require.NoError(t, r.Register("echo", echoSchema, func(_ context.Context, args map[string]any) (string, error) {
		counts.echo++
		return "echo: " + args["text"].(string), nil
	}))

	require.NoError(t, r.Register("explode", nil, func(context.Context, map[string]any) (string, error) {
		panic("kaboom")
	}))

	finishSchema := openapi3.NewObjectSchema().
		WithProperty("answer", openapi3.NewStringSchema()).
		WithRequired([]string{"answer"})
	require.NoError(t, r.RegisterWithMetadata("finish", finishSchema, func(_ context.Context, args map[string]any) (string, error) {
		counts.finish++
		return args["answer"].(string), nil
	}, registry.ToolMetadata{Description: "Finish with the final answer", Category: registry.CategoryControl}))

	return r, counts
}

func runAgent(t *testing.T, maxSteps int, svc llm.Service) (*AgentResult, *toolCounter) {
	t.Helper()
	tools, counts := newAgentRegistry(t)
	conv := llm.NewConversation("You are a test agent.")
	require.NoError(t, conv.Append(llm.UserMessage("do the thing")))

	exec := NewAgentExecutor(AgentConfig{MaxSteps: maxSteps})
	return exec.Execute(context.Background(), svc, tools, conv), counts
}

// TestAgentExecutor_Config tests constructor defaults.
func TestAgentExecutor_Config(t *testing.T) {
	exec := NewAgentExecutor(AgentConfig{})
	assert.Equal(t, 20, exec.MaxSteps())
	assert.Equal(t, "finish", exec.FinishTool())
	assert.Equal(t, "agent", exec.Name())

	exec = NewAgentExecutor(AgentConfig{MaxSteps: 4, FinishTool: "done"})
	assert.Equal(t, 4, exec.MaxSteps())
	assert.Equal(t, "done", exec.FinishTool())
}

// TestAgentExecutor_PlainTextFirstTurn tests that a plain answer ends the loop after one step.
func TestAgentExecutor_PlainTextFirstTurn(t *testing.T) {
	svc := llmtest.NewScripted(llmtest.Text("all done"))
	result, counts := runAgent(t, 20, svc)

	assert.Equal(t, StateFinished, result.State)
	assert.Equal(t, "all done", result.Answer)
	assert.Equal(t, 1, result.Steps)
	assert.Equal(t, 0, result.ToolCalls)
	assert.NoError(t, result.Err)
	assert.Zero(t, counts.echo)

	require.Len(t, result.Transcript, 3)
	assert.Equal(t, llm.RoleAssistant, result.Transcript[2].Role)

	req := svc.Requests()[0]
	require.Len(t, req.Tools, 3)
	assert.Equal(t, []string{"echo", "explode", "finish"}, []string{req.Tools[0].Name, req.Tools[1].Name, req.Tools[2].Name})
}

// TestAgentExecutor_UnknownToolObserved tests that an unknown tool becomes an
// error result that the model sees on the next step.
func TestAgentExecutor_UnknownToolObserved(t *testing.T) {
	svc := llmtest.NewScripted(
		llmtest.Calls(llmtest.Call("c1", "does_not_exist", `{}`)),
		llmtest.Text("recovered"),
	)
	result, _ := runAgent(t, 20, svc)

	assert.Equal(t, StateFinished, result.State)
	assert.Equal(t, 2, result.Steps)
	require.Len(t, result.Observations, 1)
	var unknown *registry.UnknownToolError
	assert.ErrorAs(t, result.Observations[0].Err, &unknown)

	second := svc.Requests()[1].Messages
	last := second[len(second)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
	assert.Equal(t, "error: unknown tool: does_not_exist", last.Content)
}

// TestAgentExecutor_ToolFailuresDoNotFailLoop tests schema, JSON and handler failures are observed.
func TestAgentExecutor_ToolFailuresDoNotFailLoop(t *testing.T) {
	svc := llmtest.NewScripted(
		llmtest.Calls(
			llmtest.Call("a", "echo", `{}`),
			llmtest.Call("b", "echo", `{"text": 12`),
			llmtest.Call("c", "explode", `{}`),
			llmtest.Call("d", "echo", `{"text":"ok"}`),
		),
		llmtest.Calls(llmtest.Call("f", "finish", `{"answer":"final"}`)),
	)
	result, counts := runAgent(t, 20, svc)

	assert.Equal(t, StateFinished, result.State)
	assert.Equal(t, "final", result.Answer)
	assert.Equal(t, 2, result.Steps)
	assert.Equal(t, 5, result.ToolCalls)
	assert.Equal(t, 1, counts.echo)

	obs := result.Observations
	require.Len(t, obs, 5)
	var schemaErr *registry.SchemaValidationError
	require.ErrorAs(t, obs[0].Err, &schemaErr)
	assert.Equal(t, []string{"text"}, schemaErr.Missing)
	assert.ErrorAs(t, obs[1].Err, &schemaErr)
	var execErr *registry.ToolExecutionError
	assert.ErrorAs(t, obs[2].Err, &execErr)
	assert.False(t, obs[3].Failed())
	assert.Equal(t, "echo: ok", obs[3].Output)

	observed := svc.Requests()[1].Messages
	tail := observed[len(observed)-4:]
	for i, msg := range tail[:3] {
		assert.True(t, strings.HasPrefix(msg.Content, "error: "), "message %d: %s", i, msg.Content)
	}
	assert.Equal(t, "echo: ok", tail[3].Content)
}

// TestAgentExecutor_FinishPrecedence tests that finish suppresses sibling calls.
func TestAgentExecutor_FinishPrecedence(t *testing.T) {
	svc := llmtest.NewScripted(llmtest.Calls(
		llmtest.Call("a", "echo", `{"text":"ignored"}`),
		llmtest.Call("f", "finish", `{"answer":"the end"}`),
		llmtest.Call("b", "echo", `{"text":"ignored too"}`),
	))
	result, counts := runAgent(t, 20, svc)

	assert.Equal(t, StateFinished, result.State)
	assert.Equal(t, "the end", result.Answer)
	assert.Equal(t, map[string]any{"answer": "the end"}, result.FinishArgs)
	assert.Equal(t, 1, result.Steps)
	assert.Equal(t, 1, result.ToolCalls)
	assert.Zero(t, counts.echo)
	assert.Equal(t, 1, counts.finish)

	assistant := result.Transcript[len(result.Transcript)-2]
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "finish", assistant.ToolCalls[0].Function.Name)
}

// TestAgentExecutor_InvalidFinishContinues tests that a finish call failing validation is observed, not accepted.
func TestAgentExecutor_InvalidFinishContinues(t *testing.T) {
	svc := llmtest.NewScripted(
		llmtest.Calls(llmtest.Call("f1", "finish", `{}`)),
		llmtest.Calls(llmtest.Call("f2", "finish", `{"answer":"fixed"}`)),
	)
	result, counts := runAgent(t, 20, svc)

	assert.Equal(t, StateFinished, result.State)
	assert.Equal(t, "fixed", result.Answer)
	assert.Equal(t, 2, result.Steps)
	assert.Equal(t, 1, counts.finish)
}

// TestAgentExecutor_StepLimit tests that a model that never finishes is stopped after MaxSteps.
func TestAgentExecutor_StepLimit(t *testing.T) {
	for _, limit := range []int{1, 3, 6} {
		svc := llmtest.NewScripted().WithFallback(llmtest.Calls(llmtest.Call("x", "echo", `{"text":"loop"}`)))
		result, counts := runAgent(t, limit, svc)

		assert.Equal(t, StateFailed, result.State)
		assert.ErrorIs(t, result.Err, ErrIterationLimit)
		assert.Contains(t, result.Reason, "step limit exceeded")
		assert.Equal(t, limit, result.Steps)
		assert.Equal(t, limit, svc.CallCount())
		assert.Equal(t, limit, counts.echo)
		assert.Empty(t, result.Answer)
	}
}

// TestAgentExecutor_AdapterError tests that a fatal adapter error fails the loop with the transcript so far.
func TestAgentExecutor_AdapterError(t *testing.T) {
	fatal := &llm.FatalAPIError{Provider: "test", StatusCode: 403, Err: errors.New("forbidden")}
	svc := llmtest.NewScripted(
		llmtest.Calls(llmtest.Call("a", "echo", `{"text":"hi"}`)),
		llmtest.Fail(fatal),
	)
	result, _ := runAgent(t, 20, svc)

	assert.Equal(t, StateFailed, result.State)
	assert.ErrorIs(t, result.Err, fatal)
	assert.Equal(t, 2, result.Steps)
	assert.Len(t, result.Transcript, 4)
	assert.Contains(t, result.Reason, "completion failed")
}

// TestAgentExecutor_DuplicateCallIDs tests that repeated call IDs in one turn are observed, not fatal.
func TestAgentExecutor_DuplicateCallIDs(t *testing.T) {
	svc := llmtest.NewScripted(
		llmtest.Calls(
			llmtest.Call("dup", "echo", `{"text":"one"}`),
			llmtest.Call("dup", "echo", `{"text":"two"}`),
		),
		llmtest.Text("done"),
	)
	result, counts := runAgent(t, 20, svc)

	require.Equal(t, StateFinished, result.State, result.Reason)
	assert.Equal(t, "done", result.Answer)
	assert.Equal(t, 2, counts.echo)
	require.Len(t, result.Observations, 2)
	assert.NotEqual(t, result.Observations[0].CallID, result.Observations[1].CallID)

	turn := result.Transcript[2]
	require.Len(t, turn.ToolCalls, 2)
	assert.Equal(t, "dup", turn.ToolCalls[0].ID)
	assert.Equal(t, turn.ToolCalls[1].ID, result.Transcript[4].ToolCallID)
	assert.Equal(t, "echo: two", result.Transcript[4].Content)
}

// TestAgentExecutor_TransientRetriesExhausted tests that a transient error surviving every retry fails the loop.
func TestAgentExecutor_TransientRetriesExhausted(t *testing.T) {
	transient := &llm.TransientAPIError{Provider: "test", StatusCode: 429, Err: errors.New("slow down")}
	scripted := llmtest.NewScripted(llmtest.Fail(transient), llmtest.Fail(transient), llmtest.Fail(transient))
	svc := llm.WithRetry(scripted, llm.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	result, _ := runAgent(t, 20, svc)

	assert.Equal(t, StateFailed, result.State)
	assert.ErrorIs(t, result.Err, transient)
	assert.True(t, llm.IsTransient(result.Err))
	assert.Equal(t, 3, scripted.CallCount())
	assert.Equal(t, 1, result.Steps)
	assert.Contains(t, result.Reason, "completion failed")
}

// TestAgentExecutor_Cancelled tests that cancellation is checked before thinking.
func TestAgentExecutor_Cancelled(t *testing.T) {
	tools, _ := newAgentRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := llmtest.NewScripted(llmtest.Text("never"))
	result := NewAgentExecutor(AgentConfig{}).Execute(ctx, svc, tools, llm.NewConversation("sys"))

	assert.Equal(t, StateFailed, result.State)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Equal(t, 0, svc.CallCount())
	assert.Equal(t, 0, result.Steps)
}

// TestAgentExecutor_Stats tests that token usage is accumulated per step.
func TestAgentExecutor_Stats(t *testing.T) {
	svc := llmtest.NewScripted(
		llmtest.Response{ToolCalls: []llm.ToolCall{llmtest.Call("a", "echo", `{"text":"x"}`)}, Stats: &llm.LLMCallStats{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120}},
		llmtest.Response{Content: "done", Stats: &llm.LLMCallStats{PromptTokens: 150, CompletionTokens: 10, TotalTokens: 160}},
	)
	result, _ := runAgent(t, 20, svc)

	assert.Equal(t, 2, result.Stats.LLMCalls)
	assert.Equal(t, 250, result.Stats.PromptTokens)
	assert.Equal(t, 280, result.Stats.TotalTokens)
	assert.Equal(t, 1, result.Stats.ToolCalls)
	assert.Equal(t, StrategyAgent, result.Stats.Strategy)
}
