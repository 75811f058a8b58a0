package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hrygo/repurpose/ai/agent/registry"
	"github.com/hrygo/repurpose/ai/agent/universal"
	"github.com/hrygo/repurpose/ai/agents/tools"
	"github.com/hrygo/repurpose/ai/content"
	"github.com/hrygo/repurpose/ai/core/llm"
	"github.com/hrygo/repurpose/ai/internal/strutil"
	"github.com/hrygo/repurpose/ai/prompts"
)

// AgentConfig configures the agent workflow.
type AgentConfig struct {
	// MaxSteps caps model turns; values <= 0 use 20.
	MaxSteps int
}

// AgentResult is the outcome of one agent run.
type AgentResult struct {
	RunID  string
	State  universal.State
	Reason string
	Err    error

	// Bundle holds the finish arguments, or the tool outputs collected so
	// far when the agent never finished.
	Bundle  *tools.Bundle
	Partial bool

	Steps      int
	ToolCalls  int
	Transcript []llm.Message
	Stats      *universal.ExecutionStats
	Duration   time.Duration
}

// Agent lets the model pick content tools until it calls finish.
type Agent struct {
	svc     llm.Service
	prompts *registry.PromptRegistry
	cfg     AgentConfig
}

// NewAgent creates an agent workflow.
func NewAgent(svc llm.Service, prompts *registry.PromptRegistry, cfg AgentConfig) (*Agent, error) {
	if svc == nil || prompts == nil {
		return nil, fmt.Errorf("agent: service and prompts are required")
	}
	return &Agent{svc: svc, prompts: prompts, cfg: cfg}, nil
}

// Run executes the agent loop for post. It never returns nil.
func (a *Agent) Run(ctx context.Context, run *Run, post *content.Post) *AgentResult {
	start := time.Now()
	ctx = run.Context(ctx)
	svc := run.Service(a.svc)
	logger := run.Logger.Slog()

	result := &AgentResult{RunID: run.ID, State: universal.StateThinking}
	cache := tools.NewResultCache(0)
	defer func() {
		result.Duration = time.Since(start)
		run.RecordCache(cache)
		run.Finish(result.State, result.Steps, result.Err)
	}()
	fail := func(err error, reason string) *AgentResult {
		result.State = universal.StateFailed
		result.Err = err
		result.Reason = reason
		return result
	}

	tasks, err := tools.NewTasks(tools.TasksConfig{
		Service: svc,
		Post:    post,
		Prompts: a.prompts,
		Cache:   cache,
		Logger:  logger,
	})
	if err != nil {
		return fail(err, "setup failed: "+err.Error())
	}
	reg := registry.NewToolRegistry()
	if err := tools.RegisterContentTools(reg, tasks); err != nil {
		return fail(err, "setup failed: "+err.Error())
	}
	run.ObserveTools(reg)

	system, err := a.prompts.Render(prompts.AgentSystem, map[string]any{
		"FinishTool": tools.ToolFinish,
		"Tools":      reg.Describe(),
	})
	if err != nil {
		return fail(err, "render system prompt: "+err.Error())
	}
	user, err := a.prompts.Render(prompts.AgentUser, map[string]any{"Post": post})
	if err != nil {
		return fail(err, "render user prompt: "+err.Error())
	}
	conv := llm.NewConversation(system)
	if err := conv.Append(llm.UserMessage(user)); err != nil {
		return fail(err, "seed conversation: "+err.Error())
	}

	executor := universal.NewAgentExecutor(universal.AgentConfig{
		MaxSteps:   a.cfg.MaxSteps,
		FinishTool: tools.ToolFinish,
		Logger:     logger,
	})

	var outcome *universal.AgentResult
	_ = run.Trace.RecordPhase("agent_loop", func() error {
		outcome = executor.Execute(ctx, svc, reg, conv)
		return outcome.Err
	})

	result.State = outcome.State
	result.Reason = outcome.Reason
	result.Err = outcome.Err
	result.Steps = outcome.Steps
	result.ToolCalls = outcome.ToolCalls
	result.Transcript = outcome.Transcript
	result.Stats = outcome.Stats
	// Tool handlers complete on their own; the executor only counts its turns.
	calls, usage := tasks.Usage()
	result.Stats.Merge(&universal.ExecutionStats{
		LLMCalls:         calls,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		CacheReadTokens:  usage.CacheReadTokens,
		ThinkingDuration: usage.TotalDurationMs,
	})

	if outcome.FinishArgs != nil {
		bundle, err := tools.DecodeBundle(outcome.FinishArgs)
		if err == nil {
			result.Bundle = bundle
			return result
		}
		logger.Warn("finish arguments unusable, falling back to tool outputs", "error", err)
	}

	result.Bundle = CollectPartial(outcome.Observations)
	result.Partial = true
	if outcome.State != universal.StateFailed {
		logger.Warn("agent did not call finish, returning collected outputs")
	}
	return result
}

// CollectPartial rebuilds a bundle from successful tool outputs. Later calls
// of the same tool win.
func CollectPartial(observations []registry.Result) *tools.Bundle {
	bundle := &tools.Bundle{}
	for _, obs := range observations {
		if obs.Failed() {
			continue
		}
		switch obs.Name {
		case tools.ToolExtractKeyPoints:
			var out struct {
				KeyPoints []string `json:"key_points"`
			}
			if json.Unmarshal([]byte(obs.Output), &out) == nil {
				bundle.KeyPoints = out.KeyPoints
			}
		case tools.ToolGenerateSummary:
			var out struct {
				Summary string `json:"summary"`
			}
			if json.Unmarshal([]byte(obs.Output), &out) == nil {
				bundle.Summary = out.Summary
			}
		case tools.ToolCreateSocialPosts:
			var posts tools.SocialPosts
			if json.Unmarshal([]byte(obs.Output), &posts) == nil {
				bundle.SocialPosts = &posts
			}
		case tools.ToolCreateNewsletter:
			var email tools.Newsletter
			if json.Unmarshal([]byte(obs.Output), &email) == nil {
				bundle.Email = &email
			}
		}
	}
	return bundle
}

// WriteTranscript prints one line per message: role, tool name for tool
// messages, and the content cut to width runes.
func WriteTranscript(w io.Writer, transcript []llm.Message, width int) error {
	for _, m := range transcript {
		role := strings.ToUpper(m.Role)
		if m.Role == llm.RoleTool {
			role = fmt.Sprintf("%s (%s)", role, m.Name)
		}
		text := strutil.Truncate(strings.TrimSpace(m.Content), width)
		for _, tc := range m.ToolCalls {
			text = strings.TrimSpace(text + " -> " + tc.Function.Name)
		}
		if _, err := fmt.Fprintf(w, "%s: %s\n", role, text); err != nil {
			return err
		}
	}
	return nil
}
