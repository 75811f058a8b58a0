package universal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/repurpose/ai/core/llm"
)

/*
ReflexionExecutor - Self-Reflection and Refinement

ALGORITHM:
  DRAFTING    generate Draft v1 from the task prompt
  CRITIQUING  judge the current draft; PASS ends in DONE
  REVISING    rewrite the draft with the critique, version+1, back to CRITIQUING

  A FAIL critique once MaxRevisions revisions have been made ends in FAILED
  with the best draft and ErrIterationLimit. Any adapter or judge error ends
  in FAILED with the error and the latest draft.

  With MaxRevisions=3 and a judge that never passes, the loop makes exactly
  four critiques and three revisions and returns draft v4.
*/

const defaultMaxRevisions = 3

// ReflexionTask describes one artifact to produce.
type ReflexionTask struct {
	// Kind names the artifact ("summary", "email", ...) in prompts and logs.
	Kind   string
	System string
	Prompt string

	// Generate replaces the default drafting completion, e.g. with a
	// forced tool call that returns structured output.
	Generate func(ctx context.Context) (string, *llm.LLMCallStats, error)
}

func (t ReflexionTask) label() string {
	if t.Kind == "" {
		return "content"
	}
	return t.Kind
}

// RevisePromptFunc renders the user prompt of a revision call.
type RevisePromptFunc func(task ReflexionTask, draft Draft, critique Critique) (string, error)

// ReflexionConfig configures a ReflexionExecutor.
type ReflexionConfig struct {
	// MaxRevisions caps revisions; values <= 0 use 3.
	MaxRevisions int
	Judge        Judge
	ReviseSystem string
	RevisePrompt RevisePromptFunc
	Logger       *slog.Logger
}

// ReflexionResult is the terminal outcome of one Reflexion run.
type ReflexionResult struct {
	Kind      string
	State     State
	Draft     Draft
	Revisions int
	Converged bool
	Reason    string
	Err       error
	Drafts    []Draft
	Critiques []Critique
	Stats     *ExecutionStats
}

// ReflexionExecutor implements self-reflection and refinement.
type ReflexionExecutor struct {
	maxRevisions int
	judge        Judge
	reviseSystem string
	revisePrompt RevisePromptFunc
	logger       *slog.Logger
}

// NewReflexionExecutor creates a new ReflexionExecutor.
func NewReflexionExecutor(cfg ReflexionConfig) (*ReflexionExecutor, error) {
	if cfg.Judge == nil {
		return nil, fmt.Errorf("reflexion: judge is required")
	}
	e := &ReflexionExecutor{
		maxRevisions: cfg.MaxRevisions,
		judge:        cfg.Judge,
		reviseSystem: cfg.ReviseSystem,
		revisePrompt: cfg.RevisePrompt,
		logger:       cfg.Logger,
	}
	if e.maxRevisions <= 0 {
		e.maxRevisions = defaultMaxRevisions
	}
	if e.reviseSystem == "" {
		e.reviseSystem = "You are a helpful assistant that improves content based on feedback."
	}
	if e.revisePrompt == nil {
		e.revisePrompt = defaultRevisePrompt
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// Name returns the strategy name.
func (e *ReflexionExecutor) Name() string {
	return string(StrategyReflexion)
}

// MaxRevisions returns the revision cap.
func (e *ReflexionExecutor) MaxRevisions() int {
	return e.maxRevisions
}

// Execute runs the loop to a terminal state. It never returns nil.
func (e *ReflexionExecutor) Execute(ctx context.Context, svc llm.Service, task ReflexionTask) *ReflexionResult {
	stats := &ExecutionStats{Strategy: StrategyReflexion}
	startTime := time.Now()
	result := &ReflexionResult{Kind: task.label(), State: StateDrafting, Stats: stats}
	defer func() {
		stats.TotalDurationMs = time.Since(startTime).Milliseconds()
	}()

	logger := e.logger.With("strategy", e.Name(), "kind", task.label())
	guard := NewIterationGuard(e.maxRevisions)

	// DRAFTING
	if err := ctx.Err(); err != nil {
		return e.fail(result, err, "cancelled before drafting")
	}
	text, llmStats, err := e.draft(ctx, svc, task)
	stats.AccumulateLLM(llmStats)
	if err != nil {
		return e.fail(result, err, "draft failed: "+err.Error())
	}
	current := Draft{Text: text, Version: 1}
	result.Drafts = append(result.Drafts, current)
	result.Draft = current
	logger.Debug("draft created", "version", current.Version, "length", len(text))

	for {
		// CRITIQUING
		result.State = StateCritiquing
		critique, err := e.judge.Judge(ctx, task, current)
		if critique.Usage != nil {
			stats.AccumulateLLM(critique.Usage)
		}
		if err != nil {
			return e.fail(result, err, "critique failed: "+err.Error())
		}
		critique.DraftVersion = current.Version
		result.Critiques = append(result.Critiques, critique)

		logger.Info("critique",
			"version", current.Version,
			"score", critique.Score,
			"pass", critique.Pass,
			"revisions", guard.Count())

		if critique.Pass {
			result.State = StateDone
			result.Converged = true
			result.Draft = current
			result.Reason = fmt.Sprintf("quality gate passed at version %d", current.Version)
			return result
		}

		if guard.Exhausted() {
			result.Draft = bestDraft(result.Drafts, result.Critiques)
			return e.fail(result, ErrIterationLimit,
				fmt.Sprintf("quality gate not met after %d revisions", guard.Count()))
		}

		// REVISING
		result.State = StateRevising
		if err := ctx.Err(); err != nil {
			return e.fail(result, err, "cancelled before revising")
		}
		revised, llmStats, err := e.revise(ctx, svc, task, current, critique)
		stats.AccumulateLLM(llmStats)
		if err != nil {
			return e.fail(result, err, "revision failed: "+err.Error())
		}

		guard.Step()
		current = Draft{Text: revised, Version: current.Version + 1}
		result.Drafts = append(result.Drafts, current)
		result.Draft = current
		result.Revisions = guard.Count()
	}
}

func (e *ReflexionExecutor) fail(result *ReflexionResult, err error, reason string) *ReflexionResult {
	result.State = StateFailed
	result.Err = err
	result.Reason = reason
	e.logger.Warn("reflexion failed",
		"kind", result.Kind,
		"reason", reason,
		"revisions", result.Revisions,
		"version", result.Draft.Version)
	return result
}

func (e *ReflexionExecutor) draft(ctx context.Context, svc llm.Service, task ReflexionTask) (string, *llm.LLMCallStats, error) {
	if task.Generate != nil {
		return task.Generate(ctx)
	}
	messages := make([]llm.Message, 0, 2)
	if task.System != "" {
		messages = append(messages, llm.SystemPrompt(task.System))
	}
	messages = append(messages, llm.UserMessage(task.Prompt))
	return llm.Chat(ctx, svc, messages)
}

func (e *ReflexionExecutor) revise(ctx context.Context, svc llm.Service, task ReflexionTask, draft Draft, critique Critique) (string, *llm.LLMCallStats, error) {
	prompt, err := e.revisePrompt(task, draft, critique)
	if err != nil {
		return "", nil, fmt.Errorf("render revise prompt: %w", err)
	}
	text, stats, err := llm.Chat(ctx, svc, []llm.Message{
		llm.SystemPrompt(e.reviseSystem),
		llm.UserMessage(prompt),
	})
	if err != nil {
		return "", stats, err
	}
	return strings.TrimSpace(text), stats, nil
}

// bestDraft returns the highest-scoring critiqued draft; later versions win ties.
func bestDraft(drafts []Draft, critiques []Critique) Draft {
	best := drafts[len(drafts)-1]
	bestScore := -1.0
	for _, c := range critiques {
		if c.Score < bestScore {
			continue
		}
		for _, d := range drafts {
			if d.Version == c.DraftVersion {
				best, bestScore = d, c.Score
				break
			}
		}
	}
	return best
}

func defaultRevisePrompt(task ReflexionTask, draft Draft, critique Critique) (string, error) {
	return fmt.Sprintf("%s\n\n## Original Task\n%s\n\n## Current %s\n%s\n\n## Feedback\n%s",
		refineInstructions, task.Prompt, task.label(), draft.Text, critique.Text), nil
}

const refineInstructions = `Improve the following content based on the feedback provided.

## Instructions

1. Address each issue mentioned in the feedback
2. Keep the format of the current content (plain text stays plain text, JSON stays JSON)
3. Maintain the good parts of the original

## Output

Output only the improved content, no explanations.`
