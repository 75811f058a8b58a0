package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
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

// Artifact kinds, as named in judge prompts.
const (
	KindSummary = "summary"
	KindSocial  = "social_media_post"
	KindEmail   = "email"
)

// JudgeKind selects the critique strategy.
type JudgeKind string

const (
	// JudgeLLM asks for a structured JSON quality report.
	JudgeLLM JudgeKind = "llm"
	// JudgeKeyword scores free-form feedback by looking for "good".
	JudgeKeyword JudgeKind = "keyword"
)

// ParseJudgeKind validates a judge name.
func ParseJudgeKind(s string) (JudgeKind, error) {
	switch k := JudgeKind(strings.ToLower(strings.TrimSpace(s))); k {
	case JudgeLLM, JudgeKeyword:
		return k, nil
	case "":
		return JudgeLLM, nil
	default:
		return "", fmt.Errorf("unknown judge %q (want llm or keyword)", s)
	}
}

// PipelineConfig configures the Reflexion pipeline.
type PipelineConfig struct {
	MaxRevisions int
	Judge        JudgeKind
	// Gate decides PASS from a critique; nil means a 0.8 threshold.
	Gate universal.Gate
}

// PipelineResult is the outcome of one pipeline run.
type PipelineResult struct {
	RunID       string
	State       universal.State
	Reason      string
	Err         error
	KeyPoints   []string
	Summary     string
	SocialPosts *tools.SocialPosts
	Email       *tools.Newsletter

	// Artifacts holds the Reflexion outcome of summary, social posts and
	// email, in that order. Artifacts not reached are absent.
	Artifacts []*universal.ReflexionResult
	Stats     *universal.ExecutionStats
	Duration  time.Duration
}

// Bundle returns the artifacts in the shape of the agent's finish call.
func (r *PipelineResult) Bundle() *tools.Bundle {
	return &tools.Bundle{
		KeyPoints:   r.KeyPoints,
		Summary:     r.Summary,
		SocialPosts: r.SocialPosts,
		Email:       r.Email,
	}
}

// Pipeline extracts key points once, then runs Reflexion over the summary,
// the social posts and the newsletter in turn.
type Pipeline struct {
	svc     llm.Service
	prompts *registry.PromptRegistry
	cfg     PipelineConfig
}

// NewPipeline creates a pipeline.
func NewPipeline(svc llm.Service, prompts *registry.PromptRegistry, cfg PipelineConfig) (*Pipeline, error) {
	if svc == nil || prompts == nil {
		return nil, fmt.Errorf("pipeline: service and prompts are required")
	}
	if cfg.Judge == "" {
		cfg.Judge = JudgeLLM
	}
	return &Pipeline{svc: svc, prompts: prompts, cfg: cfg}, nil
}

// Run executes the pipeline for post. It never returns nil.
func (p *Pipeline) Run(ctx context.Context, run *Run, post *content.Post) *PipelineResult {
	start := time.Now()
	ctx = run.Context(ctx)
	svc := run.Service(p.svc)
	logger := run.Logger.Slog()

	result := &PipelineResult{
		RunID: run.ID,
		State: universal.StateDrafting,
		Stats: &universal.ExecutionStats{Strategy: universal.StrategyReflexion},
	}
	cache := tools.NewResultCache(0)
	defer func() {
		result.Duration = time.Since(start)
		result.Stats.TotalDurationMs = result.Duration.Milliseconds()
		run.RecordCache(cache)
		run.Finish(result.State, result.revisions(), result.Err)
	}()

	tasks, err := tools.NewTasks(tools.TasksConfig{
		Service: svc,
		Post:    post,
		Prompts: p.prompts,
		Cache:   cache,
		Logger:  logger,
	})
	if err != nil {
		return result.fail(err, "setup failed: "+err.Error())
	}
	executor, err := p.executor(svc, logger)
	if err != nil {
		return result.fail(err, "setup failed: "+err.Error())
	}

	err = run.Trace.RecordPhase("key_points", func() error {
		points, stats, err := tasks.ExtractKeyPoints(ctx)
		if stats != nil {
			result.Stats.AccumulateLLM(stats)
		}
		result.KeyPoints = points
		return err
	})
	if err != nil {
		return result.fail(err, "key point extraction failed: "+err.Error())
	}
	logger.Info("key points extracted", "count", len(result.KeyPoints))

	steps := []struct {
		kind   string
		prompt string
		gen    func(ctx context.Context) (string, *llm.LLMCallStats, error)
		apply  func(r *universal.ReflexionResult) error
	}{
		{
			kind:   KindSummary,
			prompt: prompts.SummaryUser,
			gen: func(ctx context.Context) (string, *llm.LLMCallStats, error) {
				return tasks.GenerateSummary(ctx, result.KeyPoints)
			},
			apply: func(r *universal.ReflexionResult) error {
				result.Summary = r.Draft.Text
				return nil
			},
		},
		{
			kind:   KindSocial,
			prompt: prompts.SocialUser,
			gen: func(ctx context.Context) (string, *llm.LLMCallStats, error) {
				posts, stats, err := tasks.CreateSocialPosts(ctx, result.KeyPoints)
				return jsonDraft(posts, stats, err)
			},
			apply: func(r *universal.ReflexionResult) error {
				var posts tools.SocialPosts
				if err := decodeDraft(r, &posts); err != nil {
					return err
				}
				result.SocialPosts = &posts
				return nil
			},
		},
		{
			kind:   KindEmail,
			prompt: prompts.NewsletterUser,
			gen: func(ctx context.Context) (string, *llm.LLMCallStats, error) {
				email, stats, err := tasks.CreateNewsletter(ctx, result.Summary, result.KeyPoints)
				return jsonDraft(email, stats, err)
			},
			apply: func(r *universal.ReflexionResult) error {
				var email tools.Newsletter
				if err := decodeDraft(r, &email); err != nil {
					return err
				}
				result.Email = &email
				return nil
			},
		},
	}

	for _, step := range steps {
		taskPrompt, err := p.prompts.Render(step.prompt, taskData{Post: post, KeyPoints: result.KeyPoints, Summary: result.Summary})
		if err != nil {
			return result.fail(err, "render task prompt: "+err.Error())
		}
		task := universal.ReflexionTask{Kind: step.kind, Prompt: taskPrompt, Generate: step.gen}

		var outcome *universal.ReflexionResult
		_ = run.Trace.RecordPhase(step.kind, func() error {
			outcome = executor.Execute(ctx, svc, task)
			return outcome.Err
		})
		result.Artifacts = append(result.Artifacts, outcome)
		result.Stats.Merge(outcome.Stats)

		if len(outcome.Drafts) > 0 {
			if err := step.apply(outcome); err != nil {
				return result.fail(err, fmt.Sprintf("%s: %v", step.kind, err))
			}
		}
		if outcome.State == universal.StateFailed {
			// A missed quality gate still leaves a usable best draft, so the
			// remaining artifacts are produced; any other failure stops here.
			if !errors.Is(outcome.Err, universal.ErrIterationLimit) {
				return result.fail(outcome.Err, fmt.Sprintf("%s: %s", step.kind, outcome.Reason))
			}
			result.State = universal.StateFailed
			result.Err = outcome.Err
			result.Reason = joinReason(result.Reason, fmt.Sprintf("%s: %s", step.kind, outcome.Reason))
		}
	}

	if result.State != universal.StateFailed {
		result.State = universal.StateDone
		result.Reason = "all artifacts passed the quality gate"
	}
	return result
}

func (r *PipelineResult) fail(err error, reason string) *PipelineResult {
	r.State = universal.StateFailed
	r.Err = err
	r.Reason = joinReason(r.Reason, reason)
	return r
}

func (r *PipelineResult) revisions() int {
	total := 0
	for _, a := range r.Artifacts {
		total += a.Revisions
	}
	return total
}

func joinReason(prev, next string) string {
	if prev == "" {
		return next
	}
	return prev + "; " + next
}

// taskData is the template data of the task prompts.
type taskData struct {
	Post      *content.Post
	KeyPoints []string
	Summary   string
}

type judgeData struct {
	Task  universal.ReflexionTask
	Draft universal.Draft
}

type reviseData struct {
	Task     universal.ReflexionTask
	Draft    universal.Draft
	Critique universal.Critique
}

// executor builds the Reflexion executor with judge and revision prompts
// taken from the prompt registry.
func (p *Pipeline) executor(svc llm.Service, logger *slog.Logger) (*universal.ReflexionExecutor, error) {
	judge, err := p.judge(svc)
	if err != nil {
		return nil, err
	}
	reviseSystem, err := p.prompts.Render(prompts.ReviseSystem, nil)
	if err != nil {
		return nil, err
	}
	return universal.NewReflexionExecutor(universal.ReflexionConfig{
		MaxRevisions: p.cfg.MaxRevisions,
		Judge:        judge,
		ReviseSystem: reviseSystem,
		RevisePrompt: func(task universal.ReflexionTask, draft universal.Draft, critique universal.Critique) (string, error) {
			return p.prompts.Render(prompts.ReviseUser, reviseData{Task: task, Draft: draft, Critique: critique})
		},
		Logger: logger,
	})
}

// Judge returns the configured judge bound to svc.
func (p *Pipeline) Judge(svc llm.Service) (universal.Judge, error) {
	return p.judge(svc)
}

func (p *Pipeline) judge(svc llm.Service) (universal.Judge, error) {
	switch p.cfg.Judge {
	case JudgeKeyword:
		system, err := p.prompts.Render(prompts.FeedbackSystem, nil)
		if err != nil {
			return nil, err
		}
		j := universal.NewKeywordJudge(svc, p.cfg.Gate)
		j.SystemPrompt = system
		j.Prompt = p.judgePrompt(prompts.FeedbackUser)
		return j, nil
	default:
		system, err := p.prompts.Render(prompts.ReflectionSystem, nil)
		if err != nil {
			return nil, err
		}
		j := universal.NewLLMJudge(svc, p.cfg.Gate)
		j.SystemPrompt = system
		j.Prompt = p.judgePrompt(prompts.ReflectionUser)
		return j, nil
	}
}

func (p *Pipeline) judgePrompt(name string) universal.PromptFunc {
	return func(task universal.ReflexionTask, draft universal.Draft) (string, error) {
		return p.prompts.Render(name, judgeData{Task: task, Draft: draft})
	}
}

// jsonDraft turns a structured task output into draft text.
func jsonDraft(v any, stats *llm.LLMCallStats, err error) (string, *llm.LLMCallStats, error) {
	if err != nil {
		return "", stats, err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", stats, err
	}
	return string(data), stats, nil
}

// decodeDraft decodes the result draft into v. A revision may break the
// JSON shape; the most recent draft that still decodes is used instead.
func decodeDraft(r *universal.ReflexionResult, v any) error {
	candidates := append([]universal.Draft{r.Draft}, reversed(r.Drafts)...)
	for _, d := range candidates {
		if err := json.Unmarshal([]byte(strutil.ExtractJSONObject(d.Text)), v); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no draft of %s decodes as JSON", r.Kind)
}

func reversed(drafts []universal.Draft) []universal.Draft {
	out := make([]universal.Draft, len(drafts))
	for i, d := range drafts {
		out[len(drafts)-1-i] = d
	}
	return out
}
