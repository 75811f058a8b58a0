package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/repurpose/ai/agent/registry"
	"github.com/hrygo/repurpose/ai/agent/universal"
	"github.com/hrygo/repurpose/ai/agents/tools"
	"github.com/hrygo/repurpose/ai/content"
	"github.com/hrygo/repurpose/ai/core/llm"
	"github.com/hrygo/repurpose/ai/evaluator"
)

// Output labels used in the comparative prompt.
const (
	LabelPipeline = "reflexion"
	LabelAgent    = "agent"
)

// FieldScore is the judge's view of one artifact.
type FieldScore struct {
	Score    float64 `json:"quality_score"`
	Pass     bool    `json:"pass"`
	Feedback string  `json:"feedback"`
}

// FieldScores scores every artifact of one output.
type FieldScores struct {
	Summary FieldScore `json:"summary"`
	Social  FieldScore `json:"social"`
	Email   FieldScore `json:"email"`
}

// CompareResult is the outcome of a comparison run.
type CompareResult struct {
	RunID  string
	State  universal.State
	Reason string
	Err    error

	Pipeline *PipelineResult
	Agent    *AgentResult

	PipelineScores *FieldScores
	AgentScores    *FieldScores
	Evaluation     *evaluator.Evaluation
	Duration       time.Duration
}

// CompareConfig configures a comparison.
type CompareConfig struct {
	Pipeline PipelineConfig
	Agent    AgentConfig
	// Criteria are passed to the evaluator; empty uses its defaults.
	Criteria []string
}

// Compare runs the pipeline and the agent on the same post, scores each
// artifact with the pipeline's judge and asks for a comparative verdict.
type Compare struct {
	svc      llm.Service
	pipeline *Pipeline
	agent    *Agent
	prompts  *registry.PromptRegistry
	criteria []string
}

// NewCompare creates a comparison workflow.
func NewCompare(svc llm.Service, prompts *registry.PromptRegistry, cfg CompareConfig) (*Compare, error) {
	pipeline, err := NewPipeline(svc, prompts, cfg.Pipeline)
	if err != nil {
		return nil, err
	}
	agent, err := NewAgent(svc, prompts, cfg.Agent)
	if err != nil {
		return nil, err
	}
	return &Compare{
		svc:      svc,
		pipeline: pipeline,
		agent:    agent,
		prompts:  prompts,
		criteria: cfg.Criteria,
	}, nil
}

// Run executes both workflows concurrently, then evaluates them. It never
// returns nil. The result is FAILED when either workflow failed or any
// evaluation call failed; whatever was produced is still returned.
func (c *Compare) Run(ctx context.Context, run *Run, post *content.Post) *CompareResult {
	start := time.Now()
	ctx = run.Context(ctx)
	logger := run.Logger.Slog()

	result := &CompareResult{RunID: run.ID, State: universal.StateDone}
	defer func() {
		result.Duration = time.Since(start)
		run.Finish(result.State, 0, result.Err)
	}()
	fail := func(err error, reason string) {
		result.State = universal.StateFailed
		if result.Err == nil {
			result.Err = err
		}
		result.Reason = joinReason(result.Reason, reason)
	}

	// A fatal adapter error in one workflow cancels the other.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result.Pipeline = c.pipeline.Run(gctx, run.Child(WorkflowPipeline), post)
		if llm.IsFatal(result.Pipeline.Err) {
			return result.Pipeline.Err
		}
		return nil
	})
	g.Go(func() error {
		result.Agent = c.agent.Run(gctx, run.Child(WorkflowAgent), post)
		if llm.IsFatal(result.Agent.Err) {
			return result.Agent.Err
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		fail(err, "workflow aborted: "+err.Error())
		return result
	}

	if result.Pipeline.State == universal.StateFailed {
		fail(result.Pipeline.Err, "pipeline: "+result.Pipeline.Reason)
	}
	if result.Agent.State == universal.StateFailed {
		fail(result.Agent.Err, "agent: "+result.Agent.Reason)
	}

	svc := run.Service(c.svc)
	judge, err := c.pipeline.Judge(svc)
	if err != nil {
		fail(err, "judge setup: "+err.Error())
		return result
	}

	pipelineBundle := result.Pipeline.Bundle()
	agentBundle := result.Agent.Bundle
	if agentBundle == nil {
		agentBundle = &tools.Bundle{}
	}

	err = run.Trace.RecordPhase("field_scores", func() error {
		var err error
		if result.PipelineScores, err = scoreFields(ctx, judge, pipelineBundle); err != nil {
			return err
		}
		result.AgentScores, err = scoreFields(ctx, judge, agentBundle)
		return err
	})
	if err != nil {
		fail(err, "field evaluation failed: "+err.Error())
		return result
	}

	err = run.Trace.RecordPhase("verdict", func() error {
		var err error
		result.Evaluation, err = evaluator.New(svc, c.prompts).Evaluate(ctx,
			evaluator.Output{Label: LabelPipeline, Text: indentJSON(pipelineBundle)},
			evaluator.Output{Label: LabelAgent, Text: indentJSON(agentBundle)},
			c.criteria)
		return err
	})
	if err != nil {
		fail(err, "comparative evaluation failed: "+err.Error())
		return result
	}

	logger.Info("comparison finished",
		"verdict", result.Evaluation.Verdict,
		"total_reflexion", result.Evaluation.TotalA(),
		"total_agent", result.Evaluation.TotalB())
	if result.State != universal.StateFailed {
		result.Reason = fmt.Sprintf("verdict: %s", result.Evaluation.Verdict)
	}
	return result
}

// scoreFields judges each artifact of b once, as a version 1 draft.
func scoreFields(ctx context.Context, judge universal.Judge, b *tools.Bundle) (*FieldScores, error) {
	scores := &FieldScores{}
	fields := []struct {
		kind string
		text string
		dst  *FieldScore
	}{
		{KindSummary, b.Summary, &scores.Summary},
		{KindSocial, indentJSON(orEmpty(b.SocialPosts)), &scores.Social},
		{KindEmail, indentJSON(orEmpty(b.Email)), &scores.Email},
	}

	for _, f := range fields {
		critique, err := judge.Judge(ctx,
			universal.ReflexionTask{Kind: f.kind},
			universal.Draft{Text: f.text, Version: 1})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.kind, err)
		}
		*f.dst = FieldScore{Score: critique.Score, Pass: critique.Pass, Feedback: critique.Text}
	}
	return scores, nil
}

// orEmpty turns a nil artifact into an empty JSON object.
func orEmpty[T any](v *T) any {
	if v == nil {
		return map[string]any{}
	}
	return v
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
