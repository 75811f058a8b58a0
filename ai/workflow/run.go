// Package workflow runs the repurposing workflows: the Reflexion pipeline,
// the tool-calling agent and their comparison.
package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hrygo/repurpose/ai/agent/registry"
	"github.com/hrygo/repurpose/ai/agent/universal"
	"github.com/hrygo/repurpose/ai/agents/tools"
	"github.com/hrygo/repurpose/ai/core/llm"
	"github.com/hrygo/repurpose/ai/internal/strutil"
	"github.com/hrygo/repurpose/ai/metrics"
	"github.com/hrygo/repurpose/ai/observability/logging"
	"github.com/hrygo/repurpose/ai/tracing"
)

// Workflow names, used as log fields and metric labels.
const (
	WorkflowPipeline = "pipeline"
	WorkflowAgent    = "agent"
	WorkflowCompare  = "compare"
)

// Env is the process-wide wiring shared by runs. Nothing in it is mutated
// by a run.
type Env struct {
	Logger   *logging.Logger
	Metrics  *metrics.PrometheusExporter
	Exporter tracing.Exporter
	Provider string
	Model    string
}

// Run is the per-invocation context: identity, logger, trace and metrics.
type Run struct {
	ID       string
	Workflow string
	Logger   *logging.Logger
	Trace    *tracing.Trace

	env Env
}

// NewRun starts a run of workflow.
func NewRun(workflow string, env Env) *Run {
	if env.Logger == nil {
		env.Logger = logging.Discard()
	}
	id := uuid.NewString()
	trace := tracing.New(workflow)
	trace.SetTag("run_id", id)
	return &Run{
		ID:       id,
		Workflow: workflow,
		Logger:   env.Logger.WithFields(map[string]any{"run_id": id, "workflow": workflow}),
		Trace:    trace,
		env:      env,
	}
}

// Child starts a run of workflow that shares this run's environment.
func (r *Run) Child(workflow string) *Run {
	child := NewRun(workflow, r.env)
	child.Trace.SetTag("parent_run_id", r.ID)
	return child
}

// Context attaches the run's logger and trace to ctx.
func (r *Run) Context(ctx context.Context) context.Context {
	return tracing.WithContext(logging.ToContext(ctx, r.Logger), r.Trace)
}

// Service wraps svc so that every completion is recorded in the run's trace
// and metrics.
func (r *Run) Service(svc llm.Service) llm.Service {
	return llm.ServiceFunc(func(ctx context.Context, req *llm.Request) (*llm.ChatResponse, *llm.LLMCallStats, error) {
		start := time.Now()
		resp, stats, err := svc.Complete(ctx, req)
		elapsed := time.Since(start)

		call := tracing.LLMCall{Provider: r.env.Provider, Model: r.env.Model, Start: start, Duration: elapsed}
		if stats != nil {
			call.PromptTokens = stats.PromptTokens
			call.CompletionTokens = stats.CompletionTokens
			call.CachedTokens = stats.CacheReadTokens
		}
		r.Trace.RecordLLMCall(call, err)

		if m := r.env.Metrics; m != nil {
			m.RecordLLMRequest(r.env.Provider, elapsed, err == nil)
			if stats != nil {
				m.RecordLLMTokens(r.env.Model, "prompt", stats.PromptTokens)
				m.RecordLLMTokens(r.env.Model, "completion", stats.CompletionTokens)
				m.RecordLLMTokens(r.env.Model, "cached", stats.CacheReadTokens)
			}
		}
		if err != nil {
			r.Logger.Debug("completion failed", "duration_ms", elapsed.Milliseconds(), "error", err)
		}
		return resp, stats, err
	})
}

// ObserveTools records every dispatched tool call of reg.
func (r *Run) ObserveTools(reg *registry.ToolRegistry) {
	reg.Observe(func(res registry.Result, elapsed time.Duration) {
		r.Trace.RecordToolCall(tracing.ToolCall{
			Name:     res.Name,
			Output:   strutil.Truncate(res.Output, 200),
			Start:    time.Now().Add(-elapsed),
			Duration: elapsed,
		}, res.Err)
		if m := r.env.Metrics; m != nil {
			m.RecordToolCall(res.Name, elapsed, !res.Failed())
		}
	})
}

// RecordCache exports the hit and miss counts of cache.
func (r *Run) RecordCache(cache *tools.ResultCache) {
	m := r.env.Metrics
	if m == nil {
		return
	}
	for task, st := range cache.Stats() {
		m.RecordCacheStats(task, st.Hits, st.Misses)
	}
}

// Finish records the terminal state, closes the trace and exports it.
func (r *Run) Finish(state universal.State, iterations int, err error) {
	if m := r.env.Metrics; m != nil {
		m.RecordOutcome(r.Workflow, string(state), iterations)
	}
	r.Trace.Finish(err)
	if r.env.Exporter != nil {
		r.env.Exporter.Export(r.Trace)
	}
	r.Logger.Info("run finished",
		"state", state,
		"iterations", iterations,
		"duration_ms", r.Trace.Duration().Milliseconds())
}
