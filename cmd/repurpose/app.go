package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/hrygo/repurpose/ai/agent/registry"
	"github.com/hrygo/repurpose/ai/agent/universal"
	"github.com/hrygo/repurpose/ai/content"
	"github.com/hrygo/repurpose/ai/core/llm"
	"github.com/hrygo/repurpose/ai/format"
	"github.com/hrygo/repurpose/ai/metrics"
	"github.com/hrygo/repurpose/ai/observability/logging"
	"github.com/hrygo/repurpose/ai/prompts"
	"github.com/hrygo/repurpose/ai/tracing"
	"github.com/hrygo/repurpose/ai/workflow"
	"github.com/hrygo/repurpose/internal/profile"
)

type command string

const (
	commandPipeline command = workflow.WorkflowPipeline
	commandAgent    command = workflow.WorkflowAgent
	commandCompare  command = workflow.WorkflowCompare
)

const transcriptWidth = 150

// signalContext returns a context cancelled by the first termination signal.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), terminationSignals...)
}

// app is everything a command needs, built from flags and environment.
type app struct {
	logger  *logging.Logger
	metrics *metrics.PrometheusExporter
	profile *profile.Profile
	svc     llm.Service
	prompts *registry.PromptRegistry
	post    *content.Post
	format  format.Kind
	stdout  io.Writer
	stderr  io.Writer
}

func newApp() (*app, error) {
	level, err := logging.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return nil, err
	}
	handler, err := logging.NewHandler(logging.Options{
		Level:  level,
		Format: logging.Format(viper.GetString("log-format")),
		Output: os.Stderr,
	})
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(handler)

	kind, err := format.ParseKind(viper.GetString("format"))
	if err != nil {
		return nil, err
	}

	p := &profile.Profile{}
	p.FromEnv()
	if v := viper.GetString("provider"); v != "" {
		p.LLMProvider = v
	}
	if v := viper.GetString("model"); v != "" {
		p.LLMModel = v
	}
	if v := viper.GetString("base-url"); v != "" {
		p.LLMBaseURL = v
	}
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	post, err := content.LoadPost(viper.GetString("post"))
	if err != nil {
		return nil, err
	}
	reg, err := prompts.Load(viper.GetString("prompts"))
	if err != nil {
		return nil, err
	}

	a := &app{
		logger:  logger.WithField("provider", p.LLMProvider),
		metrics: metrics.NewPrometheusExporter(metrics.DefaultConfig()),
		profile: p,
		prompts: reg,
		post:    post,
		format:  kind,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
	if a.svc, err = a.service(); err != nil {
		return nil, err
	}
	return a, nil
}

// service builds the provider client, rate limited when --rps is set and
// wrapped in the retry policy.
func (a *app) service() (llm.Service, error) {
	base, err := llm.NewService(a.profile.LLMConfig())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create LLM client")
	}
	if rps := viper.GetFloat64("rps"); rps > 0 {
		base = llm.WithRateLimit(base, rps, 1)
	}

	policy := llm.DefaultRetryPolicy()
	policy.MaxRetries = viper.GetInt("max-retries")
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		a.metrics.RecordRetry(a.profile.LLMProvider)
		a.logger.Warn("retrying completion", "attempt", attempt, "delay", delay, "error", err)
	}
	return llm.WithRetry(base, policy), nil
}

func (a *app) env() workflow.Env {
	return workflow.Env{
		Logger:   a.logger,
		Metrics:  a.metrics,
		Exporter: tracing.NewLogExporter(a.logger.Slog()),
		Provider: a.profile.LLMProvider,
		Model:    a.profile.LLMModel,
	}
}

func gate() (universal.Gate, error) {
	if expr := viper.GetString("gate"); expr != "" {
		return universal.NewCELGate(expr)
	}
	return universal.NewThresholdGate(viper.GetFloat64("quality-threshold")), nil
}

func pipelineConfig() (workflow.PipelineConfig, error) {
	judge, err := workflow.ParseJudgeKind(viper.GetString("judge"))
	if err != nil {
		return workflow.PipelineConfig{}, err
	}
	g, err := gate()
	if err != nil {
		return workflow.PipelineConfig{}, err
	}
	return workflow.PipelineConfig{
		MaxRevisions: viper.GetInt("max-revisions"),
		Judge:        judge,
		Gate:         g,
	}, nil
}

// runWorkflow runs one command end to end and prints its report. A FAILED
// terminal state returns errRunFailed.
func runWorkflow(ctx context.Context, cmd command) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	pcfg, err := pipelineConfig()
	if err != nil {
		return err
	}
	acfg := workflow.AgentConfig{MaxSteps: viper.GetInt("max-steps")}
	run := workflow.NewRun(string(cmd), a.env())
	a.logger.Info("starting run",
		"run_id", run.ID,
		"workflow", cmd,
		"model", a.profile.LLMModel,
		"post", a.post.Title,
		"words", a.post.WordCount())
	if g, ok := pcfg.Gate.(*universal.CELGate); ok {
		a.logger.Info("quality gate", "expression", g.Expression())
	}

	var (
		report    *format.Report
		state     universal.State
		agentRuns []*workflow.AgentResult
	)
	switch cmd {
	case commandPipeline:
		p, err := workflow.NewPipeline(a.svc, a.prompts, pcfg)
		if err != nil {
			return err
		}
		res := p.Run(ctx, run, a.post)
		report, state = res.Report(), res.State
	case commandAgent:
		ag, err := workflow.NewAgent(a.svc, a.prompts, acfg)
		if err != nil {
			return err
		}
		res := ag.Run(ctx, run, a.post)
		report, state = res.Report(), res.State
		agentRuns = append(agentRuns, res)
	case commandCompare:
		c, err := workflow.NewCompare(a.svc, a.prompts, workflow.CompareConfig{Pipeline: pcfg, Agent: acfg})
		if err != nil {
			return err
		}
		res := c.Run(ctx, run, a.post)
		report, state = res.Report(), res.State
		if res.Agent != nil {
			agentRuns = append(agentRuns, res.Agent)
		}
	default:
		return errors.Errorf("unknown command %q", cmd)
	}

	if viper.GetBool("transcript") {
		for _, r := range agentRuns {
			if err := workflow.WriteTranscript(a.stderr, r.Transcript, transcriptWidth); err != nil {
				return err
			}
		}
	}
	if err := format.Write(a.stdout, report, a.format, format.Options{}); err != nil {
		return errors.Wrap(err, "failed to write report")
	}
	if viper.GetBool("metrics") {
		if err := a.metrics.WriteText(a.stderr); err != nil {
			return errors.Wrap(err, "failed to write metrics")
		}
	}

	if state == universal.StateFailed {
		return errRunFailed
	}
	return nil
}

// listPrompts prints one line per prompt template: name, version and
// whether it is enabled.
func listPrompts(w io.Writer, reg *registry.PromptRegistry) error {
	for _, name := range reg.ListPrompts() {
		p, ok := reg.GetPrompt(name)
		if !ok {
			continue
		}
		state := "enabled"
		if !p.Enabled {
			state = "disabled"
		}
		if _, err := fmt.Fprintf(w, "%s\tv%s\t%s\n", name, p.Version, state); err != nil {
			return err
		}
	}
	return nil
}
