package universal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hrygo/repurpose/ai/core/llm"
	"github.com/hrygo/repurpose/ai/internal/strutil"
)

// Draft is one version of a Reflexion artifact. Version 1 is the initial
// draft; every revision adds one.
type Draft struct {
	Text    string
	Version int
}

// Critique is the judgement of exactly one draft version.
type Critique struct {
	DraftVersion int
	Text         string
	Pass         bool
	Score        float64
	Report       *ReflectionReport
	Usage        *llm.LLMCallStats
}

// Judge turns a draft into a critique.
type Judge interface {
	Judge(ctx context.Context, task ReflexionTask, draft Draft) (Critique, error)
}

// JudgeFunc adapts a function to the Judge interface.
type JudgeFunc func(ctx context.Context, task ReflexionTask, draft Draft) (Critique, error)

func (f JudgeFunc) Judge(ctx context.Context, task ReflexionTask, draft Draft) (Critique, error) {
	return f(ctx, task, draft)
}

// PromptFunc renders the user prompt a judge sends for a draft.
type PromptFunc func(task ReflexionTask, draft Draft) (string, error)

// ReflectionReport represents the structured output from reflection phase.
type ReflectionReport struct {
	Accuracy        float64  `json:"accuracy"`     // Information accuracy (0.0-1.0)
	Completeness    float64  `json:"completeness"` // Content completeness (0.0-1.0)
	Clarity         float64  `json:"clarity"`      // Expression clarity (0.0-1.0)
	Issues          []string `json:"issues"`
	Suggestions     []string `json:"suggestions"`
	NeedsRefinement bool     `json:"needs_refinement"`
}

// OverallQuality computes the weighted overall quality score.
func (r *ReflectionReport) OverallQuality() float64 {
	// Accuracy 40%, Completeness 35%, Clarity 25%
	return r.Accuracy*0.4 + r.Completeness*0.35 + r.Clarity*0.25
}

// LLMJudge asks the model for a JSON ReflectionReport and applies a Gate to
// the weighted score.
type LLMJudge struct {
	Service      llm.Service
	Gate         Gate
	SystemPrompt string
	Prompt       PromptFunc
}

// NewLLMJudge creates a structured judge. A nil gate means ThresholdGate(0.8).
func NewLLMJudge(svc llm.Service, gate Gate) *LLMJudge {
	if gate == nil {
		gate = NewThresholdGate(defaultQualityThreshold)
	}
	return &LLMJudge{
		Service:      svc,
		Gate:         gate,
		SystemPrompt: "You are an objective response evaluator. Output only valid JSON.",
		Prompt:       defaultReflectionPrompt,
	}
}

func (j *LLMJudge) Judge(ctx context.Context, task ReflexionTask, draft Draft) (Critique, error) {
	prompt, err := j.Prompt(task, draft)
	if err != nil {
		return Critique{}, fmt.Errorf("render reflection prompt: %w", err)
	}

	response, stats, err := llm.Chat(ctx, j.Service, []llm.Message{
		llm.SystemPrompt(j.SystemPrompt),
		llm.UserMessage(prompt),
	})
	if err != nil {
		return Critique{}, err
	}

	report := parseReflection(response)
	score := report.OverallQuality()
	pass, err := j.Gate.Passes(Assessment{
		Kind:            task.Kind,
		Version:         draft.Version,
		Score:           score,
		Accuracy:        report.Accuracy,
		Completeness:    report.Completeness,
		Clarity:         report.Clarity,
		Issues:          report.Issues,
		NeedsRefinement: report.NeedsRefinement,
	})
	if err != nil {
		return Critique{}, err
	}

	return Critique{
		DraftVersion: draft.Version,
		Text:         formatReport(report),
		Pass:         pass,
		Score:        score,
		Report:       report,
		Usage:        stats,
	}, nil
}

// parseReflection decodes the model output. Unparseable output becomes a
// low-quality report so the draft gets revised.
func parseReflection(response string) *ReflectionReport {
	var report ReflectionReport
	if err := json.Unmarshal([]byte(strutil.ExtractJSONObject(response)), &report); err != nil {
		slog.Warn("failed to parse reflection JSON", "error", err, "response", strutil.Truncate(response, 200))
		return &ReflectionReport{
			Accuracy:        0.5,
			Completeness:    0.5,
			Clarity:         0.5,
			Issues:          []string{"Failed to parse reflection output"},
			Suggestions:     []string{"Please review and improve the response"},
			NeedsRefinement: true,
		}
	}
	return &report
}

func formatReport(r *ReflectionReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Quality: Accuracy=%.2f, Completeness=%.2f, Clarity=%.2f\n", r.Accuracy, r.Completeness, r.Clarity)
	if len(r.Issues) > 0 {
		sb.WriteString("\nIssues to address:\n- ")
		sb.WriteString(strings.Join(r.Issues, "\n- "))
		sb.WriteString("\n")
	}
	if len(r.Suggestions) > 0 {
		sb.WriteString("\nSuggestions:\n- ")
		sb.WriteString(strings.Join(r.Suggestions, "\n- "))
		sb.WriteString("\n")
	}
	return sb.String()
}

// KeywordJudge asks for free-form feedback and scores 0.9 when the feedback
// contains Keyword, 0.6 otherwise.
type KeywordJudge struct {
	Service      llm.Service
	Gate         Gate
	Keyword      string
	SystemPrompt string
	Prompt       PromptFunc
}

// NewKeywordJudge creates a keyword judge looking for "good".
func NewKeywordJudge(svc llm.Service, gate Gate) *KeywordJudge {
	if gate == nil {
		gate = NewThresholdGate(defaultQualityThreshold)
	}
	return &KeywordJudge{
		Service:      svc,
		Gate:         gate,
		Keyword:      "good",
		SystemPrompt: "Evaluate quality and give feedback.",
		Prompt:       defaultFeedbackPrompt,
	}
}

func (j *KeywordJudge) Judge(ctx context.Context, task ReflexionTask, draft Draft) (Critique, error) {
	prompt, err := j.Prompt(task, draft)
	if err != nil {
		return Critique{}, fmt.Errorf("render feedback prompt: %w", err)
	}

	feedback, stats, err := llm.Chat(ctx, j.Service, []llm.Message{
		llm.SystemPrompt(j.SystemPrompt),
		llm.UserMessage(prompt),
	})
	if err != nil {
		return Critique{}, err
	}

	score := 0.6
	if strings.Contains(strings.ToLower(feedback), strings.ToLower(j.Keyword)) {
		score = 0.9
	}
	pass, err := j.Gate.Passes(Assessment{
		Kind:            task.Kind,
		Version:         draft.Version,
		Score:           score,
		NeedsRefinement: score < defaultQualityThreshold,
	})
	if err != nil {
		return Critique{}, err
	}

	return Critique{
		DraftVersion: draft.Version,
		Text:         feedback,
		Pass:         pass,
		Score:        score,
		Usage:        stats,
	}, nil
}

func defaultReflectionPrompt(task ReflexionTask, draft Draft) (string, error) {
	return fmt.Sprintf("%s\n\n## Task\n%s\n\n## %s to Evaluate\n%s\n\nOutput ONLY valid JSON, no other text.",
		reflectionInstructions, task.Prompt, task.label(), draft.Text), nil
}

func defaultFeedbackPrompt(task ReflexionTask, draft Draft) (string, error) {
	return fmt.Sprintf("Evaluate this %s:\n%s", task.label(), draft.Text), nil
}

const reflectionInstructions = `Evaluate the following content objectively and output JSON:

## Evaluation Criteria

1. **Accuracy** (0.0-1.0): Is it faithful to the source? Any hallucinations or errors?
2. **Completeness** (0.0-1.0): Does it cover every important point for its format?
3. **Clarity** (0.0-1.0): Is it well-structured and easy to read for its audience?

## Output Format

{
  "accuracy": 0.0-1.0,
  "completeness": 0.0-1.0,
  "clarity": 0.0-1.0,
  "issues": ["specific issue 1", "specific issue 2"],
  "suggestions": ["improvement suggestion 1"],
  "needs_refinement": true/false
}`
