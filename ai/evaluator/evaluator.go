// Package evaluator compares two workflow outputs with one completion call
// and returns per-criterion scores and an overall verdict.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hrygo/repurpose/ai/core/llm"
	"github.com/hrygo/repurpose/ai/internal/strutil"
	"github.com/hrygo/repurpose/ai/prompts"
)

// Verdict names the better output.
type Verdict string

const (
	VerdictA   Verdict = "a"
	VerdictB   Verdict = "b"
	VerdictTie Verdict = "tie"
)

// DefaultCriteria are used when Evaluate is given none.
var DefaultCriteria = []string{"correctness", "conciseness", "tool-use efficiency"}

// Output is one side of a comparison.
type Output struct {
	Label string
	Text  string
}

// Evaluation is the structured result of a comparison.
type Evaluation struct {
	Criteria  []string           `json:"criteria"`
	ScoresA   map[string]float64 `json:"scores_a"`
	ScoresB   map[string]float64 `json:"scores_b"`
	Verdict   Verdict            `json:"verdict"`
	Rationale string             `json:"rationale"`

	Usage *llm.LLMCallStats `json:"-"`
}

// TotalA sums the scores of output A.
func (e *Evaluation) TotalA() float64 { return sum(e.ScoresA) }

// TotalB sums the scores of output B.
func (e *Evaluation) TotalB() float64 { return sum(e.ScoresB) }

func sum(scores map[string]float64) float64 {
	total := 0.0
	for _, v := range scores {
		total += v
	}
	return total
}

// VerdictError reports a completion that did not contain a usable verdict.
type VerdictError struct {
	Reason string
	Raw    string
}

func (e *VerdictError) Error() string {
	return "unusable verdict: " + e.Reason
}

// Renderer renders named prompt templates.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// Evaluator issues the comparison call.
type Evaluator struct {
	svc     llm.Service
	prompts Renderer
}

// New creates an evaluator.
func New(svc llm.Service, prompts Renderer) *Evaluator {
	return &Evaluator{svc: svc, prompts: prompts}
}

type promptData struct {
	Criteria []string
	LabelA   string
	LabelB   string
	OutputA  string
	OutputB  string
}

// verdictResponse is the JSON the model is asked to return.
type verdictResponse struct {
	Scores struct {
		A map[string]float64 `json:"a"`
		B map[string]float64 `json:"b"`
	} `json:"scores"`
	Verdict   string `json:"verdict"`
	Rationale string `json:"rationale"`
}

// Evaluate compares a and b along criteria. Errors from the completion
// service are returned unchanged; a response without a usable verdict is a
// *VerdictError.
func (e *Evaluator) Evaluate(ctx context.Context, a, b Output, criteria []string) (*Evaluation, error) {
	if len(criteria) == 0 {
		criteria = DefaultCriteria
	}
	data := promptData{
		Criteria: criteria,
		LabelA:   labelOr(a.Label, "A"),
		LabelB:   labelOr(b.Label, "B"),
		OutputA:  a.Text,
		OutputB:  b.Text,
	}
	system, err := e.prompts.Render(prompts.EvaluatorSystem, data)
	if err != nil {
		return nil, err
	}
	user, err := e.prompts.Render(prompts.EvaluatorUser, data)
	if err != nil {
		return nil, err
	}

	text, stats, err := llm.Chat(ctx, e.svc, []llm.Message{
		llm.SystemPrompt(system),
		llm.UserMessage(user),
	})
	if err != nil {
		return nil, err
	}

	eval, err := parseVerdict(text, criteria)
	if err != nil {
		return nil, err
	}
	eval.Usage = stats
	return eval, nil
}

func parseVerdict(text string, criteria []string) (*Evaluation, error) {
	var resp verdictResponse
	if err := json.Unmarshal([]byte(strutil.ExtractJSONObject(text)), &resp); err != nil {
		return nil, &VerdictError{Reason: "response is not JSON", Raw: text}
	}

	verdict := Verdict(strings.ToLower(strings.TrimSpace(resp.Verdict)))
	switch verdict {
	case VerdictA, VerdictB, VerdictTie:
	default:
		return nil, &VerdictError{Reason: fmt.Sprintf("unknown verdict %q", resp.Verdict), Raw: text}
	}

	eval := &Evaluation{
		Criteria:  criteria,
		ScoresA:   make(map[string]float64, len(criteria)),
		ScoresB:   make(map[string]float64, len(criteria)),
		Verdict:   verdict,
		Rationale: strings.TrimSpace(resp.Rationale),
	}
	var missing []string
	for _, c := range criteria {
		sa, okA := resp.Scores.A[c]
		sb, okB := resp.Scores.B[c]
		if !okA || !okB {
			missing = append(missing, c)
			continue
		}
		eval.ScoresA[c] = sa
		eval.ScoresB[c] = sb
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &VerdictError{Reason: "missing scores for " + strings.Join(missing, ", "), Raw: text}
	}
	return eval, nil
}

func labelOr(label, fallback string) string {
	if label == "" {
		return fallback
	}
	return label
}
