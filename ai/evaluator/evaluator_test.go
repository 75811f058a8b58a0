package evaluator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/repurpose/ai/core/llm"
	"github.com/hrygo/repurpose/ai/core/llm/llmtest"
	"github.com/hrygo/repurpose/ai/prompts"
)

const verdictJSON = `{"scores": {"a": {"correctness": 8, "conciseness": 6, "tool-use efficiency": 9},
 "b": {"correctness": 7, "conciseness": 8, "tool-use efficiency": 5}}, "verdict": "A", "rationale": " A is more faithful. "}`

func newEvaluator(t *testing.T, svc llm.Service) *Evaluator {
	t.Helper()
	reg, err := prompts.Load("")
	require.NoError(t, err)
	return New(svc, reg)
}

func TestEvaluate(t *testing.T) {
	svc := llmtest.NewScripted(llmtest.Text("Here you go:\n```json\n" + verdictJSON + "\n```"))
	e := newEvaluator(t, svc)

	eval, err := e.Evaluate(context.Background(),
		Output{Label: "reflexion", Text: "summary one"},
		Output{Label: "agent", Text: "summary two"},
		nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultCriteria, eval.Criteria)
	assert.Equal(t, VerdictA, eval.Verdict)
	assert.Equal(t, "A is more faithful.", eval.Rationale)
	assert.Equal(t, 23.0, eval.TotalA())
	assert.Equal(t, 20.0, eval.TotalB())
	require.NotNil(t, eval.Usage)

	reqs := svc.Requests()
	require.Len(t, reqs, 1)
	user := reqs[0].Messages[1].Content
	assert.Contains(t, user, "## Output A (reflexion)")
	assert.Contains(t, user, "summary two")
	assert.Contains(t, user, "- tool-use efficiency")
	assert.Empty(t, reqs[0].Tools)
}

func TestEvaluate_AdapterErrorsPropagateUnchanged(t *testing.T) {
	fatal := &llm.FatalAPIError{Provider: "openai", StatusCode: 401, Err: errors.New("bad key")}
	e := newEvaluator(t, llmtest.NewScripted(llmtest.Fail(fatal)))

	_, err := e.Evaluate(context.Background(), Output{Text: "a"}, Output{Text: "b"}, []string{"correctness"})
	assert.Same(t, fatal, err)
}

func TestEvaluate_UnusableVerdict(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		reason string
	}{
		{"not json", "A is better", "response is not JSON"},
		{"unknown verdict", `{"scores":{"a":{"correctness":1},"b":{"correctness":2}},"verdict":"both"}`, `unknown verdict "both"`},
		{"missing score", `{"scores":{"a":{"correctness":1},"b":{}},"verdict":"tie"}`, "missing scores for correctness"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEvaluator(t, llmtest.NewScripted(llmtest.Text(tt.reply)))
			_, err := e.Evaluate(context.Background(), Output{Text: "a"}, Output{Text: "b"}, []string{"correctness"})

			var verr *VerdictError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.reason, verr.Reason)
			assert.Equal(t, tt.reply, verr.Raw)
		})
	}
}

func TestEvaluate_DefaultLabels(t *testing.T) {
	svc := llmtest.NewScripted(llmtest.Text(`{"scores":{"a":{"c":1},"b":{"c":1}},"verdict":"tie"}`))
	e := newEvaluator(t, svc)

	eval, err := e.Evaluate(context.Background(), Output{Text: "x"}, Output{Text: "y"}, []string{"c"})
	require.NoError(t, err)
	assert.Equal(t, VerdictTie, eval.Verdict)
	assert.Contains(t, svc.Requests()[0].Messages[1].Content, "## Output B (B)")
}
