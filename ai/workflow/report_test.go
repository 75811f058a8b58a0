package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/repurpose/ai/agent/universal"
	"github.com/hrygo/repurpose/ai/agents/tools"
	"github.com/hrygo/repurpose/ai/evaluator"
	"github.com/hrygo/repurpose/ai/format"
)

func TestPipelineResult_Report(t *testing.T) {
	r := &PipelineResult{
		RunID:       "run-1",
		State:       universal.StateFailed,
		Reason:      "summary: quality gate not met after 3 revisions",
		Err:         universal.ErrIterationLimit,
		KeyPoints:   []string{"scans"},
		Summary:     "Models read scans.",
		SocialPosts: &tools.SocialPosts{Twitter: "t", LinkedIn: "l", Facebook: "f"},
		Artifacts: []*universal.ReflexionResult{{
			Kind:      KindSummary,
			State:     universal.StateFailed,
			Revisions: 3,
			Draft:     universal.Draft{Text: "x", Version: 2},
			Critiques: []universal.Critique{{DraftVersion: 1, Score: 0.5}, {DraftVersion: 2, Score: 0.7}},
		}},
		Stats: &universal.ExecutionStats{LLMCalls: 9, TotalTokens: 135},
	}

	rep := r.Report()
	text := rep.Text()
	assert.Contains(t, text, "State: FAILED")
	assert.Contains(t, text, "Error: iteration limit exceeded")
	assert.Contains(t, text, "Usage: 9 LLM calls, 135 tokens, 0 tool calls")
	assert.Contains(t, text, "Twitter: t")
	assert.Contains(t, text, "summary: FAILED after 3 revisions, score 0.70")
	assert.NotContains(t, text, "Email")

	var buf bytes.Buffer
	require.NoError(t, format.Write(&buf, rep, format.KindJSON, format.Options{}))
	var data map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Equal(t, "FAILED", data["state"])
	assert.Equal(t, "Models read scans.", data["summary"])
	assert.Nil(t, data["email"])
	assert.Equal(t, "t", data["social_media"].(map[string]any)["twitter"])
}

func TestAgentResult_Report(t *testing.T) {
	r := &AgentResult{
		RunID:   "run-2",
		State:   universal.StateFinished,
		Partial: true,
		Steps:   1,
		Bundle:  &tools.Bundle{Summary: "s"},
	}

	text := r.Report().Text()
	assert.Contains(t, text, "Note: finish was not called")
	assert.Contains(t, text, "Steps: 1")
	assert.Contains(t, text, "Summary\n-------\ns\n")
}

func TestCompareResult_Report(t *testing.T) {
	r := &CompareResult{
		RunID:          "run-3",
		State:          universal.StateFailed,
		Err:            errors.New("boom"),
		Pipeline:       &PipelineResult{State: universal.StateDone},
		Agent:          &AgentResult{State: universal.StateFailed},
		PipelineScores: &FieldScores{Summary: FieldScore{Score: 0.9, Pass: true, Feedback: "Quality:\n fine"}},
		Evaluation: &evaluator.Evaluation{
			Criteria:  []string{"correctness"},
			ScoresA:   map[string]float64{"correctness": 8},
			ScoresB:   map[string]float64{"correctness": 6},
			Verdict:   evaluator.VerdictA,
			Rationale: "Reflexion is more faithful.",
		},
	}

	rep := r.Report()
	text := rep.Text()
	assert.Contains(t, text, "Reflexion: DONE")
	assert.Contains(t, text, "Agent: FAILED")
	assert.Contains(t, text, "summary: 0.90 (pass) Quality: fine")
	assert.NotContains(t, text, "Agent artifact scores")
	assert.Contains(t, text, "Winner: reflexion")
	assert.Contains(t, text, "correctness: reflexion 8.0, agent 6.0")

	data, err := json.Marshal(rep.Data)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"reflexion_eval":{"summary":{"quality_score":0.9`)
	assert.Contains(t, string(data), `"error":"boom"`)
}
