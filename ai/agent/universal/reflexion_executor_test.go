package universal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/repurpose/ai/core/llm"
	"github.com/hrygo/repurpose/ai/core/llm/llmtest"
)

// scoreJudge returns a judge that scores drafts from a fixed sequence and
// passes when the score reaches 0.8. Past the sequence it repeats the last score.
func scoreJudge(scores ...float64) (Judge, *int) {
	calls := 0
	return JudgeFunc(func(_ context.Context, _ ReflexionTask, d Draft) (Critique, error) {
		score := scores[len(scores)-1]
		if calls < len(scores) {
			score = scores[calls]
		}
		calls++
		return Critique{
			DraftVersion: d.Version,
			Text:         fmt.Sprintf("feedback for v%d", d.Version),
			Pass:         score >= 0.8,
			Score:        score,
		}, nil
	}), &calls
}

func newReflexion(t *testing.T, judge Judge, maxRevisions int) *ReflexionExecutor {
	t.Helper()
	exec, err := NewReflexionExecutor(ReflexionConfig{MaxRevisions: maxRevisions, Judge: judge})
	require.NoError(t, err)
	return exec
}

func draftScript(n int) *llmtest.Scripted {
	responses := make([]llmtest.Response, n)
	for i := range responses {
		responses[i] = llmtest.Text(fmt.Sprintf("draft v%d", i+1))
	}
	return llmtest.NewScripted(responses...)
}

var summaryTask = ReflexionTask{Kind: "summary", System: "Summarize given points.", Prompt: "Summarize:\n- a\n- b"}

// TestReflexionExecutor_Config tests constructor defaults.
func TestReflexionExecutor_Config(t *testing.T) {
	_, err := NewReflexionExecutor(ReflexionConfig{})
	assert.Error(t, err)

	judge, _ := scoreJudge(1)
	tests := []struct {
		name     string
		max      int
		expected int
	}{
		{"zero", 0, 3},
		{"negative", -5, 3},
		{"one", 1, 1},
		{"five", 5, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newReflexion(t, judge, tt.max)
			assert.Equal(t, tt.expected, exec.MaxRevisions())
			assert.Equal(t, "reflexion", exec.Name())
		})
	}
}

// TestReflexionExecutor_AlwaysFail tests the worst case: a judge that never
// passes ends in FAILED after exactly MaxRevisions revisions.
func TestReflexionExecutor_AlwaysFail(t *testing.T) {
	judge, judgeCalls := scoreJudge(0.6)
	svc := draftScript(4)
	exec := newReflexion(t, judge, 3)

	result := exec.Execute(context.Background(), svc, summaryTask)

	assert.Equal(t, StateFailed, result.State)
	assert.ErrorIs(t, result.Err, ErrIterationLimit)
	assert.False(t, result.Converged)
	assert.Equal(t, 3, result.Revisions)
	assert.Equal(t, 4, result.Draft.Version)
	assert.Equal(t, "draft v4", result.Draft.Text)
	assert.Len(t, result.Critiques, 4)
	assert.Len(t, result.Drafts, 4)
	assert.Equal(t, 4, *judgeCalls)
	assert.Equal(t, 4, svc.CallCount())
	assert.Equal(t, 4, result.Stats.LLMCalls)
	assert.Contains(t, result.Reason, "3 revisions")
}

// TestReflexionExecutor_BoundedRevisions tests the revision bound for several caps.
func TestReflexionExecutor_BoundedRevisions(t *testing.T) {
	for _, limit := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("max=%d", limit), func(t *testing.T) {
			judge, judgeCalls := scoreJudge(0.1)
			svc := llmtest.NewScripted().WithFallback(llmtest.Text("again"))
			result := newReflexion(t, judge, limit).Execute(context.Background(), svc, summaryTask)

			assert.Equal(t, StateFailed, result.State)
			assert.Equal(t, limit, result.Revisions)
			assert.Equal(t, limit+1, result.Draft.Version)
			assert.Equal(t, limit+1, *judgeCalls)
			assert.Equal(t, limit+1, svc.CallCount())
		})
	}
}

// TestReflexionExecutor_PassFirst tests that a passing first critique ends DONE with no revisions.
func TestReflexionExecutor_PassFirst(t *testing.T) {
	judge, _ := scoreJudge(0.95)
	svc := draftScript(1)

	result := newReflexion(t, judge, 3).Execute(context.Background(), svc, summaryTask)

	assert.Equal(t, StateDone, result.State)
	assert.True(t, result.Converged)
	assert.NoError(t, result.Err)
	assert.Equal(t, 0, result.Revisions)
	assert.Equal(t, Draft{Text: "draft v1", Version: 1}, result.Draft)
	assert.Equal(t, 1, svc.CallCount())
}

// TestReflexionExecutor_PassAfterRevision tests convergence on a later version.
func TestReflexionExecutor_PassAfterRevision(t *testing.T) {
	judge, _ := scoreJudge(0.5, 0.85)
	svc := draftScript(2)

	result := newReflexion(t, judge, 3).Execute(context.Background(), svc, summaryTask)

	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, 1, result.Revisions)
	assert.Equal(t, "draft v2", result.Draft.Text)
	require.Len(t, result.Critiques, 2)
	assert.Equal(t, 1, result.Critiques[0].DraftVersion)
	assert.Equal(t, 2, result.Critiques[1].DraftVersion)

	requests := svc.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, "Summarize given points.", requests[0].Messages[0].Content)
	revise := requests[1].Messages[1].Content
	assert.Contains(t, revise, "draft v1")
	assert.Contains(t, revise, "feedback for v1")
	assert.Contains(t, revise, summaryTask.Prompt)
}

// TestReflexionExecutor_BestDraft tests that the highest-scoring draft is kept on failure.
func TestReflexionExecutor_BestDraft(t *testing.T) {
	judge, _ := scoreJudge(0.5, 0.7, 0.6, 0.4)
	result := newReflexion(t, judge, 3).Execute(context.Background(), draftScript(4), summaryTask)

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, 3, result.Revisions)
	assert.Equal(t, Draft{Text: "draft v2", Version: 2}, result.Draft)
}

// TestReflexionExecutor_AdapterErrors tests that adapter failures end in FAILED with the error attached.
func TestReflexionExecutor_AdapterErrors(t *testing.T) {
	fatal := &llm.FatalAPIError{Provider: "test", StatusCode: 401, Err: errors.New("bad key")}

	t.Run("draft", func(t *testing.T) {
		judge, judgeCalls := scoreJudge(0.9)
		result := newReflexion(t, judge, 3).Execute(context.Background(), llmtest.NewScripted(llmtest.Fail(fatal)), summaryTask)

		assert.Equal(t, StateFailed, result.State)
		assert.ErrorIs(t, result.Err, fatal)
		assert.True(t, llm.IsFatal(result.Err))
		assert.Equal(t, 0, result.Draft.Version)
		assert.Equal(t, 0, *judgeCalls)
		assert.NotEmpty(t, result.Reason)
	})

	t.Run("revision", func(t *testing.T) {
		judge, _ := scoreJudge(0.2)
		svc := llmtest.NewScripted(llmtest.Text("first"), llmtest.Text("second"), llmtest.Fail(fatal))
		result := newReflexion(t, judge, 3).Execute(context.Background(), svc, summaryTask)

		assert.Equal(t, StateFailed, result.State)
		assert.ErrorIs(t, result.Err, fatal)
		assert.Equal(t, 1, result.Revisions)
		assert.Equal(t, Draft{Text: "second", Version: 2}, result.Draft)
		assert.Contains(t, result.Reason, "revision failed")
	})

	t.Run("judge", func(t *testing.T) {
		boom := errors.New("judge down")
		judge := JudgeFunc(func(context.Context, ReflexionTask, Draft) (Critique, error) { return Critique{}, boom })
		result := newReflexion(t, judge, 3).Execute(context.Background(), draftScript(1), summaryTask)

		assert.Equal(t, StateFailed, result.State)
		assert.ErrorIs(t, result.Err, boom)
		assert.Equal(t, "draft v1", result.Draft.Text)
	})
}

// TestReflexionExecutor_Cancelled tests that a cancelled context stops before drafting.
func TestReflexionExecutor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	judge, _ := scoreJudge(0.9)
	svc := draftScript(1)
	result := newReflexion(t, judge, 3).Execute(ctx, svc, summaryTask)

	assert.Equal(t, StateFailed, result.State)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Equal(t, 0, svc.CallCount())
}

// TestReflexionExecutor_Generate tests that a task generator replaces the drafting call.
func TestReflexionExecutor_Generate(t *testing.T) {
	judge, _ := scoreJudge(0.9)
	svc := llmtest.NewScripted()
	task := summaryTask
	task.Generate = func(context.Context) (string, *llm.LLMCallStats, error) {
		return `{"summary":"structured"}`, &llm.LLMCallStats{PromptTokens: 7}, nil
	}

	result := newReflexion(t, judge, 3).Execute(context.Background(), svc, task)

	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, `{"summary":"structured"}`, result.Draft.Text)
	assert.Equal(t, 0, svc.CallCount())
	assert.Equal(t, 7, result.Stats.PromptTokens)
}

// TestLLMJudge tests structured reflection parsing and gating.
func TestLLMJudge(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		wantPass  bool
		wantScore float64
	}{
		{"high quality", `{"accuracy":1,"completeness":1,"clarity":1,"issues":[],"needs_refinement":false}`, true, 1},
		{"fenced", "```json\n{\"accuracy\":0.5,\"completeness\":0.5,\"clarity\":0.5}\n```", false, 0.5},
		{"unparseable", "looks fine to me", false, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := llmtest.NewScripted(llmtest.Text(tt.response))
			judge := NewLLMJudge(svc, nil)

			c, err := judge.Judge(context.Background(), summaryTask, Draft{Text: "x", Version: 2})
			require.NoError(t, err)
			assert.Equal(t, tt.wantPass, c.Pass)
			assert.InDelta(t, tt.wantScore, c.Score, 1e-9)
			assert.Equal(t, 2, c.DraftVersion)
			require.NotNil(t, c.Report)
			assert.Contains(t, c.Text, "Quality:")
			assert.NotNil(t, c.Usage)
		})
	}

	t.Run("weights", func(t *testing.T) {
		r := ReflectionReport{Accuracy: 1, Completeness: 0, Clarity: 0}
		assert.InDelta(t, 0.4, r.OverallQuality(), 1e-9)
		r = ReflectionReport{Accuracy: 0, Completeness: 1, Clarity: 1}
		assert.InDelta(t, 0.6, r.OverallQuality(), 1e-9)
	})

	t.Run("adapter error", func(t *testing.T) {
		boom := &llm.FatalAPIError{Provider: "test", StatusCode: 400, Err: errors.New("bad")}
		judge := NewLLMJudge(llmtest.NewScripted(llmtest.Fail(boom)), nil)
		_, err := judge.Judge(context.Background(), summaryTask, Draft{Text: "x", Version: 1})
		assert.ErrorIs(t, err, boom)
	})
}

// TestKeywordJudge tests the keyword heuristic.
func TestKeywordJudge(t *testing.T) {
	tests := []struct {
		feedback  string
		wantScore float64
		wantPass  bool
	}{
		{"This is a good summary.", 0.9, true},
		{"Good structure overall", 0.9, true},
		{"Too long and vague.", 0.6, false},
	}
	for _, tt := range tests {
		t.Run(tt.feedback, func(t *testing.T) {
			svc := llmtest.NewScripted(llmtest.Text(tt.feedback))
			c, err := NewKeywordJudge(svc, nil).Judge(context.Background(), summaryTask, Draft{Text: "x", Version: 1})
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, c.Score)
			assert.Equal(t, tt.wantPass, c.Pass)
			assert.Equal(t, tt.feedback, c.Text)

			prompt := svc.Requests()[0].Messages[1].Content
			assert.True(t, strings.HasPrefix(prompt, "Evaluate this summary:"))
		})
	}
}
