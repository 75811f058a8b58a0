package workflow

import (
	"fmt"
	"strings"

	"github.com/hrygo/repurpose/ai/agent/universal"
	"github.com/hrygo/repurpose/ai/agents/tools"
	"github.com/hrygo/repurpose/ai/evaluator"
	"github.com/hrygo/repurpose/ai/format"
)

type artifactData struct {
	Kind      string  `json:"kind"`
	State     string  `json:"state"`
	Revisions int     `json:"revisions"`
	Converged bool    `json:"converged"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason"`
}

type statsData struct {
	LLMCalls    int   `json:"llm_calls"`
	ToolCalls   int   `json:"tool_calls"`
	TotalTokens int   `json:"total_tokens"`
	DurationMs  int64 `json:"duration_ms"`
}

type pipelineData struct {
	RunID       string             `json:"run_id"`
	State       universal.State    `json:"state"`
	Reason      string             `json:"reason"`
	Error       string             `json:"error,omitempty"`
	KeyPoints   []string           `json:"key_points"`
	Summary     string             `json:"summary"`
	SocialMedia *tools.SocialPosts `json:"social_media"`
	Email       *tools.Newsletter  `json:"email"`
	Artifacts   []artifactData     `json:"artifacts"`
	Stats       statsData          `json:"stats"`
}

type agentData struct {
	RunID     string          `json:"run_id"`
	State     universal.State `json:"state"`
	Reason    string          `json:"reason"`
	Error     string          `json:"error,omitempty"`
	Partial   bool            `json:"partial"`
	Steps     int             `json:"steps"`
	ToolCalls int             `json:"tool_calls"`
	Result    *tools.Bundle   `json:"result"`
	Stats     statsData       `json:"stats"`
}

type compareData struct {
	RunID         string                `json:"run_id"`
	State         universal.State       `json:"state"`
	Reason        string                `json:"reason"`
	Error         string                `json:"error,omitempty"`
	Reflexion     *pipelineData         `json:"reflexion,omitempty"`
	Agent         *agentData            `json:"agent,omitempty"`
	ReflexionEval *FieldScores          `json:"reflexion_eval,omitempty"`
	AgentEval     *FieldScores          `json:"agent_eval,omitempty"`
	Evaluation    *evaluator.Evaluation `json:"evaluation,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func toStats(s *universal.ExecutionStats) statsData {
	if s == nil {
		return statsData{}
	}
	return statsData{LLMCalls: s.LLMCalls, ToolCalls: s.ToolCalls, TotalTokens: s.TotalTokens, DurationMs: s.TotalDurationMs}
}

func (r *PipelineResult) data() *pipelineData {
	d := &pipelineData{
		RunID:       r.RunID,
		State:       r.State,
		Reason:      r.Reason,
		Error:       errString(r.Err),
		KeyPoints:   r.KeyPoints,
		Summary:     r.Summary,
		SocialMedia: r.SocialPosts,
		Email:       r.Email,
		Stats:       toStats(r.Stats),
	}
	for _, a := range r.Artifacts {
		ad := artifactData{Kind: a.Kind, State: string(a.State), Revisions: a.Revisions, Converged: a.Converged, Reason: a.Reason}
		for _, c := range a.Critiques {
			if c.DraftVersion == a.Draft.Version {
				ad.Score = c.Score
			}
		}
		d.Artifacts = append(d.Artifacts, ad)
	}
	return d
}

func (r *AgentResult) data() *agentData {
	return &agentData{
		RunID:     r.RunID,
		State:     r.State,
		Reason:    r.Reason,
		Error:     errString(r.Err),
		Partial:   r.Partial,
		Steps:     r.Steps,
		ToolCalls: r.ToolCalls,
		Result:    r.Bundle,
		Stats:     toStats(r.Stats),
	}
}

// Report builds the printable view of the pipeline result.
func (r *PipelineResult) Report() *format.Report {
	d := r.data()
	rep := &format.Report{Title: "Reflexion workflow", Data: d}
	rep.Fields = runFields(r.RunID, r.State, r.Reason, r.Err)
	if r.Stats != nil {
		rep.Fields = append(rep.Fields, format.Field{Name: "Usage", Value: usage(r.Stats)})
	}
	addBundle(rep, r.Bundle())

	if len(r.Artifacts) > 0 {
		s := rep.AddSection("Quality")
		for _, a := range d.Artifacts {
			s.Items = append(s.Items, fmt.Sprintf("%s: %s after %d revisions, score %.2f", a.Kind, a.State, a.Revisions, a.Score))
		}
	}
	return rep
}

// Report builds the printable view of the agent result.
func (r *AgentResult) Report() *format.Report {
	rep := &format.Report{Title: "Agent workflow", Data: r.data()}
	rep.Fields = runFields(r.RunID, r.State, r.Reason, r.Err)
	rep.Fields = append(rep.Fields,
		format.Field{Name: "Steps", Value: fmt.Sprint(r.Steps)},
		format.Field{Name: "Tool calls", Value: fmt.Sprint(r.ToolCalls)})
	if r.Partial {
		rep.Fields = append(rep.Fields, format.Field{Name: "Note", Value: "finish was not called; showing collected tool outputs"})
	}
	if r.Stats != nil {
		rep.Fields = append(rep.Fields, format.Field{Name: "Usage", Value: usage(r.Stats)})
	}
	if r.Bundle != nil {
		addBundle(rep, r.Bundle)
	}
	return rep
}

// Report builds the printable view of the comparison.
func (r *CompareResult) Report() *format.Report {
	d := &compareData{
		RunID:         r.RunID,
		State:         r.State,
		Reason:        r.Reason,
		Error:         errString(r.Err),
		ReflexionEval: r.PipelineScores,
		AgentEval:     r.AgentScores,
		Evaluation:    r.Evaluation,
	}
	if r.Pipeline != nil {
		d.Reflexion = r.Pipeline.data()
	}
	if r.Agent != nil {
		d.Agent = r.Agent.data()
	}

	rep := &format.Report{Title: "Workflow comparison", Data: d}
	rep.Fields = runFields(r.RunID, r.State, r.Reason, r.Err)
	if r.Pipeline != nil {
		rep.Fields = append(rep.Fields, format.Field{Name: "Reflexion", Value: string(r.Pipeline.State)})
	}
	if r.Agent != nil {
		rep.Fields = append(rep.Fields, format.Field{Name: "Agent", Value: string(r.Agent.State)})
	}

	for _, side := range []struct {
		heading string
		scores  *FieldScores
	}{
		{"Reflexion artifact scores", r.PipelineScores},
		{"Agent artifact scores", r.AgentScores},
	} {
		if side.scores == nil {
			continue
		}
		s := rep.AddSection(side.heading)
		s.Field(KindSummary, fieldScore(side.scores.Summary))
		s.Field(KindSocial, fieldScore(side.scores.Social))
		s.Field(KindEmail, fieldScore(side.scores.Email))
	}

	if e := r.Evaluation; e != nil {
		s := rep.AddSection("Verdict")
		s.Field("Winner", verdictLabel(e.Verdict))
		for _, c := range e.Criteria {
			s.Items = append(s.Items, fmt.Sprintf("%s: reflexion %.1f, agent %.1f", c, e.ScoresA[c], e.ScoresB[c]))
		}
		s.Body = e.Rationale
	}
	return rep
}

func runFields(id string, state universal.State, reason string, err error) []format.Field {
	fields := []format.Field{
		{Name: "Run", Value: id},
		{Name: "State", Value: string(state)},
	}
	if reason != "" {
		fields = append(fields, format.Field{Name: "Reason", Value: reason})
	}
	if err != nil {
		fields = append(fields, format.Field{Name: "Error", Value: err.Error()})
	}
	return fields
}

func usage(s *universal.ExecutionStats) string {
	return fmt.Sprintf("%d LLM calls, %d tokens, %d tool calls", s.LLMCalls, s.TotalTokens, s.ToolCalls)
}

func addBundle(rep *format.Report, b *tools.Bundle) {
	if len(b.KeyPoints) > 0 {
		rep.AddSection("Key points").Items = b.KeyPoints
	}
	if b.Summary != "" {
		rep.AddSection("Summary").Body = b.Summary
	}
	if p := b.SocialPosts; p != nil {
		rep.AddSection("Social media").
			Field("Twitter", p.Twitter).
			Field("LinkedIn", p.LinkedIn).
			Field("Facebook", p.Facebook)
	}
	if e := b.Email; e != nil {
		s := rep.AddSection("Email")
		s.Field("Subject", e.Subject)
		s.Body = e.Body
	}
}

func fieldScore(f FieldScore) string {
	verdict := "needs work"
	if f.Pass {
		verdict = "pass"
	}
	feedback := strings.Join(strings.Fields(f.Feedback), " ")
	if feedback == "" {
		return fmt.Sprintf("%.2f (%s)", f.Score, verdict)
	}
	return fmt.Sprintf("%.2f (%s) %s", f.Score, verdict, feedback)
}

func verdictLabel(v evaluator.Verdict) string {
	switch v {
	case evaluator.VerdictA:
		return LabelPipeline
	case evaluator.VerdictB:
		return LabelAgent
	default:
		return "tie"
	}
}
