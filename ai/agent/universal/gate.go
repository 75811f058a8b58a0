package universal

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

const defaultQualityThreshold = 0.8

// Assessment is the scored view of a draft that a Gate decides on.
type Assessment struct {
	Kind            string
	Version         int
	Score           float64
	Accuracy        float64
	Completeness    float64
	Clarity         float64
	Issues          []string
	NeedsRefinement bool
}

// Gate decides whether an assessed draft is good enough to stop revising.
type Gate interface {
	Passes(a Assessment) (bool, error)
}

// ThresholdGate passes drafts whose overall score reaches Threshold.
type ThresholdGate struct {
	Threshold float64
}

// NewThresholdGate returns a gate with the given threshold; zero or negative
// values fall back to 0.8.
func NewThresholdGate(threshold float64) ThresholdGate {
	if threshold <= 0 {
		threshold = defaultQualityThreshold
	}
	return ThresholdGate{Threshold: threshold}
}

func (g ThresholdGate) Passes(a Assessment) (bool, error) {
	return a.Score >= g.Threshold, nil
}

// CELGate evaluates a boolean CEL expression over the assessment, e.g.
//
//	score >= 0.8 && size(issues) == 0
//
// Available variables: kind, version, score, accuracy, completeness,
// clarity, issues, needs_refinement.
type CELGate struct {
	expr    string
	program cel.Program
}

// NewCELGate compiles expr. The expression must evaluate to a bool.
func NewCELGate(expr string) (*CELGate, error) {
	env, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("version", cel.IntType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("accuracy", cel.DoubleType),
		cel.Variable("completeness", cel.DoubleType),
		cel.Variable("clarity", cel.DoubleType),
		cel.Variable("issues", cel.ListType(cel.StringType)),
		cel.Variable("needs_refinement", cel.BoolType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create CEL environment")
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "invalid gate expression: %s", expr)
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.Errorf("gate expression must return bool, got %s", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build gate program: %s", expr)
	}
	return &CELGate{expr: expr, program: program}, nil
}

// Expression returns the source expression.
func (g *CELGate) Expression() string {
	return g.expr
}

func (g *CELGate) Passes(a Assessment) (bool, error) {
	issues := a.Issues
	if issues == nil {
		issues = []string{}
	}
	out, _, err := g.program.Eval(map[string]any{
		"kind":             a.Kind,
		"version":          int64(a.Version),
		"score":            a.Score,
		"accuracy":         a.Accuracy,
		"completeness":     a.Completeness,
		"clarity":          a.Clarity,
		"issues":           issues,
		"needs_refinement": a.NeedsRefinement,
	})
	if err != nil {
		return false, errors.Wrapf(err, "evaluate gate %q", g.expr)
	}
	pass, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("gate %q returned %T", g.expr, out.Value())
	}
	return pass, nil
}
