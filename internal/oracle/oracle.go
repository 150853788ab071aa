// Package oracle defines the narrow typed interface to the language model
// and its Claude CLI adapter. The control core only ever sees structured
// results or an error; every text-scraping heuristic lives behind this
// boundary so decision logic never depends on prose parsing.
package oracle

import "context"

// Grade is the structured result of grading a team's output.
type Grade struct {
	Score       float64  `json:"score"`
	Comments    string   `json:"comments"`
	Issues      []string `json:"issues"`
	Strengths   []string `json:"strengths"`
	Suggestions []string `json:"improvement_suggestions"`
}

// CodeFix is the structured result of a code-improvement proposal. Check,
// when present, is a snippet the improvement team runs through the sandbox
// to verify the change.
type CodeFix struct {
	Narrative string   `json:"narrative"`
	Fixes     []string `json:"fixes"`
	Check     string   `json:"check,omitempty"`
}

// Analysis is the structured narrative synthesis for an evaluation report.
type Analysis struct {
	OverallAssessment      string   `json:"overall_assessment"`
	Strengths              []string `json:"strengths"`
	Weaknesses             []string `json:"weaknesses"`
	Recommendations        []string `json:"improvement_recommendations"`
	ScalingRecommendations []string `json:"scaling_recommendations"`
}

// RouteRequest carries what a supervisor knows when asking for a routing
// decision.
type RouteRequest struct {
	Supervisor string   // Which supervisor is asking
	Members    []string // Nodes it may delegate to
	History    []string // Recent run history, newest last
}

// Oracle is the language-model interface consumed by the control core.
// Implementations may fail or return malformed output; callers substitute a
// documented neutral default on error and never halt the loop.
type Oracle interface {
	// Grade scores a team's output against the task.
	Grade(ctx context.Context, team, task, result string) (*Grade, error)

	// Review scores the final output of a task as a whole, independent of
	// which team produced each part.
	Review(ctx context.Context, task, result string) (*Grade, error)

	// Route picks the next node for a supervisor. An empty return or an
	// unknown member means the caller should fall back to its default.
	Route(ctx context.Context, req RouteRequest) (string, error)

	// GenerateTask produces a new task description for a category.
	GenerateTask(ctx context.Context, category string) (string, error)

	// ProposeCodeFix proposes fixes for accumulated issues, given fixes
	// already implemented.
	ProposeCodeFix(ctx context.Context, issues, priorFixes []string) (*CodeFix, error)

	// Synthesize turns a numeric evaluation summary into a narrative
	// analysis.
	Synthesize(ctx context.Context, summary string) (*Analysis, error)

	// Complete performs a free-form completion for worker agents.
	Complete(ctx context.Context, prompt string) (string, error)
}

// NeutralGrade is the fallback grade applied when the oracle fails or
// returns something unparseable. The run keeps moving on a middle score.
func NeutralGrade(reason string) *Grade {
	return &Grade{
		Score:    0.5,
		Comments: "grading unavailable: " + reason,
		Issues:   []string{"parse error: " + reason},
	}
}

// FallbackAnalysis is the fixed narrative used when report synthesis fails.
func FallbackAnalysis() *Analysis {
	return &Analysis{
		OverallAssessment: "analysis unavailable: could not parse model output",
		Recommendations:   []string{"review run logs for detailed metrics"},
	}
}
