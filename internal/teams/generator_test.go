package teams

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/and-other-tales/juno/internal/logger"
	"github.com/and-other-tales/juno/internal/state"
)

func newGenerator(o *fakeOracle) *Generator {
	return &Generator{
		Oracle:       o,
		Log:          logger.NewNoOpLogger(),
		AutoGenerate: true,
		Categories:   []string{"science", "technology"},
		MaxCycles:    10,
	}
}

func TestGenerator_CreatesTaskAndRoutesToResearch(t *testing.T) {
	g := newGenerator(&fakeOracle{})

	st := testState()
	st.CurrentTask = ""
	st.CurrentTaskID = ""

	out, err := g.Node()(context.Background(), st)
	if err != nil {
		t.Fatalf("generator failed: %v", err)
	}
	if out.CurrentTask == "" || out.CurrentTaskID == "" {
		t.Fatalf("expected a task with an id, got %q / %q", out.CurrentTask, out.CurrentTaskID)
	}
	if !strings.Contains(out.CurrentTask, "science") {
		t.Errorf("expected the first category used, got %q", out.CurrentTask)
	}
	if out.Next != state.NodeResearchTeam {
		t.Errorf("expected routing to research, got %q", out.Next)
	}
	if out.CycleCount != 1 || out.TaskGenerationCount != 1 {
		t.Errorf("expected counters advanced, got cycle %d gen %d", out.CycleCount, out.TaskGenerationCount)
	}
	if st.CycleCount != 0 {
		t.Error("input state must not be mutated")
	}
}

func TestGenerator_CategoriesRotate(t *testing.T) {
	g := newGenerator(&fakeOracle{})

	st := testState()
	st.CurrentTask = ""
	st.TaskGenerationCount = 1

	out, err := g.Node()(context.Background(), st)
	if err != nil {
		t.Fatalf("generator failed: %v", err)
	}
	if !strings.Contains(out.CurrentTask, "technology") {
		t.Errorf("expected the second category on generation 1, got %q", out.CurrentTask)
	}
}

func TestGenerator_OracleFailureFallsBackToTemplate(t *testing.T) {
	o := &fakeOracle{taskFn: func(category string) (string, error) {
		return "", fmt.Errorf("model unavailable")
	}}
	g := newGenerator(o)

	st := testState()
	st.CurrentTask = ""

	out, err := g.Node()(context.Background(), st)
	if err != nil {
		t.Fatalf("generator failed: %v", err)
	}
	if !strings.Contains(out.CurrentTask, "recent developments in science") {
		t.Errorf("expected the fallback template, got %q", out.CurrentTask)
	}
	if out.Next != state.NodeResearchTeam {
		t.Errorf("task generation failure must not end the run, got next %q", out.Next)
	}
}

func TestGenerator_MaxCyclesEndsRun(t *testing.T) {
	g := newGenerator(&fakeOracle{})
	g.MaxCycles = 2

	st := testState()
	st.CycleCount = 2

	out, err := g.Node()(context.Background(), st)
	if err != nil {
		t.Fatalf("generator failed: %v", err)
	}
	if out.Next != state.NodeEnd {
		t.Errorf("expected the run to end, got next %q", out.Next)
	}
	if noticesContaining(out, "RUN COMPLETE") != 1 {
		t.Errorf("expected a completion notice, got %v", out.Notices)
	}
}

func TestGenerator_AutoGenerateOffEndsWithoutTask(t *testing.T) {
	g := newGenerator(&fakeOracle{})
	g.AutoGenerate = false

	st := testState()
	st.CurrentTask = ""

	out, err := g.Node()(context.Background(), st)
	if err != nil {
		t.Fatalf("generator failed: %v", err)
	}
	if out.Next != state.NodeEnd {
		t.Errorf("expected the run to end, got next %q", out.Next)
	}
}

func TestGenerator_UserTaskGetsAnID(t *testing.T) {
	g := newGenerator(&fakeOracle{})
	g.AutoGenerate = false

	st := testState()
	st.CurrentTask = "Write about tide pools"
	st.CurrentTaskID = ""

	out, err := g.Node()(context.Background(), st)
	if err != nil {
		t.Fatalf("generator failed: %v", err)
	}
	if out.CurrentTask != "Write about tide pools" {
		t.Errorf("user task must be preserved, got %q", out.CurrentTask)
	}
	if out.CurrentTaskID == "" {
		t.Error("expected an id stamped on the user task")
	}
	if out.TaskGenerationCount != 0 {
		t.Error("user tasks must not count as generated")
	}
}

func TestGenerator_SeedsTargetsOnFirstCycle(t *testing.T) {
	g := newGenerator(&fakeOracle{})
	g.Targets = map[string]float64{"avg_quality": 0.8}

	out, err := g.Node()(context.Background(), testState())
	if err != nil {
		t.Fatalf("generator failed: %v", err)
	}
	if len(out.Targets) != 1 {
		t.Fatalf("expected 1 seeded target, got %d", len(out.Targets))
	}
	target := out.Targets[0]
	if target.MetricName != "avg_quality" || target.TargetValue != 0.8 {
		t.Errorf("unexpected target: %+v", target)
	}

	// Seeding happens once
	again, err := g.Node()(context.Background(), out)
	if err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if len(again.Targets) != 1 {
		t.Errorf("expected targets untouched on later cycles, got %d", len(again.Targets))
	}
}
