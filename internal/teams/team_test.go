package teams

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/and-other-tales/juno/internal/logger"
	"github.com/and-other-tales/juno/internal/oracle"
	"github.com/and-other-tales/juno/internal/state"
)

// fakeOracle scripts routing per supervisor and returns canned content for
// everything else. A supervisor with no queued decisions routes to "end".
type fakeOracle struct {
	mu        sync.Mutex
	routes    map[string][]string
	routeReqs []oracle.RouteRequest

	grades   []*oracle.Grade
	gradeIdx int
	gradeErr error

	completeFn func(prompt string) (string, error)
	taskFn     func(category string) (string, error)
	fixFn      func(issues, prior []string) (*oracle.CodeFix, error)
	reviewFn   func(task, result string) (*oracle.Grade, error)
}

func (f *fakeOracle) queue(supervisor string, decisions ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.routes == nil {
		f.routes = make(map[string][]string)
	}
	f.routes[supervisor] = append(f.routes[supervisor], decisions...)
}

func (f *fakeOracle) Route(ctx context.Context, req oracle.RouteRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routeReqs = append(f.routeReqs, req)
	queued := f.routes[req.Supervisor]
	if len(queued) == 0 {
		return state.NodeEnd, nil
	}
	f.routes[req.Supervisor] = queued[1:]
	return queued[0], nil
}

func (f *fakeOracle) Grade(ctx context.Context, team, task, result string) (*oracle.Grade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gradeErr != nil {
		return nil, f.gradeErr
	}
	if len(f.grades) == 0 {
		return &oracle.Grade{Score: 0.9, Comments: "solid work"}, nil
	}
	g := f.grades[f.gradeIdx%len(f.grades)]
	f.gradeIdx++
	return g, nil
}

func (f *fakeOracle) Review(ctx context.Context, task, result string) (*oracle.Grade, error) {
	if f.reviewFn != nil {
		return f.reviewFn(task, result)
	}
	return &oracle.Grade{Score: 0.8, Comments: "review complete"}, nil
}

func (f *fakeOracle) GenerateTask(ctx context.Context, category string) (string, error) {
	if f.taskFn != nil {
		return f.taskFn(category)
	}
	return "Summarize recent developments in " + category + ".", nil
}

func (f *fakeOracle) ProposeCodeFix(ctx context.Context, issues, prior []string) (*oracle.CodeFix, error) {
	if f.fixFn != nil {
		return f.fixFn(issues, prior)
	}
	return &oracle.CodeFix{
		Narrative: "tightened prompts for the failing steps",
		Fixes:     []string{fmt.Sprintf("addressed %d issues", len(issues))},
	}, nil
}

func (f *fakeOracle) Synthesize(ctx context.Context, summary string) (*oracle.Analysis, error) {
	return &oracle.Analysis{OverallAssessment: "steady performance"}, nil
}

func (f *fakeOracle) Complete(ctx context.Context, prompt string) (string, error) {
	if f.completeFn != nil {
		return f.completeFn(prompt)
	}
	return "completed output", nil
}

// testState returns a run state with a task in flight for the default teams.
func testState() *state.RunState {
	st := state.New([]string{state.TeamResearch, state.TeamWriting, state.TeamJuno}, 1, 5, 0.7)
	st.CurrentTask = "Write a briefing on solar batteries"
	st.CurrentTaskID = "task-1"
	return st
}

func noticesContaining(st *state.RunState, substr string) int {
	n := 0
	for _, notice := range st.Notices {
		if strings.Contains(notice, substr) {
			n++
		}
	}
	return n
}

func TestTeam_WorkerActivationProducesRecord(t *testing.T) {
	o := &fakeOracle{}
	o.queue("solo", "worker")

	worker := &Worker{
		Name: "worker",
		Run: func(ctx context.Context, st *state.RunState) (*state.RunState, string, error) {
			return st, "the findings", nil
		},
	}
	team := NewTeam("solo", o, logger.NewNoOpLogger(), []*Worker{worker}, 10)
	team.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	st := testState()
	st.Resources["solo"] = st.Resources[state.TeamResearch]
	out, err := team.Node()(context.Background(), st)
	if err != nil {
		t.Fatalf("team node failed: %v", err)
	}

	if len(out.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(out.Records))
	}
	rec := out.Records[0]
	if rec.TaskID != "task-1" || rec.TeamName != "solo" || rec.AgentName != "worker" {
		t.Errorf("unexpected record identity: %+v", rec)
	}
	if !rec.Success {
		t.Error("expected a successful record")
	}
	if rec.AgentCount != st.AgentCount("solo") {
		t.Errorf("expected agent count stamped, got %d", rec.AgentCount)
	}
	if !strings.Contains(out.TeamResults["solo"], "## worker\nthe findings") {
		t.Errorf("expected worker output in team results, got %q", out.TeamResults["solo"])
	}
	if len(st.Records) != 0 {
		t.Error("input state must not be mutated")
	}
}

func TestTeam_WorkerFailureIsRecordedNotFatal(t *testing.T) {
	o := &fakeOracle{}
	o.queue("solo", "worker")

	worker := &Worker{
		Name: "worker",
		Run: func(ctx context.Context, st *state.RunState) (*state.RunState, string, error) {
			return st, "", fmt.Errorf("search backend unreachable")
		},
	}
	team := NewTeam("solo", o, logger.NewNoOpLogger(), []*Worker{worker}, 10)

	out, err := team.Node()(context.Background(), testState())
	if err != nil {
		t.Fatalf("worker failure must not halt the team: %v", err)
	}

	rec := out.Records[0]
	if rec.Success || rec.ErrorMessage != "search backend unreachable" {
		t.Errorf("expected failed record with message, got %+v", rec)
	}
	if out.Performance("solo").ErrorCount != 1 {
		t.Errorf("expected error tally 1, got %d", out.Performance("solo").ErrorCount)
	}
	if noticesContaining(out, "ERROR") == 0 {
		t.Error("expected an ERROR notice")
	}
}

func TestTeam_MultipleWorkersAppendSections(t *testing.T) {
	o := &fakeOracle{}
	o.queue("pair", "first", "second")

	mk := func(name, output string) *Worker {
		return &Worker{
			Name: name,
			Run: func(ctx context.Context, st *state.RunState) (*state.RunState, string, error) {
				return st, output, nil
			},
		}
	}
	team := NewTeam("pair", o, logger.NewNoOpLogger(),
		[]*Worker{mk("first", "alpha"), mk("second", "beta")}, 10)

	out, err := team.Node()(context.Background(), testState())
	if err != nil {
		t.Fatalf("team node failed: %v", err)
	}

	result := out.TeamResults["pair"]
	firstIdx := strings.Index(result, "## first\nalpha")
	secondIdx := strings.Index(result, "## second\nbeta")
	if firstIdx < 0 || secondIdx < 0 || secondIdx < firstIdx {
		t.Errorf("expected ordered worker sections, got %q", result)
	}
	if len(out.Records) != 2 {
		t.Errorf("expected 2 records, got %d", len(out.Records))
	}
}

func TestTeam_StepLimitAbsorbedIntoNotice(t *testing.T) {
	o := &fakeOracle{}
	o.queue("solo", "worker", "worker", "worker")

	worker := &Worker{
		Name: "worker",
		Run: func(ctx context.Context, st *state.RunState) (*state.RunState, string, error) {
			return st, "output", nil
		},
	}
	team := NewTeam("solo", o, logger.NewNoOpLogger(), []*Worker{worker}, 1)

	out, err := team.Node()(context.Background(), testState())
	if err != nil {
		t.Fatalf("routing failure must return control to the parent: %v", err)
	}
	if noticesContaining(out, "halted early") == 0 {
		t.Error("expected a halted-early notice")
	}
	// The one permitted step still ran
	if len(out.Records) != 1 {
		t.Errorf("expected 1 record before the halt, got %d", len(out.Records))
	}
}

func TestTeam_ContextCancellationPropagates(t *testing.T) {
	o := &fakeOracle{}
	worker := &Worker{
		Name: "worker",
		Run: func(ctx context.Context, st *state.RunState) (*state.RunState, string, error) {
			return st, "output", nil
		},
	}
	team := NewTeam("solo", o, logger.NewNoOpLogger(), []*Worker{worker}, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := team.Node()(ctx, testState()); err == nil {
		t.Fatal("expected context error")
	}
}

func TestTeam_RoutingPromptCarriesProgress(t *testing.T) {
	o := &fakeOracle{}

	team := NewTeam("solo", o, logger.NewNoOpLogger(), []*Worker{{
		Name: "worker",
		Run: func(ctx context.Context, st *state.RunState) (*state.RunState, string, error) {
			return st, "out", nil
		},
	}}, 10)

	st := testState()
	st.TeamResults["solo"] = "earlier findings"
	st.SupervisorFeedback["solo"] = []string{"old note", "latest note"}
	if _, err := team.Node()(context.Background(), st); err != nil {
		t.Fatalf("team node failed: %v", err)
	}

	if len(o.routeReqs) == 0 {
		t.Fatal("expected at least one routing request")
	}
	req := o.routeReqs[0]
	if req.Supervisor != "solo" {
		t.Errorf("expected supervisor name, got %q", req.Supervisor)
	}
	joined := strings.Join(req.History, "\n")
	if !strings.Contains(joined, "earlier findings") || !strings.Contains(joined, "latest note") {
		t.Errorf("expected progress and feedback in history, got %q", joined)
	}
}
