package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/and-other-tales/juno/internal/state"
)

func newState() *state.RunState {
	return state.New([]string{state.TeamResearch}, 1, 3, 0.7)
}

// scriptedRoute returns each decision in order, then "end".
func scriptedRoute(decisions ...string) RouteFunc {
	i := 0
	return func(ctx context.Context, st *state.RunState) (string, error) {
		if i >= len(decisions) {
			return state.NodeEnd, nil
		}
		d := decisions[i]
		i++
		return d, nil
	}
}

// countingNode appends its name to the state notices so tests can assert
// execution order.
func countingNode(name string) NodeFunc {
	return func(ctx context.Context, st *state.RunState) (*state.RunState, error) {
		next := st.Clone()
		next.AppendNotice("ran:%s", name)
		return next, nil
	}
}

func ranNodes(st *state.RunState) []string {
	var out []string
	for _, n := range st.Notices {
		if strings.HasPrefix(n, "ran:") {
			out = append(out, strings.TrimPrefix(n, "ran:"))
		}
	}
	return out
}

func TestRun_FollowsRouteDecisions(t *testing.T) {
	r := New("research", []string{"search", "web_scraper"}, scriptedRoute("search", "web_scraper"))
	r.Handle("search", countingNode("search"))
	r.Handle("web_scraper", countingNode("web_scraper"))

	st, err := r.Run(context.Background(), newState())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := ranNodes(st)
	if len(got) != 2 || got[0] != "search" || got[1] != "web_scraper" {
		t.Errorf("expected [search web_scraper], got %v", got)
	}
}

func TestRun_PendingRoutePreemptsRouting(t *testing.T) {
	routeCalls := 0
	r := New("top", []string{state.NodeJunoTeam, state.NodeResearchTeam},
		func(ctx context.Context, st *state.RunState) (string, error) {
			routeCalls++
			return state.NodeEnd, nil
		})
	r.Handle(state.NodeJunoTeam, countingNode("juno"))

	st := newState()
	st.Next = state.NodeJunoTeam

	st, err := r.Run(context.Background(), st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := ranNodes(st)
	if len(got) != 1 || got[0] != "juno" {
		t.Fatalf("expected pending route to run juno first, got %v", got)
	}
	if st.Next != "" {
		t.Errorf("expected pending route consumed, got %q", st.Next)
	}
	if routeCalls != 1 {
		t.Errorf("expected routing called once after pending consumed, got %d", routeCalls)
	}
}

func TestRun_PendingRouteOutsideMembersEndsLoop(t *testing.T) {
	r := New("research", []string{"search"}, scriptedRoute("search"))
	r.Handle("search", countingNode("search"))

	st := newState()
	st.Next = state.NodeJunoTeam // belongs to the enclosing router

	st, err := r.Run(context.Background(), st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranNodes(st)) != 0 {
		t.Error("expected no nodes run when pending route is outside members")
	}
	if st.Next != state.NodeJunoTeam {
		t.Errorf("expected pending route preserved for enclosing router, got %q", st.Next)
	}
}

func TestRun_PreemptionWins(t *testing.T) {
	routeCalls := 0
	r := New("top", []string{state.NodeJunoTeam, state.NodeResearchTeam},
		func(ctx context.Context, st *state.RunState) (string, error) {
			routeCalls++
			return state.NodeResearchTeam, nil
		})
	preempted := false
	r.Preempt = func(st *state.RunState) string {
		if !preempted {
			preempted = true
			return state.NodeJunoTeam
		}
		return ""
	}
	r.Handle(state.NodeJunoTeam, countingNode("juno"))
	r.Handle(state.NodeResearchTeam, func(ctx context.Context, st *state.RunState) (*state.RunState, error) {
		next := st.Clone()
		next.AppendNotice("ran:research")
		next.Next = state.NodeEnd
		return next, nil
	})

	st, err := r.Run(context.Background(), newState())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := ranNodes(st)
	if len(got) != 2 || got[0] != "juno" {
		t.Errorf("expected preempted juno first, got %v", got)
	}
}

func TestRun_FallbackOnRoutingError(t *testing.T) {
	r := New("research", []string{"search"},
		func(ctx context.Context, st *state.RunState) (string, error) {
			return "", errors.New("oracle down")
		})
	r.Fallback = "search"
	ran := false
	r.Handle("search", func(ctx context.Context, st *state.RunState) (*state.RunState, error) {
		ran = true
		next := st.Clone()
		next.Next = state.NodeEnd
		return next, nil
	})

	if _, err := r.Run(context.Background(), newState()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("expected fallback node to run on routing error")
	}
}

func TestRun_FallbackOnUnknownMember(t *testing.T) {
	r := New("research", []string{"search"}, scriptedRoute("nonexistent"))
	r.Fallback = "search"
	ran := false
	r.Handle("search", func(ctx context.Context, st *state.RunState) (*state.RunState, error) {
		ran = true
		next := st.Clone()
		next.Next = state.NodeEnd
		return next, nil
	})

	if _, err := r.Run(context.Background(), newState()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("expected fallback node to run when routing names unknown member")
	}
}

func TestRun_ErrorWithoutFallback(t *testing.T) {
	r := New("research", []string{"search"},
		func(ctx context.Context, st *state.RunState) (string, error) {
			return "", errors.New("oracle down")
		})

	if _, err := r.Run(context.Background(), newState()); err == nil {
		t.Fatal("expected error when routing fails with no fallback")
	}
}

func TestRun_StepLimit(t *testing.T) {
	r := New("research", []string{"search"},
		func(ctx context.Context, st *state.RunState) (string, error) {
			return "search", nil
		})
	r.MaxSteps = 5
	r.Handle("search", countingNode("search"))

	_, err := r.Run(context.Background(), newState())
	if err == nil || !strings.Contains(err.Error(), "exceeded") {
		t.Fatalf("expected step limit error, got %v", err)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	r := New("research", []string{"search"}, scriptedRoute("search"))
	r.Handle("search", countingNode("search"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Run(ctx, newState()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_NodeError(t *testing.T) {
	r := New("research", []string{"search"}, scriptedRoute("search"))
	r.Handle("search", func(ctx context.Context, st *state.RunState) (*state.RunState, error) {
		return st, errors.New("worker crashed")
	})

	_, err := r.Run(context.Background(), newState())
	if err == nil || !strings.Contains(err.Error(), "worker crashed") {
		t.Fatalf("expected node error surfaced, got %v", err)
	}
}
