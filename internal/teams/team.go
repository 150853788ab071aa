// Package teams wires the worker teams, the improvement team, and the task
// generator into the routing graph, and assembles the top-level system.
package teams

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/and-other-tales/juno/internal/logger"
	"github.com/and-other-tales/juno/internal/metrics"
	"github.com/and-other-tales/juno/internal/oracle"
	"github.com/and-other-tales/juno/internal/router"
	"github.com/and-other-tales/juno/internal/state"
)

// Worker is one agent inside a team. Run performs the unit of work and
// returns the (possibly updated) state plus the worker's textual output.
type Worker struct {
	Name string
	Run  func(ctx context.Context, st *state.RunState) (*state.RunState, string, error)
}

// Team is a nested supervisor over its workers: it delegates via the
// routing oracle, each worker returns to the team supervisor, and "end"
// hands control back to the parent graph.
type Team struct {
	Name string // team name, e.g. "research"

	oracle oracle.Oracle
	log    logger.Logger
	now    func() time.Time
	r      *router.Router
}

// NewTeam builds a team over its workers. maxSteps bounds one activation of
// the team's routing loop.
func NewTeam(name string, o oracle.Oracle, log logger.Logger, workers []*Worker, maxSteps int) *Team {
	t := &Team{
		Name:   name,
		oracle: o,
		log:    log,
		now:    time.Now,
	}

	members := make([]string, len(workers))
	for i, w := range workers {
		members[i] = w.Name
	}

	t.r = router.New(name, members, t.route(members))
	t.r.Fallback = members[0]
	t.r.MaxSteps = maxSteps
	for _, w := range workers {
		t.r.Handle(w.Name, t.workerNode(w))
	}
	return t
}

// route asks the oracle which worker should act next.
func (t *Team) route(members []string) router.RouteFunc {
	return func(ctx context.Context, st *state.RunState) (string, error) {
		return t.oracle.Route(ctx, oracle.RouteRequest{
			Supervisor: t.Name,
			Members:    members,
			History:    t.history(st),
		})
	}
}

// history summarizes what the team supervisor knows for the routing prompt.
func (t *Team) history(st *state.RunState) []string {
	var h []string
	if st.CurrentTask != "" {
		h = append(h, "task: "+st.CurrentTask)
	}
	if result := st.TeamResults[t.Name]; result != "" {
		h = append(h, "progress so far:\n"+tail(result, 2000))
	}
	if fb := st.SupervisorFeedback[t.Name]; len(fb) > 0 {
		h = append(h, "latest feedback: "+fb[len(fb)-1])
	}
	return h
}

// Node returns this team as a single node in the parent graph. Routing
// failures inside the team are absorbed: the parent always gets control
// back with whatever the team managed to produce.
func (t *Team) Node() router.NodeFunc {
	return func(ctx context.Context, st *state.RunState) (*state.RunState, error) {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		out, err := t.r.Run(ctx, st)
		if err != nil {
			if ctx.Err() != nil {
				return out, err
			}
			next := out.Clone()
			next.AppendNotice("ERROR: %s team halted early: %v", t.Name, err)
			t.log.Errorf("%s team halted early: %v", t.Name, err)
			return next, nil
		}
		return out, nil
	}
}

// workerNode wraps a worker so every activation produces a task record.
// Worker failures become failed records and an error tally, never a halted
// run.
func (t *Team) workerNode(w *Worker) router.NodeFunc {
	return func(ctx context.Context, st *state.RunState) (*state.RunState, error) {
		start := t.now()
		next, output, err := w.Run(ctx, st)
		if next == nil {
			next = st
		}
		next = next.Clone()
		end := t.now()

		rec := &metrics.TaskRecord{
			TaskID:      st.CurrentTaskID,
			TeamName:    t.Name,
			AgentName:   w.Name,
			Description: fmt.Sprintf("%s/%s: %s", t.Name, w.Name, firstLine(st.CurrentTask)),
			StartTime:   start,
			EndTime:     end,
			Deadline:    st.CurrentTaskDeadline,
			TaskSize:    st.CurrentTaskSize,
			AgentCount:  st.AgentCount(t.Name),
		}

		if err != nil {
			rec.Success = false
			rec.ErrorMessage = err.Error()
			next.Performance(t.Name).ErrorCount++
			next.AppendNotice("ERROR: %s worker %s failed: %v", t.Name, w.Name, err)
			t.log.Errorf("%s worker %s failed: %v", t.Name, w.Name, err)
		} else {
			rec.Success = true
			if output != "" {
				existing := next.TeamResults[t.Name]
				section := fmt.Sprintf("## %s\n%s\n", w.Name, output)
				if existing == "" {
					next.TeamResults[t.Name] = section
				} else {
					next.TeamResults[t.Name] = existing + "\n" + section
				}
			}
			t.log.Debugf("%s worker %s finished in %s", t.Name, w.Name, end.Sub(start))
		}

		next.AppendRecord(rec)
		return next, nil
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
