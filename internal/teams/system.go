package teams

import (
	"context"
	"time"

	"github.com/and-other-tales/juno/internal/evaluation"
	"github.com/and-other-tales/juno/internal/grading"
	"github.com/and-other-tales/juno/internal/history"
	"github.com/and-other-tales/juno/internal/logger"
	"github.com/and-other-tales/juno/internal/metrics"
	"github.com/and-other-tales/juno/internal/oracle"
	"github.com/and-other-tales/juno/internal/router"
	"github.com/and-other-tales/juno/internal/state"
	"github.com/and-other-tales/juno/internal/tools"
	"github.com/and-other-tales/juno/internal/workload"
)

// SystemConfig carries everything needed to assemble the control loop.
type SystemConfig struct {
	Oracle    oracle.Oracle
	Log       logger.Logger
	Workload  *workload.Manager
	Engine    *evaluation.Engine
	Searcher  *tools.Searcher
	Workspace *tools.Workspace

	// Sandbox, when set, verifies proposed code fixes. Nil skips checks.
	Sandbox *tools.Sandbox

	Thresholds metrics.Thresholds

	// EnabledTeams lists the worker teams to run. Empty means all of them.
	EnabledTeams []string

	MaxCycles    int
	AutoGenerate bool
	Categories   []string
	Targets      map[string]float64

	// RecursionLimit bounds both the top-level and per-team routing loops.
	RecursionLimit int

	// History, when set, persists records as they land in state.
	History *history.Store
}

// System is the assembled two-level control loop: the top-level supervisor
// over the worker teams, the improvement team, and the task generator.
type System struct {
	cfg     SystemConfig
	grading *grading.Loop
	top     *router.Router

	// reviewTeam is the team whose result is the task's final output; its
	// activation triggers the review pass.
	reviewTeam string

	persisted int // records already written to history
}

// NewSystem assembles the control loop from its components.
func NewSystem(cfg SystemConfig) *System {
	if cfg.Log == nil {
		cfg.Log = logger.NewNoOpLogger()
	}
	if cfg.RecursionLimit <= 0 {
		cfg.RecursionLimit = router.DefaultMaxSteps
	}
	if cfg.Thresholds == (metrics.Thresholds{}) {
		cfg.Thresholds = metrics.DefaultThresholds()
	}

	enabled := cfg.EnabledTeams
	if len(enabled) == 0 {
		enabled = []string{state.TeamResearch, state.TeamWriting}
	}

	s := &System{cfg: cfg, reviewTeam: enabled[len(enabled)-1]}
	s.grading = grading.NewLoop(cfg.Oracle, cfg.Workload, enabled, cfg.Log)

	generator := &Generator{
		Oracle:       cfg.Oracle,
		Log:          cfg.Log,
		AutoGenerate: cfg.AutoGenerate,
		Categories:   cfg.Categories,
		MaxCycles:    cfg.MaxCycles,
		Targets:      cfg.Targets,
	}
	workerNodes := map[string]string{
		state.TeamResearch: state.NodeResearchTeam,
		state.TeamWriting:  state.NodeWritingTeam,
	}
	generator.StartNode = workerNodes[enabled[0]]
	members := []string{state.NodeTaskGenerator}
	for _, team := range enabled {
		members = append(members, workerNodes[team])
	}
	members = append(members, state.NodeJunoTeam)

	s.top = router.New(state.NodeSupervisor, members, s.route(members))
	s.top.Preempt = s.preempt
	s.top.Fallback = workerNodes[enabled[0]]
	s.top.MaxSteps = cfg.RecursionLimit

	s.top.Handle(state.NodeTaskGenerator, generator.Node())
	for _, team := range enabled {
		var t *Team
		switch team {
		case state.TeamResearch:
			t = NewTeam(team, cfg.Oracle, cfg.Log,
				ResearchWorkers(cfg.Oracle, cfg.Searcher), cfg.RecursionLimit)
		case state.TeamWriting:
			t = NewTeam(team, cfg.Oracle, cfg.Log,
				WritingWorkers(cfg.Oracle, cfg.Workspace), cfg.RecursionLimit)
		}
		s.top.Handle(workerNodes[team], s.teamNode(t, true))
	}
	juno := NewTeam(state.TeamJuno, cfg.Oracle, cfg.Log,
		JunoWorkers(cfg.Oracle, cfg.Engine, cfg.Sandbox, cfg.Log), cfg.RecursionLimit)
	s.top.Handle(state.NodeJunoTeam, s.teamNode(juno, false))

	return s
}

// Run drives the control loop to completion and returns the final state.
func (s *System) Run(ctx context.Context, st *state.RunState) (*state.RunState, error) {
	out, err := s.top.Run(ctx, st)
	if out != nil {
		s.persist(out)
	}
	return out, err
}

// route delegates the top-level next-hop decision to the oracle.
func (s *System) route(members []string) router.RouteFunc {
	return func(ctx context.Context, st *state.RunState) (string, error) {
		return s.cfg.Oracle.Route(ctx, oracle.RouteRequest{
			Supervisor: state.NodeSupervisor,
			Members:    members,
			History:    recentNotices(st, 10),
		})
	}
}

// preempt applies the supervisor's unconditional transitions: a missing
// task goes to the generator, and a team that signals needs-improvement or
// a low-quality streak at the limit goes to the improvement team. The
// improvement preemption stands down once the current issue backlog has
// been addressed, so a permanently elevated error count cannot starve the
// worker teams.
func (s *System) preempt(st *state.RunState) string {
	if st.CurrentTask == "" {
		return state.NodeTaskGenerator
	}
	for _, streak := range st.LowQualityStreaks {
		if streak >= grading.LowQualityLimit {
			return state.NodeJunoTeam
		}
	}
	if s.backlogUnaddressed(st) {
		for _, perf := range st.Performances {
			if perf.NeedsImprovement(s.cfg.Thresholds) {
				return state.NodeJunoTeam
			}
		}
	}
	return ""
}

// backlogUnaddressed reports whether issues have accumulated since the
// last recorded code change.
func (s *System) backlogUnaddressed(st *state.RunState) bool {
	if len(st.CodeChanges) == 0 {
		return true
	}
	last := st.CodeChanges[len(st.CodeChanges)-1]
	return len(st.IssuesIdentified) > len(last.IssuesFixed)
}

// teamNode wraps a team so its output is graded (for worker teams) and its
// new records are persisted and logged after every activation.
func (s *System) teamNode(t *Team, graded bool) router.NodeFunc {
	node := t.Node()
	return func(ctx context.Context, st *state.RunState) (*state.RunState, error) {
		before := len(st.Records)

		out, err := node(ctx, st)
		if err != nil {
			return out, err
		}
		if graded {
			if t.Name == s.reviewTeam {
				out = s.review(ctx, out)
			}
			out = s.grading.ProcessFeedback(ctx, out)
		}

		s.logTeamOutcome(t.Name, out.Records[before:])
		s.persist(out)
		return out, nil
	}
}

// review scores the task's final output as a whole and back-fills the
// quality of every record the task produced, in state and in history. It
// runs once per task, before grading, so the per-team grade still lands on
// each team's newest record afterwards.
func (s *System) review(ctx context.Context, st *state.RunState) *state.RunState {
	if st.CurrentTask == "" || st.CurrentTaskID == "" {
		return st
	}
	result := st.TeamResults[s.reviewTeam]
	if result == "" {
		return st
	}
	if _, done := st.ReviewScores[st.CurrentTaskID]; done {
		return st
	}

	grade, err := s.cfg.Oracle.Review(ctx, st.CurrentTask, result)
	if err != nil {
		grade = oracle.NeutralGrade(err.Error())
	}
	score := oracle.ClampScore(grade.Score)

	next := st.Clone()
	next.ReviewScores[st.CurrentTaskID] = score
	next.ReviewComments[st.CurrentTaskID] = grade.Comments
	patched := next.PatchQuality(st.CurrentTaskID, score)
	next.AppendNotice("REVIEW: task %s scored %.2f, %d records updated",
		st.CurrentTaskID, score, patched)

	if s.cfg.History != nil {
		if _, err := s.cfg.History.PatchQuality(st.CurrentTaskID, score); err != nil {
			s.cfg.Log.Warnf("failed to patch history quality for task %s: %v", st.CurrentTaskID, err)
		}
	}
	return next
}

// logTeamOutcome reports the team's activation from the records it added.
func (s *System) logTeamOutcome(team string, added []*metrics.TaskRecord) {
	if len(added) == 0 {
		return
	}
	success := true
	var total time.Duration
	for _, r := range added {
		if !r.Success {
			success = false
		}
		total += r.Duration()
	}
	s.cfg.Log.TeamResult(team, success, total)
}

// persist appends any records not yet written to the history store.
func (s *System) persist(st *state.RunState) {
	if s.cfg.History == nil {
		return
	}
	for ; s.persisted < len(st.Records); s.persisted++ {
		rec := st.Records[s.persisted]
		if err := s.cfg.History.Append(st.RunID, rec); err != nil {
			s.cfg.Log.Warnf("failed to persist task record %s: %v", rec.TaskID, err)
			return
		}
	}
}

// recentNotices returns up to n of the newest run notices.
func recentNotices(st *state.RunState, n int) []string {
	if len(st.Notices) <= n {
		return st.Notices
	}
	return st.Notices[len(st.Notices)-n:]
}
