// Package grading implements the supervisor feedback loop: grade each
// team's output for the current task, track quality streaks and deadline
// misses, and escalate persistent problems into the improvement pipeline.
package grading

import (
	"context"
	"fmt"
	"time"

	"github.com/and-other-tales/juno/internal/logger"
	"github.com/and-other-tales/juno/internal/metrics"
	"github.com/and-other-tales/juno/internal/oracle"
	"github.com/and-other-tales/juno/internal/state"
	"github.com/and-other-tales/juno/internal/workload"
)

// Escalation limits. A team escalates when its low-quality streak or the
// run's missed-deadline count reaches these, or when a resource change
// request is already pending.
const (
	LowQualityLimit     = 3
	MissedDeadlineLimit = 2
)

// Loop grades team results and maintains the quality pressure counters.
type Loop struct {
	Oracle   oracle.Oracle
	Workload *workload.Manager
	Log      logger.Logger

	// ActiveTeams are the teams expected to produce a result for each task.
	ActiveTeams []string

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// NewLoop creates a grading loop over the given oracle and workload manager.
func NewLoop(o oracle.Oracle, wl *workload.Manager, activeTeams []string, log logger.Logger) *Loop {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Loop{
		Oracle:      o,
		Workload:    wl,
		Log:         log,
		ActiveTeams: activeTeams,
		Now:         time.Now,
	}
}

// ProcessFeedback applies workload adjustments, grades every ungraded team
// result for the current task, and returns the updated state. Grading never
// halts the run: an oracle failure produces a neutral grade and the loop
// continues.
func (l *Loop) ProcessFeedback(ctx context.Context, st *state.RunState) *state.RunState {
	if l.Workload != nil {
		st = l.Workload.ApplyAdjustments(st)
	}

	next := st.Clone()
	now := l.Now()

	for _, team := range l.ActiveTeams {
		result, ok := next.TeamResults[team]
		if !ok || next.GradedTeams[team] {
			continue
		}
		l.gradeTeam(ctx, next, team, result, now)
	}

	if l.allGraded(next) {
		l.finishTask(next)
	}

	return next
}

// gradeTeam grades a single team's result and updates every counter that
// hangs off the score.
func (l *Loop) gradeTeam(ctx context.Context, st *state.RunState, team, result string, now time.Time) {
	grade, err := l.Oracle.Grade(ctx, team, st.CurrentTask, result)
	if err != nil {
		grade = oracle.NeutralGrade(err.Error())
	}
	score := oracle.ClampScore(grade.Score)

	good := score >= st.QualityThreshold
	deadlineMet := st.CurrentTaskDeadline.IsZero() || !now.After(st.CurrentTaskDeadline)

	rec := latestTaskRecord(st, team, st.CurrentTaskID)
	var duration time.Duration
	if rec != nil {
		rec.Quality = score
		duration = rec.Duration()
	}
	// A graded result is a successful execution regardless of score; the
	// error tally belongs to worker failures. Low scores apply pressure
	// through the streak counter instead.
	st.Performance(team).RecordGrade(score, true, duration)

	if good {
		st.LowQualityStreaks[team] = 0
	} else {
		st.LowQualityStreaks[team]++
	}
	if !deadlineMet {
		st.MissedDeadlines++
		st.AppendNotice("DEADLINE MISSED: team %s finished after the %s deadline",
			team, st.CurrentTaskDeadline.Format("15:04:05"))
	}

	feedback := fmt.Sprintf("score %.2f: %s", score, grade.Comments)
	st.SupervisorFeedback[team] = append(st.SupervisorFeedback[team], feedback)
	st.AppendNotice("GRADE: team %s scored %.2f on task %s", team, score, st.CurrentTaskID)
	st.GradedTeams[team] = true
	l.Log.Grade(team, score, deadlineMet)

	if reason, ok := l.shouldEscalate(st, team); ok {
		l.escalate(st, team, grade, reason)
	}
}

// shouldEscalate reports whether a team's situation warrants routing work
// into the improvement pipeline, and why.
func (l *Loop) shouldEscalate(st *state.RunState, team string) (string, bool) {
	if st.PendingResourceRequest() != nil {
		return "resource change pending", true
	}
	if streak := st.LowQualityStreaks[team]; streak >= LowQualityLimit {
		return fmt.Sprintf("low-quality streak at %d", streak), true
	}
	if st.MissedDeadlines >= MissedDeadlineLimit {
		return fmt.Sprintf("%d missed deadlines", st.MissedDeadlines), true
	}
	return "", false
}

// escalate records exactly one improvement message for the team and feeds
// the grade's issues into the identified-issues backlog.
func (l *Loop) escalate(st *state.RunState, team string, grade *oracle.Grade, reason string) {
	st.SupervisorFeedback[team] = append(st.SupervisorFeedback[team],
		fmt.Sprintf("improvement needed: team %s requires attention from the improvement pipeline", team))
	for _, issue := range grade.Issues {
		st.IssuesIdentified = append(st.IssuesIdentified, team+": "+issue)
	}
	st.Next = state.NodeJunoTeam
	st.AppendNotice("ESCALATION: team %s routed to improvement pipeline", team)
	l.Log.Escalation(team, reason)
}

// allGraded reports whether every active team has produced a result and
// been graded for the current task.
func (l *Loop) allGraded(st *state.RunState) bool {
	if len(l.ActiveTeams) == 0 {
		return false
	}
	for _, team := range l.ActiveTeams {
		if _, ok := st.TeamResults[team]; !ok || !st.GradedTeams[team] {
			return false
		}
	}
	return true
}

// finishTask closes out the current task once every result is graded:
// records completion, clears the per-task slots, and releases the workload
// pressure ahead of the next task.
func (l *Loop) finishTask(st *state.RunState) {
	if st.CurrentTaskID != "" {
		st.CompletedTasks = append(st.CompletedTasks, st.CurrentTaskID)
	}
	st.CurrentTask = ""
	st.CurrentTaskID = ""
	st.TeamResults = make(map[string]string)
	st.GradedTeams = make(map[string]bool)
	st.ResetTaskPressure()
}

// latestTaskRecord returns the newest record for a team and task, or nil.
func latestTaskRecord(st *state.RunState, team, taskID string) *metrics.TaskRecord {
	for i := len(st.Records) - 1; i >= 0; i-- {
		r := st.Records[i]
		if r.TeamName == team && r.TaskID == taskID {
			return r
		}
	}
	return nil
}
