// Package metrics defines the performance data model for the Juno system:
// per-task execution records, per-team performance trackers, performance
// targets, and team resource configuration.
//
// Derived values (duration, deadline compliance, deadline buffer) are
// computed here and nowhere else, so every consumer answers "was this late"
// the same way.
package metrics

import "time"

// TaskRecord captures the outcome of a single unit of work performed by a
// team or agent. Records are created when the work finishes (or fails) and
// are immutable afterward, except for a single late quality-score patch
// applied by the review step.
type TaskRecord struct {
	TaskID      string // Unique identifier for the unit of work
	TeamName    string // Team that performed the work
	AgentName   string // Agent within the team (or "team" for whole-team work)
	Description string // Human-readable description of the work

	StartTime time.Time
	EndTime   time.Time
	Deadline  time.Time // Zero value means no deadline was set

	Success      bool
	ErrorMessage string  // Populated when Success is false
	Quality      float64 // Quality score in [0, 1]
	TaskSize     float64 // Relative size multiplier (1.0 is standard)
	TokensUsed   int64   // Token/cost counter for the work
	AgentCount   int     // Agents the team held when the work ran
}

// Duration returns how long the task took. Returns 0 when either timestamp
// is missing.
func (r *TaskRecord) Duration() time.Duration {
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// DeadlineMet reports whether the task finished within its deadline.
// A record with no deadline always meets it.
func (r *TaskRecord) DeadlineMet() bool {
	if r.Deadline.IsZero() {
		return true
	}
	return !r.EndTime.After(r.Deadline)
}

// DeadlineBuffer returns the slack (positive) or overrun (negative) relative
// to the deadline. Returns 0 when no deadline was set.
func (r *TaskRecord) DeadlineBuffer() time.Duration {
	if r.Deadline.IsZero() {
		return 0
	}
	return r.Deadline.Sub(r.EndTime)
}

// Clone returns a copy of the record.
func (r *TaskRecord) Clone() *TaskRecord {
	c := *r
	return &c
}

// TeamPerformance is an aggregate performance snapshot for a team, used by
// the resource scaling evaluator to compare periods before and after a
// capacity change.
type TeamPerformance struct {
	AvgQuality      float64
	SuccessRate     float64
	AvgDuration     float64 // seconds
	DeadlineMetRate float64
}

// AggregatePerformance computes a TeamPerformance snapshot over the given
// records. All fields are zero when the slice is empty.
func AggregatePerformance(records []*TaskRecord) TeamPerformance {
	if len(records) == 0 {
		return TeamPerformance{}
	}

	var quality, duration float64
	var successes, deadlinesMet int
	for _, r := range records {
		quality += r.Quality
		duration += r.Duration().Seconds()
		if r.Success {
			successes++
		}
		if r.DeadlineMet() {
			deadlinesMet++
		}
	}

	n := float64(len(records))
	return TeamPerformance{
		AvgQuality:      quality / n,
		SuccessRate:     float64(successes) / n,
		AvgDuration:     duration / n,
		DeadlineMetRate: float64(deadlinesMet) / n,
	}
}
