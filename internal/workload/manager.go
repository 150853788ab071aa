// Package workload implements dynamic workload pressure: random task-size
// inflation, deadline assignment, and resource-need evaluation over the
// rolling metrics window.
package workload

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/and-other-tales/juno/internal/metrics"
	"github.com/and-other-tales/juno/internal/state"
)

// recentWindow is how many trailing task records the resource-need
// evaluation considers.
const recentWindow = 10

// Config holds the workload management knobs.
type Config struct {
	// DynamicWorkload enables random task-size increases.
	DynamicWorkload bool

	// IncreaseProbability is the chance per adjustment pass that the task
	// size grows.
	IncreaseProbability float64

	// MaxSizeMultiplier caps the task size.
	MaxSizeMultiplier float64

	// DefaultDeadlineMinutes is the base deadline before size scaling and
	// jitter.
	DefaultDeadlineMinutes int

	// ResourceScaling enables resource-need evaluation.
	ResourceScaling bool
}

// Manager applies workload and deadline pressure to a run.
// The rand source and clock are injectable for deterministic tests.
type Manager struct {
	cfg Config
	rng *rand.Rand
	now func() time.Time
}

// NewManager creates a workload manager with a time-seeded rand source.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
}

// NewManagerWithSource creates a workload manager with the given rand source
// and clock. Used by tests.
func NewManagerWithSource(cfg Config, src rand.Source, now func() time.Time) *Manager {
	return &Manager{cfg: cfg, rng: rand.New(src), now: now}
}

// MaybeIncreaseWorkload decides whether the current task's size multiplier
// should grow. Returns (false, current size) when dynamic workload is
// disabled, the random draw does not fire, or the multiplier is already at
// its cap. Otherwise the multiplier grows by a uniform amount in [0.2, 0.5],
// capped at the maximum and rounded to one decimal.
func (m *Manager) MaybeIncreaseWorkload(st *state.RunState) (bool, float64) {
	current := st.CurrentTaskSize
	if current == 0 {
		current = 1.0
	}

	if !m.cfg.DynamicWorkload {
		return false, current
	}
	if m.rng.Float64() > m.cfg.IncreaseProbability {
		return false, current
	}
	if current >= m.cfg.MaxSizeMultiplier {
		return false, current
	}

	next := current + 0.2 + m.rng.Float64()*0.3
	if next > m.cfg.MaxSizeMultiplier {
		next = m.cfg.MaxSizeMultiplier
	}
	return true, math.Round(next*10) / 10
}

// ComputeDeadline returns the deadline for a task of the given size: the
// base deadline scaled by size with a uniform ±10% jitter, from now.
func (m *Manager) ComputeDeadline(taskSize float64) time.Time {
	base := float64(m.cfg.DefaultDeadlineMinutes) * 60
	jitter := 0.9 + m.rng.Float64()*0.2
	seconds := base * taskSize * jitter
	return m.now().Add(time.Duration(seconds * float64(time.Second)))
}

// EvaluateResourceNeed inspects the rolling metrics window and decides
// whether a team should be granted an extra agent. Returns nil when scaling
// is disabled, there are no recent records, performance is acceptable
// (deadline miss rate under 0.2 and average quality above 0.7), no team has
// missed a deadline, or the worst offender is already at capacity.
func (m *Manager) EvaluateResourceNeed(st *state.RunState) *metrics.ResourceChangeRequest {
	if !m.cfg.ResourceScaling {
		return nil
	}
	recent := st.RecentRecords(recentWindow)
	if len(recent) == 0 {
		return nil
	}

	missed := 0
	var quality float64
	teamMissed := make(map[string]int)
	for _, r := range recent {
		quality += r.Quality
		if !r.DeadlineMet() {
			missed++
			teamMissed[r.TeamName]++
		}
	}
	missRate := float64(missed) / float64(len(recent))
	avgQuality := quality / float64(len(recent))

	if missRate < 0.2 && avgQuality > 0.7 {
		return nil
	}

	problemTeam := ""
	worst := 0
	for team, n := range teamMissed {
		if n > worst {
			problemTeam, worst = team, n
		}
	}
	if problemTeam == "" {
		return nil
	}

	rc, ok := st.Resources[problemTeam]
	if !ok || rc.AtCapacity() {
		return nil
	}

	return &metrics.ResourceChangeRequest{
		Team:              problemTeam,
		CurrentAgents:     rc.CurrentAgents,
		RecommendedAgents: rc.CurrentAgents + 1,
		Reason:            fmt.Sprintf("high deadline miss rate (%.1f%%) for team %s", missRate*100, problemTeam),
		Timestamp:         m.now(),
	}
}

// ApplyAdjustments runs the workload pass for the current task: maybe
// inflate the task size, assign a deadline if none is set, and evaluate
// resource needs. Each change that fires appends a notice. A resource
// request routes the run to the improvement team unless another routing
// target is already pending. No-op when there is no current task.
func (m *Manager) ApplyAdjustments(st *state.RunState) *state.RunState {
	if st.CurrentTask == "" {
		return st
	}
	updated := st.Clone()

	if increased, size := m.MaybeIncreaseWorkload(updated); increased {
		updated.CurrentTaskSize = size
		updated.AppendNotice("NOTICE: supervisor has increased the workload; task size is now %.1fx standard", size)
	}

	if updated.CurrentTaskDeadline.IsZero() {
		deadline := m.ComputeDeadline(updated.CurrentTaskSize)
		updated.CurrentTaskDeadline = deadline
		updated.AppendNotice("DEADLINE: this task must be completed by %s", deadline.Format("15:04:05"))
	}

	if req := m.EvaluateResourceNeed(updated); req != nil {
		updated.ResourceRequests = append(updated.ResourceRequests, req)
		if updated.Next == "" {
			updated.Next = state.NodeJunoTeam
			updated.AppendNotice("RESOURCE REQUEST: team %s requires additional resources; recommendation: increase from %d to %d agents (%s)",
				req.Team, req.CurrentAgents, req.RecommendedAgents, req.Reason)
		}
	}

	return updated
}
