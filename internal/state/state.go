// Package state defines the run aggregate threaded through every component
// of the Juno control loop. Components never mutate a shared aggregate:
// they take a snapshot, clone it, and return the new version. This keeps
// independent runs trivially safe to execute concurrently and keeps tests
// free of shared fixtures.
package state

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/and-other-tales/juno/internal/metrics"
)

// Routing node names used by the hierarchical router.
const (
	NodeSupervisor    = "supervisor"
	NodeResearchTeam  = "research_team"
	NodeWritingTeam   = "writing_team"
	NodeJunoTeam      = "juno_team"
	NodeTaskGenerator = "task_generator"
	NodeEnd           = "end"
)

// Team names.
const (
	TeamResearch = "research"
	TeamWriting  = "writing"
	TeamJuno     = "juno"
)

// CodeChange records one applied improvement: which issues it addressed and
// which fixes were implemented.
type CodeChange struct {
	ID          string
	IssuesFixed []string
	Fixes       []string
	Timestamp   time.Time
}

// RunState is the aggregate for one autonomous run. Created at run start
// with defaults, cloned and returned by every component, discarded when the
// run ends.
type RunState struct {
	RunID string

	// Current task
	CurrentTask         string
	CurrentTaskID       string
	CurrentTaskDeadline time.Time // Zero means no deadline assigned yet
	CurrentTaskSize     float64   // Size multiplier, 1.0 is standard

	// Cycle tracking
	CompletedTasks      []string
	CycleCount          int
	TaskGenerationCount int

	// Routing
	Next string // Pending routing target, empty when none

	// Team output slots for the current task, keyed by team name
	TeamResults map[string]string
	GradedTeams map[string]bool

	// Rolling metrics log, append-only
	Records []*metrics.TaskRecord

	// Performance tracking
	Targets      []*metrics.PerformanceTarget
	Performances map[string]*metrics.AgentPerformance

	// Resource management. Pending requests are consumed exactly once;
	// applied ones move to AppliedRequests for later effectiveness review.
	Resources        map[string]*metrics.ResourceConfig
	ResourceRequests []*metrics.ResourceChangeRequest
	AppliedRequests  []*metrics.ResourceChangeRequest

	// Quality tracking
	QualityThreshold  float64
	LowQualityStreaks map[string]int
	MissedDeadlines   int

	// Feedback and improvement logs
	SupervisorFeedback map[string][]string
	IssuesIdentified   []string
	FixesImplemented   []string
	CodeChanges        []CodeChange

	// Review results keyed by task id
	ReviewScores   map[string]float64
	ReviewComments map[string]string

	// Human-readable notices emitted during the run
	Notices []string
}

// New creates a run state with defaults for the given teams. Each team gets
// an empty performance record, a zeroed low-quality streak, and a resource
// configuration bounded by minAgents/maxAgents.
func New(teams []string, minAgents, maxAgents int, qualityThreshold float64) *RunState {
	st := &RunState{
		RunID:              uuid.NewString(),
		CurrentTaskSize:    1.0,
		QualityThreshold:   qualityThreshold,
		TeamResults:        make(map[string]string),
		GradedTeams:        make(map[string]bool),
		Performances:       make(map[string]*metrics.AgentPerformance),
		Resources:          make(map[string]*metrics.ResourceConfig),
		LowQualityStreaks:  make(map[string]int),
		SupervisorFeedback: make(map[string][]string),
		ReviewScores:       make(map[string]float64),
		ReviewComments:     make(map[string]string),
	}
	for _, team := range teams {
		st.Resources[team] = metrics.NewResourceConfig(team, minAgents, maxAgents)
		st.LowQualityStreaks[team] = 0
		st.SupervisorFeedback[team] = nil
	}
	return st
}

// Clone returns a deep copy of the aggregate.
func (st *RunState) Clone() *RunState {
	c := *st

	c.CompletedTasks = append([]string(nil), st.CompletedTasks...)
	c.IssuesIdentified = append([]string(nil), st.IssuesIdentified...)
	c.FixesImplemented = append([]string(nil), st.FixesImplemented...)
	c.Notices = append([]string(nil), st.Notices...)

	c.TeamResults = make(map[string]string, len(st.TeamResults))
	for k, v := range st.TeamResults {
		c.TeamResults[k] = v
	}
	c.GradedTeams = make(map[string]bool, len(st.GradedTeams))
	for k, v := range st.GradedTeams {
		c.GradedTeams[k] = v
	}

	c.Records = make([]*metrics.TaskRecord, len(st.Records))
	for i, r := range st.Records {
		c.Records[i] = r.Clone()
	}

	c.Targets = make([]*metrics.PerformanceTarget, len(st.Targets))
	for i, t := range st.Targets {
		c.Targets[i] = t.Clone()
	}

	c.Performances = make(map[string]*metrics.AgentPerformance, len(st.Performances))
	for k, v := range st.Performances {
		c.Performances[k] = v.Clone()
	}

	c.Resources = make(map[string]*metrics.ResourceConfig, len(st.Resources))
	for k, v := range st.Resources {
		c.Resources[k] = v.Clone()
	}

	c.ResourceRequests = make([]*metrics.ResourceChangeRequest, len(st.ResourceRequests))
	for i, r := range st.ResourceRequests {
		c.ResourceRequests[i] = r.Clone()
	}
	c.AppliedRequests = make([]*metrics.ResourceChangeRequest, len(st.AppliedRequests))
	for i, r := range st.AppliedRequests {
		c.AppliedRequests[i] = r.Clone()
	}

	c.LowQualityStreaks = make(map[string]int, len(st.LowQualityStreaks))
	for k, v := range st.LowQualityStreaks {
		c.LowQualityStreaks[k] = v
	}

	c.SupervisorFeedback = make(map[string][]string, len(st.SupervisorFeedback))
	for k, v := range st.SupervisorFeedback {
		c.SupervisorFeedback[k] = append([]string(nil), v...)
	}

	c.CodeChanges = make([]CodeChange, len(st.CodeChanges))
	for i, cc := range st.CodeChanges {
		cp := cc
		cp.IssuesFixed = append([]string(nil), cc.IssuesFixed...)
		cp.Fixes = append([]string(nil), cc.Fixes...)
		c.CodeChanges[i] = cp
	}

	c.ReviewScores = make(map[string]float64, len(st.ReviewScores))
	for k, v := range st.ReviewScores {
		c.ReviewScores[k] = v
	}
	c.ReviewComments = make(map[string]string, len(st.ReviewComments))
	for k, v := range st.ReviewComments {
		c.ReviewComments[k] = v
	}

	return &c
}

// Performance returns the performance record for a team, creating an empty
// one on first use.
func (st *RunState) Performance(team string) *metrics.AgentPerformance {
	p, ok := st.Performances[team]
	if !ok {
		p = metrics.NewAgentPerformance(team)
		st.Performances[team] = p
	}
	return p
}

// AppendRecord adds a task record to the rolling log.
func (st *RunState) AppendRecord(rec *metrics.TaskRecord) {
	st.Records = append(st.Records, rec)
}

// RecentRecords returns up to n of the most recent task records.
func (st *RunState) RecentRecords(n int) []*metrics.TaskRecord {
	if n <= 0 || len(st.Records) == 0 {
		return nil
	}
	if len(st.Records) <= n {
		return st.Records
	}
	return st.Records[len(st.Records)-n:]
}

// TeamRecords returns all records for the given team.
func (st *RunState) TeamRecords(team string) []*metrics.TaskRecord {
	var out []*metrics.TaskRecord
	for _, r := range st.Records {
		if r.TeamName == team {
			out = append(out, r)
		}
	}
	return out
}

// AppendNotice adds a human-readable notice to the run log.
func (st *RunState) AppendNotice(format string, args ...any) {
	st.Notices = append(st.Notices, fmt.Sprintf(format, args...))
}

// PatchQuality applies the single sanctioned late mutation to the records
// log: the review step back-fills the quality score for every record of the
// given task. Returns the number of records patched.
func (st *RunState) PatchQuality(taskID string, score float64) int {
	patched := 0
	for _, r := range st.Records {
		if r.TaskID == taskID {
			r.Quality = score
			patched++
		}
	}
	return patched
}

// PendingResourceRequest returns the most recent unconsumed resource change
// request, or nil.
func (st *RunState) PendingResourceRequest() *metrics.ResourceChangeRequest {
	if len(st.ResourceRequests) == 0 {
		return nil
	}
	return st.ResourceRequests[len(st.ResourceRequests)-1]
}

// ApplyResourceRequest consumes the most recent resource change request and
// applies it to the team's resource configuration. This is the only path
// that mutates a ResourceConfig.
func (st *RunState) ApplyResourceRequest() (*metrics.ResourceChangeRequest, error) {
	req := st.PendingResourceRequest()
	if req == nil {
		return nil, fmt.Errorf("no pending resource change request")
	}
	rc, ok := st.Resources[req.Team]
	if !ok {
		return nil, fmt.Errorf("unknown team %q in resource change request", req.Team)
	}
	rc.SetAgents(req.RecommendedAgents)
	st.ResourceRequests = st.ResourceRequests[:len(st.ResourceRequests)-1]
	st.AppliedRequests = append(st.AppliedRequests, req)
	return req, nil
}

// LatestAppliedRequest returns the most recent applied resource change for a
// team, or nil.
func (st *RunState) LatestAppliedRequest(team string) *metrics.ResourceChangeRequest {
	for i := len(st.AppliedRequests) - 1; i >= 0; i-- {
		if st.AppliedRequests[i].Team == team {
			return st.AppliedRequests[i]
		}
	}
	return nil
}

// AgentCount returns the current agent count for a team, defaulting to 1 for
// unknown teams.
func (st *RunState) AgentCount(team string) int {
	if rc, ok := st.Resources[team]; ok {
		return rc.CurrentAgents
	}
	return 1
}

// ResetTaskPressure clears the deadline and size multiplier ahead of the
// next task.
func (st *RunState) ResetTaskPressure() {
	st.CurrentTaskDeadline = time.Time{}
	st.CurrentTaskSize = 1.0
}
