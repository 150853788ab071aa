// Package evaluation implements the periodic system rollups: aggregate task
// performance against targets, the measured impact of code improvements,
// resource scaling effectiveness, and the composed evaluation report.
package evaluation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/and-other-tales/juno/internal/metrics"
	"github.com/and-other-tales/juno/internal/oracle"
	"github.com/and-other-tales/juno/internal/scaling"
	"github.com/and-other-tales/juno/internal/state"
)

// Overall-score weights: deadline compliance counts most, then quality.
const (
	successScoreWeight  = 0.25
	qualityScoreWeight  = 0.35
	deadlineScoreWeight = 0.4
)

// TargetResult reports one performance target against its computed value.
type TargetResult struct {
	MetricName string
	Target     float64
	Current    float64
	Achieved   bool
	Gap        float64 // target - current when unmet, else 0
}

// TaskPerformanceReport is the aggregate rollup over all task records.
type TaskPerformanceReport struct {
	EvaluationID     string
	Timestamp        time.Time
	InsufficientData bool

	TotalRecords    int
	SuccessRate     float64
	AvgQuality      float64
	AvgDuration     float64 // seconds
	DeadlineMetRate float64
	AvgTaskSize     float64
	OverallScore    float64

	Teams   map[string]metrics.TeamPerformance
	Targets []TargetResult
}

// CodeImprovementReport measures metric movement since a baseline snapshot.
type CodeImprovementReport struct {
	EvaluationID string
	NoChanges    bool

	ChangesApplied   int
	BaselineID       string
	MetricDeltas     map[string]float64 // relative change per metric
	ComplexityFactor float64
	ImprovementScore float64
}

// TeamScalingResult is one team's before/after efficiency around its most
// recent applied resource change.
type TeamScalingResult struct {
	OldAgents        int
	NewAgents        int
	EfficiencyChange float64
	Narrative        string
}

// ResourceScalingReport aggregates scaling effectiveness across teams.
type ResourceScalingReport struct {
	EvaluationID         string
	Teams                map[string]TeamScalingResult
	OverallEffectiveness float64
}

// Report is the full composed evaluation.
type Report struct {
	ReportID     string
	GeneratedAt  time.Time
	Performance  *TaskPerformanceReport
	Improvements *CodeImprovementReport
	Scaling      *ResourceScalingReport
	Analysis     *oracle.Analysis
}

// Engine computes evaluations and retains performance snapshots so later
// evaluations can diff against earlier ones.
type Engine struct {
	Oracle oracle.Oracle

	// Now is the clock, overridable in tests.
	Now func() time.Time

	mu        sync.Mutex
	snapshots map[string]*TaskPerformanceReport
	order     []string // snapshot ids, oldest first
}

// NewEngine creates an evaluation engine over the given oracle.
func NewEngine(o oracle.Oracle) *Engine {
	return &Engine{
		Oracle:    o,
		Now:       time.Now,
		snapshots: make(map[string]*TaskPerformanceReport),
	}
}

// EvaluateTaskPerformance rolls up every task record into an aggregate
// report with a per-team breakdown and target comparison. The report is
// retained as a snapshot for later improvement diffs. An empty record log
// yields the insufficient-data sentinel with no team breakdown.
func (e *Engine) EvaluateTaskPerformance(st *state.RunState) *TaskPerformanceReport {
	report := &TaskPerformanceReport{
		EvaluationID: uuid.NewString(),
		Timestamp:    e.Now(),
	}

	if len(st.Records) == 0 {
		report.InsufficientData = true
		return report
	}

	var sizeSum float64
	byTeam := make(map[string][]*metrics.TaskRecord)
	for _, r := range st.Records {
		sizeSum += r.TaskSize
		byTeam[r.TeamName] = append(byTeam[r.TeamName], r)
	}

	overall := metrics.AggregatePerformance(st.Records)
	report.TotalRecords = len(st.Records)
	report.SuccessRate = overall.SuccessRate
	report.AvgQuality = overall.AvgQuality
	report.AvgDuration = overall.AvgDuration
	report.DeadlineMetRate = overall.DeadlineMetRate
	report.AvgTaskSize = sizeSum / float64(len(st.Records))
	report.OverallScore = successScoreWeight*overall.SuccessRate +
		qualityScoreWeight*overall.AvgQuality +
		deadlineScoreWeight*overall.DeadlineMetRate

	report.Teams = make(map[string]metrics.TeamPerformance, len(byTeam))
	for team, recs := range byTeam {
		report.Teams[team] = metrics.AggregatePerformance(recs)
	}

	for _, target := range st.Targets {
		current, ok := e.metricValue(report, target.MetricName)
		if !ok {
			current = target.CurrentValue
		}
		tr := TargetResult{
			MetricName: target.MetricName,
			Target:     target.TargetValue,
			Current:    current,
			Achieved:   current >= target.TargetValue,
		}
		if !tr.Achieved {
			tr.Gap = target.TargetValue - current
		}
		report.Targets = append(report.Targets, tr)
	}

	e.mu.Lock()
	e.snapshots[report.EvaluationID] = report
	e.order = append(e.order, report.EvaluationID)
	e.mu.Unlock()

	return report
}

// metricValue maps a target's metric name onto the computed report value.
func (e *Engine) metricValue(report *TaskPerformanceReport, name string) (float64, bool) {
	switch name {
	case "success_rate":
		return report.SuccessRate, true
	case "avg_quality", "quality":
		return report.AvgQuality, true
	case "deadline_met_rate":
		return report.DeadlineMetRate, true
	case "overall_score":
		return report.OverallScore, true
	default:
		return 0, false
	}
}

// Snapshot returns a stored performance snapshot by evaluation id.
func (e *Engine) Snapshot(id string) (*TaskPerformanceReport, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.snapshots[id]
	return s, ok
}

// earliestSnapshot returns the oldest stored snapshot, or nil.
func (e *Engine) earliestSnapshot() *TaskPerformanceReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range e.order {
		if s, ok := e.snapshots[id]; ok && !s.InsufficientData {
			return s
		}
	}
	return nil
}

// EvaluateCodeImprovements diffs current aggregate metrics against a stored
// baseline snapshot. baselineID may be empty, selecting the earliest
// snapshot. Without recorded code changes the report is the zero-impact
// sentinel.
func (e *Engine) EvaluateCodeImprovements(st *state.RunState, baselineID string) *CodeImprovementReport {
	report := &CodeImprovementReport{
		EvaluationID:     uuid.NewString(),
		ComplexityFactor: 1.0,
		MetricDeltas:     make(map[string]float64),
	}

	if len(st.CodeChanges) == 0 {
		report.NoChanges = true
		return report
	}
	report.ChangesApplied = len(st.CodeChanges)

	var baseline *TaskPerformanceReport
	if baselineID != "" {
		baseline, _ = e.Snapshot(baselineID)
	}
	if baseline == nil {
		baseline = e.earliestSnapshot()
	}

	current := e.EvaluateTaskPerformance(st)
	if baseline == nil || current.InsufficientData {
		return report
	}
	report.BaselineID = baseline.EvaluationID

	report.MetricDeltas["overall_score"] = relativeChange(baseline.OverallScore, current.OverallScore)
	report.MetricDeltas["success_rate"] = relativeChange(baseline.SuccessRate, current.SuccessRate)
	report.MetricDeltas["avg_quality"] = relativeChange(baseline.AvgQuality, current.AvgQuality)
	report.MetricDeltas["deadline_met_rate"] = relativeChange(baseline.DeadlineMetRate, current.DeadlineMetRate)

	// Harder tasks make flat metrics an improvement in disguise; scale the
	// score up by how much average task size grew.
	if baseline.AvgTaskSize > 0 && current.AvgTaskSize > baseline.AvgTaskSize {
		report.ComplexityFactor = current.AvgTaskSize / baseline.AvgTaskSize
	}

	// The overall-score delta is the improvement signal; the per-metric
	// deltas are reported for context only.
	report.ImprovementScore = report.MetricDeltas["overall_score"] * report.ComplexityFactor

	return report
}

// relativeChange returns (current-baseline)/baseline. Against a zero
// baseline the current value itself is the relative change.
func relativeChange(baseline, current float64) float64 {
	if baseline == 0 {
		return current
	}
	return (current - baseline) / baseline
}

// EvaluateResourceScaling splits each scaled team's records around its most
// recent applied resource change and reports before/after efficiency.
// Overall effectiveness is the mean efficiency change across scaled teams.
func (e *Engine) EvaluateResourceScaling(st *state.RunState) *ResourceScalingReport {
	report := &ResourceScalingReport{
		EvaluationID: uuid.NewString(),
		Teams:        make(map[string]TeamScalingResult),
	}

	teams := make(map[string]bool)
	for _, req := range st.AppliedRequests {
		teams[req.Team] = true
	}
	if len(teams) == 0 {
		return report
	}

	names := make([]string, 0, len(teams))
	for team := range teams {
		names = append(names, team)
	}
	sort.Strings(names)

	var sum float64
	for _, team := range names {
		req := st.LatestAppliedRequest(team)
		before, after := splitRecords(st.TeamRecords(team), req.Timestamp)
		change := scaling.EfficiencyChange(
			metrics.AggregatePerformance(before),
			metrics.AggregatePerformance(after),
			req.CurrentAgents, req.RecommendedAgents)
		_, narrative, _ := scaling.MonitorNewResource(st, team, req.CurrentAgents, req.RecommendedAgents)
		report.Teams[team] = TeamScalingResult{
			OldAgents:        req.CurrentAgents,
			NewAgents:        req.RecommendedAgents,
			EfficiencyChange: change,
			Narrative:        narrative,
		}
		sum += change
	}
	report.OverallEffectiveness = sum / float64(len(names))

	return report
}

// splitRecords partitions records into those started before the cutoff and
// the rest.
func splitRecords(records []*metrics.TaskRecord, cutoff time.Time) (before, after []*metrics.TaskRecord) {
	for _, r := range records {
		if r.StartTime.Before(cutoff) {
			before = append(before, r)
		} else {
			after = append(after, r)
		}
	}
	return before, after
}

// GenerateReport composes the three evaluations and asks the oracle for a
// narrative synthesis. A failed or malformed synthesis falls back to the
// fixed narrative; the report itself never fails.
func (e *Engine) GenerateReport(ctx context.Context, st *state.RunState) *Report {
	report := &Report{
		ReportID:     uuid.NewString(),
		GeneratedAt:  e.Now(),
		Performance:  e.EvaluateTaskPerformance(st),
		Improvements: e.EvaluateCodeImprovements(st, ""),
		Scaling:      e.EvaluateResourceScaling(st),
	}

	analysis, err := e.Oracle.Synthesize(ctx, e.summarize(report))
	if err != nil || analysis == nil {
		analysis = oracle.FallbackAnalysis()
	}
	report.Analysis = analysis

	return report
}

// summarize renders the numeric evaluations for the synthesis prompt.
func (e *Engine) summarize(report *Report) string {
	var sb strings.Builder

	perf := report.Performance
	if perf.InsufficientData {
		sb.WriteString("task performance: insufficient data\n")
	} else {
		fmt.Fprintf(&sb, "task performance over %d records: overall score %.2f, success rate %.2f, avg quality %.2f, deadline met rate %.2f, avg task size %.1fx\n",
			perf.TotalRecords, perf.OverallScore, perf.SuccessRate, perf.AvgQuality, perf.DeadlineMetRate, perf.AvgTaskSize)
		teams := make([]string, 0, len(perf.Teams))
		for team := range perf.Teams {
			teams = append(teams, team)
		}
		sort.Strings(teams)
		for _, team := range teams {
			tp := perf.Teams[team]
			fmt.Fprintf(&sb, "  team %s: quality %.2f, success %.2f, deadline met %.2f\n",
				team, tp.AvgQuality, tp.SuccessRate, tp.DeadlineMetRate)
		}
		for _, tr := range perf.Targets {
			status := "achieved"
			if !tr.Achieved {
				status = fmt.Sprintf("gap %.2f", tr.Gap)
			}
			fmt.Fprintf(&sb, "  target %s: %.2f vs %.2f (%s)\n", tr.MetricName, tr.Current, tr.Target, status)
		}
	}

	imp := report.Improvements
	if imp.NoChanges {
		sb.WriteString("code improvements: none applied\n")
	} else {
		fmt.Fprintf(&sb, "code improvements: %d applied, improvement score %.2f (complexity factor %.2f)\n",
			imp.ChangesApplied, imp.ImprovementScore, imp.ComplexityFactor)
	}

	if len(report.Scaling.Teams) == 0 {
		sb.WriteString("resource scaling: no changes applied\n")
	} else {
		fmt.Fprintf(&sb, "resource scaling: overall effectiveness %.2f\n", report.Scaling.OverallEffectiveness)
		teams := make([]string, 0, len(report.Scaling.Teams))
		for team := range report.Scaling.Teams {
			teams = append(teams, team)
		}
		sort.Strings(teams)
		for _, team := range teams {
			tr := report.Scaling.Teams[team]
			fmt.Fprintf(&sb, "  team %s: %d -> %d agents, efficiency change %.2f\n",
				team, tr.OldAgents, tr.NewAgents, tr.EfficiencyChange)
		}
	}

	return sb.String()
}
