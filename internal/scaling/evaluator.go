// Package scaling evaluates whether resource changes paid for themselves.
// The efficiency calculus compares weighted team performance before and
// after a capacity change against the resource cost ratio.
package scaling

import (
	"fmt"

	"github.com/and-other-tales/juno/internal/metrics"
	"github.com/and-other-tales/juno/internal/state"
)

// Performance-change weights. Quality and speed dominate; success rate and
// deadline compliance share the remainder.
const (
	qualityWeight  = 0.3
	successWeight  = 0.2
	speedWeight    = 0.3
	deadlineWeight = 0.2
)

// TeamPerformance computes the performance snapshot for a team over the
// records captured while the team held exactly agentCount agents. Returns an
// all-zero snapshot when no records match.
func TeamPerformance(st *state.RunState, team string, agentCount int) metrics.TeamPerformance {
	var matched []*metrics.TaskRecord
	for _, r := range st.Records {
		if r.TeamName == team && r.AgentCount == agentCount {
			matched = append(matched, r)
		}
	}
	return metrics.AggregatePerformance(matched)
}

// EfficiencyChange computes the single number that decides whether a scaling
// decision was worthwhile: the weighted performance change divided by the
// resource ratio, minus 1. Positive means the performance gain outpaced the
// added resource cost. Returns 0 when either agent count is 0.
//
// Each performance ratio defaults to 1.0 when its "before" value is 0 (no
// basis for comparison); the speed ratio inverts duration since lower is
// better, defaulting to 1.0 when the "after" duration is 0.
func EfficiencyChange(before, after metrics.TeamPerformance, oldAgents, newAgents int) float64 {
	if oldAgents == 0 || newAgents == 0 {
		return 0
	}
	resourceRatio := float64(newAgents) / float64(oldAgents)

	qualityRatio := 1.0
	if before.AvgQuality > 0 {
		qualityRatio = after.AvgQuality / before.AvgQuality
	}
	successRatio := 1.0
	if before.SuccessRate > 0 {
		successRatio = after.SuccessRate / before.SuccessRate
	}
	speedRatio := 1.0
	if after.AvgDuration > 0 {
		speedRatio = before.AvgDuration / after.AvgDuration
	}
	deadlineRatio := 1.0
	if before.DeadlineMetRate > 0 {
		deadlineRatio = after.DeadlineMetRate / before.DeadlineMetRate
	}

	performanceChange := qualityRatio*qualityWeight +
		successRatio*successWeight +
		speedRatio*speedWeight +
		deadlineRatio*deadlineWeight

	return performanceChange/resourceRatio - 1.0
}

// MonitorNewResource evaluates a team's performance before and after a
// capacity change and classifies the outcome into a narrative band.
func MonitorNewResource(st *state.RunState, team string, oldAgents, newAgents int) (bool, string, float64) {
	before := TeamPerformance(st, team, oldAgents)
	after := TeamPerformance(st, team, newAgents)
	change := EfficiencyChange(before, after, oldAgents, newAgents)

	success := change > 0
	var narrative string
	switch {
	case change > 0.2:
		narrative = fmt.Sprintf(
			"resource scaling for %s team was highly successful: efficiency improved by %.1f%%; the additional resources have significantly improved performance",
			team, change*100)
	case change > 0:
		narrative = fmt.Sprintf(
			"resource scaling for %s team was modestly successful: efficiency improved by %.1f%%; the additional resources have slightly improved performance",
			team, change*100)
	case change > -0.1:
		narrative = fmt.Sprintf(
			"resource scaling for %s team had neutral impact: efficiency changed by %.1f%%; the additional resources did not significantly affect performance",
			team, change*100)
	default:
		narrative = fmt.Sprintf(
			"resource scaling for %s team was inefficient: efficiency decreased by %.1f%%; consider optimizing or reverting the resource allocation",
			team, -change*100)
	}

	return success, narrative, change
}

// MonitoringReport renders a full monitoring report for an applied resource
// change, including a keep/monitor/revert recommendation.
func MonitoringReport(st *state.RunState, req *metrics.ResourceChangeRequest) string {
	_, narrative, change := MonitorNewResource(st, req.Team, req.CurrentAgents, req.RecommendedAgents)

	recommendation := "consider reverting to the previous resource allocation"
	switch {
	case change > 0.1:
		recommendation = "keep the new resource allocation"
	case change > -0.1:
		recommendation = "continue monitoring the resource allocation"
	}

	return fmt.Sprintf(
		"resource change monitoring report for team %s: %d -> %d agents at %s; efficiency change %.1f%%; %s; recommendation: %s",
		req.Team, req.CurrentAgents, req.RecommendedAgents,
		req.Timestamp.Format("2006-01-02 15:04:05"),
		change*100, narrative, recommendation)
}
