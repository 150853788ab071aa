package metrics

import "time"

// Thresholds holds the cutoffs used to decide when a team needs an
// improvement cycle. The quality and success-rate checks intentionally use
// different sample-size minimums; both are kept configurable rather than
// unified.
type Thresholds struct {
	// MaxErrors triggers improvement once a team's error count reaches it,
	// regardless of quality scores.
	MaxErrors int

	// MinQualitySamples is the minimum number of quality scores required
	// before the average-quality check applies.
	MinQualitySamples int

	// LowQualityAvg is the average quality below which a team (with enough
	// samples) needs improvement.
	LowQualityAvg float64

	// MinSuccessRateSamples is the minimum number of attempts required
	// before the success-rate check applies.
	MinSuccessRateSamples int

	// MinSuccessRate is the success rate below which a team (with enough
	// attempts) needs improvement.
	MinSuccessRate float64
}

// DefaultThresholds returns the standard improvement thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxErrors:             3,
		MinQualitySamples:     3,
		LowQualityAvg:         0.5,
		MinSuccessRateSamples: 5,
		MinSuccessRate:        0.7,
	}
}

// AgentPerformance tracks graded outcomes for one team. It is appended to
// every time a team's output is graded and never deleted.
type AgentPerformance struct {
	AgentID       string
	TeamName      string
	QualityScores []float64
	SuccessCount  int
	ErrorCount    int
	TotalTime     time.Duration
}

// NewAgentPerformance creates an empty performance record for a team.
func NewAgentPerformance(team string) *AgentPerformance {
	return &AgentPerformance{AgentID: team, TeamName: team}
}

// AvgQuality returns the mean quality score, or 0 when no scores exist.
func (p *AgentPerformance) AvgQuality() float64 {
	if len(p.QualityScores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range p.QualityScores {
		sum += s
	}
	return sum / float64(len(p.QualityScores))
}

// SuccessRate returns successes over total attempts, or 1 when there is no
// data yet (optimistic default: a team that has not run has not failed).
func (p *AgentPerformance) SuccessRate() float64 {
	total := p.SuccessCount + p.ErrorCount
	if total == 0 {
		return 1.0
	}
	return float64(p.SuccessCount) / float64(total)
}

// NeedsImprovement reports whether the team's track record warrants an
// improvement cycle: too many errors, a low quality average over enough
// samples, or a low success rate over enough attempts.
func (p *AgentPerformance) NeedsImprovement(th Thresholds) bool {
	if p.ErrorCount >= th.MaxErrors {
		return true
	}
	if len(p.QualityScores) >= th.MinQualitySamples && p.AvgQuality() < th.LowQualityAvg {
		return true
	}
	total := p.SuccessCount + p.ErrorCount
	return total >= th.MinSuccessRateSamples && p.SuccessRate() < th.MinSuccessRate
}

// RecordGrade appends a graded outcome to the record.
func (p *AgentPerformance) RecordGrade(score float64, success bool, duration time.Duration) {
	p.QualityScores = append(p.QualityScores, score)
	if success {
		p.SuccessCount++
	} else {
		p.ErrorCount++
	}
	p.TotalTime += duration
}

// Clone returns a deep copy of the performance record.
func (p *AgentPerformance) Clone() *AgentPerformance {
	c := *p
	c.QualityScores = append([]float64(nil), p.QualityScores...)
	return &c
}

// PerformanceTarget pairs a named metric with its target and most recently
// computed value. Targets are created at cycle start from configuration and
// updated by the evaluation engine.
type PerformanceTarget struct {
	MetricName   string
	TargetValue  float64
	CurrentValue float64
	Description  string
}

// IsMet reports whether the current value has reached the target.
func (t *PerformanceTarget) IsMet() bool {
	return t.CurrentValue >= t.TargetValue
}

// Clone returns a copy of the target.
func (t *PerformanceTarget) Clone() *PerformanceTarget {
	c := *t
	return &c
}
