package teams

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/and-other-tales/juno/internal/evaluation"
	"github.com/and-other-tales/juno/internal/logger"
	"github.com/and-other-tales/juno/internal/oracle"
	"github.com/and-other-tales/juno/internal/scaling"
	"github.com/and-other-tales/juno/internal/state"
	"github.com/and-other-tales/juno/internal/tools"
)

// Improvement team worker names.
const (
	WorkerEvaluator = "evaluator"
	WorkerCodeAgent = "code_agent"
)

// JunoWorkers builds the improvement team: the evaluator rolls up system
// metrics and turns unmet targets into issues; the code agent applies
// pending resource changes or proposes code fixes for the issue backlog.
// A nil sandbox skips fix verification.
func JunoWorkers(o oracle.Oracle, engine *evaluation.Engine, sandbox *tools.Sandbox, log logger.Logger) []*Worker {
	evaluator := &Worker{
		Name: WorkerEvaluator,
		Run: func(ctx context.Context, st *state.RunState) (*state.RunState, string, error) {
			report := engine.EvaluateTaskPerformance(st)
			if report.InsufficientData {
				return st, "evaluation: insufficient data, no records yet", nil
			}

			next := st.Clone()
			for i, target := range next.Targets {
				for _, tr := range report.Targets {
					if tr.MetricName == target.MetricName {
						next.Targets[i].CurrentValue = tr.Current
					}
				}
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "system evaluation over %d records: overall score %.2f\n",
				report.TotalRecords, report.OverallScore)
			for _, tr := range report.Targets {
				if tr.Achieved {
					fmt.Fprintf(&sb, "target %s achieved (%.2f >= %.2f)\n", tr.MetricName, tr.Current, tr.Target)
					continue
				}
				issue := fmt.Sprintf("system: %s at %.2f, %.2f below the %.2f target",
					tr.MetricName, tr.Current, tr.Gap, tr.Target)
				if !containsIssue(next.IssuesIdentified, issue) {
					next.IssuesIdentified = append(next.IssuesIdentified, issue)
				}
				fmt.Fprintf(&sb, "%s\n", issue)
			}
			return next, sb.String(), nil
		},
	}

	codeAgent := &Worker{
		Name: WorkerCodeAgent,
		Run: func(ctx context.Context, st *state.RunState) (*state.RunState, string, error) {
			if st.PendingResourceRequest() != nil {
				return applyResourceChange(st, log)
			}
			return proposeFixes(ctx, o, sandbox, st)
		},
	}

	return []*Worker{evaluator, codeAgent}
}

// applyResourceChange consumes the pending resource request and reports on
// the change's efficiency so far.
func applyResourceChange(st *state.RunState, log logger.Logger) (*state.RunState, string, error) {
	next := st.Clone()
	req, err := next.ApplyResourceRequest()
	if err != nil {
		return st, "", err
	}
	log.ResourceChange(req.Team, req.CurrentAgents, req.RecommendedAgents)

	report := scaling.MonitoringReport(next, req)
	next.AppendNotice("RESOURCE CHANGE APPLIED: team %s now has %d agents (%s)",
		req.Team, next.AgentCount(req.Team), req.Reason)
	return next, report, nil
}

// proposeFixes asks the oracle for fixes to the issue backlog, records the
// resulting code change, verifies it through the sandbox when a check was
// proposed, and resets streaks for the teams it addressed.
func proposeFixes(ctx context.Context, o oracle.Oracle, sandbox *tools.Sandbox, st *state.RunState) (*state.RunState, string, error) {
	if len(st.IssuesIdentified) == 0 {
		return st, "no outstanding issues to address", nil
	}

	fix, err := o.ProposeCodeFix(ctx, st.IssuesIdentified, st.FixesImplemented)
	if err != nil {
		return st, "", err
	}

	next := st.Clone()
	change := state.CodeChange{
		ID:          uuid.NewString(),
		IssuesFixed: append([]string(nil), st.IssuesIdentified...),
		Fixes:       append([]string(nil), fix.Fixes...),
		Timestamp:   latestRecordTime(st),
	}
	next.CodeChanges = append(next.CodeChanges, change)
	next.FixesImplemented = append(next.FixesImplemented, fix.Fixes...)

	// A fresh start for every team whose issues were just addressed
	for _, issue := range change.IssuesFixed {
		if team, ok := issueTeam(issue); ok {
			if _, tracked := next.LowQualityStreaks[team]; tracked {
				next.LowQualityStreaks[team] = 0
			}
		}
	}

	next.AppendNotice("CODE CHANGE %s: %d fixes for %d issues",
		change.ID, len(change.Fixes), len(change.IssuesFixed))

	out := fix.Narrative
	if len(fix.Fixes) > 0 {
		out += "\nfixes:\n- " + strings.Join(fix.Fixes, "\n- ")
	}
	if sandbox != nil && fix.Check != "" {
		if _, err := sandbox.Submit(ctx, fix.Check); err != nil {
			next.AppendNotice("CODE CHANGE %s: verification failed: %v", change.ID, err)
			out += "\nverification failed: " + err.Error()
		} else {
			out += "\nverification passed"
		}
	}
	return next, out, nil
}

// latestRecordTime anchors a code change to the newest record so scaling
// and improvement evaluations split record history consistently.
func latestRecordTime(st *state.RunState) time.Time {
	if len(st.Records) > 0 {
		return st.Records[len(st.Records)-1].EndTime
	}
	return time.Now()
}

// issueTeam extracts the team prefix from an issue like "writing: too slow".
func issueTeam(issue string) (string, bool) {
	idx := strings.Index(issue, ":")
	if idx <= 0 {
		return "", false
	}
	team := strings.TrimSpace(issue[:idx])
	if team == "" || strings.ContainsRune(team, ' ') {
		return "", false
	}
	return team, true
}

func containsIssue(issues []string, issue string) bool {
	for _, i := range issues {
		if i == issue {
			return true
		}
	}
	return false
}
