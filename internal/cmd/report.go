package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/and-other-tales/juno/internal/evaluation"
	"github.com/and-other-tales/juno/internal/history"
	"github.com/and-other-tales/juno/internal/oracle"
	"github.com/and-other-tales/juno/internal/state"
)

// NewReportCommand creates the report command
func NewReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Evaluate recorded task history",
		Long: `Roll up the persisted task records into a performance report: success
rate, quality, deadline compliance, and per-team breakdowns.

With --analyze, the numbers are additionally synthesized into a narrative
assessment by the model.

Examples:
  juno report                 # Numeric rollup of the recorded history
  juno report --limit 50      # Only the 50 most recent records
  juno report --analyze       # Include a model-written assessment`,
		RunE: reportCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .juno/config.yaml)")
	cmd.Flags().String("db", "", "History database path (default: from config)")
	cmd.Flags().Int("limit", 100, "Maximum number of records to evaluate")
	cmd.Flags().Bool("analyze", false, "Synthesize a narrative assessment via the model")

	return cmd
}

// reportCommand implements the report command logic
func reportCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		dbPath = cfg.HistoryDB
	}
	if dbPath == "" {
		return fmt.Errorf("no history database configured; set history_db or pass --db")
	}

	store, err := history.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open history database: %w", err)
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	records, err := store.Recent(limit)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}

	// Rebuild just enough state for the evaluation engine
	st := state.New(cfg.Teams.Enabled, cfg.Teams.MinAgents, cfg.Teams.MaxAgents, cfg.QualityThreshold)
	for _, rec := range records {
		st.AppendRecord(rec)
	}

	llm := oracle.NewClaudeOracle(cfg.Model)
	engine := evaluation.NewEngine(llm)

	out := cmd.OutOrStdout()
	performance := engine.EvaluateTaskPerformance(st)
	printPerformance(out, performance)

	if analyze, _ := cmd.Flags().GetBool("analyze"); analyze && !performance.InsufficientData {
		report := engine.GenerateReport(cmd.Context(), st)
		printAnalysis(out, report.Analysis)
	}
	return nil
}

func printPerformance(out io.Writer, report *evaluation.TaskPerformanceReport) {
	if report.InsufficientData {
		fmt.Fprintf(out, "No task records to evaluate.\n")
		return
	}

	fmt.Fprintf(out, "Task Performance (%d records):\n", report.TotalRecords)
	fmt.Fprintf(out, "  Success rate:      %.1f%%\n", report.SuccessRate*100)
	fmt.Fprintf(out, "  Average quality:   %.2f\n", report.AvgQuality)
	fmt.Fprintf(out, "  Deadline met rate: %.1f%%\n", report.DeadlineMetRate*100)
	fmt.Fprintf(out, "  Average duration:  %s\n", time.Duration(report.AvgDuration*float64(time.Second)).Round(time.Second))
	fmt.Fprintf(out, "  Average task size: %.1fx\n", report.AvgTaskSize)
	fmt.Fprintf(out, "  Overall score:     %.2f\n", report.OverallScore)

	if len(report.Teams) > 0 {
		fmt.Fprintf(out, "\nTeams:\n")
		names := make([]string, 0, len(report.Teams))
		for name := range report.Teams {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			team := report.Teams[name]
			fmt.Fprintf(out, "  %-10s quality %.2f, success %.1f%%, deadlines %.1f%%\n",
				name, team.AvgQuality, team.SuccessRate*100, team.DeadlineMetRate*100)
		}
	}

	for _, target := range report.Targets {
		if target.Achieved {
			fmt.Fprintf(out, "\n✓ Target %s met (%.2f >= %.2f)\n", target.MetricName, target.Current, target.Target)
		} else {
			fmt.Fprintf(out, "\n✗ Target %s missed (%.2f, %.2f short of %.2f)\n",
				target.MetricName, target.Current, target.Gap, target.Target)
		}
	}
}

func printAnalysis(out io.Writer, analysis *oracle.Analysis) {
	if analysis == nil {
		return
	}
	fmt.Fprintf(out, "\nAssessment:\n  %s\n", analysis.OverallAssessment)
	printList(out, "Strengths", analysis.Strengths)
	printList(out, "Weaknesses", analysis.Weaknesses)
	printList(out, "Recommendations", analysis.Recommendations)
	printList(out, "Scaling", analysis.ScalingRecommendations)
}

func printList(out io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(out, "  - %s\n", item)
	}
}
