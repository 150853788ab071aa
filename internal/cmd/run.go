package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/and-other-tales/juno/internal/budget"
	"github.com/and-other-tales/juno/internal/config"
	"github.com/and-other-tales/juno/internal/evaluation"
	"github.com/and-other-tales/juno/internal/history"
	"github.com/and-other-tales/juno/internal/logger"
	"github.com/and-other-tales/juno/internal/oracle"
	"github.com/and-other-tales/juno/internal/state"
	"github.com/and-other-tales/juno/internal/teams"
	"github.com/and-other-tales/juno/internal/tools"
	"github.com/and-other-tales/juno/internal/workload"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Run the autonomous agent team loop",
		Long: `Run the control loop. With a task argument the teams work on that task
first; without one, tasks are generated automatically (unless auto
generation is disabled in the configuration).

Configuration is loaded from .juno/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  juno run                                   # Autonomous run with generated tasks
  juno run "Summarize recent fusion results" # Start from a specific task
  juno run --max-cycles 3                    # Bound the run to 3 cycles
  juno run --model sonnet --verbose          # Pick a model, show debug logs
  juno run --config custom.yaml              # Use a custom config file`,
		Args: cobra.ArbitraryArgs,
		RunE: runCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .juno/config.yaml)")
	cmd.Flags().String("model", "", "Model passed to the Claude CLI")
	cmd.Flags().Int("max-cycles", -1, "Maximum task cycles (0 = unbounded, -1 = use config)")
	cmd.Flags().Bool("verbose", false, "Show detailed execution information")
	cmd.Flags().Bool("no-auto", false, "Disable automatic task generation")
	cmd.Flags().String("workspace", "", "Directory for the writing team's documents")
	cmd.Flags().String("history-db", "", "Task record database path (empty string in config disables)")

	return cmd
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("model") {
		cfg.Model, _ = cmd.Flags().GetString("model")
	}
	if cmd.Flags().Changed("max-cycles") {
		cfg.Tasks.MaxCycles, _ = cmd.Flags().GetInt("max-cycles")
	}
	if noAuto, _ := cmd.Flags().GetBool("no-auto"); noAuto {
		cfg.Tasks.AutoGenerate = false
	}
	if cmd.Flags().Changed("workspace") {
		cfg.WorkspaceDir, _ = cmd.Flags().GetString("workspace")
	}
	if cmd.Flags().Changed("history-db") {
		cfg.HistoryDB, _ = cmd.Flags().GetString("history-db")
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.NewConsoleLogger(cmd.OutOrStdout(), cfg.LogLevel)

	tracker := budget.NewTracker()
	pricing := budget.DefaultPricing()[cfg.Model]
	llm := oracle.NewClaudeOracle(cfg.Model)
	llm.OnUsage = func(in, out int64, cost float64) {
		if cost == 0 {
			cost = pricing.Cost(in, out)
		}
		tracker.Add("oracle", in, out, cost)
	}

	workspace, err := tools.NewWorkspace(cfg.WorkspaceDir)
	if err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	var store *history.Store
	if cfg.HistoryDB != "" {
		store, err = history.NewStore(cfg.HistoryDB)
		if err != nil {
			return fmt.Errorf("open history database: %w", err)
		}
		defer store.Close()
	}

	system := teams.NewSystem(teams.SystemConfig{
		Oracle:         llm,
		Log:            log,
		Workload:       workload.NewManager(cfg.WorkloadSettings()),
		Engine:         evaluation.NewEngine(llm),
		Searcher:       tools.NewSearcher(cfg.SearchEndpoint),
		Workspace:      workspace,
		Sandbox:        tools.NewSandbox("python3"),
		Thresholds:     cfg.Thresholds(),
		EnabledTeams:   cfg.Teams.Enabled,
		MaxCycles:      cfg.Tasks.MaxCycles,
		AutoGenerate:   cfg.Tasks.AutoGenerate,
		Categories:     cfg.Tasks.Categories,
		Targets:        cfg.Tasks.Targets,
		RecursionLimit: cfg.RecursionLimit,
		History:        store,
	})

	allTeams := append(append([]string{}, cfg.Teams.Enabled...), state.TeamJuno)
	st := state.New(allTeams, cfg.Teams.MinAgents, cfg.Teams.MaxAgents, cfg.QualityThreshold)
	if len(args) > 0 {
		st.CurrentTask = strings.Join(args, " ")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	final, runErr := system.Run(ctx, st)

	if final != nil {
		log.RunSummary(final.CycleCount, len(final.CompletedTasks),
			final.MissedDeadlines, time.Since(start))
		printUsage(cmd, tracker)
	}

	if runErr != nil {
		if ctx.Err() != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "\nRun interrupted.\n")
			return nil
		}
		return fmt.Errorf("run failed: %w", runErr)
	}
	return nil
}

// loadConfig loads configuration from the --config flag or the default
// location.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, nil
	}
	cfg, err := config.LoadConfigFromDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// printUsage reports accumulated oracle usage for the run.
func printUsage(cmd *cobra.Command, tracker *budget.Tracker) {
	total := tracker.Total()
	if total.Calls == 0 {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Oracle usage: %d calls, %d tokens (%d in / %d out), $%.4f\n",
		total.Calls, total.TotalTokens(), total.InputTokens, total.OutputTokens, total.CostUSD)
	if tokensPerMinute, costPerHour := tracker.BurnRate(); tokensPerMinute > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Burn rate: %.0f tokens/min, $%.2f/hr\n",
			tokensPerMinute, costPerHour)
	}
}
