package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Load the configuration, validate every value, and print the effective
settings the run would use.

Exit code: 0 if valid, 1 if errors found`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "✗ Configuration is invalid\n  %v\n", err)
				return fmt.Errorf("invalid configuration: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Configuration is valid\n\n")
			model := cfg.Model
			if model == "" {
				model = "(CLI default)"
			}
			fmt.Fprintf(out, "  Model:             %s\n", model)
			fmt.Fprintf(out, "  Teams:             %s\n", strings.Join(cfg.Teams.Enabled, ", "))
			fmt.Fprintf(out, "  Agents per team:   %d-%d\n", cfg.Teams.MinAgents, cfg.Teams.MaxAgents)
			fmt.Fprintf(out, "  Max cycles:        %d\n", cfg.Tasks.MaxCycles)
			fmt.Fprintf(out, "  Auto-generate:     %t\n", cfg.Tasks.AutoGenerate)
			fmt.Fprintf(out, "  Quality threshold: %.2f\n", cfg.QualityThreshold)
			fmt.Fprintf(out, "  Dynamic workload:  %t\n", cfg.Workload.Dynamic)
			fmt.Fprintf(out, "  Resource scaling:  %t\n", cfg.Workload.ResourceScaling)
			fmt.Fprintf(out, "  History database:  %s\n", orNone(cfg.HistoryDB))
			fmt.Fprintf(out, "  Workspace:         %s\n", cfg.WorkspaceDir)
			return nil
		},
		SilenceUsage: true,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .juno/config.yaml)")
	return cmd
}

func orNone(s string) string {
	if s == "" {
		return "(disabled)"
	}
	return s
}
