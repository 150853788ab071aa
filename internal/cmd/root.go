// Package cmd wires the juno CLI: run the autonomous loop, report on a
// recorded run, and validate configuration.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for juno
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "juno",
		Short: "Self-improving hierarchical agent teams",
		Long: `Juno runs a hierarchy of Claude-backed agent teams under a supervising
control loop: a research team gathers sources, a writing team produces the
deliverable, and an improvement team evaluates the system and adjusts it.

Each team's output is graded, quality streaks and deadline misses are
tracked, and persistent problems are escalated into code-improvement and
resource-scaling cycles.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewReportCommand())
	cmd.AddCommand(NewValidateCommand())

	return cmd
}
