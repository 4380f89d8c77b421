package cmd

import (
	"dbbackup/internal/tui"
	"github.com/spf13/cobra"
)

// interactiveCmd launches the Bubble Tea menu that drives the same nine
// operations as the CLI subcommands (spec.md §6).
var interactiveCmd = &cobra.Command{
	Use:     "interactive",
	Aliases: []string{"menu", "tui"},
	Short:   "Launch the interactive backup/restore menu",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return tui.RunInteractiveMenu(cfg, log)
	},
}
