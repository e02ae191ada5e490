package commands

import (
	"github.com/leapstack-labs/fedplan/internal/state"
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently planned statements",
		Long: `Show statements planned by plan, explain, repl and serve, newest first.

Recording can be turned off with 'history: false' in the config file or
FEDPLAN_HISTORY=false.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := cmdCtx.Store.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return renderHistory(cmdCtx.Renderer, entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", state.DefaultHistoryLimit, "Number of entries to show")
	return cmd
}
