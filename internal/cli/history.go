package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/silkyclouds/Autokong/internal/monitor"
)

// newHistoryCmd creates the 'history' command group.
func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Browse past runs",
		Long: `Run history commands.

Commands:
  list   - Recent runs, newest first
  audit  - Audit report of a past run`,
	}

	historyCmd.AddCommand(newHistoryListCmd())
	historyCmd.AddCommand(newAuditCmd("audit <job-id>"))

	return historyCmd
}

func newHistoryListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Long: `List recent runs, newest first.

The list is cached locally; when the backend cannot be reached the cached
list is shown instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()

			list := monitor.NewHistoryList(s.client, s.historyCache(), s.options())
			entries, err := list.Refresh(GetContext())
			if err != nil {
				if !list.FromCache() {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Backend unreachable (%v); showing cached history.\n", err)
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
			return render(cmd.OutOrStdout(), entries, func(w *textWriter) {
				writeHistory(w, entries)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show (0 = all)")

	return cmd
}
