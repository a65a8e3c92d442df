package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/silkyclouds/Autokong/internal/logging"
	"github.com/silkyclouds/Autokong/internal/monitor"
	"github.com/silkyclouds/Autokong/internal/progress"
	"github.com/silkyclouds/Autokong/internal/tui"
)

func newDashboardCmd() *cobra.Command {
	var (
		jobID string
		audit bool
	)

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Interactive dashboard",
		Long: `Full-screen dashboard showing what the backend is running, the run
history (reloaded whenever a job ends), and a monitored run with its
orchestrator and container logs.

Keys: l launch with saved defaults, a follow the running job,
r refresh history, tab switch log pane, q quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !progress.IsTerminal(os.Stdin) || !progress.IsTerminal(os.Stdout) {
				return errors.New("dashboard requires an interactive terminal (TTY)")
			}

			// The terminal belongs to the dashboard; keep log lines off it
			logger = logging.NewLogger("tui")

			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()

			opts := s.options()
			single := s.client.SingleAttempt()

			mon := monitor.NewRunMonitor(single, opts)
			poller := monitor.NewCurrentJobPoller(single, opts)
			list := monitor.NewHistoryList(single, s.historyCache(), opts)

			deps := tui.Deps{
				Monitor: mon,
				Poller:  poller,
				History: list,
				Watcher: monitor.NewHistoryWatcher(poller, list, opts),
				Bus:     s.bus,
				Launch: func(ctx context.Context) (*monitor.Run, error) {
					runCfg, err := resolveRunConfig(ctx, s, runFlags{}, io.Discard)
					if err != nil {
						return nil, err
					}
					return mon.Launch(ctx, runCfg)
				},
			}
			if jobID != "" {
				deps.Initial = mon.Attach(jobID, audit)
			}

			return tui.Run(GetContext(), deps)
		},
	}

	cmd.Flags().StringVar(&jobID, "job", "", "Follow this job from the start")
	cmd.Flags().BoolVar(&audit, "audit", false, "Fetch the audit report when the --job run finishes")

	return cmd
}
