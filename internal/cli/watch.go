package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/silkyclouds/Autokong/internal/events"
	"github.com/silkyclouds/Autokong/internal/models"
	"github.com/silkyclouds/Autokong/internal/monitor"
	"github.com/silkyclouds/Autokong/internal/progress"
)

func newWatchCmd() *cobra.Command {
	var withHistory bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show what the backend is running, continuously",
		Long: `Poll the backend for its current job and show it on a single status line.

With --history, the run history is reloaded each time a job ends and the
newest run is printed.

Press Ctrl+C to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := context.WithCancel(GetContext())
			defer cancel()

			return watch(ctx, s, cmd, withHistory)
		},
	}

	cmd.Flags().BoolVar(&withHistory, "history", false, "Reload and print run history when a job ends")

	return cmd
}

func watch(ctx context.Context, s *session, cmd *cobra.Command, withHistory bool) error {
	out := cmd.OutOrStdout()
	opts := s.options()

	jobs := s.bus.Subscribe(events.EventCurrentJob)
	poller := monitor.NewCurrentJobPoller(s.client.SingleAttempt(), opts)

	var history <-chan events.Event
	var watcher *monitor.HistoryWatcher
	if withHistory {
		history = s.bus.Subscribe(events.EventHistoryRefreshed)
		list := monitor.NewHistoryList(s.client.SingleAttempt(), s.historyCache(), opts)
		watcher = monitor.NewHistoryWatcher(poller, list, opts)
	}

	var line *progress.StatusLine
	if outputFormat == formatText {
		line = progress.NewStatusLine(out, stdoutIsTerminal())
		defer line.Close()
	}

	go poller.Run(ctx)
	if watcher != nil {
		go watcher.Run(ctx)
	}

	var last *models.CurrentJob
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-jobs:
			if !ok {
				return nil
			}
			e, ok := ev.(*events.CurrentJobEvent)
			if !ok {
				continue
			}
			if line != nil {
				line.Show(e.Job)
				continue
			}
			if last == nil || last.JobID != e.Job.JobID || progress.StepLabel(last.Progress) != progress.StepLabel(e.Job.Progress) {
				job := e.Job
				last = &job
				if err := render(out, job, nil); err != nil {
					return err
				}
			}

		case ev, ok := <-history:
			if !ok {
				history = nil
				continue
			}
			e, ok := ev.(*events.HistoryRefreshedEvent)
			if !ok {
				continue
			}
			if line == nil {
				if err := render(out, e.Entries, nil); err != nil {
					return err
				}
				continue
			}
			line.Println(describeHistoryRefresh(e))
		}
	}
}

func describeHistoryRefresh(e *events.HistoryRefreshedEvent) string {
	if len(e.Entries) == 0 {
		if e.Err != nil {
			return fmt.Sprintf("History unavailable: %v", e.Err)
		}
		return "History refreshed: no runs yet"
	}
	latest := e.Entries[0]
	msg := fmt.Sprintf("Run %s finished: %s (%s, %s)", latest.ID, latest.Status, orDash(latest.Scope), formatDuration(latest.Duration()))
	if e.Err != nil {
		msg += " [cached]"
	}
	return msg
}
