package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/silkyclouds/Autokong/internal/events"
	"github.com/silkyclouds/Autokong/internal/models"
	"github.com/silkyclouds/Autokong/internal/monitor"
	"github.com/silkyclouds/Autokong/internal/progress"
)

// runFlags are the run command's selections. Unset values fall back to the
// defaults saved on the backend.
type runFlags struct {
	scope     string
	steps     []string
	folders   []string
	audit     bool
	auditSet  bool
	detach    bool
	assumeYes bool
}

func newRunCmd() *cobra.Command {
	var flags runFlags
	var noAudit bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch a run and follow it until it finishes",
		Long: `Launch a pipeline run and follow its progress and logs until it finishes.

Steps, scope and audit default to the values saved on the backend; the
choices made here are saved back as the new defaults. Folders default to
every folder the scope previews.

Press Ctrl+C to stop following; the run keeps going on the backend.

Examples:
  autokong run
  autokong run --scope monthly --step musicbrainz --step rename --audit
  autokong run --folder /music/incoming/2024-01-15 --detach`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case cmd.Flags().Changed("audit"):
				flags.auditSet = true
			case cmd.Flags().Changed("no-audit"):
				flags.audit, flags.auditSet = !noAudit, true
			}

			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := GetContext()
			out := cmd.OutOrStdout()

			runCfg, err := resolveRunConfig(ctx, s, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			mon := monitor.NewRunMonitor(s.client.SingleAttempt(), s.options())
			runCfg, err = mon.Launcher().Validate(runCfg)
			if err != nil {
				return err
			}

			if !flags.assumeYes && outputFormat == formatText && progress.IsTerminal(os.Stdin) {
				ok, err := promptConfirm(cmd.InOrStdin(), out, describeRun(runCfg))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "Cancelled.")
					return nil
				}
			}

			if flags.detach {
				handle, _, err := mon.Launcher().Launch(ctx, runCfg)
				if err != nil {
					return fmt.Errorf("failed to launch run: %w", err)
				}
				return render(out, handle, func(w *textWriter) {
					w.Printf("Started job %s\n", handle.JobID)
					w.Printf("Follow it with: autokong attach %s\n", handle.JobID)
				})
			}

			views := s.bus.Subscribe(events.EventRunView)
			run, err := mon.Launch(ctx, runCfg)
			if err != nil {
				return fmt.Errorf("failed to launch run: %w", err)
			}
			return followRun(ctx, out, s, mon, run, views)
		},
	}

	cmd.Flags().StringVar(&flags.scope, "scope", "", "Folder scope: daily, monthly or all_days (default: saved scope)")
	cmd.Flags().StringSliceVar(&flags.steps, "step", nil, "Step to run (repeatable; default: saved steps)")
	cmd.Flags().StringSliceVar(&flags.folders, "folder", nil, "Folder to process (repeatable; default: every previewed folder)")
	cmd.Flags().BoolVar(&flags.audit, "audit", false, "Produce an audit report after the run")
	cmd.Flags().BoolVar(&noAudit, "no-audit", false, "Do not produce an audit report")
	cmd.Flags().BoolVar(&flags.detach, "detach", false, "Start the run and exit without following it")
	cmd.Flags().BoolVarP(&flags.assumeYes, "yes", "y", false, "Do not ask for confirmation")
	cmd.MarkFlagsMutuallyExclusive("audit", "no-audit")

	return cmd
}

// resolveRunConfig merges flags with the backend's saved defaults and, when
// no folder was given, the scope's preview.
func resolveRunConfig(ctx context.Context, s *session, flags runFlags, warn io.Writer) (models.RunConfig, error) {
	var cfg models.RunConfig

	settings, err := s.client.GetSettings(ctx)
	if err != nil {
		if len(flags.steps) == 0 {
			return cfg, fmt.Errorf("failed to load saved run defaults (pass --step to skip): %w", err)
		}
		s.logger.Warn().Err(err).Msg("Saved run defaults unavailable")
		settings = &models.Settings{}
	}

	cfg.Scope = models.Scope(flags.scope)
	if cfg.Scope == "" {
		cfg.Scope = models.Scope(settings.Scope)
	}
	if cfg.Scope == "" {
		cfg.Scope = models.ScopeDaily
	}

	if len(flags.steps) > 0 {
		cfg.Steps = models.ParseSteps(flags.steps)
	} else {
		cfg.Steps = models.ParseSteps(settings.StepsEnabled)
	}

	cfg.AuditEnabled = settings.AuditEnabled
	if flags.auditSet {
		cfg.AuditEnabled = flags.audit
	}

	if len(flags.folders) > 0 {
		cfg.Folders = flags.folders
		return cfg, nil
	}
	if !cfg.Scope.Valid() {
		return cfg, fmt.Errorf("unknown scope %q (expected daily, monthly or all_days)", cfg.Scope)
	}
	preview, err := s.client.Preview(ctx, cfg.Scope)
	if err != nil {
		return cfg, fmt.Errorf("failed to preview folders: %w", err)
	}
	if preview.Error != "" {
		fmt.Fprintf(warn, "Warning: folder preview: %s\n", preview.Error)
	}
	cfg.Folders = preview.Folders
	return cfg, nil
}

func describeRun(cfg models.RunConfig) string {
	labels := make([]string, len(cfg.Steps))
	for i, s := range cfg.Steps {
		labels[i] = s.Label()
	}
	audit := ""
	if cfg.AuditEnabled {
		audit = " with audit"
	}
	return fmt.Sprintf("Run %s on %d %s folder(s)%s?", strings.Join(labels, ", "), len(cfg.Folders), cfg.Scope, audit)
}

func newAttachCmd() *cobra.Command {
	var audit bool

	cmd := &cobra.Command{
		Use:   "attach <job-id>",
		Short: "Follow a job that is already running",
		Long: `Follow a job started elsewhere (another console, the scheduler or the web UI)
until it finishes. Use --audit if the job was started with auditing enabled.

Example:
  autokong attach 3f2b9c1e --audit`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()

			mon := monitor.NewRunMonitor(s.client.SingleAttempt(), s.options())
			views := s.bus.Subscribe(events.EventRunView)
			run := mon.Attach(args[0], audit)
			return followRun(GetContext(), cmd.OutOrStdout(), s, mon, run, views)
		},
	}

	cmd.Flags().BoolVar(&audit, "audit", false, "Fetch the audit report when the job finishes")

	return cmd
}

// followRun renders a monitored run until its Poll Loop ends or ctx is
// cancelled. views must be subscribed before the run was started.
func followRun(ctx context.Context, out io.Writer, s *session, mon *monitor.RunMonitor, run *monitor.Run, views <-chan events.Event) error {
	text := outputFormat == formatText
	uiOut := out
	if !text {
		uiOut = io.Discard
	}
	ui := progress.NewRunUI(uiOut, stdoutIsTerminal())
	r := &runRenderer{w: ui.Writer(), ui: ui, text: text}

	if r.text {
		fmt.Fprintf(r.w, "Following job %s (Ctrl+C to stop following; the job keeps running)\n", run.Handle.JobID)
	}

	for {
		select {
		case ev, ok := <-views:
			if !ok {
				views = nil
				continue
			}
			if e, ok := ev.(*events.RunViewEvent); ok && e.Generation == run.Generation {
				r.render(e.View)
			}

		case <-run.Done():
			view := mon.View()
			r.render(view)
			ui.Finish(view.Finished() && view.Status != models.StatusError)
			if view.Audit != nil {
				if st := s.cache(); st != nil {
					if err := st.SaveAudit(context.Background(), view.JobID, view.Audit); err != nil {
						s.logger.Debug().Err(err).Msg("Failed to cache audit")
					}
				}
			}
			return finishRun(out, view, run.Err())

		case <-ctx.Done():
			mon.Close()
			ui.Finish(false)
			fmt.Fprintf(out, "\nStopped following job %s; it keeps running on the backend.\n", run.Handle.JobID)
			return nil
		}
	}
}

// finishRun prints the outcome and turns it into the command's error.
func finishRun(out io.Writer, view *models.RunView, loopErr error) error {
	err := render(out, view, func(w *textWriter) {
		writeSummary(w, view)
	})
	if err != nil {
		return err
	}
	if loopErr != nil {
		return fmt.Errorf("stopped monitoring job %s: %w", view.JobID, loopErr)
	}
	if view.Status == models.StatusError {
		return fmt.Errorf("job %s finished with status %s", view.JobID, view.Status)
	}
	return nil
}

// runRenderer prints what changed between successive views.
type runRenderer struct {
	w    io.Writer
	ui   *progress.RunUI
	text bool

	orchestrator []string
	container    []string
}

func (r *runRenderer) render(view *models.RunView) {
	if view == nil {
		return
	}
	r.ui.Update(view.Progress)
	if !r.text {
		return
	}
	for _, line := range newLines(r.orchestrator, view.OrchestratorLog) {
		fmt.Fprintln(r.w, line)
	}
	for _, line := range newLines(r.container, view.ContainerLog) {
		fmt.Fprintf(r.w, "  | %s\n", line)
	}
	r.orchestrator = view.OrchestratorLog
	r.container = view.ContainerLog
}
