package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/silkyclouds/Autokong/internal/models"
)

// newScheduleCmd creates the 'schedule' command group.
func newScheduleCmd() *cobra.Command {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show or change the backend's run schedule",
		Long: `Schedule commands. The backend runs the pipeline on this schedule; the
console only reads and edits it.

Commands:
  show  - Current schedule and next run
  set   - Change schedule fields`,
	}

	scheduleCmd.AddCommand(newScheduleShowCmd())
	scheduleCmd.AddCommand(newScheduleSetCmd())

	return scheduleCmd
}

func newScheduleShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getAPIClient()
			if err != nil {
				return err
			}
			sched, err := client.GetSchedule(GetContext())
			if err != nil {
				return fmt.Errorf("failed to load schedule: %w", err)
			}
			return renderSchedule(cmd, sched)
		},
	}
}

func newScheduleSetCmd() *cobra.Command {
	var (
		enabled bool
		expr    string
		preset  string
		scope   string
		steps   []string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change schedule fields",
		Long: `Change one or more schedule fields. Fields not given keep their value.

The cron expression uses the standard five fields (minute hour day month weekday).

Examples:
  autokong schedule set --enabled --cron "0 3 * * *"
  autokong schedule set --scope monthly --step musicbrainz --step rename
  autokong schedule set --enabled=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var update models.ScheduleUpdate
			if flags.Changed("enabled") {
				update.Enabled = &enabled
			}
			if flags.Changed("cron") {
				if _, err := cron.ParseStandard(expr); err != nil {
					return fmt.Errorf("invalid cron expression %q: %w", expr, err)
				}
				update.Cron = &expr
			}
			if flags.Changed("preset") {
				update.Preset = &preset
			}
			if flags.Changed("scope") {
				if !models.Scope(scope).Valid() {
					return fmt.Errorf("unknown scope %q (expected daily, monthly or all_days)", scope)
				}
				update.Scope = &scope
			}
			if flags.Changed("step") {
				normalized := models.NormalizeSteps(models.ParseSteps(steps))
				for _, s := range normalized {
					if !s.Valid() {
						return fmt.Errorf("unknown step %q", s)
					}
				}
				if len(normalized) == 0 {
					return errors.New("--step needs at least one step")
				}
				update.Steps = models.StepStrings(normalized)
			}
			if !flags.Changed("enabled") && !flags.Changed("cron") && !flags.Changed("preset") &&
				!flags.Changed("scope") && !flags.Changed("step") {
				return errors.New("nothing to change; pass at least one of --enabled, --cron, --preset, --scope, --step")
			}

			client, err := getAPIClient()
			if err != nil {
				return err
			}
			sched, err := client.SaveSchedule(GetContext(), update)
			if err != nil {
				return fmt.Errorf("failed to save schedule: %w", err)
			}
			GetLogger().Info().Str("cron", sched.Cron).Bool("enabled", sched.Enabled).Msg("Schedule saved")
			return renderSchedule(cmd, sched)
		},
	}

	cmd.Flags().BoolVar(&enabled, "enabled", false, "Enable or disable scheduled runs")
	cmd.Flags().StringVar(&expr, "cron", "", "Cron expression, e.g. \"0 3 * * *\"")
	cmd.Flags().StringVar(&preset, "preset", "", "Schedule preset name")
	cmd.Flags().StringVar(&scope, "scope", "", "Folder scope for scheduled runs")
	cmd.Flags().StringSliceVar(&steps, "step", nil, "Step for scheduled runs (repeatable)")

	return cmd
}

func renderSchedule(cmd *cobra.Command, sched *models.Schedule) error {
	next := nextRun(sched, time.Now())
	return render(cmd.OutOrStdout(), sched, func(w *textWriter) {
		writeSchedule(w, sched, next)
	})
}

// nextRun estimates the next run locally when the backend does not report
// one. It returns the zero time for a disabled or unparsable schedule.
func nextRun(sched *models.Schedule, now time.Time) time.Time {
	if !sched.Enabled || (sched.NextRun != nil && *sched.NextRun != "") {
		return time.Time{}
	}
	s, err := cron.ParseStandard(sched.Cron)
	if err != nil {
		return time.Time{}
	}
	return s.Next(now)
}
