package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/silkyclouds/Autokong/internal/api"
	"github.com/silkyclouds/Autokong/internal/models"
	"github.com/silkyclouds/Autokong/internal/store"
)

// newJobCmd creates the 'job' command group.
func newJobCmd() *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect a single job",
		Long: `One-shot queries about a job.

Commands:
  status         - Status, progress and summary
  log            - Orchestrator log
  container-log  - Log of the container running the current step
  audit          - Audit report of a finished job`,
	}

	jobCmd.AddCommand(newJobStatusCmd())
	jobCmd.AddCommand(newJobLogCmd("log", "Print the orchestrator log", func(ctx context.Context, c *api.Client, id string) ([]string, error) {
		resp, err := c.JobLog(ctx, id)
		if err != nil {
			return nil, err
		}
		return resp.Lines, nil
	}))
	jobCmd.AddCommand(newJobLogCmd("container-log", "Print the current step's container log", func(ctx context.Context, c *api.Client, id string) ([]string, error) {
		resp, err := c.ContainerLog(ctx, id)
		if err != nil {
			return nil, err
		}
		return resp.Lines, nil
	}))
	jobCmd.AddCommand(newAuditCmd("audit <job-id>"))

	return jobCmd
}

func newJobStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getAPIClient()
			if err != nil {
				return err
			}
			st, err := client.JobStatus(GetContext(), args[0])
			if err != nil {
				return jobError(args[0], err)
			}
			return render(cmd.OutOrStdout(), st, func(w *textWriter) {
				writeJobStatus(w, st)
			})
		},
	}
}

func newJobLogCmd(use, short string, fetch func(ctx context.Context, c *api.Client, id string) ([]string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <job-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getAPIClient()
			if err != nil {
				return err
			}
			lines, err := fetch(GetContext(), client, args[0])
			if err != nil {
				return jobError(args[0], err)
			}
			if lines == nil {
				lines = []string{}
			}
			return printLines(cmd.OutOrStdout(), lines)
		},
	}
}

// newAuditCmd is shared by 'job audit' and 'history audit'.
func newAuditCmd(use string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: "Show a finished job's audit report",
		Long: `Show the audit report of a finished job.

Reports are cached locally; the cached copy is shown when the backend
cannot be reached.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()

			result, cached, err := loadAudit(GetContext(), s, args[0])
			if err != nil {
				return err
			}
			if cached {
				fmt.Fprintln(cmd.ErrOrStderr(), "Backend unreachable; showing cached audit.")
			}
			return render(cmd.OutOrStdout(), result, func(w *textWriter) {
				writeAudit(w, result)
			})
		},
	}
}

// loadAudit fetches and maps a job's audit, caching it on success. When the
// fetch fails for any reason other than "no report", a cached copy is used.
func loadAudit(ctx context.Context, s *session, jobID string) (*models.AuditResult, bool, error) {
	report, err := s.client.JobAudit(ctx, jobID)
	if err == nil {
		result := report.Result()
		if st := s.cache(); st != nil {
			if cerr := st.SaveAudit(ctx, jobID, result); cerr != nil {
				s.logger.Debug().Err(cerr).Msg("Failed to cache audit")
			}
		}
		return result, false, nil
	}
	if api.IsNotFound(err) {
		return nil, false, fmt.Errorf("job %s has no audit report", jobID)
	}

	if st := s.cache(); st != nil {
		cached, cerr := st.LoadAudit(ctx, jobID)
		if cerr == nil {
			return cached, true, nil
		}
		if !errors.Is(cerr, store.ErrNotFound) {
			s.logger.Debug().Err(cerr).Msg("Audit cache unavailable")
		}
	}
	return nil, false, fmt.Errorf("failed to fetch audit for job %s: %w", jobID, err)
}

func jobError(jobID string, err error) error {
	if api.IsNotFound(err) {
		return fmt.Errorf("job %s not found", jobID)
	}
	return fmt.Errorf("failed to fetch job %s: %w", jobID, err)
}

// printLines prints one item per line, or the list as JSON/YAML.
func printLines(out io.Writer, lines []string) error {
	return render(out, lines, func(w *textWriter) {
		for _, line := range lines {
			w.Println(line)
		}
	})
}
