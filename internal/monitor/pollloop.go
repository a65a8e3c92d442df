package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/silkyclouds/Autokong/internal/events"
	"github.com/silkyclouds/Autokong/internal/http"
	"github.com/silkyclouds/Autokong/internal/logging"
	"github.com/silkyclouds/Autokong/internal/models"
)

// PollLoop drives one RunView from launch to a terminal status. Cycles are
// strictly sequential: the next one is scheduled only after the previous
// cycle's results were applied or discarded.
type PollLoop struct {
	api          JobAPI
	jobID        string
	auditEnabled bool
	gen          uint64
	state        *viewState
	opts         Options
	logger       *logging.Logger
	bus          *events.EventBus
}

// cycleResult collects the three fetches of one cycle.
type cycleResult struct {
	status       *models.JobStatusResponse
	statusErr    error
	log          *models.LogResponse
	logErr       error
	container    *models.ContainerLogResponse
	containerErr error
}

func (r *cycleResult) err() error {
	var errs []error
	if r.statusErr != nil {
		errs = append(errs, fmt.Errorf("job status: %w", r.statusErr))
	}
	if r.logErr != nil {
		errs = append(errs, fmt.Errorf("job log: %w", r.logErr))
	}
	if r.containerErr != nil {
		errs = append(errs, fmt.Errorf("container log: %w", r.containerErr))
	}
	return errors.Join(errs...)
}

func newPollLoop(api JobAPI, state *viewState, gen uint64, jobID string, auditEnabled bool, opts Options) *PollLoop {
	logger := opts.Logger.Child("poll")
	return &PollLoop{
		api:          api,
		jobID:        jobID,
		auditEnabled: auditEnabled,
		gen:          gen,
		state:        state,
		opts:         opts,
		logger:       logger,
		bus:          opts.Bus,
	}
}

// Run polls until the job leaves "running", a fetch fails, ctx is cancelled
// or the view is replaced. It returns nil only when a terminal status was
// observed and applied.
func (p *PollLoop) Run(ctx context.Context) error {
	p.logger.Debug().Str("job_id", p.jobID).Uint64("generation", p.gen).Msg("Poll loop started")
	p.bus.PublishRunState(p.gen, p.jobID, events.StateStarted, models.StatusRunning, nil)

	for {
		res := p.cycle(ctx)

		if ctx.Err() != nil || !p.state.current(p.gen, p.jobID) {
			return p.cancelled(ctx)
		}

		snap, ok := p.state.apply(p.gen, p.jobID, func(v *models.RunView) {
			applyCycle(v, res)
		})
		if !ok {
			return p.cancelled(ctx)
		}
		p.bus.PublishRunView(p.gen, snap)

		if err := res.err(); err != nil {
			return p.fail(err)
		}

		if res.status.Status.IsTerminal() {
			return p.finish(ctx, res.status)
		}

		if !sleep(ctx, p.opts.RunPollInterval) {
			return p.cancelled(ctx)
		}
	}
}

// cycle issues the status, log and container-log fetches concurrently and
// waits for all three. Transient failures are retried inside the cycle.
func (p *PollLoop) cycle(ctx context.Context) *cycleResult {
	ctx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	defer cancel()

	res := &cycleResult{}
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		res.statusErr = http.ExecuteWithRetry(ctx, p.opts.retryConfig(p.logger, "status"), func() error {
			st, err := p.api.JobStatus(ctx, p.jobID)
			if err == nil {
				res.status = st
			}
			return err
		})
	}()
	go func() {
		defer wg.Done()
		res.logErr = http.ExecuteWithRetry(ctx, p.opts.retryConfig(p.logger, "log"), func() error {
			lr, err := p.api.JobLog(ctx, p.jobID)
			if err == nil {
				res.log = lr
			}
			return err
		})
	}()
	go func() {
		defer wg.Done()
		res.containerErr = http.ExecuteWithRetry(ctx, p.opts.retryConfig(p.logger, "container-log"), func() error {
			cl, err := p.api.ContainerLog(ctx, p.jobID)
			if err == nil {
				res.container = cl
			}
			return err
		})
	}()

	wg.Wait()
	return res
}

// applyCycle copies whatever succeeded into v. Payloads replace the previous
// values wholesale.
func applyCycle(v *models.RunView, res *cycleResult) {
	if res.log != nil {
		v.OrchestratorLog = append([]string{}, res.log.Lines...)
	}
	if res.container != nil {
		v.ContainerLog = append([]string{}, res.container.Lines...)
	}
	if res.status != nil {
		if res.status.Status != "" {
			v.Status = res.status.Status
		}
		if res.status.Progress != nil {
			v.Progress = res.status.Progress.Clone()
		}
	}
}

// finish handles the terminal transition: one last container-log fetch, the
// summary, and at most one audit fetch.
func (p *PollLoop) finish(ctx context.Context, st *models.JobStatusResponse) error {
	final, err := p.fetchOnce(ctx, func(ctx context.Context) error {
		cl, err := p.api.ContainerLog(ctx, p.jobID)
		if err != nil {
			return err
		}
		return p.update(func(v *models.RunView) {
			v.ContainerLog = append([]string{}, cl.Lines...)
		})
	})
	if final != nil {
		return final
	}
	if err != nil {
		p.logger.Debug().Err(err).Str("job_id", p.jobID).Msg("Final container log unavailable; keeping last copy")
	}

	summary := st.RunSummary()
	auditDue := p.auditEnabled && st.Status.AuditEligible()
	if err := p.update(func(v *models.RunView) {
		v.Running = false
		v.Progress = nil
		v.Summary = summary
	}); err != nil {
		return p.cancelled(ctx)
	}

	if auditDue {
		final, err := p.fetchOnce(ctx, func(ctx context.Context) error {
			report, err := p.api.JobAudit(ctx, p.jobID)
			if err != nil {
				return err
			}
			result := report.Result()
			return p.update(func(v *models.RunView) {
				v.Audit = result
			})
		})
		if final != nil {
			return final
		}
		if err != nil {
			p.logger.Warn().Err(err).Str("job_id", p.jobID).Msg("Audit unavailable")
			p.bus.PublishLog(events.WarnLevel, "audit unavailable", p.jobID, err)
		}
		if err := p.update(func(v *models.RunView) {
			v.AuditFetched = true
		}); err != nil {
			return p.cancelled(ctx)
		}
	}

	p.logger.Info().
		Str("job_id", p.jobID).
		Str("status", string(st.Status)).
		Int("duration_seconds", summary.DurationSeconds).
		Msg("Run finished")
	p.bus.PublishRunState(p.gen, p.jobID, events.StateFinished, st.Status, nil)
	return nil
}

// fetchOnce runs a single-attempt peripheral fetch bounded by the request
// timeout. final is non-nil when the loop must stop because it was
// cancelled or superseded; err is the absorbed fetch error.
func (p *PollLoop) fetchOnce(ctx context.Context, fn func(ctx context.Context) error) (final, err error) {
	fctx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	defer cancel()
	err = fn(fctx)
	if errors.Is(err, ErrSuperseded) || ctx.Err() != nil {
		return p.cancelled(ctx), nil
	}
	return nil, err
}

// update applies fn to the view and publishes the snapshot. It returns
// ErrSuperseded when the view was replaced.
func (p *PollLoop) update(fn func(v *models.RunView)) error {
	snap, ok := p.state.apply(p.gen, p.jobID, fn)
	if !ok {
		return ErrSuperseded
	}
	p.bus.PublishRunView(p.gen, snap)
	return nil
}

func (p *PollLoop) fail(err error) error {
	_ = p.update(func(v *models.RunView) {
		v.Running = false
		v.LastError = err.Error()
	})
	p.logger.Warn().Err(err).Str("job_id", p.jobID).Msg("Poll failed; monitoring stopped")
	p.bus.PublishRunState(p.gen, p.jobID, events.StateFailed, "", err)
	return err
}

func (p *PollLoop) cancelled(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		err = ErrSuperseded
	}
	p.logger.Debug().Err(err).Str("job_id", p.jobID).Uint64("generation", p.gen).Msg("Poll loop cancelled")
	p.bus.PublishRunState(p.gen, p.jobID, events.StateCancelled, "", err)
	return err
}
