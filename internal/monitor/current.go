package monitor

import (
	"context"
	"sync"

	"github.com/silkyclouds/Autokong/internal/events"
	"github.com/silkyclouds/Autokong/internal/logging"
	"github.com/silkyclouds/Autokong/internal/models"
)

// CurrentJobPoller periodically asks the backend what job is running and
// publishes the answer. It shares nothing with any Poll Loop: when a run is
// being monitored, both query the backend independently.
type CurrentJobPoller struct {
	api    CurrentJobAPI
	opts   Options
	logger *logging.Logger
	bus    *events.EventBus

	mu     sync.RWMutex
	latest models.CurrentJob
	ticks  int
}

// NewCurrentJobPoller creates a poller.
func NewCurrentJobPoller(api CurrentJobAPI, opts Options) *CurrentJobPoller {
	opts = opts.withDefaults()
	return &CurrentJobPoller{
		api:    api,
		opts:   opts,
		logger: opts.Logger.Child("current-job"),
		bus:    opts.Bus,
	}
}

// Run polls immediately and then every CurrentPollInterval until ctx is done.
func (p *CurrentJobPoller) Run(ctx context.Context) {
	for {
		p.Poll(ctx)
		if !sleep(ctx, p.opts.CurrentPollInterval) {
			return
		}
	}
}

// Poll takes one sample, stores and publishes it. A failed fetch yields
// "no job" rather than keeping the previous answer.
func (p *CurrentJobPoller) Poll(ctx context.Context) models.CurrentJob {
	reqCtx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	resp, err := p.api.CurrentJob(reqCtx)
	cancel()

	var job models.CurrentJob
	if err != nil {
		if ctx.Err() != nil {
			return p.Latest()
		}
		p.logger.Debug().Err(err).Msg("Current job unavailable; reporting idle")
	} else {
		job = resp.CurrentJob()
	}

	p.mu.Lock()
	p.latest = job
	p.ticks++
	p.mu.Unlock()

	p.bus.PublishCurrentJob(job)
	return job
}

// Latest returns the most recent sample.
func (p *CurrentJobPoller) Latest() models.CurrentJob {
	p.mu.RLock()
	defer p.mu.RUnlock()
	job := p.latest
	job.Progress = job.Progress.Clone()
	return job
}

// Ticks returns how many samples were taken.
func (p *CurrentJobPoller) Ticks() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ticks
}
