package monitor

import (
	"context"
	"sync"

	"github.com/silkyclouds/Autokong/internal/logging"
	"github.com/silkyclouds/Autokong/internal/models"
)

// RunAPI is the backend surface a RunMonitor uses.
type RunAPI interface {
	LaunchAPI
	JobAPI
}

// Run is one monitored job. Done is closed when its Poll Loop returns; Err
// is valid after that.
type Run struct {
	Handle     models.JobHandle
	Config     models.RunConfig
	Generation uint64

	done chan struct{}
	err  error
}

// Done returns a channel closed when monitoring ends.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Err returns the Poll Loop's result once Done is closed: nil for a
// terminal status, the fetch error for a failed poll, or a cancellation
// error.
func (r *Run) Err() error {
	<-r.done
	return r.err
}

// Wait blocks until the run's monitoring ends or ctx is done.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunMonitor owns the single active RunView. Launch and Attach replace it;
// Close tears it down. At most one Poll Loop runs at a time.
type RunMonitor struct {
	api      RunAPI
	launcher *Launcher
	opts     Options
	logger   *logging.Logger
	state    viewState

	mu     sync.Mutex
	cancel context.CancelFunc
	active *Run
}

// NewRunMonitor creates a RunMonitor.
func NewRunMonitor(api RunAPI, opts Options) *RunMonitor {
	opts = opts.withDefaults()
	return &RunMonitor{
		api:      api,
		launcher: NewLauncher(api, opts.Logger.Child("launcher")),
		opts:     opts,
		logger:   opts.Logger,
	}
}

// Launcher returns the monitor's launcher, for validation without launching.
func (m *RunMonitor) Launcher() *Launcher {
	return m.launcher
}

// Launch validates and starts a run, then begins monitoring it. A launch
// failure leaves any previous view untouched.
func (m *RunMonitor) Launch(ctx context.Context, cfg models.RunConfig) (*Run, error) {
	handle, cfg, err := m.launcher.Launch(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return m.start(handle, cfg), nil
}

// Attach starts monitoring a job that is already running.
func (m *RunMonitor) Attach(jobID string, auditEnabled bool) *Run {
	return m.start(models.JobHandle{JobID: jobID}, models.RunConfig{AuditEnabled: auditEnabled})
}

// start cancels the previous loop, bumps the generation and installs an
// empty view before the new loop issues its first fetch. The loop runs on
// its own context; Close or the next start cancels it.
func (m *RunMonitor) start(handle models.JobHandle, cfg models.RunConfig) *Run {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	gen := m.state.reset(handle.JobID, cfg.AuditEnabled)

	loopCtx, cancel := context.WithCancel(context.Background())
	run := &Run{Handle: handle, Config: cfg, Generation: gen, done: make(chan struct{})}
	m.cancel = cancel
	m.active = run

	m.opts.Bus.PublishRunView(gen, m.state.snapshot())

	loop := newPollLoop(m.api, &m.state, gen, handle.JobID, cfg.AuditEnabled, m.opts)
	go func() {
		defer close(run.done)
		defer cancel()
		run.err = loop.Run(loopCtx)
	}()
	return run
}

// Close cancels monitoring. Results of any in-flight cycle are discarded;
// the last view remains readable.
func (m *RunMonitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.state.invalidate()
}

// View returns a snapshot of the active RunView, or nil before any run.
func (m *RunMonitor) View() *models.RunView {
	return m.state.snapshot()
}

// Active returns the most recently started run, or nil.
func (m *RunMonitor) Active() *Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Generation returns the current view generation.
func (m *RunMonitor) Generation() uint64 {
	return m.state.generation()
}
