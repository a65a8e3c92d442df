// Package monitor tracks autokong runs: it launches them, polls their status
// and logs until they finish, fetches the audit, and watches the backend's
// current job so the history list can refresh when a run ends.
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/silkyclouds/Autokong/internal/config"
	"github.com/silkyclouds/Autokong/internal/constants"
	"github.com/silkyclouds/Autokong/internal/events"
	"github.com/silkyclouds/Autokong/internal/http"
	"github.com/silkyclouds/Autokong/internal/logging"
	"github.com/silkyclouds/Autokong/internal/models"
)

var (
	ErrNoSteps          = errors.New("at least one step must be selected")
	ErrNoFolders        = errors.New("at least one folder must be selected")
	ErrLaunchInProgress = errors.New("a launch is already in progress")
	ErrSuperseded       = errors.New("run view was replaced")
)

// JobAPI is what a Poll Loop needs from the backend.
type JobAPI interface {
	JobStatus(ctx context.Context, jobID string) (*models.JobStatusResponse, error)
	JobLog(ctx context.Context, jobID string) (*models.LogResponse, error)
	ContainerLog(ctx context.Context, jobID string) (*models.ContainerLogResponse, error)
	JobAudit(ctx context.Context, jobID string) (*models.AuditReport, error)
}

// LaunchAPI is what the Launcher needs from the backend.
type LaunchAPI interface {
	SaveSettings(ctx context.Context, update models.SettingsUpdate) (*models.Settings, error)
	StartRun(ctx context.Context, req models.StartRunRequest) (*models.StartRunResponse, error)
}

// CurrentJobAPI answers "what is running right now".
type CurrentJobAPI interface {
	CurrentJob(ctx context.Context) (*models.CurrentJobResponse, error)
}

// HistoryAPI lists recent runs.
type HistoryAPI interface {
	History(ctx context.Context) ([]models.HistoryEntry, error)
}

// Options controls polling cadence and failure handling.
type Options struct {
	RunPollInterval      time.Duration
	CurrentPollInterval  time.Duration
	HistoryWatchInterval time.Duration

	// RequestTimeout bounds one poll cycle, all of its fetches together.
	RequestTimeout time.Duration

	// TransientRetries is how many extra attempts a cycle fetch gets after a
	// network, 5xx or 429 failure. 0 stops on the first failure.
	TransientRetries  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration

	Logger *logging.Logger
	Bus    *events.EventBus
}

// DefaultOptions returns the standard cadence.
func DefaultOptions() Options {
	return Options{
		RunPollInterval:      constants.RunPollInterval,
		CurrentPollInterval:  constants.CurrentJobPollInterval,
		HistoryWatchInterval: constants.HistoryWatchInterval,
		RequestTimeout:       constants.APIContextTimeout,
		TransientRetries:     constants.TransientRetries,
		RetryInitialDelay:    constants.RetryInitialDelay,
		RetryMaxDelay:        constants.RetryMaxDelay,
	}
}

// OptionsFromConfig builds Options from the console configuration.
func OptionsFromConfig(cfg *config.Config, logger *logging.Logger, bus *events.EventBus) Options {
	opts := DefaultOptions()
	if cfg != nil {
		opts.RunPollInterval = cfg.RunPollInterval
		opts.CurrentPollInterval = cfg.CurrentPollInterval
		opts.HistoryWatchInterval = cfg.HistoryWatchInterval
		opts.RequestTimeout = cfg.RequestTimeout
		opts.TransientRetries = cfg.TransientRetries
	}
	opts.Logger = logger
	opts.Bus = bus
	return opts.withDefaults()
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RunPollInterval <= 0 {
		o.RunPollInterval = d.RunPollInterval
	}
	if o.CurrentPollInterval <= 0 {
		o.CurrentPollInterval = d.CurrentPollInterval
	}
	if o.HistoryWatchInterval <= 0 {
		o.HistoryWatchInterval = d.HistoryWatchInterval
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = d.RequestTimeout
	}
	if o.TransientRetries < 0 {
		o.TransientRetries = 0
	}
	if o.RetryInitialDelay <= 0 {
		o.RetryInitialDelay = d.RetryInitialDelay
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = d.RetryMaxDelay
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

func (o Options) retryConfig(logger *logging.Logger, what string) http.Config {
	return http.Config{
		MaxRetries:   o.TransientRetries + 1,
		InitialDelay: o.RetryInitialDelay,
		MaxDelay:     o.RetryMaxDelay,
		OnRetry: func(attempt int, err error, errType http.ErrorType) {
			logger.Debug().
				Err(err).
				Str("fetch", what).
				Int("attempt", attempt).
				Str("error_type", http.ErrorTypeName(errType)).
				Msg("Retrying fetch")
		},
	}
}

// sleep waits for d or until ctx is done. Returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
