package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/silkyclouds/Autokong/internal/logging"
	"github.com/silkyclouds/Autokong/internal/models"
)

// Launcher validates a RunConfig, saves it as the new defaults and starts
// the run. It makes no backend call for an invalid config.
type Launcher struct {
	api      LaunchAPI
	validate *validator.Validate
	logger   *logging.Logger

	mu        sync.Mutex
	launching bool
}

// NewLauncher creates a Launcher.
func NewLauncher(api LaunchAPI, logger *logging.Logger) *Launcher {
	return &Launcher{
		api:      api,
		validate: validator.New(),
		logger:   logging.OrNop(logger),
	}
}

// Validate checks cfg without contacting the backend. Steps are normalized
// into catalog order first.
func (l *Launcher) Validate(cfg models.RunConfig) (models.RunConfig, error) {
	cfg.Steps = models.NormalizeSteps(cfg.Steps)
	cfg.Folders = normalizeFolders(cfg.Folders)

	if len(cfg.Steps) == 0 {
		return cfg, ErrNoSteps
	}
	if len(cfg.Folders) == 0 {
		return cfg, ErrNoFolders
	}
	if err := l.validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return cfg, fmt.Errorf("invalid run config: %s", describeValidation(verrs))
		}
		return cfg, fmt.Errorf("invalid run config: %w", err)
	}
	return cfg, nil
}

// Launch validates cfg, persists it as the default configuration and starts
// the run. On any failure nothing is started and no handle is returned.
func (l *Launcher) Launch(ctx context.Context, cfg models.RunConfig) (models.JobHandle, models.RunConfig, error) {
	cfg, err := l.Validate(cfg)
	if err != nil {
		return models.JobHandle{}, cfg, err
	}

	l.mu.Lock()
	if l.launching {
		l.mu.Unlock()
		return models.JobHandle{}, cfg, ErrLaunchInProgress
	}
	l.launching = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.launching = false
		l.mu.Unlock()
	}()

	if _, err := l.api.SaveSettings(ctx, models.NewSettingsUpdate(cfg)); err != nil {
		return models.JobHandle{}, cfg, fmt.Errorf("failed to save run defaults: %w", err)
	}

	resp, err := l.api.StartRun(ctx, models.NewStartRunRequest(cfg))
	if err != nil {
		return models.JobHandle{}, cfg, fmt.Errorf("failed to start run: %w", err)
	}

	handle := resp.Handle()
	l.logger.Info().
		Str("job_id", handle.JobID).
		Str("scope", string(cfg.Scope)).
		Strs("steps", models.StepStrings(cfg.Steps)).
		Int("folders", len(cfg.Folders)).
		Bool("audit", cfg.AuditEnabled).
		Msg("Run started")
	return handle, cfg, nil
}

func normalizeFolders(folders []string) []string {
	seen := make(map[string]bool, len(folders))
	out := make([]string, 0, len(folders))
	for _, f := range folders {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func describeValidation(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s: unknown value %q", fe.Field(), fmt.Sprint(fe.Value())))
		default:
			parts = append(parts, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
