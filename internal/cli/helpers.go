package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/silkyclouds/Autokong/internal/api"
	"github.com/silkyclouds/Autokong/internal/config"
	"github.com/silkyclouds/Autokong/internal/constants"
	"github.com/silkyclouds/Autokong/internal/events"
	"github.com/silkyclouds/Autokong/internal/logging"
	"github.com/silkyclouds/Autokong/internal/monitor"
	"github.com/silkyclouds/Autokong/internal/progress"
	"github.com/silkyclouds/Autokong/internal/store"
)

// Output formats accepted by --output.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// loadConfig reads the config file and applies environment and flag
// overrides. Priority: flags > environment > file > defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg.MergeWithFlags(baseURL, "")
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// getAPIClient loads configuration and creates an API client.
// This is the standard way to get an API client in one-shot commands.
func getAPIClient() (*api.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	client, err := api.NewClient(cfg, GetLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	return client, nil
}

// session bundles what the monitoring commands share: config, client,
// event bus and the optional local cache.
type session struct {
	cfg    *config.Config
	client *api.Client
	bus    *events.EventBus
	logger *logging.Logger
	store  *store.Store
}

func newSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	client, err := api.NewClient(cfg, GetLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return &session{
		cfg:    cfg,
		client: client,
		bus:    events.NewEventBus(constants.EventBusDefaultBuffer),
		logger: GetLogger(),
	}, nil
}

func (s *session) options() monitor.Options {
	return monitor.OptionsFromConfig(s.cfg, s.logger, s.bus)
}

// cache opens the local cache on first use. It returns nil when the cache
// is disabled or cannot be opened.
func (s *session) cache() *store.Store {
	if s.store != nil || !s.cfg.CacheEnabled {
		return s.store
	}
	st, err := store.Open(s.cfg.CachePath)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.cfg.CachePath).Msg("Local cache unavailable")
		return nil
	}
	s.store = st
	return st
}

// historyCache returns the cache as a monitor.HistoryCache, or a nil
// interface when there is none.
func (s *session) historyCache() monitor.HistoryCache {
	if st := s.cache(); st != nil {
		return st
	}
	return nil
}

func (s *session) Close() {
	s.bus.Close()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to close local cache")
		}
	}
}

// stdoutIsTerminal reports whether live rendering should be used.
func stdoutIsTerminal() bool {
	return outputFormat == formatText && progress.IsTerminal(os.Stdout)
}

// render writes v as JSON or YAML per --output, or calls text for the
// default human-readable form.
func render(out io.Writer, v interface{}, text func(w *textWriter)) error {
	switch outputFormat {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		w := &textWriter{w: out}
		text(w)
		return w.err
	}
}

// textWriter remembers the first write error so renderers can print freely.
type textWriter struct {
	w   io.Writer
	err error
}

func (t *textWriter) Printf(format string, args ...interface{}) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format, args...)
}

func (t *textWriter) Println(args ...interface{}) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintln(t.w, args...)
}

// Table prints tab-aligned rows under headers.
func (t *textWriter) Table(headers []string, rows [][]string) {
	if t.err != nil {
		return
	}
	tw := tabwriter.NewWriter(t.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	t.err = tw.Flush()
}
