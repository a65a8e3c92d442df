// Package config provides configuration management for the autokong console.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/silkyclouds/Autokong/internal/constants"
)

// Config is the console configuration.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\autokong\console.ini
//   - Unix: ~/.config/autokong/console.ini
//
// INI format:
//
//	[autokong]
//	base_url = http://localhost:5000
//	api_token =
//
//	[monitor]
//	run_poll_interval_ms = 1000
//	current_poll_interval_ms = 2000
//	history_watch_interval_ms = 4000
//	request_timeout_seconds = 30
//	transient_retries = 2
//	requests_per_second = 10
//
//	[proxy]
//	mode = no-proxy
//	host =
//	port = 8080
//	user =
//	password =
//	no_proxy =
//
//	[cache]
//	path = ~/.config/autokong/history.db
//	enabled = true
type Config struct {
	// Backend connection
	BaseURL  string
	APIToken string

	// Monitor timing
	RunPollInterval      time.Duration
	CurrentPollInterval  time.Duration
	HistoryWatchInterval time.Duration
	RequestTimeout       time.Duration
	TransientRetries     int
	RequestsPerSecond    float64

	// Proxy settings
	ProxyMode     string // no-proxy, system, basic, ntlm
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string
	ProxyWarmup   bool

	// Local history cache
	CachePath    string
	CacheEnabled bool

	// Path is the file this config was loaded from (empty for defaults).
	Path string
}

// Validation errors
var (
	ErrMissingBaseURL       = errors.New("base_url is required")
	ErrInvalidInterval      = errors.New("poll intervals must be between 100ms and 10m")
	ErrInvalidTimeout       = errors.New("request_timeout_seconds must be at least 1")
	ErrInvalidRetries       = errors.New("transient_retries must be between 0 and 10")
	ErrInvalidRate          = errors.New("requests_per_second must be positive")
	ErrUnsupportedProxyMode = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
	ErrUnknownKey           = errors.New("unknown config key")
)

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		BaseURL:              "http://localhost:5000",
		RunPollInterval:      constants.RunPollInterval,
		CurrentPollInterval:  constants.CurrentJobPollInterval,
		HistoryWatchInterval: constants.HistoryWatchInterval,
		RequestTimeout:       constants.APIContextTimeout,
		TransientRetries:     constants.TransientRetries,
		RequestsPerSecond:    constants.DefaultRequestsPerSecond,
		ProxyMode:            "no-proxy",
		ProxyPort:            8080,
		CachePath:            DefaultCachePath(),
		CacheEnabled:         true,
	}
}

// configDir returns the autokong configuration directory.
func configDir() (string, error) {
	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		return filepath.Join(userProfile, ".config", "autokong"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "autokong"), nil
}

// DefaultConfigPath returns the config file path, honouring
// AUTOKONG_CONSOLE_CONFIG when set.
func DefaultConfigPath() (string, error) {
	if p := os.Getenv("AUTOKONG_CONSOLE_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "console.ini"), nil
}

// DefaultCachePath returns the default SQLite history cache location.
func DefaultCachePath() string {
	dir, err := configDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "autokong-history.db")
	}
	return filepath.Join(dir, "history.db")
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Load reads configuration from an INI file.
// If the file doesn't exist, returns a config with default values and no error.
// If the file exists but is invalid, returns an error.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}
	cfg.Path = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	ak := iniFile.Section("autokong")
	cfg.BaseURL = ak.Key("base_url").MustString(cfg.BaseURL)
	cfg.APIToken = ak.Key("api_token").String()

	mon := iniFile.Section("monitor")
	cfg.RunPollInterval = msKey(mon, "run_poll_interval_ms", cfg.RunPollInterval)
	cfg.CurrentPollInterval = msKey(mon, "current_poll_interval_ms", cfg.CurrentPollInterval)
	cfg.HistoryWatchInterval = msKey(mon, "history_watch_interval_ms", cfg.HistoryWatchInterval)
	cfg.RequestTimeout = time.Duration(mon.Key("request_timeout_seconds").MustInt(int(cfg.RequestTimeout/time.Second))) * time.Second
	cfg.TransientRetries = mon.Key("transient_retries").MustInt(cfg.TransientRetries)
	cfg.RequestsPerSecond = mon.Key("requests_per_second").MustFloat64(cfg.RequestsPerSecond)

	proxy := iniFile.Section("proxy")
	cfg.ProxyMode = proxy.Key("mode").MustString(cfg.ProxyMode)
	cfg.ProxyHost = proxy.Key("host").String()
	cfg.ProxyPort = proxy.Key("port").MustInt(cfg.ProxyPort)
	cfg.ProxyUser = proxy.Key("user").String()
	cfg.ProxyPassword = proxy.Key("password").String()
	cfg.NoProxy = proxy.Key("no_proxy").String()
	cfg.ProxyWarmup = proxy.Key("warmup").MustBool(false)

	cache := iniFile.Section("cache")
	cfg.CachePath = ExpandHome(cache.Key("path").MustString(cfg.CachePath))
	cfg.CacheEnabled = cache.Key("enabled").MustBool(cfg.CacheEnabled)

	return cfg, nil
}

func msKey(section *ini.Section, key string, def time.Duration) time.Duration {
	ms := section.Key(key).MustInt64(int64(def / time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}

// Save writes configuration to an INI file.
// Creates parent directories if they don't exist.
// The API token is stored in the file - ensure appropriate file permissions.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = cfg.Path
	}
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()
	for _, kv := range cfg.entries(false) {
		section, key, _ := strings.Cut(kv.Key, ".")
		iniFile.Section(section).Key(key).SetValue(kv.Value)
	}

	// Temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}
	cfg.Path = path
	return nil
}

// ApplyEnv overlays AUTOKONG_URL and AUTOKONG_API_TOKEN.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("AUTOKONG_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("AUTOKONG_API_TOKEN"); v != "" {
		c.APIToken = v
	}
}

// MergeWithFlags applies command-line overrides. Empty values are ignored.
// Priority: flags > environment > file > defaults
func (c *Config) MergeWithFlags(baseURL, proxyMode string) {
	c.ApplyEnv()
	if baseURL != "" {
		c.BaseURL = baseURL
	}
	if proxyMode != "" {
		c.ProxyMode = proxyMode
	}
	if c.BaseURL != "" && !strings.HasPrefix(c.BaseURL, "http") {
		c.BaseURL = "http://" + c.BaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return ErrMissingBaseURL
	}
	for _, d := range []time.Duration{c.RunPollInterval, c.CurrentPollInterval, c.HistoryWatchInterval} {
		if d < constants.MinPollInterval || d > constants.MaxPollInterval {
			return ErrInvalidInterval
		}
	}
	if c.RequestTimeout < time.Second {
		return ErrInvalidTimeout
	}
	if c.TransientRetries < 0 || c.TransientRetries > constants.MaxTransientRetries {
		return ErrInvalidRetries
	}
	if c.RequestsPerSecond <= 0 {
		return ErrInvalidRate
	}
	switch strings.ToLower(c.ProxyMode) {
	case "", "no-proxy", "system", "basic", "ntlm":
	default:
		return ErrUnsupportedProxyMode
	}
	return nil
}

// KeyValue is one "section.key" entry as shown by `config show`.
type KeyValue struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Entries returns every setting in file order with secrets masked.
func (c *Config) Entries() []KeyValue {
	return c.entries(true)
}

func (c *Config) entries(mask bool) []KeyValue {
	secret := func(s string) string {
		if mask && s != "" {
			return "********"
		}
		return s
	}
	return []KeyValue{
		{"autokong.base_url", c.BaseURL},
		{"autokong.api_token", secret(c.APIToken)},
		{"monitor.run_poll_interval_ms", strconv.FormatInt(c.RunPollInterval.Milliseconds(), 10)},
		{"monitor.current_poll_interval_ms", strconv.FormatInt(c.CurrentPollInterval.Milliseconds(), 10)},
		{"monitor.history_watch_interval_ms", strconv.FormatInt(c.HistoryWatchInterval.Milliseconds(), 10)},
		{"monitor.request_timeout_seconds", strconv.Itoa(int(c.RequestTimeout / time.Second))},
		{"monitor.transient_retries", strconv.Itoa(c.TransientRetries)},
		{"monitor.requests_per_second", strconv.FormatFloat(c.RequestsPerSecond, 'g', -1, 64)},
		{"proxy.mode", c.ProxyMode},
		{"proxy.host", c.ProxyHost},
		{"proxy.port", strconv.Itoa(c.ProxyPort)},
		{"proxy.user", c.ProxyUser},
		{"proxy.password", secret(c.ProxyPassword)},
		{"proxy.no_proxy", c.NoProxy},
		{"proxy.warmup", strconv.FormatBool(c.ProxyWarmup)},
		{"cache.path", c.CachePath},
		{"cache.enabled", strconv.FormatBool(c.CacheEnabled)},
	}
}

// Set assigns one "section.key" setting from its string form.
func (c *Config) Set(key, value string) error {
	var err error
	switch key {
	case "autokong.base_url":
		c.BaseURL = strings.TrimRight(value, "/")
	case "autokong.api_token":
		c.APIToken = value
	case "monitor.run_poll_interval_ms":
		c.RunPollInterval, err = parseMillis(value)
	case "monitor.current_poll_interval_ms":
		c.CurrentPollInterval, err = parseMillis(value)
	case "monitor.history_watch_interval_ms":
		c.HistoryWatchInterval, err = parseMillis(value)
	case "monitor.request_timeout_seconds":
		var n int
		n, err = strconv.Atoi(value)
		c.RequestTimeout = time.Duration(n) * time.Second
	case "monitor.transient_retries":
		c.TransientRetries, err = strconv.Atoi(value)
	case "monitor.requests_per_second":
		c.RequestsPerSecond, err = strconv.ParseFloat(value, 64)
	case "proxy.mode":
		c.ProxyMode = value
	case "proxy.host":
		c.ProxyHost = value
	case "proxy.port":
		c.ProxyPort, err = strconv.Atoi(value)
	case "proxy.user":
		c.ProxyUser = value
	case "proxy.password":
		c.ProxyPassword = value
	case "proxy.no_proxy":
		c.NoProxy = value
	case "proxy.warmup":
		c.ProxyWarmup, err = strconv.ParseBool(value)
	case "cache.path":
		c.CachePath = ExpandHome(value)
	case "cache.enabled":
		c.CacheEnabled, err = strconv.ParseBool(value)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return c.Validate()
}

func parseMillis(s string) (time.Duration, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}
