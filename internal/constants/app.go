package constants

import (
	"time"
)

// Monitoring
const (
	// RunPollInterval - delay between two poll cycles of the run monitor (1 second)
	// The delay starts after a cycle has been applied, so cycles never overlap.
	RunPollInterval = 1 * time.Second

	// CurrentJobPollInterval - interval of the global "what is running" poller (2 seconds)
	CurrentJobPollInterval = 2 * time.Second

	// HistoryWatchInterval - interval of the history completion watcher (4 seconds)
	// Coarser than CurrentJobPollInterval; the watcher only needs the running->idle edge.
	HistoryWatchInterval = 4 * time.Second

	// MinPollInterval - lower bound accepted by config validation (100ms)
	MinPollInterval = 100 * time.Millisecond

	// MaxPollInterval - upper bound accepted by config validation (10 minutes)
	MaxPollInterval = 10 * time.Minute
)

// Retry configuration
const (
	// TransientRetries - retries of a transient fetch failure inside one poll cycle
	TransientRetries = 2

	// MaxTransientRetries - upper bound accepted by config validation
	MaxTransientRetries = 10

	// RetryInitialDelay - initial delay before first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (5s)
	// Exponential backoff with jitter caps at this value
	RetryMaxDelay = 5 * time.Second

	// HTTPRetryMax - retries performed by the retryable HTTP transport for idempotent GETs
	HTTPRetryMax = 3

	// HTTPRetryWaitMin / HTTPRetryWaitMax - bounds of the transport-level backoff
	HTTPRetryWaitMin = 250 * time.Millisecond
	HTTPRetryWaitMax = 2 * time.Second
)

// API and Context Timeouts
const (
	// APIContextTimeout - default timeout for one poll cycle or one-shot API call (30 seconds)
	APIContextTimeout = 30 * time.Second

	// APIConnectionTestTimeout - timeout for the health check (10 seconds)
	APIConnectionTestTimeout = 10 * time.Second

	// DefaultRequestsPerSecond - client-side request budget shared by all pollers
	DefaultRequestsPerSecond = 10
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (15 seconds)
	HTTPTLSHandshakeTimeout = 15 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (10 seconds)
	HTTPDialTimeout = 10 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPClientTimeout - overall per-request ceiling; cycles use shorter context deadlines
	HTTPClientTimeout = 60 * time.Second
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels
	EventBusDefaultBuffer = 256

	// EventBusMaxBuffer - maximum buffer size
	EventBusMaxBuffer = 4096
)

// Presentation
const (
	// LogTailLines - number of log lines the CLI renderer prints per stream
	LogTailLines = 20

	// DashboardLogLines - height of each log pane in the dashboard
	DashboardLogLines = 12

	// HistoryListLimit - rows kept by the history list and the local cache
	HistoryListLimit = 100
)
