package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/silkyclouds/Autokong/internal/config"
	"github.com/silkyclouds/Autokong/internal/constants"
	"github.com/silkyclouds/Autokong/internal/http"
	"github.com/silkyclouds/Autokong/internal/logging"
	"github.com/silkyclouds/Autokong/internal/models"
	"github.com/silkyclouds/Autokong/internal/version"
)

// apiMetrics tracks API usage statistics
type apiMetrics struct {
	sync.Mutex
	totalCalls  int64
	callsByPath map[string]int64
}

// Stats is a snapshot of API usage since the client was created.
type Stats struct {
	TotalCalls  int64
	CallsByPath map[string]int64
}

// Client talks to the autokong backend.
type Client struct {
	httpClient *nethttp.Client // retries transient failures
	onceClient *nethttp.Client // single attempt; callers own retry policy
	retrying   bool
	baseURL    string
	apiToken   string
	limiter    *rate.Limiter
	logger     *logging.Logger
	metrics    *apiMetrics
}

// NewClient creates a new API client from cfg.
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("API base URL is empty: %w", config.ErrMissingBaseURL)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	logger = logging.OrNop(logger)

	httpClient, err := http.NewAPIClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	newRetryClient := func(retryMax int) *retryablehttp.Client {
		rc := retryablehttp.NewClient()
		rc.HTTPClient = httpClient
		rc.RetryMax = retryMax
		rc.RetryWaitMin = constants.HTTPRetryWaitMin
		rc.RetryWaitMax = constants.HTTPRetryWaitMax
		rc.Logger = logging.NewRetryLogger(logger.Child("http"))
		// Hand the final response back so non-2xx statuses become StatusError
		rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
		return rc
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = constants.DefaultRequestsPerSecond
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		httpClient: newRetryClient(constants.HTTPRetryMax).StandardClient(),
		onceClient: newRetryClient(0).StandardClient(),
		retrying:   true,
		baseURL:    baseURL,
		apiToken:   cfg.APIToken,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		logger:     logger,
		metrics:    &apiMetrics{callsByPath: make(map[string]int64)},
	}, nil
}

// SingleAttempt returns a client sharing this one's transport, limiter and
// metrics that makes exactly one attempt per request. Pollers use it so their
// own retry policy is the only one in effect.
func (c *Client) SingleAttempt() *Client {
	cp := *c
	cp.retrying = false
	return &cp
}

// BaseURL returns the backend URL this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Stats returns API usage counters.
func (c *Client) Stats() Stats {
	c.metrics.Lock()
	defer c.metrics.Unlock()
	byPath := make(map[string]int64, len(c.metrics.callsByPath))
	for k, v := range c.metrics.callsByPath {
		byPath[k] = v
	}
	return Stats{TotalCalls: c.metrics.totalCalls, CallsByPath: byPath}
}

// doRequest performs an HTTP request with rate limiting and returns the body
// of a 2xx response. Non-2xx responses become *StatusError.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter cancelled: %w", err)
	}

	c.metrics.Lock()
	c.metrics.totalCalls++
	c.metrics.callsByPath[metricKey(path)]++
	c.metrics.Unlock()

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	client := c.httpClient
	if !c.retrying {
		client = c.onceClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Debug().Err(err).Str("method", method).Str("path", path).Str("request_id", requestID).Msg("API call failed")
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading body: %w", method, path, err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Str("request_id", requestID).
		Msg("API call")

	if resp.StatusCode == nethttp.StatusTooManyRequests {
		c.logger.Warn().Str("path", path).Str("retry_after", resp.Header.Get("Retry-After")).Msg("Backend throttled request")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError(method, path, resp.StatusCode, data)
	}
	return data, nil
}

// metricKey collapses job ids so per-endpoint counters stay bounded.
func metricKey(path string) string {
	if !strings.HasPrefix(path, "/api/job/") || path == "/api/job/current" {
		if i := strings.IndexByte(path, '?'); i >= 0 {
			return path[:i]
		}
		return path
	}
	parts := strings.Split(path, "/")
	if len(parts) >= 4 {
		parts[3] = "{id}"
	}
	return strings.Join(parts, "/")
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	data, err := c.doRequest(ctx, nethttp.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	data, err := c.doRequest(ctx, nethttp.MethodPost, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func jobPath(jobID, suffix string) string {
	return "/api/job/" + url.PathEscape(jobID) + suffix
}

// StartRun asks the backend to start a run.
func (c *Client) StartRun(ctx context.Context, req models.StartRunRequest) (*models.StartRunResponse, error) {
	var resp models.StartRunResponse
	if err := c.postJSON(ctx, "/api/run", req, &resp); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	if resp.JobID == "" {
		return nil, errors.New("start run: backend returned no job_id")
	}
	return &resp, nil
}

// CurrentJob returns the job the backend is running right now, if any.
func (c *Client) CurrentJob(ctx context.Context) (*models.CurrentJobResponse, error) {
	var resp models.CurrentJobResponse
	if err := c.getJSON(ctx, "/api/job/current", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobStatus returns the status document for a job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*models.JobStatusResponse, error) {
	var resp models.JobStatusResponse
	if err := c.getJSON(ctx, jobPath(jobID, ""), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobLog returns the full orchestrator log for a job.
func (c *Client) JobLog(ctx context.Context, jobID string) (*models.LogResponse, error) {
	var resp models.LogResponse
	if err := c.getJSON(ctx, jobPath(jobID, "/log"), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ContainerLog returns the tool-container log for a job.
func (c *Client) ContainerLog(ctx context.Context, jobID string) (*models.ContainerLogResponse, error) {
	var resp models.ContainerLogResponse
	if err := c.getJSON(ctx, jobPath(jobID, "/container-log"), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobAudit returns the raw audit report. A job without an audit yields an
// error for which IsNotFound is true.
func (c *Client) JobAudit(ctx context.Context, jobID string) (*models.AuditReport, error) {
	var resp models.AuditReport
	if err := c.getJSON(ctx, jobPath(jobID, "/audit"), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History returns recent runs, newest first.
func (c *Client) History(ctx context.Context) ([]models.HistoryEntry, error) {
	var resp []models.HistoryEntry
	if err := c.getJSON(ctx, "/api/history", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Preview lists the folders a run with scope would process.
func (c *Client) Preview(ctx context.Context, scope models.Scope) (*models.PreviewResponse, error) {
	var resp models.PreviewResponse
	q := url.Values{"scope": []string{string(scope)}}
	if err := c.getJSON(ctx, "/api/preview?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSettings returns the backend's saved defaults.
func (c *Client) GetSettings(ctx context.Context) (*models.Settings, error) {
	var resp models.Settings
	if err := c.getJSON(ctx, "/api/config", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SaveSettings persists run defaults and returns the full settings.
func (c *Client) SaveSettings(ctx context.Context, update models.SettingsUpdate) (*models.Settings, error) {
	var resp models.Settings
	if err := c.postJSON(ctx, "/api/config", update, &resp); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	return &resp, nil
}

// GetSchedule returns the unattended run schedule.
func (c *Client) GetSchedule(ctx context.Context) (*models.Schedule, error) {
	var resp models.Schedule
	if err := c.getJSON(ctx, "/api/schedule", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SaveSchedule updates the schedule. Nil fields keep their stored values.
func (c *Client) SaveSchedule(ctx context.Context, update models.ScheduleUpdate) (*models.Schedule, error) {
	var resp models.Schedule
	if err := c.postJSON(ctx, "/api/schedule", update, &resp); err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}
	return &resp, nil
}

// Health returns the backend's readiness checks.
func (c *Client) Health(ctx context.Context) (*models.Health, error) {
	var resp models.Health
	if err := c.getJSON(ctx, "/api/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
