// Package client provides the ThreatCanvas ingest API client.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/threatcanvas/sdk/pkg/compress"
	"github.com/threatcanvas/sdk/pkg/core"
	tcerrors "github.com/threatcanvas/sdk/pkg/errors"
	"github.com/threatcanvas/sdk/pkg/report"
	"github.com/threatcanvas/sdk/pkg/retry"
)

// Client is the ThreatCanvas ingest API client.
// It implements the core.Pusher interface.
type Client struct {
	baseURL    string
	apiKey     string
	clientID   string // Registered client ID for audit trail
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	verbose    bool

	compressor *compress.Compressor

	// queue, when set, parks reports that could not be delivered so a
	// retry.Worker can push them later.
	queue retry.Queue
}

// Ensure Client implements core.Pusher
var _ core.Pusher = (*Client)(nil)

// Config holds client configuration.
type Config struct {
	BaseURL    string        `yaml:"base_url" json:"base_url"`
	APIKey     string        `yaml:"api_key" json:"api_key"`
	ClientID   string        `yaml:"client_id" json:"client_id"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	Verbose    bool          `yaml:"verbose" json:"verbose"`

	EnableCompression bool   `yaml:"enable_compression" json:"enable_compression"`
	CompressionAlgo   string `yaml:"compression_algo" json:"compression_algo"` // "zstd" or "gzip"
	CompressionLevel  int    `yaml:"compression_level" json:"compression_level"`
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:           30 * time.Second,
		MaxRetries:        3,
		RetryDelay:        2 * time.Second,
		EnableCompression: true,
		CompressionAlgo:   "zstd",
		CompressionLevel:  int(compress.LevelDefault),
	}
}

// New creates a new client from config.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	c := &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		clientID:   cfg.ClientID,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		verbose:    cfg.Verbose,
	}

	if cfg.EnableCompression {
		algo := compress.Algorithm(cfg.CompressionAlgo)
		if algo == "" {
			algo = compress.AlgorithmZSTD
		}
		level := compress.Level(cfg.CompressionLevel)
		if level == 0 {
			level = compress.LevelDefault
		}
		c.compressor = compress.NewCompressor(algo, level)
	}

	return c
}

// Option configures a Client.
type Option func(*Client)

// NewWithOptions creates a client with functional options.
func NewWithOptions(opts ...Option) *Client {
	c := New(DefaultConfig())
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithClientID sets the client ID sent for audit trails.
func WithClientID(id string) Option {
	return func(c *Client) { c.clientID = id }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetry sets retry behavior.
func WithRetry(maxRetries int, retryDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryDelay = retryDelay
	}
}

// WithVerbose enables verbose logging.
func WithVerbose(v bool) Option {
	return func(c *Client) { c.verbose = v }
}

// WithCompression configures request compression.
func WithCompression(algorithm string, level int) Option {
	return func(c *Client) {
		c.compressor = compress.NewCompressor(compress.Algorithm(algorithm), compress.Level(level))
	}
}

// WithoutCompression disables request compression.
func WithoutCompression() Option {
	return func(c *Client) { c.compressor = nil }
}

// WithRetryQueue parks undeliverable reports on the given queue instead of
// failing the push. A retry.Worker draining the same queue delivers them
// once the ingest API is reachable again.
func WithRetryQueue(q retry.Queue) Option {
	return func(c *Client) { c.queue = q }
}

// IngestResponse is the server's answer to a report push.
type IngestResponse struct {
	ReportID         string   `json:"report_id"`
	FindingsAccepted int      `json:"findings_accepted"`
	FindingsSkipped  int      `json:"findings_skipped"`
	Errors           []string `json:"errors,omitempty"`
}

// PushReport sends a threat model report to the ingest endpoint.
func (c *Client) PushReport(ctx context.Context, r *report.Report) (*core.PushResult, error) {
	if r == nil {
		return nil, fmt.Errorf("report is nil")
	}

	url := fmt.Sprintf("%s/api/v1/reports", c.baseURL)

	if c.verbose {
		fmt.Printf("[threatcanvas] Pushing %d findings to %s\n", len(r.Findings), url)
	}

	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}

	data, err := c.doRequest(ctx, "POST", url, body)
	if err != nil {
		// Client errors are the caller's fault and will fail again
		// unchanged, so only transient failures get parked.
		if c.queue != nil && (!IsClientError(err) || IsRateLimitError(err)) {
			return c.parkReport(ctx, r, err)
		}
		return nil, err
	}

	var resp IngestResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if c.verbose {
		fmt.Printf("[threatcanvas] Push completed: %d findings accepted, %d skipped\n",
			resp.FindingsAccepted, resp.FindingsSkipped)
	}

	message := ""
	if len(resp.Errors) > 0 {
		message = fmt.Sprintf("%d errors occurred", len(resp.Errors))
	}

	return &core.PushResult{
		ReportID:         resp.ReportID,
		FindingsAccepted: resp.FindingsAccepted,
		Message:          message,
	}, nil
}

// parkReport stores an undeliverable report on the retry queue.
func (c *Client) parkReport(ctx context.Context, r *report.Report, cause error) (*core.PushResult, error) {
	id, err := c.queue.Enqueue(ctx, &retry.QueueItem{
		Report:    r,
		ClientID:  c.clientID,
		LastError: cause.Error(),
	})
	if err != nil {
		if errors.Is(err, retry.ErrDuplicateItem) {
			return &core.PushResult{
				ReportID: r.Metadata.ID,
				Message:  "report already queued for retry",
			}, nil
		}
		return nil, fmt.Errorf("push failed and report could not be queued: %w (push error: %v)", err, cause)
	}

	if c.verbose {
		fmt.Printf("[threatcanvas] Push failed (%v), report parked as queue item %s\n", cause, id)
	}

	return &core.PushResult{
		ReportID: r.Metadata.ID,
		Message:  "report queued for retry",
	}, nil
}

// TestConnection verifies the API is reachable and the key is valid.
func (c *Client) TestConnection(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/v1/ping", c.baseURL)

	if _, err := c.doRequest(ctx, "GET", url, nil); err != nil {
		return fmt.Errorf("connection test: %w", err)
	}
	return nil
}

// doRequest performs a request with retries and exponential backoff.
func (c *Client) doRequest(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: delay * 2^(attempt-1)
			backoff := c.retryDelay * time.Duration(1<<(attempt-1))
			if c.verbose {
				fmt.Printf("[threatcanvas] Retrying request (attempt %d/%d) after %v\n",
					attempt, c.maxRetries, backoff)
			}

			select {
			case <-ctx.Done():
				return nil, classifyError(ctx.Err())
			case <-time.After(backoff):
			}
		}

		data, err := c.doRequestOnce(ctx, method, url, body)
		if err == nil {
			return data, nil
		}

		lastErr = err

		// Don't retry on client errors (4xx) except 429 (rate limit)
		if IsClientError(err) && !IsRateLimitError(err) {
			return nil, classifyError(err)
		}

		if ctx.Err() != nil {
			return nil, classifyError(ctx.Err())
		}
	}

	return nil, classifyError(fmt.Errorf("request failed after %d retries: %w", c.maxRetries, lastErr))
}

// classifyError tags a transport failure with the error kind the retry
// machinery keys on: rate limits, server errors and timeouts are retryable,
// other client errors are not. Context cancellation maps to a retryable kind
// so a push interrupted by shutdown is retried rather than given up on.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case IsRateLimitError(err):
		return tcerrors.E(tcerrors.KindRateLimit, "client", err)
	case IsClientError(err):
		return tcerrors.E(tcerrors.KindInvalidInput, "client", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return tcerrors.E(tcerrors.KindTimeout, "client", err)
	default:
		// 5xx responses and connection failures.
		return tcerrors.E(tcerrors.KindNetwork, "client", err)
	}
}

// doRequestOnce performs a single HTTP request.
func (c *Client) doRequestOnce(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	requestBody := body
	var contentEncoding string

	// Only compress bodies over 1KB, and only when it actually helps.
	if c.compressor != nil && len(body) > 1024 {
		compressed, stats, err := c.compressor.CompressWithStats(body)
		if err == nil && len(compressed) < len(body) {
			requestBody = compressed
			contentEncoding = c.compressor.ContentEncoding()
			if c.verbose {
				fmt.Printf("[threatcanvas] Compressed request: %d -> %d bytes (%.1f%% savings)\n",
					stats.OriginalSize, stats.CompressedSize, stats.Savings)
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", "threatcanvas-sdk/1.0")

	if contentEncoding != "" {
		req.Header.Set("Content-Encoding", contentEncoding)
	}

	if c.clientID != "" {
		req.Header.Set("X-Client-ID", c.clientID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	return data, nil
}

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
	RequestID  string `json:"request_id,omitempty"`
}

func (e *HTTPError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("http %d: %s (request_id: %s)", e.StatusCode, e.Body, e.RequestID)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// =============================================================================
// Error Checking Helpers (Public API)
// =============================================================================

// IsHTTPError checks if err is an HTTPError and returns it.
func IsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

// IsClientError checks if the error is a 4xx client error.
func IsClientError(err error) bool {
	if httpErr, ok := IsHTTPError(err); ok {
		return httpErr.StatusCode >= 400 && httpErr.StatusCode < 500
	}
	return false
}

// IsServerError checks if the error is a 5xx server error.
func IsServerError(err error) bool {
	if httpErr, ok := IsHTTPError(err); ok {
		return httpErr.StatusCode >= 500
	}
	return false
}

// IsRateLimitError checks if the error is a 429 rate limit error.
func IsRateLimitError(err error) bool {
	if httpErr, ok := IsHTTPError(err); ok {
		return httpErr.StatusCode == 429
	}
	return false
}

// IsAuthenticationError checks if the error is a 401 authentication error.
func IsAuthenticationError(err error) bool {
	if httpErr, ok := IsHTTPError(err); ok {
		return httpErr.StatusCode == 401
	}
	return false
}

// IsRetryable checks if the error should be retried.
func IsRetryable(err error) bool {
	if IsRateLimitError(err) {
		return true
	}
	if httpErr, ok := IsHTTPError(err); ok {
		return httpErr.StatusCode >= 500 && httpErr.StatusCode != 501
	}
	return false
}

// SetVerbose sets verbose mode.
func (c *Client) SetVerbose(v bool) {
	c.verbose = v
}
