// Package connectors provides connectors for fetching threat model
// definitions from external systems such as SCM providers.
package connectors

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/threatcanvas/sdk/pkg/metrics"
)

// DefinitionFetcher fetches a threat model definition file from an
// external system. repo identifies the project (owner/name or path
// with namespace), path is the file path inside it and ref is a
// branch, tag or commit. An empty ref means the default branch.
type DefinitionFetcher interface {
	FetchDefinition(ctx context.Context, repo, path, ref string) ([]byte, error)
}

// Connector is the common surface of all external system connectors.
type Connector interface {
	Name() string
	Type() string
	Connect(ctx context.Context) error
	Close() error
	TestConnection(ctx context.Context) error
}

// ConnectorConfig holds credentials and limits shared by all connectors.
type ConnectorConfig struct {
	Token     string        `yaml:"token" json:"token"`
	Username  string        `yaml:"username" json:"username"`
	Password  string        `yaml:"password" json:"password"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	RateLimit int           `yaml:"rate_limit" json:"rate_limit"` // requests per hour
	Burst     int           `yaml:"burst" json:"burst"`
}

// BaseConnector provides rate limiting, authentication and HTTP client
// management for concrete connectors.
type BaseConnector struct {
	name       string
	connType   string
	baseURL    string
	httpClient *http.Client
	config     *ConnectorConfig

	rateLimiter *rate.Limiter

	connected bool
	mu        sync.RWMutex

	verbose bool
}

// BaseConnectorConfig holds configuration for creating a BaseConnector.
type BaseConnectorConfig struct {
	Name    string
	Type    string // "scm", "registry", ...
	BaseURL string
	Config  *ConnectorConfig
	Verbose bool
}

// NewBaseConnector creates a new BaseConnector with the given configuration.
func NewBaseConnector(cfg *BaseConnectorConfig) *BaseConnector {
	if cfg.Config == nil {
		cfg.Config = &ConnectorConfig{}
	}

	timeout := cfg.Config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	bc := &BaseConnector{
		name:     cfg.Name,
		connType: cfg.Type,
		baseURL:  cfg.BaseURL,
		config:   cfg.Config,
		verbose:  cfg.Verbose,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	if cfg.Config.RateLimit > 0 {
		// Convert requests per hour to rate per second
		rps := float64(cfg.Config.RateLimit) / 3600.0
		burst := cfg.Config.Burst
		if burst <= 0 {
			burst = 10
		}
		bc.rateLimiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	return bc
}

// Name returns the connector name.
func (c *BaseConnector) Name() string {
	return c.name
}

// Type returns the connector type.
func (c *BaseConnector) Type() string {
	return c.connType
}

// Connect marks the connector as connected. Concrete connectors
// override this with real connection logic.
func (c *BaseConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = true

	if c.verbose {
		fmt.Printf("[%s] Connected to %s\n", c.name, c.baseURL)
	}

	return nil
}

// Close closes the connection.
func (c *BaseConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = false

	if c.verbose {
		fmt.Printf("[%s] Disconnected\n", c.name)
	}

	return nil
}

// IsConnected returns true if connected.
func (c *BaseConnector) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// TestConnection verifies the connection is working. Concrete
// connectors override this with a real API call.
func (c *BaseConnector) TestConnection(ctx context.Context) error {
	if err := c.WaitForRateLimit(ctx); err != nil {
		return err
	}

	if !c.IsConnected() {
		return fmt.Errorf("not connected")
	}

	return nil
}

// HTTPClient returns the configured HTTP client.
func (c *BaseConnector) HTTPClient() *http.Client {
	return c.httpClient
}

// RateLimited returns true if rate limiting is enabled.
func (c *BaseConnector) RateLimited() bool {
	return c.rateLimiter != nil
}

// WaitForRateLimit blocks until the rate limiter allows the next request.
func (c *BaseConnector) WaitForRateLimit(ctx context.Context) error {
	if c.rateLimiter == nil {
		return nil
	}

	return c.rateLimiter.Wait(ctx)
}

// ObserveFetch records a definition fetch on the context's metrics
// collector. Call it with the fetch start time and outcome:
//
//	defer func() { connectors.ObserveFetch(ctx, c.Type(), start, err) }()
func ObserveFetch(ctx context.Context, connector string, start time.Time, err error) {
	collector := metrics.CollectorFromContext(ctx)

	status := "success"
	if err != nil {
		status = "error"
	}
	collector.CounterInc(metrics.ConnectorFetchesTotal.Name,
		"connector", connector, "status", status)
	collector.HistogramObserve(metrics.ConnectorFetchDuration.Name,
		time.Since(start).Seconds(), "connector", connector)
}

// BaseURL returns the base URL.
func (c *BaseConnector) BaseURL() string {
	return c.baseURL
}

// Config returns the connector configuration.
func (c *BaseConnector) Config() *ConnectorConfig {
	return c.config
}

// Verbose returns true if verbose mode is enabled.
func (c *BaseConnector) Verbose() bool {
	return c.verbose
}

// NewRequest creates an HTTP request against the connector base URL
// with authentication headers applied.
func (c *BaseConnector) NewRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.addAuthHeaders(req)

	return req, nil
}

func (c *BaseConnector) addAuthHeaders(req *http.Request) {
	if c.config == nil {
		return
	}

	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
		return
	}

	if c.config.Username != "" && c.config.Password != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}
}

// Do executes an HTTP request with rate limiting.
func (c *BaseConnector) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.WaitForRateLimit(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	if c.verbose {
		fmt.Printf("[%s] %s %s\n", c.name, req.Method, req.URL.Path)
	}

	return c.httpClient.Do(req)
}

var _ Connector = (*BaseConnector)(nil)
