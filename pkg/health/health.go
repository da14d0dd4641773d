// Package health provides health check endpoints for long-running
// threat model processors. It supports Kubernetes-style readiness and
// liveness probes and allows registering custom checks for
// dependencies such as the history database or the ingest API.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// =============================================================================
// Health Check Interface
// =============================================================================

// Checker is the interface for health checks.
type Checker interface {
	// Name returns the check name.
	Name() string

	// Check performs the health check.
	Check(ctx context.Context) CheckResult
}

// CheckFunc is a function type that implements Checker.
type CheckFunc func(ctx context.Context) CheckResult

func (f CheckFunc) Name() string                          { return "" }
func (f CheckFunc) Check(ctx context.Context) CheckResult { return f(ctx) }

// =============================================================================
// Health Status Types
// =============================================================================

// Status represents the health status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
	StatusUnknown   Status = "unknown"
)

// CheckResult holds the result of a health check.
type CheckResult struct {
	// Status is the health status.
	Status Status `json:"status"`

	// Message provides additional details.
	Message string `json:"message,omitempty"`

	// Duration is how long the check took.
	Duration time.Duration `json:"duration_ms"`

	// Timestamp is when the check was performed.
	Timestamp time.Time `json:"timestamp"`

	// Error is the error if the check failed.
	Error string `json:"error,omitempty"`

	// Metadata holds additional check-specific data.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Response is the full health check response.
type Response struct {
	// Status is the overall health status.
	Status Status `json:"status"`

	// Timestamp is when the health check was performed.
	Timestamp time.Time `json:"timestamp"`

	// Checks contains individual check results.
	Checks map[string]CheckResult `json:"checks,omitempty"`

	// Version is the application version.
	Version string `json:"version,omitempty"`

	// Uptime is how long the application has been running.
	Uptime time.Duration `json:"uptime_seconds,omitempty"`
}

// =============================================================================
// Health Handler
// =============================================================================

// Handler manages health checks and provides HTTP endpoints.
type Handler struct {
	mu sync.RWMutex

	checks map[string]Checker

	version   string
	startTime time.Time
	timeout   time.Duration

	ready bool
}

// HandlerOption configures the health handler.
type HandlerOption func(*Handler)

// WithVersion sets the application version.
func WithVersion(version string) HandlerOption {
	return func(h *Handler) {
		h.version = version
	}
}

// WithTimeout sets the check timeout.
func WithTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		h.timeout = timeout
	}
}

// NewHandler creates a new health handler.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		checks:    make(map[string]Checker),
		startTime: time.Now(),
		timeout:   5 * time.Second,
		ready:     true,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Register adds a health check.
func (h *Handler) Register(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = checker
}

// RegisterFunc adds a health check function.
func (h *Handler) RegisterFunc(name string, fn func(ctx context.Context) CheckResult) {
	h.Register(name, CheckFunc(fn))
}

// SetReady sets the readiness state.
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// IsReady returns the readiness state.
func (h *Handler) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Check runs all registered health checks concurrently.
func (h *Handler) Check(ctx context.Context) Response {
	h.mu.RLock()
	checks := make(map[string]Checker, len(h.checks))
	for name, checker := range h.checks {
		checks[name] = checker
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make(map[string]CheckResult)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, checker := range checks {
		wg.Add(1)
		go func(name string, checker Checker) {
			defer wg.Done()

			start := time.Now()
			result := checker.Check(ctx)
			result.Duration = time.Since(start)
			result.Timestamp = time.Now()

			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name, checker)
	}

	wg.Wait()

	overallStatus := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			overallStatus = StatusUnhealthy
		case StatusDegraded:
			if overallStatus != StatusUnhealthy {
				overallStatus = StatusDegraded
			}
		}
	}

	response := Response{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Checks:    results,
		Uptime:    time.Since(h.startTime),
	}
	if h.version != "" {
		response.Version = h.version
	}

	return response
}

// =============================================================================
// HTTP Handlers
// =============================================================================

// LivenessHandler returns an HTTP handler for liveness probes.
func (h *Handler) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		// Liveness is OK if we can serve this response at all.
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    StatusHealthy,
			"timestamp": time.Now(),
		})
	})
}

// ReadinessHandler returns an HTTP handler for readiness probes.
func (h *Handler) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if !h.IsReady() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":    StatusUnhealthy,
				"message":   "service not ready",
				"timestamp": time.Now(),
			})
			return
		}

		response := h.Check(r.Context())

		if response.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(response)
	})
}

// HealthHandler returns an HTTP handler with detailed check results.
func (h *Handler) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		response := h.Check(r.Context())

		switch response.Status {
		case StatusHealthy, StatusDegraded:
			w.WriteHeader(http.StatusOK)
		case StatusUnhealthy:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}

		_ = json.NewEncoder(w).Encode(response)
	})
}

// RegisterRoutes registers the standard probe routes on a mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/health", h.HealthHandler())
}

// =============================================================================
// Built-in Health Checks
// =============================================================================

// PingCheck is a simple check that always succeeds.
type PingCheck struct{}

func (c *PingCheck) Name() string { return "ping" }
func (c *PingCheck) Check(ctx context.Context) CheckResult {
	return CheckResult{
		Status:    StatusHealthy,
		Message:   "pong",
		Timestamp: time.Now(),
	}
}

// Pinger is anything with a context-aware ping, such as the history store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreCheck checks that the findings history database is reachable.
type StoreCheck struct {
	Store Pinger
}

func (c *StoreCheck) Name() string { return "history" }
func (c *StoreCheck) Check(ctx context.Context) CheckResult {
	result := CheckResult{Timestamp: time.Now()}

	if c.Store == nil {
		result.Status = StatusUnknown
		result.Message = "no history store configured"
		return result
	}

	start := time.Now()
	err := c.Store.Ping(ctx)
	result.Duration = time.Since(start)

	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
	} else {
		result.Status = StatusHealthy
		result.Message = "connected"
	}

	return result
}

// IngestCheck checks that the report ingest API is reachable.
type IngestCheck struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

func (c *IngestCheck) Name() string { return "ingest" }
func (c *IngestCheck) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Timestamp: time.Now()}

	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: c.Timeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		return result
	}

	resp, err := client.Do(req)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	result.Duration = time.Since(start)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Status = StatusHealthy
		result.Message = fmt.Sprintf("HTTP %d", resp.StatusCode)
	} else {
		result.Status = StatusUnhealthy
		result.Error = fmt.Sprintf("unexpected status: %d", resp.StatusCode)
	}

	return result
}

// MemoryCheck checks Go runtime memory usage.
type MemoryCheck struct {
	// MaxHeapBytes is the maximum allowed heap size in bytes.
	MaxHeapBytes uint64
}

func (c *MemoryCheck) Name() string { return "memory" }
func (c *MemoryCheck) Check(ctx context.Context) CheckResult {
	result := CheckResult{
		Timestamp: time.Now(),
		Metadata:  make(map[string]any),
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	result.Metadata["heap_alloc_bytes"] = m.HeapAlloc
	result.Metadata["heap_sys_bytes"] = m.HeapSys
	result.Metadata["num_gc"] = m.NumGC
	result.Metadata["goroutines"] = runtime.NumGoroutine()

	if c.MaxHeapBytes > 0 && m.HeapAlloc > c.MaxHeapBytes {
		result.Status = StatusUnhealthy
		result.Error = fmt.Sprintf("heap usage %d bytes exceeds threshold %d bytes", m.HeapAlloc, c.MaxHeapBytes)
		return result
	}

	result.Status = StatusHealthy
	result.Message = fmt.Sprintf("heap: %d MB, goroutines: %d", m.HeapAlloc/1024/1024, runtime.NumGoroutine())
	return result
}

// ArchiveDirCheck is defined in sysinfo_linux.go and sysinfo_other.go
// for platform-specific free space accounting.

var (
	_ Checker = (*PingCheck)(nil)
	_ Checker = (*StoreCheck)(nil)
	_ Checker = (*IngestCheck)(nil)
	_ Checker = (*MemoryCheck)(nil)
	_ Checker = (*ArchiveDirCheck)(nil)
	_ Checker = CheckFunc(nil)
)
