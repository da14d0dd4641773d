// Package metrics provides metrics collection for processing runs.
// It includes a collector interface and a Prometheus-backed implementation.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// =============================================================================
// Metrics Interface
// =============================================================================

// Collector is the interface for collecting and reporting metrics.
// Implement this interface to use custom metrics backends.
type Collector interface {
	// Counter operations
	CounterInc(name string, labels ...string)
	CounterAdd(name string, value float64, labels ...string)

	// Gauge operations
	GaugeSet(name string, value float64, labels ...string)
	GaugeInc(name string, labels ...string)
	GaugeDec(name string, labels ...string)

	// Histogram operations
	HistogramObserve(name string, value float64, labels ...string)

	// Handler returns an HTTP handler for the metrics endpoint
	Handler() http.Handler

	// Reset clears all metrics (for testing)
	Reset()
}

// =============================================================================
// Metric Types
// =============================================================================

// MetricType represents the type of metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// MetricDefinition defines a metric with its metadata.
type MetricDefinition struct {
	Name    string     `json:"name"`
	Type    MetricType `json:"type"`
	Help    string     `json:"help"`
	Labels  []string   `json:"labels,omitempty"`
	Buckets []float64  `json:"buckets,omitempty"` // For histograms
}

// =============================================================================
// Default Metrics
// =============================================================================

var (
	// Processing metrics
	ProcessRunsTotal = MetricDefinition{
		Name:   "threatcanvas_process_runs_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of processing runs",
		Labels: []string{"model", "status"},
	}
	ProcessDuration = MetricDefinition{
		Name:    "threatcanvas_process_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of processing runs in seconds",
		Labels:  []string{"model"},
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}
	FindingsTotal = MetricDefinition{
		Name:   "threatcanvas_findings_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of findings produced",
		Labels: []string{"model", "severity"},
	}
	ValidationFailures = MetricDefinition{
		Name:   "threatcanvas_validation_failures_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of runs rejected by model validation",
		Labels: []string{"model"},
	}

	// Renderer metrics
	RendersTotal = MetricDefinition{
		Name:   "threatcanvas_renders_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of diagram and report renders",
		Labels: []string{"format", "status"},
	}

	// History metrics
	HistoryNewFindings = MetricDefinition{
		Name:   "threatcanvas_history_new_findings_total",
		Type:   MetricTypeCounter,
		Help:   "Findings first seen in a run",
		Labels: []string{"model"},
	}
	HistoryResolvedFindings = MetricDefinition{
		Name:   "threatcanvas_history_resolved_findings_total",
		Type:   MetricTypeCounter,
		Help:   "Findings resolved by a run",
		Labels: []string{"model"},
	}

	// Pusher metrics
	PusherPushesTotal = MetricDefinition{
		Name:   "threatcanvas_pusher_pushes_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of report push operations",
		Labels: []string{"status"},
	}
	PusherFindingsPushed = MetricDefinition{
		Name:   "threatcanvas_pusher_findings_pushed_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of findings pushed",
		Labels: []string{},
	}

	// Connector metrics
	ConnectorFetchesTotal = MetricDefinition{
		Name:   "threatcanvas_connector_fetches_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of model definition fetches",
		Labels: []string{"connector", "status"},
	}
	ConnectorFetchDuration = MetricDefinition{
		Name:    "threatcanvas_connector_fetch_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of model definition fetches in seconds",
		Labels:  []string{"connector"},
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}
)

// =============================================================================
// NopCollector - No-operation implementation
// =============================================================================

// NopCollector discards all metrics.
type NopCollector struct{}

func (c *NopCollector) CounterInc(name string, labels ...string)                      {}
func (c *NopCollector) CounterAdd(name string, value float64, labels ...string)       {}
func (c *NopCollector) GaugeSet(name string, value float64, labels ...string)         {}
func (c *NopCollector) GaugeInc(name string, labels ...string)                        {}
func (c *NopCollector) GaugeDec(name string, labels ...string)                        {}
func (c *NopCollector) HistogramObserve(name string, value float64, labels ...string) {}
func (c *NopCollector) Handler() http.Handler                                         { return http.NotFoundHandler() }
func (c *NopCollector) Reset()                                                        {}

// =============================================================================
// InMemoryCollector - Simple in-memory implementation for testing
// =============================================================================

// InMemoryCollector stores metrics in memory for testing purposes.
type InMemoryCollector struct {
	mu         sync.RWMutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewInMemoryCollector creates a new in-memory metrics collector.
func NewInMemoryCollector() *InMemoryCollector {
	return &InMemoryCollector{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (c *InMemoryCollector) key(name string, labels []string) string {
	key := name
	for i := 0; i < len(labels); i += 2 {
		if i+1 < len(labels) {
			key += "," + labels[i] + "=" + labels[i+1]
		}
	}
	return key
}

func (c *InMemoryCollector) CounterInc(name string, labels ...string) {
	c.CounterAdd(name, 1, labels...)
}

func (c *InMemoryCollector) CounterAdd(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[c.key(name, labels)] += value
}

func (c *InMemoryCollector) GaugeSet(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[c.key(name, labels)] = value
}

func (c *InMemoryCollector) GaugeInc(name string, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[c.key(name, labels)]++
}

func (c *InMemoryCollector) GaugeDec(name string, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[c.key(name, labels)]--
}

func (c *InMemoryCollector) HistogramObserve(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.key(name, labels)
	c.histograms[key] = append(c.histograms[key], value)
}

func (c *InMemoryCollector) Handler() http.Handler {
	return http.NotFoundHandler()
}

func (c *InMemoryCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters = make(map[string]float64)
	c.gauges = make(map[string]float64)
	c.histograms = make(map[string][]float64)
}

// GetCounter returns the value of a counter.
func (c *InMemoryCollector) GetCounter(name string, labels ...string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[c.key(name, labels)]
}

// GetGauge returns the value of a gauge.
func (c *InMemoryCollector) GetGauge(name string, labels ...string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gauges[c.key(name, labels)]
}

// GetHistogram returns all observations of a histogram.
func (c *InMemoryCollector) GetHistogram(name string, labels ...string) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.histograms[c.key(name, labels)]
}

// =============================================================================
// Timer - Helper for timing operations
// =============================================================================

// Timer is a helper for timing operations and recording to histograms.
type Timer struct {
	start     time.Time
	collector Collector
	name      string
	labels    []string
}

// NewTimer creates a timer that will record to the given histogram.
func NewTimer(collector Collector, name string, labels ...string) *Timer {
	return &Timer{
		start:     time.Now(),
		collector: collector,
		name:      name,
		labels:    labels,
	}
}

// ObserveDuration records the duration since the timer was created.
func (t *Timer) ObserveDuration() time.Duration {
	d := time.Since(t.start)
	t.collector.HistogramObserve(t.name, d.Seconds(), t.labels...)
	return d
}

// =============================================================================
// Global Default Collector
// =============================================================================

var defaultCollector Collector = &NopCollector{}
var defaultCollectorMu sync.RWMutex

// SetDefaultCollector sets the global default metrics collector.
func SetDefaultCollector(collector Collector) {
	defaultCollectorMu.Lock()
	defer defaultCollectorMu.Unlock()
	if collector == nil {
		collector = &NopCollector{}
	}
	defaultCollector = collector
}

// GetDefaultCollector returns the global default metrics collector.
func GetDefaultCollector() Collector {
	defaultCollectorMu.RLock()
	defer defaultCollectorMu.RUnlock()
	return defaultCollector
}

// =============================================================================
// Context-based Collector
// =============================================================================

type contextKey string

const collectorContextKey contextKey = "threatcanvas_metrics_collector"

// WithCollector returns a new context with the collector attached.
func WithCollector(ctx context.Context, collector Collector) context.Context {
	return context.WithValue(ctx, collectorContextKey, collector)
}

// CollectorFromContext returns the collector from the context, or the default.
func CollectorFromContext(ctx context.Context) Collector {
	if collector, ok := ctx.Value(collectorContextKey).(Collector); ok {
		return collector
	}
	return GetDefaultCollector()
}

// =============================================================================
// Interface compliance
// =============================================================================

var (
	_ Collector = (*NopCollector)(nil)
	_ Collector = (*InMemoryCollector)(nil)
)
