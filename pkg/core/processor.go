package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/threatcanvas/sdk/pkg/errors"
	"github.com/threatcanvas/sdk/pkg/history"
	"github.com/threatcanvas/sdk/pkg/metrics"
	"github.com/threatcanvas/sdk/pkg/report"
	"github.com/threatcanvas/sdk/pkg/threats"
	"github.com/threatcanvas/sdk/pkg/tm"
)

// Options controls one processing run.
type Options struct {
	// Formats selects the outputs to produce: "json", "yaml", "markdown",
	// "sarif", plus the format of every registered diagram renderer.
	// Empty means json only.
	Formats []string

	// OutputDir is where report and diagram files are written.
	// Empty means the current directory.
	OutputDir string

	// Archive stores a compressed copy of the report (requires an
	// archiver on the processor).
	Archive bool

	// Push delivers the report to the remote collector (requires a
	// pusher on the processor).
	Push bool

	// MaxRetries and RetryDelaySec control push retry behavior.
	MaxRetries    int
	RetryDelaySec int
}

// Result is the outcome of one processing run.
type Result struct {
	Report *report.Report

	// Files lists every file the run wrote, reports and diagrams both.
	Files []string

	// ArchivePath is set when the run archived the report.
	ArchivePath string

	// Diff is set when the run was recorded to history.
	Diff *history.Diff

	// PushResult is set when the run pushed the report.
	PushResult *PushResult
}

// Processor runs the validate -> evaluate -> report -> fan-out workflow.
type Processor struct {
	engine    RuleEngine
	renderers map[string]Renderer
	store     HistoryStore
	archiver  Archiver
	pusher    Pusher
	logger    Logger
	collector metrics.Collector
	tool      report.Tool
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithEngine replaces the default rule engine.
func WithEngine(engine RuleEngine) ProcessorOption {
	return func(p *Processor) { p.engine = engine }
}

// WithRenderer registers a diagram renderer, keyed by its Format().
func WithRenderer(r Renderer) ProcessorOption {
	return func(p *Processor) { p.renderers[r.Format()] = r }
}

// WithHistory sets the history store.
func WithHistory(store HistoryStore) ProcessorOption {
	return func(p *Processor) { p.store = store }
}

// WithArchiver sets the report archiver.
func WithArchiver(a Archiver) ProcessorOption {
	return func(p *Processor) { p.archiver = a }
}

// WithPusher sets the report pusher.
func WithPusher(pusher Pusher) ProcessorOption {
	return func(p *Processor) { p.pusher = pusher }
}

// WithProcessorLogger sets the logger.
func WithProcessorLogger(logger Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithCollector sets the metrics collector.
func WithCollector(c metrics.Collector) ProcessorOption {
	return func(p *Processor) {
		if c != nil {
			p.collector = c
		}
	}
}

// WithTool sets the tool identity stamped into reports.
func WithTool(tool report.Tool) ProcessorOption {
	return func(p *Processor) { p.tool = tool }
}

// NewProcessor creates a processor with the built-in rule catalog and no
// renderers, history, archive, or push wired.
func NewProcessor(opts ...ProcessorOption) *Processor {
	p := &Processor{
		engine:    threats.NewEngine(),
		renderers: make(map[string]Renderer),
		logger:    &NopLogger{},
		collector: &metrics.NopCollector{},
		tool:      report.Tool{Name: "threatcanvas"},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the full workflow for one model. Validation failure aborts
// the run before any output is produced.
func (p *Processor) Process(ctx context.Context, m *tm.Model, opts *Options) (*Result, error) {
	if m == nil {
		return nil, errors.E(errors.KindInvalidInput, "process", "model is nil")
	}
	if opts == nil {
		opts = &Options{}
	}

	start := time.Now()

	// Step 1: validate
	if err := m.Validate(); err != nil {
		p.collector.CounterInc(metrics.ValidationFailures.Name, "model", m.Name)
		p.logger.Error("model %q failed validation: %v", m.Name, err)
		return nil, err
	}
	p.logger.Debug("model %q validated: %d elements, %d flows",
		m.Name, len(m.Elements()), len(m.Flows()))

	// Step 2: evaluate
	findings, err := p.engine.Evaluate(ctx, m)
	if err != nil {
		p.collector.CounterInc(metrics.ProcessRunsTotal.Name, "model", m.Name, "status", "error")
		return nil, errors.E(errors.KindInternal, "process", err)
	}
	for _, f := range findings {
		p.collector.CounterInc(metrics.FindingsTotal.Name,
			"model", m.Name, "severity", string(f.Severity))
	}

	// Step 3: build the report
	r := report.New(m, findings, p.tool)
	r.Metadata.DurationMs = time.Since(start).Milliseconds()
	result := &Result{Report: r}

	// Step 4: write outputs
	if err := p.writeOutputs(m, r, opts, result); err != nil {
		p.collector.CounterInc(metrics.ProcessRunsTotal.Name, "model", m.Name, "status", "error")
		return nil, err
	}

	// Step 5: archive
	if opts.Archive && p.archiver != nil {
		path, stats, err := p.archiver.Archive(r)
		if err != nil {
			return nil, errors.E(errors.KindStorage, "process", err)
		}
		result.ArchivePath = path
		p.logger.Info("archived report to %s (%.1f%% smaller)", path, stats.Savings)
	}

	// Step 6: history
	if p.store != nil {
		diff, err := p.store.RecordRun(ctx, r)
		if err != nil {
			return nil, errors.E(errors.KindStorage, "process", err)
		}
		result.Diff = diff
		p.collector.CounterAdd(metrics.HistoryNewFindings.Name,
			float64(len(diff.New)), "model", m.Name)
		p.collector.CounterAdd(metrics.HistoryResolvedFindings.Name,
			float64(len(diff.Resolved)), "model", m.Name)
		p.logger.Info("history: %d new, %d recurring, %d resolved",
			len(diff.New), diff.Recurring, len(diff.Resolved))
	}

	// Step 7: push
	if opts.Push && p.pusher != nil {
		pushResult, err := p.pushWithRetry(ctx, r, opts.MaxRetries, opts.RetryDelaySec)
		if err != nil {
			p.collector.CounterInc(metrics.PusherPushesTotal.Name, "status", "error")
			return nil, err
		}
		result.PushResult = pushResult
		p.collector.CounterInc(metrics.PusherPushesTotal.Name, "status", "ok")
		p.collector.CounterAdd(metrics.PusherFindingsPushed.Name, float64(len(r.Findings)))
	}

	p.collector.CounterInc(metrics.ProcessRunsTotal.Name, "model", m.Name, "status", "ok")
	p.collector.HistogramObserve(metrics.ProcessDuration.Name,
		time.Since(start).Seconds(), "model", m.Name)
	p.logger.Info("processed model %q: %d findings (highest %s)",
		m.Name, len(findings), r.HighestSeverity())

	return result, nil
}

func (p *Processor) writeOutputs(m *tm.Model, r *report.Report, opts *Options, result *Result) error {
	formats := opts.Formats
	if len(formats) == 0 {
		formats = []string{"json"}
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return errors.E(errors.KindStorage, "process", err)
	}

	base := filepath.Join(outputDir, outputBase(m.Name, r.Metadata.ID))

	for _, format := range formats {
		path, err := p.writeOutput(m, r, format, base)
		if err != nil {
			p.collector.CounterInc(metrics.RendersTotal.Name, "format", format, "status", "error")
			return err
		}
		p.collector.CounterInc(metrics.RendersTotal.Name, "format", format, "status", "ok")
		result.Files = append(result.Files, path)
		p.logger.Debug("wrote %s output to %s", format, path)
	}
	return nil
}

func (p *Processor) writeOutput(m *tm.Model, r *report.Report, format, base string) (string, error) {
	switch format {
	case "json":
		data, err := r.ToJSON()
		if err != nil {
			return "", errors.E(errors.KindRender, "process", err)
		}
		return writeFile(base+".json", data)

	case "yaml":
		data, err := r.ToYAML()
		if err != nil {
			return "", errors.E(errors.KindRender, "process", err)
		}
		return writeFile(base+".yaml", data)

	case "sarif":
		data, err := r.ToSARIF()
		if err != nil {
			return "", errors.E(errors.KindRender, "process", err)
		}
		return writeFile(base+".sarif", data)

	case "markdown", "md":
		var sb strings.Builder
		if err := r.WriteMarkdown(&sb); err != nil {
			return "", errors.E(errors.KindRender, "process", err)
		}
		return writeFile(base+".md", []byte(sb.String()))

	default:
		renderer, ok := p.renderers[format]
		if !ok {
			return "", errors.E(errors.KindInvalidInput, "process",
				fmt.Sprintf("unknown output format %q", format))
		}
		var sb strings.Builder
		if err := renderer.Render(m, &sb); err != nil {
			return "", errors.E(errors.KindRender, "process", err)
		}
		return writeFile(base+"."+format, []byte(sb.String()))
	}
}

func (p *Processor) pushWithRetry(ctx context.Context, r *report.Report, maxRetries, retryDelaySec int) (*PushResult, error) {
	if maxRetries == 0 {
		maxRetries = 3
	}
	if retryDelaySec == 0 {
		retryDelaySec = 2
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(retryDelaySec) * time.Second * time.Duration(1<<(attempt-1))
			p.logger.Warn("retrying push (attempt %d/%d) after %v", attempt, maxRetries, backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := p.pusher.PushReport(ctx, r)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !errors.IsRetryable(err) {
			break
		}
	}
	return nil, errors.E(errors.KindNetwork, "process",
		fmt.Errorf("push failed after retries: %w", lastErr))
}

func writeFile(path string, data []byte) (string, error) {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.E(errors.KindStorage, "process", err)
	}
	return path, nil
}

// outputBase builds the file name stem for run outputs.
func outputBase(model, runID string) string {
	name := strings.ToLower(strings.TrimSpace(model))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '/':
			b.WriteRune('-')
		}
	}
	stem := strings.Trim(b.String(), "-")
	for strings.Contains(stem, "--") {
		stem = strings.ReplaceAll(stem, "--", "-")
	}
	if stem == "" {
		stem = "model"
	}
	return stem + "-" + runID
}
