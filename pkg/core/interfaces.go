// Package core orchestrates a processing run: validate the model, evaluate
// the threat catalog, build the report, and fan the result out to renderers,
// the archive, history, and the push transport.
package core

import (
	"context"
	"io"

	"github.com/threatcanvas/sdk/pkg/compress"
	"github.com/threatcanvas/sdk/pkg/history"
	"github.com/threatcanvas/sdk/pkg/report"
	"github.com/threatcanvas/sdk/pkg/threats"
	"github.com/threatcanvas/sdk/pkg/tm"
)

// =============================================================================
// Interfaces
// =============================================================================

// RuleEngine evaluates a rule catalog against a model.
type RuleEngine interface {
	Evaluate(ctx context.Context, m *tm.Model) ([]threats.Finding, error)
}

// Renderer draws a model in one diagram format.
type Renderer interface {
	// Format returns the identifier used to select the renderer ("dot").
	Format() string

	// Render writes the model diagram to w.
	Render(m *tm.Model, w io.Writer) error
}

// HistoryStore records runs and diffs them against previous ones.
type HistoryStore interface {
	RecordRun(ctx context.Context, r *report.Report) (*history.Diff, error)
}

// Archiver persists a compressed copy of the report.
type Archiver interface {
	Archive(r *report.Report) (string, *compress.Stats, error)
}

// PushResult is the remote side's answer to a pushed report.
type PushResult struct {
	ReportID         string
	FindingsAccepted int
	Message          string
}

// Pusher delivers a report to a remote collector.
type Pusher interface {
	PushReport(ctx context.Context, r *report.Report) (*PushResult, error)
}
