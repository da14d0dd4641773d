// Package report assembles the result of a processing run into a portable
// document: model summary, findings, and a severity rollup. Reports
// serialize to JSON and YAML and render to Markdown.
package report

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/threatcanvas/sdk/pkg/shared/severity"
	"github.com/threatcanvas/sdk/pkg/threats"
	"github.com/threatcanvas/sdk/pkg/tm"
)

// Version is the report document schema version.
const Version = "1.0"

// Report is the root document for a processing run.
type Report struct {
	// Schema version (required)
	Version string `json:"version" yaml:"version"`

	Metadata Metadata `json:"metadata" yaml:"metadata"`

	// Model is a flattened summary of the evaluated model.
	Model ModelSummary `json:"model" yaml:"model"`

	Findings []threats.Finding `json:"findings" yaml:"findings"`

	// Summary counts findings by severity.
	Summary severity.CountBySeverity `json:"summary" yaml:"summary"`
}

// Metadata describes the run that produced the report.
type Metadata struct {
	// ID uniquely identifies this run.
	ID string `json:"id" yaml:"id"`

	// Timestamp is when the report was generated.
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	// DurationMs is how long evaluation took.
	DurationMs int64 `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`

	// Tool identifies the generator.
	Tool Tool `json:"tool" yaml:"tool"`
}

// Tool describes the generator of the report.
type Tool struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// ModelSummary is the flattened, serializable view of a model.
type ModelSummary struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Assumptions []string `json:"assumptions,omitempty" yaml:"assumptions,omitempty"`

	Boundaries []string         `json:"boundaries,omitempty" yaml:"boundaries,omitempty"`
	Elements   []ElementSummary `json:"elements,omitempty" yaml:"elements,omitempty"`
	Flows      []FlowSummary    `json:"flows,omitempty" yaml:"flows,omitempty"`
	DataAssets []DataSummary    `json:"data_assets,omitempty" yaml:"data_assets,omitempty"`
}

// ElementSummary is one row of the model's element inventory.
type ElementSummary struct {
	Name     string `json:"name" yaml:"name"`
	Kind     string `json:"kind" yaml:"kind"`
	Boundary string `json:"boundary,omitempty" yaml:"boundary,omitempty"`
	OS       string `json:"os,omitempty" yaml:"os,omitempty"`
	InScope  bool   `json:"in_scope" yaml:"in_scope"`
}

// FlowSummary is one row of the model's dataflow inventory.
type FlowSummary struct {
	Seq      int      `json:"seq" yaml:"seq"`
	Name     string   `json:"name" yaml:"name"`
	Source   string   `json:"source" yaml:"source"`
	Sink     string   `json:"sink" yaml:"sink"`
	Protocol string   `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	DstPort  int      `json:"dst_port,omitempty" yaml:"dst_port,omitempty"`
	TLS      string   `json:"tls,omitempty" yaml:"tls,omitempty"`
	Data     []string `json:"data,omitempty" yaml:"data,omitempty"`
}

// DataSummary is one row of the model's data asset inventory.
type DataSummary struct {
	Name           string `json:"name" yaml:"name"`
	Classification string `json:"classification" yaml:"classification"`
	PII            bool   `json:"pii" yaml:"pii"`
	Stored         bool   `json:"stored" yaml:"stored"`
}

// New builds a report for the given model and findings. The finding order is
// preserved; the severity rollup is computed here.
func New(m *tm.Model, findings []threats.Finding, tool Tool) *Report {
	r := &Report{
		Version: Version,
		Metadata: Metadata{
			ID:        uuid.NewString(),
			Timestamp: time.Now().UTC(),
			Tool:      tool,
		},
		Model:    summarize(m),
		Findings: findings,
	}
	for _, f := range findings {
		r.Summary.Increment(f.Severity)
	}
	return r
}

// HighestSeverity returns the most severe finding level in the report.
func (r *Report) HighestSeverity() severity.Level {
	return r.Summary.HighestSeverity()
}

// ToJSON serializes the report as indented JSON.
func (r *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// ToYAML serializes the report as YAML.
func (r *Report) ToYAML() ([]byte, error) {
	return yaml.Marshal(r)
}

// FromJSON parses a JSON report document.
func FromJSON(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func summarize(m *tm.Model) ModelSummary {
	s := ModelSummary{
		Name:        m.Name,
		Description: m.Description,
		Assumptions: m.Assumptions,
	}

	for _, b := range m.Boundaries() {
		s.Boundaries = append(s.Boundaries, b.Name)
	}

	for _, e := range m.Elements() {
		es := ElementSummary{
			Name:    e.Name,
			Kind:    string(e.Kind),
			OS:      e.OS,
			InScope: e.InScope,
		}
		if e.InBoundary != nil {
			es.Boundary = e.InBoundary.Name
		}
		s.Elements = append(s.Elements, es)
	}

	for _, f := range m.Flows() {
		fs := FlowSummary{
			Seq:      f.Seq(),
			Name:     f.Name,
			Protocol: f.Protocol,
			DstPort:  f.DstPort,
		}
		if f.TLS != tm.TLSNone {
			fs.TLS = f.TLS.String()
		}
		if el := f.SourceElement(); el != nil {
			fs.Source = el.Name
		}
		if el := f.SinkElement(); el != nil {
			fs.Sink = el.Name
		}
		for _, d := range f.Data {
			fs.Data = append(fs.Data, d.Name)
		}
		s.Flows = append(s.Flows, fs)
	}

	for _, d := range m.DataAssets() {
		s.DataAssets = append(s.DataAssets, DataSummary{
			Name:           d.Name,
			Classification: d.Classification.String(),
			PII:            d.IsPII,
			Stored:         d.IsStored,
		})
	}

	return s
}
