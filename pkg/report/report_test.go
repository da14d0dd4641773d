package report

import (
	"strings"
	"testing"

	"github.com/threatcanvas/sdk/pkg/shared/classification"
	"github.com/threatcanvas/sdk/pkg/shared/severity"
	"github.com/threatcanvas/sdk/pkg/threats"
	"github.com/threatcanvas/sdk/pkg/tm"
)

func sampleModel() *tm.Model {
	m := tm.NewModel("sample")
	m.Description = "a small system"
	m.Assumptions = []string{"transport handled upstream"}

	inside := m.Boundary("Inside")
	user := m.Actor("User")
	api := m.Server("API")
	api.InBoundary = inside
	api.OS = "Linux"

	creds := m.Data("Credentials")
	creds.Classification = classification.Sensitive
	creds.IsPII = true

	f := m.Dataflow(user, api, "login")
	f.Protocol = "HTTPS"
	f.DstPort = 443
	f.TLS = tm.TLSv12
	f.Data = []*tm.Data{creds}

	return m
}

func sampleFindings() []threats.Finding {
	return []threats.Finding{
		{
			RuleID:      "TC-TLS-001",
			Summary:     "cleartext transport",
			Severity:    severity.Critical,
			Model:       "sample",
			Target:      "login",
			Source:      "User",
			Sink:        "API",
			Fingerprint: strings.Repeat("a", 64),
		},
		{
			RuleID:      "TC-HARD-001",
			Summary:     "element not hardened",
			Severity:    severity.Medium,
			Model:       "sample",
			Target:      "API",
			Fingerprint: strings.Repeat("b", 64),
		},
	}
}

func TestNew(t *testing.T) {
	r := New(sampleModel(), sampleFindings(), Tool{Name: "threatcanvas", Version: "1.0.0"})

	if r.Version != Version {
		t.Errorf("Version = %q, want %q", r.Version, Version)
	}
	if r.Metadata.ID == "" {
		t.Error("report ID must be set")
	}
	if r.Metadata.Timestamp.IsZero() {
		t.Error("timestamp must be set")
	}
	if r.Summary.Total != 2 || r.Summary.Critical != 1 || r.Summary.Medium != 1 {
		t.Errorf("rollup = %+v, want total 2, critical 1, medium 1", r.Summary)
	}
	if r.HighestSeverity() != severity.Critical {
		t.Errorf("HighestSeverity() = %s, want critical", r.HighestSeverity())
	}

	if len(r.Model.Elements) != 2 {
		t.Fatalf("summarized %d elements, want 2", len(r.Model.Elements))
	}
	if r.Model.Elements[1].Boundary != "Inside" {
		t.Errorf("API boundary = %q, want Inside", r.Model.Elements[1].Boundary)
	}
	if len(r.Model.Flows) != 1 {
		t.Fatalf("summarized %d flows, want 1", len(r.Model.Flows))
	}
	flow := r.Model.Flows[0]
	if flow.Source != "User" || flow.Sink != "API" || flow.TLS != "TLSv1.2" {
		t.Errorf("flow summary = %+v", flow)
	}
	if len(flow.Data) != 1 || flow.Data[0] != "Credentials" {
		t.Errorf("flow data = %v, want [Credentials]", flow.Data)
	}
	if r.Model.DataAssets[0].Classification != "SENSITIVE" {
		t.Errorf("classification = %q, want SENSITIVE", r.Model.DataAssets[0].Classification)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	r := New(sampleModel(), sampleFindings(), Tool{Name: "threatcanvas"})

	data, err := r.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error: %v", err)
	}

	parsed, err := FromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON() error: %v", err)
	}
	if parsed.Metadata.ID != r.Metadata.ID {
		t.Error("report ID lost in round trip")
	}
	if len(parsed.Findings) != len(r.Findings) {
		t.Errorf("findings = %d, want %d", len(parsed.Findings), len(r.Findings))
	}
	if parsed.Summary.Critical != 1 {
		t.Errorf("rollup critical = %d, want 1", parsed.Summary.Critical)
	}
}

func TestToYAML(t *testing.T) {
	r := New(sampleModel(), sampleFindings(), Tool{Name: "threatcanvas"})

	data, err := r.ToYAML()
	if err != nil {
		t.Fatalf("ToYAML() error: %v", err)
	}
	out := string(data)
	for _, want := range []string{"name: sample", "rule_id: TC-TLS-001", "critical: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("YAML output missing %q", want)
		}
	}
}

func TestWriteMarkdown(t *testing.T) {
	r := New(sampleModel(), sampleFindings(), Tool{Name: "threatcanvas"})

	var sb strings.Builder
	if err := r.WriteMarkdown(&sb); err != nil {
		t.Fatalf("WriteMarkdown() error: %v", err)
	}
	out := sb.String()

	for _, want := range []string{
		"# Threat Model Report: sample",
		"## Assumptions",
		"transport handled upstream",
		"## Elements",
		"## Dataflows",
		"| 1 | login | User | API | HTTPS | 443 | TLSv1.2 |",
		"## Data Assets",
		"### CRITICAL",
		"[TC-TLS-001]",
		"(User -> API)",
		"### MEDIUM",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Markdown output missing %q", want)
		}
	}
}

func TestWriteMarkdown_NoFindings(t *testing.T) {
	r := New(sampleModel(), nil, Tool{Name: "threatcanvas"})

	var sb strings.Builder
	if err := r.WriteMarkdown(&sb); err != nil {
		t.Fatalf("WriteMarkdown() error: %v", err)
	}
	if !strings.Contains(sb.String(), "No findings.") {
		t.Error("empty report should say so")
	}
}
