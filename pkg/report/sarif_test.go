package report

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/threatcanvas/sdk/pkg/shared/severity"
	"github.com/threatcanvas/sdk/pkg/threats"
)

func TestToSARIF(t *testing.T) {
	findings := sampleFindings()
	// Second hit of the same rule must reuse the driver rule entry.
	findings = append(findings, threats.Finding{
		RuleID:      "TC-HARD-001",
		Summary:     "element not hardened",
		Details:     "DB runs without hardening",
		Severity:    severity.Medium,
		Model:       "sample",
		Target:      "DB",
		Fingerprint: strings.Repeat("c", 64),
	})

	r := New(sampleModel(), findings, Tool{Name: "threatcanvas", Version: "1.0"})
	data, err := r.ToSARIF()
	if err != nil {
		t.Fatalf("ToSARIF() error = %v", err)
	}

	var log SARIFLog
	if err := json.Unmarshal(data, &log); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if log.Version != "2.1.0" {
		t.Errorf("version = %q, want 2.1.0", log.Version)
	}
	if len(log.Runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(log.Runs))
	}

	run := log.Runs[0]
	if run.Tool.Driver.Name != "threatcanvas" {
		t.Errorf("driver name = %q", run.Tool.Driver.Name)
	}
	if len(run.Tool.Driver.Rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(run.Tool.Driver.Rules))
	}
	if len(run.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(run.Results))
	}

	first := run.Results[0]
	if first.RuleID != "TC-TLS-001" {
		t.Errorf("ruleId = %q", first.RuleID)
	}
	if first.Level != "error" {
		t.Errorf("level = %q, want error for critical", first.Level)
	}
	if got := first.Fingerprints["threatcanvas/v1"]; got != strings.Repeat("a", 64) {
		t.Errorf("fingerprint = %q", got)
	}
	if first.Properties["source"] != "User" || first.Properties["sink"] != "API" {
		t.Errorf("flow properties = %v", first.Properties)
	}
	loc := first.Locations[0].LogicalLocations[0]
	if loc.Name != "login" || loc.FullyQualifiedName != "sample/login" {
		t.Errorf("logical location = %+v", loc)
	}

	// Both TC-HARD-001 results point at the same rule index.
	if run.Results[1].RuleIndex != run.Results[2].RuleIndex {
		t.Errorf("rule indexes differ: %d vs %d",
			run.Results[1].RuleIndex, run.Results[2].RuleIndex)
	}
	if run.Results[2].Message.Text != "DB runs without hardening" {
		t.Errorf("message = %q", run.Results[2].Message.Text)
	}
}

func TestSARIFLevel(t *testing.T) {
	tests := []struct {
		level severity.Level
		want  string
	}{
		{severity.Critical, "error"},
		{severity.High, "error"},
		{severity.Medium, "warning"},
		{severity.Low, "note"},
		{severity.Info, "none"},
	}
	for _, tt := range tests {
		if got := sarifLevel(tt.level); got != tt.want {
			t.Errorf("sarifLevel(%s) = %q, want %q", tt.level, got, tt.want)
		}
	}
}
