package report

import (
	"encoding/json"

	"github.com/threatcanvas/sdk/pkg/shared/severity"
	"github.com/threatcanvas/sdk/pkg/threats"
)

// =============================================================================
// SARIF Types
// =============================================================================

const (
	sarifVersion = "2.1.0"
	sarifSchema  = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"
)

// SARIFLog is the root SARIF document.
type SARIFLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema,omitempty"`
	Runs    []SARIFRun `json:"runs"`
}

// SARIFRun represents a single run of a tool.
type SARIFRun struct {
	Tool    SARIFTool     `json:"tool"`
	Results []SARIFResult `json:"results"`
}

// SARIFTool describes the tool.
type SARIFTool struct {
	Driver SARIFDriver `json:"driver"`
}

// SARIFDriver contains tool metadata.
type SARIFDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version,omitempty"`
	Rules   []SARIFRule `json:"rules,omitempty"`
}

// SARIFRule describes a rule/check.
type SARIFRule struct {
	ID                   string           `json:"id"`
	ShortDescription     *SARIFMessage    `json:"shortDescription,omitempty"`
	Help                 *SARIFMessage    `json:"help,omitempty"`
	DefaultConfiguration *SARIFRuleConfig `json:"defaultConfiguration,omitempty"`
}

// SARIFRuleConfig holds rule configuration.
type SARIFRuleConfig struct {
	Level string `json:"level,omitempty"`
}

// SARIFResult represents a finding.
type SARIFResult struct {
	RuleID       string            `json:"ruleId"`
	RuleIndex    int               `json:"ruleIndex"`
	Level        string            `json:"level,omitempty"`
	Message      SARIFMessage      `json:"message"`
	Locations    []SARIFLocation   `json:"locations,omitempty"`
	Fingerprints map[string]string `json:"fingerprints,omitempty"`
	Properties   map[string]any    `json:"properties,omitempty"`
}

// SARIFMessage holds text.
type SARIFMessage struct {
	Text string `json:"text"`
}

// SARIFLocation points at the model entity a result is attached to. Threat
// model findings have no file coordinates, so results carry logical
// locations instead of physical ones.
type SARIFLocation struct {
	LogicalLocations []SARIFLogicalLocation `json:"logicalLocations,omitempty"`
}

// SARIFLogicalLocation names a model entity.
type SARIFLogicalLocation struct {
	Name               string `json:"name"`
	FullyQualifiedName string `json:"fullyQualifiedName,omitempty"`
	Kind               string `json:"kind,omitempty"`
}

// =============================================================================
// Conversion
// =============================================================================

// ToSARIF serializes the report as a SARIF 2.1.0 document with one run.
// Each distinct rule that fired becomes a driver rule; each finding becomes
// a result pointing at its model entity via a logical location.
func (r *Report) ToSARIF() ([]byte, error) {
	run := SARIFRun{
		Tool: SARIFTool{
			Driver: SARIFDriver{
				Name:    r.Metadata.Tool.Name,
				Version: r.Metadata.Tool.Version,
			},
		},
		Results: make([]SARIFResult, 0, len(r.Findings)),
	}

	ruleIndex := make(map[string]int)
	for _, f := range r.Findings {
		idx, ok := ruleIndex[f.RuleID]
		if !ok {
			idx = len(run.Tool.Driver.Rules)
			ruleIndex[f.RuleID] = idx
			run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, sarifRule(f))
		}
		run.Results = append(run.Results, sarifResult(f, idx))
	}

	log := SARIFLog{
		Version: sarifVersion,
		Schema:  sarifSchema,
		Runs:    []SARIFRun{run},
	}
	return json.MarshalIndent(log, "", "  ")
}

func sarifRule(f threats.Finding) SARIFRule {
	rule := SARIFRule{
		ID:               f.RuleID,
		ShortDescription: &SARIFMessage{Text: f.Summary},
		DefaultConfiguration: &SARIFRuleConfig{
			Level: sarifLevel(f.Severity),
		},
	}
	if f.Mitigations != "" {
		rule.Help = &SARIFMessage{Text: f.Mitigations}
	}
	return rule
}

func sarifResult(f threats.Finding, ruleIndex int) SARIFResult {
	msg := f.Details
	if msg == "" {
		msg = f.Summary
	}
	res := SARIFResult{
		RuleID:    f.RuleID,
		RuleIndex: ruleIndex,
		Level:     sarifLevel(f.Severity),
		Message:   SARIFMessage{Text: msg},
		Locations: []SARIFLocation{{
			LogicalLocations: []SARIFLogicalLocation{{
				Name:               f.Target,
				FullyQualifiedName: f.Model + "/" + f.Target,
				Kind:               string(f.TargetKind),
			}},
		}},
		Fingerprints: map[string]string{
			"threatcanvas/v1": f.Fingerprint,
		},
	}
	if f.Source != "" || f.Sink != "" {
		res.Properties = map[string]any{
			"source": f.Source,
			"sink":   f.Sink,
		}
	}
	return res
}

// sarifLevel maps a severity to the closest SARIF result level.
func sarifLevel(s severity.Level) string {
	switch {
	case s.IsAtLeast(severity.High):
		return "error"
	case s == severity.Medium:
		return "warning"
	case s == severity.Low:
		return "note"
	default:
		return "none"
	}
}
