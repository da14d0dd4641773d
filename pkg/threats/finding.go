// Package threats evaluates a rule catalog against a declared threat model
// and produces findings. Rules are predicates over the model graph; the
// engine applies every rule to every in-scope element, dataflow, and data
// asset and fingerprints each hit so runs deduplicate against history.
package threats

import (
	"github.com/threatcanvas/sdk/pkg/shared/fingerprint"
	"github.com/threatcanvas/sdk/pkg/shared/severity"
)

// Finding is a single rule hit against a model entity.
type Finding struct {
	// RuleID is the catalog identifier of the rule that fired.
	RuleID string `json:"rule_id" yaml:"rule_id"`

	// Summary is the rule's one-line description.
	Summary string `json:"summary" yaml:"summary"`

	// Details explains the weakness in the context of the matched entity.
	Details string `json:"details,omitempty" yaml:"details,omitempty"`

	Severity severity.Level `json:"severity" yaml:"severity"`

	// Mitigations is the rule's remediation guidance.
	Mitigations string `json:"mitigations,omitempty" yaml:"mitigations,omitempty"`

	// Model is the name of the model the finding belongs to.
	Model string `json:"model" yaml:"model"`

	// TargetKind tells what the finding is attached to (element, dataflow,
	// data, model).
	TargetKind fingerprint.Kind `json:"target_kind" yaml:"target_kind"`

	// Target is the name of the matched element or data asset. For
	// dataflow findings it is the flow name.
	Target string `json:"target" yaml:"target"`

	// Source and Sink are set for dataflow findings.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
	Sink   string `json:"sink,omitempty" yaml:"sink,omitempty"`

	// Fingerprint is the stable identity of the finding across runs.
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`
}
