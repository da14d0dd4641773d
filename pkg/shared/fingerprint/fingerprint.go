// Package fingerprint provides stable fingerprint generation for threat
// findings so repeated runs of the same model deduplicate against history.
//
// A fingerprint must stay stable across runs as long as the rule and the
// declared element it fired on are unchanged. It must NOT depend on report
// IDs, timestamps, or finding order.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Kind represents the kind of model element a finding is attached to.
type Kind string

const (
	// KindElement is for findings against a single element (actor, server,
	// process, datastore, external entity).
	KindElement Kind = "element"

	// KindDataflow is for findings against a directed flow between two
	// elements.
	KindDataflow Kind = "dataflow"

	// KindData is for findings against a declared data asset.
	KindData Kind = "data"

	// KindModel is for findings against the model as a whole.
	KindModel Kind = "model"
)

// Input contains the data needed to generate a fingerprint.
// Only the fields relevant for the kind need to be set.
type Input struct {
	Kind Kind

	// RuleID is the threat rule identifier (e.g. "TC-TLS-001").
	RuleID string

	// Model is the model name.
	Model string

	// Element is the element or data asset name (element/data kinds).
	Element string

	// Source and Sink are the endpoint names for dataflow findings.
	// Flow direction matters: A->B and B->A are distinct findings.
	Source string
	Sink   string

	// Flow is the dataflow name; disambiguates parallel flows between the
	// same pair of endpoints.
	Flow string
}

// Generate creates a fingerprint for the given input. The fingerprint is a
// SHA256 hash (64 hex characters).
func Generate(input Input) string {
	var data string

	switch input.Kind {
	case KindDataflow:
		data = fmt.Sprintf("dataflow:%s:%s:%s:%s:%s",
			normalize(input.Model),
			normalize(input.RuleID),
			normalize(input.Source),
			normalize(input.Sink),
			normalize(input.Flow),
		)

	case KindData:
		data = fmt.Sprintf("data:%s:%s:%s",
			normalize(input.Model),
			normalize(input.RuleID),
			normalize(input.Element),
		)

	case KindModel:
		data = fmt.Sprintf("model:%s:%s",
			normalize(input.Model),
			normalize(input.RuleID),
		)

	default:
		data = fmt.Sprintf("element:%s:%s:%s",
			normalize(input.Model),
			normalize(input.RuleID),
			normalize(input.Element),
		)
	}

	return Hash(data)
}

// GenerateElement creates a fingerprint for an element-level finding.
func GenerateElement(model, ruleID, element string) string {
	return Generate(Input{Kind: KindElement, Model: model, RuleID: ruleID, Element: element})
}

// GenerateDataflow creates a fingerprint for a dataflow-level finding.
func GenerateDataflow(model, ruleID, source, sink, flow string) string {
	return Generate(Input{Kind: KindDataflow, Model: model, RuleID: ruleID, Source: source, Sink: sink, Flow: flow})
}

// GenerateData creates a fingerprint for a data-asset finding.
func GenerateData(model, ruleID, data string) string {
	return Generate(Input{Kind: KindData, Model: model, RuleID: ruleID, Element: data})
}

// Hash computes the SHA256 hash of the input string.
// Returns 64 hex characters.
func Hash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// normalize cleans up a string for consistent fingerprinting.
// Element names are display strings; case and surrounding whitespace must not
// change identity.
func normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return s
}
