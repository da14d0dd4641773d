package threats

import (
	"github.com/threatcanvas/sdk/pkg/shared/classification"
	"github.com/threatcanvas/sdk/pkg/shared/severity"
	"github.com/threatcanvas/sdk/pkg/tm"
)

// Rule is a predicate over one kind of model entity. Exactly one of the
// Match* functions is set; the others stay nil.
type Rule struct {
	// SID is the stable catalog identifier ("TC-TLS-001").
	SID string

	// Description is a one-line summary of the weakness.
	Description string

	// Details explains the weakness and its impact.
	Details string

	Severity severity.Level

	// Mitigations is remediation guidance included in reports.
	Mitigations string

	MatchElement  func(m *tm.Model, e *tm.Element) bool
	MatchDataflow func(m *tm.Model, f *tm.Dataflow) bool
	MatchData     func(m *tm.Model, d *tm.Data) bool
}

// =============================================================================
// Built-in catalog
// =============================================================================

// DefaultRules returns the built-in rule catalog in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			SID:         "TC-TLS-001",
			Description: "Sensitive data crosses a trust boundary in cleartext",
			Details:     "A dataflow carrying data classified SENSITIVE or above crosses a trust boundary without transport encryption. Anyone on the path can read or alter the payload.",
			Severity:    severity.Critical,
			Mitigations: "Terminate the flow over TLS 1.2 or newer end to end.",
			MatchDataflow: func(m *tm.Model, f *tm.Dataflow) bool {
				return f.CrossesBoundary() && !f.Encrypted() &&
					f.HighestClassification().Exceeds(classification.Restricted)
			},
		},
		{
			SID:         "TC-TLS-002",
			Description: "Dataflow negotiates an obsolete TLS version",
			Details:     "The flow declares SSLv3, TLS 1.0, or TLS 1.1. These versions have known downgrade and padding-oracle attacks and are deprecated.",
			Severity:    severity.High,
			Mitigations: "Require TLS 1.2 as the minimum version on the listener.",
			MatchDataflow: func(m *tm.Model, f *tm.Dataflow) bool {
				return f.TLS != tm.TLSNone && !f.TLS.AtLeast(tm.TLSv12)
			},
		},
		{
			SID:         "TC-TLS-003",
			Description: "Session tokens travel over an unencrypted channel",
			Details:     "The flow carries session or bearer tokens without transport encryption. A captured token gives the attacker the session.",
			Severity:    severity.High,
			Mitigations: "Send tokens only over TLS and mark cookies Secure.",
			MatchDataflow: func(m *tm.Model, f *tm.Dataflow) bool {
				return f.UsesSessionTokens && !f.Encrypted()
			},
		},
		{
			SID:         "TC-AUTH-001",
			Description: "Boundary-crossing request reaches a sink that does not authenticate callers",
			Details:     "A request flow from another trust zone terminates at an element that declares no caller authentication. Any remote party can invoke it.",
			Severity:    severity.High,
			Mitigations: "Authenticate callers before processing boundary-crossing requests.",
			MatchDataflow: func(m *tm.Model, f *tm.Dataflow) bool {
				if !f.CrossesBoundary() || f.IsResponse {
					return false
				}
				sink := f.SinkElement()
				if sink == nil || !sink.InScope || sink.Kind == tm.KindActor {
					return false
				}
				return !sink.Controls.AuthenticatesSource && !sink.Controls.AuthorizesSource
			},
		},
		{
			SID:         "TC-AUTH-002",
			Description: "Datastore written by an element that does not authorize its callers",
			Details:     "An element writes to a datastore without enforcing per-caller permissions itself. A compromised or confused caller can reach data it should not.",
			Severity:    severity.High,
			Mitigations: "Enforce authorization checks in the element that owns the datastore access.",
			MatchDataflow: func(m *tm.Model, f *tm.Dataflow) bool {
				sink := f.SinkElement()
				src := f.SourceElement()
				if sink == nil || src == nil || sink.AsDatastore() == nil {
					return false
				}
				return src.InScope && src.Kind != tm.KindActor && !src.Controls.AuthorizesSource
			},
		},
		{
			SID:         "TC-NET-001",
			Description: "Actor reaches a datastore directly",
			Details:     "A human principal has a direct flow to a datastore, bypassing every application-level control.",
			Severity:    severity.Critical,
			Mitigations: "Route all datastore access through an application tier.",
			MatchDataflow: func(m *tm.Model, f *tm.Dataflow) bool {
				sink := f.SinkElement()
				src := f.SourceElement()
				if sink == nil || src == nil {
					return false
				}
				return src.Kind == tm.KindActor && sink.AsDatastore() != nil
			},
		},
		{
			SID:         "TC-INP-001",
			Description: "Element accepts boundary-crossing input without sanitization",
			Details:     "An in-scope element receives requests from another trust zone and declares no input sanitization. Injection attacks (XSS, NoSQL/SQL injection) go straight through.",
			Severity:    severity.High,
			Mitigations: "Validate and sanitize every inbound payload at the receiving element.",
			MatchElement: func(m *tm.Model, e *tm.Element) bool {
				if !e.InScope || e.Kind == tm.KindActor || e.Controls.SanitizesInput {
					return false
				}
				for _, f := range m.Flows() {
					if f.SinkElement() == e && f.CrossesBoundary() && !f.IsResponse {
						return true
					}
				}
				return false
			},
		},
		{
			SID:         "TC-INP-002",
			Description: "Element emits output without context encoding",
			Details:     "An in-scope element produces output for other elements without encoding it for the sink context, enabling stored and reflected injection.",
			Severity:    severity.Medium,
			Mitigations: "Encode output for its destination context (HTML templating, parameterized queries).",
			MatchElement: func(m *tm.Model, e *tm.Element) bool {
				if !e.InScope || e.Kind == tm.KindActor || e.Kind == tm.KindDatastore || e.Controls.EncodesOutput {
					return false
				}
				for _, f := range m.Flows() {
					if f.SourceElement() == e {
						return true
					}
				}
				return false
			},
		},
		{
			SID:         "TC-HARD-001",
			Description: "In-scope element is not hardened",
			Details:     "The element declares no hardening. Default configurations, unused services, and permissive settings widen the attack surface.",
			Severity:    severity.Medium,
			Mitigations: "Apply a hardening baseline: minimal packages, patched runtime, restricted permissions.",
			MatchElement: func(m *tm.Model, e *tm.Element) bool {
				if !e.InScope || e.Controls.IsHardened {
					return false
				}
				return e.Kind == tm.KindServer || e.Kind == tm.KindDatastore || e.Kind == tm.KindProcess
			},
		},
		{
			SID:         "TC-STO-001",
			Description: "Datastore holds PII without storage-level encryption",
			Details:     "The datastore declares PII at rest but no storage-level encryption. A stolen disk, snapshot, or backup exposes personal data.",
			Severity:    severity.High,
			Mitigations: "Enable encryption at rest on the datastore and its backups.",
			MatchElement: func(m *tm.Model, e *tm.Element) bool {
				ds := e.AsDatastore()
				if ds == nil || !ds.InScope {
					return false
				}
				return ds.StoresPII && !ds.IsEncryptedAtRest
			},
		},
		{
			SID:         "TC-STO-002",
			Description: "Dataflow delivers data above the datastore's classification ceiling",
			Details:     "A flow carries data classified above the maximum the receiving datastore is approved to hold.",
			Severity:    severity.Critical,
			Mitigations: "Raise the datastore's approved ceiling or stop storing the asset there.",
			MatchDataflow: func(m *tm.Model, f *tm.Dataflow) bool {
				sink := f.SinkElement()
				if sink == nil {
					return false
				}
				ds := sink.AsDatastore()
				if ds == nil {
					return false
				}
				return f.HighestClassification().Exceeds(ds.MaxClassification)
			},
		},
		{
			SID:         "TC-STO-003",
			Description: "Sensitive stored asset is not encrypted at rest",
			Details:     "A data asset classified SENSITIVE or above is persisted without encryption at rest on the storing side.",
			Severity:    severity.High,
			Mitigations: "Encrypt or hash the asset before persisting it.",
			MatchData: func(m *tm.Model, d *tm.Data) bool {
				return d.IsStored && !d.IsDestEncryptedAtRest &&
					d.Classification.Exceeds(classification.Restricted)
			},
		},
		{
			SID:         "TC-DATA-001",
			Description: "Data asset has no declared classification",
			Details:     "The asset's sensitivity is UNKNOWN, so every ceiling and transport rule treats it as unclassified and coverage gaps go unnoticed.",
			Severity:    severity.Low,
			Mitigations: "Classify the asset explicitly.",
			MatchData: func(m *tm.Model, d *tm.Data) bool {
				return d.Classification == classification.Unknown
			},
		},
		{
			SID:         "TC-FLOW-001",
			Description: "Dataflow declares no data assets",
			Details:     "The flow carries nothing the model knows about, so classification and transport rules cannot reason about it.",
			Severity:    severity.Info,
			Mitigations: "Attach the data assets the flow actually carries.",
			MatchDataflow: func(m *tm.Model, f *tm.Dataflow) bool {
				return len(f.Data) == 0
			},
		},
		{
			SID:         "TC-SCOPE-001",
			Description: "In-scope element has no dataflows",
			Details:     "The element participates in no declared flow; either the model is incomplete or the element is dead weight.",
			Severity:    severity.Info,
			Mitigations: "Declare the element's flows or remove it from the model.",
			MatchElement: func(m *tm.Model, e *tm.Element) bool {
				if !e.InScope {
					return false
				}
				for _, f := range m.Flows() {
					if f.SourceElement() == e || f.SinkElement() == e {
						return false
					}
				}
				return true
			},
		},
	}
}
