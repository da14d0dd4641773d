package tm

import (
	"github.com/threatcanvas/sdk/pkg/shared/classification"
)

// TLSVersion is the TLS protocol version a dataflow is declared to use.
type TLSVersion int

const (
	TLSNone TLSVersion = iota
	SSLv3
	TLSv10
	TLSv11
	TLSv12
	TLSv13
)

// String returns the display name of the version.
func (v TLSVersion) String() string {
	switch v {
	case SSLv3:
		return "SSLv3"
	case TLSv10:
		return "TLSv1.0"
	case TLSv11:
		return "TLSv1.1"
	case TLSv12:
		return "TLSv1.2"
	case TLSv13:
		return "TLSv1.3"
	default:
		return "none"
	}
}

// AtLeast reports whether the version is min or newer.
func (v TLSVersion) AtLeast(min TLSVersion) bool {
	return v >= min
}

// Dataflow is a directed edge between two declared elements, annotated with
// transport metadata and the data assets it carries.
type Dataflow struct {
	// Name describes the flow ("Store / Read Credentials").
	Name string

	// Description is free-form prose about the flow.
	Description string

	// Source and Sink are the endpoints. Both must be elements registered
	// with the same model; Validate enforces this.
	Source Node
	Sink   Node

	// Protocol is the application protocol ("HTTPS", "TLS").
	Protocol string

	// DstPort is the destination port the flow targets.
	DstPort int

	// TLS is the negotiated TLS version, TLSNone for cleartext.
	TLS TLSVersion

	// Data lists the assets the flow carries. Every entry must be a data
	// asset registered with the same model.
	Data []*Data

	// UsesSessionTokens indicates the flow carries a session cookie or
	// bearer token for authentication.
	UsesSessionTokens bool

	// IsResponse marks the flow as the reply leg of a request flow, used
	// when the model merges responses in diagrams.
	IsResponse bool

	model *Model
	seq   int
}

// SourceElement returns the underlying element of the source node, or nil.
func (f *Dataflow) SourceElement() *Element {
	return ElementOf(f.Source)
}

// SinkElement returns the underlying element of the sink node, or nil.
func (f *Dataflow) SinkElement() *Element {
	return ElementOf(f.Sink)
}

// Seq returns the declaration sequence number of the flow, starting at 0.
// When the model is ordered this is the order flows occur in.
func (f *Dataflow) Seq() int {
	return f.seq
}

// CrossesBoundary reports whether source and sink sit in different trust
// boundaries. Flows with an endpoint outside any boundary cross if the other
// endpoint is inside one.
func (f *Dataflow) CrossesBoundary() bool {
	if f.Source == nil || f.Sink == nil {
		return false
	}
	return f.Source.base().InBoundary != f.Sink.base().InBoundary
}

// Carries reports whether the flow carries the given data asset.
func (f *Dataflow) Carries(d *Data) bool {
	for _, fd := range f.Data {
		if fd == d {
			return true
		}
	}
	return false
}

// HighestClassification returns the most sensitive classification among the
// carried assets.
func (f *Dataflow) HighestClassification() classification.Level {
	level := classification.Unknown
	for _, d := range f.Data {
		level = classification.Max(level, d.Classification)
	}
	return level
}

// Encrypted reports whether the flow is protected in transit: either a TLS
// version is declared or the protocol itself is a TLS carrier.
func (f *Dataflow) Encrypted() bool {
	if f.TLS != TLSNone {
		return true
	}
	switch f.Protocol {
	case "HTTPS", "TLS", "TLS over TCP", "WSS", "SSH":
		return true
	}
	return false
}
