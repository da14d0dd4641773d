// Package tm provides the threat-model entity graph: trust boundaries,
// actors, servers, processes, datastores, data assets, and the dataflows
// connecting them.
//
// Everything is registered through an explicit Model, so the full graph a
// processing run sees is exactly what the definition declared - there is no
// hidden global registry. A model definition is a flat sequence of
// constructor calls and attribute assignments:
//
//	m := tm.NewModel("GymCoach App Threat Model")
//	internet := m.Boundary("Internet")
//
//	user := m.Actor("End User")
//	user.InBoundary = internet
//
//	api := m.Server("Node.js Express API")
//	api.Controls.SanitizesInput = true
//
//	creds := m.Data("User Credentials")
//	creds.Classification = classification.Sensitive
//
//	login := m.Dataflow(user, api, "Login Request")
//	login.Protocol = "HTTPS"
//	login.DstPort = 443
//	login.Data = []*tm.Data{creds}
//
// Once built, the model is handed to a processor which validates it,
// evaluates the threat catalog against it, and renders reports and diagrams.
// Models are not mutated after processing.
package tm

import (
	"github.com/threatcanvas/sdk/pkg/shared/classification"
)

// Model is the root container for a threat model: a named, internally
// consistent entity graph plus descriptive metadata.
type Model struct {
	// Name identifies the model (required).
	Name string

	// Description summarizes the modeled system.
	Description string

	// Assumptions are the security assumptions the model is built on.
	// They appear verbatim in reports.
	Assumptions []string

	// Ordered indicates dataflows carry meaningful declaration order
	// (e.g. request before response) and should be rendered in sequence.
	Ordered bool

	// MergeResponses collapses a response flow into its request flow when
	// rendering diagrams, halving the edge count for chatty pairs.
	MergeResponses bool

	boundaries []*Boundary
	elements   []*Element
	data       []*Data
	flows      []*Dataflow
}

// NewModel creates an empty model with the given name.
func NewModel(name string) *Model {
	return &Model{Name: name}
}

// Boundary declares a trust boundary and registers it with the model.
func (m *Model) Boundary(name string) *Boundary {
	b := &Boundary{Name: name, model: m}
	m.boundaries = append(m.boundaries, b)
	return b
}

// Actor declares a human principal outside or inside the system.
func (m *Model) Actor(name string) *Actor {
	a := &Actor{Element: Element{Name: name, Kind: KindActor, InScope: true, model: m}}
	m.elements = append(m.elements, &a.Element)
	return a
}

// Server declares a compute node that accepts and serves requests.
func (m *Model) Server(name string) *Server {
	s := &Server{Element: Element{Name: name, Kind: KindServer, InScope: true, model: m}}
	m.elements = append(m.elements, &s.Element)
	return s
}

// Process declares a logical processing step that is not a full server.
func (m *Model) Process(name string) *Process {
	p := &Process{Element: Element{Name: name, Kind: KindProcess, InScope: true, model: m}}
	m.elements = append(m.elements, &p.Element)
	return p
}

// ExternalEntity declares a system outside the modeling scope that the
// modeled system still exchanges data with.
func (m *Model) ExternalEntity(name string) *ExternalEntity {
	e := &ExternalEntity{Element: Element{Name: name, Kind: KindExternalEntity, InScope: false, model: m}}
	m.elements = append(m.elements, &e.Element)
	return e
}

// Datastore declares a persistent storage system.
func (m *Model) Datastore(name string) *Datastore {
	d := &Datastore{Element: Element{Name: name, Kind: KindDatastore, InScope: true, model: m}}
	m.elements = append(m.elements, &d.Element)
	d.Element.datastore = d
	return d
}

// Data declares a named information asset carried by dataflows and held in
// datastores.
func (m *Model) Data(name string) *Data {
	d := &Data{Name: name, Classification: classification.Unknown, model: m}
	m.data = append(m.data, d)
	return d
}

// Dataflow declares a directed flow from source to sink. Order of
// declaration is preserved and, when Ordered is set, is the sequence the
// flows occur in.
func (m *Model) Dataflow(source, sink Node, name string) *Dataflow {
	f := &Dataflow{
		Name:   name,
		Source: source,
		Sink:   sink,
		model:  m,
		seq:    len(m.flows),
	}
	m.flows = append(m.flows, f)
	return f
}

// Boundaries returns the declared trust boundaries in declaration order.
func (m *Model) Boundaries() []*Boundary {
	return m.boundaries
}

// Elements returns all declared elements (actors, servers, processes,
// datastores, external entities) in declaration order.
func (m *Model) Elements() []*Element {
	return m.elements
}

// DataAssets returns the declared data assets in declaration order.
func (m *Model) DataAssets() []*Data {
	return m.data
}

// Flows returns the declared dataflows in declaration order.
func (m *Model) Flows() []*Dataflow {
	return m.flows
}

// FindElement returns the element with the given name, or nil.
func (m *Model) FindElement(name string) *Element {
	for _, e := range m.elements {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// FindData returns the data asset with the given name, or nil.
func (m *Model) FindData(name string) *Data {
	for _, d := range m.data {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// owns reports whether the node was registered through this model.
func (m *Model) owns(n Node) bool {
	if n == nil {
		return false
	}
	return n.base().model == m
}

// ownsData reports whether the data asset was registered through this model.
func (m *Model) ownsData(d *Data) bool {
	return d != nil && d.model == m
}
