package tm

import (
	"github.com/threatcanvas/sdk/pkg/shared/classification"
)

// Kind identifies what an element represents in the graph.
type Kind string

const (
	KindActor          Kind = "actor"
	KindServer         Kind = "server"
	KindProcess        Kind = "process"
	KindDatastore      Kind = "datastore"
	KindExternalEntity Kind = "external_entity"
)

// Node is implemented by every element that can terminate a dataflow.
type Node interface {
	base() *Element
}

// ElementOf returns the underlying element of a node, or nil.
func ElementOf(n Node) *Element {
	if n == nil {
		return nil
	}
	return n.base()
}

// Boundary is a named trust zone. Elements are assigned to a boundary via
// their InBoundary attribute; boundaries may nest through Parent.
type Boundary struct {
	Name        string
	Description string

	// Parent is the enclosing boundary, nil for a top-level zone.
	Parent *Boundary

	model *Model
}

// Controls are the security controls an element claims to implement.
// Threat rules read these flags; they are assertions of the modeled design,
// not measurements.
type Controls struct {
	// SanitizesInput: the element validates/sanitizes inbound payloads.
	SanitizesInput bool

	// EncodesOutput: the element encodes outbound data for its sink
	// context (HTML templating, parameterized queries).
	EncodesOutput bool

	// IsHardened: the element runs a hardened, minimal configuration.
	IsHardened bool

	// AuthenticatesSource: the element verifies the identity of callers.
	AuthenticatesSource bool

	// AuthorizesSource: the element enforces per-caller permissions
	// (session/role checks) beyond authentication.
	AuthorizesSource bool
}

// Element is the common state shared by every node kind. Concrete kinds
// (Actor, Server, Process, Datastore, ExternalEntity) embed it.
type Element struct {
	Name        string
	Description string
	Kind        Kind

	// InBoundary is the trust boundary the element belongs to.
	InBoundary *Boundary

	// InScope marks the element as part of the assessed system. Out of
	// scope elements still appear in diagrams but rules skip them.
	InScope bool

	// OS is the operating system or runtime ("Linux", "Browser").
	OS string

	// SourceFiles lists the source files implementing the element, for
	// report cross-referencing.
	SourceFiles []string

	Controls Controls

	model     *Model
	datastore *Datastore
}

func (e *Element) base() *Element { return e }

// AsDatastore returns the datastore view of the element, or nil if the
// element is not a datastore.
func (e *Element) AsDatastore() *Datastore {
	return e.datastore
}

// Actor is a human principal interacting with the system.
type Actor struct {
	Element
}

// Server is a compute node that accepts and serves requests.
type Server struct {
	Element
}

// Process is a logical processing step that is not a full server.
type Process struct {
	Element
}

// ExternalEntity is a system outside the assessed scope.
type ExternalEntity struct {
	Element
}

// DatastoreType categorizes the storage technology.
type DatastoreType string

const (
	DatastoreUnknown     DatastoreType = "unknown"
	DatastoreSQL         DatastoreType = "sql"
	DatastoreDocument    DatastoreType = "document"
	DatastoreFileSystem  DatastoreType = "file_system"
	DatastoreLDAP        DatastoreType = "ldap"
	DatastoreObjectStore DatastoreType = "object_store"
)

// Datastore is a persistent storage system.
type Datastore struct {
	Element

	// Type is the storage technology category.
	Type DatastoreType

	// MaxClassification is the ceiling: the most sensitive classification
	// the store is approved to hold.
	MaxClassification classification.Level

	// StoresPII indicates personally identifiable information at rest.
	StoresPII bool

	// StoresSensitiveData indicates sensitive (non-PII) data at rest.
	StoresSensitiveData bool

	// IsEncryptedAtRest indicates storage-level encryption.
	IsEncryptedAtRest bool

	// Port is the port the store listens on (27017 for MongoDB).
	Port int

	// Protocol is the wire protocol clients use ("TLS over TCP").
	Protocol string
}

// Data is a named information asset.
type Data struct {
	Name        string
	Description string

	// Classification is the sensitivity level, drawn from the fixed
	// ordered enumeration.
	Classification classification.Level

	// IsPII indicates the asset identifies a natural person.
	IsPII bool

	// IsStored indicates the asset is persisted somewhere in the system.
	IsStored bool

	// IsSourceEncryptedAtRest / IsDestEncryptedAtRest indicate encryption
	// at rest on the producing and consuming side of flows carrying the
	// asset (hashed passwords in the database, for example).
	IsSourceEncryptedAtRest bool
	IsDestEncryptedAtRest   bool

	// ProcessedBy lists the elements that handle the asset in cleartext.
	ProcessedBy []Node

	// Traverses lists the dataflows the asset rides on. Usually derived
	// from Dataflow.Data but may be set explicitly for assets (session
	// tokens) whose path matters to the analysis.
	Traverses []*Dataflow

	model *Model
}
