// Package loader builds threat models from declarative YAML definitions.
//
// A definition file describes the same graph the builder API does:
// boundaries, elements, data assets and dataflows by name. Files can be
// kept next to the code they model and fetched through a connector.
package loader

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/threatcanvas/sdk/pkg/errors"
	"github.com/threatcanvas/sdk/pkg/shared/classification"
	"github.com/threatcanvas/sdk/pkg/tm"
)

// Definition is the YAML document shape.
type Definition struct {
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description"`
	Assumptions    []string `yaml:"assumptions"`
	Ordered        bool     `yaml:"ordered"`
	MergeResponses bool     `yaml:"merge_responses"`

	Boundaries []BoundaryDef `yaml:"boundaries"`
	Elements   []ElementDef  `yaml:"elements"`
	Data       []DataDef     `yaml:"data"`
	Flows      []FlowDef     `yaml:"flows"`
}

// BoundaryDef declares a trust boundary.
type BoundaryDef struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Parent      string `yaml:"parent"`
}

// ControlsDef mirrors the element security controls.
type ControlsDef struct {
	SanitizesInput      bool `yaml:"sanitizes_input"`
	EncodesOutput       bool `yaml:"encodes_output"`
	IsHardened          bool `yaml:"is_hardened"`
	AuthenticatesSource bool `yaml:"authenticates_source"`
	AuthorizesSource    bool `yaml:"authorizes_source"`
}

// DatastoreDef holds the datastore-only attributes of an element.
type DatastoreDef struct {
	Type                string `yaml:"type"`
	MaxClassification   string `yaml:"max_classification"`
	StoresPII           bool   `yaml:"stores_pii"`
	StoresSensitiveData bool   `yaml:"stores_sensitive_data"`
	IsEncryptedAtRest   bool   `yaml:"is_encrypted_at_rest"`
	Port                int    `yaml:"port"`
	Protocol            string `yaml:"protocol"`
}

// ElementDef declares a node in the model graph.
type ElementDef struct {
	Name        string        `yaml:"name"`
	Kind        string        `yaml:"kind"` // actor, server, process, external_entity, datastore
	Description string        `yaml:"description"`
	Boundary    string        `yaml:"boundary"`
	OS          string        `yaml:"os"`
	InScope     *bool         `yaml:"in_scope"`
	SourceFiles []string      `yaml:"source_files"`
	Controls    ControlsDef   `yaml:"controls"`
	Datastore   *DatastoreDef `yaml:"datastore"`
}

// DataDef declares a data asset.
type DataDef struct {
	Name            string   `yaml:"name"`
	Description     string   `yaml:"description"`
	Classification  string   `yaml:"classification"`
	PII             bool     `yaml:"pii"`
	Stored          bool     `yaml:"stored"`
	SourceEncrypted bool     `yaml:"source_encrypted_at_rest"`
	DestEncrypted   bool     `yaml:"dest_encrypted_at_rest"`
	ProcessedBy     []string `yaml:"processed_by"`
}

// FlowDef declares a dataflow between two declared elements.
type FlowDef struct {
	Name              string   `yaml:"name"`
	Source            string   `yaml:"source"`
	Sink              string   `yaml:"sink"`
	Description       string   `yaml:"description"`
	Protocol          string   `yaml:"protocol"`
	Port              int      `yaml:"port"`
	TLS               string   `yaml:"tls"`
	Data              []string `yaml:"data"`
	UsesSessionTokens bool     `yaml:"uses_session_tokens"`
	Response          bool     `yaml:"response"`
}

// LoadFile reads and builds a model from a definition file on disk.
func LoadFile(path string) (*tm.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.E(errors.KindStorage, "loader", err)
	}
	return Load(data)
}

// Load builds a model from YAML definition bytes.
func Load(data []byte) (*tm.Model, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, errors.E(errors.KindInvalidInput, "loader", fmt.Errorf("parse definition: %w", err))
	}
	return Build(&def)
}

// Build constructs a model from a parsed definition. The returned model
// is not validated; call Validate on it before running rules.
func Build(def *Definition) (*tm.Model, error) {
	if def == nil {
		return nil, errors.E(errors.KindInvalidInput, "loader", "definition is nil")
	}
	if def.Name == "" {
		return nil, errors.E(errors.KindInvalidInput, "loader", "definition has no name")
	}

	m := tm.NewModel(def.Name)
	m.Description = def.Description
	m.Assumptions = def.Assumptions
	m.Ordered = def.Ordered
	m.MergeResponses = def.MergeResponses

	boundaries := make(map[string]*tm.Boundary, len(def.Boundaries))
	for _, bd := range def.Boundaries {
		b := m.Boundary(bd.Name)
		b.Description = bd.Description
		boundaries[bd.Name] = b
	}
	for _, bd := range def.Boundaries {
		if bd.Parent == "" {
			continue
		}
		parent, ok := boundaries[bd.Parent]
		if !ok {
			return nil, errors.E(errors.KindInvalidInput, "loader",
				fmt.Sprintf("boundary %q: unknown parent %q", bd.Name, bd.Parent))
		}
		boundaries[bd.Name].Parent = parent
	}

	nodes := make(map[string]tm.Node, len(def.Elements))
	for _, ed := range def.Elements {
		node, err := buildElement(m, ed, boundaries)
		if err != nil {
			return nil, err
		}
		nodes[ed.Name] = node
	}

	assets := make(map[string]*tm.Data, len(def.Data))
	for _, dd := range def.Data {
		d := m.Data(dd.Name)
		d.Description = dd.Description
		d.Classification = classification.FromString(dd.Classification)
		d.IsPII = dd.PII
		d.IsStored = dd.Stored
		d.IsSourceEncryptedAtRest = dd.SourceEncrypted
		d.IsDestEncryptedAtRest = dd.DestEncrypted
		for _, name := range dd.ProcessedBy {
			node, ok := nodes[name]
			if !ok {
				return nil, errors.E(errors.KindInvalidInput, "loader",
					fmt.Sprintf("data %q: unknown processor %q", dd.Name, name))
			}
			d.ProcessedBy = append(d.ProcessedBy, node)
		}
		assets[dd.Name] = d
	}

	for _, fd := range def.Flows {
		source, ok := nodes[fd.Source]
		if !ok {
			return nil, errors.E(errors.KindInvalidInput, "loader",
				fmt.Sprintf("flow %q: unknown source %q", fd.Name, fd.Source))
		}
		sink, ok := nodes[fd.Sink]
		if !ok {
			return nil, errors.E(errors.KindInvalidInput, "loader",
				fmt.Sprintf("flow %q: unknown sink %q", fd.Name, fd.Sink))
		}

		f := m.Dataflow(source, sink, fd.Name)
		f.Description = fd.Description
		f.Protocol = fd.Protocol
		f.DstPort = fd.Port
		f.UsesSessionTokens = fd.UsesSessionTokens
		f.IsResponse = fd.Response

		tlsVersion, err := parseTLS(fd.TLS)
		if err != nil {
			return nil, errors.E(errors.KindInvalidInput, "loader",
				fmt.Sprintf("flow %q: %v", fd.Name, err))
		}
		f.TLS = tlsVersion

		for _, name := range fd.Data {
			d, ok := assets[name]
			if !ok {
				return nil, errors.E(errors.KindInvalidInput, "loader",
					fmt.Sprintf("flow %q: unknown data asset %q", fd.Name, name))
			}
			f.Data = append(f.Data, d)
			d.Traverses = append(d.Traverses, f)
		}
	}

	return m, nil
}

func buildElement(m *tm.Model, ed ElementDef, boundaries map[string]*tm.Boundary) (tm.Node, error) {
	var node tm.Node

	switch strings.ToLower(ed.Kind) {
	case "actor":
		node = m.Actor(ed.Name)
	case "server", "":
		node = m.Server(ed.Name)
	case "process":
		node = m.Process(ed.Name)
	case "external_entity", "external":
		node = m.ExternalEntity(ed.Name)
	case "datastore":
		ds := m.Datastore(ed.Name)
		if dd := ed.Datastore; dd != nil {
			ds.Type = parseDatastoreType(dd.Type)
			ds.MaxClassification = classification.FromString(dd.MaxClassification)
			ds.StoresPII = dd.StoresPII
			ds.StoresSensitiveData = dd.StoresSensitiveData
			ds.IsEncryptedAtRest = dd.IsEncryptedAtRest
			ds.Port = dd.Port
			ds.Protocol = dd.Protocol
		}
		node = ds
	default:
		return nil, errors.E(errors.KindInvalidInput, "loader",
			fmt.Sprintf("element %q: unknown kind %q", ed.Name, ed.Kind))
	}

	e := tm.ElementOf(node)
	e.Description = ed.Description
	e.OS = ed.OS
	e.SourceFiles = ed.SourceFiles
	if ed.InScope != nil {
		e.InScope = *ed.InScope
	}
	e.Controls = tm.Controls{
		SanitizesInput:      ed.Controls.SanitizesInput,
		EncodesOutput:       ed.Controls.EncodesOutput,
		IsHardened:          ed.Controls.IsHardened,
		AuthenticatesSource: ed.Controls.AuthenticatesSource,
		AuthorizesSource:    ed.Controls.AuthorizesSource,
	}

	if ed.Boundary != "" {
		b, ok := boundaries[ed.Boundary]
		if !ok {
			return nil, errors.E(errors.KindInvalidInput, "loader",
				fmt.Sprintf("element %q: unknown boundary %q", ed.Name, ed.Boundary))
		}
		e.InBoundary = b
	}

	return node, nil
}

func parseDatastoreType(s string) tm.DatastoreType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sql":
		return tm.DatastoreSQL
	case "document":
		return tm.DatastoreDocument
	case "file_system", "filesystem":
		return tm.DatastoreFileSystem
	case "ldap":
		return tm.DatastoreLDAP
	case "object_store", "objectstore":
		return tm.DatastoreObjectStore
	default:
		return tm.DatastoreUnknown
	}
}

func parseTLS(s string) (tm.TLSVersion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return tm.TLSNone, nil
	case "sslv3":
		return tm.SSLv3, nil
	case "1.0", "tlsv1.0":
		return tm.TLSv10, nil
	case "1.1", "tlsv1.1":
		return tm.TLSv11, nil
	case "1.2", "tlsv1.2":
		return tm.TLSv12, nil
	case "1.3", "tlsv1.3":
		return tm.TLSv13, nil
	default:
		return tm.TLSNone, fmt.Errorf("unknown TLS version %q", s)
	}
}
