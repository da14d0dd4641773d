package tm

import (
	"fmt"

	"github.com/threatcanvas/sdk/pkg/errors"
)

// Validate checks the structural invariants of the declared graph:
//
//   - the model has at least one element
//   - element, data asset, and boundary names are unique within their kind
//   - every dataflow's source and sink are elements registered with this model
//   - every data asset referenced by a dataflow is registered with this model
//   - classification values are members of the fixed enumeration
//   - every dataflow touching a datastore uses the datastore's declared port
//   - boundary nesting is acyclic
//
// It returns a *errors.ValidationError listing every violation, or nil when
// the model is consistent. Validation never mutates the model.
func (m *Model) Validate() error {
	var violations []string

	if len(m.elements) == 0 {
		violations = append(violations, "model declares no elements")
	}

	violations = append(violations, m.checkNames()...)
	violations = append(violations, m.checkFlows()...)
	violations = append(violations, m.checkClassifications()...)
	violations = append(violations, m.checkDatastorePorts()...)
	violations = append(violations, m.checkBoundaries()...)

	if len(violations) > 0 {
		return &errors.ValidationError{Model: m.Name, Violations: violations}
	}
	return nil
}

func (m *Model) checkNames() []string {
	var violations []string

	seen := make(map[string]bool, len(m.elements))
	for _, e := range m.elements {
		if e.Name == "" {
			violations = append(violations, "element with empty name")
			continue
		}
		if seen[e.Name] {
			violations = append(violations, fmt.Sprintf("duplicate element name %q", e.Name))
		}
		seen[e.Name] = true
	}

	seenData := make(map[string]bool, len(m.data))
	for _, d := range m.data {
		if d.Name == "" {
			violations = append(violations, "data asset with empty name")
			continue
		}
		if seenData[d.Name] {
			violations = append(violations, fmt.Sprintf("duplicate data asset name %q", d.Name))
		}
		seenData[d.Name] = true
	}

	seenBoundary := make(map[string]bool, len(m.boundaries))
	for _, b := range m.boundaries {
		if b.Name == "" {
			violations = append(violations, "boundary with empty name")
			continue
		}
		if seenBoundary[b.Name] {
			violations = append(violations, fmt.Sprintf("duplicate boundary name %q", b.Name))
		}
		seenBoundary[b.Name] = true
	}

	return violations
}

func (m *Model) checkFlows() []string {
	var violations []string

	for _, f := range m.flows {
		if f.Source == nil {
			violations = append(violations, fmt.Sprintf("dataflow %q has no source", f.Name))
		} else if !m.owns(f.Source) {
			violations = append(violations,
				fmt.Sprintf("dataflow %q source %q is not declared in this model", f.Name, f.Source.base().Name))
		}

		if f.Sink == nil {
			violations = append(violations, fmt.Sprintf("dataflow %q has no sink", f.Name))
		} else if !m.owns(f.Sink) {
			violations = append(violations,
				fmt.Sprintf("dataflow %q sink %q is not declared in this model", f.Name, f.Sink.base().Name))
		}

		if f.Source != nil && f.Source == f.Sink {
			violations = append(violations, fmt.Sprintf("dataflow %q is a self-loop", f.Name))
		}

		for _, d := range f.Data {
			if d == nil {
				violations = append(violations, fmt.Sprintf("dataflow %q carries a nil data asset", f.Name))
				continue
			}
			if !m.ownsData(d) {
				violations = append(violations,
					fmt.Sprintf("dataflow %q carries data asset %q not declared in this model", f.Name, d.Name))
			}
		}
	}

	return violations
}

func (m *Model) checkClassifications() []string {
	var violations []string

	for _, d := range m.data {
		if !d.Classification.IsValid() {
			violations = append(violations,
				fmt.Sprintf("data asset %q has classification outside the enumeration", d.Name))
		}
	}
	for _, e := range m.elements {
		ds := e.AsDatastore()
		if ds == nil {
			continue
		}
		if !ds.MaxClassification.IsValid() {
			violations = append(violations,
				fmt.Sprintf("datastore %q has classification ceiling outside the enumeration", e.Name))
		}
	}

	return violations
}

// checkDatastorePorts enforces port consistency: a datastore declaring a
// listen port must be referenced with that port by every flow touching it,
// in either direction.
func (m *Model) checkDatastorePorts() []string {
	var violations []string

	for _, f := range m.flows {
		for _, end := range []Node{f.Source, f.Sink} {
			if end == nil {
				continue
			}
			ds := end.base().AsDatastore()
			if ds == nil || ds.Port == 0 {
				continue
			}
			if f.DstPort != ds.Port {
				violations = append(violations,
					fmt.Sprintf("dataflow %q references datastore %q with port %d, datastore declares %d",
						f.Name, ds.Name, f.DstPort, ds.Port))
			}
		}
	}

	return violations
}

func (m *Model) checkBoundaries() []string {
	var violations []string

	for _, b := range m.boundaries {
		depth := 0
		for p := b.Parent; p != nil; p = p.Parent {
			depth++
			if depth > len(m.boundaries) {
				violations = append(violations,
					fmt.Sprintf("boundary %q participates in a nesting cycle", b.Name))
				break
			}
		}
	}

	return violations
}
