package gymcoach

import (
	"context"
	"testing"

	"github.com/threatcanvas/sdk/pkg/shared/classification"
	"github.com/threatcanvas/sdk/pkg/threats"
	"github.com/threatcanvas/sdk/pkg/tm"
)

func TestNew_Validates(t *testing.T) {
	m := New()
	if err := m.Validate(); err != nil {
		t.Fatalf("model should validate: %v", err)
	}
}

func TestNew_Shape(t *testing.T) {
	m := New()

	if m.Name != "GymCoach App Threat Model" {
		t.Errorf("Name = %q", m.Name)
	}
	if !m.Ordered || !m.MergeResponses {
		t.Error("model should be ordered with merged responses")
	}
	if len(m.Assumptions) != 4 {
		t.Errorf("assumptions = %d, want 4", len(m.Assumptions))
	}
	if len(m.Boundaries()) != 3 {
		t.Errorf("boundaries = %d, want 3", len(m.Boundaries()))
	}
	if len(m.Elements()) != 5 {
		t.Errorf("elements = %d, want 5", len(m.Elements()))
	}
	if len(m.DataAssets()) != 5 {
		t.Errorf("data assets = %d, want 5", len(m.DataAssets()))
	}
	if len(m.Flows()) != 14 {
		t.Errorf("flows = %d, want 14", len(m.Flows()))
	}
}

func TestNew_Datastore(t *testing.T) {
	m := New()

	db := m.FindElement("MongoDB Atlas - App Database")
	if db == nil {
		t.Fatal("datastore not declared")
	}
	ds := db.AsDatastore()
	if ds == nil {
		t.Fatal("element is not a datastore")
	}

	if ds.Type != tm.DatastoreDocument {
		t.Errorf("type = %q, want document", ds.Type)
	}
	if ds.Port != 27017 {
		t.Errorf("port = %d, want 27017", ds.Port)
	}
	if ds.MaxClassification != classification.Restricted {
		t.Errorf("ceiling = %v, want RESTRICTED", ds.MaxClassification)
	}
	if !ds.StoresPII || !ds.StoresSensitiveData {
		t.Error("datastore should store PII and sensitive data")
	}

	// Every flow touching the datastore declares its port.
	for _, f := range m.Flows() {
		if f.SinkElement() == db && f.DstPort != ds.Port {
			t.Errorf("flow %q port = %d, want %d", f.Name, f.DstPort, ds.Port)
		}
	}
}

func TestNew_SessionToken(t *testing.T) {
	m := New()

	token := m.FindData("Session / Auth Token")
	if token == nil {
		t.Fatal("session token not declared")
	}
	if token.Classification != classification.Sensitive {
		t.Errorf("classification = %v", token.Classification)
	}
	if len(token.Traverses) != 2 {
		t.Errorf("token traverses %d flows, want 2", len(token.Traverses))
	}
	if len(token.ProcessedBy) != 1 {
		t.Fatalf("token processed by %d nodes, want 1", len(token.ProcessedBy))
	}
	if tm.ElementOf(token.ProcessedBy[0]).Name != "Node.js Express API" {
		t.Error("token should be processed by the API server")
	}
}

func TestNew_Deterministic(t *testing.T) {
	a, b := New(), New()

	flowsA, flowsB := a.Flows(), b.Flows()
	if len(flowsA) != len(flowsB) {
		t.Fatalf("flow counts differ: %d vs %d", len(flowsA), len(flowsB))
	}
	for i := range flowsA {
		if flowsA[i].Name != flowsB[i].Name {
			t.Errorf("flow %d: %q vs %q", i, flowsA[i].Name, flowsB[i].Name)
		}
		if flowsA[i].Seq() != flowsB[i].Seq() {
			t.Errorf("flow %d seq differs", i)
		}
	}
}

func TestNew_KnownFindings(t *testing.T) {
	m := New()

	engine := threats.NewEngine()
	findings, err := engine.Evaluate(context.Background(), m)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}

	byRule := map[string]int{}
	for _, f := range findings {
		byRule[f.RuleID]++
	}

	// The API server is declared unhardened.
	if byRule["TC-HARD-001"] == 0 {
		t.Error("expected a hardening finding for the API server")
	}
	// SENSITIVE data flows into a RESTRICTED-ceiling datastore.
	if byRule["TC-STO-002"] == 0 {
		t.Error("expected classification ceiling findings on the Atlas flows")
	}
	// Everything rides TLS; no cleartext boundary crossing findings.
	if byRule["TC-TLS-001"] != 0 {
		t.Errorf("unexpected cleartext findings: %d", byRule["TC-TLS-001"])
	}
}
