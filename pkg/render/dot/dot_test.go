package dot

import (
	"strings"
	"testing"

	"github.com/threatcanvas/sdk/pkg/tm"
)

func diagramModel() *tm.Model {
	m := tm.NewModel("diagram")
	m.Ordered = true

	outside := m.Boundary("Outside")
	inside := m.Boundary("Inside")

	user := m.Actor("User")
	user.InBoundary = outside
	api := m.Server("API")
	api.InBoundary = inside
	db := m.Datastore("DB")
	db.InBoundary = inside

	req := m.Dataflow(user, api, "request")
	req.Protocol = "HTTPS"
	req.DstPort = 443

	resp := m.Dataflow(api, user, "response")
	resp.IsResponse = true

	m.Dataflow(api, db, "query")

	return m
}

func render(t *testing.T, m *tm.Model) string {
	t.Helper()
	var sb strings.Builder
	if err := New().Render(m, &sb); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	return sb.String()
}

func TestRender_Structure(t *testing.T) {
	out := render(t, diagramModel())

	for _, want := range []string{
		`digraph "diagram" {`,
		"rankdir=LR;",
		`label="Outside";`,
		`label="Inside";`,
		"subgraph cluster_0",
		"subgraph cluster_1",
		"shape=rectangle",
		"shape=ellipse",
		"shape=cylinder",
		`n0 -> n1`,
		`n1 -> n0`,
		`n1 -> n2`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestRender_OrderedLabels(t *testing.T) {
	out := render(t, diagramModel())

	if !strings.Contains(out, `(1) request`) {
		t.Error("ordered models should number edge labels")
	}
	if !strings.Contains(out, `HTTPS:443`) {
		t.Error("edge label should show protocol and port")
	}
}

func TestRender_ResponseStyle(t *testing.T) {
	out := render(t, diagramModel())

	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "n1 -> n0") {
			if !strings.Contains(line, "style=dashed") {
				t.Errorf("response edge should render dashed: %s", line)
			}
			return
		}
	}
	t.Error("response edge not found")
}

func TestRender_MergeResponses(t *testing.T) {
	m := diagramModel()
	m.MergeResponses = true
	out := render(t, m)

	if strings.Contains(out, `"(2) response`) {
		t.Error("merged response flow should not be drawn separately")
	}
	if !strings.Contains(out, "dir=both") {
		t.Error("request leg of a merged pair should be bidirectional")
	}
}

func TestRender_Deterministic(t *testing.T) {
	a := render(t, diagramModel())
	b := render(t, diagramModel())
	if a != b {
		t.Error("identical models must render identically")
	}
}

func TestRender_NilModel(t *testing.T) {
	var sb strings.Builder
	if err := New().Render(nil, &sb); err == nil {
		t.Error("Render(nil) should fail")
	}
}
