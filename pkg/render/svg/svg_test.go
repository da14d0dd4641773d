package svg

import (
	"strings"
	"testing"

	"github.com/threatcanvas/sdk/pkg/tm"
)

func diagramModel() *tm.Model {
	m := tm.NewModel("svg diagram")

	outside := m.Boundary("Outside")
	inside := m.Boundary("Inside")

	user := m.Actor("User")
	user.InBoundary = outside
	api := m.Server("API")
	api.InBoundary = inside
	db := m.Datastore("DB")
	db.InBoundary = inside

	m.Dataflow(user, api, "request")
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

func TestRender_Document(t *testing.T) {
	out := render(t, diagramModel())

	for _, want := range []string{
		"<svg",
		"</svg>",
		"<title>svg diagram</title>",
		">User<",
		">API<",
		">DB<",
		">request<",
		">query<",
		"marker-end:url(#arrow)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestRender_ResponseDashed(t *testing.T) {
	out := render(t, diagramModel())
	if !strings.Contains(out, "stroke-dasharray:6,4") {
		t.Error("response edge should be dashed")
	}
}

func TestRender_BoundaryInNodeDetail(t *testing.T) {
	out := render(t, diagramModel())
	if !strings.Contains(out, "server / Inside") {
		t.Error("node detail should include kind and boundary")
	}
}

func TestRender_Deterministic(t *testing.T) {
	if render(t, diagramModel()) != render(t, diagramModel()) {
		t.Error("identical models must render identically")
	}
}

func TestRender_CyclicFlowsTerminate(t *testing.T) {
	m := tm.NewModel("cycle")
	a := m.Server("A")
	b := m.Server("B")
	m.Dataflow(a, b, "ping")
	m.Dataflow(b, a, "pong")

	out := render(t, m)
	if !strings.Contains(out, "</svg>") {
		t.Error("render of a cyclic model should complete")
	}
}

func TestRender_NilModel(t *testing.T) {
	var sb strings.Builder
	if err := New().Render(nil, &sb); err == nil {
		t.Error("Render(nil) should fail")
	}
}
