package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/threatcanvas/sdk/pkg/compress"
	"github.com/threatcanvas/sdk/pkg/errors"
	"github.com/threatcanvas/sdk/pkg/history"
	"github.com/threatcanvas/sdk/pkg/metrics"
	"github.com/threatcanvas/sdk/pkg/report"
	"github.com/threatcanvas/sdk/pkg/shared/classification"
	"github.com/threatcanvas/sdk/pkg/tm"
)

func processableModel() *tm.Model {
	m := tm.NewModel("processor test")
	b := m.Boundary("App")

	user := m.Actor("User")
	user.InBoundary = b
	api := m.Server("API")
	api.InBoundary = b

	creds := m.Data("Credentials")
	creds.Classification = classification.Sensitive

	login := m.Dataflow(user, api, "login")
	login.Protocol = "HTTPS"
	login.TLS = tm.TLSv12
	login.Data = []*tm.Data{creds}

	return m
}

type fakePusher struct {
	calls  int
	failAt int // fail the first failAt calls with a retryable error
}

func (f *fakePusher) PushReport(ctx context.Context, r *report.Report) (*PushResult, error) {
	f.calls++
	if f.calls <= f.failAt {
		return nil, errors.ErrRateLimited
	}
	return &PushResult{ReportID: r.Metadata.ID, FindingsAccepted: len(r.Findings)}, nil
}

type fakeStore struct {
	recorded int
}

func (f *fakeStore) RecordRun(ctx context.Context, r *report.Report) (*history.Diff, error) {
	f.recorded++
	return &history.Diff{New: r.Findings}, nil
}

func TestProcess_WritesJSONByDefault(t *testing.T) {
	dir := t.TempDir()
	p := NewProcessor()

	result, err := p.Process(context.Background(), processableModel(), &Options{OutputDir: dir})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	if result.Report == nil {
		t.Fatal("result should carry the report")
	}
	if len(result.Files) != 1 || !strings.HasSuffix(result.Files[0], ".json") {
		t.Fatalf("files = %v, want one json file", result.Files)
	}
	data, err := os.ReadFile(result.Files[0])
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	parsed, err := report.FromJSON(data)
	if err != nil {
		t.Fatalf("output is not a report document: %v", err)
	}
	if parsed.Model.Name != "processor test" {
		t.Errorf("model name = %q", parsed.Model.Name)
	}
}

func TestProcess_MultipleFormats(t *testing.T) {
	dir := t.TempDir()
	p := NewProcessor()

	result, err := p.Process(context.Background(), processableModel(), &Options{
		OutputDir: dir,
		Formats:   []string{"json", "yaml", "markdown"},
	})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(result.Files) != 3 {
		t.Fatalf("files = %v, want 3", result.Files)
	}

	exts := map[string]bool{}
	for _, f := range result.Files {
		exts[filepath.Ext(f)] = true
	}
	for _, want := range []string{".json", ".yaml", ".md"} {
		if !exts[want] {
			t.Errorf("missing %s output in %v", want, result.Files)
		}
	}
}

func TestProcess_UnknownFormat(t *testing.T) {
	p := NewProcessor()
	_, err := p.Process(context.Background(), processableModel(), &Options{
		OutputDir: t.TempDir(),
		Formats:   []string{"png"},
	})
	if err == nil {
		t.Fatal("unknown format should fail")
	}
	if errors.GetKind(err) != errors.KindInvalidInput {
		t.Errorf("kind = %v, want invalid_input", errors.GetKind(err))
	}
}

func TestProcess_InvalidModelAborts(t *testing.T) {
	m := processableModel()
	m.Server("API") // duplicate name

	collector := metrics.NewInMemoryCollector()
	p := NewProcessor(WithCollector(collector))

	dir := t.TempDir()
	_, err := p.Process(context.Background(), m, &Options{OutputDir: dir})
	if err == nil {
		t.Fatal("invalid model should fail")
	}
	if _, ok := errors.IsValidationError(err); !ok {
		t.Errorf("error = %T, want *errors.ValidationError", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Error("validation failure must not produce outputs")
	}
	if collector.GetCounter(metrics.ValidationFailures.Name, "model", m.Name) != 1 {
		t.Error("validation failure counter not incremented")
	}
}

func TestProcess_HistoryAndArchive(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{}
	p := NewProcessor(
		WithHistory(store),
		WithArchiver(compress.NewArchiver(filepath.Join(dir, "archive"), nil)),
	)

	result, err := p.Process(context.Background(), processableModel(), &Options{
		OutputDir: dir,
		Archive:   true,
	})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if store.recorded != 1 {
		t.Errorf("store recorded %d runs, want 1", store.recorded)
	}
	if result.Diff == nil {
		t.Error("result should carry the history diff")
	}
	if result.ArchivePath == "" {
		t.Fatal("result should carry the archive path")
	}
	if _, err := os.Stat(result.ArchivePath); err != nil {
		t.Errorf("archive file missing: %v", err)
	}
}

func TestProcess_PushRetries(t *testing.T) {
	pusher := &fakePusher{failAt: 2}
	p := NewProcessor(WithPusher(pusher))

	result, err := p.Process(context.Background(), processableModel(), &Options{
		OutputDir:     t.TempDir(),
		Push:          true,
		MaxRetries:    3,
		RetryDelaySec: 1,
	})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if pusher.calls != 3 {
		t.Errorf("pusher called %d times, want 3", pusher.calls)
	}
	if result.PushResult == nil || result.PushResult.FindingsAccepted != len(result.Report.Findings) {
		t.Errorf("push result = %+v", result.PushResult)
	}
}

func TestProcess_NilModel(t *testing.T) {
	if _, err := NewProcessor().Process(context.Background(), nil, nil); err == nil {
		t.Error("Process(nil) should fail")
	}
}
