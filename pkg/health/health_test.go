package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func healthyCheck() CheckFunc {
	return func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy}
	}
}

func unhealthyCheck(msg string) CheckFunc {
	return func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusUnhealthy, Error: msg}
	}
}

func TestCheck_Aggregation(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   Status
	}{
		{
			name:   "all healthy",
			checks: map[string]CheckFunc{"a": healthyCheck(), "b": healthyCheck()},
			want:   StatusHealthy,
		},
		{
			name: "one degraded",
			checks: map[string]CheckFunc{
				"a": healthyCheck(),
				"b": func(ctx context.Context) CheckResult {
					return CheckResult{Status: StatusDegraded}
				},
			},
			want: StatusDegraded,
		},
		{
			name:   "one unhealthy wins",
			checks: map[string]CheckFunc{"a": healthyCheck(), "b": unhealthyCheck("down")},
			want:   StatusUnhealthy,
		},
		{
			name:   "no checks",
			checks: nil,
			want:   StatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler()
			for name, fn := range tt.checks {
				h.RegisterFunc(name, fn)
			}

			resp := h.Check(context.Background())
			if resp.Status != tt.want {
				t.Errorf("status = %q, want %q", resp.Status, tt.want)
			}
			if len(resp.Checks) != len(tt.checks) {
				t.Errorf("checks = %d, want %d", len(resp.Checks), len(tt.checks))
			}
		})
	}
}

func TestCheck_Version(t *testing.T) {
	h := NewHandler(WithVersion("1.2.3"), WithTimeout(time.Second))
	resp := h.Check(context.Background())
	if resp.Version != "1.2.3" {
		t.Errorf("version = %q", resp.Version)
	}
}

func TestLivenessHandler(t *testing.T) {
	h := NewHandler()
	h.RegisterFunc("broken", unhealthyCheck("down"))

	rec := httptest.NewRecorder()
	h.LivenessHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	// Liveness ignores check results.
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestReadinessHandler(t *testing.T) {
	h := NewHandler()

	rec := httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ready handler status = %d, want 200", rec.Code)
	}

	h.SetReady(false)
	rec = httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not-ready handler status = %d, want 503", rec.Code)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	h := NewHandler()
	h.RegisterFunc("db", unhealthyCheck("connection refused"))

	rec := httptest.NewRecorder()
	h.HealthHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != StatusUnhealthy {
		t.Errorf("body status = %q", resp.Status)
	}
	if resp.Checks["db"].Error != "connection refused" {
		t.Errorf("db error = %q", resp.Checks["db"].Error)
	}
}

func TestRegisterRoutes(t *testing.T) {
	h := NewHandler()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	for _, path := range []string{"/healthz", "/readyz", "/health"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}
}

type stubPinger struct {
	err error
}

func (p *stubPinger) Ping(ctx context.Context) error { return p.err }

func TestStoreCheck(t *testing.T) {
	check := &StoreCheck{Store: &stubPinger{}}
	if got := check.Check(context.Background()); got.Status != StatusHealthy {
		t.Errorf("healthy store: status = %q", got.Status)
	}

	check = &StoreCheck{Store: &stubPinger{err: errors.New("locked")}}
	got := check.Check(context.Background())
	if got.Status != StatusUnhealthy {
		t.Errorf("broken store: status = %q", got.Status)
	}
	if got.Error != "locked" {
		t.Errorf("error = %q", got.Error)
	}

	check = &StoreCheck{}
	if got := check.Check(context.Background()); got.Status != StatusUnknown {
		t.Errorf("no store: status = %q", got.Status)
	}
}

func TestIngestCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	check := &IngestCheck{URL: srv.URL, Timeout: time.Second}
	if got := check.Check(context.Background()); got.Status != StatusHealthy {
		t.Errorf("status = %q: %s", got.Status, got.Error)
	}

	srv500 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv500.Close()

	check = &IngestCheck{URL: srv500.URL, Timeout: time.Second}
	if got := check.Check(context.Background()); got.Status != StatusUnhealthy {
		t.Errorf("500 endpoint: status = %q", got.Status)
	}
}

func TestMemoryCheck(t *testing.T) {
	check := &MemoryCheck{}
	got := check.Check(context.Background())
	if got.Status != StatusHealthy {
		t.Errorf("status = %q", got.Status)
	}
	if _, ok := got.Metadata["goroutines"]; !ok {
		t.Error("metadata should include goroutine count")
	}

	// One byte of allowed heap always trips the threshold.
	check = &MemoryCheck{MaxHeapBytes: 1}
	if got := check.Check(context.Background()); got.Status != StatusUnhealthy {
		t.Errorf("tiny threshold: status = %q", got.Status)
	}
}
