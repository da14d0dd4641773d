package retry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/threatcanvas/sdk/pkg/core"
	"github.com/threatcanvas/sdk/pkg/errors"
	"github.com/threatcanvas/sdk/pkg/report"
)

func testQueue(t *testing.T) *FileQueue {
	t.Helper()
	q, err := NewFileQueue(&FileQueueConfig{
		Dir:           t.TempDir(),
		Deduplication: true,
	})
	if err != nil {
		t.Fatalf("NewFileQueue() error = %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func parkedReport(id string) *report.Report {
	return &report.Report{
		Version:  report.Version,
		Metadata: report.Metadata{ID: id, Timestamp: time.Now().UTC()},
	}
}

func TestFileQueue_EnqueueDequeue(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)

	id, err := q.Enqueue(ctx, &QueueItem{Report: parkedReport("r1")})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if id == "" {
		t.Fatal("Enqueue() returned empty ID")
	}

	size, err := q.Size(ctx)
	if err != nil || size != 1 {
		t.Fatalf("Size() = %d, %v, want 1", size, err)
	}

	item, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if item == nil {
		t.Fatal("Dequeue() returned nil item")
	}
	if item.ID != id {
		t.Errorf("item ID = %q, want %q", item.ID, id)
	}
	if item.Status != ItemStatusProcessing {
		t.Errorf("status = %q, want processing", item.Status)
	}
	if item.Report.Metadata.ID != "r1" {
		t.Errorf("report ID = %q", item.Report.Metadata.ID)
	}

	// A processing item is not ready again.
	again, err := q.Dequeue(ctx)
	if err != nil || again != nil {
		t.Errorf("second Dequeue() = %v, %v, want nil, nil", again, err)
	}
}

func TestFileQueue_Deduplication(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)

	r := parkedReport("r1")
	first, err := q.Enqueue(ctx, &QueueItem{Report: r})
	if err != nil {
		t.Fatalf("first Enqueue() error = %v", err)
	}

	dup, err := q.Enqueue(ctx, &QueueItem{Report: r})
	if err != ErrDuplicateItem {
		t.Fatalf("duplicate Enqueue() error = %v, want ErrDuplicateItem", err)
	}
	if dup != first {
		t.Errorf("duplicate returned %q, want existing %q", dup, first)
	}
}

func TestFileQueue_Full(t *testing.T) {
	ctx := context.Background()
	q, err := NewFileQueue(&FileQueueConfig{Dir: t.TempDir(), MaxSize: 1})
	if err != nil {
		t.Fatalf("NewFileQueue() error = %v", err)
	}
	defer q.Close()

	if _, err := q.Enqueue(ctx, &QueueItem{Report: parkedReport("r1")}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := q.Enqueue(ctx, &QueueItem{Report: parkedReport("r2")}); err != ErrQueueFull {
		t.Fatalf("Enqueue() error = %v, want ErrQueueFull", err)
	}
}

func TestFileQueue_InvalidItem(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)

	if _, err := q.Enqueue(ctx, nil); err != ErrInvalidItem {
		t.Errorf("Enqueue(nil) error = %v, want ErrInvalidItem", err)
	}
	if _, err := q.Enqueue(ctx, &QueueItem{}); err != ErrInvalidItem {
		t.Errorf("Enqueue(no report) error = %v, want ErrInvalidItem", err)
	}
}

func TestFileQueue_UpdatePersistsAttempts(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)

	id, err := q.Enqueue(ctx, &QueueItem{Report: parkedReport("r1")})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	item, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	item.Attempts = 3
	item.LastError = "connection refused"
	item.Status = ItemStatusPending
	item.NextRetry = time.Now().Add(-time.Second)

	if err := q.Update(ctx, item); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := q.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", got.Attempts)
	}
	if got.LastError != "connection refused" {
		t.Errorf("last error = %q", got.LastError)
	}
	if !got.IsReadyForRetry() {
		t.Error("item should be ready for retry")
	}
}

func TestFileQueue_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	q, err := NewFileQueue(&FileQueueConfig{Dir: dir, Deduplication: true})
	if err != nil {
		t.Fatalf("NewFileQueue() error = %v", err)
	}
	if _, err := q.Enqueue(ctx, &QueueItem{Report: parkedReport("r1")}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	q.Close()

	reopened, err := NewFileQueue(&FileQueueConfig{Dir: dir, Deduplication: true})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	size, err := reopened.Size(ctx)
	if err != nil || size != 1 {
		t.Fatalf("Size() after reopen = %d, %v, want 1", size, err)
	}

	// The fingerprint index is rebuilt from disk, so dedupe still holds.
	if _, err := reopened.Enqueue(ctx, &QueueItem{Report: parkedReport("r1")}); err != ErrDuplicateItem {
		t.Errorf("Enqueue() after reopen error = %v, want ErrDuplicateItem", err)
	}
}

func TestFileQueue_Cleanup(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)

	old := &QueueItem{
		Report:    parkedReport("old"),
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	if _, err := q.Enqueue(ctx, old); err != nil {
		t.Fatalf("Enqueue(old) error = %v", err)
	}
	if _, err := q.Enqueue(ctx, &QueueItem{Report: parkedReport("fresh")}); err != nil {
		t.Fatalf("Enqueue(fresh) error = %v", err)
	}

	removed, err := q.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	size, _ := q.Size(ctx)
	if size != 1 {
		t.Errorf("size after cleanup = %d, want 1", size)
	}
}

func TestFileQueue_Closed(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)
	q.Close()

	if _, err := q.Enqueue(ctx, &QueueItem{Report: parkedReport("r1")}); err != ErrQueueClosed {
		t.Errorf("Enqueue() error = %v, want ErrQueueClosed", err)
	}
	if _, err := q.Dequeue(ctx); err != ErrQueueClosed {
		t.Errorf("Dequeue() error = %v, want ErrQueueClosed", err)
	}
	if _, err := q.Size(ctx); err != ErrQueueClosed {
		t.Errorf("Size() error = %v, want ErrQueueClosed", err)
	}
}

func TestBackoffInterval(t *testing.T) {
	cfg := &BackoffConfig{
		Strategy:     BackoffExponential,
		BaseInterval: time.Minute,
		MaxInterval:  10 * time.Minute,
	}

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
		{5, 10 * time.Minute}, // capped
		{0, time.Minute},      // clamped to 1
	}
	for _, tt := range tests {
		if got := cfg.Interval(tt.attempts); got != tt.want {
			t.Errorf("Interval(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestBackoffStrategies(t *testing.T) {
	base := time.Minute

	linear := &BackoffConfig{Strategy: BackoffLinear, BaseInterval: base}
	if got := linear.Interval(3); got != 3*time.Minute {
		t.Errorf("linear Interval(3) = %v, want 3m", got)
	}

	constant := &BackoffConfig{Strategy: BackoffConstant, BaseInterval: base}
	if got := constant.Interval(5); got != time.Minute {
		t.Errorf("constant Interval(5) = %v, want 1m", got)
	}
}

// flakyPusher fails the first failures attempts, then succeeds.
type flakyPusher struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (p *flakyPusher) PushReport(ctx context.Context, r *report.Report) (*core.PushResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return nil, errors.ErrRateLimited
	}
	return &core.PushResult{ReportID: r.Metadata.ID}, nil
}

func (p *flakyPusher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestWorker_DrainsQueue(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)

	if _, err := q.Enqueue(ctx, &QueueItem{Report: parkedReport("r1")}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	pusher := &flakyPusher{failures: 1}
	var succeeded sync.WaitGroup
	succeeded.Add(1)

	w := NewWorker(&WorkerConfig{
		Interval:  10 * time.Millisecond,
		BatchSize: 5,
		Backoff: &BackoffConfig{
			Strategy:     BackoffConstant,
			BaseInterval: time.Millisecond,
		},
	}, q, pusher)
	w.OnSuccess = func(item *QueueItem, result *core.PushResult) {
		if result.ReportID != "r1" {
			t.Errorf("pushed report ID = %q", result.ReportID)
		}
		succeeded.Done()
	}

	w.Start(ctx)
	defer w.Stop()

	done := make(chan struct{})
	go func() {
		succeeded.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not drain the queue in time")
	}

	if calls := pusher.callCount(); calls != 2 {
		t.Errorf("pusher calls = %d, want 2 (one failure, one success)", calls)
	}

	w.Stop()
	size, err := q.Size(ctx)
	if err != nil || size != 0 {
		t.Errorf("queue size = %d, %v, want 0", size, err)
	}

	stats := w.Stats()
	if stats.SuccessfulPush != 1 {
		t.Errorf("successful pushes = %d, want 1", stats.SuccessfulPush)
	}
	if stats.FailedAttempts != 1 {
		t.Errorf("failed attempts = %d, want 1", stats.FailedAttempts)
	}
}

func TestWorker_GivesUpOnNonRetryable(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)

	id, err := q.Enqueue(ctx, &QueueItem{Report: parkedReport("r1")})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	pusher := &failingPusher{}
	var exhausted sync.WaitGroup
	exhausted.Add(1)

	w := NewWorker(DefaultWorkerConfig(), q, pusher)
	w.OnExhaust = func(item *QueueItem) { exhausted.Done() }

	w.Start(ctx)
	defer w.Stop()

	done := make(chan struct{})
	go func() {
		exhausted.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not give up in time")
	}
	w.Stop()

	item, err := q.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if item.Status != ItemStatusFailed {
		t.Errorf("status = %q, want failed", item.Status)
	}
	if item.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 for non-retryable error", item.Attempts)
	}
}

// failingPusher always fails with a permanent error.
type failingPusher struct{}

func (failingPusher) PushReport(ctx context.Context, r *report.Report) (*core.PushResult, error) {
	return nil, errors.E(errors.KindInvalidInput, "push", "invalid API key")
}
