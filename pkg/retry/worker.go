package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/threatcanvas/sdk/pkg/core"
	"github.com/threatcanvas/sdk/pkg/errors"
)

// Worker drains the retry queue in the background. It periodically checks
// the queue for items ready to retry and pushes them through the configured
// pusher, rescheduling or failing items as attempts are used up.
type Worker struct {
	queue   Queue
	pusher  core.Pusher
	backoff *BackoffConfig

	interval    time.Duration
	batchSize   int
	maxAttempts int
	ttl         time.Duration

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex

	// OnSuccess and OnExhaust are invoked after an item is pushed or gives
	// up its last attempt. Both are optional.
	OnSuccess func(item *QueueItem, result *core.PushResult)
	OnExhaust func(item *QueueItem)

	stats   WorkerStats
	statsMu sync.RWMutex

	verbose bool
}

// WorkerStats contains statistics about the retry worker.
type WorkerStats struct {
	TotalAttempts   int64     `json:"total_attempts"`
	SuccessfulPush  int64     `json:"successful_pushes"`
	FailedAttempts  int64     `json:"failed_attempts"`
	ExhaustedItems  int64     `json:"exhausted_items"`
	LastProcessedAt time.Time `json:"last_processed_at,omitzero"`

	IsRunning   bool      `json:"is_running"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	LastCheckAt time.Time `json:"last_check_at,omitzero"`
}

// WorkerConfig configures the retry worker.
type WorkerConfig struct {
	// Interval is how often to check the queue. Default: 5 minutes.
	Interval time.Duration `yaml:"interval" json:"interval"`

	// BatchSize is the maximum number of items per check. Default: 10.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// MaxAttempts is the maximum retry attempts per item. Default: 10.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// TTL is how long items stay in the queue before expiring.
	// Default: 7 days.
	TTL time.Duration `yaml:"ttl" json:"ttl"`

	// Backoff configures the retry backoff behavior.
	Backoff *BackoffConfig `yaml:"backoff" json:"backoff"`

	// Verbose enables verbose logging.
	Verbose bool `yaml:"verbose" json:"verbose"`
}

// DefaultWorkerConfig returns a configuration with default values.
func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		Interval:    DefaultRetryInterval,
		BatchSize:   DefaultBatchSize,
		MaxAttempts: DefaultMaxAttempts,
		TTL:         DefaultTTL,
		Backoff:     DefaultBackoffConfig(),
	}
}

// NewWorker creates a retry worker draining queue through pusher.
func NewWorker(cfg *WorkerConfig, queue Queue, pusher core.Pusher) *Worker {
	if cfg == nil {
		cfg = DefaultWorkerConfig()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRetryInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultBackoffConfig()
	}

	return &Worker{
		queue:       queue,
		pusher:      pusher,
		backoff:     cfg.Backoff,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		ttl:         cfg.TTL,
		verbose:     cfg.Verbose,
	}
}

// Start launches the background drain loop. It returns immediately; the
// loop runs until Stop is called or ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	w.statsMu.Lock()
	w.stats.IsRunning = true
	w.stats.StartedAt = time.Now()
	w.statsMu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)
}

// Stop stops the drain loop and waits for in-flight pushes to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()

	w.statsMu.Lock()
	w.stats.IsRunning = false
	w.statsMu.Unlock()
}

// Stats returns a snapshot of the worker statistics.
func (w *Worker) Stats() WorkerStats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return w.stats
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Drain whatever is already ready before the first tick.
	w.processBatch(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if removed, err := w.queue.Cleanup(ctx, w.ttl); err == nil && removed > 0 && w.verbose {
				fmt.Printf("[retry] Cleaned up %d expired items\n", removed)
			}
			w.processBatch(ctx)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) {
	w.statsMu.Lock()
	w.stats.LastCheckAt = time.Now()
	w.statsMu.Unlock()

	for i := 0; i < w.batchSize; i++ {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		item, err := w.queue.Dequeue(ctx)
		if err != nil || item == nil {
			return
		}
		w.processItem(ctx, item)
	}
}

func (w *Worker) processItem(ctx context.Context, item *QueueItem) {
	item.Attempts++
	item.LastAttempt = time.Now()

	w.statsMu.Lock()
	w.stats.TotalAttempts++
	w.stats.LastProcessedAt = time.Now()
	w.statsMu.Unlock()

	result, err := w.pusher.PushReport(ctx, item.Report)
	if err == nil {
		if delErr := w.queue.Delete(ctx, item.ID); delErr != nil && w.verbose {
			fmt.Printf("[retry] Failed to remove pushed item %s: %v\n", item.ID[:8], delErr)
		}
		w.statsMu.Lock()
		w.stats.SuccessfulPush++
		w.statsMu.Unlock()
		if w.verbose {
			fmt.Printf("[retry] Pushed parked report %s (attempt %d)\n",
				item.Report.Metadata.ID, item.Attempts)
		}
		if w.OnSuccess != nil {
			w.OnSuccess(item, result)
		}
		return
	}

	w.statsMu.Lock()
	w.stats.FailedAttempts++
	w.statsMu.Unlock()

	item.LastError = err.Error()

	// A non-retryable failure will never succeed, so don't burn attempts.
	exhausted := item.Attempts >= w.maxAttempts || item.Attempts >= item.MaxAttempts
	if exhausted || !errors.IsRetryable(err) {
		item.Status = ItemStatusFailed
		if updErr := w.queue.Update(ctx, item); updErr != nil && w.verbose {
			fmt.Printf("[retry] Failed to mark item %s failed: %v\n", item.ID[:8], updErr)
		}
		w.statsMu.Lock()
		w.stats.ExhaustedItems++
		w.statsMu.Unlock()
		if w.verbose {
			fmt.Printf("[retry] Giving up on item %s after %d attempts: %v\n",
				item.ID[:8], item.Attempts, err)
		}
		if w.OnExhaust != nil {
			w.OnExhaust(item)
		}
		return
	}

	item.Status = ItemStatusPending
	item.NextRetry = w.backoff.NextRetry(item.Attempts)
	if updErr := w.queue.Update(ctx, item); updErr != nil && w.verbose {
		fmt.Printf("[retry] Failed to requeue item %s: %v\n", item.ID[:8], updErr)
	}
	if w.verbose {
		fmt.Printf("[retry] Push failed for item %s (attempt %d), next retry at %s: %v\n",
			item.ID[:8], item.Attempts, item.NextRetry.Format(time.RFC3339), err)
	}
}
