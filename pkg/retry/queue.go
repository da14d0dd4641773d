// Package retry provides a persistent retry queue for failed report pushes.
//
// The queue implements a store-and-forward pattern so a finished report is
// never lost to a temporary network failure or ingest outage: the client
// parks the report on disk and a background Worker pushes it later with
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/threatcanvas/sdk/pkg/report"
)

// Common errors for retry queue operations.
var (
	// ErrQueueFull is returned when the queue has reached its maximum capacity.
	ErrQueueFull = errors.New("retry queue is full")

	// ErrQueueClosed is returned when operations are attempted on a closed queue.
	ErrQueueClosed = errors.New("retry queue is closed")

	// ErrItemNotFound is returned when the requested item doesn't exist.
	ErrItemNotFound = errors.New("queue item not found")

	// ErrDuplicateItem is returned when attempting to enqueue a duplicate item.
	ErrDuplicateItem = errors.New("duplicate item already in queue")

	// ErrInvalidItem is returned when the queue item is invalid.
	ErrInvalidItem = errors.New("invalid queue item")
)

// ItemStatus represents the status of a queue item.
type ItemStatus string

const (
	// ItemStatusPending indicates the item is waiting for retry.
	ItemStatusPending ItemStatus = "pending"

	// ItemStatusProcessing indicates the item is currently being processed.
	ItemStatusProcessing ItemStatus = "processing"

	// ItemStatusFailed indicates the item has exhausted all retry attempts.
	ItemStatusFailed ItemStatus = "failed"
)

// QueueItem is one parked report waiting to be pushed.
type QueueItem struct {
	ID          string     `json:"id"`
	Fingerprint string     `json:"fingerprint"`
	Status      ItemStatus `json:"status"`

	// Report is the parked report document.
	Report *report.Report `json:"report"`

	// Retry tracking
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	LastError   string    `json:"last_error,omitempty"`
	LastAttempt time.Time `json:"last_attempt,omitzero"`
	NextRetry   time.Time `json:"next_retry"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ClientID records which client parked the report.
	ClientID string `json:"client_id,omitempty"`
}

// IsExpired checks if the item has exceeded its TTL.
func (item *QueueItem) IsExpired(ttl time.Duration) bool {
	return time.Since(item.CreatedAt) > ttl
}

// IsReadyForRetry checks if the item is ready to be retried.
func (item *QueueItem) IsReadyForRetry() bool {
	return item.Status == ItemStatusPending && time.Now().After(item.NextRetry)
}

// HasExhaustedRetries checks if the item has used all retry attempts.
func (item *QueueItem) HasExhaustedRetries() bool {
	return item.Attempts >= item.MaxAttempts
}

// QueueStats provides statistics about the retry queue.
type QueueStats struct {
	TotalItems      int       `json:"total_items"`
	PendingItems    int       `json:"pending_items"`
	ProcessingItems int       `json:"processing_items"`
	FailedItems     int       `json:"failed_items"`
	OldestItem      time.Time `json:"oldest_item,omitzero"`
	NewestItem      time.Time `json:"newest_item,omitzero"`
	LastRetry       time.Time `json:"last_retry,omitzero"`
	TotalRetries    int64     `json:"total_retries"`
}

// Queue defines the interface for retry queue implementations.
// Implementations must be safe for concurrent use.
type Queue interface {
	// Enqueue adds an item to the queue and returns its ID.
	// Returns ErrQueueFull when the queue is at capacity and
	// ErrDuplicateItem when an item with the same fingerprint exists.
	Enqueue(ctx context.Context, item *QueueItem) (string, error)

	// Dequeue removes and returns the next item ready for retry,
	// marking it as processing. Returns nil, nil when nothing is ready.
	Dequeue(ctx context.Context) (*QueueItem, error)

	// Peek returns items ready for retry without removing them,
	// ordered by next retry time.
	Peek(ctx context.Context, limit int) ([]*QueueItem, error)

	// Get retrieves an item by ID without removing it.
	Get(ctx context.Context, id string) (*QueueItem, error)

	// Update persists changes to an existing item, typically after a
	// retry attempt to record the new attempt count and schedule.
	Update(ctx context.Context, item *QueueItem) error

	// Delete removes an item, typically after a successful push.
	Delete(ctx context.Context, id string) error

	// MarkFailed marks an item as permanently failed.
	MarkFailed(ctx context.Context, id string, lastError string) error

	// Requeue moves a processing item back to pending for another attempt.
	Requeue(ctx context.Context, id string, nextRetry time.Time) error

	// Size returns the total number of items in the queue.
	Size(ctx context.Context) (int, error)

	// Stats returns detailed statistics about the queue.
	Stats(ctx context.Context) (*QueueStats, error)

	// Cleanup removes expired and permanently failed items and returns
	// how many were removed.
	Cleanup(ctx context.Context, ttl time.Duration) (int, error)

	// Close closes the queue. All other methods return ErrQueueClosed
	// afterwards.
	Close() error
}

// DefaultMaxAttempts is the default maximum number of retry attempts.
const DefaultMaxAttempts = 10

// DefaultTTL is the default time-to-live for queue items (7 days).
const DefaultTTL = 7 * 24 * time.Hour

// DefaultRetryInterval is the default interval between retry checks.
const DefaultRetryInterval = 5 * time.Minute

// DefaultBatchSize is the default number of items to process per batch.
const DefaultBatchSize = 10

// DefaultMaxQueueSize is the default maximum number of items in the queue.
const DefaultMaxQueueSize = 1000
