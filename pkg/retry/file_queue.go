package retry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/threatcanvas/sdk/pkg/report"
)

// FileQueue implements Queue using JSON files, one per item. This keeps the
// queue durable across restarts without any external dependency.
//
// File naming convention: {timestamp}_{id}.json, so listing the directory
// sorts naturally by creation time.
type FileQueue struct {
	dir     string
	maxSize int
	dedupe  bool
	backoff *BackoffConfig

	mu     sync.RWMutex
	closed bool

	// In-memory fingerprint index for fast deduplication.
	fingerprints map[string]string // fingerprint -> item ID

	verbose bool
}

// FileQueueConfig configures the file-based retry queue.
type FileQueueConfig struct {
	// Dir is the directory to store queue files.
	// Default: ~/.threatcanvas/retry-queue
	Dir string

	// MaxSize is the maximum number of items in the queue.
	// Default: 1000
	MaxSize int

	// Deduplication enables fingerprint-based deduplication.
	Deduplication bool

	// Backoff configures the retry backoff behavior.
	// Default: exponential backoff with 5-minute base.
	Backoff *BackoffConfig

	// Verbose enables verbose logging.
	Verbose bool
}

// NewFileQueue creates a new file-based retry queue.
func NewFileQueue(cfg *FileQueueConfig) (*FileQueue, error) {
	if cfg == nil {
		cfg = &FileQueueConfig{Deduplication: true}
	}

	if cfg.Dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.Dir = filepath.Join(home, ".threatcanvas", "retry-queue")
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxQueueSize
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultBackoffConfig()
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}

	fq := &FileQueue{
		dir:          cfg.Dir,
		maxSize:      cfg.MaxSize,
		dedupe:       cfg.Deduplication,
		backoff:      cfg.Backoff,
		fingerprints: make(map[string]string),
		verbose:      cfg.Verbose,
	}

	if err := fq.buildFingerprintIndex(); err != nil {
		return nil, fmt.Errorf("failed to build fingerprint index: %w", err)
	}

	return fq, nil
}

// buildFingerprintIndex scans existing files and builds the fingerprint index.
func (fq *FileQueue) buildFingerprintIndex() error {
	files, err := fq.listFiles()
	if err != nil {
		return err
	}

	for _, file := range files {
		item, err := fq.readFile(file)
		if err != nil {
			// Skip corrupted files
			if fq.verbose {
				fmt.Printf("[retry] Warning: skipping corrupted file %s: %v\n", file, err)
			}
			continue
		}
		if item.Fingerprint != "" {
			fq.fingerprints[item.Fingerprint] = item.ID
		}
	}

	if fq.verbose {
		fmt.Printf("[retry] Loaded %d items from queue directory\n", len(files))
	}

	return nil
}

// Enqueue adds an item to the queue.
func (fq *FileQueue) Enqueue(ctx context.Context, item *QueueItem) (string, error) {
	fq.mu.Lock()
	defer fq.mu.Unlock()

	if fq.closed {
		return "", ErrQueueClosed
	}
	if item == nil || item.Report == nil {
		return "", ErrInvalidItem
	}

	size, err := fq.sizeLocked()
	if err != nil {
		return "", fmt.Errorf("failed to check queue size: %w", err)
	}
	if size >= fq.maxSize {
		return "", ErrQueueFull
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Fingerprint == "" {
		item.Fingerprint = reportFingerprint(item.Report)
	}

	if fq.dedupe && item.Fingerprint != "" {
		if existingID, exists := fq.fingerprints[item.Fingerprint]; exists {
			if fq.verbose {
				fmt.Printf("[retry] Duplicate item rejected (existing: %s)\n", existingID[:8])
			}
			return existingID, ErrDuplicateItem
		}
	}

	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	if item.Status == "" {
		item.Status = ItemStatusPending
	}
	if item.MaxAttempts <= 0 {
		item.MaxAttempts = DefaultMaxAttempts
	}
	if item.NextRetry.IsZero() {
		item.NextRetry = now // ready immediately for the first attempt
	}

	if err := fq.writeFile(item); err != nil {
		return "", fmt.Errorf("failed to write queue item: %w", err)
	}

	if item.Fingerprint != "" {
		fq.fingerprints[item.Fingerprint] = item.ID
	}

	if fq.verbose {
		fmt.Printf("[retry] Enqueued report %s as item %s\n",
			item.Report.Metadata.ID, item.ID[:8])
	}

	return item.ID, nil
}

// Dequeue removes and returns the next item ready for retry.
func (fq *FileQueue) Dequeue(ctx context.Context) (*QueueItem, error) {
	fq.mu.Lock()
	defer fq.mu.Unlock()

	if fq.closed {
		return nil, ErrQueueClosed
	}

	items, err := fq.listReadyLocked(1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	item := items[0]
	item.Status = ItemStatusProcessing
	item.UpdatedAt = time.Now()

	if err := fq.writeFile(item); err != nil {
		return nil, fmt.Errorf("failed to update item status: %w", err)
	}

	return item, nil
}

// Peek returns items ready for retry without removing them.
func (fq *FileQueue) Peek(ctx context.Context, limit int) ([]*QueueItem, error) {
	fq.mu.RLock()
	defer fq.mu.RUnlock()

	if fq.closed {
		return nil, ErrQueueClosed
	}

	return fq.listReadyLocked(limit)
}

// Get retrieves an item by ID without removing it.
func (fq *FileQueue) Get(ctx context.Context, id string) (*QueueItem, error) {
	fq.mu.RLock()
	defer fq.mu.RUnlock()

	if fq.closed {
		return nil, ErrQueueClosed
	}

	return fq.getByIDLocked(id)
}

// Update persists changes to an existing item.
func (fq *FileQueue) Update(ctx context.Context, item *QueueItem) error {
	fq.mu.Lock()
	defer fq.mu.Unlock()

	if fq.closed {
		return ErrQueueClosed
	}
	if item == nil {
		return ErrInvalidItem
	}

	if _, err := fq.getByIDLocked(item.ID); err != nil {
		return err
	}

	item.UpdatedAt = time.Now()
	return fq.writeFile(item)
}

// Delete removes an item from the queue.
func (fq *FileQueue) Delete(ctx context.Context, id string) error {
	fq.mu.Lock()
	defer fq.mu.Unlock()

	if fq.closed {
		return ErrQueueClosed
	}

	return fq.deleteLocked(id)
}

// MarkFailed marks an item as permanently failed.
func (fq *FileQueue) MarkFailed(ctx context.Context, id string, lastError string) error {
	fq.mu.Lock()
	defer fq.mu.Unlock()

	if fq.closed {
		return ErrQueueClosed
	}

	item, err := fq.getByIDLocked(id)
	if err != nil {
		return err
	}

	item.Status = ItemStatusFailed
	item.LastError = lastError
	item.UpdatedAt = time.Now()

	return fq.writeFile(item)
}

// Requeue moves an item back to pending status for retry.
func (fq *FileQueue) Requeue(ctx context.Context, id string, nextRetry time.Time) error {
	fq.mu.Lock()
	defer fq.mu.Unlock()

	if fq.closed {
		return ErrQueueClosed
	}

	item, err := fq.getByIDLocked(id)
	if err != nil {
		return err
	}

	item.Status = ItemStatusPending
	item.NextRetry = nextRetry
	item.UpdatedAt = time.Now()

	return fq.writeFile(item)
}

// Size returns the total number of items in the queue.
func (fq *FileQueue) Size(ctx context.Context) (int, error) {
	fq.mu.RLock()
	defer fq.mu.RUnlock()

	if fq.closed {
		return 0, ErrQueueClosed
	}

	return fq.sizeLocked()
}

// Stats returns detailed statistics about the queue.
func (fq *FileQueue) Stats(ctx context.Context) (*QueueStats, error) {
	fq.mu.RLock()
	defer fq.mu.RUnlock()

	if fq.closed {
		return nil, ErrQueueClosed
	}

	files, err := fq.listFiles()
	if err != nil {
		return nil, err
	}

	stats := &QueueStats{}
	for _, file := range files {
		item, err := fq.readFile(file)
		if err != nil {
			continue
		}

		stats.TotalItems++
		switch item.Status {
		case ItemStatusPending:
			stats.PendingItems++
		case ItemStatusProcessing:
			stats.ProcessingItems++
		case ItemStatusFailed:
			stats.FailedItems++
		}

		if stats.OldestItem.IsZero() || item.CreatedAt.Before(stats.OldestItem) {
			stats.OldestItem = item.CreatedAt
		}
		if item.CreatedAt.After(stats.NewestItem) {
			stats.NewestItem = item.CreatedAt
		}
		if item.LastAttempt.After(stats.LastRetry) {
			stats.LastRetry = item.LastAttempt
		}
		stats.TotalRetries += int64(item.Attempts)
	}

	return stats, nil
}

// Cleanup removes expired items and permanently failed items.
func (fq *FileQueue) Cleanup(ctx context.Context, ttl time.Duration) (int, error) {
	fq.mu.Lock()
	defer fq.mu.Unlock()

	if fq.closed {
		return 0, ErrQueueClosed
	}

	files, err := fq.listFiles()
	if err != nil {
		return 0, err
	}

	removed := 0
	now := time.Now()

	for _, file := range files {
		item, err := fq.readFile(file)
		if err != nil {
			// Remove corrupted files
			_ = os.Remove(file)
			removed++
			continue
		}

		if item.IsExpired(ttl) {
			if err := fq.deleteLocked(item.ID); err == nil {
				removed++
				if fq.verbose {
					fmt.Printf("[retry] Cleaned up expired item %s (age: %v)\n",
						item.ID[:8], now.Sub(item.CreatedAt))
				}
			}
			continue
		}

		// Failed items linger for half the TTL so they stay inspectable.
		if item.Status == ItemStatusFailed && now.Sub(item.CreatedAt) > ttl/2 {
			if err := fq.deleteLocked(item.ID); err == nil {
				removed++
			}
		}
	}

	return removed, nil
}

// Close closes the queue and releases resources.
func (fq *FileQueue) Close() error {
	fq.mu.Lock()
	defer fq.mu.Unlock()

	fq.closed = true
	fq.fingerprints = nil

	return nil
}

// Internal helpers (must be called with the lock held)

func (fq *FileQueue) sizeLocked() (int, error) {
	files, err := fq.listFiles()
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

func (fq *FileQueue) getByIDLocked(id string) (*QueueItem, error) {
	files, err := fq.listFiles()
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if strings.Contains(filepath.Base(file), id) {
			return fq.readFile(file)
		}
	}

	return nil, ErrItemNotFound
}

func (fq *FileQueue) deleteLocked(id string) error {
	files, err := fq.listFiles()
	if err != nil {
		return err
	}

	for _, file := range files {
		if strings.Contains(filepath.Base(file), id) {
			item, err := fq.readFile(file)
			if err == nil && item.Fingerprint != "" {
				delete(fq.fingerprints, item.Fingerprint)
			}
			return os.Remove(file)
		}
	}

	return ErrItemNotFound
}

func (fq *FileQueue) listReadyLocked(limit int) ([]*QueueItem, error) {
	files, err := fq.listFiles()
	if err != nil {
		return nil, err
	}

	var items []*QueueItem
	for _, file := range files {
		item, err := fq.readFile(file)
		if err != nil {
			continue
		}
		if item.IsReadyForRetry() {
			items = append(items, item)
		}
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].NextRetry.Before(items[j].NextRetry)
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	return items, nil
}

// File operations

func (fq *FileQueue) listFiles() ([]string, error) {
	entries, err := os.ReadDir(fq.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(fq.dir, entry.Name()))
	}

	// Filenames start with the creation timestamp, so this sorts by age.
	sort.Strings(files)

	return files, nil
}

func (fq *FileQueue) readFile(path string) (*QueueItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var item QueueItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to parse queue item: %w", err)
	}

	return &item, nil
}

func (fq *FileQueue) writeFile(item *QueueItem) error {
	filename := fmt.Sprintf("%d_%s.json", item.CreatedAt.UnixNano(), item.ID)
	path := filepath.Join(fq.dir, filename)

	// An item rewritten under a new name leaves a stale file behind.
	files, _ := fq.listFiles()
	for _, file := range files {
		if strings.Contains(filepath.Base(file), item.ID) && file != path {
			_ = os.Remove(file)
			break
		}
	}

	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}

	// Write atomically using a temp file.
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// reportFingerprint hashes the serialized report for deduplication.
func reportFingerprint(r *report.Report) string {
	data, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
