//go:build linux

package health

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// ArchiveDirCheck checks free disk space in the report archive
// directory (Linux only).
type ArchiveDirCheck struct {
	// Path is the archive directory (default "/").
	Path string

	// MinFreePercent is the minimum percentage of free space required
	// (0-100). If set, it takes precedence over MinFreeBytes.
	MinFreePercent float64

	// MinFreeBytes is the minimum free space in bytes.
	MinFreeBytes int64
}

func (c *ArchiveDirCheck) Name() string { return "archive_dir" }

func (c *ArchiveDirCheck) Check(ctx context.Context) CheckResult {
	result := CheckResult{
		Timestamp: time.Now(),
		Metadata:  make(map[string]any),
	}

	path := c.Path
	if path == "" {
		path = "/"
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		result.Status = StatusUnhealthy
		result.Error = fmt.Sprintf("failed to get disk stats: %v", err)
		return result
	}

	totalBytes := stat.Blocks * uint64(stat.Bsize) //nolint:gosec // G115: safe conversion
	freeBytes := stat.Bavail * uint64(stat.Bsize)  //nolint:gosec // G115: safe conversion
	freePercent := float64(freeBytes) / float64(totalBytes) * 100

	result.Metadata["path"] = path
	result.Metadata["total_bytes"] = totalBytes
	result.Metadata["free_bytes"] = freeBytes
	result.Metadata["free_percent"] = fmt.Sprintf("%.2f%%", freePercent)

	if c.MinFreePercent > 0 {
		if freePercent < c.MinFreePercent {
			result.Status = StatusUnhealthy
			result.Error = fmt.Sprintf("free space %.2f%% is below threshold %.2f%%", freePercent, c.MinFreePercent)
			return result
		}
	} else if c.MinFreeBytes > 0 {
		if freeBytes < uint64(c.MinFreeBytes) { //nolint:gosec // MinFreeBytes is always positive here
			result.Status = StatusUnhealthy
			result.Error = fmt.Sprintf("free space %d bytes is below threshold %d bytes", freeBytes, c.MinFreeBytes)
			return result
		}
	}

	result.Status = StatusHealthy
	result.Message = fmt.Sprintf("archive dir has %.2f%% free space", freePercent)
	return result
}
