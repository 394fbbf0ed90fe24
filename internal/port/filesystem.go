package port

import (
	"context"
	"io"
	"time"

	"github.com/vertextoedge/cacheable-image/internal/domain/vo"
)

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  // Total disk space in bytes
	Used    uint64  // Used disk space in bytes
	Free    uint64  // Free disk space in bytes
	UsedPct float64 // Used percentage (0-100)
}

// FileInfo is the subset of file metadata the cache looks at
type FileInfo struct {
	Size      int64
	IsRegular bool
	ModTime   time.Time
}

// FileSystem defines the interface for cache storage operations
type FileSystem interface {
	// RootDir returns the cache root directory
	RootDir() string

	// EntryPath returns the absolute path of the entry for a cache key
	EntryPath(key vo.CacheKey) string

	// Stat returns metadata for a path
	Stat(path string) (*FileInfo, error)

	// EnsureDir creates the parent directory of a file path
	// Failures are returned as *domain.DirectoryError
	EnsureDir(filePath string) error

	// WriteFile streams reader into targetPath through a temp file that is
	// renamed into place on success and removed on failure
	// Returns: bytes written, error
	WriteFile(ctx context.Context, targetPath string, reader io.Reader) (int64, error)

	// DeleteFile removes a cached file
	DeleteFile(path string) error

	// FileExists checks if a cached file exists
	FileExists(path string) bool

	// GetCacheSize returns total size of cached files
	GetCacheSize() (int64, error)

	// GetDiskUsage returns disk usage statistics
	GetDiskUsage() (*DiskUsage, error)

	// CleanOldTempFiles removes temp files older than the specified duration
	// Returns the number of files deleted
	CleanOldTempFiles(olderThan time.Duration) (int, error)
}
