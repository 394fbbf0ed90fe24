package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vertextoedge/cacheable-image/internal/domain"
	"github.com/vertextoedge/cacheable-image/internal/domain/vo"
	"github.com/vertextoedge/cacheable-image/internal/port"
)

// TempSuffix marks files that are still being downloaded
const TempSuffix = ".downloading"

// Manager handles local filesystem operations
type Manager struct {
	rootDir    string
	bufferSize int
}

// Ensure Manager implements port.FileSystem
var _ port.FileSystem = (*Manager)(nil)

// NewManager creates a new filesystem manager
func NewManager(rootDir string) (*Manager, error) {
	return NewManagerWithBufferSize(rootDir, 256*1024)
}

// NewManagerWithBufferSize creates a new filesystem manager with custom buffer size
func NewManagerWithBufferSize(rootDir string, bufferSize int) (*Manager, error) {
	if rootDir == "" {
		return nil, errors.New("cache root dir required")
	}

	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache root dir: %w", err)
	}

	// Ensure root directory exists
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, &domain.DirectoryError{Path: abs, Err: err}
	}

	if bufferSize <= 0 {
		bufferSize = 256 * 1024
	}

	return &Manager{
		rootDir:    abs,
		bufferSize: bufferSize,
	}, nil
}

// RootDir returns the cache root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// EntryPath returns the local path for a cache key
func (m *Manager) EntryPath(key vo.CacheKey) string {
	return key.Path(m.rootDir)
}

// Stat returns metadata for a path
func (m *Manager) Stat(path string) (*port.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &port.FileInfo{
		Size:      info.Size(),
		IsRegular: info.Mode().IsRegular(),
		ModTime:   info.ModTime(),
	}, nil
}

// EnsureDir ensures the directory for a file path exists
func (m *Manager) EnsureDir(filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &domain.DirectoryError{Path: dir, Err: err}
	}
	return nil
}

// WriteFile streams reader into targetPath. Content lands in a temp file
// next to the target and is renamed over it once fully written.
func (m *Manager) WriteFile(ctx context.Context, targetPath string, reader io.Reader) (int64, error) {
	if !m.within(targetPath) {
		return 0, fmt.Errorf("%w: path %s outside cache root", domain.ErrInvalidInput, targetPath)
	}

	if err := m.EnsureDir(targetPath); err != nil {
		return 0, err
	}

	f, err := os.CreateTemp(filepath.Dir(targetPath), filepath.Base(targetPath)+".*"+TempSuffix)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := f.Name()

	written, err := copyWithContext(ctx, f, reader, m.bufferSize)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return written, fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		os.Remove(tempPath)
		return written, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return written, nil
}

// DeleteFile removes a cached file
func (m *Manager) DeleteFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// FileExists checks if a cached file exists
func (m *Manager) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetCacheSize returns total size of cached files
func (m *Manager) GetCacheSize() (int64, error) {
	var size int64
	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// CleanOldTempFiles removes temp files older than the specified duration
func (m *Manager) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, TempSuffix) && info.ModTime().Before(threshold) {
			if removeErr := os.Remove(path); removeErr == nil {
				count++
			}
		}
		return nil
	})
	return count, err
}

// CleanEmptyDirs removes empty host directories under root
func (m *Manager) CleanEmptyDirs() error {
	entries, err := os.ReadDir(m.rootDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			os.Remove(filepath.Join(m.rootDir, e.Name())) // only succeeds if empty
		}
	}
	return nil
}

func (m *Manager) within(path string) bool {
	return Within(m.rootDir, path)
}

// Within reports whether path lies strictly below root. Names that merely
// begin with dots, such as "..cdn", are inside.
func Within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader, bufferSize int) (int64, error) {
	var copied int64
	buf := make([]byte, bufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
