package maintenance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/cacheable-image/internal/domain"
	"github.com/vertextoedge/cacheable-image/internal/domain/vo"
	"github.com/vertextoedge/cacheable-image/internal/port"
)

// mockEntryRepository implements port.EntryRepository for testing
type mockEntryRepository struct {
	mu        sync.Mutex
	entries   []*domain.CacheEntry
	deleted   []int64
	listErr   error
	deleteErr error
}

func (m *mockEntryRepository) UpsertEntry(entry *domain.CacheEntry) error { return nil }
func (m *mockEntryRepository) GetEntryByPath(path string) (*domain.CacheEntry, error) {
	return nil, nil
}
func (m *mockEntryRepository) ListEntries(limit, offset int) ([]*domain.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	if offset >= len(m.entries) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.entries) {
		end = len(m.entries)
	}
	return m.entries[offset:end], nil
}
func (m *mockEntryRepository) DeleteEntry(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, id)
	return nil
}
func (m *mockEntryRepository) GetCacheStats() (*domain.CacheStats, error) {
	return &domain.CacheStats{}, nil
}

// mockJobRepository implements port.JobRepository for testing
type mockJobRepository struct {
	mu            sync.Mutex
	cleanupCount  int
	cleanupErr    error
	cleanupCalled int
	lastOlderThan time.Duration
}

func (m *mockJobRepository) RecordJob(job *domain.DownloadJob) error       { return nil }
func (m *mockJobRepository) GetJob(id string) (*domain.DownloadJob, error) { return nil, nil }
func (m *mockJobRepository) GetJobStats() (*domain.JobStats, error)        { return &domain.JobStats{}, nil }
func (m *mockJobRepository) CleanupOldJobs(olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupCalled++
	m.lastOlderThan = olderThan
	return m.cleanupCount, m.cleanupErr
}

// mockFileSystem implements port.FileSystem for testing
type mockFileSystem struct {
	mu                   sync.Mutex
	existing             map[string]bool
	cleanTempFilesCount  int
	cleanTempFilesErr    error
	cleanTempFilesCalled int
	cleanDirsCalled      int
}

func (m *mockFileSystem) RootDir() string                  { return "/cache" }
func (m *mockFileSystem) EntryPath(key vo.CacheKey) string { return key.Path("/cache") }
func (m *mockFileSystem) Stat(path string) (*port.FileInfo, error) {
	return nil, errors.New("not implemented")
}
func (m *mockFileSystem) EnsureDir(filePath string) error        { return nil }
func (m *mockFileSystem) DeleteFile(path string) error           { return nil }
func (m *mockFileSystem) GetCacheSize() (int64, error)           { return 0, nil }
func (m *mockFileSystem) GetDiskUsage() (*port.DiskUsage, error) { return &port.DiskUsage{}, nil }
func (m *mockFileSystem) WriteFile(ctx context.Context, targetPath string, r io.Reader) (int64, error) {
	return 0, nil
}
func (m *mockFileSystem) FileExists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.existing[path]
}
func (m *mockFileSystem) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanTempFilesCalled++
	return m.cleanTempFilesCount, m.cleanTempFilesErr
}
func (m *mockFileSystem) CleanEmptyDirs() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanDirsCalled++
	return nil
}

func TestService_New(t *testing.T) {
	logger := zap.NewNop()

	// Test with nil config (should use defaults)
	s := New(nil, &mockEntryRepository{}, &mockJobRepository{}, &mockFileSystem{}, logger)
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.config.CleanupInterval != time.Hour {
		t.Errorf("CleanupInterval = %v, want %v", s.config.CleanupInterval, time.Hour)
	}

	// Zero fields are filled in, others kept
	cfg := &Config{TempFileMaxAge: 6 * time.Hour}
	s = New(cfg, &mockEntryRepository{}, &mockJobRepository{}, &mockFileSystem{}, nil)
	if s.config.TempFileMaxAge != 6*time.Hour {
		t.Errorf("TempFileMaxAge = %v, want %v", s.config.TempFileMaxAge, 6*time.Hour)
	}
	if s.config.JobHistoryMaxAge != 7*24*time.Hour {
		t.Errorf("JobHistoryMaxAge = %v, want %v", s.config.JobHistoryMaxAge, 7*24*time.Hour)
	}
}

func TestService_StartStop(t *testing.T) {
	jobs := &mockJobRepository{}
	fs := &mockFileSystem{cleanTempFilesCount: 2}

	cfg := &Config{
		CleanupInterval:   10 * time.Millisecond,
		ReconcileInterval: 10 * time.Millisecond,
		TempFileMaxAge:    time.Hour,
		JobHistoryMaxAge:  2 * time.Hour,
	}
	s := New(cfg, &mockEntryRepository{}, jobs, fs, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	// Wait for maintenance to run at least once
	time.Sleep(60 * time.Millisecond)

	cancel()
	s.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after Stop()")
	}

	jobs.mu.Lock()
	jobCalls, olderThan := jobs.cleanupCalled, jobs.lastOlderThan
	jobs.mu.Unlock()
	fs.mu.Lock()
	tempCalls, dirCalls := fs.cleanTempFilesCalled, fs.cleanDirsCalled
	fs.mu.Unlock()

	if jobCalls == 0 {
		t.Error("CleanupOldJobs was not called")
	}
	if olderThan != 2*time.Hour {
		t.Errorf("CleanupOldJobs olderThan = %v, want 2h", olderThan)
	}
	if tempCalls == 0 {
		t.Error("CleanOldTempFiles was not called")
	}
	if dirCalls == 0 {
		t.Error("CleanEmptyDirs was not called")
	}
}

func TestService_DoubleStart(t *testing.T) {
	s := New(nil, &mockEntryRepository{}, &mockJobRepository{}, &mockFileSystem{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Start(ctx)
	time.Sleep(10 * time.Millisecond)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err == nil {
			t.Error("second Start() error = nil, want already running")
		}
	case <-time.After(time.Second):
		t.Fatal("second Start() blocked")
	}
}

func TestService_ReconcileIndex(t *testing.T) {
	entries := &mockEntryRepository{}
	fs := &mockFileSystem{existing: map[string]bool{}}

	// Span more than one page; every third file is missing
	total := reconcilePageSize + 20
	var want []int64
	for i := 0; i < total; i++ {
		path := fmt.Sprintf("/cache/host/%d.png", i)
		entries.entries = append(entries.entries, &domain.CacheEntry{ID: int64(i + 1), Path: path})
		if i%3 == 0 {
			want = append(want, int64(i+1))
		} else {
			fs.existing[path] = true
		}
	}

	s := New(nil, entries, &mockJobRepository{}, fs, zap.NewNop())
	s.reconcileIndex(context.Background())

	if len(entries.deleted) != len(want) {
		t.Fatalf("deleted %d entries, want %d", len(entries.deleted), len(want))
	}
	for i, id := range want {
		if entries.deleted[i] != id {
			t.Errorf("deleted[%d] = %d, want %d", i, entries.deleted[i], id)
		}
	}
}

func TestService_ReconcileIndexErrors(t *testing.T) {
	t.Run("list error", func(t *testing.T) {
		entries := &mockEntryRepository{listErr: errors.New("db locked")}
		s := New(nil, entries, &mockJobRepository{}, &mockFileSystem{}, zap.NewNop())
		s.reconcileIndex(context.Background())
		if len(entries.deleted) != 0 {
			t.Errorf("deleted = %v, want none", entries.deleted)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		entries := &mockEntryRepository{entries: []*domain.CacheEntry{{ID: 1, Path: "/cache/gone.png"}}}
		s := New(nil, entries, &mockJobRepository{}, &mockFileSystem{}, zap.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s.reconcileIndex(ctx)
		if len(entries.deleted) != 0 {
			t.Errorf("deleted = %v, want none", entries.deleted)
		}
	})
}

func TestService_RunOnce(t *testing.T) {
	entries := &mockEntryRepository{entries: []*domain.CacheEntry{
		{ID: 1, Path: "/cache/h/a.png"},
		{ID: 2, Path: "/cache/h/b.png"},
	}}
	jobs := &mockJobRepository{cleanupErr: errors.New("db closed")}
	fs := &mockFileSystem{existing: map[string]bool{"/cache/h/a.png": true}}

	s := New(nil, entries, jobs, fs, zap.NewNop())
	s.RunOnce(context.Background())

	if fs.cleanTempFilesCalled != 1 || fs.cleanDirsCalled != 1 {
		t.Errorf("temp cleanups = %d, dir cleanups = %d, want 1 each", fs.cleanTempFilesCalled, fs.cleanDirsCalled)
	}
	// A failing job cleanup does not stop the remaining tasks
	if jobs.cleanupCalled != 1 {
		t.Errorf("CleanupOldJobs calls = %d, want 1", jobs.cleanupCalled)
	}
	if len(entries.deleted) != 1 || entries.deleted[0] != 2 {
		t.Errorf("deleted = %v, want [2]", entries.deleted)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.CleanupInterval != time.Hour {
		t.Errorf("CleanupInterval = %v, want %v", cfg.CleanupInterval, time.Hour)
	}
	if cfg.ReconcileInterval != 6*time.Hour {
		t.Errorf("ReconcileInterval = %v, want %v", cfg.ReconcileInterval, 6*time.Hour)
	}
	if cfg.TempFileMaxAge != 24*time.Hour {
		t.Errorf("TempFileMaxAge = %v, want %v", cfg.TempFileMaxAge, 24*time.Hour)
	}
	if cfg.JobHistoryMaxAge != 7*24*time.Hour {
		t.Errorf("JobHistoryMaxAge = %v, want %v", cfg.JobHistoryMaxAge, 7*24*time.Hour)
	}
}
