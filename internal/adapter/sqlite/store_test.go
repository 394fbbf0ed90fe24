package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/vertextoedge/cacheable-image/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index", "cache.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_OpenAndPing(t *testing.T) {
	s := openTestStore(t)
	if err := s.Ping(); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	// Migrations are idempotent
	if err := s.migrate(); err != nil {
		t.Errorf("migrate() second run error = %v", err)
	}
}

func TestStore_Entries(t *testing.T) {
	s := openTestStore(t)

	first := &domain.CacheEntry{
		SourceURI: "http://cdn.example.com/a.png",
		Directory: "cdn.example.com",
		FileName:  "aaa.png",
		Path:      "/cache/cdn.example.com/aaa.png",
		Size:      1024,
		MimeType:  "image/png",
	}
	if err := s.UpsertEntry(first); err != nil {
		t.Fatalf("UpsertEntry() error = %v", err)
	}
	if first.ID == 0 {
		t.Error("UpsertEntry() should set ID")
	}

	second := &domain.CacheEntry{
		SourceURI: "http://img.example.org/b.jpg",
		Directory: "img.example.org",
		FileName:  "bbb.jpg",
		Path:      "/cache/img.example.org/bbb.jpg",
		Size:      2048,
		MimeType:  "image/jpeg",
	}
	if err := s.UpsertEntry(second); err != nil {
		t.Fatalf("UpsertEntry() error = %v", err)
	}

	// Re-downloading the same path updates the row
	again := *first
	again.ID = 0
	again.Size = 4096
	again.UpdatedAt = time.Now().Add(time.Minute)
	if err := s.UpsertEntry(&again); err != nil {
		t.Fatalf("UpsertEntry() update error = %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("UpsertEntry() update ID = %d, want %d", again.ID, first.ID)
	}

	got, err := s.GetEntryByPath(first.Path)
	if err != nil {
		t.Fatalf("GetEntryByPath() error = %v", err)
	}
	if got == nil || got.Size != 4096 || got.MimeType != "image/png" {
		t.Errorf("GetEntryByPath() = %+v", got)
	}

	missing, err := s.GetEntryByPath("/nope")
	if err != nil || missing != nil {
		t.Errorf("GetEntryByPath(missing) = %v, %v; want nil, nil", missing, err)
	}

	list, err := s.ListEntries(10, 0)
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	if len(list) != 2 || list[0].Path != first.Path {
		t.Errorf("ListEntries() returned %d entries, first = %v", len(list), list)
	}

	stats, err := s.GetCacheStats()
	if err != nil {
		t.Fatalf("GetCacheStats() error = %v", err)
	}
	if stats.TotalEntries != 2 || stats.TotalBytes != 4096+2048 || stats.Directories != 2 {
		t.Errorf("GetCacheStats() = %+v", stats)
	}

	if err := s.DeleteEntry(second.ID); err != nil {
		t.Fatalf("DeleteEntry() error = %v", err)
	}
	list, _ = s.ListEntries(10, 0)
	if len(list) != 1 {
		t.Errorf("ListEntries() after delete = %d entries, want 1", len(list))
	}
}

func TestStore_Jobs(t *testing.T) {
	s := openTestStore(t)

	running := &domain.DownloadJob{
		ID:            "job-1",
		SourceURI:     "http://cdn.example.com/a.png",
		TargetPath:    "/cache/cdn.example.com/aaa.png",
		ContentLength: -1,
		StartedAt:     time.Now(),
	}
	if err := s.RecordJob(running); err != nil {
		t.Fatalf("RecordJob() error = %v", err)
	}

	got, err := s.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got == nil || got.Status != domain.JobStatusRunning || got.FinishedAt != nil {
		t.Errorf("GetJob() = %+v", got)
	}

	done := *running
	done.MarkCompleted(500, "image/png")
	if err := s.RecordJob(&done); err != nil {
		t.Fatalf("RecordJob(completed) error = %v", err)
	}

	// A late running record must not resurrect the job
	if err := s.RecordJob(running); err != nil {
		t.Fatalf("RecordJob(running) error = %v", err)
	}

	got, _ = s.GetJob("job-1")
	if got.Status != domain.JobStatusCompleted || got.BytesWritten != 500 || got.FinishedAt == nil {
		t.Errorf("GetJob() after completion = %+v", got)
	}

	failed := &domain.DownloadJob{ID: "job-2", SourceURI: "http://x/b.png", TargetPath: "/c/b.png"}
	failed.MarkFailed(errors.New("status 404"), false)
	canceled := &domain.DownloadJob{ID: "job-3", SourceURI: "http://x/c.png", TargetPath: "/c/c.png"}
	canceled.MarkFailed(domain.ErrDownloadCanceled, true)
	for _, j := range []*domain.DownloadJob{failed, canceled} {
		if err := s.RecordJob(j); err != nil {
			t.Fatalf("RecordJob() error = %v", err)
		}
	}

	stats, err := s.GetJobStats()
	if err != nil {
		t.Fatalf("GetJobStats() error = %v", err)
	}
	want := domain.JobStats{CompletedCount: 1, FailedCount: 1, CanceledCount: 1, BytesFetched: 500}
	if *stats != want {
		t.Errorf("GetJobStats() = %+v, want %+v", *stats, want)
	}

	missing, err := s.GetJob("nope")
	if err != nil || missing != nil {
		t.Errorf("GetJob(missing) = %v, %v; want nil, nil", missing, err)
	}
}

func TestStore_CleanupOldJobs(t *testing.T) {
	s := openTestStore(t)

	old := time.Now().Add(-72 * time.Hour)
	oldJob := &domain.DownloadJob{ID: "old", SourceURI: "u", TargetPath: "p", Status: domain.JobStatusFailed, StartedAt: old, FinishedAt: &old}
	recent := time.Now()
	recentJob := &domain.DownloadJob{ID: "recent", SourceURI: "u", TargetPath: "p", Status: domain.JobStatusCompleted, StartedAt: recent, FinishedAt: &recent}
	runningJob := &domain.DownloadJob{ID: "running", SourceURI: "u", TargetPath: "p", StartedAt: old}

	for _, j := range []*domain.DownloadJob{oldJob, recentJob, runningJob} {
		if err := s.RecordJob(j); err != nil {
			t.Fatalf("RecordJob() error = %v", err)
		}
	}

	count, err := s.CleanupOldJobs(24 * time.Hour)
	if err != nil {
		t.Fatalf("CleanupOldJobs() error = %v", err)
	}
	if count != 1 {
		t.Errorf("CleanupOldJobs() = %d, want 1", count)
	}

	for id, wantPresent := range map[string]bool{"old": false, "recent": true, "running": true} {
		job, _ := s.GetJob(id)
		if (job != nil) != wantPresent {
			t.Errorf("job %q present = %v, want %v", id, job != nil, wantPresent)
		}
	}
}
