package event

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vertextoedge/cacheable-image/internal/domain"
)

// recordingHandler records the events it receives
type recordingHandler struct {
	mu     sync.Mutex
	names  []string
	events []DomainEvent
	err    error
}

func (h *recordingHandler) Handle(event DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return h.err
}

func (h *recordingHandler) HandledEvents() []string { return h.names }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func TestInMemoryDispatcher_Dispatch(t *testing.T) {
	tests := []struct {
		name  string
		async bool
	}{
		{name: "sync", async: false},
		{name: "async", async: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewInMemoryDispatcher(tt.async, nil)
			began := &recordingHandler{names: []string{NameDownloadBegan}}
			all := &recordingHandler{names: []string{"*"}}
			d.Subscribe(began)
			d.Subscribe(all)

			d.Dispatch(NewDownloadBegan("job-1", "http://a/b.png", "/c/a/b.png", false))
			d.Dispatch(NewCacheProbed("/c/a/b.png", "miss", 0, nil))
			d.Wait()

			if got := began.count(); got != 1 {
				t.Errorf("named handler received %d events, want 1", got)
			}
			if got := all.count(); got != 2 {
				t.Errorf("wildcard handler received %d events, want 2", got)
			}
		})
	}
}

func TestInMemoryDispatcher_Unsubscribe(t *testing.T) {
	d := NewInMemoryDispatcher(false, nil)
	first := &recordingHandler{names: []string{NameCacheProbed}}
	second := &recordingHandler{names: []string{NameCacheProbed}}
	d.Subscribe(first)
	d.Subscribe(second)
	d.Unsubscribe(first)

	d.Dispatch(NewCacheProbed("/p", "hit", 200, nil))

	if first.count() != 0 {
		t.Error("unsubscribed handler should not receive events")
	}
	if second.count() != 1 {
		t.Error("remaining handler should receive events")
	}
}

func TestInMemoryDispatcher_ErrorFunc(t *testing.T) {
	handlerErr := errors.New("boom")
	var gotErr error
	d := NewInMemoryDispatcher(false, func(event DomainEvent, err error) {
		gotErr = err
	})
	d.Subscribe(&recordingHandler{names: []string{"*"}, err: handlerErr})

	d.Dispatch(NewSourceResolved("http://a/b.png", "cached", "/c/b.png"))

	if !errors.Is(gotErr, handlerErr) {
		t.Errorf("onError received %v, want %v", gotErr, handlerErr)
	}
}

func TestLoggingHandler_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := NewLoggingHandler(zap.New(core))

	h.Handle(NewDownloadCompleted("j", "http://a/b.png", "/c/b.png", 2048, "image/png", time.Second))
	h.Handle(NewDownloadFailed("j", "http://a/b.png", "/c/b.png", 10, errors.New("reset"), false, time.Second))
	h.Handle(NewDownloadFailed("j", "http://a/b.png", "/c/b.png", 10, domain.ErrDownloadCanceled, true, time.Second))
	h.Handle(NewCacheProbed("/c/b.png", "miss", 0, errors.New("permission denied")))

	want := []struct {
		level zapcore.Level
		msg   string
	}{
		{zapcore.InfoLevel, "image cached"},
		{zapcore.WarnLevel, "download failed"},
		{zapcore.DebugLevel, "download canceled"},
		{zapcore.WarnLevel, "cache probe failed, treating as miss"},
	}

	entries := logs.All()
	if len(entries) != len(want) {
		t.Fatalf("got %d log entries, want %d", len(entries), len(want))
	}
	for i, w := range want {
		if entries[i].Level != w.level || entries[i].Message != w.msg {
			t.Errorf("entry %d = (%v, %q), want (%v, %q)", i, entries[i].Level, entries[i].Message, w.level, w.msg)
		}
	}
}

func TestLoggingHandler_RetryableFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := NewLoggingHandler(zap.New(core))

	err := domain.NewRetryableError(domain.NewDownloadError("http://a/b.png", 429, nil), 30*time.Second)
	h.Handle(NewDownloadFailed("j", "http://a/b.png", "/c/b.png", 0, err, false, time.Second))
	h.Handle(NewDownloadFailed("j", "http://a/b.png", "/c/b.png", 0, domain.NewDownloadError("http://a/b.png", 404, nil), false, time.Second))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want 2", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["retryable"] != true || fields["retry_after"] != 30*time.Second {
		t.Errorf("retryable fields = %v, %v", fields["retryable"], fields["retry_after"])
	}
	if _, ok := entries[1].ContextMap()["retryable"]; ok {
		t.Error("permanent failure should not be marked retryable")
	}
}

// mockIndex implements the entry and job repositories for testing
type mockIndex struct {
	entries []*domain.CacheEntry
	jobs    map[string]*domain.DownloadJob
}

func newMockIndex() *mockIndex {
	return &mockIndex{jobs: make(map[string]*domain.DownloadJob)}
}

func (m *mockIndex) UpsertEntry(entry *domain.CacheEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}
func (m *mockIndex) GetEntryByPath(path string) (*domain.CacheEntry, error) { return nil, nil }
func (m *mockIndex) ListEntries(limit, offset int) ([]*domain.CacheEntry, error) {
	return m.entries, nil
}
func (m *mockIndex) DeleteEntry(id int64) error                 { return nil }
func (m *mockIndex) GetCacheStats() (*domain.CacheStats, error) { return &domain.CacheStats{}, nil }
func (m *mockIndex) RecordJob(job *domain.DownloadJob) error {
	m.jobs[job.ID] = job
	return nil
}
func (m *mockIndex) GetJob(id string) (*domain.DownloadJob, error)       { return m.jobs[id], nil }
func (m *mockIndex) GetJobStats() (*domain.JobStats, error)              { return &domain.JobStats{}, nil }
func (m *mockIndex) CleanupOldJobs(olderThan time.Duration) (int, error) { return 0, nil }

func TestIndexHandler(t *testing.T) {
	idx := newMockIndex()
	h := NewIndexHandler(idx, idx)

	if err := h.Handle(NewDownloadBegan("ok", "http://cdn/a.png", "/cache/cdn/abc.png", false)); err != nil {
		t.Fatalf("Handle(began) error = %v", err)
	}
	if got := idx.jobs["ok"].Status; got != domain.JobStatusRunning {
		t.Errorf("job status = %q, want %q", got, domain.JobStatusRunning)
	}

	if err := h.Handle(NewDownloadCompleted("ok", "http://cdn/a.png", "/cache/cdn/abc.png", 512, "image/png", time.Second)); err != nil {
		t.Fatalf("Handle(completed) error = %v", err)
	}
	if len(idx.entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(idx.entries))
	}
	entry := idx.entries[0]
	if entry.Directory != "cdn" || entry.FileName != "abc.png" || entry.Size != 512 {
		t.Errorf("entry = %+v", entry)
	}
	if got := idx.jobs["ok"].Status; got != domain.JobStatusCompleted {
		t.Errorf("job status = %q, want %q", got, domain.JobStatusCompleted)
	}

	h.Handle(NewDownloadFailed("bad", "http://cdn/b.png", "/cache/cdn/b.png", 0, domain.ErrDownloadCanceled, true, 0))
	if got := idx.jobs["bad"].Status; got != domain.JobStatusCanceled {
		t.Errorf("job status = %q, want %q", got, domain.JobStatusCanceled)
	}
	if len(idx.entries) != 1 {
		t.Error("failed download should not add an entry")
	}
}
