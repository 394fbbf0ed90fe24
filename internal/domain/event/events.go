package event

import (
	"time"
)

// Event names
const (
	NameCacheProbed       = "cache.probed"
	NameDownloadBegan     = "download.began"
	NameDownloadCompleted = "download.completed"
	NameDownloadFailed    = "download.failed"
	NameSourceResolved    = "source.resolved"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// CacheProbed is raised after the cache was checked for an entry
type CacheProbed struct {
	BaseEvent
	Path   string
	Result string // "hit", "corrupt_hit" or "miss"
	Size   int64
	Err    error
}

// EventName returns the event name
func (e CacheProbed) EventName() string {
	return NameCacheProbed
}

// NewCacheProbed creates a new CacheProbed event
func NewCacheProbed(path, result string, size int64, err error) CacheProbed {
	return CacheProbed{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		Path:      path,
		Result:    result,
		Size:      size,
		Err:       err,
	}
}

// DownloadBegan is raised when a job starts receiving a resource
type DownloadBegan struct {
	BaseEvent
	JobID      string
	SourceURI  string
	TargetPath string
	Shared     bool // joined a transfer already in flight
}

// EventName returns the event name
func (e DownloadBegan) EventName() string {
	return NameDownloadBegan
}

// NewDownloadBegan creates a new DownloadBegan event
func NewDownloadBegan(jobID, sourceURI, targetPath string, shared bool) DownloadBegan {
	return DownloadBegan{
		BaseEvent:  BaseEvent{Timestamp: time.Now()},
		JobID:      jobID,
		SourceURI:  sourceURI,
		TargetPath: targetPath,
		Shared:     shared,
	}
}

// DownloadCompleted is raised when a resource was written into the cache
type DownloadCompleted struct {
	BaseEvent
	JobID      string
	SourceURI  string
	TargetPath string
	Size       int64
	MimeType   string
	Duration   time.Duration
}

// EventName returns the event name
func (e DownloadCompleted) EventName() string {
	return NameDownloadCompleted
}

// NewDownloadCompleted creates a new DownloadCompleted event
func NewDownloadCompleted(jobID, sourceURI, targetPath string, size int64, mimeType string, duration time.Duration) DownloadCompleted {
	return DownloadCompleted{
		BaseEvent:  BaseEvent{Timestamp: time.Now()},
		JobID:      jobID,
		SourceURI:  sourceURI,
		TargetPath: targetPath,
		Size:       size,
		MimeType:   mimeType,
		Duration:   duration,
	}
}

// DownloadFailed is raised when a job ends without a cache entry
type DownloadFailed struct {
	BaseEvent
	JobID        string
	SourceURI    string
	TargetPath   string
	BytesWritten int64
	Err          error
	Canceled     bool
	Duration     time.Duration
}

// EventName returns the event name
func (e DownloadFailed) EventName() string {
	return NameDownloadFailed
}

// NewDownloadFailed creates a new DownloadFailed event
func NewDownloadFailed(jobID, sourceURI, targetPath string, bytesWritten int64, err error, canceled bool, duration time.Duration) DownloadFailed {
	return DownloadFailed{
		BaseEvent:    BaseEvent{Timestamp: time.Now()},
		JobID:        jobID,
		SourceURI:    sourceURI,
		TargetPath:   targetPath,
		BytesWritten: bytesWritten,
		Err:          err,
		Canceled:     canceled,
		Duration:     duration,
	}
}

// SourceResolved is raised when a coordinator settles on a render mode
type SourceResolved struct {
	BaseEvent
	Source string
	Mode   string
	Path   string
}

// EventName returns the event name
func (e SourceResolved) EventName() string {
	return NameSourceResolved
}

// NewSourceResolved creates a new SourceResolved event
func NewSourceResolved(source, mode, path string) SourceResolved {
	return SourceResolved{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		Source:    source,
		Mode:      mode,
		Path:      path,
	}
}
