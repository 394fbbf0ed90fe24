package cacher

import (
	"sync"
)

// EventKind identifies a download lifecycle notification
type EventKind int

const (
	EventBegan EventKind = iota
	EventProgress
	EventCompleted
	EventFailed
)

// String returns the event kind name
func (k EventKind) String() string {
	switch k {
	case EventBegan:
		return "began"
	case EventProgress:
		return "progress"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Progress reports how much of a transfer has been written
type Progress struct {
	BytesWritten  int64
	ContentLength int64 // -1 when unknown
}

// Complete reports whether every expected byte has been written.
// An unknown length is never complete; an empty body always is.
func (p Progress) Complete() bool {
	if p.ContentLength < 0 {
		return false
	}
	return p.ContentLength == 0 || p.BytesWritten == p.ContentLength
}

// Ratio returns the completed fraction in [0, 1], or 0 when the length is unknown
func (p Progress) Ratio() float64 {
	switch {
	case p.ContentLength == 0:
		return 1
	case p.ContentLength < 0:
		return 0
	}
	r := float64(p.BytesWritten) / float64(p.ContentLength)
	if r > 1 {
		return 1
	}
	return r
}

// Event is a notification delivered on a Job's event channel
type Event struct {
	Kind     EventKind
	JobID    string
	Progress Progress

	// Set on EventCompleted
	Path     string
	Size     int64
	MimeType string

	// Set on EventFailed
	Err error
}

// jobBuffer is the event channel capacity. One slot is always kept free
// for the terminal event so finishing a job never blocks.
const jobBuffer = 16

// Job is one caller's view of a download. Several jobs may share a
// single transfer when they target the same path.
type Job struct {
	id         string
	sourceURI  string
	targetPath string
	flight     *flight

	mu       sync.Mutex
	events   chan Event
	finished bool
	stopWait func() bool
}

func newJob(id, sourceURI, targetPath string) *Job {
	return &Job{
		id:         id,
		sourceURI:  sourceURI,
		targetPath: targetPath,
		events:     make(chan Event, jobBuffer),
	}
}

// ID returns the job identifier
func (j *Job) ID() string {
	return j.id
}

// SourceURI returns the remote URI being fetched
func (j *Job) SourceURI() string {
	return j.sourceURI
}

// TargetPath returns the cache path being written
func (j *Job) TargetPath() string {
	return j.targetPath
}

// Events returns the job's notifications: EventBegan, zero or more
// EventProgress, then exactly one EventCompleted or EventFailed, after which
// the channel is closed. Progress is dropped when the consumer falls behind.
func (j *Job) Events() <-chan Event {
	return j.events
}

// notify delivers a progress event unless the buffer is full
func (j *Job) notify(ev Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished || len(j.events) >= cap(j.events)-1 {
		return
	}
	ev.JobID = j.id
	j.events <- ev
}

// finish delivers the terminal event and closes the channel.
// Returns false if the job had already finished.
func (j *Job) finish(ev Event) bool {
	j.mu.Lock()
	if j.finished {
		j.mu.Unlock()
		return false
	}
	j.finished = true
	ev.JobID = j.id
	j.events <- ev
	close(j.events)
	stop := j.stopWait
	j.mu.Unlock()

	if stop != nil {
		stop()
	}
	return true
}
