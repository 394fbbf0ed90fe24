package domain

import "time"

// Job status constants
const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCanceled  = "canceled"
)

// DownloadJob is a single transfer of a remote resource into the cache
type DownloadJob struct {
	ID         string
	SourceURI  string
	TargetPath string

	// Progress
	BytesWritten  int64
	ContentLength int64

	// Outcome
	Status    string
	MimeType  string
	LastError string

	StartedAt  time.Time
	FinishedAt *time.Time
}

// IsActive returns true while the job has not reached a terminal status
func (j *DownloadJob) IsActive() bool {
	return j.Status == "" || j.Status == JobStatusRunning
}

// MarkCompleted records a successful transfer
func (j *DownloadJob) MarkCompleted(size int64, mimeType string) {
	j.Status = JobStatusCompleted
	j.BytesWritten = size
	j.MimeType = mimeType
	j.finish()
}

// MarkFailed records a failed or canceled transfer
func (j *DownloadJob) MarkFailed(err error, canceled bool) {
	j.Status = JobStatusFailed
	if canceled {
		j.Status = JobStatusCanceled
	}
	if err != nil {
		j.LastError = err.Error()
	}
	j.finish()
}

// Duration returns how long the job ran, or has been running
func (j *DownloadJob) Duration() time.Duration {
	if j.FinishedAt != nil {
		return j.FinishedAt.Sub(j.StartedAt)
	}
	return time.Since(j.StartedAt)
}

func (j *DownloadJob) finish() {
	now := time.Now()
	j.FinishedAt = &now
}

// JobStats summarizes the download history
type JobStats struct {
	CompletedCount int64
	FailedCount    int64
	CanceledCount  int64
	BytesFetched   int64
}
