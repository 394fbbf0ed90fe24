package repository

import (
	"time"

	"github.com/vertextoedge/cacheable-image/internal/domain"
)

// JobRepository defines the interface for the download job history
type JobRepository interface {
	// RecordJob inserts or updates a job by its ID
	RecordJob(job *domain.DownloadJob) error

	// GetJob retrieves a job by ID
	// Returns nil if the job is unknown
	GetJob(id string) (*domain.DownloadJob, error)

	// GetJobStats returns download history statistics
	GetJobStats() (*domain.JobStats, error)

	// CleanupOldJobs removes finished jobs older than the specified duration
	CleanupOldJobs(olderThan time.Duration) (int, error)
}
