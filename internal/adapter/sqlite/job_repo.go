package sqlite

import (
	"database/sql"
	"time"

	"github.com/vertextoedge/cacheable-image/internal/domain"
)

// RecordJob inserts or updates a job by its ID.
// A running record never overwrites a finished one.
func (s *Store) RecordJob(job *domain.DownloadJob) error {
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now()
	}
	status := job.Status
	if status == "" {
		status = domain.JobStatusRunning
	}

	var finishedAt sql.NullTime
	if job.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: job.FinishedAt.UTC(), Valid: true}
	}

	query := `
		INSERT INTO download_jobs (
			id, source_uri, target_path, bytes_written, content_length,
			status, mime_type, last_error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			bytes_written = excluded.bytes_written,
			content_length = excluded.content_length,
			status = excluded.status,
			mime_type = excluded.mime_type,
			last_error = excluded.last_error,
			finished_at = excluded.finished_at
		WHERE download_jobs.status = 'running'
	`

	_, err := s.db.Exec(query,
		job.ID, job.SourceURI, job.TargetPath, job.BytesWritten, job.ContentLength,
		status, job.MimeType, job.LastError, job.StartedAt.UTC(), finishedAt,
	)
	return err
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(id string) (*domain.DownloadJob, error) {
	query := `
		SELECT id, source_uri, target_path, bytes_written, content_length,
			   status, mime_type, last_error, started_at, finished_at
		FROM download_jobs
		WHERE id = ?
	`

	job := &domain.DownloadJob{}
	var finishedAt sql.NullTime

	err := s.db.QueryRow(query, id).Scan(
		&job.ID, &job.SourceURI, &job.TargetPath, &job.BytesWritten, &job.ContentLength,
		&job.Status, &job.MimeType, &job.LastError, &job.StartedAt, &finishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	return job, nil
}

// GetJobStats returns download history statistics
func (s *Store) GetJobStats() (*domain.JobStats, error) {
	stats := &domain.JobStats{}

	rows, err := s.db.Query(
		"SELECT status, COUNT(*), COALESCE(SUM(bytes_written), 0) FROM download_jobs GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count, bytes int64
		if err := rows.Scan(&status, &count, &bytes); err != nil {
			return nil, err
		}
		switch status {
		case domain.JobStatusCompleted:
			stats.CompletedCount = count
			stats.BytesFetched = bytes
		case domain.JobStatusFailed:
			stats.FailedCount = count
		case domain.JobStatusCanceled:
			stats.CanceledCount = count
		}
	}
	return stats, rows.Err()
}

// CleanupOldJobs removes finished jobs older than the specified duration
func (s *Store) CleanupOldJobs(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UTC()

	result, err := s.db.Exec(
		"DELETE FROM download_jobs WHERE status != 'running' AND finished_at IS NOT NULL AND finished_at < ?",
		cutoff)
	if err != nil {
		return 0, err
	}

	count, err := result.RowsAffected()
	return int(count), err
}
