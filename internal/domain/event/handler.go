package event

import (
	"errors"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/vertextoedge/cacheable-image/internal/domain"
	"github.com/vertextoedge/cacheable-image/internal/domain/repository"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case CacheProbed:
		fields := []zap.Field{
			zap.String("path", e.Path),
			zap.String("result", e.Result),
			zap.Int64("size", e.Size),
		}
		if e.Err != nil {
			h.logger.Warn("cache probe failed, treating as miss", append(fields, zap.Error(e.Err))...)
			return nil
		}
		h.logger.Debug("cache probed", fields...)
	case DownloadBegan:
		h.logger.Debug("download began",
			zap.String("job_id", e.JobID),
			zap.String("uri", e.SourceURI),
			zap.String("target", e.TargetPath),
			zap.Bool("shared", e.Shared),
		)
	case DownloadCompleted:
		h.logger.Info("image cached",
			zap.String("job_id", e.JobID),
			zap.String("uri", e.SourceURI),
			zap.String("path", e.TargetPath),
			zap.String("size", humanize.Bytes(uint64(e.Size))),
			zap.String("mime_type", e.MimeType),
			zap.Duration("duration", e.Duration),
		)
	case DownloadFailed:
		if e.Canceled {
			h.logger.Debug("download canceled",
				zap.String("job_id", e.JobID),
				zap.String("uri", e.SourceURI),
				zap.Int64("bytes_written", e.BytesWritten),
			)
			return nil
		}
		fields := []zap.Field{
			zap.String("job_id", e.JobID),
			zap.String("uri", e.SourceURI),
			zap.Int64("bytes_written", e.BytesWritten),
			zap.Duration("duration", e.Duration),
			zap.Error(e.Err),
		}
		if after, ok := domain.GetRetryAfter(e.Err); ok {
			fields = append(fields, zap.Bool("retryable", true), zap.Duration("retry_after", after))
		}
		h.logger.Warn("download failed", fields...)
	case SourceResolved:
		h.logger.Debug("source resolved",
			zap.String("source", e.Source),
			zap.String("mode", e.Mode),
			zap.String("path", e.Path),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *LoggingHandler) HandledEvents() []string {
	return []string{"*"}
}

// IndexHandler keeps the cache index and job history in sync with downloads
type IndexHandler struct {
	entries repository.EntryRepository
	jobs    repository.JobRepository
}

// NewIndexHandler creates a new IndexHandler
func NewIndexHandler(entries repository.EntryRepository, jobs repository.JobRepository) *IndexHandler {
	return &IndexHandler{entries: entries, jobs: jobs}
}

// Handle records completed entries and job outcomes
func (h *IndexHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case DownloadBegan:
		return h.jobs.RecordJob(&domain.DownloadJob{
			ID:         e.JobID,
			SourceURI:  e.SourceURI,
			TargetPath: e.TargetPath,
			Status:     domain.JobStatusRunning,
			StartedAt:  e.Timestamp,
		})
	case DownloadCompleted:
		job := &domain.DownloadJob{
			ID:         e.JobID,
			SourceURI:  e.SourceURI,
			TargetPath: e.TargetPath,
			StartedAt:  e.Timestamp.Add(-e.Duration),
		}
		job.MarkCompleted(e.Size, e.MimeType)

		entryErr := h.entries.UpsertEntry(&domain.CacheEntry{
			SourceURI: e.SourceURI,
			Directory: filepath.Base(filepath.Dir(e.TargetPath)),
			FileName:  filepath.Base(e.TargetPath),
			Path:      e.TargetPath,
			Size:      e.Size,
			MimeType:  e.MimeType,
			CreatedAt: e.Timestamp,
			UpdatedAt: e.Timestamp,
		})
		return errors.Join(entryErr, h.jobs.RecordJob(job))
	case DownloadFailed:
		job := &domain.DownloadJob{
			ID:           e.JobID,
			SourceURI:    e.SourceURI,
			TargetPath:   e.TargetPath,
			BytesWritten: e.BytesWritten,
			StartedAt:    e.Timestamp.Add(-e.Duration),
		}
		job.MarkFailed(e.Err, e.Canceled)
		return h.jobs.RecordJob(job)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *IndexHandler) HandledEvents() []string {
	return []string{
		NameDownloadBegan,
		NameDownloadCompleted,
		NameDownloadFailed,
	}
}
