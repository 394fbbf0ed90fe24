package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/cacheable-image/internal/port"
)

// reconcilePageSize is how many index rows are checked per query
const reconcilePageSize = 500

// Config contains maintenance service configuration
type Config struct {
	// CleanupInterval is how often temp files and job history are pruned
	CleanupInterval time.Duration

	// ReconcileInterval is how often the index is checked against the disk
	ReconcileInterval time.Duration

	// TempFileMaxAge is the maximum age of temp files before cleanup
	TempFileMaxAge time.Duration

	// JobHistoryMaxAge is the maximum age of finished jobs before cleanup
	JobHistoryMaxAge time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		CleanupInterval:   time.Hour,
		ReconcileInterval: 6 * time.Hour,
		TempFileMaxAge:    24 * time.Hour,
		JobHistoryMaxAge:  7 * 24 * time.Hour,
	}
}

// emptyDirCleaner is implemented by filesystems that can drop empty host
// directories
type emptyDirCleaner interface {
	CleanEmptyDirs() error
}

// Service handles periodic maintenance tasks. It never removes valid cache
// entries; it only clears leftovers of interrupted downloads and keeps the
// index honest.
type Service struct {
	config  *Config
	entries port.EntryRepository
	jobs    port.JobRepository
	fs      port.FileSystem
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service
func New(cfg *Config, entries port.EntryRepository, jobs port.JobRepository, fs port.FileSystem, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	defaults := DefaultConfig()
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = defaults.CleanupInterval
	}
	if cfg.ReconcileInterval == 0 {
		cfg.ReconcileInterval = defaults.ReconcileInterval
	}
	if cfg.TempFileMaxAge == 0 {
		cfg.TempFileMaxAge = defaults.TempFileMaxAge
	}
	if cfg.JobHistoryMaxAge == 0 {
		cfg.JobHistoryMaxAge = defaults.JobHistoryMaxAge
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config:  cfg,
		entries: entries,
		jobs:    jobs,
		fs:      fs,
		logger:  logger,
	}
}

// Start runs maintenance until ctx is cancelled or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("cleanup_interval", s.config.CleanupInterval),
		zap.Duration("reconcile_interval", s.config.ReconcileInterval))

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

// RunOnce performs every maintenance task a single time
func (s *Service) RunOnce(ctx context.Context) {
	s.cleanupTempFiles()
	s.cleanupJobHistory()
	s.reconcileIndex(ctx)
	s.cleanupEmptyDirs()
}

// maintenanceLoop handles periodic maintenance tasks
func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	cleanupTicker := time.NewTicker(s.config.CleanupInterval)
	defer cleanupTicker.Stop()

	reconcileTicker := time.NewTicker(s.config.ReconcileInterval)
	defer reconcileTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanupTicker.C:
			s.cleanupTempFiles()
			s.cleanupJobHistory()
		case <-reconcileTicker.C:
			s.reconcileIndex(ctx)
			s.cleanupEmptyDirs()
		}
	}
}

// cleanupTempFiles removes temp files left by interrupted downloads
func (s *Service) cleanupTempFiles() {
	fileCount, err := s.fs.CleanOldTempFiles(s.config.TempFileMaxAge)
	if err != nil {
		s.logger.Error("failed to cleanup old temp files", zap.Error(err))
	} else if fileCount > 0 {
		s.logger.Info("cleaned up old temp files from filesystem", zap.Int("count", fileCount))
	}
}

// cleanupJobHistory removes old finished jobs
func (s *Service) cleanupJobHistory() {
	cleared, err := s.jobs.CleanupOldJobs(s.config.JobHistoryMaxAge)
	if err != nil {
		s.logger.Error("failed to cleanup job history", zap.Error(err))
	} else if cleared > 0 {
		s.logger.Info("cleaned up old download jobs", zap.Int("count", cleared))
	}
}

// reconcileIndex drops index rows whose files no longer exist.
// Stale rows are collected first so deletes do not shift the pages.
func (s *Service) reconcileIndex(ctx context.Context) {
	var stale []int64
	for offset := 0; ; offset += reconcilePageSize {
		if ctx.Err() != nil {
			return
		}
		page, err := s.entries.ListEntries(reconcilePageSize, offset)
		if err != nil {
			s.logger.Error("failed to list cache entries", zap.Error(err))
			return
		}
		for _, e := range page {
			if !s.fs.FileExists(e.Path) {
				stale = append(stale, e.ID)
			}
		}
		if len(page) < reconcilePageSize {
			break
		}
	}

	removed := 0
	for _, id := range stale {
		if err := s.entries.DeleteEntry(id); err != nil {
			s.logger.Warn("failed to delete stale index entry", zap.Int64("id", id), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("removed index entries for missing files", zap.Int("count", removed))
	}
}

// cleanupEmptyDirs removes host directories left empty
func (s *Service) cleanupEmptyDirs() {
	cleaner, ok := s.fs.(emptyDirCleaner)
	if !ok {
		return
	}
	if err := cleaner.CleanEmptyDirs(); err != nil {
		s.logger.Warn("failed to cleanup empty directories", zap.Error(err))
	}
}
