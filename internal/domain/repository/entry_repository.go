package repository

import (
	"github.com/vertextoedge/cacheable-image/internal/domain"
)

// EntryRepository defines the interface for the cache entry index
type EntryRepository interface {
	// UpsertEntry records a cache entry, replacing any row with the same path
	UpsertEntry(entry *domain.CacheEntry) error

	// GetEntryByPath retrieves an entry by its absolute path
	// Returns nil if no entry exists
	GetEntryByPath(path string) (*domain.CacheEntry, error)

	// ListEntries returns entries ordered by most recent first
	ListEntries(limit, offset int) ([]*domain.CacheEntry, error)

	// DeleteEntry removes an entry by ID
	DeleteEntry(id int64) error

	// GetCacheStats returns index statistics
	GetCacheStats() (*domain.CacheStats, error)
}
