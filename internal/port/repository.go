package port

import (
	"github.com/vertextoedge/cacheable-image/internal/domain/repository"
)

// EntryRepository is an alias to domain repository interface
type EntryRepository = repository.EntryRepository

// JobRepository is an alias to domain repository interface
type JobRepository = repository.JobRepository

// Store is an alias to domain repository interface
type Store = repository.Store
