package sqlite

import (
	"database/sql"
	"time"

	"github.com/vertextoedge/cacheable-image/internal/domain"
)

// UpsertEntry records a cache entry, replacing any row with the same path
func (s *Store) UpsertEntry(entry *domain.CacheEntry) error {
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = now
	}

	query := `
		INSERT INTO cache_entries (
			source_uri, directory, file_name, path, size, mime_type, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			source_uri = excluded.source_uri,
			size = excluded.size,
			mime_type = excluded.mime_type,
			updated_at = excluded.updated_at
		RETURNING id
	`

	return s.db.QueryRow(query,
		entry.SourceURI, entry.Directory, entry.FileName, entry.Path,
		entry.Size, entry.MimeType, entry.CreatedAt.UTC(), entry.UpdatedAt.UTC(),
	).Scan(&entry.ID)
}

// GetEntryByPath retrieves an entry by its absolute path
func (s *Store) GetEntryByPath(path string) (*domain.CacheEntry, error) {
	query := `
		SELECT id, source_uri, directory, file_name, path, size, mime_type, created_at, updated_at
		FROM cache_entries
		WHERE path = ?
	`

	entry, err := scanEntry(s.db.QueryRow(query, path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListEntries returns entries ordered by most recent first
func (s *Store) ListEntries(limit, offset int) ([]*domain.CacheEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, source_uri, directory, file_name, path, size, mime_type, created_at, updated_at
		FROM cache_entries
		ORDER BY updated_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.Query(query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.CacheEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteEntry removes an entry by ID
func (s *Store) DeleteEntry(id int64) error {
	_, err := s.db.Exec("DELETE FROM cache_entries WHERE id = ?", id)
	return err
}

// GetCacheStats returns index statistics
func (s *Store) GetCacheStats() (*domain.CacheStats, error) {
	stats := &domain.CacheStats{}
	var totalBytes sql.NullInt64

	err := s.db.QueryRow(
		"SELECT COUNT(*), SUM(size), COUNT(DISTINCT directory) FROM cache_entries",
	).Scan(&stats.TotalEntries, &totalBytes, &stats.Directories)
	if err != nil {
		return nil, err
	}
	stats.TotalBytes = totalBytes.Int64

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*domain.CacheEntry, error) {
	entry := &domain.CacheEntry{}
	err := row.Scan(
		&entry.ID, &entry.SourceURI, &entry.Directory, &entry.FileName, &entry.Path,
		&entry.Size, &entry.MimeType, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return entry, nil
}
