package domain

import "time"

// CacheEntry is the index record of a file written into the cache
type CacheEntry struct {
	ID        int64
	SourceURI string
	Directory string
	FileName  string
	Path      string
	Size      int64
	MimeType  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CacheStats represents cache index statistics
type CacheStats struct {
	TotalEntries int64
	TotalBytes   int64
	Directories  int64
}
