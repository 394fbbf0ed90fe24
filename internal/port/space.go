package port

// SpaceCheckResult contains detailed space availability information
type SpaceCheckResult struct {
	HasSpace           bool
	AvailableBytes     int64 // -1 when the cache size is unlimited
	CacheSizeBytes     int64
	MaxCacheSizeBytes  int64
	DiskUsedPct        float64
	MaxDiskUsagePct    float64
	LimitedByCacheSize bool
	LimitedByDiskUsage bool
}

// SpaceManager decides whether a download may be written into the cache.
// Nothing is ever evicted to make room; a download that does not fit fails.
type SpaceManager interface {
	// CheckSpace checks if there's enough space for a file of the given size
	// and returns detailed information about space availability
	CheckSpace(fileSize int64) (*SpaceCheckResult, error)

	// HasSpace returns true if there's enough space for the given file size
	HasSpace(fileSize int64) (bool, error)
}
