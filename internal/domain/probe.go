package domain

// ProbeKind classifies what was found at a cache path
type ProbeKind int

const (
	// ProbeMiss means no usable entry exists (or it could not be inspected)
	ProbeMiss ProbeKind = iota
	// ProbeHit means a valid entry exists
	ProbeHit
	// ProbeCorruptHit means an entry exists but is too small to be valid content
	ProbeCorruptHit
)

// String returns the probe kind name
func (k ProbeKind) String() string {
	switch k {
	case ProbeHit:
		return "hit"
	case ProbeCorruptHit:
		return "corrupt_hit"
	default:
		return "miss"
	}
}

// ProbeResult is the outcome of checking the cache for a key
type ProbeResult struct {
	Kind ProbeKind
	Path string
	Size int64

	// Err is set when the filesystem query failed for a reason other than
	// the file not existing. The result is still a miss.
	Err error
}

// NeedsDownload returns true if the entry has to be (re)fetched
func (r ProbeResult) NeedsDownload() bool {
	return r.Kind != ProbeHit
}
