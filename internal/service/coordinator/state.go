package coordinator

import (
	"github.com/vertextoedge/cacheable-image/internal/domain"
	"github.com/vertextoedge/cacheable-image/internal/domain/vo"
)

// Phase is the position of a coordinator in its lifecycle
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseLocal
	PhaseRemoteChecking
	PhaseRemoteDownloading
	PhaseRemoteCached
	PhaseRemoteFailed
)

// String returns the phase name
func (p Phase) String() string {
	switch p {
	case PhaseLocal:
		return "local"
	case PhaseRemoteChecking:
		return "remote_checking"
	case PhaseRemoteDownloading:
		return "remote_downloading"
	case PhaseRemoteCached:
		return "remote_cached"
	case PhaseRemoteFailed:
		return "remote_failed"
	default:
		return "uninitialized"
	}
}

// Terminal reports whether the pipeline has nothing left to do
func (p Phase) Terminal() bool {
	return p == PhaseLocal || p == PhaseRemoteCached || p == PhaseRemoteFailed
}

// State is an immutable snapshot of a coordinator.
//
// Invariants: Downloading implies JobID != ""; !Cacheable implies
// CachedImagePath == "".
type State struct {
	Generation uint64
	Phase      Phase
	Source     domain.ImageSource
	Key        vo.CacheKey

	IsRemote        bool
	CachedImagePath string
	Downloading     bool
	Cacheable       bool
	JobID           string

	BytesWritten  int64
	ContentLength int64
	Err           error
}

// Action is an input to Reduce. Every action except SourceSet belongs to
// the pipeline generation that produced it.
type Action interface {
	generation() uint64
}

// SourceSet starts a new pipeline generation for Source.
// KeyErr is set when a remote source could not be turned into a cache key.
type SourceSet struct {
	Gen    uint64
	Source domain.ImageSource
	Key    vo.CacheKey
	KeyErr error
}

// Probed carries the result of checking the cache
type Probed struct {
	Gen    uint64
	Result domain.ProbeResult
}

// DownloadBegan records the job started for a miss or corrupt hit
type DownloadBegan struct {
	Gen   uint64
	JobID string
}

// DownloadProgressed records transfer progress
type DownloadProgressed struct {
	Gen           uint64
	BytesWritten  int64
	ContentLength int64
}

// DownloadCompleted reports the entry was written to Path
type DownloadCompleted struct {
	Gen  uint64
	Path string
}

// DownloadFailed reports the job ended without an entry
type DownloadFailed struct {
	Gen uint64
	Err error
}

func (a SourceSet) generation() uint64          { return a.Gen }
func (a Probed) generation() uint64             { return a.Gen }
func (a DownloadBegan) generation() uint64      { return a.Gen }
func (a DownloadProgressed) generation() uint64 { return a.Gen }
func (a DownloadCompleted) generation() uint64  { return a.Gen }
func (a DownloadFailed) generation() uint64     { return a.Gen }

// Reduce returns the state that follows s after a. Actions from another
// generation, or that do not apply to the current phase, leave s unchanged.
func Reduce(s State, a Action) State {
	next, _ := step(s, a)
	return next
}

// step is Reduce that also reports whether the action was applied
func step(s State, a Action) (State, bool) {
	if set, ok := a.(SourceSet); ok {
		if set.Gen <= s.Generation {
			return s, false
		}
		return reduceSourceSet(set), true
	}
	if a.generation() != s.Generation {
		return s, false
	}

	switch a := a.(type) {
	case Probed:
		if s.Phase != PhaseRemoteChecking {
			return s, false
		}
		if a.Result.Kind == domain.ProbeHit {
			return cached(s, a.Result.Path), true
		}
		// Corrupt hits and unreadable entries are refetched
		s.Phase = PhaseRemoteDownloading
		s.Err = a.Result.Err
		return s, true

	case DownloadBegan:
		if s.Phase != PhaseRemoteDownloading || a.JobID == "" {
			return s, false
		}
		s.JobID = a.JobID
		s.Downloading = true
		s.BytesWritten = 0
		s.ContentLength = -1
		return s, true

	case DownloadProgressed:
		if s.Phase != PhaseRemoteDownloading {
			return s, false
		}
		// Reaching the full length is advisory; only Completed caches.
		s.BytesWritten = a.BytesWritten
		s.ContentLength = a.ContentLength
		return s, true

	case DownloadCompleted:
		if s.Phase != PhaseRemoteDownloading {
			return s, false
		}
		return cached(s, a.Path), true

	case DownloadFailed:
		if s.Phase != PhaseRemoteDownloading && s.Phase != PhaseRemoteChecking {
			return s, false
		}
		return failed(s, a.Err), true
	}
	return s, false
}

func reduceSourceSet(a SourceSet) State {
	s := State{
		Generation:    a.Gen,
		Source:        a.Source,
		ContentLength: -1,
	}

	if !a.Source.IsRemote() {
		s.Phase = PhaseLocal
		return s
	}

	s.IsRemote = true
	if a.KeyErr != nil {
		return failed(s, a.KeyErr)
	}
	s.Key = a.Key
	s.Phase = PhaseRemoteChecking
	return s
}

func cached(s State, path string) State {
	s.Phase = PhaseRemoteCached
	s.Cacheable = true
	s.CachedImagePath = path
	s.Downloading = false
	s.JobID = ""
	s.Err = nil
	return s
}

func failed(s State, err error) State {
	s.Phase = PhaseRemoteFailed
	s.Cacheable = false
	s.CachedImagePath = ""
	s.Downloading = false
	s.JobID = ""
	s.Err = err
	return s
}
