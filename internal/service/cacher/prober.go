package cacher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/vertextoedge/cacheable-image/internal/domain"
	"github.com/vertextoedge/cacheable-image/internal/domain/event"
	"github.com/vertextoedge/cacheable-image/internal/domain/vo"
	"github.com/vertextoedge/cacheable-image/internal/port"
)

// DefaultMinValidSize is the smallest file accepted as a valid cache entry.
// Anything shorter is treated as a truncated download.
const DefaultMinValidSize = 100

// Prober inspects the cache for an existing entry. It never modifies the filesystem.
type Prober struct {
	fs           port.FileSystem
	minValidSize int64
	dispatcher   event.EventDispatcher
}

// NewProber creates a new Prober. A minValidSize <= 0 uses DefaultMinValidSize.
func NewProber(fs port.FileSystem, minValidSize int64, dispatcher event.EventDispatcher) *Prober {
	if minValidSize <= 0 {
		minValidSize = DefaultMinValidSize
	}
	if dispatcher == nil {
		dispatcher = event.NewNullDispatcher()
	}
	return &Prober{
		fs:           fs,
		minValidSize: minValidSize,
		dispatcher:   dispatcher,
	}
}

// MinValidSize returns the size threshold below which entries are corrupt
func (p *Prober) MinValidSize() int64 {
	return p.minValidSize
}

// Probe classifies the entry for key as a hit, a corrupt hit or a miss.
// Filesystem errors never fail the probe; they yield a miss with Err set.
func (p *Prober) Probe(ctx context.Context, key vo.CacheKey) domain.ProbeResult {
	result := p.probe(ctx, p.fs.EntryPath(key))
	p.dispatcher.Dispatch(event.NewCacheProbed(result.Path, result.Kind.String(), result.Size, result.Err))
	return result
}

func (p *Prober) probe(ctx context.Context, path string) domain.ProbeResult {
	result := domain.ProbeResult{Kind: domain.ProbeMiss, Path: path}

	if err := ctx.Err(); err != nil {
		result.Err = fmt.Errorf("%w: %w", domain.ErrProbe, err)
		return result
	}

	info, err := p.fs.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			result.Err = fmt.Errorf("%w: %w", domain.ErrProbe, err)
		}
		return result
	}
	if !info.IsRegular {
		return result
	}

	result.Size = info.Size
	if info.Size < p.minValidSize {
		result.Kind = domain.ProbeCorruptHit
		return result
	}
	result.Kind = domain.ProbeHit
	return result
}
