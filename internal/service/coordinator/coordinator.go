package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vertextoedge/cacheable-image/internal/domain"
	"github.com/vertextoedge/cacheable-image/internal/domain/event"
	"github.com/vertextoedge/cacheable-image/internal/domain/vo"
	"github.com/vertextoedge/cacheable-image/internal/service/cacher"
)

// ErrClosed is returned by Wait once the coordinator has been closed
var ErrClosed = errors.New("coordinator closed")

// Prober classifies the cache entry for a key
type Prober interface {
	Probe(ctx context.Context, key vo.CacheKey) domain.ProbeResult
}

// Downloader starts and stops download jobs
type Downloader interface {
	Download(ctx context.Context, sourceURI, targetPath string) *cacher.Job
	Stop(jobID string) error
}

// Paths maps cache keys to entry paths
type Paths interface {
	EntryPath(key vo.CacheKey) string
}

// Coordinator drives one image source through probe and download and
// resolves what should be rendered. SetSource never blocks; the pipeline
// runs on its own goroutine and feeds actions back through Reduce.
type Coordinator struct {
	prober     Prober
	downloader Downloader
	paths      Paths
	dispatcher event.EventDispatcher
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         State
	closed        bool
	changed       chan struct{}
	subscribers   []func(State)
	defaultSource *domain.ImageSource
	child         *Coordinator

	// states waiting to be delivered to subscribers, in transition order
	pending   []State
	notifying bool
}

// NewCoordinator creates a coordinator with no source set
func NewCoordinator(
	prober Prober,
	downloader Downloader,
	paths Paths,
	dispatcher event.EventDispatcher,
	logger *zap.Logger,
) *Coordinator {
	if dispatcher == nil {
		dispatcher = event.NewNullDispatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		prober:     prober,
		downloader: downloader,
		paths:      paths,
		dispatcher: dispatcher,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		state:      State{ContentLength: -1},
		changed:    make(chan struct{}),
	}
}

// SetSource starts resolving src, superseding any earlier source.
// A job started for an earlier source keeps running but can no longer
// change this coordinator's state. Setting the current source again is a
// no-op unless it failed, in which case it is resolved afresh.
func (c *Coordinator) SetSource(src domain.ImageSource) {
	action := SourceSet{Source: src}
	if src.IsRemote() {
		key, err := vo.DeriveCacheKey(src.URI)
		if err != nil {
			err = fmt.Errorf("%w: %w", domain.ErrMalformedSource, err)
		}
		action.Key, action.KeyErr = key, err
	} else if src.URI != "" {
		c.logger.Debug("source is not a usable remote uri, treating as local",
			zap.String("source", src.URI),
			zap.Error(src.Validate()))
	}

	c.mu.Lock()
	unchanged := c.state.Phase != PhaseUninitialized &&
		c.state.Phase != PhaseRemoteFailed &&
		c.state.Source == src
	if c.closed || unchanged {
		c.mu.Unlock()
		return
	}
	action.Gen = c.state.Generation + 1
	next := c.applyLocked(action)
	c.mu.Unlock()

	if next.Phase == PhaseRemoteChecking {
		go c.pipeline(next.Generation, src, next.Key)
	}
}

// SetDefaultSource sets the source rendered while the main source is not
// cached. Its coordinator is only created once it is needed.
func (c *Coordinator) SetDefaultSource(src domain.ImageSource) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if src.IsZero() {
		c.defaultSource = nil
	} else {
		c.defaultSource = &src
	}
	child := c.child
	c.mu.Unlock()

	if child != nil {
		if src.IsZero() {
			child.Close()
			c.mu.Lock()
			if c.child == child {
				c.child = nil
			}
			c.mu.Unlock()
			return
		}
		if child.State().Source != src {
			child.SetSource(src)
		}
	}
}

// State returns the current state snapshot
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RenderMode resolves what the presentation layer should draw
func (c *Coordinator) RenderMode() domain.RenderMode {
	c.mu.Lock()
	s := c.state
	hasDefault := c.defaultSource != nil
	c.mu.Unlock()

	switch {
	case s.Phase == PhaseUninitialized:
		// nothing to draw yet
	case !s.IsRemote && !s.Cacheable:
		asset := s.Source.Asset
		if asset == "" {
			asset = s.Source.URI
		}
		return domain.RenderMode{Kind: domain.RenderLocal, Asset: asset}
	case s.Cacheable && s.CachedImagePath != "":
		return domain.RenderMode{Kind: domain.RenderCached, Path: s.CachedImagePath}
	}

	if hasDefault {
		if child := c.defaultCoordinator(); child != nil {
			fallback := child.RenderMode()
			return domain.RenderMode{Kind: domain.RenderDefault, Fallback: &fallback}
		}
	}
	return domain.RenderMode{Kind: domain.RenderLoading}
}

// Subscribe registers fn to be called with every new state
func (c *Coordinator) Subscribe(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// Wait blocks until the current source reaches a terminal phase or ctx ends
func (c *Coordinator) Wait(ctx context.Context) (State, error) {
	for {
		c.mu.Lock()
		s, closed, changed := c.state, c.closed, c.changed
		c.mu.Unlock()

		if s.Phase.Terminal() {
			return s, nil
		}
		if closed {
			return s, ErrClosed
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return c.State(), ctx.Err()
		}
	}
}

// WaitAll waits for this coordinator and, if it falls back to one, the
// default-source coordinator
func (c *Coordinator) WaitAll(ctx context.Context) (domain.RenderMode, error) {
	s, err := c.Wait(ctx)
	if err != nil {
		return c.RenderMode(), err
	}
	if s.Phase != PhaseRemoteCached && s.Phase != PhaseLocal {
		if child := c.defaultCoordinator(); child != nil {
			if _, err := child.Wait(ctx); err != nil {
				return c.RenderMode(), err
			}
		}
	}
	return c.RenderMode(), nil
}

// Close stops the tracked download, if any, and freezes the state.
// Nothing is awaited.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	s := c.state
	child := c.child
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()

	c.cancel()

	if s.Downloading && s.JobID != "" {
		if err := c.downloader.Stop(s.JobID); err != nil && !errors.Is(err, domain.ErrJobNotFound) {
			c.logger.Warn("failed to stop download", zap.String("job_id", s.JobID), zap.Error(err))
		}
	}
	if child != nil {
		child.Close()
	}
}

// defaultCoordinator returns the default-source coordinator, creating it
// on first use
func (c *Coordinator) defaultCoordinator() *Coordinator {
	c.mu.Lock()
	if c.closed || c.defaultSource == nil {
		child := c.child
		c.mu.Unlock()
		return child
	}
	if c.child != nil {
		child := c.child
		c.mu.Unlock()
		return child
	}
	child := NewCoordinator(c.prober, c.downloader, c.paths, c.dispatcher, c.logger.With(zap.Bool("default_source", true)))
	c.child = child
	src := *c.defaultSource
	c.mu.Unlock()

	child.SetSource(src)
	return child
}

// pipeline probes the cache and downloads on a miss. Each step stops as
// soon as its generation has been superseded.
func (c *Coordinator) pipeline(gen uint64, src domain.ImageSource, key vo.CacheKey) {
	result := c.prober.Probe(c.ctx, key)
	if result.Err != nil {
		c.logger.Debug("cache probe failed, downloading again", zap.String("path", result.Path), zap.Error(result.Err))
	}
	if !c.apply(Probed{Gen: gen, Result: result}) || !result.NeedsDownload() {
		return
	}

	target := c.paths.EntryPath(key)
	job := c.downloader.Download(context.Background(), src.URI, target)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.downloader.Stop(job.ID())
		return
	}
	if c.state.Generation != gen {
		c.mu.Unlock()
		return
	}
	c.applyLocked(DownloadBegan{Gen: gen, JobID: job.ID()})
	c.mu.Unlock()

	for ev := range job.Events() {
		var ok bool
		switch ev.Kind {
		case cacher.EventBegan:
			continue
		case cacher.EventProgress:
			if ev.Progress.Complete() {
				c.logger.Debug("download reached content length",
					zap.String("job_id", job.ID()),
					zap.Int64("bytes", ev.Progress.BytesWritten))
			}
			ok = c.apply(DownloadProgressed{Gen: gen, BytesWritten: ev.Progress.BytesWritten, ContentLength: ev.Progress.ContentLength})
		case cacher.EventCompleted:
			ok = c.apply(DownloadCompleted{Gen: gen, Path: ev.Path})
		case cacher.EventFailed:
			ok = c.apply(DownloadFailed{Gen: gen, Err: ev.Err})
		}
		if !ok {
			return
		}
	}
}

// apply reduces a and reports whether the coordinator is still open and on
// the action's generation
func (c *Coordinator) apply(a Action) bool {
	c.mu.Lock()
	if c.closed || c.state.Generation != a.generation() {
		c.mu.Unlock()
		return false
	}
	c.applyLocked(a)
	c.mu.Unlock()
	return true
}

// applyLocked reduces a into the state and notifies observers.
// c.mu must be held; it is still held on return.
func (c *Coordinator) applyLocked(a Action) State {
	prev := c.state
	next, changed := step(prev, a)
	if !changed {
		return next
	}
	c.state = next

	close(c.changed)
	c.changed = make(chan struct{})

	if next.Phase.Terminal() && (next.Generation != prev.Generation || !prev.Phase.Terminal()) {
		c.dispatcher.Dispatch(event.NewSourceResolved(next.Source.String(), next.Phase.String(), next.CachedImagePath))
	}

	if len(c.subscribers) > 0 {
		c.pending = append(c.pending, next)
		if !c.notifying {
			c.notifying = true
			go c.notifyLoop()
		}
	}
	return next
}

// notifyLoop delivers pending states to subscribers outside the lock
func (c *Coordinator) notifyLoop() {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.notifying = false
			c.mu.Unlock()
			return
		}
		s := c.pending[0]
		c.pending = c.pending[1:]
		subs := append([]func(State){}, c.subscribers...)
		c.mu.Unlock()

		for _, fn := range subs {
			fn(s)
		}
	}
}
