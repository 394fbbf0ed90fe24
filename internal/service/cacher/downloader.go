package cacher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vertextoedge/cacheable-image/internal/domain"
	"github.com/vertextoedge/cacheable-image/internal/domain/event"
	"github.com/vertextoedge/cacheable-image/internal/port"
	"github.com/vertextoedge/cacheable-image/internal/util/ratelimiter"
)

// sniffLen is how much of a body is inspected to detect its type
const sniffLen = 512

// DownloaderConfig contains downloader settings
type DownloaderConfig struct {
	ProgressInterval time.Duration // minimum gap between progress events
	MaxSizeBytes     int64         // 0 = unlimited
	RequireImage     bool          // reject bodies that do not sniff as image/*
	Dedupe           bool          // share one transfer between jobs for the same target
	Clock            func() time.Time
}

// Downloader fetches remote resources into the cache
type Downloader struct {
	fetcher    port.Fetcher
	fs         port.FileSystem
	space      port.SpaceManager
	dispatcher event.EventDispatcher
	logger     *zap.Logger
	cfg        DownloaderConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	jobs    map[string]*Job
	flights map[string]*flight
}

// flight is a single transfer shared by one or more jobs
type flight struct {
	sourceURI  string
	targetPath string
	ctx        context.Context
	cancel     context.CancelFunc
	limiter    *ratelimiter.Limiter
	startedAt  time.Time

	mu   sync.Mutex
	jobs map[string]*Job
	done bool
}

// NewDownloader creates a new Downloader. space may be nil.
func NewDownloader(
	fetcher port.Fetcher,
	fs port.FileSystem,
	space port.SpaceManager,
	dispatcher event.EventDispatcher,
	logger *zap.Logger,
	cfg DownloaderConfig,
) *Downloader {
	if dispatcher == nil {
		dispatcher = event.NewNullDispatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Downloader{
		fetcher:    fetcher,
		fs:         fs,
		space:      space,
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		jobs:       make(map[string]*Job),
		flights:    make(map[string]*flight),
	}
}

// Download starts fetching sourceURI into targetPath and returns immediately.
// The returned Job has already received EventBegan. When ctx ends the job is
// stopped as if Stop had been called.
func (d *Downloader) Download(ctx context.Context, sourceURI, targetPath string) *Job {
	job := newJob(uuid.NewString(), sourceURI, targetPath)
	job.notify(Event{Kind: EventBegan, Progress: Progress{ContentLength: -1}})

	d.mu.Lock()
	f, shared := d.flights[targetPath]
	if !shared || !d.cfg.Dedupe {
		shared = false
		f = d.newFlight(sourceURI, targetPath)
		if d.cfg.Dedupe {
			d.flights[targetPath] = f
		}
	}
	f.mu.Lock()
	f.jobs[job.id] = job
	f.mu.Unlock()
	job.flight = f
	d.jobs[job.id] = job
	d.mu.Unlock()

	d.dispatcher.Dispatch(event.NewDownloadBegan(job.id, sourceURI, targetPath, shared))

	if !shared {
		d.wg.Add(1)
		go d.run(f)
	}

	if ctx != nil {
		stop := context.AfterFunc(ctx, func() { d.Stop(job.id) })
		job.mu.Lock()
		if job.finished {
			job.mu.Unlock()
			stop()
		} else {
			job.stopWait = stop
			job.mu.Unlock()
		}
	}

	return job
}

// Stop detaches a job from its transfer and ends it with ErrDownloadCanceled.
// The transfer itself is cancelled once no job is attached to it.
func (d *Downloader) Stop(jobID string) error {
	d.mu.Lock()
	job, ok := d.jobs[jobID]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	delete(d.jobs, jobID)

	f := job.flight
	f.mu.Lock()
	delete(f.jobs, jobID)
	last := len(f.jobs) == 0 && !f.done
	if last {
		f.done = true
		if d.flights[f.targetPath] == f {
			delete(d.flights, f.targetPath)
		}
	}
	f.mu.Unlock()
	d.mu.Unlock()

	if last {
		f.cancel()
	}

	d.dispatcher.Dispatch(event.NewDownloadFailed(
		job.id, job.sourceURI, job.targetPath, 0, domain.ErrDownloadCanceled, true, d.cfg.Clock().Sub(f.startedAt)))
	job.finish(Event{Kind: EventFailed, Err: domain.ErrDownloadCanceled})
	return nil
}

// ActiveJobs returns the number of jobs still attached to a transfer
func (d *Downloader) ActiveJobs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.jobs)
}

// Close cancels every transfer and waits for them to finish
func (d *Downloader) Close() {
	d.cancel()
	d.wg.Wait()
}

func (d *Downloader) newFlight(sourceURI, targetPath string) *flight {
	ctx, cancel := context.WithCancel(d.ctx)
	return &flight{
		sourceURI:  sourceURI,
		targetPath: targetPath,
		ctx:        ctx,
		cancel:     cancel,
		limiter:    ratelimiter.NewWithClock(d.cfg.ProgressInterval, d.cfg.Clock),
		startedAt:  d.cfg.Clock(),
		jobs:       make(map[string]*Job),
	}
}

// run performs the transfer and delivers the outcome to every attached job
func (d *Downloader) run(f *flight) {
	defer d.wg.Done()
	defer f.cancel()

	size, mimeType, err := d.transfer(f)
	if err != nil && !errors.Is(err, domain.ErrDownloadCanceled) {
		d.logger.Debug("transfer failed",
			zap.String("uri", f.sourceURI),
			zap.String("path", f.targetPath),
			zap.Error(err))
	}

	d.mu.Lock()
	f.mu.Lock()
	f.done = true
	jobs := make([]*Job, 0, len(f.jobs))
	for id, j := range f.jobs {
		jobs = append(jobs, j)
		delete(d.jobs, id)
	}
	f.jobs = nil
	if d.flights[f.targetPath] == f {
		delete(d.flights, f.targetPath)
	}
	f.mu.Unlock()
	d.mu.Unlock()

	// Domain events go out before the job channel closes so handlers have
	// seen the outcome by the time a consumer observes it.
	duration := d.cfg.Clock().Sub(f.startedAt)
	for _, j := range jobs {
		if err != nil {
			canceled := errors.Is(err, domain.ErrDownloadCanceled)
			d.dispatcher.Dispatch(event.NewDownloadFailed(j.id, f.sourceURI, f.targetPath, size, err, canceled, duration))
			j.finish(Event{Kind: EventFailed, Err: err})
			continue
		}
		d.dispatcher.Dispatch(event.NewDownloadCompleted(j.id, f.sourceURI, f.targetPath, size, mimeType, duration))
		j.finish(Event{
			Kind:     EventCompleted,
			Progress: Progress{BytesWritten: size, ContentLength: size},
			Path:     f.targetPath,
			Size:     size,
			MimeType: mimeType,
		})
	}
}

// transfer fetches the body and commits it to the target path.
// Returns bytes written, sniffed mime type and error.
func (d *Downloader) transfer(f *flight) (int64, string, error) {
	if err := d.fs.EnsureDir(f.targetPath); err != nil {
		return 0, "", err
	}

	resp, err := d.fetcher.Fetch(f.ctx, f.sourceURI)
	if err != nil {
		return 0, "", d.classify(f, err)
	}
	defer resp.Body.Close()

	length := resp.ContentLength
	if d.cfg.MaxSizeBytes > 0 && length > d.cfg.MaxSizeBytes {
		return 0, "", fmt.Errorf("%w: %d bytes (max %d)", domain.ErrFileTooLarge, length, d.cfg.MaxSizeBytes)
	}

	if d.space != nil {
		need := length
		if need < 0 {
			need = 0
		}
		check, err := d.space.CheckSpace(need)
		if err != nil {
			return 0, "", fmt.Errorf("space check failed: %w", err)
		}
		if !check.HasSpace {
			return 0, "", fmt.Errorf("%w: cache %d bytes, disk %.1f%% used",
				domain.ErrInsufficientSpace, check.CacheSizeBytes, check.DiskUsedPct)
		}
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(resp.Body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, "", d.classify(f, err)
	}
	head = head[:n]

	mimeType := mimetype.Detect(head).String()
	if d.cfg.RequireImage && !strings.HasPrefix(mimeType, "image/") {
		return 0, "", fmt.Errorf("%w: detected %s", domain.ErrNotAnImage, mimeType)
	}

	reader := &progressReader{
		reader:        io.MultiReader(bytes.NewReader(head), resp.Body),
		contentLength: length,
		maxBytes:      d.cfg.MaxSizeBytes,
		limiter:       f.limiter,
		report:        f.broadcast,
	}

	written, err := d.fs.WriteFile(f.ctx, f.targetPath, reader)
	if err != nil {
		return written, "", d.classify(f, err)
	}

	return written, mimeType, nil
}

// classify maps transfer failures onto domain errors
func (d *Downloader) classify(f *flight, err error) error {
	if f.ctx.Err() != nil {
		return domain.ErrDownloadCanceled
	}
	for _, known := range []error{
		domain.ErrDownload,
		domain.ErrDirectory,
		domain.ErrFileTooLarge,
		domain.ErrInvalidInput,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return domain.NewDownloadError(f.sourceURI, 0, err)
}

// broadcast sends a progress event to every attached job
func (f *flight) broadcast(p Progress) {
	f.mu.Lock()
	jobs := make([]*Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		jobs = append(jobs, j)
	}
	f.mu.Unlock()

	for _, j := range jobs {
		j.notify(Event{Kind: EventProgress, Progress: p})
	}
}

// progressReader wraps a reader to report download progress
type progressReader struct {
	reader        io.Reader
	contentLength int64
	maxBytes      int64
	bytesRead     int64
	limiter       *ratelimiter.Limiter
	report        func(Progress)
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.bytesRead += int64(n)

	if r.maxBytes > 0 && r.bytesRead > r.maxBytes {
		return n, fmt.Errorf("%w: more than %d bytes", domain.ErrFileTooLarge, r.maxBytes)
	}

	progress := Progress{BytesWritten: r.bytesRead, ContentLength: r.contentLength}
	if errors.Is(err, io.EOF) {
		// The final chunk is always reported
		r.report(progress)
		return n, err
	}
	if n > 0 {
		if allowed, _ := r.limiter.Allow(); allowed {
			r.report(progress)
		}
	}
	return n, err
}
