package server

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/cacheable-image/internal/adapter/filesystem"
	"github.com/vertextoedge/cacheable-image/internal/domain"
	"github.com/vertextoedge/cacheable-image/internal/domain/event"
	"github.com/vertextoedge/cacheable-image/internal/port"
	"github.com/vertextoedge/cacheable-image/internal/service/coordinator"
)

// ResolveHandler answers what should be rendered for an image source.
// Each request drives its own coordinator, which is closed when the request
// ends; a download nobody else shares is cancelled at that point.
type ResolveHandler struct {
	prober     coordinator.Prober
	downloader coordinator.Downloader
	fs         port.FileSystem
	dispatcher event.EventDispatcher
	maxWait    time.Duration
	logger     *zap.Logger
}

// NewResolveHandler creates a new ResolveHandler
func NewResolveHandler(
	prober coordinator.Prober,
	downloader coordinator.Downloader,
	fs port.FileSystem,
	dispatcher event.EventDispatcher,
	maxWait time.Duration,
	logger *zap.Logger,
) *ResolveHandler {
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}
	return &ResolveHandler{
		prober:     prober,
		downloader: downloader,
		fs:         fs,
		dispatcher: dispatcher,
		maxWait:    maxWait,
		logger:     logger,
	}
}

type resolveResponse struct {
	Source        string            `json:"source"`
	Phase         string            `json:"phase"`
	Render        domain.RenderMode `json:"render"`
	URL           string            `json:"url,omitempty"`
	BytesWritten  int64             `json:"bytes_written,omitempty"`
	ContentLength int64             `json:"content_length,omitempty"`
	Error         string            `json:"error,omitempty"`
	Retryable     bool              `json:"retryable,omitempty"`
	RetryAfter    float64           `json:"retry_after_seconds,omitempty"`
	Pending       bool              `json:"pending"`
}

// HandleResolve handles GET /resolve?uri=&asset=&default=&default_asset=&wait=
func (h *ResolveHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	src := sourceFrom(q.Get("uri"), q.Get("asset"))
	if src.IsZero() {
		http.Error(w, "uri or asset required", http.StatusBadRequest)
		return
	}

	wait, err := h.parseWait(q.Get("wait"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c := coordinator.NewCoordinator(h.prober, h.downloader, h.fs, h.dispatcher, h.logger)
	defer c.Close()

	if def := sourceFrom(q.Get("default"), q.Get("default_asset")); !def.IsZero() {
		c.SetDefaultSource(def)
	}
	c.SetSource(src)

	pending := false
	if wait > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		_, err := c.WaitAll(ctx)
		cancel()
		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded):
			pending = true
		case r.Context().Err() != nil:
			// client went away
			return
		default:
			h.logger.Warn("resolve wait failed", zap.String("source", src.String()), zap.Error(err))
		}
	} else {
		pending = !c.State().Phase.Terminal()
	}

	s := c.State()
	mode := c.RenderMode()
	resp := resolveResponse{
		Source:        src.String(),
		Phase:         s.Phase.String(),
		Render:        mode,
		URL:           h.cacheURL(mode.Leaf()),
		BytesWritten:  s.BytesWritten,
		ContentLength: s.ContentLength,
		Pending:       pending,
	}
	if s.Err != nil {
		resp.Error = s.Err.Error()
		if after, ok := domain.GetRetryAfter(s.Err); ok {
			resp.Retryable = true
			resp.RetryAfter = after.Seconds()
		}
	}
	if resp.ContentLength < 0 {
		resp.ContentLength = 0
	}

	writeJSON(w, http.StatusOK, resp)
}

// parseWait reads the wait parameter; empty means the longest allowed wait
func (h *ResolveHandler) parseWait(v string) (time.Duration, error) {
	if v == "" {
		return h.maxWait, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.New("invalid wait duration")
	}
	if d < 0 {
		return 0, errors.New("wait must not be negative")
	}
	return min(d, h.maxWait), nil
}

// cacheURL maps a cached render mode to its /cache URL
func (h *ResolveHandler) cacheURL(mode domain.RenderMode) string {
	if mode.Kind != domain.RenderCached || mode.Path == "" {
		return ""
	}
	if !filesystem.Within(h.fs.RootDir(), mode.Path) {
		return ""
	}
	rel, err := filepath.Rel(h.fs.RootDir(), mode.Path)
	if err != nil {
		return ""
	}
	return "/cache/" + filepath.ToSlash(rel)
}

// sourceFrom builds a source from a uri or, failing that, an asset name
func sourceFrom(uri, asset string) domain.ImageSource {
	if uri != "" {
		return domain.RemoteSource(uri)
	}
	return domain.LocalSource(asset)
}
