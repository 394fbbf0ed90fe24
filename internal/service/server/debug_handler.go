package server

import (
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/vertextoedge/cacheable-image/internal/port"
)

// activeCounter reports downloads in flight
type activeCounter interface {
	ActiveJobs() int
}

// DebugHandler handles debug endpoint requests
type DebugHandler struct {
	store      port.Store
	fs         port.FileSystem
	downloader activeCounter
	logger     *zap.Logger
}

// NewDebugHandler creates a new DebugHandler
func NewDebugHandler(store port.Store, fs port.FileSystem, downloader activeCounter, logger *zap.Logger) *DebugHandler {
	return &DebugHandler{
		store:      store,
		fs:         fs,
		downloader: downloader,
		logger:     logger,
	}
}

type statsResponse struct {
	Entries       int64   `json:"entries"`
	IndexedBytes  int64   `json:"indexed_bytes"`
	IndexedHuman  string  `json:"indexed_human"`
	Directories   int64   `json:"directories"`
	CacheBytes    int64   `json:"cache_bytes"`
	CacheHuman    string  `json:"cache_human"`
	DiskUsedPct   float64 `json:"disk_used_pct"`
	DiskFreeHuman string  `json:"disk_free_human"`
	ActiveJobs    int     `json:"active_jobs"`
	Completed     int64   `json:"jobs_completed"`
	Failed        int64   `json:"jobs_failed"`
	Canceled      int64   `json:"jobs_canceled"`
	FetchedHuman  string  `json:"fetched_human"`
}

// HandleStats handles debug statistics requests
func (h *DebugHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetCacheStats()
	if err != nil {
		h.logger.Error("failed to get cache stats", zap.Error(err))
		http.Error(w, "Failed to get cache stats", http.StatusInternalServerError)
		return
	}

	jobStats, err := h.store.GetJobStats()
	if err != nil {
		h.logger.Error("failed to get job stats", zap.Error(err))
		http.Error(w, "Failed to get job stats", http.StatusInternalServerError)
		return
	}

	resp := statsResponse{
		Entries:      stats.TotalEntries,
		IndexedBytes: stats.TotalBytes,
		IndexedHuman: humanize.Bytes(uint64(stats.TotalBytes)),
		Directories:  stats.Directories,
		Completed:    jobStats.CompletedCount,
		Failed:       jobStats.FailedCount,
		Canceled:     jobStats.CanceledCount,
		FetchedHuman: humanize.Bytes(uint64(jobStats.BytesFetched)),
	}
	if h.downloader != nil {
		resp.ActiveJobs = h.downloader.ActiveJobs()
	}

	if size, err := h.fs.GetCacheSize(); err != nil {
		h.logger.Warn("failed to get cache size", zap.Error(err))
	} else {
		resp.CacheBytes = size
		resp.CacheHuman = humanize.Bytes(uint64(size))
	}
	if usage, err := h.fs.GetDiskUsage(); err != nil {
		h.logger.Warn("failed to get disk usage", zap.Error(err))
	} else {
		resp.DiskUsedPct = usage.UsedPct
		resp.DiskFreeHuman = humanize.Bytes(usage.Free)
	}

	writeJSON(w, http.StatusOK, resp)
}

type entryResponse struct {
	ID        int64  `json:"id"`
	SourceURI string `json:"source_uri"`
	Path      string `json:"path"`
	URL       string `json:"url"`
	Size      int64  `json:"size"`
	SizeHuman string `json:"size_human"`
	MimeType  string `json:"mime_type"`
	Updated   string `json:"updated"`
}

// HandleEntries lists indexed entries, most recent first: ?limit=&offset=
func (h *DebugHandler) HandleEntries(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 100)
	if err != nil || limit <= 0 || limit > 1000 {
		http.Error(w, "limit must be between 1 and 1000", http.StatusBadRequest)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil || offset < 0 {
		http.Error(w, "offset must not be negative", http.StatusBadRequest)
		return
	}

	entries, err := h.store.ListEntries(limit, offset)
	if err != nil {
		h.logger.Error("failed to list entries", zap.Error(err))
		http.Error(w, "Failed to list entries", http.StatusInternalServerError)
		return
	}

	resp := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, entryResponse{
			ID:        e.ID,
			SourceURI: e.SourceURI,
			Path:      e.Path,
			URL:       "/cache/" + e.Directory + "/" + e.FileName,
			Size:      e.Size,
			SizeHuman: humanize.Bytes(uint64(e.Size)),
			MimeType:  e.MimeType,
			Updated:   humanize.Time(e.UpdatedAt),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": resp,
		"limit":   limit,
		"offset":  offset,
	})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
