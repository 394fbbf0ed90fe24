package server

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/vertextoedge/cacheable-image/internal/adapter/filesystem"
)

// CacheHandler serves cached entries: /cache/{dir}/{file}
type CacheHandler struct {
	rootDir string
	logger  *zap.Logger
}

// NewCacheHandler creates a new CacheHandler
func NewCacheHandler(rootDir string, logger *zap.Logger) *CacheHandler {
	return &CacheHandler{
		rootDir: rootDir,
		logger:  logger,
	}
}

// HandleFile streams a cached entry with its sniffed content type
func (h *CacheHandler) HandleFile(w http.ResponseWriter, r *http.Request) {
	dir, name := r.PathValue("dir"), r.PathValue("file")
	if !validSegment(dir) || !validSegment(name) || strings.HasSuffix(name, filesystem.TempSuffix) {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	path := filepath.Join(h.rootDir, dir, name)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "Not cached", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to open cached file", zap.String("path", path), zap.Error(err))
		http.Error(w, "File not available", http.StatusServiceUnavailable)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || !stat.Mode().IsRegular() {
		http.Error(w, "Not cached", http.StatusNotFound)
		return
	}

	mime, err := mimetype.DetectReader(f)
	if err != nil {
		h.logger.Error("failed to sniff cached file", zap.String("path", path), zap.Error(err))
		http.Error(w, "File not available", http.StatusServiceUnavailable)
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		http.Error(w, "File not available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", mime.String())
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, name, stat.ModTime(), f)
}

// validSegment rejects empty, hidden and traversal path segments
func validSegment(s string) bool {
	return s != "" && !strings.HasPrefix(s, ".") && !strings.ContainsAny(s, `/\`)
}
