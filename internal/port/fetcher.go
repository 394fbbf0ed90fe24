package port

import (
	"context"
	"io"
)

// FetchResponse is an open response body of a remote resource
type FetchResponse struct {
	Body          io.ReadCloser
	ContentLength int64 // -1 when unknown
	ContentType   string
}

// Fetcher performs a single GET of a remote resource
type Fetcher interface {
	// Fetch opens uri for reading. Non-success statuses are returned as
	// *domain.DownloadError.
	Fetch(ctx context.Context, uri string) (*FetchResponse, error)
}
