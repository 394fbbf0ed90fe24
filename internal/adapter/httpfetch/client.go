package httpfetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/vertextoedge/cacheable-image/internal/domain"
	"github.com/vertextoedge/cacheable-image/internal/port"
)

// DefaultUserAgent is sent when no user agent is configured
const DefaultUserAgent = "cacheable-image/1.0"

// Client fetches remote images over HTTP
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// Ensure Client implements port.Fetcher
var _ port.Fetcher = (*Client)(nil)

// ClientConfig contains optional client configuration
type ClientConfig struct {
	UserAgent             string
	ResponseHeaderTimeout time.Duration // default: 30s
	SkipTLSVerify         bool
	BufferSizeKB          int // Read/Write buffer size in KB (default: 64)
}

// NewClient creates a new fetch client
func NewClient(cfg *ClientConfig) *Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	headerTimeout := cfg.ResponseHeaderTimeout
	if headerTimeout <= 0 {
		headerTimeout = 30 * time.Second
	}
	bufferSize := 64 * 1024
	if cfg.BufferSizeKB > 0 {
		bufferSize = cfg.BufferSizeKB * 1024
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.SkipTLSVerify,
		},
		// Connection pooling
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,

		WriteBufferSize: bufferSize,
		ReadBufferSize:  bufferSize,

		ForceAttemptHTTP2: true,

		// Images are already compressed
		DisableCompression: true,

		// Response header timeout (not total download timeout)
		ResponseHeaderTimeout: headerTimeout,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   0, // No timeout for downloads
		},
		userAgent: userAgent,
	}
}

// NewClientWithHTTPClient wraps an existing http.Client
func NewClientWithHTTPClient(httpClient *http.Client, userAgent string) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{httpClient: httpClient, userAgent: userAgent}
}

// Fetch performs a GET of uri and returns the open body.
// Non-2xx responses are returned as *domain.DownloadError; server errors,
// 429 and network timeouts are additionally wrapped in *domain.RetryableError.
func (c *Client) Fetch(ctx context.Context, uri string) (*port.FetchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, domain.NewDownloadError(uri, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		dlErr := domain.NewDownloadError(uri, 0, err)
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, domain.NewRetryableError(dlErr, 0)
		}
		return nil, dlErr
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		dlErr := domain.NewDownloadError(uri, resp.StatusCode, nil)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, domain.NewRetryableError(dlErr, retryAfter(resp.Header.Get("Retry-After")))
		}
		return nil, dlErr
	}

	return &port.FetchResponse{
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
		ContentType:   resp.Header.Get("Content-Type"),
	}, nil
}

// retryAfter parses a Retry-After header given in seconds
func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
