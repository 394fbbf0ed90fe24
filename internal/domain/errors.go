package domain

import (
	"errors"
	"fmt"
	"time"
)

// Common domain errors
var (
	ErrInvalidInput = errors.New("invalid input")

	// Source errors
	ErrMalformedSource = errors.New("source has no usable remote uri")

	// Cache errors
	ErrProbe             = errors.New("cache probe failed")
	ErrDirectory         = errors.New("cache directory unavailable")
	ErrInsufficientSpace = errors.New("insufficient space")

	// Download errors
	ErrDownload         = errors.New("download failed")
	ErrDownloadCanceled = errors.New("download canceled")
	ErrFileTooLarge     = errors.New("file exceeds maximum download size")
	ErrNotAnImage       = errors.New("downloaded content is not an image")
	ErrJobNotFound      = errors.New("download job not found")
)

// DownloadError describes a failed transfer of a remote resource.
// It matches ErrDownload with errors.Is.
type DownloadError struct {
	URI        string
	StatusCode int
	Err        error
}

// Error returns the error message
func (e *DownloadError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("download %s: status %d: %v", e.URI, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("download %s: unexpected status %d", e.URI, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("download %s: %v", e.URI, e.Err)
	}
	return "download " + e.URI + " failed"
}

// Unwrap returns the underlying error
func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrDownload
func (e *DownloadError) Is(target error) bool {
	return target == ErrDownload
}

// NewDownloadError creates a new download error
func NewDownloadError(uri string, statusCode int, err error) *DownloadError {
	return &DownloadError{URI: uri, StatusCode: statusCode, Err: err}
}

// DirectoryError is returned when the directory of a cache entry cannot be created.
// It matches ErrDirectory with errors.Is.
type DirectoryError struct {
	Path string
	Err  error
}

// Error returns the error message
func (e *DirectoryError) Error() string {
	if e.Err != nil {
		return "create directory " + e.Path + ": " + e.Err.Error()
	}
	return "create directory " + e.Path
}

// Unwrap returns the underlying error
func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrDirectory
func (e *DirectoryError) Is(target error) bool {
	return target == ErrDirectory
}

// RetryableError marks a transient failure. Nothing in the cache retries on
// its own; callers decide whether to set the source again.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

// Error returns the error message
func (e *RetryableError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "retryable error"
}

// Unwrap returns the underlying error
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error, retryAfter time.Duration) *RetryableError {
	return &RetryableError{Err: err, RetryAfter: retryAfter}
}

// IsRetryable returns true if the error should be retried
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// GetRetryAfter returns the retry duration if the error is retryable
func GetRetryAfter(err error) (time.Duration, bool) {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.RetryAfter, true
	}
	return 0, false
}
