package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryableError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "with underlying error",
			err:  errors.New("connection timeout"),
			want: "connection timeout",
		},
		{
			name: "nil error",
			err:  nil,
			want: "retryable error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := NewRetryableError(tt.err, time.Second)
			if got := re.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryableError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	re := NewRetryableError(underlying, time.Second)

	if got := re.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "retryable error",
			err:  NewRetryableError(errors.New("err"), time.Second),
			want: true,
		},
		{
			name: "wrapped retryable error",
			err:  fmt.Errorf("wrapped: %w", NewRetryableError(errors.New("err"), time.Second)),
			want: true,
		},
		{
			name: "regular error",
			err:  errors.New("regular error"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "download error is not retryable",
			err:  NewDownloadError("http://a/b.png", 404, nil),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetRetryAfter(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantDuration time.Duration
		wantOk       bool
	}{
		{
			name:         "retryable error",
			err:          NewRetryableError(errors.New("err"), 5*time.Minute),
			wantDuration: 5 * time.Minute,
			wantOk:       true,
		},
		{
			name:         "wrapped retryable error",
			err:          fmt.Errorf("wrapped: %w", NewRetryableError(errors.New("err"), 30*time.Second)),
			wantDuration: 30 * time.Second,
			wantOk:       true,
		},
		{
			name:         "regular error",
			err:          errors.New("regular error"),
			wantDuration: 0,
			wantOk:       false,
		},
		{
			name:         "nil error",
			err:          nil,
			wantDuration: 0,
			wantOk:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			duration, ok := GetRetryAfter(tt.err)
			if duration != tt.wantDuration || ok != tt.wantOk {
				t.Errorf("GetRetryAfter() = (%v, %v), want (%v, %v)",
					duration, ok, tt.wantDuration, tt.wantOk)
			}
		})
	}
}

func TestErrorsAsUnwrap(t *testing.T) {
	re := NewRetryableError(NewDownloadError("http://a/b.png", 503, nil), time.Second)
	if !errors.Is(re, ErrDownload) {
		t.Error("RetryableError should unwrap to ErrDownload")
	}
}

func TestDownloadError(t *testing.T) {
	cause := errors.New("connection reset")
	tests := []struct {
		name string
		err  *DownloadError
		want string
	}{
		{
			name: "status and cause",
			err:  NewDownloadError("http://cdn/a.png", 502, cause),
			want: "download http://cdn/a.png: status 502: connection reset",
		},
		{
			name: "status only",
			err:  NewDownloadError("http://cdn/a.png", 404, nil),
			want: "download http://cdn/a.png: unexpected status 404",
		},
		{
			name: "cause only",
			err:  NewDownloadError("http://cdn/a.png", 0, cause),
			want: "download http://cdn/a.png: connection reset",
		},
		{
			name: "empty",
			err:  NewDownloadError("http://cdn/a.png", 0, nil),
			want: "download http://cdn/a.png failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if !errors.Is(tt.err, ErrDownload) {
				t.Error("DownloadError should match ErrDownload")
			}
		})
	}

	wrapped := fmt.Errorf("fetch: %w", NewDownloadError("u", 0, ErrFileTooLarge))
	if !errors.Is(wrapped, ErrFileTooLarge) {
		t.Error("wrapped DownloadError should unwrap to its cause")
	}
	var de *DownloadError
	if !errors.As(wrapped, &de) || de.URI != "u" {
		t.Errorf("errors.As() = %v, want DownloadError with URI u", de)
	}
}

func TestDirectoryError(t *testing.T) {
	cause := errors.New("permission denied")
	err := error(&DirectoryError{Path: "/cache/cdn", Err: cause})

	if got, want := err.Error(), "create directory /cache/cdn: permission denied"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrDirectory) {
		t.Error("DirectoryError should match ErrDirectory")
	}
	if !errors.Is(err, cause) {
		t.Error("DirectoryError should unwrap to its cause")
	}
	if errors.Is(err, ErrDownload) {
		t.Error("DirectoryError should not match ErrDownload")
	}
}
