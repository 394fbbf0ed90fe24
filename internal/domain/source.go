package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// ImageSource describes what an image should display: either a remote URI
// or an opaque local asset reference. Exactly one of the two is set.
type ImageSource struct {
	URI   string
	Asset string
}

// RemoteSource returns a source pointing at a remote URI
func RemoteSource(uri string) ImageSource {
	return ImageSource{URI: uri}
}

// LocalSource returns a source referencing a local asset
func LocalSource(asset string) ImageSource {
	return ImageSource{Asset: asset}
}

// IsZero returns true if neither form is set
func (s ImageSource) IsZero() bool {
	return s.URI == "" && s.Asset == ""
}

// String returns a printable form of the source
func (s ImageSource) String() string {
	if s.URI != "" {
		return s.URI
	}
	if s.Asset != "" {
		return "asset:" + s.Asset
	}
	return "<empty>"
}

// IsRemote reports whether the source can be fetched over the network.
// Only http and https URIs with a host qualify.
func (s ImageSource) IsRemote() bool {
	return s.Validate() == nil
}

// Validate checks that the source carries a usable remote URI.
// The returned error wraps ErrMalformedSource.
func (s ImageSource) Validate() error {
	if s.URI == "" {
		return fmt.Errorf("%w: empty uri", ErrMalformedSource)
	}
	u, err := url.Parse(s.URI)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSource, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrMalformedSource, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrMalformedSource)
	}
	return nil
}
