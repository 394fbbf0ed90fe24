package vo

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// maxExtensionLen bounds the extension copied from a URI into a file name.
const maxExtensionLen = 16

var (
	ErrEmptyURI   = errors.New("uri cannot be empty")
	ErrInvalidURI = errors.New("uri has no host")
)

// CacheKey identifies the local cache slot of a remote resource.
// Directory is derived from the URI host, FileName from its path.
type CacheKey struct {
	Directory string
	FileName  string
}

// DeriveCacheKey maps a remote URI to its cache key. The result depends only
// on the host and path of the URI; query and fragment are ignored.
func DeriveCacheKey(uri string) (CacheKey, error) {
	if uri == "" {
		return CacheKey{}, ErrEmptyURI
	}
	u, err := url.Parse(uri)
	if err != nil {
		return CacheKey{}, fmt.Errorf("parse uri: %w", err)
	}
	if u.Host == "" {
		return CacheKey{}, ErrInvalidURI
	}

	p := u.Path
	if p == "" {
		p = "/"
	}

	sum := sha1.Sum([]byte(p))
	name := hex.EncodeToString(sum[:])
	if ext := Extension(p); ext != "" {
		name += "." + ext
	}

	return CacheKey{
		Directory: SanitizeDirectory(u.Host),
		FileName:  name,
	}, nil
}

// Extension returns the text after the final dot of the last path segment,
// lower-cased and limited to [a-z0-9]. Paths without one yield "".
func Extension(p string) string {
	base := path.Base(p)
	idx := strings.LastIndexByte(base, '.')
	if idx < 0 || idx == len(base)-1 {
		return ""
	}

	var b strings.Builder
	for _, r := range strings.ToLower(base[idx+1:]) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == maxExtensionLen {
			break
		}
	}
	return b.String()
}

// SanitizeDirectory turns a URI host into a single safe directory name.
// Hosts are case-insensitive and lower-cased first. Bytes outside
// [a-z0-9.-], the '_' escape byte itself, and leading dots are written as
// '_' plus two hex digits, so distinct hosts never share a directory:
// "host:8080" maps to "host_3a8080" and "host_8080" to "host_5f8080".
func SanitizeDirectory(host string) string {
	if host == "" {
		return "_"
	}

	const hexDigits = "0123456789abcdef"
	lower := strings.ToLower(host)
	leading := true
	var b strings.Builder
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		safe := (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || (c == '.' && !leading)
		leading = leading && c == '.'
		if safe {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('_')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

// IsZero returns true if the key is unset.
func (k CacheKey) IsZero() bool {
	return k.Directory == "" && k.FileName == ""
}

// RelPath returns the key as a slash separated relative path.
func (k CacheKey) RelPath() string {
	return k.Directory + "/" + k.FileName
}

// Path joins the key under rootDir.
func (k CacheKey) Path(rootDir string) string {
	return filepath.Join(rootDir, k.Directory, k.FileName)
}

// String returns the relative path of the key.
func (k CacheKey) String() string {
	return k.RelPath()
}
