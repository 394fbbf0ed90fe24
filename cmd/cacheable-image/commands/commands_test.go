package commands

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vertextoedge/cacheable-image/internal/domain"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestKeyCommand(t *testing.T) {
	root := t.TempDir()
	t.Setenv("CACHEABLE_IMAGE_CACHE_ROOT_DIR", root)

	out, err := execute(t, "key", "http://cdn.example.com/a/b/photo.jpg")
	if err != nil {
		t.Fatalf("key error = %v", err)
	}

	sum := sha1.Sum([]byte("/a/b/photo.jpg"))
	want := filepath.Join(root, "cdn.example.com", hex.EncodeToString(sum[:])+".jpg")
	if !strings.Contains(out, want) {
		t.Errorf("output = %q, want it to contain %q", out, want)
	}

	if _, err := execute(t, "key", "ftp://"); err == nil {
		t.Error("key with malformed uri should fail")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "cacheable-image "+Version) {
		t.Errorf("output = %q", out)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		mode domain.RenderMode
		want string
	}{
		{domain.RenderMode{Kind: domain.RenderLoading}, "loading"},
		{domain.RenderMode{Kind: domain.RenderCached, Path: "/c/a.png"}, "/c/a.png"},
		{domain.RenderMode{Kind: domain.RenderLocal, Asset: "logo"}, "asset:logo"},
		{
			domain.RenderMode{Kind: domain.RenderDefault, Fallback: &domain.RenderMode{Kind: domain.RenderLocal, Asset: "ph"}},
			"default -> asset:ph",
		},
	}
	for _, tt := range tests {
		if got := describe(tt.mode); got != tt.want {
			t.Errorf("describe(%+v) = %q, want %q", tt.mode, got, tt.want)
		}
	}
}
