package registry

import (
	"context"
	"strings"
	"testing"

	"tokgrab/pkg/types"
)

type stubExtractor struct {
	name    string
	pattern string
}

func (s *stubExtractor) Name() string { return s.name }
func (s *stubExtractor) CanExtract(url string) bool {
	return strings.Contains(url, s.pattern)
}
func (s *stubExtractor) Extract(ctx context.Context, url string) (*types.VideoRecord, error) {
	return nil, nil
}
func (s *stubExtractor) Close() error { return nil }

func TestExtractorRegistry(t *testing.T) {
	reg := NewExtractorRegistry()
	tiktok := &stubExtractor{name: "tiktok", pattern: "tiktok.com"}
	fallback := &stubExtractor{name: "unsupported"}
	reg.Register(tiktok)
	reg.SetFallback(fallback)

	if got := reg.Get("https://www.tiktok.com/@u/video/1"); got != tiktok {
		t.Errorf("Get(tiktok url) = %v, want the tiktok extractor", got.Name())
	}
	if got := reg.Get("https://example.com/v"); got != fallback {
		t.Errorf("Get(unknown url) = %v, want the fallback", got.Name())
	}
	if got := reg.GetByName("tiktok"); got != tiktok {
		t.Errorf("GetByName(tiktok) = %v", got.Name())
	}
	if got := reg.GetByName("nope"); got != fallback {
		t.Errorf("GetByName(unknown) = %v, want the fallback", got.Name())
	}
	if n := len(reg.All()); n != 1 {
		t.Errorf("All() = %d extractors, want 1", n)
	}
	if err := reg.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
