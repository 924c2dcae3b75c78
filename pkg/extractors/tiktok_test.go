package extractors

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"tokgrab/pkg/config"
	"tokgrab/pkg/httpclient"
	"tokgrab/pkg/logging"
	"tokgrab/pkg/types"

	"github.com/andybalholm/brotli"
)

func newTestExtractor(t *testing.T) *TikTokExtractor {
	t.Helper()
	log := logging.New("error", false, io.Discard)
	cfg := &config.Config{
		FetchTimeout:    5 * time.Second,
		RedirectTimeout: 2 * time.Second,
	}
	client := httpclient.New(cfg, log)
	return NewTikTokExtractor(client, cfg, log)
}

// itemJSON is one item record shared by the format-equivalence tests.
const itemJSON = `{
	"id": "7123456789012345678",
	"desc": "hello world",
	"createTime": 1650000000,
	"author": {"uniqueId": "someuser", "nickname": "Some User"},
	"music": {"title": "cool song"},
	"stats": {"playCount": 100, "diggCount": 10, "commentCount": 2, "shareCount": 1},
	"video": {
		"duration": 15,
		"downloadAddr": "//dl.tiktokcdn-test.example/v.mp4",
		"playAddr": "http://play.tiktokcdn-test.example/v.mp4",
		"bitrateInfo": [
			{"Bitrate": 200, "PlayAddr": {"UrlList": ["https://low.tiktokcdn-test.example/v.mp4", "//dl.tiktokcdn-test.example/v.mp4"]}},
			{"Bitrate": 900, "PlayAddr": {"UrlList": ["https://high.tiktokcdn-test.example/v.mp4"]}}
		]
	}
}`

func sigiPage() string {
	return fmt.Sprintf(`<!DOCTYPE html><html><head><title>watch</title></head><body>
<script id="SIGI_STATE" type="application/json">{"ItemModule":{"7123456789012345678":%s}}</script>
</body></html>`, itemJSON)
}

func universalPage() string {
	return fmt.Sprintf(`<!DOCTYPE html><html><head><title>watch</title></head><body>
<script id="__UNIVERSAL_DATA_FOR_REHYDRATION__" type="application/json">{"__DEFAULT_SCOPE__":{"webapp.video-detail":{"itemInfo":{"itemStruct":%s}}}}</script>
</body></html>`, itemJSON)
}

func TestTikTokExtractor_CanExtract(t *testing.T) {
	e := newTestExtractor(t)

	tests := []struct {
		name     string
		url      string
		expected bool
	}{
		{"canonical video", "https://www.tiktok.com/@user/video/7123456789012345678", true},
		{"short link", "https://vm.tiktok.com/ZM8abcdef/", true},
		{"case insensitive", "https://WWW.TIKTOK.COM/@user/video/1", true},
		{"youtube", "https://youtube.com/watch?v=abc", false},
		{"random", "https://example.com/video/123", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.CanExtract(tt.url); got != tt.expected {
				t.Errorf("CanExtract(%q) = %v, want %v", tt.url, got, tt.expected)
			}
		})
	}
}

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
		wantErr  bool
	}{
		{"canonical", "https://www.tiktok.com/@user/video/7123456789012345678", "7123456789012345678", false},
		{"with query", "https://www.tiktok.com/@user/video/123?lang=en", "123", false},
		{"no id", "https://www.tiktok.com/@user", "", true},
		{"non numeric", "https://www.tiktok.com/@user/video/abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractVideoID(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("extractVideoID(%q) succeeded, want error", tt.url)
				}
				if types.KindOf(err) != types.ErrMalformedURL {
					t.Errorf("error kind = %q, want malformed_url", types.KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("extractVideoID(%q) failed: %v", tt.url, err)
			}
			if got != tt.expected {
				t.Errorf("extractVideoID(%q) = %q, want %q", tt.url, got, tt.expected)
			}
		})
	}
}

func TestIsShortLink(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected bool
	}{
		{"vm", "https://vm.tiktok.com/ZM8abcdef/", true},
		{"vt", "https://vt.tiktok.com/ZS8abcdef/", true},
		{"t path", "https://www.tiktok.com/t/ZT8abcdef/", true},
		{"canonical", "https://www.tiktok.com/@user/video/123", false},
		{"other", "https://example.com/t/abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isShortLink(tt.url); got != tt.expected {
				t.Errorf("isShortLink(%q) = %v, want %v", tt.url, got, tt.expected)
			}
		})
	}
}

func TestResolveRedirect(t *testing.T) {
	e := newTestExtractor(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/@someuser/video/7123456789012345678", http.StatusFound)
	})
	mux.HandleFunc("/@someuser/video/7123456789012345678", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resolved, err := e.resolveRedirect(context.Background(), ts.URL+"/short")
	if err != nil {
		t.Fatalf("resolveRedirect failed: %v", err)
	}
	want := ts.URL + "/@someuser/video/7123456789012345678"
	if resolved != want {
		t.Errorf("resolved = %q, want %q", resolved, want)
	}
}

func TestNormalizeURL_CanonicalPassthrough(t *testing.T) {
	e := newTestExtractor(t)

	// Canonical and unrecognized URLs must pass through with no request.
	urls := []string{
		"https://www.tiktok.com/@user/video/7123456789012345678",
		"https://example.com/whatever",
	}
	for _, u := range urls {
		got, err := e.normalizeURL(context.Background(), u)
		if err != nil {
			t.Fatalf("normalizeURL(%q) failed: %v", u, err)
		}
		if got != u {
			t.Errorf("normalizeURL(%q) = %q, want unchanged", u, got)
		}
	}
}

func TestFetchPage_RetryOn403(t *testing.T) {
	e := newTestExtractor(t)

	var referers []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referers = append(referers, r.Header.Get("Referer"))
		if len(referers) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(sigiPage()))
	}))
	defer ts.Close()

	result, err := e.fetchPage(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("fetchPage failed: %v", err)
	}
	if result.Body == "" {
		t.Error("fetchPage returned empty body")
	}
	if len(referers) != 2 {
		t.Fatalf("got %d requests, want 2", len(referers))
	}
	if referers[0] != "https://www.google.com/" {
		t.Errorf("first referer = %q, want google", referers[0])
	}
	if referers[1] != "https://www.tiktok.com/" {
		t.Errorf("retry referer = %q, want tiktok", referers[1])
	}
}

func TestFetchPage_PersistentForbidden(t *testing.T) {
	e := newTestExtractor(t)

	requests := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	_, err := e.fetchPage(context.Background(), ts.URL)
	if types.KindOf(err) != types.ErrForbidden {
		t.Fatalf("error kind = %q, want forbidden_or_blocked (err: %v)", types.KindOf(err), err)
	}
	if requests != 2 {
		t.Errorf("got %d requests, want exactly 2 (retry budget of 1)", requests)
	}
}

func TestFetchPage_StatusClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantKind   types.ErrorKind
		wantStatus int
	}{
		{"not found", http.StatusNotFound, types.ErrNotFound, 0},
		{"server error", http.StatusInternalServerError, types.ErrFetchFailed, 500},
		{"rate limited", http.StatusTooManyRequests, types.ErrFetchFailed, 429},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExtractor(t)
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer ts.Close()

			_, err := e.fetchPage(context.Background(), ts.URL)
			if types.KindOf(err) != tt.wantKind {
				t.Fatalf("error kind = %q, want %q (err: %v)", types.KindOf(err), tt.wantKind, err)
			}
			var ee *types.ExtractError
			if errors.As(err, &ee) && ee.Status != tt.wantStatus {
				t.Errorf("carried status = %d, want %d", ee.Status, tt.wantStatus)
			}
		})
	}
}

func TestFetchPage_AntiBotDetection(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantBot bool
	}{
		{"waf marker", "<html>" + wafMarker + "</html>", true},
		{"short please wait", "<html>Please wait...</html>", true},
		{"long please wait is fine", "<html>Please wait..." + string(bytes.Repeat([]byte("x"), challengeMaxBytes)) + "</html>", false},
		{"plain page", "<html><body>regular page</body></html>", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExtractor(t)
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			_, err := e.fetchPage(context.Background(), ts.URL)
			gotBot := types.KindOf(err) == types.ErrAntiBot
			if gotBot != tt.wantBot {
				t.Errorf("anti-bot detected = %v, want %v (err: %v)", gotBot, tt.wantBot, err)
			}
		})
	}
}

func TestFetchPage_CookieOrder(t *testing.T) {
	e := newTestExtractor(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "ttwid", Value: "abc"})
		http.SetCookie(w, &http.Cookie{Name: "tt_csrf_token", Value: "def"})
		w.Write([]byte("<html>page</html>"))
	}))
	defer ts.Close()

	result, err := e.fetchPage(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("fetchPage failed: %v", err)
	}
	want := []types.Cookie{{Name: "ttwid", Value: "abc"}, {Name: "tt_csrf_token", Value: "def"}}
	if !reflect.DeepEqual(result.Cookies, want) {
		t.Errorf("cookies = %v, want %v", result.Cookies, want)
	}
	if got := types.CookieHeader(result.Cookies); got != "ttwid=abc; tt_csrf_token=def" {
		t.Errorf("cookie header = %q", got)
	}
}

func TestDecodeBody(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte("<html>compressed</html>"))
	gz.Close()

	tests := []struct {
		name     string
		raw      []byte
		expected string
	}{
		{"plain text", []byte("<html>hi</html>"), "<html>hi</html>"},
		{"gzip despite decoding", buf.Bytes(), "<html>compressed</html>"},
		{"leading nul sanitized", []byte("\x00<html>hi</html>"), "<html>hi</html>"},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeBody(tt.raw); got != tt.expected {
				t.Errorf("decodeBody() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDecompressBody(t *testing.T) {
	const page = "<html>encoded</html>"

	var gzBuf bytes.Buffer
	gz := gzip.NewWriter(&gzBuf)
	gz.Write([]byte(page))
	gz.Close()

	var brBuf bytes.Buffer
	br := brotli.NewWriter(&brBuf)
	br.Write([]byte(page))
	br.Close()

	tests := []struct {
		name     string
		raw      []byte
		encoding string
		expected string
	}{
		{"identity", []byte(page), "", page},
		{"gzip", gzBuf.Bytes(), "gzip", page},
		{"brotli", brBuf.Bytes(), "br", page},
		{"gzip uppercase", gzBuf.Bytes(), "GZIP", page},
		{"corrupt gzip passthrough", []byte("not gzip"), "gzip", "not gzip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(decompressBody(tt.raw, tt.encoding)); got != tt.expected {
				t.Errorf("decompressBody() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestExtract_EndToEnd(t *testing.T) {
	e := newTestExtractor(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "ttwid", Value: "session"})
		w.Write([]byte(sigiPage()))
	}))
	defer ts.Close()

	record, err := e.Extract(context.Background(), ts.URL+"/@someuser/video/7123456789012345678")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if record.ID != "7123456789012345678" {
		t.Errorf("ID = %q", record.ID)
	}
	if record.MediaURL != "https://dl.tiktokcdn-test.example/v.mp4" {
		t.Errorf("MediaURL = %q", record.MediaURL)
	}
	wantAlt := []string{
		"https://high.tiktokcdn-test.example/v.mp4",
		"https://low.tiktokcdn-test.example/v.mp4",
		"https://play.tiktokcdn-test.example/v.mp4",
	}
	if !reflect.DeepEqual(record.AltMediaURLs, wantAlt) {
		t.Errorf("AltMediaURLs = %v, want %v", record.AltMediaURLs, wantAlt)
	}
	if record.Author != "someuser" {
		t.Errorf("Author = %q", record.Author)
	}
	if record.Caption != "hello world" {
		t.Errorf("Caption = %q", record.Caption)
	}
	if record.Music != "cool song" {
		t.Errorf("Music = %q", record.Music)
	}
	if record.Duration != 15 || record.PlayCount != 100 || record.LikeCount != 10 ||
		record.CommentCount != 2 || record.ShareCount != 1 {
		t.Errorf("stats = %+v", record)
	}
	if record.CreatedAt != 1650000000 {
		t.Errorf("CreatedAt = %d", record.CreatedAt)
	}
	if record.CookieHeader != "ttwid=session" {
		t.Errorf("CookieHeader = %q", record.CookieHeader)
	}
}

// Pages using the legacy global-variable convention and the tagged-script
// conventions must parse identically given the same underlying data.
func TestExtract_FormatEquivalence(t *testing.T) {
	pages := map[string]string{
		"sigi":      sigiPage(),
		"universal": universalPage(),
	}

	var records []*types.VideoRecord
	for name, page := range pages {
		t.Run(name, func(t *testing.T) {
			e := newTestExtractor(t)
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(page))
			}))
			defer ts.Close()

			record, err := e.Extract(context.Background(), ts.URL+"/@someuser/video/7123456789012345678")
			if err != nil {
				t.Fatalf("Extract failed for %s page: %v", name, err)
			}
			record.CookieHeader = ""
			records = append(records, record)
		})
	}

	if len(records) == 2 && !reflect.DeepEqual(records[0], records[1]) {
		t.Errorf("records differ across embedding formats:\n%+v\n%+v", records[0], records[1])
	}
}
