package extractors

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"tokgrab/pkg/config"
	"tokgrab/pkg/httpclient"
	"tokgrab/pkg/interfaces"
	"tokgrab/pkg/logging"
	"tokgrab/pkg/types"

	"github.com/andybalholm/brotli"
)

// Fingerprint is the static browser disguise used for page fetches.
// Built once per extractor; never mutated after construction.
type Fingerprint struct {
	UserAgent      string
	Headers        map[string]string
	InitialReferer string
	RetryReferer   string
}

// NewFingerprint builds the default mobile Safari profile.
func NewFingerprint(userAgent string) Fingerprint {
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}
	return Fingerprint{
		UserAgent: userAgent,
		Headers: map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
			"Accept-Language":           "en-US,en;q=0.9",
			"Accept-Encoding":           "gzip, deflate, br",
			"Connection":                "keep-alive",
			"Upgrade-Insecure-Requests": "1",
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Sec-Fetch-User":            "?1",
		},
		// An organic-looking referer avoids most WAF challenges outright.
		InitialReferer: "https://www.google.com/",
		RetryReferer:   "https://www.tiktok.com/",
	}
}

// apply sets the fingerprint headers on a request.
func (f Fingerprint) apply(req *http.Request, referer string) {
	req.Header.Set("User-Agent", f.UserAgent)
	for key, value := range f.Headers {
		req.Header.Set(key, value)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
}

// Anti-bot challenge heuristics. Approximate: new challenge formats can
// slip past and unusually small legitimate pages can trip the length check.
const (
	wafMarker         = "SlardarWAF"
	pleaseWaitMarker  = "Please wait..."
	challengeMaxBytes = 5000
)

var (
	videoIDRe = regexp.MustCompile(`/video/(\d+)`)

	shortLinkMarkers = []string{
		"vm.tiktok.com",
		"vt.tiktok.com",
		"tiktok.com/t/",
	}
)

// TikTokExtractor extracts video records from public TikTok pages.
//
// Flow: normalize URL -> fetch page (+cookies) -> extract video ID ->
// locate and decode the embedded data blob -> locate the item record ->
// normalize fields.
type TikTokExtractor struct {
	*BaseExtractor
	log             *logging.Logger
	profile         Fingerprint
	redirectTimeout time.Duration
}

// NewTikTokExtractor creates a new TikTok extractor.
func NewTikTokExtractor(client *httpclient.Client, cfg *config.Config, log *logging.Logger) *TikTokExtractor {
	return &TikTokExtractor{
		BaseExtractor:   NewBaseExtractor(client, log),
		log:             log.WithComponent("tiktok-extractor"),
		profile:         NewFingerprint(cfg.UserAgent),
		redirectTimeout: cfg.RedirectTimeout,
	}
}

// Name returns the extractor name.
func (e *TikTokExtractor) Name() string {
	return "tiktok"
}

// CanExtract returns true for TikTok URLs.
func (e *TikTokExtractor) CanExtract(url string) bool {
	return strings.Contains(strings.ToLower(url), "tiktok.com")
}

// Extract resolves a TikTok URL to a normalized video record.
func (e *TikTokExtractor) Extract(ctx context.Context, urlStr string) (*types.VideoRecord, error) {
	normalized, err := e.normalizeURL(ctx, urlStr)
	if err != nil {
		return nil, err
	}
	e.log.Debug("normalized URL", "url", normalized)

	fetch, err := e.fetchPage(ctx, normalized)
	if err != nil {
		return nil, err
	}

	videoID, err := extractVideoID(normalized)
	if err != nil {
		return nil, err
	}
	e.log.Debug("extracted video ID", "video_id", videoID)

	blob, err := locateBlob(fetch.Body, e.log)
	if err != nil {
		return nil, err
	}

	item, err := locateRecord(blob, videoID, e.log)
	if err != nil {
		return nil, err
	}

	record, err := normalizeItem(item, videoID)
	if err != nil {
		return nil, err
	}
	record.CookieHeader = types.CookieHeader(fetch.Cookies)

	return record, nil
}

// normalizeURL resolves short share links to the canonical page URL.
// Canonical URLs pass through untouched; unrecognized shapes pass through
// too and fail later at video-ID extraction.
func (e *TikTokExtractor) normalizeURL(ctx context.Context, urlStr string) (string, error) {
	if strings.Contains(urlStr, "tiktok.com/@") && strings.Contains(urlStr, "/video/") {
		return urlStr, nil
	}

	if isShortLink(urlStr) {
		resolved, err := e.resolveRedirect(ctx, urlStr)
		if err != nil {
			return "", types.WrapExtractError(types.ErrFetchFailed, "short link resolution failed", err)
		}
		return resolved, nil
	}

	return urlStr, nil
}

// isShortLink reports whether the URL matches a known short-link pattern.
func isShortLink(urlStr string) bool {
	for _, marker := range shortLinkMarkers {
		if strings.Contains(urlStr, marker) {
			return true
		}
	}
	return false
}

// resolveRedirect issues a single redirect-following GET and returns the
// final location. Bounded by the redirect timeout, not the fetch timeout.
func (e *TikTokExtractor) resolveRedirect(ctx context.Context, urlStr string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.redirectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", err
	}
	e.profile.apply(req, "")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.Request.URL.String(), nil
}

// fetchPage fetches the video page, retrying once on 403 with a different
// referer. Returns the decoded page text and the session cookies.
func (e *TikTokExtractor) fetchPage(ctx context.Context, urlStr string) (*types.FetchResult, error) {
	resp, err := e.doPageRequest(ctx, urlStr, e.profile.InitialReferer)
	if err != nil {
		return nil, types.WrapExtractError(types.ErrFetchFailed, "page fetch failed", err)
	}

	if resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		e.log.Warn("access forbidden, retrying with different referer", "url", urlStr)
		resp, err = e.doPageRequest(ctx, urlStr, e.profile.RetryReferer)
		if err != nil {
			return nil, types.WrapExtractError(types.ErrFetchFailed, "page fetch retry failed", err)
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return nil, types.NewExtractError(types.ErrForbidden, "access denied after retry; video may be private or region-locked")
	case resp.StatusCode == http.StatusNotFound:
		return nil, types.NewExtractError(types.ErrNotFound, "video not found or removed")
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, types.FetchFailed(resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.WrapExtractError(types.ErrFetchFailed, "failed to read response body", err)
	}

	body := decodeBody(decompressBody(raw, resp.Header.Get("Content-Encoding")))

	if looksLikeChallenge(body) {
		e.log.Error("anti-bot challenge detected", "url", urlStr, "bytes", len(body))
		return nil, types.NewExtractError(types.ErrAntiBot, "anti-bot protection detected, try again later")
	}

	cookies := make([]types.Cookie, 0, len(resp.Cookies()))
	for _, c := range resp.Cookies() {
		cookies = append(cookies, types.Cookie{Name: c.Name, Value: c.Value})
	}

	return &types.FetchResult{Body: body, Cookies: cookies}, nil
}

func (e *TikTokExtractor) doPageRequest(ctx context.Context, urlStr, referer string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	e.profile.apply(req, referer)
	return e.client.Do(req)
}

// decompressBody handles the Content-Encoding values advertised by the
// fingerprint. Setting Accept-Encoding by hand disables the transport's
// transparent gzip handling, so all three are decoded here.
func decompressBody(raw []byte, encoding string) []byte {
	switch strings.ToLower(encoding) {
	case "gzip":
		if gz, err := gzip.NewReader(bytes.NewReader(raw)); err == nil {
			if out, err := io.ReadAll(gz); err == nil {
				raw = out
			}
			gz.Close()
		}
	case "br":
		if out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(raw))); err == nil {
			raw = out
		}
	case "deflate":
		fr := flate.NewReader(bytes.NewReader(raw))
		if out, err := io.ReadAll(fr); err == nil {
			raw = out
		}
		fr.Close()
	}
	return raw
}

// decodeBody recovers page text when the body is compressed or binary
// despite the declared encoding.
func decodeBody(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b {
		if gz, err := gzip.NewReader(bytes.NewReader(raw)); err == nil {
			if out, err := io.ReadAll(gz); err == nil {
				raw = out
			}
			gz.Close()
		}
	}
	if len(raw) > 0 && (raw[0] == 0x00 || !utf8.Valid(raw)) {
		s := strings.ToValidUTF8(string(raw), "")
		return strings.ReplaceAll(s, "\x00", "")
	}
	return string(raw)
}

// looksLikeChallenge applies the anti-bot heuristic: a known challenge
// marker, or a generic "please wait" page that is implausibly short.
func looksLikeChallenge(body string) bool {
	if strings.Contains(body, wafMarker) {
		return true
	}
	return strings.Contains(body, pleaseWaitMarker) && len(body) < challengeMaxBytes
}

// extractVideoID pulls the numeric video ID out of a canonical page URL.
func extractVideoID(urlStr string) (string, error) {
	if m := videoIDRe.FindStringSubmatch(urlStr); len(m) == 2 {
		return m[1], nil
	}
	return "", types.NewExtractError(types.ErrMalformedURL, fmt.Sprintf("could not extract video ID from %q", urlStr))
}

var _ interfaces.Extractor = (*TikTokExtractor)(nil)
