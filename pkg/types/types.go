// Package types defines core domain types used throughout the application.
package types

import "strings"

// Cookie is a single cookie received from the source site.
// Order matters: the CDN expects cookies replayed in the order the
// page handed them out, so cookies are kept as a slice, not a map.
type Cookie struct {
	Name  string
	Value string
}

// CookieHeader renders cookies as a Cookie request header value.
func CookieHeader(cookies []Cookie) string {
	if len(cookies) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; ")
}

// FetchResult holds the raw page text and session cookies from one page fetch.
// Created per request and discarded once parsing is done.
type FetchResult struct {
	Body    string
	Cookies []Cookie
}

// VideoRecord is the normalized output of an extraction.
// MediaURL is always absolute HTTPS; AltMediaURLs never repeats it.
type VideoRecord struct {
	ID           string   `json:"video_id"`
	MediaURL     string   `json:"mp4_url"`
	AltMediaURLs []string `json:"alternative_urls"`
	Author       string   `json:"author"`
	Caption      string   `json:"caption"`
	Music        string   `json:"music"`
	Duration     int      `json:"duration"`
	PlayCount    int64    `json:"play_count"`
	LikeCount    int64    `json:"like_count"`
	CommentCount int64    `json:"comment_count"`
	ShareCount   int64    `json:"share_count"`
	CreatedAt    int64    `json:"created_at"`
	CookieHeader string   `json:"cookies,omitempty"`
}
