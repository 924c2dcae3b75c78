// Package urlutil provides URL helpers for media link cleanup and host checks.
package urlutil

import (
	"net/url"
	"strings"
)

// ForceHTTPS makes a media URL absolute and HTTPS.
// Protocol-relative URLs ("//host/path") get an explicit https scheme,
// plain http is upgraded. Anything else is returned unchanged.
func ForceHTTPS(urlStr string) string {
	switch {
	case strings.HasPrefix(urlStr, "//"):
		return "https:" + urlStr
	case strings.HasPrefix(urlStr, "http://"):
		return "https://" + urlStr[len("http://"):]
	default:
		return urlStr
	}
}

// GetDomain extracts the host from a URL.
func GetDomain(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return parsed.Host
}

// tiktokHostSuffixes are the host families media may legitimately come from.
// CDN hosts rotate (v16-webapp, v19, ...) but stay within these domains.
var tiktokHostSuffixes = []string{
	"tiktok.com",
	"tiktokv.com",
	"tiktokcdn.com",
	"tiktokcdn-us.com",
	"tiktokcdn-eu.com",
	"ibytedtos.com",
	"ttwstatic.com",
}

// IsTikTokHost reports whether urlStr points at TikTok or one of its CDNs.
// Used to keep the media relay from becoming an open proxy.
func IsTikTokHost(urlStr string) bool {
	host := strings.ToLower(GetDomain(urlStr))
	if host == "" {
		return false
	}
	// Strip port if present
	if idx := strings.LastIndex(host, ":"); idx > 0 && !strings.Contains(host[idx:], "]") {
		host = host[:idx]
	}
	for _, suffix := range tiktokHostSuffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
