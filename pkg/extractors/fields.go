package extractors

import (
	"sort"
	"strconv"

	"tokgrab/pkg/types"
	"tokgrab/pkg/urlutil"
)

// normalizeItem turns a located item record into the output schema.
// The record's key layout varies by page era, so every field read is a
// first-non-empty walk over the known alternatives.
func normalizeItem(item map[string]any, videoID string) (*types.VideoRecord, error) {
	video := mapAt(item, "video")
	author := mapAt(item, "author")
	music := mapAt(item, "music")

	stats := mapAt(item, "stats")
	if len(stats) == 0 {
		stats = mapAt(item, "statsV2")
	}

	urls := collectMediaURLs(item, video)
	if len(urls) == 0 {
		return nil, types.NewExtractError(types.ErrNoPlayableMedia, "no video download URLs in record")
	}

	return &types.VideoRecord{
		ID:           videoID,
		MediaURL:     urls[0],
		AltMediaURLs: urls[1:],
		Author:       authorHandle(item, author),
		Caption:      caption(item),
		Music:        firstNonEmpty(stringAt(music, "title"), stringAt(music, "authorName"), "Original Sound"),
		Duration:     int(intAt(video, "duration")),
		PlayCount:    intAt(stats, "playCount"),
		LikeCount:    likeCount(stats),
		CommentCount: intAt(stats, "commentCount"),
		ShareCount:   intAt(stats, "shareCount"),
		CreatedAt:    intAt(item, "createTime"),
	}, nil
}

// collectMediaURLs gathers every candidate media URL in preference order:
// the direct download address, then bitrate variants highest first, then
// the plain play address. URLs are cleaned to absolute HTTPS before
// de-duplication so scheme variants of the same link collapse.
func collectMediaURLs(item, video map[string]any) []string {
	var urls []string
	seen := make(map[string]bool)
	add := func(u string) {
		if u == "" {
			return
		}
		u = urlutil.ForceHTTPS(u)
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}

	add(stringAt(video, "downloadAddr"))

	variants := listAt(video, "bitrateInfo")
	sorted := make([]any, len(variants))
	copy(sorted, variants)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, _ := sorted[i].(map[string]any)
		b, _ := sorted[j].(map[string]any)
		return intAt(a, "Bitrate") > intAt(b, "Bitrate")
	})
	for _, v := range sorted {
		variant, _ := v.(map[string]any)
		for _, u := range listAt(mapAt(variant, "PlayAddr"), "UrlList") {
			if s, ok := u.(string); ok {
				add(s)
			}
		}
	}

	if p := stringAt(video, "playAddr"); p != "" {
		add(p)
	} else {
		add(stringAt(item, "videoUrl"))
	}

	return urls
}

// authorHandle reads the author handle from the nested author object,
// falling back to the flat authorName field and finally a sentinel.
func authorHandle(item, author map[string]any) string {
	return firstNonEmpty(
		stringAt(author, "uniqueId"),
		stringAt(author, "nickname"),
		stringAt(item, "authorName"),
		"unknown",
	)
}

// caption reads desc, or the first contents entry's desc.
func caption(item map[string]any) string {
	if desc := stringAt(item, "desc"); desc != "" {
		return desc
	}
	if contents := listAt(item, "contents"); len(contents) > 0 {
		if first, ok := contents[0].(map[string]any); ok {
			return stringAt(first, "desc")
		}
	}
	return ""
}

// likeCount reads diggCount, falling back to the older likeCount key.
func likeCount(stats map[string]any) int64 {
	if stats == nil {
		return 0
	}
	if _, ok := stats["diggCount"]; ok {
		return intAt(stats, "diggCount")
	}
	return intAt(stats, "likeCount")
}

// stringAt returns m[key] as a string, or "". Safe on nil maps.
func stringAt(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// intAt returns m[key] as an int64, defaulting to zero. statsV2 encodes
// counts as JSON strings, so numeric strings parse too.
func intAt(m map[string]any, key string) int64 {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
