package extractors

import (
	"encoding/json"
	"regexp"
	"strings"

	"tokgrab/pkg/logging"
	"tokgrab/pkg/types"

	"github.com/PuerkitoBio/goquery"
)

// The page has carried its data blob in several conventions over time:
// tagged inline script blocks in four id variants, and two flavors of
// global-variable assignment. Exactly one is present on a given page.
var (
	windowSigiRe   = regexp.MustCompile(`(?s)window\['SIGI_STATE'\]\s*=\s*(\{.*?\});`)
	initialStateRe = regexp.MustCompile(`(?s)window\.__INITIAL_STATE__\s*=\s*(\{.*?\});`)
)

// blobPattern is one historical embedding convention.
type blobPattern struct {
	name string
	find func(page string, doc *goquery.Document) (string, bool)
}

func scriptByID(id string) func(string, *goquery.Document) (string, bool) {
	return func(_ string, doc *goquery.Document) (string, bool) {
		if doc == nil {
			return "", false
		}
		sel := doc.Find("script#" + id).First()
		if sel.Length() == 0 {
			return "", false
		}
		return sel.Text(), true
	}
}

func regexCapture(re *regexp.Regexp) func(string, *goquery.Document) (string, bool) {
	return func(page string, _ *goquery.Document) (string, bool) {
		if m := re.FindStringSubmatch(page); len(m) == 2 {
			return m[1], true
		}
		return "", false
	}
}

var blobPatterns = []blobPattern{
	{"api-data", scriptByID("api-data")},
	{"universal-data", scriptByID("__UNIVERSAL_DATA_FOR_REHYDRATION__")},
	{"sigi-state", scriptByID("SIGI_STATE")},
	{"sigi-persisted", scriptByID("sigi-persisted-data")},
	{"window-sigi", regexCapture(windowSigiRe)},
	{"initial-state", regexCapture(initialStateRe)},
}

// locateBlob finds and decodes the embedded data blob in the page text.
// Patterns are tried in order; a match whose capture fails to decode is
// skipped, not fatal. Exhaustion means the page layout is unknown and the
// whole extraction fails.
func locateBlob(page string, log *logging.Logger) (map[string]any, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		log.Debug("failed to parse page HTML", "error", err)
		doc = nil
	}

	for _, p := range blobPatterns {
		raw, ok := p.find(page, doc)
		if !ok {
			continue
		}
		var data map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &data); err != nil {
			log.Debug("pattern matched but capture did not decode", "pattern", p.name, "error", err)
			continue
		}
		log.Debug("matched embedding pattern", "pattern", p.name)
		return data, nil
	}

	// Last resort: a brace-delimited span opening with the ItemModule key,
	// closed by a brace-balance scan over the raw page text.
	if span := scanItemModuleSpan(page); span != "" {
		var data map[string]any
		if err := json.Unmarshal([]byte(span), &data); err == nil {
			log.Debug("matched embedding pattern", "pattern", "item-module-span")
			return data, nil
		}
	}

	return nil, types.NewExtractError(types.ErrDataNotFound, "no embedded data found; page structure may have changed")
}

// scanItemModuleSpan finds a `{"ItemModule":` opening and returns the span
// up to its balancing close brace. The scan respects JSON string literals
// and escapes; it is still a heuristic, since the span may be embedded in
// script text that only looks like JSON.
func scanItemModuleSpan(page string) string {
	start := strings.Index(page, `{"ItemModule":`)
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(page); i++ {
		c := page[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return page[start : i+1]
			}
		}
	}
	return ""
}
