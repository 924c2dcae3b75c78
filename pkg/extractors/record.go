package extractors

import (
	"fmt"
	"strconv"

	"tokgrab/pkg/logging"
	"tokgrab/pkg/types"
)

// maxSearchDepth bounds the recursive fallback search. Real blobs nest a
// dozen levels at most; anything deeper is pathological input.
const maxSearchDepth = 25

// recordStrategy is one known way of locating the item record inside a
// decoded blob. Strategies are pure: (blob, id) -> record or nil.
type recordStrategy struct {
	name   string
	locate func(data map[string]any, id string) map[string]any
}

var recordStrategies = []recordStrategy{
	{"video-detail", fromVideoDetail},
	{"item-struct", fromItemStruct},
	{"item-module", fromItemModule},
	{"deep-search", fromDeepSearch},
	{"item-module-any", fromItemModuleAny},
	{"item-info", fromItemInfo},
}

// locateRecord walks the strategies in order; the first non-nil result wins.
// A panic inside one strategy is swallowed so the remaining strategies
// still get a chance; only exhaustion is fatal.
func locateRecord(data map[string]any, videoID string, log *logging.Logger) (map[string]any, error) {
	for _, s := range recordStrategies {
		item := runStrategy(s, data, videoID, log)
		if item != nil {
			log.Debug("located item record", "strategy", s.name)
			return item, nil
		}
	}
	return nil, types.NewExtractError(types.ErrRecordNotFound, "video record not found in embedded data")
}

func runStrategy(s recordStrategy, data map[string]any, id string, log *logging.Logger) (item map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug("record strategy failed", "strategy", s.name, "panic", fmt.Sprint(r))
			item = nil
		}
	}()
	return s.locate(data, id)
}

// fromVideoDetail navigates the rehydration-era layout: a default scope
// housing a per-page-type namespace, with a flat videoDetail fallback.
func fromVideoDetail(data map[string]any, _ string) map[string]any {
	detail := mapAt(mapAt(data, "__DEFAULT_SCOPE__"), "webapp.video-detail")
	if detail == nil {
		detail = mapAt(data, "videoDetail")
	}
	return mapAt(mapAt(detail, "itemInfo"), "itemStruct")
}

// fromItemStruct handles the api-data layout with a top-level itemStruct.
func fromItemStruct(data map[string]any, _ string) map[string]any {
	return mapAt(data, "itemStruct")
}

// fromItemModule handles the SIGI_STATE layout: ItemModule keyed by video ID.
func fromItemModule(data map[string]any, id string) map[string]any {
	return mapAt(mapAt(data, "ItemModule"), id)
}

// fromDeepSearch recursively searches the whole blob for an object whose
// id matches and which carries a video sub-object. Resilience fallback for
// nesting layouts we have not seen yet.
func fromDeepSearch(data map[string]any, id string) map[string]any {
	return searchItem(data, id, 0)
}

func searchItem(node any, id string, depth int) map[string]any {
	if depth > maxSearchDepth {
		return nil
	}
	switch v := node.(type) {
	case map[string]any:
		if stringify(v["id"]) == id {
			if _, ok := v["video"].(map[string]any); ok {
				return v
			}
		}
		for _, child := range v {
			if found := searchItem(child, id, depth+1); found != nil {
				return found
			}
		}
	case []any:
		for _, child := range v {
			if found := searchItem(child, id, depth+1); found != nil {
				return found
			}
		}
	}
	return nil
}

// fromItemModuleAny takes the first ItemModule entry regardless of ID.
// Low confidence: can return the wrong record on multi-item pages, but a
// wrong record beats no record at this point in the chain.
func fromItemModuleAny(data map[string]any, _ string) map[string]any {
	module := mapAt(data, "ItemModule")
	for _, v := range module {
		if item, ok := v.(map[string]any); ok {
			return item
		}
	}
	return nil
}

// fromItemInfo handles itemInfo/itemStruct at the top level, outside any
// page-type namespace.
func fromItemInfo(data map[string]any, _ string) map[string]any {
	return mapAt(mapAt(data, "itemInfo"), "itemStruct")
}

// mapAt returns m[key] as a map, or nil. Safe on nil maps.
func mapAt(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	child, _ := m[key].(map[string]any)
	return child
}

// listAt returns m[key] as a list, or nil. Safe on nil maps.
func listAt(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	child, _ := m[key].([]any)
	return child
}

// stringify renders a decoded scalar as a string for ID comparison.
// JSON numbers arrive as float64; IDs are normally strings already.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
