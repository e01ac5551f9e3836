// Package chatgpt extracts conversations from ChatGPT's three surfaces:
// public share pages (React Flight loader payloads), the authenticated
// backend API, and rendered live-page DOM snapshots.
package chatgpt

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ShareData is the decoded share-page payload: the message node graph
// plus the rendered root-to-leaf path.
type ShareData struct {
	Mapping map[string]any
	Linear  []any
}

var nextDataRe = regexp.MustCompile(`(?s)<script id="__NEXT_DATA__"[^>]*>(.*?)</script>`)

// DecodeSharePage extracts conversation data from a share-page HTML
// blob. Two strategies run in order, first non-empty result wins:
// the modern Flight loader payload embedded in streamController.enqueue
// calls, then the legacy __NEXT_DATA__ script blob.
func DecodeSharePage(html string) (*ShareData, error) {
	if data := decodeFlightPayloads(html); data != nil {
		return data, nil
	}
	if data := decodeNextData(html); data != nil {
		return data, nil
	}
	return nil, fmt.Errorf("share page contains no recognizable conversation payload")
}

// decodeFlightPayloads scans every streamController.enqueue(...) call
// in the page and decodes its loader payload. Payloads embed arbitrary
// strings, so the argument is located by balanced-parenthesis scanning
// with quote awareness, not by regex.
func decodeFlightPayloads(html string) *ShareData {
	const marker = "streamController.enqueue("
	offset := 0
	for {
		idx := strings.Index(html[offset:], marker)
		if idx < 0 {
			return nil
		}
		start := offset + idx + len(marker)
		arg, end := scanBalancedArg(html, start)
		offset = end
		if arg == "" {
			continue
		}
		loader := unwrapLoaderArray(arg)
		if loader == nil {
			continue
		}
		decoded := decodeLoader(loader)
		if data := shareDataFromLoader(decoded); data != nil {
			return data
		}
	}
}

// scanBalancedArg returns the argument text starting at start, scanning
// until the parenthesis that opened the call closes. Quote state (single,
// double, backtick) and backslash escapes are tracked so parentheses
// inside string payloads don't terminate the scan early.
func scanBalancedArg(s string, start int) (string, int) {
	depth := 1
	var quote byte
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start:i]), i + 1
			}
		}
	}
	return "", len(s)
}

// unwrapLoaderArray turns the enqueue argument into the flat loader
// array. The argument is usually a JSON string whose content is itself
// a JSON array (one extra quoting layer); a bare array also works.
func unwrapLoaderArray(arg string) []any {
	text := arg
	if strings.HasPrefix(arg, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(arg), &inner); err != nil {
			return nil
		}
		text = inner
	}
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "[") {
		return nil
	}
	var loader []any
	if err := json.Unmarshal([]byte(text), &loader); err != nil {
		return nil
	}
	return loader
}

var backrefKeyRe = regexp.MustCompile(`^_(\d+)$`)

// decodeLoader resolves a Flight loader payload: a flat array where
// even positions are keys and odd positions are values. An object key
// of the form "_N" back-references loader[N] for its real key, and any
// integer value references another loader index. Resolution is memoized
// per index so cyclic references terminate: a revisited index resolves
// to nil the first time, then the cache entry is overwritten with the
// true value.
func decodeLoader(loader []any) map[string]any {
	cache := make(map[int]any)

	var resolveIndex func(i int) any
	var resolveValue func(v any) any

	resolveIndex = func(i int) any {
		if v, ok := cache[i]; ok {
			return v
		}
		if i < 0 || i >= len(loader) {
			return nil
		}
		cache[i] = nil // cycle guard
		resolved := resolveValue(loader[i])
		cache[i] = resolved
		return resolved
	}

	resolveValue = func(v any) any {
		switch t := v.(type) {
		case float64:
			if t == math.Trunc(t) && t >= 0 && t < float64(len(loader)) {
				return resolveIndex(int(t))
			}
			return t
		case []any:
			out := make([]any, len(t))
			for i, e := range t {
				out[i] = resolveValue(e)
			}
			return out
		case map[string]any:
			out := make(map[string]any, len(t))
			for k, val := range t {
				key := k
				if m := backrefKeyRe.FindStringSubmatch(k); m != nil {
					n, _ := strconv.Atoi(m[1])
					if s, ok := resolveIndex(n).(string); ok {
						key = s
					}
				}
				out[key] = resolveValue(val)
			}
			return out
		default:
			return v
		}
	}

	result := make(map[string]any)
	for i := 0; i+1 < len(loader); i += 2 {
		key, ok := loader[i].(string)
		if !ok {
			continue
		}
		result[key] = resolveValue(loader[i+1])
	}
	return result
}

const shareRouteKey = "routes/share.$shareId.($action)"

// shareDataFromLoader digs the conversation data out of the resolved
// loader object. Returns nil when the payload holds no mapping.
func shareDataFromLoader(decoded map[string]any) *ShareData {
	loaderData, ok := decoded["loaderData"].(map[string]any)
	if !ok {
		return nil
	}
	route, ok := loaderData[shareRouteKey].(map[string]any)
	if !ok {
		return nil
	}
	server, ok := route["serverResponse"].(map[string]any)
	if !ok {
		return nil
	}
	data, ok := server["data"].(map[string]any)
	if !ok {
		return nil
	}
	return shareDataFromMap(data)
}

// decodeNextData handles pre-Flight share pages that embed the payload
// in a __NEXT_DATA__ script tag.
func decodeNextData(html string) *ShareData {
	m := nextDataRe.FindStringSubmatch(html)
	if m == nil {
		return nil
	}
	var blob map[string]any
	if err := json.Unmarshal([]byte(m[1]), &blob); err != nil {
		return nil
	}
	data := digMap(blob, "props", "pageProps", "serverResponse", "data")
	if data == nil {
		return nil
	}
	return shareDataFromMap(data)
}

func shareDataFromMap(data map[string]any) *ShareData {
	mapping, ok := data["mapping"].(map[string]any)
	if !ok || len(mapping) == 0 {
		return nil
	}
	linear, _ := data["linear_conversation"].([]any)
	return &ShareData{Mapping: mapping, Linear: linear}
}

// digMap walks nested string-keyed maps, returning nil when any step
// is missing or the wrong shape.
func digMap(m map[string]any, keys ...string) map[string]any {
	cur := m
	for _, k := range keys {
		next, ok := cur[k].(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}
