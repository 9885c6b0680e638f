package scenario

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/apiprobe/apiprobe/pkg/schema"
)

// Extract applies a step's extraction rules to a decoded response body
// and its headers. Rules that match nothing contribute no entry; rules
// without a name are skipped. Extraction never fails the step.
func Extract(body any, rules []schema.ExtractRule, headers http.Header) map[string]any {
	out := make(map[string]any)
	for _, rule := range rules {
		if strings.TrimSpace(rule.Name) == "" {
			continue
		}
		var (
			v  any
			ok bool
		)
		switch {
		case rule.Path != "":
			v, ok = QueryPath(body, rule.Path)
		case rule.Header != "":
			v, ok = extractHeader(headers, rule.Header)
		case rule.Cookie != "":
			v, ok = extractCookie(headers, rule.Cookie)
		case rule.Regex != "":
			v, ok = extractRegex(body, rule.Regex, rule.Group)
		}
		if ok {
			out[rule.Name] = v
		}
	}
	return out
}

// QueryPath evaluates a dotted path with optional [idx] and [*] index
// segments against decoded JSON data. A leading "$." or "$" prefix is
// tolerated. The boolean reports whether the path resolved.
func QueryPath(data any, path string) (any, bool) {
	path = strings.TrimPrefix(path, "$.")
	path = strings.TrimPrefix(path, "$")
	if path == "" {
		return data, true
	}

	current := []any{data}
	fannedOut := false
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return nil, false
		}
		name, indexes := splitIndexes(seg)
		if name != "" {
			current = applyField(current, name)
		}
		for _, idx := range indexes {
			if idx == "*" {
				fannedOut = true
			}
			current = applyIndex(current, idx)
		}
		if current == nil {
			return nil, false
		}
	}

	if fannedOut {
		return current, true
	}
	switch len(current) {
	case 0:
		return nil, false
	case 1:
		return current[0], true
	default:
		return current, true
	}
}

// splitIndexes separates "items[0][*]" into "items" and its index
// tokens.
func splitIndexes(seg string) (name string, indexes []string) {
	open := strings.Index(seg, "[")
	if open < 0 {
		return seg, nil
	}
	name = seg[:open]
	rest := seg[open:]
	for strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return name, indexes
		}
		indexes = append(indexes, rest[1:end])
		rest = rest[end+1:]
	}
	return name, indexes
}

func applyField(current []any, name string) []any {
	var next []any
	for _, v := range current {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		fv, ok := m[name]
		if !ok {
			return nil
		}
		next = append(next, fv)
	}
	return next
}

func applyIndex(current []any, idx string) []any {
	if idx == "*" {
		// Fan out: each list element becomes its own cursor, so a
		// following field segment collects that field per element.
		var next []any
		for _, v := range current {
			list, ok := v.([]any)
			if !ok {
				return nil
			}
			next = append(next, list...)
		}
		if next == nil {
			next = []any{}
		}
		return next
	}
	n, err := strconv.Atoi(idx)
	if err != nil {
		return nil
	}
	var next []any
	for _, v := range current {
		list, ok := v.([]any)
		if !ok || n < 0 || n >= len(list) {
			return nil
		}
		next = append(next, list[n])
	}
	return next
}

func extractHeader(headers http.Header, name string) (any, bool) {
	if headers == nil {
		return nil, false
	}
	v := headers.Get(name)
	if v == "" {
		return nil, false
	}
	return v, true
}

// extractCookie scans Set-Cookie headers for a named cookie value.
func extractCookie(headers http.Header, name string) (any, bool) {
	if headers == nil {
		return nil, false
	}
	re, err := regexp.Compile(regexp.QuoteMeta(name) + `=([^;]+)`)
	if err != nil {
		return nil, false
	}
	for _, sc := range headers.Values("Set-Cookie") {
		if m := re.FindStringSubmatch(sc); m != nil {
			return m[1], true
		}
	}
	return nil, false
}

// extractRegex matches a pattern against the response body text. A
// non-string body is JSON-serialized first. Group selects the capture
// group (0 is the whole match).
func extractRegex(body any, pattern string, group int) (any, bool) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, false
	}
	text, ok := body.(string)
	if !ok {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, false
		}
		text = string(data)
	}
	m := re.FindStringSubmatch(text)
	if m == nil || group < 0 || group >= len(m) {
		return nil, false
	}
	return m[group], true
}
