package webmod

import (
	"net/url"
	"strings"
)

// ParseQuery splits a raw query string on '&' and each pair on '='. Pairs
// that do not contain exactly one '=' or that have an empty key are dropped.
// Repeated keys keep every value in order of appearance. Percent-encoded
// keys and values are decoded; invalid escapes are kept verbatim.
func ParseQuery(raw string) map[string][]string {
	query := make(map[string][]string)
	if raw == "" {
		return query
	}
	for _, pair := range strings.Split(raw, "&") {
		kv := strings.Split(pair, "=")
		if len(kv) != 2 || kv[0] == "" {
			continue
		}
		key := unescapeQuery(kv[0])
		query[key] = append(query[key], unescapeQuery(kv[1]))
	}
	return query
}

func unescapeQuery(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}

// splitURI separates the path from the raw query.
func splitURI(uri string) (path, rawQuery string) {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i], uri[i+1:]
	}
	return uri, ""
}
