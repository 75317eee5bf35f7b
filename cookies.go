package webmod

import "net/http"

// ParseCookies parses a Cookie header value. Malformed pairs are skipped.
// When a name repeats the first value wins.
func ParseCookies(header string) map[string]string {
	cookies := make(map[string]string)
	if header == "" {
		return cookies
	}
	r := http.Request{Header: http.Header{"Cookie": {header}}}
	for _, c := range r.Cookies() {
		if _, exists := cookies[c.Name]; !exists {
			cookies[c.Name] = c.Value
		}
	}
	return cookies
}
