package webmod

// ExtractParams binds the ':name' segments of pattern to the matching
// segments of path. It returns an empty map when path does not match.
func ExtractParams(pattern, path string) map[string]string {
	params := make(map[string]string)
	if !MatchPath(pattern, path) {
		return params
	}
	segs := pathSegments(stripQuery(path))
	for i, p := range pathSegments(pattern) {
		if isParam(p) {
			params[p[1:]] = segs[i]
		}
	}
	return params
}
