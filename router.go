package webmod

import "strings"

// Match is the result of a successful route search.
type Match struct {
	Route       *Route
	Path        string
	Middlewares []Middleware
	Module      *Module
	Controller  *Controller
}

// Find searches the tree rooted at m for the first route matching method and
// path. Controllers of a module are tried before its children, routes in
// declaration order. The query string, if any, is ignored.
//
// The returned middlewares run root first: every ancestor module's
// middlewares, then the owning module's, then the controller's.
func (m *Module) Find(method, path string) (*Match, bool) {
	return m.find(method, stripQuery(path), 0)
}

func (m *Module) find(method, path string, depth int) (*Match, bool) {
	if m == nil || depth > MaxModuleDepth {
		return nil, false
	}
	for _, ctrl := range m.Controllers {
		for i := range ctrl.Routes {
			route := &ctrl.Routes[i]
			if route.Method != method {
				continue
			}
			pattern := Normalize(ctrl.Prefix, route.Path)
			if !MatchPath(pattern, path) {
				continue
			}
			mws := make([]Middleware, 0, len(m.Middlewares)+len(ctrl.Middlewares))
			mws = append(mws, m.Middlewares...)
			mws = append(mws, ctrl.Middlewares...)
			return &Match{
				Route:       route,
				Path:        pattern,
				Middlewares: mws,
				Module:      m,
				Controller:  ctrl,
			}, true
		}
	}
	for _, child := range m.Modules {
		if match, ok := child.find(method, path, depth+1); ok {
			if len(m.Middlewares) > 0 {
				mws := make([]Middleware, 0, len(m.Middlewares)+len(match.Middlewares))
				mws = append(mws, m.Middlewares...)
				match.Middlewares = append(mws, match.Middlewares...)
			}
			return match, true
		}
	}
	return nil, false
}

// MatchPath reports whether path matches pattern segment by segment.
// A ':name' pattern segment matches any single non-empty segment; all other
// segments must be equal. The segment counts must agree.
func MatchPath(pattern, path string) bool {
	ps := pathSegments(pattern)
	segs := pathSegments(stripQuery(path))
	if len(ps) != len(segs) {
		return false
	}
	for i, p := range ps {
		if isParam(p) {
			if segs[i] == "" {
				return false
			}
			continue
		}
		if p != segs[i] {
			return false
		}
	}
	return true
}

func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

// pathSegments splits p on '/' after trimming the outer slashes. Inner empty
// segments are kept so that "//" never satisfies a parameter.
func pathSegments(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func isParam(segment string) bool {
	return len(segment) > 1 && segment[0] == ':'
}
