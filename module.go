// Package webmod provides the request-dispatch core of a modular HTTP framework.
//
// An application is described as a tree of modules. Each module owns controllers,
// providers and middlewares, and may nest child modules. At boot the tree is
// validated and every provider is resolved into a shared dependency container.
// At request time the router searches the tree, the pipeline threads the request
// through the collected middlewares and the handler's response is written either
// in one piece or as a stream of frames.
//
// Basic usage:
//
//	root := &webmod.Module{
//		Name: "app",
//		Providers: []webmod.Provider{webmod.Provide(NewStore)},
//		Controllers: []*webmod.Controller{{
//			Prefix: "/users",
//			Routes: []webmod.Route{{Method: http.MethodGet, Path: "/:id", Handler: getUser}},
//		}},
//	}
//	app, err := webmod.New(root, webmod.WithLogger(logger))
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := app.Init(); err != nil {
//		log.Fatal(err)
//	}
package webmod

import "strings"

// Handler produces the final response for a matched route.
// It receives the request and the response under construction after every
// middleware has run, and returns the response to send.
type Handler func(req *Request, res *Response) *Response

// Module is a node of the application tree.
//
// Modules are built once at boot and never modified afterwards. Traversal is
// depth first, visiting a module's own controllers before its children.
type Module struct {
	// Name identifies the module in logs and route listings.
	Name string

	// Modules are the nested child modules, searched in declaration order.
	Modules []*Module

	// Controllers are searched before Modules.
	Controllers []*Controller

	// Providers are resolved into the container during Application.Init.
	Providers []Provider

	// Middlewares apply to every route in this module and its descendants.
	Middlewares []Middleware
}

// Controller groups routes under a common path prefix.
type Controller struct {
	Prefix      string
	Routes      []Route
	Middlewares []Middleware
}

// Route binds a method and a path pattern to a handler.
// Pattern segments starting with ':' bind one non-empty path segment.
type Route struct {
	Method  string
	Path    string
	Handler Handler
}

// RouteInfo describes a route as registered in the tree.
type RouteInfo struct {
	Method string
	Path   string
	Module string
}

// Normalize joins prefix and path into a canonical route path: a single
// leading slash, no trailing slash and no empty segments. The empty path is "/".
// Normalize is idempotent.
func Normalize(prefix, path string) string {
	segments := splitSegments(prefix)
	segments = append(segments, splitSegments(path)...)
	if len(segments) == 0 {
		return "/"
	}
	return "/" + strings.Join(segments, "/")
}

// splitSegments returns the non-empty '/'-separated segments of p.
func splitSegments(p string) []string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Walk visits m and every descendant in depth-first pre-order.
// Returning false from fn stops the walk below that module.
func (m *Module) Walk(fn func(mod *Module, depth int) bool) {
	m.walk(fn, 0)
}

func (m *Module) walk(fn func(mod *Module, depth int) bool, depth int) {
	if m == nil || !fn(m, depth) {
		return
	}
	for _, child := range m.Modules {
		child.walk(fn, depth+1)
	}
}

// Routes lists every route in router search order.
func (m *Module) Routes() []RouteInfo {
	var routes []RouteInfo
	m.Walk(func(mod *Module, _ int) bool {
		for _, ctrl := range mod.Controllers {
			for _, route := range ctrl.Routes {
				routes = append(routes, RouteInfo{
					Method: route.Method,
					Path:   Normalize(ctrl.Prefix, route.Path),
					Module: mod.Name,
				})
			}
		}
		return true
	})
	return routes
}
