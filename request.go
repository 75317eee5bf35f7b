package webmod

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MultipartFile is one file part of a multipart/form-data body.
type MultipartFile struct {
	Name        string
	Filename    string
	ContentType string
	Data        []byte
}

// RequestMeta carries transport facts about a request.
type RequestMeta struct {
	RequestID       string
	ClientIP        string
	ProtocolVersion string
	HeaderBytes     int
	HeaderCount     int
	RoutePath       string
}

// Request is the parsed form of an incoming request as seen by middlewares
// and handlers. Header names are lower case.
type Request struct {
	Method  string
	Path    string
	URI     string
	Body    []byte
	Headers map[string]string
	Query   map[string][]string
	Params  map[string]string
	Cookies map[string]string
	Form    map[string][]string
	Files   []MultipartFile
	Meta    RequestMeta

	ctx       context.Context
	container *Container
}

// Context returns the request context. It is cancelled when the request
// times out or the client goes away.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a copy of r using ctx. The copy has its own header
// map, so SetHeader on it is invisible to r.
func (r *Request) WithContext(ctx context.Context) *Request {
	clone := *r
	clone.ctx = ctx
	if r.Headers != nil {
		clone.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			clone.Headers[k] = v
		}
	}
	return &clone
}

// Container returns the shared dependency container.
func (r *Request) Container() *Container {
	return r.container
}

// Header returns the value of the named header, case-insensitively.
func (r *Request) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// SetHeader sets a header value seen by later middlewares and the handler.
func (r *Request) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[strings.ToLower(name)] = value
}

// QueryValue returns the first value for key.
func (r *Request) QueryValue(key string) string {
	if vals := r.Query[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Param returns a path parameter bound by the route pattern.
func (r *Request) Param(name string) string {
	return r.Params[name]
}

// Cookie returns a cookie value.
func (r *Request) Cookie(name string) (string, bool) {
	v, ok := r.Cookies[name]
	return v, ok
}

// BindJSON decodes the body into v.
func (r *Request) BindJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// GetProvider fetches a resolved provider instance through the request.
func GetProvider[T any](r *Request) (T, bool) {
	return Get[T](r.container)
}
