package webmod

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

// Transport is the pipeline's view of an incoming request.
type Transport interface {
	URI() string
	Method() string
	HTTPVersion() string
	Headers() []HeaderField
	// Body reads at most limit bytes and fails with ErrBodyTooLarge when
	// the body is longer.
	Body(ctx context.Context, limit int64) ([]byte, error)
}

// RequestRecorder observes finished requests, e.g. for metrics.
type RequestRecorder interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
	AddInFlight(delta int)
}

// HeaderRequestID is echoed on every response.
const HeaderRequestID = "X-Request-Id"

// Pipeline turns a transport request into a response: routing, parsing,
// limit checks, middlewares, handler, compression.
type Pipeline struct {
	root       *Module
	container  *Container
	cfg        *Config
	logger     Logger
	compressor Compressor
	recorder   RequestRecorder
	lifecycle  *Lifecycle
	events     *EventBus
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the logger.
func WithPipelineLogger(logger Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

// WithCompressor replaces the gzip compressor.
func WithCompressor(c Compressor) PipelineOption {
	return func(p *Pipeline) { p.compressor = c }
}

// WithRecorder attaches a RequestRecorder.
func WithRecorder(r RequestRecorder) PipelineOption {
	return func(p *Pipeline) { p.recorder = r }
}

// WithPipelineLifecycle shares a Lifecycle with the transport.
func WithPipelineLifecycle(l *Lifecycle) PipelineOption {
	return func(p *Pipeline) { p.lifecycle = l }
}

// WithEventBus makes the pipeline emit request events.
func WithEventBus(b *EventBus) PipelineOption {
	return func(p *Pipeline) { p.events = b }
}

// NewPipeline creates a pipeline over a validated tree and an initialized
// container. A nil cfg uses DefaultConfig.
func NewPipeline(root *Module, container *Container, cfg *Config, opts ...PipelineOption) *Pipeline {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &Pipeline{
		root:       root,
		container:  container,
		cfg:        cfg,
		logger:     NopLogger{},
		compressor: GzipCompressor{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.lifecycle == nil {
		p.lifecycle = NewLifecycle()
	}
	return p
}

// Lifecycle returns the lifecycle the pipeline checks for shutdown.
func (p *Pipeline) Lifecycle() *Lifecycle {
	return p.lifecycle
}

// Handle processes one request. It never returns nil and never panics.
func (p *Pipeline) Handle(ctx context.Context, conn *ConnectionContext, t Transport) *Response {
	start := time.Now()
	if conn == nil {
		conn = NewConnectionContext("", p.lifecycle)
	}
	if p.recorder != nil {
		p.recorder.AddInFlight(1)
		defer p.recorder.AddInFlight(-1)
	}

	res, routePath, requestID := p.handle(ctx, conn, t)
	res.next = nil
	if requestID != "" {
		res.SetHeader(HeaderRequestID, requestID)
	}

	if p.recorder != nil {
		if routePath == "" {
			routePath = "unmatched"
		}
		p.recorder.ObserveRequest(t.Method(), routePath, res.Status, time.Since(start))
	}
	return res
}

func (p *Pipeline) handle(ctx context.Context, conn *ConnectionContext, t Transport) (*Response, string, string) {
	if p.lifecycle.Unavailable() {
		return ServiceUnavailable(), "", ""
	}

	uri := t.URI()
	if len(uri) > p.cfg.Limits.MaxURILength {
		return URITooLong(), "", ""
	}
	path, rawQuery := splitURI(uri)
	method := t.Method()

	match, ok := p.root.Find(method, path)
	if !ok {
		return NotFound(), "", ""
	}

	headers, headerBytes, err := parseHeaders(t.Headers(), p.cfg.Limits.MaxHeaderBytes, p.cfg.Limits.MaxHeaderCount)
	if err != nil {
		p.logger.Debug("Rejecting request headers", "path", path, "error", err)
		return HeaderFieldsTooLarge(), match.Path, ""
	}

	requestID := headers[strings.ToLower(HeaderRequestID)]
	if requestID == "" {
		requestID = newID()
	}

	req := &Request{
		Method:  method,
		Path:    path,
		URI:     uri,
		Headers: headers,
		Query:   ParseQuery(rawQuery),
		Params:  ExtractParams(match.Path, path),
		Meta: RequestMeta{
			RequestID:       requestID,
			ClientIP:        conn.ClientIP,
			ProtocolVersion: t.HTTPVersion(),
			HeaderBytes:     headerBytes,
			HeaderCount:     len(t.Headers()),
			RoutePath:       match.Path,
		},
		ctx:       ctx,
		container: p.container,
	}
	if p.cfg.Parsing.Cookies {
		req.Cookies = ParseCookies(headers["cookie"])
	}
	var boundary string
	if p.cfg.Parsing.Multipart {
		boundary = MultipartBoundary(headers["content-type"])
	}

	body, err := t.Body(ctx, p.cfg.Limits.MaxBodySize)
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			return PayloadTooLarge(), match.Path, requestID
		}
		p.logger.Debug("Failed to read request body", "path", path, "error", err)
		return BadRequest(), match.Path, requestID
	}
	req.Body = body

	if boundary != "" {
		files, form, err := ParseMultipart(body, boundary)
		if err != nil {
			p.logger.Debug("Rejecting multipart body", "path", path, "error", err)
			return BadRequest(), match.Path, requestID
		}
		req.Files = files
		req.Form = form
	}

	acceptEncoding := req.Header("Accept-Encoding")
	res := p.execute(ctx, conn, req, match)
	p.compress(path, acceptEncoding, res)
	return res, match.Path, requestID
}

// execute runs middlewares and handler, under the request timeout when one
// is configured. The unit of work stays counted on the connection until it
// returns, even after its result has been discarded. A timed unit of work
// gets its own copy of req, so nothing it does after the deadline is seen
// by the caller.
func (p *Pipeline) execute(ctx context.Context, conn *ConnectionContext, req *Request, match *Match) *Response {
	timeout := p.cfg.RequestTimeout
	if timeout <= 0 {
		end := conn.begin()
		defer end()
		return p.run(req, match)
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	method, path, requestID := req.Method, req.Path, req.Meta.RequestID
	timed := req.WithContext(tctx)

	end := conn.begin()
	done := make(chan *Response, 1)
	go func() {
		defer end()
		done <- p.run(timed, match)
	}()

	select {
	case res := <-done:
		return res
	case <-tctx.Done():
		p.logger.Warn("Request timed out", "method", method, "path", path, "timeout", timeout, "requestID", requestID)
		p.events.emit(ctx, EventTypeRequestTimeout, map[string]any{
			"method":    method,
			"path":      path,
			"requestId": requestID,
			"timeout":   timeout.String(),
		})
		return RequestTimeout()
	}
}

// run is the panic boundary around the middleware chain and handler.
func (p *Pipeline) run(req *Request, match *Match) (res *Response) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Recovered from panic in request handler",
				"panic", r,
				"method", req.Method,
				"path", req.Path,
				"requestID", req.Meta.RequestID,
				"stack", string(debug.Stack()),
			)
			p.events.emit(req.Context(), EventTypeRequestPanicked, map[string]any{
				"method":    req.Method,
				"path":      req.Path,
				"requestId": req.Meta.RequestID,
				"panic":     fmt.Sprint(r),
			})
			res = InternalServerError()
		}
	}()
	return runChain(req, NewResponse(), match.Middlewares, match.Route.Handler)
}

// compress replaces an eligible immediate body with its compressed form.
// Failures leave the response untouched.
func (p *Pipeline) compress(path, acceptEncoding string, res *Response) {
	if p.compressor == nil {
		return
	}
	encoding := p.compressor.Encoding()
	if !compressible(p.cfg.Compression, res, encoding, acceptEncoding) {
		return
	}
	compressed, err := p.compressor.Compress(res.body)
	if err != nil {
		p.logger.Error("Response compression failed", "encoding", encoding, "path", path, "error", err)
		return
	}
	res.body = compressed
	h := res.ensureHeader()
	h.Set("Content-Encoding", encoding)
	h.Add("Vary", "Accept-Encoding")
	h.Del("Content-Length")
}
