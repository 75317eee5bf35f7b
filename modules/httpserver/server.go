// Package httpserver serves a webmod pipeline over net/http.
//
// Each accepted connection gets a webmod.ConnectionContext whose closed flag
// is set when net/http reports the connection closed. Connections taken
// over by h2c are closed when their HTTP/2 server returns. A chi router sits in
// front of the pipeline to answer the liveness probe and the metrics
// endpoint; every other request is dispatched to the pipeline.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/GoCodeAlone/webmod"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// DefaultHeartbeatPath answers liveness probes without touching the pipeline.
const DefaultHeartbeatPath = "/healthz"

// headerSlack is added to the configured header limit for net/http's own
// guard, so oversized header sets reach the pipeline and get its 431.
const headerSlack = 4096

type connContextKey struct{}

// Server serves a webmod.Pipeline.
type Server struct {
	cfg      *webmod.Config
	pipeline *webmod.Pipeline
	logger   webmod.Logger

	heartbeatPath  string
	metricsPath    string
	metricsHandler http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	started  atomic.Bool
	conns    sync.Map // net.Conn -> *webmod.ConnectionContext
	hijacked sync.Map // *webmod.ConnectionContext -> struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler serves h at path, outside the pipeline.
func WithMetricsHandler(path string, h http.Handler) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.metricsHandler = h
	}
}

// WithHeartbeatPath changes the liveness path; empty disables it.
func WithHeartbeatPath(path string) Option {
	return func(s *Server) { s.heartbeatPath = path }
}

// WithListener serves on an existing listener instead of cfg.Server's address.
func WithListener(l net.Listener) Option {
	return func(s *Server) { s.listener = l }
}

// New creates a server for pipeline. cfg supplies the listen address,
// timeouts and header limits.
func New(cfg *webmod.Config, pipeline *webmod.Pipeline, logger webmod.Logger, opts ...Option) (*Server, error) {
	if pipeline == nil {
		return nil, ErrNoPipeline
	}
	if cfg == nil {
		cfg = webmod.DefaultConfig()
	}
	if logger == nil {
		logger = webmod.NopLogger{}
	}
	s := &Server{
		cfg:           cfg,
		pipeline:      pipeline,
		logger:        logger,
		heartbeatPath: DefaultHeartbeatPath,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the full HTTP handler: chi routes for the liveness check and
// metrics, the pipeline for everything else, wrapped for h2c when enabled.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if s.heartbeatPath != "" {
		r.Use(middleware.Heartbeat(s.heartbeatPath))
	}
	if s.metricsHandler != nil && s.metricsPath != "" {
		r.Method(http.MethodGet, s.metricsPath, s.metricsHandler)
	}
	r.Handle("/*", http.HandlerFunc(s.dispatch))

	if s.cfg.Server.H2C {
		return s.closeAfterH2C(h2c.NewHandler(r, &http2.Server{}))
	}
	return r
}

// Start listens and serves in the background. It returns once the
// listener is bound.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.Load() {
		return ErrServerAlreadyStarted
	}

	addr := s.cfg.Server.Address()
	if s.listener == nil {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		s.listener = l
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:    s.cfg.Limits.MaxHeaderBytes + headerSlack,
		ConnContext:       s.connContext,
		ConnState:         s.connState,
	}

	srv, l := s.server, s.listener
	go func() {
		s.logger.Info("Starting HTTP server", "address", l.Addr().String(), "h2c", s.cfg.Server.H2C)
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.started.Store(true)
	s.logger.Info("HTTP server started successfully", "address", l.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop stops accepting connections and waits for active ones to go idle
// until ctx ends, then closes whatever is left.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil || !s.started.Load() {
		return ErrServerNotStarted
	}

	s.logger.Info("Stopping HTTP server")
	err := srv.Shutdown(ctx)
	if err != nil {
		s.logger.Warn("Graceful shutdown incomplete, closing connections", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			s.logger.Error("Failed to close HTTP server", "error", closeErr)
		}
		s.closeAll()
	}
	s.started.Store(false)
	s.logger.Info("HTTP server stopped")
	if err != nil {
		return fmt.Errorf("error shutting down HTTP server: %w", err)
	}
	return nil
}

func (s *Server) connContext(ctx context.Context, c net.Conn) context.Context {
	cc := webmod.NewConnectionContext(hostOnly(c.RemoteAddr().String()), s.pipeline.Lifecycle())
	s.conns.Store(c, cc)
	return context.WithValue(ctx, connContextKey{}, cc)
}

func (s *Server) connState(c net.Conn, state http.ConnState) {
	switch state { //nolint:exhaustive // only terminal states matter
	case http.StateClosed:
		if v, ok := s.conns.LoadAndDelete(c); ok {
			v.(*webmod.ConnectionContext).Close()
		}
	case http.StateHijacked:
		// h2c keeps serving HTTP/2 streams on the hijacked conn.
		if v, ok := s.conns.LoadAndDelete(c); ok {
			s.hijacked.Store(v, struct{}{})
		}
	}
}

// closeAfterH2C closes the connection context of an h2c connection once
// the HTTP/2 server running on it returns, which is when the connection
// ends.
func (s *Server) closeAfterH2C(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		cc, ok := r.Context().Value(connContextKey{}).(*webmod.ConnectionContext)
		if !ok {
			return
		}
		if _, hijacked := s.hijacked.LoadAndDelete(cc); hijacked {
			cc.Close()
		}
	})
}

func (s *Server) closeAll() {
	s.conns.Range(func(key, value any) bool {
		value.(*webmod.ConnectionContext).Close()
		s.conns.Delete(key)
		return true
	})
	s.hijacked.Range(func(key, _ any) bool {
		key.(*webmod.ConnectionContext).Close()
		s.hijacked.Delete(key)
		return true
	})
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	cc, ok := r.Context().Value(connContextKey{}).(*webmod.ConnectionContext)
	if !ok {
		cc = webmod.NewConnectionContext(hostOnly(r.RemoteAddr), s.pipeline.Lifecycle())
	}

	res := s.pipeline.Handle(r.Context(), cc, requestTransport{r: r})
	for name, values := range res.Header {
		w.Header()[name] = values
	}

	if res.IsStream() {
		s.writeStream(w, r, cc, res)
		return
	}

	body := res.Body()
	if bodyAllowed(res.Status) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	}
	w.WriteHeader(res.Status)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(body); err != nil {
		s.logger.Debug("Failed to write response", "path", r.URL.Path, "error", err)
	}
}

func (s *Server) writeStream(w http.ResponseWriter, r *http.Request, cc *webmod.ConnectionContext, res *webmod.Response) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("Cannot stream response", "path", r.URL.Path, "error", ErrStreamingUnsupported)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h := w.Header()
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", "text/event-stream")
	}
	if h.Get("Cache-Control") == "" {
		h.Set("Cache-Control", "no-cache")
	}
	h.Del("Content-Length")
	w.WriteHeader(res.Status)
	flusher.Flush()

	err := webmod.PumpStream(r.Context(), cc, res.StreamFunc(), flushWriter{w: w, flusher: flusher})
	switch {
	case err == nil:
	case errors.Is(err, webmod.ErrStreamClosed), errors.Is(err, context.Canceled):
		s.logger.Debug("Stream ended by client", "path", r.URL.Path)
	default:
		s.logger.Error("Stream producer failed", "path", r.URL.Path, "error", err)
	}
}

func bodyAllowed(status int) bool {
	return status >= http.StatusOK && status != http.StatusNoContent && status != http.StatusNotModified
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
