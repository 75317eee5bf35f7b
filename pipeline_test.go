package webmod

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory Transport.
type fakeTransport struct {
	method  string
	uri     string
	proto   string
	headers []HeaderField
	body    []byte
	bodyErr error
}

func (f *fakeTransport) URI() string    { return f.uri }
func (f *fakeTransport) Method() string { return f.method }

func (f *fakeTransport) HTTPVersion() string {
	if f.proto == "" {
		return "HTTP/1.1"
	}
	return f.proto
}

func (f *fakeTransport) Headers() []HeaderField { return f.headers }

func (f *fakeTransport) Body(_ context.Context, limit int64) ([]byte, error) {
	if f.bodyErr != nil {
		return nil, f.bodyErr
	}
	if limit > 0 && int64(len(f.body)) > limit {
		return nil, ErrBodyTooLarge
	}
	return f.body, nil
}

type observedRequest struct {
	method string
	route  string
	status int
}

type fakeRecorder struct {
	mu       sync.Mutex
	observed []observedRequest
	inFlight int
	peak     int
}

func (r *fakeRecorder) ObserveRequest(method, route string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observed = append(r.observed, observedRequest{method: method, route: route, status: status})
}

func (r *fakeRecorder) AddInFlight(delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight += delta
	if r.inFlight > r.peak {
		r.peak = r.inFlight
	}
}

func singleRoute(method, path string, h Handler) *Module {
	return &Module{Name: "root", Controllers: []*Controller{{
		Prefix: "/",
		Routes: []Route{{Method: method, Path: path, Handler: h}},
	}}}
}

func newTestPipeline(t *testing.T, root *Module, cfg *Config, opts ...PipelineOption) *Pipeline {
	t.Helper()
	c := NewContainer(nil)
	require.NoError(t, c.Initialize(root))
	return NewPipeline(root, c, cfg, opts...)
}

func TestPipelineRoutesAndBindsParams(t *testing.T) {
	var seen *Request
	root := singleRoute(http.MethodGet, "/users/:id/posts/:post", func(req *Request, res *Response) *Response {
		seen = req
		return res.JSON(http.StatusOK, map[string]string{"id": req.Param("id")})
	})
	p := newTestPipeline(t, root, nil)

	res := p.Handle(context.Background(), NewConnectionContext("10.0.0.7", nil), &fakeTransport{
		method: http.MethodGet,
		uri:    "/users/42/posts/7?sort=asc&tag=a&tag=b&flag",
		proto:  "HTTP/2.0",
		headers: []HeaderField{
			{Name: "Cookie", Value: "session=abc"},
			{Name: "cookie", Value: "theme=dark"},
			{Name: "X-Custom", Value: "v"},
		},
	})

	require.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `{"id":"42"}`, string(res.Body()))
	require.NotNil(t, seen)
	assert.Equal(t, map[string]string{"id": "42", "post": "7"}, seen.Params)
	assert.Equal(t, "asc", seen.QueryValue("sort"))
	assert.Equal(t, []string{"a", "b"}, seen.Query["tag"])
	assert.NotContains(t, seen.Query, "flag")
	assert.Equal(t, map[string]string{"session": "abc", "theme": "dark"}, seen.Cookies)
	assert.Equal(t, "v", seen.Header("x-custom"))
	assert.Equal(t, "/users/42/posts/7", seen.Path)
	assert.Equal(t, "10.0.0.7", seen.Meta.ClientIP)
	assert.Equal(t, "HTTP/2.0", seen.Meta.ProtocolVersion)
	assert.Equal(t, 3, seen.Meta.HeaderCount)
	assert.Equal(t, "/users/:id/posts/:post", seen.Meta.RoutePath)
	assert.NotEmpty(t, seen.Meta.RequestID)
	assert.Equal(t, seen.Meta.RequestID, res.Header.Get(HeaderRequestID))
}

func TestPipelineKeepsClientRequestID(t *testing.T) {
	p := newTestPipeline(t, singleRoute(http.MethodGet, "/", okHandler("ok")), nil)
	res := p.Handle(context.Background(), nil, &fakeTransport{
		method:  http.MethodGet,
		uri:     "/",
		headers: []HeaderField{{Name: "X-Request-Id", Value: "req-123"}},
	})
	assert.Equal(t, "req-123", res.Header.Get(HeaderRequestID))
}

func TestPipelineCookieParsingCanBeDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Parsing.Cookies = false
	var cookies map[string]string
	p := newTestPipeline(t, singleRoute(http.MethodGet, "/", func(req *Request, res *Response) *Response {
		cookies = req.Cookies
		return res
	}), cfg)
	p.Handle(context.Background(), nil, &fakeTransport{
		method:  http.MethodGet,
		uri:     "/",
		headers: []HeaderField{{Name: "Cookie", Value: "a=1"}},
	})
	assert.Empty(t, cookies)
}

func TestPipelineRejections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxURILength = 64
	cfg.Limits.MaxHeaderBytes = 100
	cfg.Limits.MaxHeaderCount = 3
	cfg.Limits.MaxBodySize = 16

	handled := 0
	root := singleRoute(http.MethodPost, "/items", func(_ *Request, res *Response) *Response {
		handled++
		return res.Text(http.StatusCreated, "created")
	})
	p := newTestPipeline(t, root, cfg)

	tests := []struct {
		name      string
		transport *fakeTransport
		status    int
	}{
		{
			name:      "unknown path",
			transport: &fakeTransport{method: http.MethodPost, uri: "/nope"},
			status:    http.StatusNotFound,
		},
		{
			name:      "wrong method",
			transport: &fakeTransport{method: http.MethodGet, uri: "/items"},
			status:    http.StatusNotFound,
		},
		{
			name:      "uri too long",
			transport: &fakeTransport{method: http.MethodPost, uri: "/items?q=" + strings.Repeat("a", 64)},
			status:    http.StatusRequestURITooLong,
		},
		{
			name: "header bytes",
			transport: &fakeTransport{method: http.MethodPost, uri: "/items", headers: []HeaderField{
				{Name: "X-Big", Value: strings.Repeat("b", 100)},
			}},
			status: http.StatusRequestHeaderFieldsTooLarge,
		},
		{
			name: "header count",
			transport: &fakeTransport{method: http.MethodPost, uri: "/items", headers: []HeaderField{
				{Name: "A", Value: "1"}, {Name: "B", Value: "2"}, {Name: "C", Value: "3"}, {Name: "D", Value: "4"},
			}},
			status: http.StatusRequestHeaderFieldsTooLarge,
		},
		{
			name:      "body too large",
			transport: &fakeTransport{method: http.MethodPost, uri: "/items", body: bytes.Repeat([]byte("x"), 17)},
			status:    http.StatusRequestEntityTooLarge,
		},
		{
			name:      "body read error",
			transport: &fakeTransport{method: http.MethodPost, uri: "/items", bodyErr: errors.New("connection reset")},
			status:    http.StatusBadRequest,
		},
		{
			name: "malformed multipart",
			transport: &fakeTransport{
				method:  http.MethodPost,
				uri:     "/items",
				headers: []HeaderField{{Name: "Content-Type", Value: "multipart/form-data; boundary=xyz"}},
				body:    []byte("garbage"),
			},
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Handle(context.Background(), nil, tt.transport)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, http.StatusText(tt.status), string(res.Body()))
		})
	}
	assert.Zero(t, handled)

	res := p.Handle(context.Background(), nil, &fakeTransport{method: http.MethodPost, uri: "/items", body: []byte("0123456789abcdef")})
	assert.Equal(t, http.StatusCreated, res.Status)
	assert.Equal(t, 1, handled)
}

func TestPipelineHeaderLimitAtBoundary(t *testing.T) {
	cfg := DefaultConfig()
	// "X-A" + "12345" + 4 = 12
	cfg.Limits.MaxHeaderBytes = 12
	p := newTestPipeline(t, singleRoute(http.MethodGet, "/", okHandler("ok")), cfg)

	res := p.Handle(context.Background(), nil, &fakeTransport{method: http.MethodGet, uri: "/", headers: []HeaderField{{Name: "X-A", Value: "12345"}}})
	assert.Equal(t, http.StatusOK, res.Status)

	res = p.Handle(context.Background(), nil, &fakeTransport{method: http.MethodGet, uri: "/", headers: []HeaderField{{Name: "X-A", Value: "123456"}}})
	assert.Equal(t, http.StatusRequestHeaderFieldsTooLarge, res.Status)
}

func TestPipelineRecoversPanics(t *testing.T) {
	logger := &recordingLogger{}
	bus := NewEventBus("test", nil)
	events := make(chan CloudEvent, 1)
	require.NoError(t, bus.RegisterObserver(NewFunctionalObserver("panics", func(_ context.Context, e CloudEvent) error {
		events <- e
		return nil
	}), EventTypeRequestPanicked))

	p := newTestPipeline(t, singleRoute(http.MethodGet, "/boom", func(*Request, *Response) *Response {
		panic("handler exploded")
	}), nil, WithPipelineLogger(logger), WithEventBus(bus))

	res := p.Handle(context.Background(), nil, &fakeTransport{method: http.MethodGet, uri: "/boom"})
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, "Internal Server Error", string(res.Body()))
	assert.True(t, logger.has("error", "Recovered from panic in request handler"))

	select {
	case e := <-events:
		assert.Equal(t, EventTypeRequestPanicked, e.Type())
	case <-time.After(2 * time.Second):
		t.Fatal("no panic event")
	}

	// The pipeline still serves after a panic.
	res = p.Handle(context.Background(), nil, &fakeTransport{method: http.MethodGet, uri: "/missing"})
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestPipelineRecoversMiddlewarePanics(t *testing.T) {
	root := singleRoute(http.MethodGet, "/", okHandler("ok"))
	root.Middlewares = []Middleware{func(*Request, *Response, Next) *Response { panic(errors.New("mw")) }}
	p := newTestPipeline(t, root, nil)
	res := p.Handle(context.Background(), nil, &fakeTransport{method: http.MethodGet, uri: "/"})
	assert.Equal(t, http.StatusInternalServerError, res.Status)
}

func TestPipelineTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestTimeout = 20 * time.Millisecond

	release := make(chan struct{})
	finished := make(chan struct{})
	p := newTestPipeline(t, singleRoute(http.MethodGet, "/slow", func(_ *Request, res *Response) *Response {
		defer close(finished)
		<-release
		return res.Text(http.StatusOK, "late")
	}), cfg)

	lifecycle := p.Lifecycle()
	conn := NewConnectionContext("", lifecycle)
	start := time.Now()
	res := p.Handle(context.Background(), conn, &fakeTransport{method: http.MethodGet, uri: "/slow"})
	assert.Equal(t, http.StatusRequestTimeout, res.Status)
	assert.Less(t, time.Since(start), time.Second)

	// The abandoned work is still counted until it actually ends.
	assert.EqualValues(t, 1, conn.InFlight())
	assert.EqualValues(t, 1, lifecycle.Running())

	close(release)
	<-finished
	assert.Eventually(t, func() bool { return conn.InFlight() == 0 && lifecycle.Running() == 0 }, time.Second, 5*time.Millisecond)
}

func TestPipelineTimeoutCancelsRequestContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestTimeout = 20 * time.Millisecond
	cancelled := make(chan struct{})
	p := newTestPipeline(t, singleRoute(http.MethodGet, "/", func(req *Request, res *Response) *Response {
		<-req.Context().Done()
		close(cancelled)
		return res
	}), cfg)

	res := p.Handle(context.Background(), nil, &fakeTransport{method: http.MethodGet, uri: "/"})
	assert.Equal(t, http.StatusRequestTimeout, res.Status)
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("request context not cancelled")
	}
}

func TestPipelineTimedOutHandlerKeepsItsOwnRequest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestTimeout = 5 * time.Millisecond
	stop := make(chan struct{})
	var handlers sync.WaitGroup
	p := newTestPipeline(t, singleRoute(http.MethodGet, "/", func(req *Request, res *Response) *Response {
		handlers.Add(1)
		defer handlers.Done()
		<-req.Context().Done()
		// Keep writing while the pipeline finishes the timed-out request.
		for i := 0; ; i++ {
			select {
			case <-stop:
				return res
			default:
				req.SetHeader("accept-encoding", fmt.Sprint("late-", i))
			}
		}
	}), cfg)

	for range 20 {
		res := p.Handle(context.Background(), nil, &fakeTransport{
			method:  http.MethodGet,
			uri:     "/",
			headers: []HeaderField{{Name: "Accept-Encoding", Value: "gzip"}},
		})
		assert.Equal(t, http.StatusRequestTimeout, res.Status)
	}
	close(stop)
	assert.Eventually(t, func() bool { return p.Lifecycle().Running() == 0 }, 2*time.Second, 5*time.Millisecond)
	handlers.Wait()
}

func TestRequestWithContextCopiesHeaders(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := &Request{Headers: map[string]string{"accept": "text/plain"}}

	clone := req.WithContext(ctx)
	clone.SetHeader("Accept", "application/json")

	assert.Equal(t, "text/plain", req.Header("Accept"))
	assert.Equal(t, "application/json", clone.Header("Accept"))
	assert.Equal(t, ctx, clone.Context())
	assert.Equal(t, context.Background(), req.Context())
}

func TestPipelineFastHandlerBeatsTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestTimeout = time.Second
	p := newTestPipeline(t, singleRoute(http.MethodGet, "/", okHandler("quick")), cfg)
	res := p.Handle(context.Background(), nil, &fakeTransport{method: http.MethodGet, uri: "/"})
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "quick", string(res.Body()))
}

func TestPipelineCompression(t *testing.T) {
	big := strings.Repeat("hello compression ", 100)
	root := &Module{Name: "root", Controllers: []*Controller{{
		Prefix: "/",
		Routes: []Route{
			{Method: http.MethodGet, Path: "/text", Handler: okHandler(big)},
			{Method: http.MethodGet, Path: "/small", Handler: okHandler("tiny")},
			{Method: http.MethodGet, Path: "/png", Handler: func(_ *Request, res *Response) *Response {
				return res.SetHeader("Content-Type", "image/png").SetBody([]byte(big))
			}},
		},
	}}}
	p := newTestPipeline(t, root, nil)

	res := p.Handle(context.Background(), nil, &fakeTransport{method: http.MethodGet, uri: "/text", headers: []HeaderField{{Name: "Accept-Encoding", Value: "gzip"}}})
	assert.Equal(t, "gzip", res.Header.Get("Content-Encoding"))
	assert.Equal(t, "Accept-Encoding", res.Header.Get("Vary"))
	assert.Equal(t, big, gunzip(t, res.Body()))

	res = p.Handle(context.Background(), nil, &fakeTransport{method: http.MethodGet, uri: "/text", headers: []HeaderField{{Name: "Accept-Encoding", Value: "identity"}}})
	assert.Empty(t, res.Header.Get("Content-Encoding"))
	assert.Equal(t, big, string(res.Body()))

	res = p.Handle(context.Background(), nil, &fakeTransport{method: http.MethodGet, uri: "/small"})
	assert.Empty(t, res.Header.Get("Content-Encoding"))

	res = p.Handle(context.Background(), nil, &fakeTransport{method: http.MethodGet, uri: "/png"})
	assert.Empty(t, res.Header.Get("Content-Encoding"))

	cfg := DefaultConfig()
	cfg.Compression.Enabled = false
	off := newTestPipeline(t, root, cfg)
	res = off.Handle(context.Background(), nil, &fakeTransport{method: http.MethodGet, uri: "/text"})
	assert.Empty(t, res.Header.Get("Content-Encoding"))
}

func TestPipelineUnavailable(t *testing.T) {
	handled := false
	p := newTestPipeline(t, singleRoute(http.MethodGet, "/", func(_ *Request, res *Response) *Response {
		handled = true
		return res
	}), nil)
	p.Lifecycle().SetUnavailable()

	res := p.Handle(context.Background(), nil, &fakeTransport{method: http.MethodGet, uri: "/"})
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	assert.False(t, handled)
}

func TestPipelineMultipartUpload(t *testing.T) {
	var files []MultipartFile
	var form map[string][]string
	p := newTestPipeline(t, singleRoute(http.MethodPost, "/upload", func(req *Request, res *Response) *Response {
		files, form = req.Files, req.Form
		return res.SetStatus(http.StatusNoContent)
	}), nil)

	body := "--b\r\n" +
		"Content-Disposition: form-data; name=\"note\"\r\n\r\n" +
		"hi\r\n" +
		"--b\r\n" +
		"Content-Disposition: form-data; name=\"doc\"; filename=\"a.txt\"\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"file body\r\n" +
		"--b--\r\n"
	res := p.Handle(context.Background(), nil, &fakeTransport{
		method:  http.MethodPost,
		uri:     "/upload",
		headers: []HeaderField{{Name: "Content-Type", Value: "multipart/form-data; boundary=b"}},
		body:    []byte(body),
	})
	require.Equal(t, http.StatusNoContent, res.Status)
	require.Len(t, files, 1)
	assert.Equal(t, "doc", files[0].Name)
	assert.Equal(t, "a.txt", files[0].Filename)
	assert.Equal(t, "file body", string(files[0].Data))
	assert.Equal(t, []string{"hi"}, form["note"])
}

func TestPipelineRecordsRequests(t *testing.T) {
	rec := &fakeRecorder{}
	p := newTestPipeline(t, singleRoute(http.MethodGet, "/items/:id", okHandler("ok")), nil, WithRecorder(rec))

	p.Handle(context.Background(), nil, &fakeTransport{method: http.MethodGet, uri: "/items/1"})
	p.Handle(context.Background(), nil, &fakeTransport{method: http.MethodGet, uri: "/other"})

	assert.Equal(t, []observedRequest{
		{method: http.MethodGet, route: "/items/:id", status: http.StatusOK},
		{method: http.MethodGet, route: "unmatched", status: http.StatusNotFound},
	}, rec.observed)
	assert.Zero(t, rec.inFlight)
	assert.Equal(t, 1, rec.peak)
}

func TestPipelineResolvesProvidersFromRequest(t *testing.T) {
	type greeting string
	root := singleRoute(http.MethodGet, "/", func(req *Request, res *Response) *Response {
		g, ok := GetProvider[greeting](req)
		if !ok {
			return res.Text(http.StatusInternalServerError, "missing")
		}
		return res.Text(http.StatusOK, string(g))
	})
	root.Providers = []Provider{Value(greeting("hi there"))}
	p := newTestPipeline(t, root, nil)

	res := p.Handle(context.Background(), nil, &fakeTransport{method: http.MethodGet, uri: "/"})
	assert.Equal(t, "hi there", string(res.Body()))
}

func TestPipelineStreamResponsePassesThrough(t *testing.T) {
	p := newTestPipeline(t, singleRoute(http.MethodGet, "/events", func(_ *Request, res *Response) *Response {
		return res.SetHeader("Content-Type", "text/plain").Stream(func(_ context.Context, s *Stream) error {
			return s.SendBytes([]byte(strings.Repeat("z", 4096)))
		})
	}), nil)
	res := p.Handle(context.Background(), nil, &fakeTransport{method: http.MethodGet, uri: "/events"})
	assert.True(t, res.IsStream())
	assert.Empty(t, res.Header.Get("Content-Encoding"))
}
