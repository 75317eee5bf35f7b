package webmod

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer records Start and Stop calls.
type fakeServer struct {
	mu       sync.Mutex
	name     string
	log      *[]string
	startErr error
	stopErr  error
	started  chan struct{}
	stopCtx  context.Context
}

func newFakeServer(name string, log *[]string) *fakeServer {
	return &fakeServer{name: name, log: log, started: make(chan struct{})}
}

func (s *fakeServer) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.log = append(*s.log, "start "+s.name)
	if s.startErr != nil {
		return s.startErr
	}
	close(s.started)
	return nil
}

func (s *fakeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.log = append(*s.log, "stop "+s.name)
	s.stopCtx = ctx
	return s.stopErr
}

func TestNewRejectsNilRoot(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrModuleNil)

	_, err = New(&Module{Name: "root"}, WithLogger(nil))
	assert.ErrorIs(t, err, ErrConfigNil)
	_, err = New(&Module{Name: "root"}, WithConfig(nil))
	assert.ErrorIs(t, err, ErrConfigNil)
	_, err = New(&Module{Name: "root"}, WithLifecycle(nil))
	assert.ErrorIs(t, err, ErrConfigNil)
}

func TestApplicationInit(t *testing.T) {
	type counter struct{ n int }
	root := &Module{
		Name:      "root",
		Providers: []Provider{Value(&counter{n: 1})},
		Controllers: []*Controller{{
			Prefix: "/count",
			Routes: []Route{{Method: http.MethodGet, Path: "/", Handler: func(req *Request, res *Response) *Response {
				c := MustGet[*counter](req.Container())
				return res.JSON(http.StatusOK, map[string]int{"n": c.n})
			}}},
		}},
	}
	collector := &eventCollector{id: "collector"}
	app, err := New(root, WithLogger(&testLogger{t: t}), WithObservers(collector))
	require.NoError(t, err)

	assert.Nil(t, app.Pipeline())
	require.NoError(t, app.Init())
	require.NoError(t, app.Init())
	require.NotNil(t, app.Pipeline())
	assert.True(t, app.Container().Sealed())
	assert.Same(t, app.Lifecycle(), app.Pipeline().Lifecycle())
	assert.Same(t, root, app.Root())
	assert.NotNil(t, app.Config())
	assert.NotNil(t, app.Logger())
	assert.NotNil(t, app.Events())

	res := app.Pipeline().Handle(context.Background(), nil, &fakeTransport{method: http.MethodGet, uri: "/count"})
	assert.JSONEq(t, `{"n":1}`, string(res.Body()))

	assert.Eventually(t, func() bool { return collector.count(EventTypeProviderResolved) == 1 }, time.Second, 5*time.Millisecond)
}

func TestApplicationInitFailures(t *testing.T) {
	t.Run("provider", func(t *testing.T) {
		type missing struct{}
		type needs struct{}
		root := &Module{Name: "root", Providers: []Provider{
			Provide(func(*Container) (needs, error) { return needs{}, nil }, TypeOf[missing]()),
		}}
		collector := &eventCollector{id: "collector"}
		logger := &recordingLogger{}
		app, err := New(root, WithLogger(logger), WithObservers(collector))
		require.NoError(t, err)

		assert.ErrorIs(t, app.Init(), ErrNoProviderReady)
		assert.Nil(t, app.Pipeline())
		assert.True(t, logger.has("error", "Application initialization failed"))
		assert.Eventually(t, func() bool { return collector.count(EventTypeApplicationFailed) == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("cycle", func(t *testing.T) {
		root := &Module{Name: "root"}
		root.Modules = []*Module{root}
		app, err := New(root)
		require.NoError(t, err)
		assert.ErrorIs(t, app.Init(), ErrModuleCycle)
	})
}

func TestApplicationRunRequiresInit(t *testing.T) {
	app, err := New(&Module{Name: "root"})
	require.NoError(t, err)
	assert.ErrorIs(t, app.Run(context.Background()), ErrApplicationNotInitialized)
}

func TestApplicationRunAndShutdown(t *testing.T) {
	var calls []string
	first := newFakeServer("http", &calls)
	second := newFakeServer("admin", &calls)
	collector := &eventCollector{id: "collector"}

	app, err := New(&Module{Name: "root"}, WithObservers(collector))
	require.NoError(t, err)
	require.NoError(t, app.Init())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx, first, second) }()

	<-second.started
	assert.False(t, app.Lifecycle().Unavailable())
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, []string{"start http", "start admin", "stop admin", "stop http"}, calls)
	assert.True(t, app.Lifecycle().Unavailable())

	res := app.Pipeline().Handle(context.Background(), nil, &fakeTransport{method: http.MethodGet, uri: "/"})
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)

	assert.Eventually(t, func() bool {
		return collector.count(EventTypeApplicationStarted) == 1 && collector.count(EventTypeApplicationStopped) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestApplicationRunStopsStartedServersOnFailure(t *testing.T) {
	var calls []string
	first := newFakeServer("http", &calls)
	broken := newFakeServer("broken", &calls)
	broken.startErr = errors.New("address in use")

	app, err := New(&Module{Name: "root"})
	require.NoError(t, err)
	require.NoError(t, app.Init())

	err = app.Run(context.Background(), first, broken)
	require.ErrorIs(t, err, broken.startErr)
	assert.Equal(t, []string{"start http", "start broken", "stop http"}, calls)
}

func TestApplicationShutdownWaitsForWork(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.ShutdownTimeout = 2 * time.Second
	app, err := New(&Module{Name: "root"}, WithConfig(cfg))
	require.NoError(t, err)
	require.NoError(t, app.Init())

	end := NewConnectionContext("", app.Lifecycle()).begin()
	go func() {
		time.Sleep(30 * time.Millisecond)
		end()
	}()
	require.NoError(t, app.Shutdown())
	assert.Zero(t, app.Lifecycle().Running())
}

func TestApplicationShutdownGraceElapses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.ShutdownTimeout = 20 * time.Millisecond
	logger := &recordingLogger{}
	app, err := New(&Module{Name: "root"}, WithConfig(cfg), WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, app.Init())

	end := NewConnectionContext("", app.Lifecycle()).begin()
	defer end()
	assert.ErrorIs(t, app.Shutdown(), ErrDrainTimeout)
	assert.True(t, logger.has("warn", "Shutdown grace period elapsed with work in flight"))
}

func TestApplicationShutdownWithoutGrace(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.GracefulShutdown = false
	var calls []string
	srv := newFakeServer("http", &calls)
	app, err := New(&Module{Name: "root"}, WithConfig(cfg))
	require.NoError(t, err)
	require.NoError(t, app.Init())

	require.NoError(t, app.Shutdown(srv))
	require.NotNil(t, srv.stopCtx)
	assert.Error(t, srv.stopCtx.Err())
}
