package webmod

import (
	"context"
	"fmt"
)

// Server is a long-running component started and stopped with the
// application, typically the HTTP listener.
type Server interface {
	// Start begins serving and returns once the server accepts work.
	Start(ctx context.Context) error
	// Stop stops accepting work and waits for in-flight work until ctx ends.
	Stop(ctx context.Context) error
}

// Application owns the module tree, the container and the pipeline built
// from them.
type Application struct {
	root       *Module
	cfg        *Config
	logger     Logger
	container  *Container
	events     *EventBus
	lifecycle  *Lifecycle
	pipeline   *Pipeline
	recorder   RequestRecorder
	compressor Compressor
	observers  []Observer

	initialized bool
}

// Option configures an Application.
type Option func(*Application) error

// WithLogger sets the application logger.
func WithLogger(logger Logger) Option {
	return func(app *Application) error {
		if logger == nil {
			return fmt.Errorf("%w: logger is nil", ErrConfigNil)
		}
		app.logger = logger
		return nil
	}
}

// WithConfig sets the configuration. It must already be loaded.
func WithConfig(cfg *Config) Option {
	return func(app *Application) error {
		if cfg == nil {
			return ErrConfigNil
		}
		app.cfg = cfg
		return nil
	}
}

// WithObservers registers observers for all framework events.
func WithObservers(observers ...Observer) Option {
	return func(app *Application) error {
		app.observers = append(app.observers, observers...)
		return nil
	}
}

// WithRequestRecorder passes r to the pipeline.
func WithRequestRecorder(r RequestRecorder) Option {
	return func(app *Application) error {
		app.recorder = r
		return nil
	}
}

// WithResponseCompressor replaces the default gzip compressor.
func WithResponseCompressor(c Compressor) Option {
	return func(app *Application) error {
		app.compressor = c
		return nil
	}
}

// WithLifecycle shares l with the pipeline and servers, e.g. so a metrics
// recorder created before the application can report on it.
func WithLifecycle(l *Lifecycle) Option {
	return func(app *Application) error {
		if l == nil {
			return fmt.Errorf("%w: lifecycle is nil", ErrConfigNil)
		}
		app.lifecycle = l
		return nil
	}
}

// New creates an application for root. Call Init before serving.
func New(root *Module, opts ...Option) (*Application, error) {
	if root == nil {
		return nil, ErrModuleNil
	}
	app := &Application{
		root:      root,
		logger:    NopLogger{},
		lifecycle: NewLifecycle(),
	}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	if app.cfg == nil {
		app.cfg = DefaultConfig()
	}
	app.container = NewContainer(WithLogArgs(app.logger, "component", "container"))
	app.events = NewEventBus("webmod/"+root.Name, WithLogArgs(app.logger, "component", "events"))
	for _, o := range app.observers {
		if err := app.events.RegisterObserver(o); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Init validates the tree, resolves every provider and builds the
// pipeline. Any failure here is fatal for the process.
func (app *Application) Init() error {
	if app.initialized {
		return nil
	}
	if err := ValidateTree(app.root, MaxModuleDepth); err != nil {
		app.fail(err)
		return err
	}
	app.events.emit(context.Background(), EventTypeConfigLoaded, map[string]any{
		"address":        app.cfg.Server.Address(),
		"requestTimeout": app.cfg.RequestTimeout.String(),
	})
	if err := app.container.Initialize(app.root); err != nil {
		app.fail(err)
		return err
	}
	for _, t := range app.container.Resolved() {
		app.events.emit(context.Background(), EventTypeProviderResolved, map[string]any{"type": t.String()})
	}

	opts := []PipelineOption{
		WithPipelineLogger(WithLogArgs(app.logger, "component", "pipeline")),
		WithPipelineLifecycle(app.lifecycle),
		WithEventBus(app.events),
	}
	if app.recorder != nil {
		opts = append(opts, WithRecorder(app.recorder))
	}
	if app.compressor != nil {
		opts = append(opts, WithCompressor(app.compressor))
	}
	app.pipeline = NewPipeline(app.root, app.container, app.cfg, opts...)
	app.initialized = true

	app.logger.Info("Application initialized", "module", app.root.Name, "routes", len(app.root.Routes()))
	return nil
}

func (app *Application) fail(err error) {
	app.logger.Error("Application initialization failed", "error", err)
	app.events.emit(context.Background(), EventTypeApplicationFailed, map[string]any{"error": err.Error()})
}

// Run starts servers, blocks until ctx is done and then shuts down.
func (app *Application) Run(ctx context.Context, servers ...Server) error {
	if !app.initialized {
		return ErrApplicationNotInitialized
	}
	for i, s := range servers {
		if err := s.Start(ctx); err != nil {
			_ = app.stopServers(servers[:i])
			return fmt.Errorf("failed to start server: %w", err)
		}
	}
	app.events.emit(ctx, EventTypeApplicationStarted, map[string]any{"module": app.root.Name})
	app.logger.Info("Application started", "servers", len(servers))

	<-ctx.Done()
	app.logger.Info("Shutting down", "reason", context.Cause(ctx))
	return app.Shutdown(servers...)
}

// Shutdown rejects new requests, stops servers and waits for in-flight
// work within the configured grace period.
func (app *Application) Shutdown(servers ...Server) error {
	app.lifecycle.SetUnavailable()
	err := app.stopServers(servers)
	app.events.emit(context.Background(), EventTypeApplicationStopped, map[string]any{"module": app.root.Name})
	return err
}

func (app *Application) stopServers(servers []Server) error {
	grace := app.cfg.Server.ShutdownTimeout
	if !app.cfg.Server.GracefulShutdown {
		grace = 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	var firstErr error
	for i := len(servers) - 1; i >= 0; i-- {
		if err := servers[i].Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := app.lifecycle.Drain(ctx); err != nil {
		app.logger.Warn("Shutdown grace period elapsed with work in flight", "running", app.lifecycle.Running(), "grace", grace)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Container returns the dependency container.
func (app *Application) Container() *Container { return app.container }

// Pipeline returns the request pipeline; nil before Init.
func (app *Application) Pipeline() *Pipeline { return app.pipeline }

// Lifecycle returns the shared serving state.
func (app *Application) Lifecycle() *Lifecycle { return app.lifecycle }

// Config returns the configuration in use.
func (app *Application) Config() *Config { return app.cfg }

// Logger returns the application logger.
func (app *Application) Logger() Logger { return app.logger }

// Events returns the event bus observers register with.
func (app *Application) Events() *EventBus { return app.events }

// Root returns the module tree.
func (app *Application) Root() *Module { return app.root }

