package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/GoCodeAlone/webmod"
	"github.com/GoCodeAlone/webmod/feeders"
	"github.com/GoCodeAlone/webmod/internal/demo"
	"github.com/GoCodeAlone/webmod/modules/httpserver"
	"github.com/GoCodeAlone/webmod/modules/metrics"
	"github.com/GoCodeAlone/webmod/modules/scheduler"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	watchConfig   bool
	resetCounters string
}

func newServeCommand(opts *globalOptions) *cobra.Command {
	serveOpts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the application until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if serveOpts.watchConfig && opts.configFile != "" {
				var cancel context.CancelFunc
				ctx, cancel = context.WithCancel(ctx)
				defer cancel()
				if err := watchConfig(ctx, opts.configFile, logger, cancel); err != nil {
					return err
				}
			}
			return serve(ctx, cfg, opts, serveOpts, logger)
		},
	}
	cmd.Flags().BoolVar(&serveOpts.watchConfig, "watch-config", false, "shut down gracefully when the config file changes, for a supervisor to restart")
	cmd.Flags().StringVar(&serveOpts.resetCounters, "reset-counters", "", "cron schedule for clearing the demo counters, e.g. \"@daily\"")
	return cmd
}

// watchConfig calls shutdown once the config file changes. Config is
// immutable for the life of the process, so a change means restart.
func watchConfig(ctx context.Context, path string, logger webmod.Logger, shutdown context.CancelFunc) error {
	w, err := feeders.NewFileWatcher(path, feeders.DefaultWatchDebounce)
	if err != nil {
		return err
	}
	go func() {
		err := w.Run(ctx, func() {
			logger.Info("Config file changed, shutting down for restart", "path", path)
			shutdown()
		})
		if err != nil {
			logger.Error("Config watcher stopped", "path", path, "error", err)
		}
	}()
	return nil
}

func serve(ctx context.Context, cfg *webmod.Config, opts *globalOptions, serveOpts *serveOptions, logger webmod.Logger) error {
	lifecycle := webmod.NewLifecycle()
	appOpts := []webmod.Option{
		webmod.WithLogger(logger),
		webmod.WithConfig(cfg),
		webmod.WithLifecycle(lifecycle),
		webmod.WithObservers(webmod.NewFunctionalObserver("event-log", func(_ context.Context, e webmod.CloudEvent) error {
			logger.Debug("Event", "type", e.Type(), "id", e.ID(), "data", string(e.Data()))
			return nil
		})),
	}

	var serverOpts []httpserver.Option
	if cfg.Metrics.Enabled {
		recorder := metrics.New(metrics.Options{
			Namespace:         cfg.Metrics.Namespace,
			Lifecycle:         lifecycle,
			ProcessCollectors: true,
		})
		appOpts = append(appOpts, webmod.WithRequestRecorder(recorder))
		serverOpts = append(serverOpts, httpserver.WithMetricsHandler(cfg.Metrics.Path, recorder.Handler()))
	}

	root, err := demoModule(opts, logger)
	if err != nil {
		return err
	}
	app, err := webmod.New(root, appOpts...)
	if err != nil {
		return err
	}
	if err := app.Init(); err != nil {
		return err
	}

	srv, err := httpserver.New(cfg, app.Pipeline(), logger, serverOpts...)
	if err != nil {
		return err
	}
	servers := []webmod.Server{srv}

	if serveOpts != nil && serveOpts.resetCounters != "" {
		sched := scheduler.New(scheduler.WithLogger(logger), scheduler.WithLifecycle(lifecycle))
		store := webmod.MustGet[*demo.CounterStore](app.Container())
		err := sched.AddJob(scheduler.Job{
			Name:     "reset-counters",
			Schedule: serveOpts.resetCounters,
			Run: func(context.Context) error {
				logger.Info("Counters reset", "cleared", store.Reset())
				return nil
			},
		})
		if err != nil {
			return err
		}
		servers = append(servers, sched)
	}
	return app.Run(ctx, servers...)
}
