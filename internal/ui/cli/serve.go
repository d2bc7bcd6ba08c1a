package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pycomplete/internal/core/app"
	"pycomplete/internal/core/config"
	"pycomplete/internal/shared/observability"
	"pycomplete/internal/transport"
)

func runServe(ctx context.Context, e *env) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := newApp(e)
	if err != nil {
		return err
	}
	defer cleanup()

	stopObservability, err := startObservability(ctx, e.cfg.Observability, a)
	if err != nil {
		return err
	}
	defer stopObservability()

	if e.cfg.Watch.Enabled {
		w, err := a.StartWatcher(e.paths.WatchPaths)
		if err != nil {
			e.logger.Warn("file watcher disabled", "error", err)
		} else {
			defer w.Close()
			e.logger.Info("watching sources", "paths", e.paths.WatchPaths)
		}
	}

	bridge := transport.NewStdio(e.in, e.out, e.cfg.Server.RateLimit, e.logger.With("component", "bridge"))
	e.logger.Info("bridge serving", "session", a.Session())

	// Serve returns when stdin closes; a signal must not wait for the next line.
	errCh := make(chan error, 1)
	go func() {
		errCh <- bridge.Serve(ctx, transport.NewHandler(a))
	}()
	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if errors.Is(err, context.Canceled) {
		e.logger.Info("bridge stopped")
		return nil
	}
	return err
}

// startObservability starts the metrics and health endpoint and the trace
// exporter when configured. The returned function stops both.
func startObservability(ctx context.Context, cfg config.Observability, a *app.App) (func(), error) {
	var stops []func(context.Context) error

	if cfg.EnableTracing {
		shutdown, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint)
		if err != nil {
			return nil, err
		}
		stops = append(stops, shutdown)
	}
	if cfg.Enabled {
		server := observability.NewServer(cfg.Address, a.HealthMap)
		if err := server.Start(ctx); err != nil {
			return nil, err
		}
		stops = append(stops, server.Stop)
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := len(stops) - 1; i >= 0; i-- {
			_ = stops[i](shutdownCtx)
		}
	}, nil
}
