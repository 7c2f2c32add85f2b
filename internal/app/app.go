// Package app provides application lifecycle management for the view exporter.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/view-exporter/internal/config"
	"github.com/stacklok/view-exporter/internal/listener"
	"github.com/stacklok/view-exporter/internal/telemetry"
)

// ExporterApp encapsulates the listener, the mirror consumer and the optional
// status server, and manages their lifecycle
type ExporterApp struct {
	config         *config.Config
	components     *AppComponents
	sessionFactory SessionFactory
	listenerOpts   []listener.Option
	httpServer     *http.Server
	telemetry      *telemetry.Telemetry
	drainTimeout   time.Duration
}

// Run connects to the store and exports until the listener stops.
// When the listener returns, the queue is closed, the consumer mirrors what is
// still queued and the status server is shut down. Cancelling ctx is a clean
// shutdown and yields nil; any other listener error is returned.
func (app *ExporterApp) Run(ctx context.Context) error {
	defer app.shutdownTelemetry()

	session, err := app.sessionFactory(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database session: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			slog.Warn("Failed to close database session", "error", err)
		}
	}()

	queue := app.components.Queue
	lst := listener.New(session, app.components.Registry, queue, app.listenerOpts...)

	// The consumer outlives ctx so queued artifacts are still mirrored on shutdown
	consumerCtx, cancelConsumer := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelConsumer()
	var drainExpired atomic.Bool

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := lst.Run(gctx)
		queue.Close()
		slog.Info("Listener stopped", "error", err, "queued", queue.Len())

		time.AfterFunc(app.drainTimeout, func() {
			drainExpired.Store(true)
			cancelConsumer()
		})
		app.shutdownHTTPServer()
		return err
	})

	g.Go(func() error {
		err := app.components.Consumer.Run(consumerCtx, queue)
		if err != nil && drainExpired.Load() {
			slog.Warn("Mirror drain timed out", "timeout", app.drainTimeout, "dropped", queue.Len())
			return nil
		}
		return err
	})

	if app.httpServer != nil {
		g.Go(func() error {
			slog.Info("Status server listening", "address", app.httpServer.Addr)
			if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server failed: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		slog.Info("Exporter shutdown complete")
		return nil
	}
	return err
}

// Components returns the wired application components
func (app *ExporterApp) Components() *AppComponents {
	return app.components
}

// GetConfig returns the application configuration
func (app *ExporterApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the status server, or nil when it is disabled
func (app *ExporterApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

func (app *ExporterApp) shutdownHTTPServer() {
	if app.httpServer == nil {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Status server forced to shutdown", "error", err)
	}
}

func (app *ExporterApp) shutdownTelemetry() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := app.telemetry.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Failed to shutdown telemetry", "error", err)
	}
}
