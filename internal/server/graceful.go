// Package server coordinates the shutdown of the SCIM endpoint: the HTTP
// listener drains first, then the backing components (backup worker, database,
// Redis, tracer) close in registration order so nothing writes to a closed
// dependency.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Shutdownable is a named component that releases its resources on shutdown.
type Shutdownable interface {
	Shutdown(ctx context.Context) error
	Name() string
}

type component struct {
	name string
	fn   func(context.Context) error
}

func (c *component) Name() string                       { return c.name }
func (c *component) Shutdown(ctx context.Context) error { return c.fn(ctx) }

// Component wraps a close function as a Shutdownable.
func Component(name string, fn func(context.Context) error) Shutdownable {
	return &component{name: name, fn: fn}
}

// Config describes what a GracefulShutdown manages. Shutdownables close in
// slice order after the server has drained; register workers before the
// stores they write to.
type Config struct {
	Server          *http.Server
	Logger          *zap.Logger
	Shutdownables   []Shutdownable
	ShutdownTimeout time.Duration
}

// GracefulShutdown drains the HTTP server and closes components on SIGINT,
// SIGTERM, or SIGQUIT.
type GracefulShutdown struct {
	server          *http.Server
	logger          *zap.Logger
	shutdownables   []Shutdownable
	shutdownTimeout time.Duration
	signalChan      chan os.Signal
}

func New(cfg Config) *GracefulShutdown {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	return &GracefulShutdown{
		server:          cfg.Server,
		logger:          cfg.Logger,
		shutdownables:   cfg.Shutdownables,
		shutdownTimeout: cfg.ShutdownTimeout,
		signalChan:      make(chan os.Signal, 1),
	}
}

// Start blocks until a termination signal arrives, then runs the shutdown
// sequence.
func (g *GracefulShutdown) Start() {
	signal.Notify(g.signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-g.signalChan
	g.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	g.run()
}

// Shutdown triggers the sequence without an OS signal, e.g. from a failed
// health probe or a test.
func (g *GracefulShutdown) Shutdown() {
	select {
	case g.signalChan <- syscall.SIGTERM:
	default:
		g.logger.Info("Shutdown already in progress")
	}
}

func (g *GracefulShutdown) run() {
	ctx, cancel := context.WithTimeout(context.Background(), g.shutdownTimeout)
	defer cancel()

	// Stop accepting provisioning requests before touching the stores; an
	// in-flight PATCH must not find its pool closed under it.
	if g.server != nil {
		g.logger.Info("Draining HTTP server")
		if err := g.server.Shutdown(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				g.logger.Warn("Server drain timed out, forcing close")
				g.server.Close()
			} else {
				g.logger.Error("Error draining server", zap.Error(err))
			}
		}
	}

	// Components close one at a time in registration order. The backup
	// worker is registered ahead of the database so its final snapshot
	// still has a pool to read from.
	for _, c := range g.shutdownables {
		componentCtx, componentCancel := context.WithTimeout(ctx, 10*time.Second)
		err := c.Shutdown(componentCtx)
		componentCancel()

		switch {
		case err == nil:
			g.logger.Info("Component closed", zap.String("component", c.Name()))
		case errors.Is(err, context.DeadlineExceeded):
			g.logger.Warn("Component shutdown timed out", zap.String("component", c.Name()))
		default:
			g.logger.Error("Error closing component",
				zap.String("component", c.Name()), zap.Error(err))
		}
	}

	g.logger.Info("Shutdown complete")
}

// CloseDB wraps a database pool for the shutdown sequence.
func CloseDB(db interface{ Close() error }) Shutdownable {
	return Component("database", func(context.Context) error {
		return db.Close()
	})
}

// CloseRedis wraps a Redis client for the shutdown sequence.
func CloseRedis(redis interface{ Close() error }) Shutdownable {
	return Component("redis", func(context.Context) error {
		return redis.Close()
	})
}

// CloseTracer wraps the tracer provider's shutdown for the sequence.
func CloseTracer(shutdown func(context.Context) error) Shutdownable {
	return Component("tracer", shutdown)
}
