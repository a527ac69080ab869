package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	xhttp "CoinCast/pkg/http"
	pkgkafka "CoinCast/pkg/kafka"
	applogger "CoinCast/pkg/logger"
)

// Sweeper drops expired entries from an in-process cache.
type Sweeper interface {
	Sweep() int
}

type namedCloser struct {
	name string
	c    io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	l          *applogger.Logger
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	handlers   []pkgkafka.MessageHandler
	closers    []namedCloser
	sweeper    Sweeper
	sweepEvery time.Duration
}

// Option configures App.
type Option func(*App)

// WithConsumer runs c with the given handlers next to the HTTP server.
// A nil consumer is ignored.
func WithConsumer(c *pkgkafka.Consumer, handlers ...pkgkafka.MessageHandler) Option {
	return func(a *App) {
		if c == nil {
			return
		}
		a.consumer = c
		a.handlers = append(a.handlers, handlers...)
	}
}

// WithCloser registers an infrastructure client closed on shutdown, in
// registration order.
func WithCloser(name string, c io.Closer) Option {
	return func(a *App) {
		if c != nil {
			a.closers = append(a.closers, namedCloser{name: name, c: c})
		}
	}
}

// WithSweeper sweeps s every interval while the app runs.
func WithSweeper(s Sweeper, every time.Duration) Option {
	return func(a *App) {
		if s != nil && every > 0 {
			a.sweeper = s
			a.sweepEvery = every
		}
	}
}

// New creates a new App instance with all dependencies.
func New(l *applogger.Logger, httpServer *xhttp.Server, opts ...Option) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{l: l, httpServer: httpServer}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until ctx is done or an
// interrupt is received.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.consumer != nil {
		for _, h := range a.handlers {
			a.consumer.RegisterHandler(h)
		}
		if err := a.consumer.Start(); err != nil {
			a.closeAll()
			return fmt.Errorf("start kafka consumer: %w", err)
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		_ = a.shutdown()
		return err
	}

	if a.sweeper != nil {
		go a.sweep(ctx)
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) sweep(ctx context.Context) {
	t := time.NewTicker(a.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.sweeper.Sweep(); n > 0 {
				a.l.Debug("cache sweep", applogger.Int("evicted", n))
			}
		}
	}
}

// shutdown gracefully stops all services: HTTP first so no request sees
// a closed backend, then the consumer, then infrastructure clients.
func (a *App) shutdown() error {
	a.l.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), a.httpServer.ShutdownTimeout())
	defer cancel()

	var errs []error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	a.closeAll()

	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeAll() {
	for _, nc := range a.closers {
		if err := nc.c.Close(); err != nil {
			a.l.Warn("close error", applogger.String("client", nc.name), applogger.Error(err))
		}
	}
}
