// Package server runs the HTTP API, the job workers and the housekeeping
// loops under one lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config for the runner.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	CleanupInterval time.Duration
	MaxFileAge      time.Duration
	PruneInterval   time.Duration
	KeepCompleted   time.Duration
	KeepFailed      time.Duration
}

// Workers processes queued jobs until ctx is cancelled.
type Workers interface {
	Run(ctx context.Context) error
}

// TempStore evicts stale downloads.
type TempStore interface {
	Evict(maxAge time.Duration, now time.Time) (int, error)
}

// JobStore prunes finished jobs.
type JobStore interface {
	Prune(ctx context.Context, keepCompleted, keepFailed time.Duration) (int64, error)
}

// Components are the parts the runner drives. Closers are closed once,
// after everything else has stopped.
type Components struct {
	Handler http.Handler
	Workers Workers
	Temp    TempStore
	Jobs    JobStore
	Closers []io.Closer
}

// Runner manages the lifecycle of all components.
type Runner struct {
	config Config
	parts  Components
	logger *slog.Logger
	ready  chan net.Addr
}

// NewRunner creates a new runner.
func NewRunner(cfg Config, parts Components, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	return &Runner{
		config: cfg,
		parts:  parts,
		logger: logger,
		ready:  make(chan net.Addr, 1),
	}
}

// Ready yields the listening address once the HTTP server is accepting.
func (r *Runner) Ready() <-chan net.Addr { return r.ready }

// Run starts every component and blocks until ctx is cancelled or one of
// them fails. In-flight HTTP requests are given ShutdownTimeout to finish.
// Workers see the cancellation at once. Running jobs are interrupted and
// requeued while they have attempts left.
func (r *Runner) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.config.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{
		Handler:           r.parts.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		r.logger.Info("http server listening", "addr", ln.Addr().String())
		r.ready <- ln.Addr()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), r.config.ShutdownTimeout)
		defer cancel()
		r.logger.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	if r.parts.Workers != nil {
		g.Go(func() error { return r.parts.Workers.Run(gctx) })
	}
	if r.parts.Temp != nil {
		g.Go(func() error {
			every(gctx, r.config.CleanupInterval, r.evict)
			return nil
		})
	}
	if r.parts.Jobs != nil {
		g.Go(func() error {
			every(gctx, r.config.PruneInterval, r.prune)
			return nil
		})
	}

	err = g.Wait()
	r.close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runner) evict(context.Context) {
	n, err := r.parts.Temp.Evict(r.config.MaxFileAge, time.Now())
	if err != nil {
		r.logger.Warn("temp cleanup failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("removed stale temp files", "count", n)
	}
}

func (r *Runner) prune(ctx context.Context) {
	if _, err := r.parts.Jobs.Prune(ctx, r.config.KeepCompleted, r.config.KeepFailed); err != nil && ctx.Err() == nil {
		r.logger.Warn("job pruning failed", "error", err)
	}
}

func (r *Runner) close() {
	for _, c := range r.parts.Closers {
		if err := c.Close(); err != nil {
			r.logger.Warn("close failed", "error", err)
		}
	}
}

// every runs fn immediately and then on each tick until ctx is done. A
// non-positive interval disables the loop.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	fn(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
