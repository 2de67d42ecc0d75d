package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vmunix/mediarelay/internal/events"
	"github.com/vmunix/mediarelay/internal/job"
)

// Runner executes one attempt of a job.
type Runner interface {
	Run(ctx context.Context, j *job.Job, tr job.Tracker) (*job.Result, error)
}

// Pool runs claimed jobs on a fixed number of workers.
type Pool struct {
	store   *Store
	runner  Runner
	workers int
	poll    time.Duration
	wake    <-chan events.Event
	log     *slog.Logger
}

// NewPool creates a pool of workers polling store every poll interval.
func NewPool(store *Store, runner Runner, workers int, poll time.Duration, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if poll <= 0 {
		poll = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		store:   store,
		runner:  runner,
		workers: workers,
		poll:    poll,
		log:     logger.With("component", "pool"),
	}
}

// WakeOn makes an idle worker look for work as soon as ch delivers, rather
// than at its next poll. Call it before Run.
func (p *Pool) WakeOn(ch <-chan events.Event) {
	p.wake = ch
}

// Run blocks until ctx is cancelled and every worker has finished its
// current job.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info("worker pool started", "workers", p.workers, "poll", p.poll)
	g, ctx := errgroup.WithContext(ctx)
	for i := range p.workers {
		g.Go(func() error {
			p.work(ctx, i)
			return nil
		})
	}
	err := g.Wait()
	p.log.Info("worker pool stopped")
	return err
}

func (p *Pool) work(ctx context.Context, worker int) {
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	wake := p.wake
	for {
		for p.next(ctx, worker) {
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case _, ok := <-wake:
			if !ok {
				wake = nil
			}
		}
	}
}

// next claims and runs one job. It reports whether a job was run.
func (p *Pool) next(ctx context.Context, worker int) bool {
	if ctx.Err() != nil {
		return false
	}
	j, err := p.store.Claim(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.log.Error("claim failed", "worker", worker, "error", err)
		}
		return false
	}
	if j == nil {
		return false
	}

	log := p.log.With("worker", worker, "job", j.ID, "attempt", j.Attempts)
	log.Info("job started", "url", j.Params.URL)

	_, runErr := p.runner.Run(ctx, j, p.store.Tracker(j.ID))
	if runErr == nil || errors.Is(runErr, job.ErrCancelled) {
		return true
	}

	retried, err := p.store.Retry(context.WithoutCancel(ctx), j.ID, runErr)
	if err != nil {
		log.Error("retry bookkeeping failed", "error", err)
	} else if !retried {
		log.Warn("job failed permanently", "error", runErr)
	}
	return true
}
