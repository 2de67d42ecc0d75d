package v1

import (
	"context"
	"errors"

	"github.com/vmunix/mediarelay/internal/events"
	"github.com/vmunix/mediarelay/internal/job"
	"github.com/vmunix/mediarelay/internal/media"
	"github.com/vmunix/mediarelay/internal/queue"
	"github.com/vmunix/mediarelay/internal/scrape"
)

// Scraper runs extraction for a single URL.
type Scraper interface {
	Scrape(ctx context.Context, url string, opts media.Options) (*scrape.Result, error)
	Formats(ctx context.Context, url string) ([]media.Descriptor, error)
}

// QuickRunner runs the whole pipeline synchronously.
type QuickRunner interface {
	Quick(ctx context.Context, req job.QuickRequest) (*job.Result, error)
}

// JobQueue is the durable job queue.
type JobQueue interface {
	Submit(ctx context.Context, jobType, id string, p job.Params) (string, error)
	Get(ctx context.Context, id string) (*job.Job, error)
	Cancel(ctx context.Context, id string) (queue.CancelOutcome, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

// Backends lists the registered upload backends.
type Backends interface {
	Names() []string
	// Select returns the registered names among names, or every name when
	// names is nil.
	Select(names []string) []string
	Available(ctx context.Context) []string
}

// EventHistory reads persisted job events.
type EventHistory interface {
	ForJob(ctx context.Context, jobID string) ([]events.Event, error)
	Recent(ctx context.Context, limit int) ([]events.Event, error)
}

// ServerDeps contains all dependencies for the API server.
type ServerDeps struct {
	Scraper  Scraper
	Quick    QuickRunner
	Queue    JobQueue
	Backends Backends
	// Events is optional; without it the event endpoints answer 503.
	Events   EventHistory
}

// Validate checks that all dependencies are provided.
func (d ServerDeps) Validate() error {
	if d.Scraper == nil {
		return errors.New("scraper is required")
	}
	if d.Quick == nil {
		return errors.New("quick runner is required")
	}
	if d.Queue == nil {
		return errors.New("job queue is required")
	}
	if d.Backends == nil {
		return errors.New("backend registry is required")
	}
	return nil
}
