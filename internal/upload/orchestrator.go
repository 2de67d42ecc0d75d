package upload

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vmunix/mediarelay/internal/apperr"
)

// Request selects backends and mode for one file.
type Request struct {
	Mode Mode
	// Backends restricts all and first modes. Nil means every backend.
	Backends []string
	// Backend is the single target of specific mode.
	Backend  string
	FileName string
}

// Outcome aggregates the attempts for one file.
type Outcome struct {
	Uploads      []*Result `json:"uploads"`
	Failed       []*Result `json:"failed"`
	TotalSuccess int       `json:"totalSuccess"`
	TotalFailed  int       `json:"totalFailed"`
}

func (o *Outcome) record(r *Result) {
	if r.Success {
		o.Uploads = append(o.Uploads, r)
	} else {
		o.Failed = append(o.Failed, r)
	}
	o.TotalSuccess = len(o.Uploads)
	o.TotalFailed = len(o.Failed)
}

// Orchestrator runs uploads against a Registry. The concurrency limit is
// shared by every call.
type Orchestrator struct {
	registry *Registry
	sem      *semaphore.Weighted
	log      *slog.Logger
}

// NewOrchestrator creates an orchestrator allowing maxConcurrent uploads
// in flight at once.
func NewOrchestrator(registry *Registry, maxConcurrent int, logger *slog.Logger) *Orchestrator {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		registry: registry,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		log:      logger.With("component", "uploader"),
	}
}

// Registry returns the backing registry.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Upload sends filePath to backends according to req.Mode.
func (o *Orchestrator) Upload(ctx context.Context, filePath string, req Request) (*Outcome, error) {
	mode := req.Mode
	if mode == "" {
		mode = ModeAll
	}
	opts := Options{FileName: req.FileName}

	if mode == ModeSpecific {
		return o.uploadSpecific(ctx, filePath, req.Backend, opts)
	}

	names := o.registry.Select(req.Backends)
	if len(names) == 0 {
		if req.Backends != nil {
			return nil, apperr.Validation("no known backends in selection %v", req.Backends)
		}
		return nil, apperr.Validation("no backends registered")
	}

	o.log.Info("uploading", "file", filePath, "mode", mode, "backends", names)
	switch mode {
	case ModeAll:
		return o.uploadAll(ctx, filePath, names, opts)
	case ModeFirst:
		return o.uploadFirst(ctx, filePath, names, opts)
	default:
		return nil, apperr.Validation("unknown upload mode %q", mode)
	}
}

func (o *Orchestrator) uploadAll(ctx context.Context, filePath string, names []string, opts Options) (*Outcome, error) {
	results := make([]*Result, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			if err := o.sem.Acquire(ctx, 1); err != nil {
				results[i] = failure(name, err)
				return nil
			}
			defer o.sem.Release(1)
			results[i] = o.attempt(ctx, name, filePath, opts)
			return nil
		})
	}
	_ = g.Wait()

	out := &Outcome{Uploads: []*Result{}, Failed: []*Result{}}
	for _, r := range results {
		out.record(r)
	}
	o.log.Info("uploads finished", "succeeded", out.TotalSuccess, "failed", out.TotalFailed)

	if out.TotalSuccess == 0 {
		return nil, allFailed(out.Failed)
	}
	return out, nil
}

// uploadFirst stops at the first backend that succeeds. Earlier skips and
// failures are only reported if every backend fails.
func (o *Orchestrator) uploadFirst(ctx context.Context, filePath string, names []string, opts Options) (*Outcome, error) {
	var tried []*Result
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			tried = append(tried, failure(name, err))
			break
		}
		b, _ := o.registry.Get(name)
		if !b.Available(ctx) {
			o.log.Warn("backend unavailable, trying next", "backend", name)
			tried = append(tried, failure(name, ErrUnavailable))
			continue
		}

		r := o.attempt(ctx, name, filePath, opts)
		if r.Success {
			return &Outcome{Uploads: []*Result{r}, Failed: []*Result{}, TotalSuccess: 1}, nil
		}
		tried = append(tried, r)
		o.log.Warn("backend failed, trying next", "backend", name, "error", r.Error)
	}
	return nil, allFailed(tried)
}

func (o *Orchestrator) uploadSpecific(ctx context.Context, filePath, name string, opts Options) (*Outcome, error) {
	if name == "" {
		return nil, apperr.Validation("specific mode requires a backend")
	}
	b, err := o.registry.Get(name)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "invalid backend")
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, apperr.Wrap(apperr.KindUpload, err, "%s upload failed", name)
	}
	defer o.sem.Release(1)

	r, err := b.Upload(ctx, filePath, opts)
	if err == nil && r == nil {
		err = ErrNoResult
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpload, err, "%s upload failed", name)
	}
	r = complete(name, r)
	return &Outcome{Uploads: []*Result{r}, Failed: []*Result{}, TotalSuccess: 1}, nil
}

// attempt runs one backend upload and turns any error into a failed Result.
func (o *Orchestrator) attempt(ctx context.Context, name, filePath string, opts Options) *Result {
	b, err := o.registry.Get(name)
	if err != nil {
		return failure(name, err)
	}
	r, err := b.Upload(ctx, filePath, opts)
	if err != nil {
		o.log.Warn("upload failed", "backend", name, "error", err)
		return failure(name, err)
	}
	if r == nil {
		return failure(name, ErrNoResult)
	}
	o.log.Info("upload succeeded", "backend", name, "url", r.DownloadURL)
	return complete(name, r)
}

func complete(name string, r *Result) *Result {
	r.Backend = name
	r.Success = true
	r.Error = ""
	return r
}

func failure(name string, err error) *Result {
	return &Result{Backend: name, Success: false, Error: err.Error()}
}

func allFailed(failed []*Result) error {
	details := make([]apperr.Detail, len(failed))
	for i, f := range failed {
		details[i] = apperr.Detail{Source: f.Backend, Message: f.Error}
	}
	return apperr.Aggregate(apperr.KindUpload, "all uploads failed:", details)
}
