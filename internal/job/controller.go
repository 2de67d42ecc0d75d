package job

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vmunix/mediarelay/internal/apperr"
	"github.com/vmunix/mediarelay/internal/fetch"
	"github.com/vmunix/mediarelay/internal/media"
	"github.com/vmunix/mediarelay/internal/scrape"
	"github.com/vmunix/mediarelay/internal/upload"
)

// Progress checkpoints.
const (
	progressExtracting  = 10
	progressDownloading = 25
	progressDownloaded  = 60
	progressUploaded    = 95
)

// Scraper extracts media from a page.
type Scraper interface {
	Scrape(ctx context.Context, url string, opts media.Options) (*scrape.Result, error)
}

// Fetcher downloads media to temp storage.
type Fetcher interface {
	Download(ctx context.Context, directURL string, opts fetch.Options) (*fetch.Result, error)
	DownloadViaTool(ctx context.Context, pageURL string, opts fetch.ToolOptions) (*fetch.Result, error)
	Remove(path string) error
}

// Uploader sends a file to storage backends.
type Uploader interface {
	Upload(ctx context.Context, filePath string, req upload.Request) (*upload.Outcome, error)
}

// Controller drives jobs through the pipeline.
type Controller struct {
	scraper  Scraper
	fetcher  Fetcher
	uploader Uploader
	log      *slog.Logger
}

// NewController creates a Controller.
func NewController(scraper Scraper, fetcher Fetcher, uploader Uploader, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		scraper:  scraper,
		fetcher:  fetcher,
		uploader: uploader,
		log:      logger.With("component", "controller"),
	}
}

// Run executes one attempt of j, reporting through tr. Every attempt starts
// from scratch. On failure the job is marked failed and the error returned;
// on cancellation the job is marked cancelled and ErrCancelled returned.
func (c *Controller) Run(ctx context.Context, j *Job, tr Tracker) (*Result, error) {
	log := c.log.With("job", j.ID, "url", j.Params.URL)
	start := time.Now()

	opts, req, err := j.Params.parse()
	if err != nil {
		return nil, c.fail(ctx, log, tr, err)
	}

	if err := c.enter(ctx, log, tr, StatusExtracting, progressExtracting); err != nil {
		return nil, err
	}
	scraped, err := c.scraper.Scrape(ctx, j.Params.URL, opts)
	if err != nil {
		return nil, c.fail(ctx, log, tr, err)
	}
	if len(scraped.Items) == 0 {
		return nil, c.fail(ctx, log, tr, apperr.New(apperr.KindExtraction, "no media found"))
	}
	item := scraped.Items[0]
	log.Info("media selected", "title", item.Title, "extractor", item.Extractor, "found", len(scraped.Items))

	if err := c.enter(ctx, log, tr, StatusDownloading, progressDownloading); err != nil {
		return nil, err
	}
	dl, err := c.download(ctx, log, item, j.Params)
	if err != nil {
		return nil, c.fail(ctx, log, tr, err)
	}
	defer func() {
		if err := c.fetcher.Remove(dl.FilePath); err != nil {
			log.Warn("failed to remove temp file", "path", dl.FilePath, "error", err)
		}
	}()
	c.progress(ctx, log, tr, progressDownloaded)

	if err := c.enter(ctx, log, tr, StatusUploading, progressDownloaded); err != nil {
		return nil, err
	}
	req.FileName = upload.SanitizeFileName(item.Title, filepath.Ext(dl.FilePath))
	outcome, err := c.uploader.Upload(ctx, dl.FilePath, req)
	if err != nil {
		return nil, c.fail(ctx, log, tr, err)
	}
	c.progress(ctx, log, tr, progressUploaded)

	if tr.CancelRequested(ctx) {
		return nil, c.cancel(ctx, log, tr)
	}
	result := &Result{
		Media:        summarize(item),
		Download:     downloadSummary(dl.Size),
		Uploads:      outcome.Uploads,
		Failed:       outcome.Failed,
		TotalSuccess: outcome.TotalSuccess,
		TotalFailed:  outcome.TotalFailed,
	}
	if err := tr.Complete(context.WithoutCancel(ctx), result); err != nil {
		return nil, err
	}
	log.Info("job completed", "uploads", outcome.TotalSuccess, "failed", outcome.TotalFailed,
		"size", result.Download.SizeFormatted, "elapsed", time.Since(start).Round(time.Millisecond))
	return result, nil
}

// enter checks for cancellation, then moves the job into the next stage.
func (c *Controller) enter(ctx context.Context, log *slog.Logger, tr Tracker, to Status, progress int) error {
	if tr.CancelRequested(ctx) {
		return c.cancel(ctx, log, tr)
	}
	if err := tr.Transition(ctx, to, progress); err != nil {
		return c.fail(ctx, log, tr, err)
	}
	log.Debug("stage", "status", to, "progress", progress)
	return nil
}

// progress records an intermediate value. A tracker error only costs the
// client an update, so the job carries on.
func (c *Controller) progress(ctx context.Context, log *slog.Logger, tr Tracker, progress int) {
	if err := tr.Progress(ctx, progress); err != nil {
		log.Warn("failed to record progress", "progress", progress, "error", err)
	}
}

func (c *Controller) cancel(ctx context.Context, log *slog.Logger, tr Tracker) error {
	if err := tr.Cancel(context.WithoutCancel(ctx)); err != nil {
		log.Warn("failed to mark job cancelled", "error", err)
	}
	log.Info("job cancelled")
	return ErrCancelled
}

func (c *Controller) fail(ctx context.Context, log *slog.Logger, tr Tracker, err error) error {
	if ferr := tr.Fail(context.WithoutCancel(ctx), err.Error()); ferr != nil {
		log.Warn("failed to mark job failed", "error", ferr)
	}
	log.Error("job failed", "kind", apperr.KindOf(err), "error", err)
	return err
}

// download tries the direct URL once, then falls back to the tool using
// the page URL.
func (c *Controller) download(ctx context.Context, log *slog.Logger, item media.Descriptor, p Params) (*fetch.Result, error) {
	if item.HasDirectURL() {
		res, err := c.fetcher.Download(ctx, item.DirectURL, fetch.Options{
			Extension: item.FileExtension,
			Headers:   map[string]string{"Referer": p.URL},
		})
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		log.Warn("direct download failed, falling back to tool", "error", err)
	}
	return c.fetcher.DownloadViaTool(ctx, p.URL, fetch.ToolOptions{
		AudioOnly: p.AudioOnly,
		Format:    p.Format,
	})
}

// parse turns the stored parameters into extraction options and an upload
// request.
func (p Params) parse() (media.Options, upload.Request, error) {
	if err := scrape.ValidateURL(strings.TrimSpace(p.URL)); err != nil {
		return media.Options{}, upload.Request{}, err
	}
	strategy, err := media.ParseStrategy(p.Strategy)
	if err != nil {
		return media.Options{}, upload.Request{}, apperr.Validation("%v", err)
	}
	mode, err := upload.ParseMode(p.UploadMode)
	if err != nil {
		return media.Options{}, upload.Request{}, apperr.Validation("%v", err)
	}
	if mode == upload.ModeSpecific && p.Backend == "" {
		return media.Options{}, upload.Request{}, apperr.Validation("provider is required for specific upload mode")
	}
	opts := media.Options{Strategy: strategy, AudioOnly: p.AudioOnly, Format: p.Format}
	req := upload.Request{Mode: mode, Backends: p.Backends, Backend: p.Backend}
	return opts, req, nil
}

// QuickRequest is a synchronous scrape, download and upload.
type QuickRequest struct {
	URL       string
	Strategy  string
	AudioOnly bool
	Backend   string
}

// Quick runs the pipeline inline. A named backend is used exclusively,
// otherwise the first backend that accepts the file wins.
func (c *Controller) Quick(ctx context.Context, req QuickRequest) (*Result, error) {
	p := Params{
		URL:        req.URL,
		Strategy:   req.Strategy,
		AudioOnly:  req.AudioOnly,
		UploadMode: string(upload.ModeFirst),
	}
	if req.Backend != "" {
		p.UploadMode = string(upload.ModeSpecific)
		p.Backend = req.Backend
	}
	j := &Job{
		ID:          uuid.NewString(),
		Type:        Type,
		Status:      StatusQueued,
		Params:      p,
		Attempts:    1,
		MaxAttempts: 1,
		CreatedAt:   time.Now(),
	}
	return c.Run(ctx, j, NewMemoryTracker())
}
