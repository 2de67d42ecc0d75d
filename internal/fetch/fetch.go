// Package fetch streams media to the local temp directory.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vmunix/mediarelay/internal/apperr"
	"github.com/vmunix/mediarelay/internal/extract"
	"github.com/vmunix/mediarelay/internal/media"
)

// ErrTooLarge is wrapped by downloads that exceed the size limit.
var ErrTooLarge = errors.New("file too large")

const progressInterval = 5 * time.Second

// ToolDownloader is the download mode of the tool strategy.
type ToolDownloader interface {
	Download(ctx context.Context, url, outputBase string, opts extract.DownloadOptions) error
}

// Config configures the Downloader.
type Config struct {
	MaxFileSize int64
	Timeout     time.Duration
}

// Options controls a single direct download.
type Options struct {
	// Extension without the leading dot. Derived from the URL when empty.
	Extension string
	Headers   map[string]string
}

// ToolOptions controls a tool download.
type ToolOptions struct {
	AudioOnly bool
	Format    string
}

// Result describes a downloaded file.
type Result struct {
	FilePath    string `json:"filePath"`
	FileName    string `json:"fileName"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
}

// Downloader fetches media into a TempDir.
type Downloader struct {
	client *http.Client
	temp   *TempDir
	tool   ToolDownloader
	cfg    Config
	log    *slog.Logger
}

// New creates a Downloader. tool may be nil, in which case DownloadViaTool
// always fails.
func New(temp *TempDir, tool ToolDownloader, client *http.Client, cfg Config, logger *slog.Logger) *Downloader {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		client: client,
		temp:   temp,
		tool:   tool,
		cfg:    cfg,
		log:    logger.With("component", "downloader"),
	}
}

// Remove deletes a downloaded file.
func (d *Downloader) Remove(path string) error {
	return d.temp.Remove(path)
}

// Download streams directURL into a new temp file. On any failure the
// partial file is removed.
func (d *Downloader) Download(ctx context.Context, directURL string, opts Options) (res *Result, err error) {
	if err := d.temp.Ensure(); err != nil {
		return nil, apperr.Wrap(apperr.KindDownload, err, "download failed")
	}

	ext := ""
	if opts.Extension != "" {
		ext = "." + strings.TrimPrefix(opts.Extension, ".")
	} else if e := media.ExtFromURL(directURL); e != "" {
		ext = e
	} else {
		ext = ".mp4"
	}
	path := d.temp.NewPath(ext)

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, directURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDownload, err, "download failed")
	}
	for k, v := range media.DefaultHeaders() {
		req.Header.Set(k, v)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	d.log.Info("downloading", "url", directURL)
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDownload, err, "download failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.New(apperr.KindDownload, "download failed: server returned %s", resp.Status)
	}
	limit := d.cfg.MaxFileSize
	if limit > 0 && resp.ContentLength > limit {
		return nil, apperr.Wrap(apperr.KindDownload, ErrTooLarge, "%s exceeds limit of %s",
			humanize.IBytes(uint64(resp.ContentLength)), humanize.IBytes(uint64(limit)))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDownload, err, "creating temp file")
	}
	defer func() {
		if err != nil {
			f.Close()
			_ = d.temp.Remove(path)
		}
	}()

	pw := &progressWriter{w: f, total: resp.ContentLength, log: d.log, last: time.Now()}
	var src io.Reader = resp.Body
	if limit > 0 {
		src = io.LimitReader(resp.Body, limit+1)
	}
	n, err := io.Copy(pw, src)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDownload, err, "download stream error")
	}
	if limit > 0 && n > limit {
		err = apperr.Wrap(apperr.KindDownload, ErrTooLarge, "download exceeded limit of %s", humanize.IBytes(uint64(limit)))
		return nil, err
	}
	if err = f.Close(); err != nil {
		return nil, apperr.Wrap(apperr.KindDownload, err, "writing temp file")
	}

	d.log.Info("download complete", "path", path, "size", humanize.IBytes(uint64(n)))
	return &Result{
		FilePath:    path,
		FileName:    filepath.Base(path),
		Size:        n,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// DownloadViaTool lets the tool strategy fetch pageURL, then locates the
// file it produced.
func (d *Downloader) DownloadViaTool(ctx context.Context, pageURL string, opts ToolOptions) (*Result, error) {
	if d.tool == nil {
		return nil, apperr.New(apperr.KindDownload, "download failed: no download tool configured")
	}
	if err := d.temp.Ensure(); err != nil {
		return nil, apperr.Wrap(apperr.KindDownload, err, "download failed")
	}

	base := d.temp.NewBase()
	outputBase := filepath.Join(d.temp.Path(), base)
	err := d.tool.Download(ctx, pageURL, outputBase, extract.DownloadOptions{
		AudioOnly:   opts.AudioOnly,
		Format:      opts.Format,
		MaxFileSize: d.cfg.MaxFileSize,
	})
	if err != nil {
		d.temp.RemovePrefix(base)
		return nil, apperr.Wrap(apperr.KindDownload, err, "tool download failed")
	}

	path, err := d.temp.Find(base)
	if err != nil {
		d.temp.RemovePrefix(base)
		return nil, apperr.Wrap(apperr.KindDownload, err, "tool download produced no output file")
	}
	info, err := os.Stat(path)
	if err != nil {
		d.temp.RemovePrefix(base)
		return nil, apperr.Wrap(apperr.KindDownload, err, "tool download failed")
	}
	if d.cfg.MaxFileSize > 0 && info.Size() > d.cfg.MaxFileSize {
		d.temp.RemovePrefix(base)
		return nil, apperr.Wrap(apperr.KindDownload, ErrTooLarge, "%s exceeds limit of %s",
			humanize.IBytes(uint64(info.Size())), humanize.IBytes(uint64(d.cfg.MaxFileSize)))
	}

	d.log.Info("tool download complete", "path", path, "size", humanize.IBytes(uint64(info.Size())))
	return &Result{FilePath: path, FileName: filepath.Base(path), Size: info.Size()}, nil
}

// progressWriter logs transfer progress at most every progressInterval.
type progressWriter struct {
	w       io.Writer
	written int64
	total   int64
	last    time.Time
	log     *slog.Logger
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if time.Since(p.last) >= progressInterval {
		p.last = time.Now()
		attrs := []any{"downloaded", humanize.IBytes(uint64(p.written))}
		if p.total > 0 {
			attrs = append(attrs, "total", humanize.IBytes(uint64(p.total)),
				"percent", fmt.Sprintf("%.1f", float64(p.written)*100/float64(p.total)))
		}
		p.log.Debug("download progress", attrs...)
	}
	return n, err
}
