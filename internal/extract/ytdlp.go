package extract

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/vmunix/mediarelay/internal/media"
)

const (
	defaultFormat          = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	defaultAudioFormat     = "mp3"
	maxDescriptionLength   = 500
	defaultToolTimeout     = 2 * time.Minute
	defaultDownloadTimeout = 10 * time.Minute
)

// YtDlpConfig configures the yt-dlp tool strategy.
type YtDlpConfig struct {
	Binary          string
	CookiesFile     string
	Proxy           string
	Timeout         time.Duration
	DownloadTimeout time.Duration
}

// runFunc executes the binary and returns stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// YtDlp drives the yt-dlp command line tool.
type YtDlp struct {
	cfg YtDlpConfig
	run runFunc
	log *slog.Logger
}

// NewYtDlp creates the tool strategy.
func NewYtDlp(cfg YtDlpConfig, logger *slog.Logger) *YtDlp {
	if cfg.Binary == "" {
		cfg.Binary = "yt-dlp"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultToolTimeout
	}
	if cfg.DownloadTimeout == 0 {
		cfg.DownloadTimeout = defaultDownloadTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &YtDlp{cfg: cfg, run: execRun, log: logger.With("component", "ytdlp")}
}

func (y *YtDlp) Name() media.Strategy { return media.StrategyTool }

// Available reports whether the binary can be executed.
func (y *YtDlp) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := y.run(ctx, y.cfg.Binary, "--version")
	if err != nil {
		y.log.Warn("yt-dlp not available", "error", err)
		return false
	}
	y.log.Debug("yt-dlp version", "version", strings.TrimSpace(string(out)))
	return true
}

// Extract returns one descriptor per JSON entry yt-dlp reports for url.
func (y *YtDlp) Extract(ctx context.Context, url string, opts media.Options) ([]media.Descriptor, error) {
	y.log.Info("extracting", "url", url)
	args := append(y.commonArgs(opts), "--dump-json", url)
	entries, err := y.dump(ctx, args)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("yt-dlp returned no results for %s", url)
	}
	return y.normalizeAll(entries, opts), nil
}

// ListFormats returns every entry including playlist members without
// resolving them.
func (y *YtDlp) ListFormats(ctx context.Context, url string) ([]media.Descriptor, error) {
	y.log.Info("listing formats", "url", url)
	args := append(y.commonArgs(media.Options{}), "--dump-json", "--flat-playlist", url)
	entries, err := y.dump(ctx, args)
	if err != nil {
		return nil, err
	}
	return y.normalizeAll(entries, media.Options{}), nil
}

// Download fetches url to outputBase.<ext>. The caller resolves the actual
// extension afterwards.
func (y *YtDlp) Download(ctx context.Context, url, outputBase string, opts DownloadOptions) error {
	args := y.commonArgs(media.Options{MaxFileSize: opts.MaxFileSize})
	args = append(args, "-o", outputBase+".%(ext)s", "--no-playlist")
	if opts.AudioOnly {
		format := opts.AudioFormat
		if format == "" {
			format = defaultAudioFormat
		}
		args = append(args, "-x", "--audio-format", format)
	}
	format := opts.Format
	if format == "" {
		format = defaultFormat
	}
	args = append(args, "-f", format, url)

	ctx, cancel := context.WithTimeout(ctx, y.cfg.DownloadTimeout)
	defer cancel()

	y.log.Info("downloading", "url", url, "output", outputBase)
	if _, err := y.run(ctx, y.cfg.Binary, args...); err != nil {
		return err
	}
	return nil
}

func (y *YtDlp) commonArgs(opts media.Options) []string {
	args := []string{
		"--no-warnings",
		"--no-check-certificates",
		"--prefer-free-formats",
		"--socket-timeout", "30",
	}
	if y.cfg.CookiesFile != "" {
		args = append(args, "--cookies", y.cfg.CookiesFile)
	}
	if y.cfg.Proxy != "" {
		args = append(args, "--proxy", y.cfg.Proxy)
	}
	if opts.UserAgent != "" {
		args = append(args, "--user-agent", opts.UserAgent)
	}
	if opts.Referer != "" {
		args = append(args, "--referer", opts.Referer)
	}
	if opts.MaxFileSize > 0 {
		args = append(args, "--max-filesize", strconv.FormatInt(opts.MaxFileSize, 10))
	}
	return args
}

func (y *YtDlp) dump(ctx context.Context, args []string) ([]ytdlpEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, y.cfg.Timeout)
	defer cancel()

	out, err := y.run(ctx, y.cfg.Binary, args...)
	if err != nil {
		return nil, err
	}
	return parseEntries(out), nil
}

func (y *YtDlp) normalizeAll(entries []ytdlpEntry, opts media.Options) []media.Descriptor {
	items := make([]media.Descriptor, 0, len(entries))
	for _, e := range entries {
		items = append(items, normalizeEntry(e, opts))
	}
	return items
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("yt-dlp timed out: %w", ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("yt-dlp failed: %s", msg)
	}
	return stdout.Bytes(), nil
}

type ytdlpFormat struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	FormatNote     string  `json:"format_note"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	FPS            float64 `json:"fps"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	FileSize       float64 `json:"filesize"`
	FileSizeApprox float64 `json:"filesize_approx"`
	URL            string  `json:"url"`
	TBR            float64 `json:"tbr"`
}

type ytdlpThumb struct {
	URL string `json:"url"`
}

type ytdlpEntry struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	FullTitle      string        `json:"fulltitle"`
	WebpageURL     string        `json:"webpage_url"`
	OriginalURL    string        `json:"original_url"`
	URL            string        `json:"url"`
	Thumbnail      string        `json:"thumbnail"`
	Thumbnails     []ytdlpThumb  `json:"thumbnails"`
	Duration       float64       `json:"duration"`
	FileSize       float64       `json:"filesize"`
	FileSizeApprox float64       `json:"filesize_approx"`
	Format         string        `json:"format"`
	Ext            string        `json:"ext"`
	FormatNote     string        `json:"format_note"`
	Resolution     string        `json:"resolution"`
	ACodec         string        `json:"acodec"`
	VCodec         string        `json:"vcodec"`
	Uploader       string        `json:"uploader"`
	UploadDate     string        `json:"upload_date"`
	ViewCount      int64         `json:"view_count"`
	LikeCount      int64         `json:"like_count"`
	Description    string        `json:"description"`
	Extractor      string        `json:"extractor"`
	ExtractorKey   string        `json:"extractor_key"`
	Formats        []ytdlpFormat `json:"formats"`
}

// parseEntries decodes one JSON object per line, skipping anything else.
func parseEntries(out []byte) []ytdlpEntry {
	var entries []ytdlpEntry
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var e ytdlpEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

func normalizeEntry(e ytdlpEntry, opts media.Options) media.Descriptor {
	formats := make([]media.Format, 0, len(e.Formats))
	for _, f := range e.Formats {
		formats = append(formats, media.Format{
			ID:       f.FormatID,
			Ext:      f.Ext,
			Quality:  f.FormatNote,
			Width:    f.Width,
			Height:   f.Height,
			FPS:      f.FPS,
			VCodec:   codec(f.VCodec),
			ACodec:   codec(f.ACodec),
			FileSize: int64(firstNonZero(f.FileSize, f.FileSizeApprox)),
			URL:      f.URL,
			TBR:      f.TBR,
		})
	}

	directURL := e.URL
	if directURL == "" && len(formats) > 0 {
		directURL = formats[len(formats)-1].URL
	}

	ext := e.Ext
	if ext == "" {
		ext = "mp4"
	}

	kind := media.KindFromExt(ext)
	if opts.AudioOnly || (codec(e.ACodec) != "" && codec(e.VCodec) == "") {
		kind = media.KindAudio
	} else if kind == media.KindUnknown {
		kind = media.KindVideo
	}

	thumb := e.Thumbnail
	if thumb == "" && len(e.Thumbnails) > 0 {
		thumb = e.Thumbnails[len(e.Thumbnails)-1].URL
	}

	title := e.Title
	if title == "" {
		title = e.FullTitle
	}

	sourceURL := e.WebpageURL
	if sourceURL == "" {
		sourceURL = e.OriginalURL
	}

	quality := e.FormatNote
	if quality == "" {
		quality = e.Resolution
	}

	d := media.Descriptor{
		ID:              e.ID,
		Title:           title,
		SourceURL:       sourceURL,
		DirectURL:       directURL,
		Thumbnail:       thumb,
		ContainerFormat: e.Format,
		FileExtension:   ext,
		Kind:            kind,
		Quality:         quality,
		Extractor:       media.StrategyTool,
		Formats:         formats,
		Metadata:        map[string]any{},
	}
	if e.Duration > 0 {
		d.DurationSeconds = &e.Duration
	}
	if size := int64(firstNonZero(e.FileSize, e.FileSizeApprox)); size > 0 {
		d.FileSizeBytes = &size
	}

	setIf(d.Metadata, "uploader", e.Uploader)
	setIf(d.Metadata, "uploadDate", e.UploadDate)
	if e.ViewCount > 0 {
		d.Metadata["viewCount"] = e.ViewCount
	}
	if e.LikeCount > 0 {
		d.Metadata["likeCount"] = e.LikeCount
	}
	setIf(d.Metadata, "description", truncate(e.Description, maxDescriptionLength))
	site := e.Extractor
	if site == "" {
		site = e.ExtractorKey
	}
	setIf(d.Metadata, "site", site)

	return media.NewDescriptor(d)
}

// codec maps yt-dlp's "none" marker to "".
func codec(c string) string {
	if c == "none" {
		return ""
	}
	return c
}

func firstNonZero(vals ...float64) float64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func setIf(m map[string]any, key, val string) {
	if val != "" {
		m[key] = val
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
