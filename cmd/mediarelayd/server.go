package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	v1 "github.com/vmunix/mediarelay/internal/api/v1"
	"github.com/vmunix/mediarelay/internal/config"
	"github.com/vmunix/mediarelay/internal/events"
	"github.com/vmunix/mediarelay/internal/extract"
	"github.com/vmunix/mediarelay/internal/fetch"
	"github.com/vmunix/mediarelay/internal/hosts"
	"github.com/vmunix/mediarelay/internal/job"
	"github.com/vmunix/mediarelay/internal/queue"
	"github.com/vmunix/mediarelay/internal/scrape"
	"github.com/vmunix/mediarelay/internal/server"
	"github.com/vmunix/mediarelay/internal/upload"
)

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(w io.Writer, cfg config.ServerConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func hostsConfig(b config.BackendsConfig) hosts.Config {
	return hosts.Config{
		Gofile:     hosts.GofileConfig{APIKey: b.Gofile.APIKey, FolderID: b.Gofile.FolderID},
		Pixeldrain: hosts.PixeldrainConfig{APIKey: b.Pixeldrain.APIKey},
		Fileio:     hosts.FileioConfig{Expiry: b.Fileio.Expiry},
		Catbox:     hosts.CatboxConfig{UserHash: b.Catbox.UserHash},
		Transfersh: hosts.TransfershConfig{URL: b.Transfersh.URL, MaxDays: b.Transfersh.MaxDays},
	}
}

func runServer(configPath, envFile string) error {
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}

	if configPath == "" {
		p, err := config.Discover()
		if err != nil {
			return err
		}
		configPath = p
	}
	// Variables already set, including those from --env-file, take precedence.
	if err := config.LoadEnvFile(config.EnvFileFor(configPath)); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := newLogger(os.Stdout, cfg.Server)
	slog.SetDefault(logger)

	runner, err := build(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("server starting",
		"addr", cfg.Server.Addr(),
		"config", configPath,
		"database", cfg.Database.Path,
		"temp_dir", cfg.Storage.TempDir,
		"backends", cfg.Backends.Enabled,
		"max_jobs", cfg.Concurrency.MaxJobs,
		"auth", cfg.Auth.Enabled,
		"log_level", cfg.Server.LogLevel,
	)

	if err := runner.Run(ctx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// build wires every component from config. On error, anything already
// opened is closed.
func build(cfg *config.Config, logger *slog.Logger) (_ *server.Runner, err error) {
	var closers []io.Closer
	defer func() {
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
		}
	}()

	// === Extraction ===
	ytdlp := extract.NewYtDlp(extract.YtDlpConfig{
		Binary:          cfg.YtDlp.Path,
		CookiesFile:     cfg.YtDlp.CookiesFile,
		Proxy:           cfg.YtDlp.Proxy,
		Timeout:         cfg.YtDlp.Timeout,
		DownloadTimeout: cfg.YtDlp.DownloadTimeout,
	}, logger)
	browser := extract.NewBrowser(extract.BrowserConfig{
		Headless: cfg.Browser.IsHeadless(),
		ExecPath: cfg.Browser.ExecPath,
		Timeout:  cfg.Browser.Timeout,
		Settle:   cfg.Browser.Settle,
	}, logger)
	extractors := extract.NewRegistry(logger, ytdlp, extract.NewDirect(nil, logger), browser)
	closers = append(closers, extractors)

	scraper := scrape.New(extractors, logger)

	// === Download ===
	temp, err := fetch.NewTempDir(cfg.Storage.TempDir)
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	fetcher := fetch.New(temp, ytdlp, nil, fetch.Config{
		MaxFileSize: cfg.Storage.MaxFileSize(),
		Timeout:     cfg.YtDlp.DownloadTimeout,
	}, logger)

	// === Upload ===
	backends, err := hosts.Build(cfg.Backends.Enabled, hostsConfig(cfg.Backends), nil, logger)
	if err != nil {
		return nil, fmt.Errorf("backends: %w", err)
	}
	registry, err := upload.NewRegistry(backends...)
	if err != nil {
		return nil, fmt.Errorf("backends: %w", err)
	}
	uploader := upload.NewOrchestrator(registry, cfg.Concurrency.MaxUploads, logger)

	controller := job.NewController(scraper, fetcher, uploader, logger)

	// === Queue ===
	store, err := queue.Open(cfg.Database.Path, queue.Config{
		MaxAttempts: cfg.Queue.MaxAttempts,
		Backoff:     cfg.Queue.Backoff,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("queue: %w", err)
	}
	closers = append(closers, store)

	eventLog := events.NewLog(store.DB())
	bus := events.NewBus(eventLog, logger)
	closers = append(closers, bus)
	store.SetPublisher(bus)

	if n, err := store.Recover(context.Background()); err != nil {
		return nil, fmt.Errorf("recover jobs: %w", err)
	} else if n > 0 {
		logger.Info("recovered interrupted jobs", "count", n)
	}

	pool := queue.NewPool(store, controller, cfg.Concurrency.MaxJobs, cfg.Queue.PollInterval, logger)
	pool.WakeOn(bus.Subscribe(events.JobQueued, 64))

	// === HTTP ===
	var apiKeys []string
	if cfg.Auth.Enabled {
		apiKeys = cfg.Auth.APIKeys
	}
	api, err := v1.New(v1.ServerDeps{
		Scraper:  scraper,
		Quick:    controller,
		Queue:    store,
		Backends: registry,
		Events:   eventLog,
	}, v1.Config{
		APIKeys:    apiKeys,
		RateLimit:  cfg.RateLimit.Requests,
		RateWindow: cfg.RateLimit.Window,
		Version:    version,
	}, logger)
	if err != nil {
		return nil, err
	}

	return server.NewRunner(server.Config{
		Addr:            cfg.Server.Addr(),
		CleanupInterval: cfg.Storage.CleanupInterval,
		MaxFileAge:      cfg.Storage.MaxFileAge,
		PruneInterval:   cfg.Storage.CleanupInterval,
		KeepCompleted:   cfg.Queue.KeepCompleted,
		KeepFailed:      cfg.Queue.KeepFailed,
	}, server.Components{
		Handler: api.Handler(),
		Workers: pool,
		Temp:    temp,
		Jobs:    store,
		Closers: closers,
	}, logger), nil
}
