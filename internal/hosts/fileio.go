package hosts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/vmunix/mediarelay/internal/upload"
)

const fileioMaxSize = 2 << 30

// FileioConfig configures the file.io backend.
type FileioConfig struct {
	// Expiry is passed through as file.io's expires parameter, e.g. "14d".
	Expiry string
	URL    string
}

// Fileio uploads to file.io. Files are deleted after the first download.
type Fileio struct {
	cfg    FileioConfig
	client *http.Client
	log    *slog.Logger
}

func NewFileio(cfg FileioConfig, client *http.Client, logger *slog.Logger) *Fileio {
	if cfg.Expiry == "" {
		cfg.Expiry = "14d"
	}
	if cfg.URL == "" {
		cfg.URL = "https://file.io"
	}
	cfg.URL = strings.TrimSuffix(cfg.URL, "/")
	return &Fileio{cfg: cfg, client: client, log: logger.With("component", "fileio")}
}

func (f *Fileio) Name() string { return "fileio" }

type fileioReply struct {
	Success bool   `json:"success"`
	Key     string `json:"key"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Link    string `json:"link"`
	Expires string `json:"expires"`
	Message string `json:"message"`
}

func (f *Fileio) Upload(ctx context.Context, filePath string, opts upload.Options) (*upload.Result, error) {
	size, err := statFile(f.Name(), filePath, fileioMaxSize)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	name := opts.NameFor(filePath)
	body, contentType := multipartBody(filePath, "file", name, nil)

	q := url.Values{}
	q.Set("expires", f.cfg.Expiry)
	q.Set("autoDelete", "true")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.URL+"/?"+q.Encode(), body)
	if err != nil {
		body.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	f.log.Info("uploading", "file", name, "size", size)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fileio upload: %w", err)
	}
	defer resp.Body.Close()

	var r fileioReply
	if err := decodeReply(resp, &r); err != nil {
		return nil, fmt.Errorf("fileio upload: %w", err)
	}
	if !r.Success {
		return nil, fmt.Errorf("fileio upload: %w: %s", ErrRejected, r.Message)
	}

	res := &upload.Result{
		FileID:      r.Key,
		FileName:    r.Name,
		FileSize:    size,
		DownloadURL: r.Link,
		DirectURL:   r.Link,
		Expiry:      r.Expires,
		Metadata:    map[string]any{"autoDelete": true},
	}
	if res.FileID == "" {
		res.FileID = r.ID
	}
	if res.FileName == "" {
		res.FileName = name
	}
	f.log.Info("upload complete", "url", res.DownloadURL)
	return res, nil
}

func (f *Fileio) Available(ctx context.Context) bool {
	return probe(ctx, f.client, f.cfg.URL)
}
