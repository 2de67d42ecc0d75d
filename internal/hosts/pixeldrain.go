package hosts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/vmunix/mediarelay/internal/upload"
)

const pixeldrainMaxSize = 20 << 30

// PixeldrainConfig configures the pixeldrain.com backend.
type PixeldrainConfig struct {
	APIKey  string
	APIBase string
}

// Pixeldrain uploads to pixeldrain.com with a raw PUT.
type Pixeldrain struct {
	cfg    PixeldrainConfig
	client *http.Client
	log    *slog.Logger
}

func NewPixeldrain(cfg PixeldrainConfig, client *http.Client, logger *slog.Logger) *Pixeldrain {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://pixeldrain.com/api"
	}
	cfg.APIBase = strings.TrimSuffix(cfg.APIBase, "/")
	return &Pixeldrain{cfg: cfg, client: client, log: logger.With("component", "pixeldrain")}
}

func (p *Pixeldrain) Name() string { return "pixeldrain" }

func (p *Pixeldrain) Upload(ctx context.Context, filePath string, opts upload.Options) (*upload.Result, error) {
	size, err := statFile(p.Name(), filePath, pixeldrainMaxSize)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	name := opts.NameFor(filePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		p.cfg.APIBase+"/file/"+url.PathEscape(name), f)
	if err != nil {
		return nil, err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	if p.cfg.APIKey != "" {
		req.SetBasicAuth("", p.cfg.APIKey)
	}

	p.log.Info("uploading", "file", name, "size", size)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pixeldrain upload: %w", err)
	}
	defer resp.Body.Close()

	var r struct {
		ID string `json:"id"`
	}
	if err := decodeReply(resp, &r); err != nil {
		return nil, fmt.Errorf("pixeldrain upload: %w", err)
	}
	if r.ID == "" {
		return nil, fmt.Errorf("pixeldrain upload: %w: no file id", ErrRejected)
	}

	res := &upload.Result{
		FileID:      r.ID,
		FileName:    name,
		FileSize:    size,
		DownloadURL: "https://pixeldrain.com/u/" + r.ID,
		DirectURL:   "https://pixeldrain.com/api/file/" + r.ID + "?download",
	}
	p.log.Info("upload complete", "url", res.DownloadURL)
	return res, nil
}

func (p *Pixeldrain) Available(ctx context.Context) bool {
	return probe(ctx, p.client, p.cfg.APIBase+"/misc/rate_limits")
}
