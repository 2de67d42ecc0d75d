package hosts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vmunix/mediarelay/internal/upload"
)

const catboxMaxSize = 200 << 20

// CatboxConfig configures the catbox.moe backend.
type CatboxConfig struct {
	UserHash string
	APIURL   string
	// HealthURL is probed by Available.
	HealthURL string
}

// Catbox uploads to catbox.moe, which answers with a bare URL.
type Catbox struct {
	cfg    CatboxConfig
	client *http.Client
	log    *slog.Logger
}

func NewCatbox(cfg CatboxConfig, client *http.Client, logger *slog.Logger) *Catbox {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://catbox.moe/user/api.php"
	}
	if cfg.HealthURL == "" {
		cfg.HealthURL = "https://catbox.moe/"
	}
	return &Catbox{cfg: cfg, client: client, log: logger.With("component", "catbox")}
}

func (c *Catbox) Name() string { return "catbox" }

func (c *Catbox) Upload(ctx context.Context, filePath string, opts upload.Options) (*upload.Result, error) {
	size, err := statFile(c.Name(), filePath, catboxMaxSize)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	name := opts.NameFor(filePath)
	fields := []field{{"reqtype", "fileupload"}}
	if c.cfg.UserHash != "" {
		fields = append(fields, field{"userhash", c.cfg.UserHash})
	}
	body, contentType := multipartBody(filePath, "fileToUpload", name, fields)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, body)
	if err != nil {
		body.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	c.log.Info("uploading", "file", name, "size", size)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catbox upload: %w", err)
	}
	defer resp.Body.Close()

	reply, err := readReply(resp)
	if err != nil {
		return nil, fmt.Errorf("catbox upload: %w", err)
	}
	link := strings.TrimSpace(string(reply))
	if !strings.HasPrefix(link, "https://") {
		return nil, fmt.Errorf("catbox upload: %w: %s", ErrRejected, snippet(reply))
	}

	res := &upload.Result{
		FileID:      lastSegment(link),
		FileName:    name,
		FileSize:    size,
		DownloadURL: link,
		DirectURL:   link,
	}
	c.log.Info("upload complete", "url", link)
	return res, nil
}

func (c *Catbox) Available(ctx context.Context) bool {
	return probe(ctx, c.client, c.cfg.HealthURL)
}
