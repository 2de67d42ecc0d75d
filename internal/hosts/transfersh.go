package hosts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vmunix/mediarelay/internal/upload"
)

const transfershMaxSize = 10 << 30

// TransfershConfig configures a transfer.sh instance.
type TransfershConfig struct {
	URL     string
	MaxDays int
}

// Transfersh uploads to a transfer.sh compatible server.
type Transfersh struct {
	cfg    TransfershConfig
	client *http.Client
	log    *slog.Logger
	now    func() time.Time
}

func NewTransfersh(cfg TransfershConfig, client *http.Client, logger *slog.Logger) *Transfersh {
	if cfg.URL == "" {
		cfg.URL = "https://transfer.sh"
	}
	if cfg.MaxDays <= 0 {
		cfg.MaxDays = 14
	}
	cfg.URL = strings.TrimSuffix(cfg.URL, "/")
	return &Transfersh{cfg: cfg, client: client, log: logger.With("component", "transfersh"), now: time.Now}
}

func (t *Transfersh) Name() string { return "transfersh" }

func (t *Transfersh) Upload(ctx context.Context, filePath string, opts upload.Options) (*upload.Result, error) {
	size, err := statFile(t.Name(), filePath, transfershMaxSize)
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
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.cfg.URL+"/"+url.PathEscape(name), f)
	if err != nil {
		return nil, err
	}
	req.ContentLength = size
	req.Header.Set("Max-Days", strconv.Itoa(t.cfg.MaxDays))

	t.log.Info("uploading", "file", name, "size", size)
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transfersh upload: %w", err)
	}
	defer resp.Body.Close()

	reply, err := readReply(resp)
	if err != nil {
		return nil, fmt.Errorf("transfersh upload: %w", err)
	}
	link := strings.TrimSpace(string(reply))
	if !strings.HasPrefix(link, "http") {
		return nil, fmt.Errorf("transfersh upload: %w: %s", ErrRejected, snippet(reply))
	}

	res := &upload.Result{
		FileID:      lastSegment(strings.TrimSuffix(link, "/"+url.PathEscape(name))),
		FileName:    name,
		FileSize:    size,
		DownloadURL: link,
		DirectURL:   directTransferLink(link),
		DeleteURL:   resp.Header.Get("X-Url-Delete"),
		Expiry:      t.now().AddDate(0, 0, t.cfg.MaxDays).UTC().Format(time.RFC3339),
	}
	t.log.Info("upload complete", "url", link)
	return res, nil
}

func (t *Transfersh) Available(ctx context.Context) bool {
	return probe(ctx, t.client, t.cfg.URL)
}

// directTransferLink inserts the /get/ segment transfer.sh uses for raw
// downloads: https://host/abc/name -> https://host/get/abc/name.
func directTransferLink(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Path == "" || strings.HasPrefix(u.Path, "/get/") {
		return link
	}
	u.Path = "/get" + u.Path
	return u.String()
}
