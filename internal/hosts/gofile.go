package hosts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vmunix/mediarelay/internal/upload"
)

// GofileConfig configures the gofile.io backend.
type GofileConfig struct {
	APIKey   string
	FolderID string
	APIBase  string
	// UploadURL is a format string receiving the server name.
	UploadURL string
}

// Gofile uploads to gofile.io. There is no size limit on the free tier.
type Gofile struct {
	cfg    GofileConfig
	client *http.Client
	log    *slog.Logger
}

func NewGofile(cfg GofileConfig, client *http.Client, logger *slog.Logger) *Gofile {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.gofile.io"
	}
	if cfg.UploadURL == "" {
		cfg.UploadURL = "https://%s.gofile.io/uploadFile"
	}
	cfg.APIBase = strings.TrimSuffix(cfg.APIBase, "/")
	return &Gofile{cfg: cfg, client: client, log: logger.With("component", "gofile")}
}

func (g *Gofile) Name() string { return "gofile" }

type gofileServers struct {
	Status string `json:"status"`
	Data   struct {
		Servers []struct {
			Name string `json:"name"`
		} `json:"servers"`
	} `json:"data"`
}

type gofileUpload struct {
	Status string `json:"status"`
	Data   struct {
		FileID       string `json:"fileId"`
		ID           string `json:"id"`
		FileName     string `json:"fileName"`
		DownloadPage string `json:"downloadPage"`
		ParentFolder string `json:"parentFolder"`
		DirectLink   string `json:"directLink"`
		MD5          string `json:"md5"`
	} `json:"data"`
}

// server picks an upload server, falling back to store1.
func (g *Gofile) server(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.APIBase+"/servers", nil)
	if err != nil {
		return "store1"
	}
	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Warn("server lookup failed", "error", err)
		return "store1"
	}
	defer resp.Body.Close()

	var s gofileServers
	if err := decodeReply(resp, &s); err != nil || s.Status != "ok" || len(s.Data.Servers) == 0 {
		return "store1"
	}
	return s.Data.Servers[0].Name
}

func (g *Gofile) Upload(ctx context.Context, filePath string, opts upload.Options) (*upload.Result, error) {
	size, err := statFile(g.Name(), filePath, 0)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	server := g.server(ctx)
	name := opts.NameFor(filePath)

	var fields []field
	if g.cfg.APIKey != "" {
		fields = append(fields, field{"token", g.cfg.APIKey})
	}
	if g.cfg.FolderID != "" {
		fields = append(fields, field{"folderId", g.cfg.FolderID})
	}
	body, contentType := multipartBody(filePath, "file", name, fields)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf(g.cfg.UploadURL, server), body)
	if err != nil {
		body.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	g.log.Info("uploading", "file", name, "server", server, "size", size)
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gofile upload: %w", err)
	}
	defer resp.Body.Close()

	var r gofileUpload
	if err := decodeReply(resp, &r); err != nil {
		return nil, fmt.Errorf("gofile upload: %w", err)
	}
	if r.Status != "ok" {
		return nil, fmt.Errorf("gofile upload: %w: status %q", ErrRejected, r.Status)
	}

	res := &upload.Result{
		FileID:      r.Data.FileID,
		FileName:    r.Data.FileName,
		FileSize:    size,
		DownloadURL: r.Data.DownloadPage,
		DirectURL:   r.Data.DirectLink,
		Metadata:    map[string]any{},
	}
	if res.FileID == "" {
		res.FileID = r.Data.ID
	}
	if res.FileName == "" {
		res.FileName = name
	}
	if res.DownloadURL == "" && r.Data.ParentFolder != "" {
		res.DownloadURL = "https://gofile.io/d/" + r.Data.ParentFolder
	}
	if r.Data.MD5 != "" {
		res.Metadata["md5"] = r.Data.MD5
	}
	g.log.Info("upload complete", "url", res.DownloadURL)
	return res, nil
}

func (g *Gofile) Available(ctx context.Context) bool {
	return probe(ctx, g.client, g.cfg.APIBase+"/servers")
}
