// Package hosts implements upload backends for public file-hosting services.
package hosts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vmunix/mediarelay/internal/upload"
)

var (
	// ErrTooLarge is returned before any transfer when the file exceeds the
	// backend's size limit.
	ErrTooLarge = errors.New("file too large")

	// ErrRejected is returned when the service answers but does not accept
	// the upload.
	ErrRejected = errors.New("upload rejected")
)

const (
	probeTimeout  = 5 * time.Second
	uploadTimeout = 10 * time.Minute
	maxReplySize  = 1 << 20
)

// Config holds the settings for every known backend.
type Config struct {
	Gofile     GofileConfig
	Pixeldrain PixeldrainConfig
	Fileio     FileioConfig
	Catbox     CatboxConfig
	Transfersh TransfershConfig
}

// Names lists the known backends in their default order.
var Names = []string{"gofile", "pixeldrain", "fileio", "catbox", "transfersh"}

// Build constructs the enabled backends in the order given.
func Build(enabled []string, cfg Config, client *http.Client, logger *slog.Logger) ([]upload.Backend, error) {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	backends := make([]upload.Backend, 0, len(enabled))
	for _, name := range enabled {
		switch name {
		case "gofile":
			backends = append(backends, NewGofile(cfg.Gofile, client, logger))
		case "pixeldrain":
			backends = append(backends, NewPixeldrain(cfg.Pixeldrain, client, logger))
		case "fileio":
			backends = append(backends, NewFileio(cfg.Fileio, client, logger))
		case "catbox":
			backends = append(backends, NewCatbox(cfg.Catbox, client, logger))
		case "transfersh":
			backends = append(backends, NewTransfersh(cfg.Transfersh, client, logger))
		default:
			return nil, fmt.Errorf("%w: %q", upload.ErrUnknownBackend, name)
		}
	}
	return backends, nil
}

type field struct {
	name, value string
}

// multipartBody streams form fields followed by the file through a pipe so
// large files are never buffered in memory.
func multipartBody(filePath, fileField, fileName string, fields []field) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeMultipart(mw, filePath, fileField, fileName, fields)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	return pr, mw.FormDataContentType()
}

func writeMultipart(mw *multipart.Writer, filePath, fileField, fileName string, fields []field) error {
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile(fileField, fileName)
	if err != nil {
		return err
	}
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(part, f)
	return err
}

// statFile returns the size of filePath, enforcing max when positive.
func statFile(backend, filePath string, max int64) (int64, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}
	size := info.Size()
	if max > 0 && size > max {
		return 0, fmt.Errorf("%w for %s: max %s, got %s", ErrTooLarge, backend,
			humanize.IBytes(uint64(max)), humanize.IBytes(uint64(size)))
	}
	return size, nil
}

// probe reports whether url answers 200 within probeTimeout.
func probe(ctx context.Context, client *http.Client, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxReplySize))
	return resp.StatusCode == http.StatusOK
}

// readReply reads a bounded response body and fails on non-2xx statuses.
func readReply(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, snippet(body))
	}
	return body, nil
}

func decodeReply(resp *http.Response, v any) error {
	body, err := readReply(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func lastSegment(u string) string {
	u = strings.TrimRight(u, "/")
	return path.Base(u)
}
