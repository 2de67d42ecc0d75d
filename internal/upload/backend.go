// Package upload fans a downloaded file out to file-hosting backends.
package upload

import (
	"context"
	"fmt"
	"strings"
)

//go:generate mockgen -destination=mocks/backend.go -package=mocks . Backend

// Backend is a file-hosting service a file can be uploaded to.
type Backend interface {
	Name() string
	Upload(ctx context.Context, filePath string, opts Options) (*Result, error)
	// Available is an advisory health probe.
	Available(ctx context.Context) bool
}

// Options controls a single upload.
type Options struct {
	// FileName is the name presented to the backend. Defaults to the base
	// name of the local file.
	FileName string
}

// Result is the outcome of one upload attempt.
type Result struct {
	Backend     string         `json:"provider"`
	Success     bool           `json:"success"`
	DownloadURL string         `json:"url,omitempty"`
	DirectURL   string         `json:"directUrl,omitempty"`
	FileID      string         `json:"fileId,omitempty"`
	FileName    string         `json:"fileName,omitempty"`
	FileSize    int64          `json:"fileSize,omitempty"`
	Expiry      string         `json:"expiry,omitempty"`
	DeleteURL   string         `json:"deleteUrl,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Mode selects how the orchestrator uses the backends.
type Mode string

const (
	ModeAll      Mode = "all"
	ModeFirst    Mode = "first"
	ModeSpecific Mode = "specific"
)

// ParseMode parses an upload mode. Empty means all.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAll:
		return ModeAll, nil
	case ModeFirst:
		return ModeFirst, nil
	case ModeSpecific:
		return ModeSpecific, nil
	default:
		return "", fmt.Errorf("unknown upload mode %q", s)
	}
}
