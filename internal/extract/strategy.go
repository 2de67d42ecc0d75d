// Package extract discovers media on a page through an ordered chain of
// extraction strategies.
package extract

import (
	"context"

	"github.com/vmunix/mediarelay/internal/media"
)

//go:generate mockgen -destination=mocks/strategy.go -package=mocks . Strategy,ToolStrategy

// Strategy discovers media items for a URL.
type Strategy interface {
	Name() media.Strategy
	Extract(ctx context.Context, url string, opts media.Options) ([]media.Descriptor, error)
}

// ToolStrategy is a Strategy backed by an external extraction tool that can
// also enumerate formats and download to disk.
type ToolStrategy interface {
	Strategy
	ListFormats(ctx context.Context, url string) ([]media.Descriptor, error)
	// Download writes the media for url to outputBase plus a tool-chosen
	// extension.
	Download(ctx context.Context, url, outputBase string, opts DownloadOptions) error
}

// DownloadOptions controls a tool-driven download.
type DownloadOptions struct {
	AudioOnly   bool
	AudioFormat string
	Format      string
	MaxFileSize int64
}
