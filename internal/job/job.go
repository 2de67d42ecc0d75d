// Package job runs a single URL through extraction, download and upload.
package job

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vmunix/mediarelay/internal/media"
	"github.com/vmunix/mediarelay/internal/upload"
)

// Type is the queue job type for the media pipeline.
const Type = "extract-and-upload"

// Job is one asynchronous unit of work.
type Job struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	Status        Status     `json:"status"`
	Progress      int        `json:"progress"`
	Params        Params     `json:"params"`
	Result        *Result    `json:"result,omitempty"`
	FailureReason string     `json:"failedReason,omitempty"`
	Attempts      int        `json:"attemptsMade"`
	MaxAttempts   int        `json:"maxAttempts"`
	CreatedAt     time.Time  `json:"createdAt"`
	ProcessedAt   *time.Time `json:"processedAt,omitempty"`
	FinishedAt    *time.Time `json:"finishedAt,omitempty"`
}

// Params are the request parameters a job was submitted with.
type Params struct {
	URL       string `json:"url"`
	Strategy  string `json:"extractor,omitempty"`
	AudioOnly bool   `json:"audioOnly,omitempty"`
	// Backends restricts the upload targets. Nil means every backend.
	Backends   []string `json:"providers,omitempty"`
	UploadMode string   `json:"uploadMode,omitempty"`
	Backend    string   `json:"provider,omitempty"`
	Format     string   `json:"format,omitempty"`
	Quality    string   `json:"quality,omitempty"`
}

// Result is stored on a completed job.
type Result struct {
	Media        MediaSummary     `json:"media"`
	Download     DownloadSummary  `json:"download"`
	Uploads      []*upload.Result `json:"uploads"`
	Failed       []*upload.Result `json:"failed"`
	TotalSuccess int              `json:"totalSuccess"`
	TotalFailed  int              `json:"totalFailed"`
}

// MediaSummary is the part of the extracted descriptor kept on the result.
type MediaSummary struct {
	Title     string     `json:"title"`
	SourceURL string     `json:"sourceUrl"`
	Duration  *float64   `json:"duration,omitempty"`
	Thumbnail string     `json:"thumbnail,omitempty"`
	Kind      media.Kind `json:"mediaKind"`
	Extractor string     `json:"extractor,omitempty"`
}

// DownloadSummary describes the downloaded file.
type DownloadSummary struct {
	Size          int64  `json:"size"`
	SizeFormatted string `json:"sizeFormatted"`
}

func summarize(d media.Descriptor) MediaSummary {
	kind := d.Kind
	if kind == "" {
		kind = media.KindUnknown
	}
	return MediaSummary{
		Title:     d.Title,
		SourceURL: d.SourceURL,
		Duration:  d.DurationSeconds,
		Thumbnail: d.Thumbnail,
		Kind:      kind,
		Extractor: string(d.Extractor),
	}
}

func downloadSummary(size int64) DownloadSummary {
	return DownloadSummary{Size: size, SizeFormatted: humanize.IBytes(uint64(size))}
}
