// internal/api/v1/types.go
package v1

import (
	"time"

	"github.com/vmunix/mediarelay/internal/apperr"
	"github.com/vmunix/mediarelay/internal/events"
	"github.com/vmunix/mediarelay/internal/job"
	"github.com/vmunix/mediarelay/internal/media"
	"github.com/vmunix/mediarelay/internal/queue"
)

// envelope wraps every response body.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details []apperr.Detail `json:"details,omitempty"`
}

// scrapeRequest is the request body for POST /scrape.
type scrapeRequest struct {
	URL       string `json:"url" validate:"required,http_url"`
	Extractor string `json:"extractor" validate:"omitempty,oneof=auto tool ytdlp yt-dlp browser puppeteer direct"`
	AudioOnly bool   `json:"audioOnly"`
}

// quickRequest is the request body for POST /scrape/quick.
type quickRequest struct {
	URL       string `json:"url" validate:"required,http_url"`
	Extractor string `json:"extractor" validate:"omitempty,oneof=auto tool ytdlp yt-dlp browser puppeteer direct"`
	AudioOnly bool   `json:"audioOnly"`
	Provider  string `json:"provider" validate:"omitempty,max=64"`
}

// extractRequest is the request body for POST /extract.
type extractRequest struct {
	URL        string   `json:"url" validate:"required,http_url"`
	Extractor  string   `json:"extractor" validate:"omitempty,oneof=auto tool ytdlp yt-dlp browser puppeteer direct"`
	AudioOnly  bool     `json:"audioOnly"`
	Providers  []string `json:"providers" validate:"omitempty,dive,required,max=64"`
	UploadMode string   `json:"uploadMode" validate:"upload_mode"`
	Provider   string   `json:"provider" validate:"max=64"`
	Format     string   `json:"format" validate:"max=256"`
	Quality    string   `json:"quality" validate:"max=64"`
	JobID      string   `json:"jobId" validate:"omitempty,max=128"`
}

// extractResponse is returned when a job is accepted.
type extractResponse struct {
	JobID     string     `json:"jobId"`
	Status    job.Status `json:"status"`
	StatusURL string     `json:"statusUrl"`
}

type quickResponse struct {
	*job.Result
	Elapsed string `json:"processingTime"`
}

type formatsResponse struct {
	URL     string             `json:"url"`
	Formats []media.Descriptor `json:"formats"`
	Count   int                `json:"count"`
}

type providerStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

type providersResponse struct {
	Providers []providerStatus `json:"providers"`
	Count     int              `json:"count"`
}

type cancelResponse struct {
	JobID   string              `json:"jobId"`
	Outcome queue.CancelOutcome `json:"outcome"`
}

type statsResponse struct {
	Counts queue.Stats `json:"counts"`
	Total  int         `json:"total"`
}

type healthResponse struct {
	Status  string    `json:"status"`
	Version string    `json:"version,omitempty"`
	Uptime  string    `json:"uptime"`
	Time    time.Time `json:"timestamp"`
}

type eventsResponse struct {
	JobID  string         `json:"jobId,omitempty"`
	Events []events.Event `json:"events"`
	Count  int            `json:"count"`
}
