// Package scrape validates scrape requests and runs them through the
// extraction chain.
package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vmunix/mediarelay/internal/apperr"
	"github.com/vmunix/mediarelay/internal/media"
)

// Extractor is the extraction chain.
type Extractor interface {
	Extract(ctx context.Context, url string, opts media.Options) ([]media.Descriptor, error)
	Formats(ctx context.Context, url string) ([]media.Descriptor, error)
}

// Result is the outcome of one scrape.
type Result struct {
	URL       string
	Domain    string
	Items     []media.Descriptor
	ItemCount int
	Elapsed   time.Duration
}

// MarshalJSON renders Elapsed as seconds with two decimals, e.g. "1.23s".
func (r Result) MarshalJSON() ([]byte, error) {
	items := r.Items
	if items == nil {
		items = []media.Descriptor{}
	}
	return json.Marshal(struct {
		URL            string             `json:"url"`
		Domain         string             `json:"domain"`
		Items          []media.Descriptor `json:"media"`
		ItemCount      int                `json:"count"`
		ExtractionTime string             `json:"extractionTime"`
	}{r.URL, r.Domain, items, r.ItemCount, fmt.Sprintf("%.2fs", r.Elapsed.Seconds())})
}

// Scraper runs extraction for a single URL.
type Scraper struct {
	extractor Extractor
	log       *slog.Logger
}

// New creates a Scraper.
func New(extractor Extractor, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{extractor: extractor, log: logger.With("component", "scraper")}
}

// Scrape extracts every media item reachable from url.
func (s *Scraper) Scrape(ctx context.Context, url string, opts media.Options) (*Result, error) {
	url = strings.TrimSpace(url)
	if err := ValidateURL(url); err != nil {
		return nil, err
	}

	start := time.Now()
	items, err := s.extractor.Extract(ctx, url, opts)
	elapsed := time.Since(start)
	if err != nil {
		s.log.Warn("scrape failed", "url", url, "strategy", opts.Strategy, "elapsed", elapsed, "error", err)
		if apperr.KindOf(err) == apperr.KindInternal {
			return nil, apperr.Wrap(apperr.KindExtraction, err, "failed to extract media")
		}
		return nil, err
	}

	res := &Result{
		URL:       url,
		Domain:    media.Domain(url),
		Items:     items,
		ItemCount: len(items),
		Elapsed:   elapsed,
	}
	s.log.Info("scrape complete", "domain", res.Domain, "items", res.ItemCount, "elapsed", elapsed.Round(time.Millisecond))
	return res, nil
}

// Formats lists every available format for url.
func (s *Scraper) Formats(ctx context.Context, url string) ([]media.Descriptor, error) {
	url = strings.TrimSpace(url)
	if err := ValidateURL(url); err != nil {
		return nil, err
	}
	items, err := s.extractor.Formats(ctx, url)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			return nil, apperr.Wrap(apperr.KindExtraction, err, "failed to list formats")
		}
		return nil, err
	}
	return items, nil
}

// ValidateURL rejects anything that is not an absolute http(s) URL.
func ValidateURL(url string) error {
	if url == "" {
		return apperr.Validation("url is required")
	}
	if !media.IsHTTPURL(url) {
		return apperr.Validation("invalid url %q: must be an absolute http or https URL", url)
	}
	return nil
}
