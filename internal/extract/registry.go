package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/vmunix/mediarelay/internal/apperr"
	"github.com/vmunix/mediarelay/internal/media"
)

// autoOrder is the fallback order used for media.StrategyAuto.
var autoOrder = []media.Strategy{media.StrategyTool, media.StrategyDirect, media.StrategyBrowser}

// Attempt records one strategy that failed or came back empty.
type Attempt struct {
	Strategy media.Strategy `json:"strategy"`
	Message  string         `json:"message"`
}

// Registry dispatches extraction to a named strategy or walks the fallback
// chain.
type Registry struct {
	strategies map[media.Strategy]Strategy
	tool       ToolStrategy
	log        *slog.Logger
}

// NewRegistry registers strategies by their Name. A later strategy with the
// same name replaces an earlier one.
func NewRegistry(logger *slog.Logger, strategies ...Strategy) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		strategies: make(map[media.Strategy]Strategy, len(strategies)),
		log:        logger.With("component", "extractors"),
	}
	for _, s := range strategies {
		r.strategies[s.Name()] = s
		if t, ok := s.(ToolStrategy); ok && s.Name() == media.StrategyTool {
			r.tool = t
		}
	}
	return r
}

// Extract runs the strategy named by opts.Strategy, or the auto chain.
// Failures are returned as apperr.KindExtraction.
func (r *Registry) Extract(ctx context.Context, url string, opts media.Options) ([]media.Descriptor, error) {
	name := opts.Strategy
	if name == "" {
		name = media.StrategyAuto
	}
	if name != media.StrategyAuto {
		return r.extractWith(ctx, name, url, opts)
	}

	var attempts []Attempt
	for _, name := range autoOrder {
		s, ok := r.strategies[name]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, apperr.Wrap(apperr.KindExtraction, err, "extraction interrupted")
		}

		items, err := s.Extract(ctx, url, opts)
		switch {
		case err != nil:
			r.log.Debug("strategy failed", "strategy", name, "url", url, "error", err)
			attempts = append(attempts, Attempt{Strategy: name, Message: err.Error()})
		case len(items) == 0:
			r.log.Debug("strategy found nothing", "strategy", name, "url", url)
			attempts = append(attempts, Attempt{Strategy: name, Message: ErrNoMedia.Error()})
		default:
			r.log.Info("extracted media", "strategy", name, "url", url, "items", len(items))
			return items, nil
		}
	}

	return nil, allFailed(attempts)
}

func (r *Registry) extractWith(ctx context.Context, name media.Strategy, url string, opts media.Options) ([]media.Descriptor, error) {
	s, ok := r.strategies[name]
	if !ok {
		return nil, apperr.Validation("%s: %q", ErrUnknownStrategy, name)
	}
	items, err := s.Extract(ctx, url, opts)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExtraction, err, "%s extraction failed", name)
	}
	if len(items) == 0 {
		return nil, apperr.Wrap(apperr.KindExtraction, ErrNoMedia, "%s extraction failed", name)
	}
	return items, nil
}

// Formats lists every format the tool strategy reports for url.
func (r *Registry) Formats(ctx context.Context, url string) ([]media.Descriptor, error) {
	if r.tool == nil {
		return nil, apperr.Wrap(apperr.KindExtraction, ErrNoTool, "listing formats")
	}
	items, err := r.tool.ListFormats(ctx, url)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExtraction, err, "listing formats")
	}
	return items, nil
}

// Names returns the registered strategy names in fallback order.
func (r *Registry) Names() []media.Strategy {
	var names []media.Strategy
	for _, n := range autoOrder {
		if _, ok := r.strategies[n]; ok {
			names = append(names, n)
		}
	}
	return names
}

// Close releases resources held by strategies, such as a browser session.
func (r *Registry) Close() error {
	var errs []error
	for _, n := range autoOrder {
		if c, ok := r.strategies[n].(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", n, err))
			}
		}
	}
	return errors.Join(errs...)
}

func allFailed(attempts []Attempt) error {
	details := make([]apperr.Detail, len(attempts))
	for i, a := range attempts {
		details[i] = apperr.Detail{Source: string(a.Strategy), Message: a.Message}
	}
	return apperr.Aggregate(apperr.KindExtraction, "no media found, all strategies failed:", details)
}
