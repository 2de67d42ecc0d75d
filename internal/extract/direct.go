package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/grafov/m3u8"

	"github.com/vmunix/mediarelay/internal/media"
)

const (
	maxPageSize     = 10 << 20
	maxPlaylistSize = 2 << 20
	headTimeout     = 15 * time.Second
	pageTimeout     = 20 * time.Second
)

var inlineMediaURL = regexp.MustCompile(`(?i)https?://[^\s"'<>]+\.(?:mp4|webm|mkv|avi|mp3|m4a|ogg|opus|flac|wav|m3u8|mpd)`)

// Direct finds media with plain HTTP: a HEAD probe for direct links, then a
// scan of the page HTML.
type Direct struct {
	client *http.Client
	log    *slog.Logger
}

// NewDirect creates the direct strategy. A nil client uses one that follows
// up to five redirects.
func NewDirect(client *http.Client, logger *slog.Logger) *Direct {
	if client == nil {
		client = &http.Client{CheckRedirect: limitRedirects(5)}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Direct{client: client, log: logger.With("component", "direct")}
}

func (d *Direct) Name() media.Strategy { return media.StrategyDirect }

func (d *Direct) Extract(ctx context.Context, pageURL string, opts media.Options) ([]media.Descriptor, error) {
	d.log.Info("extracting", "url", pageURL)

	if item, ok := d.probeDirect(ctx, pageURL, opts); ok {
		return []media.Descriptor{item}, nil
	}

	items, err := d.scanPage(ctx, pageURL, opts)
	if err != nil {
		return nil, err
	}
	d.log.Info("page scanned", "url", pageURL, "items", len(items))
	return items, nil
}

// probeDirect issues a HEAD request; a media Content-Type means pageURL is
// itself the media. Probe errors are not failures.
func (d *Direct) probeDirect(ctx context.Context, pageURL string, opts media.Options) (media.Descriptor, bool) {
	ctx, cancel := context.WithTimeout(ctx, headTimeout)
	defer cancel()

	req, err := d.newRequest(ctx, http.MethodHead, pageURL, opts)
	if err != nil {
		return media.Descriptor{}, false
	}
	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Debug("head probe failed", "url", pageURL, "error", err)
		return media.Descriptor{}, false
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return media.Descriptor{}, false
	}

	contentType := resp.Header.Get("Content-Type")
	kind := media.KindFromMIME(contentType)
	if kind == media.KindUnknown {
		return media.Descriptor{}, false
	}

	finalURL := resp.Request.URL.String()
	title := media.FileName(finalURL)
	if title == "" {
		title = "download"
	}
	item := media.Descriptor{
		Title:         title,
		SourceURL:     pageURL,
		DirectURL:     finalURL,
		Kind:          kind,
		FileExtension: strings.TrimPrefix(media.ExtFromContentType(contentType), "."),
		Extractor:     media.StrategyDirect,
		Metadata: map[string]any{
			"contentType": contentType,
			"site":        media.Domain(pageURL),
		},
	}
	if resp.ContentLength > 0 {
		size := resp.ContentLength
		item.FileSizeBytes = &size
	}
	if media.IsPlaylistMIME(contentType) {
		d.resolveVariant(ctx, &item, opts)
	}
	return media.NewDescriptor(item), true
}

// resolveVariant replaces a master playlist URL with its highest-bandwidth
// variant. Media playlists are left as they are.
func (d *Direct) resolveVariant(ctx context.Context, item *media.Descriptor, opts media.Options) {
	req, err := d.newRequest(ctx, http.MethodGet, item.DirectURL, opts)
	if err != nil {
		return
	}
	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Debug("playlist fetch failed", "url", item.DirectURL, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return
	}

	pl, listType, err := m3u8.DecodeFrom(io.LimitReader(resp.Body, maxPlaylistSize), true)
	if err != nil {
		d.log.Debug("playlist parse failed", "url", item.DirectURL, "error", err)
		return
	}
	if listType != m3u8.MASTER {
		item.Metadata["playlist"] = "media"
		return
	}
	master := pl.(*m3u8.MasterPlaylist)

	var best *m3u8.Variant
	for _, v := range master.Variants {
		if v == nil || v.URI == "" {
			continue
		}
		if best == nil || v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	item.Metadata["playlist"] = "master"
	item.Metadata["variants"] = len(master.Variants)
	if best == nil {
		return
	}
	if resolved, ok := resolveRef(item.DirectURL, best.URI); ok {
		item.DirectURL = resolved
		item.Metadata["bandwidth"] = best.Bandwidth
		if best.Resolution != "" {
			item.Quality = best.Resolution
		}
	}
}

type pageItem struct {
	title  string
	kind   media.Kind
	poster string
}

func (d *Direct) scanPage(ctx context.Context, pageURL string, opts media.Options) ([]media.Descriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, pageTimeout)
	defer cancel()

	req, err := d.newRequest(ctx, http.MethodGet, pageURL, opts)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetching page: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}

	pageTitle := strings.TrimSpace(doc.Find("title").First().Text())
	if pageTitle == "" {
		pageTitle = "Untitled"
	}
	domain := media.Domain(pageURL)

	var items []media.Descriptor
	seen := make(map[string]bool)
	add := func(ref string, info pageItem) {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return
		}
		resolved, ok := resolveRef(pageURL, ref)
		if !ok || seen[resolved] {
			return
		}
		seen[resolved] = true

		kind := info.kind
		if kind == "" {
			kind = media.KindFromExt(media.ExtFromURL(resolved))
		}
		title := info.title
		if title == "" {
			title = pageTitle
		}
		items = append(items, media.NewDescriptor(media.Descriptor{
			Title:         title,
			SourceURL:     pageURL,
			DirectURL:     resolved,
			Thumbnail:     info.poster,
			Kind:          kind,
			FileExtension: strings.TrimPrefix(media.ExtFromURL(resolved), "."),
			Extractor:     media.StrategyDirect,
			Metadata:      map[string]any{"site": domain},
		}))
	}

	doc.Find("video").Each(func(_ int, s *goquery.Selection) {
		poster := s.AttrOr("poster", "")
		add(s.AttrOr("src", ""), pageItem{kind: media.KindVideo, poster: poster})
		s.Find("source").Each(func(_ int, src *goquery.Selection) {
			add(src.AttrOr("src", ""), pageItem{kind: media.KindVideo, poster: poster})
		})
	})

	doc.Find("audio").Each(func(_ int, s *goquery.Selection) {
		add(s.AttrOr("src", ""), pageItem{kind: media.KindAudio})
		s.Find("source").Each(func(_ int, src *goquery.Selection) {
			add(src.AttrOr("src", ""), pageItem{kind: media.KindAudio})
		})
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		if containsMediaExt(href) {
			add(href, pageItem{title: strings.TrimSpace(s.Text())})
		}
	})

	ogVideo := doc.Find(`meta[property="og:video"]`).AttrOr("content", "")
	if ogVideo == "" {
		ogVideo = doc.Find(`meta[property="og:video:url"]`).AttrOr("content", "")
	}
	add(ogVideo, pageItem{kind: media.KindVideo})
	add(doc.Find(`meta[property="og:audio"]`).AttrOr("content", ""), pageItem{kind: media.KindAudio})

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		for _, obj := range parseLinkedData(s.Text()) {
			switch obj.Type {
			case "VideoObject":
				add(obj.ContentURL, pageItem{title: obj.Name, kind: media.KindVideo})
			case "AudioObject":
				add(obj.ContentURL, pageItem{title: obj.Name, kind: media.KindAudio})
			}
		}
	})

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		for _, m := range inlineMediaURL.FindAllString(s.Text(), -1) {
			add(m, pageItem{})
		}
	})

	return items, nil
}

func (d *Direct) newRequest(ctx context.Context, method, target string, opts media.Options) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range media.DefaultHeaders() {
		req.Header.Set(k, v)
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}
	if opts.Referer != "" {
		req.Header.Set("Referer", opts.Referer)
	}
	return req, nil
}

type linkedData struct {
	Type       string `json:"@type"`
	Name       string `json:"name"`
	ContentURL string `json:"contentUrl"`
}

// parseLinkedData decodes a JSON-LD block holding one object or an array.
func parseLinkedData(raw string) []linkedData {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if raw[0] == '[' {
		var list []linkedData
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil
		}
		return list
	}
	var one linkedData
	if err := json.Unmarshal([]byte(raw), &one); err != nil {
		return nil
	}
	return []linkedData{one}
}

// containsMediaExt matches a known media extension anywhere in href, as
// link targets often carry the extension before a query or path suffix.
func containsMediaExt(href string) bool {
	lower := strings.ToLower(href)
	if media.HasMediaExt(href) {
		return true
	}
	for _, ext := range []string{".mp4", ".webm", ".mkv", ".mov", ".m3u8", ".mp3", ".m4a", ".ogg", ".flac", ".wav", ".opus"} {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

func resolveRef(base, ref string) (string, bool) {
	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	u := b.ResolveReference(r)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}

func limitRedirects(n int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= n {
			return fmt.Errorf("stopped after %d redirects", n)
		}
		return nil
	}
}
