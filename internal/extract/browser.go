package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/vmunix/mediarelay/internal/media"
)

// BrowserConfig configures the headless browser strategy.
type BrowserConfig struct {
	Headless bool
	ExecPath string
	Timeout  time.Duration
	// Settle is how long to wait after load for players to request media.
	Settle time.Duration
}

// Browser renders pages in a shared headless Chrome session and collects
// media from network traffic and the rendered DOM.
type Browser struct {
	cfg    BrowserConfig
	launch func() (context.Context, context.CancelFunc, error)
	log    *slog.Logger

	mu     sync.Mutex
	sess   context.Context
	cancel context.CancelFunc
}

// NewBrowser creates the strategy. The browser process starts on first use.
func NewBrowser(cfg BrowserConfig, logger *slog.Logger) *Browser {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Settle == 0 {
		cfg.Settle = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Browser{cfg: cfg, log: logger.With("component", "browser")}
	b.launch = b.launchChrome
	return b
}

func (b *Browser) Name() media.Strategy { return media.StrategyBrowser }

// session returns the live browser context, launching one if there is none
// or the previous one died.
func (b *Browser) session() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sess != nil && b.sess.Err() == nil {
		return b.sess, nil
	}
	if b.cancel != nil {
		b.cancel()
	}
	sess, cancel, err := b.launch()
	if err != nil {
		b.sess, b.cancel = nil, nil
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	b.sess, b.cancel = sess, cancel
	b.log.Info("browser launched")
	return sess, nil
}

func (b *Browser) launchChrome() (context.Context, context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-web-security", true),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(media.DefaultUserAgent),
	)
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		browserCancel()
		allocCancel()
	}
	// An empty Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, nil, err
	}
	return browserCtx, cancel, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.log.Info("browser closed")
	}
	b.sess, b.cancel = nil, nil
	return nil
}

func (b *Browser) Extract(ctx context.Context, pageURL string, opts media.Options) ([]media.Descriptor, error) {
	sess, err := b.session()
	if err != nil {
		return nil, err
	}

	tabCtx, closeTab := chromedp.NewContext(sess)
	defer closeTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, b.cfg.Timeout+b.cfg.Settle)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	c := newCollector()
	chromedp.ListenTarget(tabCtx, c.handle)

	var title string
	var dom []sniffed
	actions := []chromedp.Action{network.Enable()}
	if extra := extraHeaders(opts); len(extra) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(extra))
	}
	actions = append(actions,
		chromedp.Navigate(pageURL),
		chromedp.Sleep(b.cfg.Settle),
		chromedp.Title(&title),
		chromedp.Evaluate(domScanScript, &dom),
	)

	b.log.Info("navigating", "url", pageURL)
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("page did not settle within %s: %w", b.cfg.Timeout, err)
		}
		return nil, fmt.Errorf("rendering page: %w", err)
	}

	for _, s := range dom {
		c.add(s)
	}
	items := c.descriptors(pageURL, title)
	b.log.Info("page rendered", "url", pageURL, "items", len(items))
	return items, nil
}

// sniffed is a media candidate seen on the network or in the DOM.
type sniffed struct {
	URL           string     `json:"url"`
	Kind          media.Kind `json:"kind"`
	Poster        string     `json:"poster"`
	Title         string     `json:"title"`
	Thumbnail     string     `json:"thumbnail"`
	Embedded      bool       `json:"embedded"`
	ContentType   string     `json:"-"`
	ContentLength int64      `json:"-"`
}

type collector struct {
	mu    sync.Mutex
	order []string
	seen  map[string]sniffed
}

func newCollector() *collector {
	return &collector{seen: make(map[string]sniffed)}
}

// add keeps the first sighting of each URL.
func (c *collector) add(s sniffed) {
	if s.URL == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[s.URL]; ok {
		return
	}
	c.seen[s.URL] = s
	c.order = append(c.order, s.URL)
}

func (c *collector) handle(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Request == nil {
			return
		}
		switch e.Type {
		case network.ResourceTypeMedia, network.ResourceTypeXHR, network.ResourceTypeFetch:
		default:
			return
		}
		kind := media.KindFromMIME(header(e.Request.Headers, "content-type"))
		if kind == media.KindUnknown {
			kind = media.KindFromExt(media.ExtFromURL(e.Request.URL))
		}
		if kind != media.KindUnknown {
			c.add(sniffed{URL: e.Request.URL, Kind: kind})
		}
	case *network.EventResponseReceived:
		if e.Response == nil {
			return
		}
		ct := e.Response.MimeType
		if ct == "" {
			ct = header(e.Response.Headers, "content-type")
		}
		kind := media.KindFromMIME(ct)
		if kind == media.KindUnknown {
			return
		}
		size, _ := strconv.ParseInt(header(e.Response.Headers, "content-length"), 10, 64)
		c.add(sniffed{URL: e.Response.URL, Kind: kind, ContentType: ct, ContentLength: size})
	}
}

func (c *collector) descriptors(pageURL, pageTitle string) []media.Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()

	domain := media.Domain(pageURL)
	items := make([]media.Descriptor, 0, len(c.order))
	for i, u := range c.order {
		s := c.seen[u]
		title := s.Title
		if title == "" {
			title = pageTitle
		}
		thumb := s.Poster
		if thumb == "" {
			thumb = s.Thumbnail
		}
		d := media.Descriptor{
			ID:            fmt.Sprintf("%s_%d", domain, i),
			Title:         title,
			SourceURL:     pageURL,
			DirectURL:     s.URL,
			Thumbnail:     thumb,
			Kind:          s.Kind,
			FileExtension: strings.TrimPrefix(media.ExtFromURL(s.URL), "."),
			Extractor:     media.StrategyBrowser,
			Metadata: map[string]any{
				"site":     domain,
				"embedded": s.Embedded,
			},
		}
		if s.ContentType != "" {
			d.Metadata["contentType"] = s.ContentType
		}
		if s.ContentLength > 0 {
			size := s.ContentLength
			d.FileSizeBytes = &size
		}
		items = append(items, media.NewDescriptor(d))
	}
	return items
}

func extraHeaders(opts media.Options) network.Headers {
	h := network.Headers{}
	if opts.UserAgent != "" {
		h["User-Agent"] = opts.UserAgent
	}
	if opts.Referer != "" {
		h["Referer"] = opts.Referer
	}
	return h
}

func header(h network.Headers, name string) string {
	for k, v := range h {
		if strings.EqualFold(k, name) {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

const domScanScript = `(() => {
  const out = [];
  const abs = (u) => typeof u === 'string' && u.startsWith('http');
  const str = (v) => (typeof v === 'string' ? v : '');
  document.querySelectorAll('video, video source').forEach((el) => {
    const src = el.src || el.getAttribute('src') || el.currentSrc;
    if (abs(src)) {
      const v = el.closest('video');
      out.push({url: src, kind: 'video', poster: str(v && v.poster)});
    }
  });
  document.querySelectorAll('audio, audio source').forEach((el) => {
    const src = el.src || el.getAttribute('src') || el.currentSrc;
    if (abs(src)) out.push({url: src, kind: 'audio'});
  });
  document.querySelectorAll('iframe').forEach((f) => {
    if (/youtube|vimeo|dailymotion|twitch|streamable|vidyard/i.test(f.src || '')) {
      out.push({url: f.src, kind: 'video', embedded: true});
    }
  });
  ['og:video', 'og:video:url'].forEach((p) => {
    const m = document.querySelector('meta[property="' + p + '"]');
    if (m && abs(m.content)) out.push({url: m.content, kind: 'video'});
  });
  document.querySelectorAll('script[type="application/ld+json"]').forEach((s) => {
    try {
      const data = JSON.parse(s.textContent);
      (Array.isArray(data) ? data : [data]).forEach((it) => {
        if (it && it['@type'] === 'VideoObject' && abs(it.contentUrl)) {
          out.push({url: it.contentUrl, kind: 'video', title: str(it.name), thumbnail: str(it.thumbnailUrl)});
        }
      });
    } catch (e) {}
  });
  return out;
})()`
