package extract

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/mediarelay/internal/media"
)

func fakeLaunches(b *Browser) *int {
	var launches int
	b.launch = func() (context.Context, context.CancelFunc, error) {
		launches++
		ctx, cancel := context.WithCancel(context.Background())
		return ctx, cancel, nil
	}
	return &launches
}

func TestBrowser_SessionIsShared(t *testing.T) {
	b := NewBrowser(BrowserConfig{Headless: true}, quietLogger())
	launches := fakeLaunches(b)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.session()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, *launches)
}

func TestBrowser_SessionRelaunchesAfterClose(t *testing.T) {
	b := NewBrowser(BrowserConfig{}, quietLogger())
	launches := fakeLaunches(b)

	first, err := b.session()
	require.NoError(t, err)
	require.NoError(t, b.Close())
	assert.Error(t, first.Err(), "closing cancels the session")
	require.NoError(t, b.Close(), "second close is a no-op")

	_, err = b.session()
	require.NoError(t, err)
	assert.Equal(t, 2, *launches)
}

func TestBrowser_LaunchFailure(t *testing.T) {
	b := NewBrowser(BrowserConfig{}, quietLogger())
	b.launch = func() (context.Context, context.CancelFunc, error) {
		return nil, nil, errors.New("chrome not found")
	}

	_, err := b.Extract(context.Background(), "https://example.com", media.Options{})
	assert.ErrorContains(t, err, "chrome not found")
}

func TestCollector_NetworkEvents(t *testing.T) {
	c := newCollector()

	c.handle(&network.EventRequestWillBeSent{
		Type:    network.ResourceTypeMedia,
		Request: &network.Request{URL: "https://cdn.example.com/a.mp4", Headers: network.Headers{}},
	})
	c.handle(&network.EventRequestWillBeSent{
		Type:    network.ResourceTypeImage,
		Request: &network.Request{URL: "https://cdn.example.com/b.mp4", Headers: network.Headers{}},
	})
	c.handle(&network.EventRequestWillBeSent{
		Type:    network.ResourceTypeXHR,
		Request: &network.Request{URL: "https://api.example.com/config.json", Headers: network.Headers{}},
	})
	c.handle(&network.EventResponseReceived{
		Response: &network.Response{
			URL:      "https://cdn.example.com/stream",
			MimeType: "audio/mpeg",
			Headers:  network.Headers{"Content-Length": "4096"},
		},
	})
	c.handle(&network.EventResponseReceived{
		Response: &network.Response{URL: "https://cdn.example.com/a.mp4", MimeType: "video/mp4"},
	})
	c.add(sniffed{URL: "https://cdn.example.com/a.mp4", Kind: media.KindVideo, Title: "ignored"})
	c.add(sniffed{URL: "https://www.youtube.com/embed/x", Kind: media.KindVideo, Embedded: true, Title: "Embed"})

	items := c.descriptors("https://page.example.com/watch", "Page")
	require.Len(t, items, 3)

	assert.Equal(t, "page.example.com_0", items[0].ID)
	assert.Equal(t, "https://cdn.example.com/a.mp4", items[0].DirectURL)
	assert.Equal(t, "Page", items[0].Title)
	assert.Equal(t, media.KindVideo, items[0].Kind)

	assert.Equal(t, media.KindAudio, items[1].Kind)
	require.NotNil(t, items[1].FileSizeBytes)
	assert.Equal(t, int64(4096), *items[1].FileSizeBytes)

	assert.Equal(t, "Embed", items[2].Title)
	assert.Equal(t, true, items[2].Metadata["embedded"])
	for _, it := range items {
		assert.Equal(t, media.StrategyBrowser, it.Extractor)
	}
}
