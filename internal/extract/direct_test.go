package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/mediarelay/internal/media"
)

const samplePage = `<!doctype html>
<html><head>
<title> Sample Page </title>
<meta property="og:video" content="/og/clip.mp4">
<script type="application/ld+json">{"@type":"VideoObject","name":"LD clip","contentUrl":"https://cdn.example.com/ld.webm"}</script>
</head><body>
<video src="/v/main.mp4" poster="/p.jpg"><source src="/v/alt.webm"></video>
<audio><source src="song.mp3"></audio>
<a href="/files/extra.mkv?dl=1">Extra cut</a>
<a href="/about">About</a>
<video src="/v/main.mp4"></video>
<script>var player = {src: "https://stream.example.com/live/index.m3u8"};</script>
<script src="https://cdn.example.com/app.js"></script>
</body></html>`

func TestDirect_ScanPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.Method == http.MethodHead {
			return
		}
		fmt.Fprint(w, samplePage)
	}))
	defer srv.Close()

	d := NewDirect(srv.Client(), quietLogger())
	items, err := d.Extract(context.Background(), srv.URL+"/page", media.Options{})
	require.NoError(t, err)

	byURL := make(map[string]media.Descriptor)
	for _, it := range items {
		byURL[it.DirectURL] = it
		assert.Equal(t, media.StrategyDirect, it.Extractor)
		assert.Equal(t, srv.URL+"/page", it.SourceURL)
	}

	main := byURL[srv.URL+"/v/main.mp4"]
	assert.Equal(t, media.KindVideo, main.Kind)
	assert.Equal(t, "Sample Page", main.Title)
	assert.Equal(t, "/p.jpg", main.Thumbnail)

	assert.Equal(t, media.KindVideo, byURL[srv.URL+"/v/alt.webm"].Kind)
	assert.Equal(t, media.KindAudio, byURL[srv.URL+"/song.mp3"].Kind)
	assert.Equal(t, "Extra cut", byURL[srv.URL+"/files/extra.mkv?dl=1"].Title)
	assert.Equal(t, media.KindVideo, byURL[srv.URL+"/og/clip.mp4"].Kind)
	assert.Equal(t, "LD clip", byURL["https://cdn.example.com/ld.webm"].Title)
	assert.Contains(t, byURL, "https://stream.example.com/live/index.m3u8")

	assert.NotContains(t, byURL, srv.URL+"/about")
	assert.NotContains(t, byURL, "https://cdn.example.com/app.js")
	assert.Len(t, items, 7, "duplicates are dropped")
}

func TestDirect_DirectLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/go" {
			http.Redirect(w, r, "/media/file.mp4", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", "1234")
	}))
	defer srv.Close()

	d := NewDirect(srv.Client(), quietLogger())
	items, err := d.Extract(context.Background(), srv.URL+"/go", media.Options{})
	require.NoError(t, err)
	require.Len(t, items, 1)

	it := items[0]
	assert.Equal(t, srv.URL+"/media/file.mp4", it.DirectURL)
	assert.Equal(t, "file", it.Title)
	assert.Equal(t, "mp4", it.FileExtension)
	assert.Equal(t, media.KindVideo, it.Kind)
	require.NotNil(t, it.FileSizeBytes)
	assert.Equal(t, int64(1234), *it.FileSizeBytes)
}

func TestDirect_MasterPlaylistPicksHighestBandwidth(t *testing.T) {
	const master = "#EXTM3U\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360\nlow/index.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=2400000,RESOLUTION=1280x720\nhigh/index.m3u8\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		if r.Method == http.MethodGet {
			fmt.Fprint(w, master)
		}
	}))
	defer srv.Close()

	d := NewDirect(srv.Client(), quietLogger())
	items, err := d.Extract(context.Background(), srv.URL+"/hls/master.m3u8", media.Options{})
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, srv.URL+"/hls/high/index.m3u8", items[0].DirectURL)
	assert.Equal(t, "1280x720", items[0].Quality)
	assert.Equal(t, "master", items[0].Metadata["playlist"])
}

func TestDirect_PageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewDirect(srv.Client(), quietLogger())
	_, err := d.Extract(context.Background(), srv.URL, media.Options{})
	assert.ErrorContains(t, err, "status 404")
}

func TestDirect_SendsHeaders(t *testing.T) {
	var gotUA, gotRef string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotRef = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "text/html")
	}))
	defer srv.Close()

	d := NewDirect(srv.Client(), quietLogger())
	items, err := d.Extract(context.Background(), srv.URL, media.Options{UserAgent: "relay/1", Referer: "https://ref.example.com"})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, "relay/1", gotUA)
	assert.Equal(t, "https://ref.example.com", gotRef)
}

func TestParseLinkedData(t *testing.T) {
	assert.Len(t, parseLinkedData(`[{"@type":"VideoObject","contentUrl":"a"},{"@type":"Thing"}]`), 2)
	assert.Len(t, parseLinkedData(`{"@type":"AudioObject"}`), 1)
	assert.Nil(t, parseLinkedData(`not json`))
}
