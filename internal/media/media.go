// Package media defines the normalized media descriptor and the option types
// shared by extraction strategies.
package media

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind is the broad media category of a descriptor.
type Kind string

const (
	KindVideo   Kind = "video"
	KindAudio   Kind = "audio"
	KindUnknown Kind = "unknown"
)

// Strategy names an extraction strategy.
type Strategy string

const (
	StrategyAuto    Strategy = "auto"
	StrategyTool    Strategy = "tool"
	StrategyBrowser Strategy = "browser"
	StrategyDirect  Strategy = "direct"
)

// ParseStrategy parses a strategy name. Empty means auto; "ytdlp" and
// "yt-dlp" are accepted for the tool strategy, "puppeteer" for browser.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return StrategyAuto, nil
	case "tool", "ytdlp", "yt-dlp":
		return StrategyTool, nil
	case "browser", "puppeteer":
		return StrategyBrowser, nil
	case "direct":
		return StrategyDirect, nil
	default:
		return "", fmt.Errorf("unknown extraction strategy %q", s)
	}
}

// Options controls a single extraction.
type Options struct {
	Strategy    Strategy
	AudioOnly   bool
	UserAgent   string
	Referer     string
	MaxFileSize int64
	Format      string
}

// Format is one downloadable rendition reported by the tool strategy.
type Format struct {
	ID       string  `json:"formatId"`
	Ext      string  `json:"ext,omitempty"`
	Quality  string  `json:"quality,omitempty"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	FPS      float64 `json:"fps,omitempty"`
	VCodec   string  `json:"vcodec,omitempty"`
	ACodec   string  `json:"acodec,omitempty"`
	FileSize int64   `json:"filesize,omitempty"`
	URL      string  `json:"url,omitempty"`
	TBR      float64 `json:"tbr,omitempty"`
}

// Descriptor is the normalized record of one discovered media item.
type Descriptor struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	SourceURL       string         `json:"sourceUrl"`
	DirectURL       string         `json:"directUrl,omitempty"`
	Thumbnail       string         `json:"thumbnail,omitempty"`
	DurationSeconds *float64       `json:"duration,omitempty"`
	FileSizeBytes   *int64         `json:"fileSize,omitempty"`
	ContainerFormat string         `json:"format,omitempty"`
	FileExtension   string         `json:"extension,omitempty"`
	Kind            Kind           `json:"mediaKind"`
	Quality         string         `json:"quality,omitempty"`
	Extractor       Strategy       `json:"extractor"`
	Formats         []Format       `json:"formats,omitempty"`
	Metadata        map[string]any `json:"metadata"`
}

// NewDescriptor fills the defaults of a partially populated descriptor:
// a fresh ID, title "Untitled", kind unknown and an empty metadata map.
// Fields already set are kept.
func NewDescriptor(d Descriptor) Descriptor {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if strings.TrimSpace(d.Title) == "" {
		d.Title = "Untitled"
	}
	if d.Kind == "" {
		d.Kind = KindUnknown
	}
	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}
	return d
}

// HasDirectURL reports whether the item can be fetched without the tool.
func (d Descriptor) HasDirectURL() bool { return d.DirectURL != "" }

// MarshalJSON always emits mediaKind, even for zero-value descriptors.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	type alias Descriptor
	if d.Kind == "" {
		d.Kind = KindUnknown
	}
	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}
	return json.Marshal(alias(d))
}

func (d *Descriptor) UnmarshalJSON(data []byte) error {
	type alias Descriptor
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*d = Descriptor(a)
	if d.Kind == "" {
		d.Kind = KindUnknown
	}
	return nil
}
