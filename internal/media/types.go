package media

import (
	"net/url"
	"path"
	"strings"
)

// DefaultUserAgent is sent by every outbound request unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultHeaders returns the browser-like headers used for page and media
// requests. The map is a fresh copy.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      DefaultUserAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
	}
}

var videoExts = []string{".mp4", ".webm", ".mkv", ".avi", ".mov", ".flv", ".wmv", ".m4v", ".m3u8", ".ts"}

var audioExts = []string{".mp3", ".m4a", ".aac", ".ogg", ".wav", ".flac", ".opus", ".weba"}

var videoMIMEs = []string{
	"video/mp4",
	"video/webm",
	"video/ogg",
	"video/quicktime",
	"video/x-msvideo",
	"video/x-matroska",
	"video/x-flv",
	"application/x-mpegurl",
	"application/vnd.apple.mpegurl",
	"video/mp2t",
}

var audioMIMEs = []string{
	"audio/mpeg",
	"audio/mp4",
	"audio/aac",
	"audio/ogg",
	"audio/wav",
	"audio/webm",
	"audio/flac",
	"audio/opus",
}

var mimeExts = map[string]string{
	"video/mp4":                     ".mp4",
	"video/webm":                    ".webm",
	"video/ogg":                     ".ogv",
	"video/quicktime":               ".mov",
	"video/x-msvideo":               ".avi",
	"video/x-matroska":              ".mkv",
	"video/x-flv":                   ".flv",
	"video/mp2t":                    ".ts",
	"application/x-mpegurl":         ".m3u8",
	"application/vnd.apple.mpegurl": ".m3u8",
	"audio/mpeg":                    ".mp3",
	"audio/mp4":                     ".m4a",
	"audio/aac":                     ".aac",
	"audio/ogg":                     ".ogg",
	"audio/wav":                     ".wav",
	"audio/webm":                    ".weba",
	"audio/flac":                    ".flac",
	"audio/opus":                    ".opus",
}

// KindFromMIME classifies a Content-Type value. Parameters are ignored.
func KindFromMIME(contentType string) Kind {
	ct := normalizeMIME(contentType)
	if ct == "" {
		return KindUnknown
	}
	for _, m := range videoMIMEs {
		if strings.HasPrefix(ct, m) {
			return KindVideo
		}
	}
	for _, m := range audioMIMEs {
		if strings.HasPrefix(ct, m) {
			return KindAudio
		}
	}
	return KindUnknown
}

// IsPlaylistMIME reports whether contentType is an HLS playlist.
func IsPlaylistMIME(contentType string) bool {
	ct := normalizeMIME(contentType)
	return ct == "application/x-mpegurl" || ct == "application/vnd.apple.mpegurl"
}

// KindFromExt classifies a file extension, with or without the leading dot.
// Extensions in both tables (webm) resolve to video.
func KindFromExt(ext string) Kind {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	for _, e := range videoExts {
		if e == ext {
			return KindVideo
		}
	}
	for _, e := range audioExts {
		if e == ext {
			return KindAudio
		}
	}
	return KindUnknown
}

// ExtFromContentType returns the extension (with dot) for a media MIME type,
// or "".
func ExtFromContentType(contentType string) string {
	return mimeExts[normalizeMIME(contentType)]
}

// ExtFromURL returns the lowercased path extension of rawURL (with dot),
// ignoring query and fragment.
func ExtFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}

// HasMediaExt reports whether s contains a known media extension anywhere
// in its path.
func HasMediaExt(s string) bool {
	return KindFromExt(ExtFromURL(s)) != KindUnknown
}

// FileName returns the last path segment of rawURL without its extension.
func FileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

// Domain returns the host of rawURL without port, or "".
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// IsHTTPURL reports whether rawURL is an absolute http or https URL.
func IsHTTPURL(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func normalizeMIME(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}
