package upload

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxFileNameLength = 200

var unsafeFileChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]+`)

// SanitizeFileName makes a title safe to present as an upload file name:
// accents are folded, path and shell-hostile characters replaced and the
// length capped. ext is appended when given.
func SanitizeFileName(title, ext string) string {
	s := removeAccents(title)
	s = unsafeFileChars.ReplaceAllString(s, "_")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, ". _")
	if s == "" {
		s = "download"
	}
	if r := []rune(s); len(r) > maxFileNameLength {
		s = strings.TrimSpace(string(r[:maxFileNameLength]))
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return s
	}
	return s + "." + ext
}

func removeAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NameFor returns the presented file name for filePath.
func (o Options) NameFor(filePath string) string {
	if o.FileName != "" {
		return o.FileName
	}
	return filepath.Base(filePath)
}
