package upload

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		title, ext, want string
	}{
		{"Café Tour: Part 1/2", "mp4", "Cafe Tour_ Part 1_2.mp4"},
		{"  spaced   out  ", ".webm", "spaced out.webm"},
		{"", "mp3", "download.mp3"},
		{"???", "mp4", "download.mp4"},
		{"plain", "", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFileName(tt.title, tt.ext))
		})
	}
}

func TestSanitizeFileName_Length(t *testing.T) {
	got := SanitizeFileName(strings.Repeat("a", 500), "mp4")
	assert.Equal(t, maxFileNameLength+len(".mp4"), len(got))
}

func TestOptions_NameFor(t *testing.T) {
	assert.Equal(t, "media_x.mp4", Options{}.NameFor("/tmp/media_x.mp4"))
	assert.Equal(t, "Clip.mp4", Options{FileName: "Clip.mp4"}.NameFor("/tmp/media_x.mp4"))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	assert.NoError(t, err)
	assert.Equal(t, ModeAll, m)
	m, err = ParseMode("FIRST")
	assert.NoError(t, err)
	assert.Equal(t, ModeFirst, m)
	_, err = ParseMode("some")
	assert.Error(t, err)
}
