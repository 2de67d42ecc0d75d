package fetch

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// tempPrefix marks files owned by the downloader.
const tempPrefix = "media_"

// TempDir is the scratch directory downloads are written to.
type TempDir struct {
	dir string
}

// NewTempDir creates dir if needed.
func NewTempDir(dir string) (*TempDir, error) {
	t := &TempDir{dir: dir}
	if err := t.Ensure(); err != nil {
		return nil, err
	}
	return t, nil
}

// Ensure creates the directory if it does not exist.
func (t *TempDir) Ensure() error {
	if err := os.MkdirAll(t.dir, 0755); err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}
	return nil
}

// Path returns the directory path.
func (t *TempDir) Path() string { return t.dir }

// NewBase returns a fresh collision-free base name without extension.
func (t *TempDir) NewBase() string {
	id := uuid.New()
	return tempPrefix + hex.EncodeToString(id[:])
}

// NewPath returns a fresh path with the given extension (including dot).
func (t *TempDir) NewPath(ext string) string {
	return filepath.Join(t.dir, t.NewBase()+ext)
}

// Find returns the completed file whose name starts with base. Partial
// files left by an interrupted tool run are ignored.
func (t *TempDir) Find(base string) (string, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return "", fmt.Errorf("reading temp dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, base) || isPartial(name) {
			continue
		}
		return filepath.Join(t.dir, name), nil
	}
	return "", fmt.Errorf("no output file matching %s", base)
}

// RemovePrefix deletes every file starting with base, including partials.
func (t *TempDir) RemovePrefix(base string) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), base) {
			_ = os.Remove(filepath.Join(t.dir, e.Name()))
		}
	}
}

// Remove deletes path. A missing file is not an error.
func (t *TempDir) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Evict deletes downloader files last modified before now-maxAge and
// returns how many were removed.
func (t *TempDir) Evict(maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading temp dir: %w", err)
	}
	cutoff := now.Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(t.dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

func isPartial(name string) bool {
	return strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") || strings.Contains(name, ".part-")
}
