// Package snapshot persists the frame that triggered an alert.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"trace-rescue/internal/core/models"
	"trace-rescue/internal/imaging"
)

const jpegQuality = 90

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Writer stores snapshots as JPEG files in Dir.
type Writer struct {
	Dir string
}

// NewWriter returns a Writer for dir, creating it if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}
	return &Writer{Dir: dir}, nil
}

// Save writes frame to disk and returns the file path. The name encodes the
// person and the alert time so consecutive alerts never overwrite each other.
func (w *Writer) Save(frame *models.Frame, person string, at time.Time) (string, error) {
	data, err := imaging.EncodeJPEG(frame, jpegQuality)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("alert_%s_%s.jpg", at.UTC().Format("20060102T150405.000"), sanitize(person))
	path := filepath.Join(w.Dir, name)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize snapshot: %w", err)
	}
	return path, nil
}

func sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(s)
}
