package convert

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Bookmark records how far incremental runs have progressed.
// BoundaryFiles lists the files already read whose modification time equals
// LastModified.
type Bookmark struct {
	LastModified  time.Time `json:"last_modified"`
	BoundaryFiles []string  `json:"boundary_files,omitempty"`
	Files         int       `json:"files"`
	Runs          int       `json:"runs"`
}

func (b Bookmark) seen() map[string]bool {
	seen := make(map[string]bool, len(b.BoundaryFiles))
	for _, f := range b.BoundaryFiles {
		seen[f] = true
	}
	return seen
}

func (b Bookmark) advance(newest time.Time, boundary []string, files int) Bookmark {
	switch {
	case newest.After(b.LastModified):
		b.LastModified = newest
		b.BoundaryFiles = boundary
	case newest.Equal(b.LastModified):
		seen := b.seen()
		for _, f := range boundary {
			if !seen[f] {
				b.BoundaryFiles = append(b.BoundaryFiles, f)
			}
		}
	}
	b.Files += files
	b.Runs++
	return b
}

// loadBookmark reads the bookmark at path. A missing file or empty path
// yields the zero bookmark.
func loadBookmark(path string) (Bookmark, error) {
	var b Bookmark
	if path == "" {
		return b, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return b, fmt.Errorf("failed to read bookmark: %w", err)
	}
	if err := json.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("failed to decode bookmark %s: %w", path, err)
	}
	return b, nil
}

// saveBookmark replaces the bookmark atomically.
func saveBookmark(path string, b Bookmark) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode bookmark: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create bookmark directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write bookmark: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace bookmark: %w", err)
	}
	return nil
}
