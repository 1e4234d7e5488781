// Package docsource reads the book's flat-text documents from disk.
package docsource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrOutsideDirectory = errors.New("document name escapes the source directory")

// Directory lists the files in Dir whose base name matches one of the
// comma-separated globs in Pattern. Documents are named by their base name.
type Directory struct {
	Dir      string
	Pattern  string
	patterns []string
}

func NewDirectory(dir, pattern string) (*Directory, error) {
	if strings.TrimSpace(pattern) == "" {
		pattern = "*.md"
	}
	d := &Directory{Dir: dir, Pattern: pattern}
	for _, p := range strings.Split(pattern, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid document pattern %q: %w", p, err)
		}
		d.patterns = append(d.patterns, p)
	}
	return d, nil
}

func (d *Directory) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !d.Matches(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (d *Directory) Read(_ context.Context, name string) (string, error) {
	if name != filepath.Base(name) || strings.HasPrefix(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrOutsideDirectory, name)
	}
	data, err := os.ReadFile(filepath.Join(d.Dir, name))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Matches reports whether a path inside Dir names a document.
func (d *Directory) Matches(path string) bool {
	base := filepath.Base(path)
	for _, p := range d.patterns {
		if ok, err := filepath.Match(p, base); err == nil && ok {
			return true
		}
	}
	return false
}
