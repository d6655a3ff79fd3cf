// Package search finds files and directories by name beneath a base
// directory.
package search

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/audichuang/openclaw-telegram-files/internal/apperr"
	"github.com/audichuang/openclaw-telegram-files/pkg/protocol"
)

const (
	DefaultMaxResults = 50
	DefaultMaxDepth   = 5
	MaxQueryLength    = 200
)

// Options bounds a search.
type Options struct {
	MaxResults int
	// MaxDepth is how many levels below base are inspected; 1 means only
	// the direct children.
	MaxDepth int

	// Allow, when set, is consulted with the canonical path of every
	// candidate. Entries it rejects are neither reported nor descended into.
	Allow func(resolved string) bool
}

// ValidateQuery checks the query length.
func ValidateQuery(q string) error {
	if q == "" {
		return apperr.InvalidInput("query required")
	}
	if len(q) > MaxQueryLength {
		return apperr.InvalidInput("query too long")
	}
	return nil
}

type walker struct {
	ctx     context.Context
	needle  string
	opts    Options
	visited map[string]struct{}
	results []protocol.SearchResult
}

// Search walks base depth-first and returns entries whose name contains
// query, case-insensitively. Hidden entries are skipped along with their
// subtrees, unreadable directories are skipped silently, and every real
// directory is entered at most once so symlink cycles terminate.
func Search(ctx context.Context, base, query string, opts Options) ([]protocol.SearchResult, error) {
	if err := ValidateQuery(query); err != nil {
		return nil, err
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}

	info, err := os.Stat(base)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, apperr.NotFound("not found")
	case err != nil:
		return nil, apperr.Storage("search", err)
	case !info.IsDir():
		return nil, apperr.WrongType("not a directory")
	}
	real, err := filepath.EvalSymlinks(base)
	if err != nil {
		return nil, apperr.Storage("search", err)
	}

	w := &walker{
		ctx:     ctx,
		needle:  strings.ToLower(query),
		opts:    opts,
		visited: map[string]struct{}{real: {}},
		results: []protocol.SearchResult{},
	}
	if err := w.walk(base, 0); err != nil {
		return nil, err
	}
	return w.results, nil
}

func (w *walker) full() bool {
	return len(w.results) >= w.opts.MaxResults
}

func (w *walker) walk(dir string, depth int) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	for _, de := range entries {
		if err := w.ctx.Err(); err != nil {
			return err
		}
		if w.full() {
			return nil
		}

		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		p := filepath.Join(dir, name)

		resolved, err := filepath.EvalSymlinks(p)
		if err != nil {
			// Dangling link or vanished entry.
			continue
		}
		if w.opts.Allow != nil && !w.opts.Allow(resolved) {
			continue
		}
		info, err := os.Stat(resolved)
		if err != nil {
			continue
		}

		if strings.Contains(strings.ToLower(name), w.needle) {
			w.results = append(w.results, protocol.SearchResult{
				Path:  p,
				Name:  name,
				IsDir: info.IsDir(),
			})
			if w.full() {
				return nil
			}
		}

		if !info.IsDir() || depth+1 >= w.opts.MaxDepth {
			continue
		}
		if _, seen := w.visited[resolved]; seen {
			continue
		}
		w.visited[resolved] = struct{}{}
		if err := w.walk(p, depth+1); err != nil {
			return err
		}
	}
	return nil
}
