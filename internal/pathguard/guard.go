// Package pathguard canonicalizes client-supplied paths and decides whether
// they fall inside the configured allow-list.
//
// Every decision fails closed: a path that cannot be resolved, or whose
// containment cannot be established, is denied.
package pathguard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/audichuang/openclaw-telegram-files/internal/apperr"
)

var (
	// ErrEmptyPath is returned for an empty path.
	ErrEmptyPath = errors.New("path required")
	// ErrInvalidPath is returned for paths containing a NUL byte.
	ErrInvalidPath = errors.New("invalid path")
	// ErrUnresolvable is returned when no ancestor of the path can be
	// canonicalized.
	ErrUnresolvable = errors.New("path cannot be resolved")
)

// Guard holds the allow-list roots. The list is fixed for the lifetime of the
// process.
type Guard struct {
	roots []string
}

// New creates a guard over roots. An empty list falls back to the current
// user's home directory.
func New(roots []string) (*Guard, error) {
	var cleaned []string
	for _, r := range roots {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if strings.IndexByte(r, 0) >= 0 {
			return nil, fmt.Errorf("allowed path %q: %w", r, ErrInvalidPath)
		}
		if !filepath.IsAbs(r) {
			return nil, fmt.Errorf("allowed path %q must be absolute", r)
		}
		cleaned = append(cleaned, filepath.Clean(r))
	}
	if len(cleaned) == 0 {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("no allowed paths configured and home directory unknown: %w", err)
		}
		cleaned = []string{home}
	}
	return &Guard{roots: cleaned}, nil
}

// Roots returns the configured roots in order.
func (g *Guard) Roots() []string {
	out := make([]string, len(g.roots))
	copy(out, g.roots)
	return out
}

// Home returns the first configured root.
func (g *Guard) Home() string {
	return g.roots[0]
}

// Canonicalize resolves raw to an absolute, symlink-free path.
//
// Existing paths are resolved with all symlinks evaluated. For a path that
// does not exist yet, the nearest existing ancestor is canonicalized and the
// missing suffix re-appended. Components of that suffix must be truly absent:
// a dangling symlink anywhere along the way is rejected, since writing
// through it would land wherever it points.
func Canonicalize(raw string) (string, error) {
	if raw == "" {
		return "", ErrEmptyPath
	}
	if strings.IndexByte(raw, 0) >= 0 {
		return "", ErrInvalidPath
	}

	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}

	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}

	var suffix []string
	cur := abs
	for {
		if _, err := os.Lstat(cur); err == nil {
			// Nearest existing ancestor. It must resolve.
			real, err := filepath.EvalSymlinks(cur)
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrUnresolvable, err)
			}
			for i := len(suffix) - 1; i >= 0; i-- {
				real = filepath.Join(real, suffix[i])
			}
			return real, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %v", ErrUnresolvable, err)
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return "", ErrUnresolvable
		}
		suffix = append(suffix, filepath.Base(cur))
		cur = parent
	}
}

// IsContained reports whether resolved equals a root or lies beneath one.
// Roots are canonicalized at check time; a root that cannot be resolved
// contains nothing.
func (g *Guard) IsContained(resolved string) bool {
	if resolved == "" || !filepath.IsAbs(resolved) {
		return false
	}
	for _, r := range g.roots {
		root, err := Canonicalize(r)
		if err != nil {
			continue
		}
		if within(root, resolved) {
			return true
		}
	}
	return false
}

// IsExactRoot reports whether resolved is itself one of the roots. Used to
// keep destructive operations away from a whole allowed tree.
func (g *Guard) IsExactRoot(resolved string) bool {
	for _, r := range g.roots {
		root, err := Canonicalize(r)
		if err != nil {
			continue
		}
		if resolved == root {
			return true
		}
	}
	return false
}

// Authorize canonicalizes raw and checks containment, returning the path to
// operate on.
func (g *Guard) Authorize(raw string) (string, error) {
	resolved, err := Canonicalize(raw)
	switch {
	case errors.Is(err, ErrEmptyPath):
		return "", apperr.InvalidInput("path required")
	case errors.Is(err, ErrInvalidPath):
		return "", apperr.InvalidInput("invalid path")
	case err != nil:
		return "", apperr.PathNotAllowed("path not allowed")
	}
	if !g.IsContained(resolved) {
		return "", apperr.PathNotAllowed("path not allowed")
	}
	return resolved, nil
}

// within reports whether target is root or a descendant. The separator is
// part of the prefix so /home2 is never inside /home.
func within(root, target string) bool {
	if target == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(target, prefix)
}
