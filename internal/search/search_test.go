package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/audichuang/openclaw-telegram-files/internal/apperr"
)

func mkfile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSearchCaseInsensitive(t *testing.T) {
	base := t.TempDir()
	mkfile(t, filepath.Join(base, "Report.PDF"))
	mkfile(t, filepath.Join(base, "docs", "annual-report.txt"))
	mkfile(t, filepath.Join(base, "notes.txt"))

	results, err := Search(context.Background(), base, "REPORT", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %+v", results)
	}
	for _, r := range results {
		if !strings.Contains(strings.ToLower(r.Name), "report") {
			t.Errorf("unexpected match %s", r.Name)
		}
		if r.IsDir {
			t.Errorf("%s should not be a dir", r.Name)
		}
	}
}

func TestSearchMatchesDirectories(t *testing.T) {
	base := t.TempDir()
	os.MkdirAll(filepath.Join(base, "photos", "2024"), 0o755)

	results, err := Search(context.Background(), base, "photo", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || !results[0].IsDir || results[0].Path != filepath.Join(base, "photos") {
		t.Errorf("unexpected results %+v", results)
	}
}

func TestSearchSkipsHidden(t *testing.T) {
	base := t.TempDir()
	mkfile(t, filepath.Join(base, ".secret-match"))
	mkfile(t, filepath.Join(base, ".git", "match-inside"))
	mkfile(t, filepath.Join(base, "visible-match"))

	results, err := Search(context.Background(), base, "match", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Name != "visible-match" {
		t.Errorf("hidden entries and their subtrees should be skipped, got %+v", results)
	}
}

func TestSearchMaxResults(t *testing.T) {
	base := t.TempDir()
	for i := 0; i < 80; i++ {
		mkfile(t, filepath.Join(base, fmt.Sprintf("file-%02d.txt", i)))
	}

	results, err := Search(context.Background(), base, "file", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != DefaultMaxResults {
		t.Errorf("expected %d results, got %d", DefaultMaxResults, len(results))
	}

	results, _ = Search(context.Background(), base, "file", Options{MaxResults: 3})
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
}

func TestSearchMaxDepth(t *testing.T) {
	base := t.TempDir()
	// hit-1 sits one level below base, hit-6 six levels below.
	p := base
	for i := 1; i <= 6; i++ {
		mkfile(t, filepath.Join(p, fmt.Sprintf("hit-%d", i)))
		p = filepath.Join(p, fmt.Sprintf("d%d", i))
	}

	results, err := Search(context.Background(), base, "hit", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != DefaultMaxDepth {
		t.Errorf("expected matches on %d levels, got %+v", DefaultMaxDepth, results)
	}
	for _, r := range results {
		if r.Name == "hit-6" {
			t.Error("search descended past the depth limit")
		}
	}

	results, _ = Search(context.Background(), base, "hit", Options{MaxDepth: 1})
	if len(results) != 1 || results[0].Name != "hit-1" {
		t.Errorf("depth 1 should only see direct children, got %+v", results)
	}
}

func TestSearchTerminatesOnSymlinkCycle(t *testing.T) {
	base := t.TempDir()
	mkfile(t, filepath.Join(base, "a", "target.txt"))
	if err := os.Symlink(base, filepath.Join(base, "a", "loop")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Symlink(".", filepath.Join(base, "a", "self")); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	var results int
	go func() {
		defer close(done)
		r, err := Search(context.Background(), base, "target", Options{MaxDepth: 50, MaxResults: 1000})
		if err != nil {
			t.Error(err)
		}
		results = len(r)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("search did not terminate on a symlink cycle")
	}
	if results != 1 {
		t.Errorf("each real directory should be visited once, got %d matches", results)
	}
}

func TestSearchAllowFiltersEscapes(t *testing.T) {
	base := t.TempDir()
	outside := t.TempDir()
	mkfile(t, filepath.Join(outside, "leak.txt"))
	mkfile(t, filepath.Join(base, "leak-local.txt"))
	if err := os.Symlink(outside, filepath.Join(base, "out")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	realBase, _ := filepath.EvalSymlinks(base)

	allow := func(p string) bool {
		return p == realBase || strings.HasPrefix(p, realBase+string(filepath.Separator))
	}
	results, err := Search(context.Background(), base, "leak", Options{Allow: allow})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Name != "leak-local.txt" {
		t.Errorf("results beyond the allow callback must be dropped, got %+v", results)
	}
}

func TestSearchSkipsUnreadableSubtree(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	base := t.TempDir()
	locked := filepath.Join(base, "locked")
	mkfile(t, filepath.Join(locked, "match-hidden-by-perms"))
	mkfile(t, filepath.Join(base, "match-ok"))
	os.Chmod(locked, 0o000)
	defer os.Chmod(locked, 0o755)

	results, err := Search(context.Background(), base, "match", Options{})
	if err != nil {
		t.Fatalf("unreadable subtree should be skipped, got %v", err)
	}
	if len(results) != 1 || results[0].Name != "match-ok" {
		t.Errorf("unexpected results %+v", results)
	}
}

func TestSearchCancelled(t *testing.T) {
	base := t.TempDir()
	mkfile(t, filepath.Join(base, "x"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Search(ctx, base, "x", Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSearchQueryValidation(t *testing.T) {
	base := t.TempDir()
	for _, q := range []string{"", strings.Repeat("q", MaxQueryLength+1)} {
		if _, err := Search(context.Background(), base, q, Options{}); apperr.KindOf(err) != apperr.KindInvalidInput {
			t.Errorf("query of length %d: expected invalid_input, got %v", len(q), err)
		}
	}
	if err := ValidateQuery(strings.Repeat("q", MaxQueryLength)); err != nil {
		t.Errorf("query at the limit should be accepted: %v", err)
	}
}

func TestSearchBaseNotDirectory(t *testing.T) {
	base := t.TempDir()
	file := filepath.Join(base, "f")
	mkfile(t, file)
	if _, err := Search(context.Background(), file, "f", Options{}); apperr.KindOf(err) != apperr.KindWrongType {
		t.Errorf("expected wrong_type, got %v", err)
	}
}
