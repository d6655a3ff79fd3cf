package pathguard

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/audichuang/openclaw-telegram-files/internal/apperr"
)

// realTempDir returns a canonical temp dir so expectations hold on systems
// where the temp root is itself a symlink.
func realTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestWithinIsSeparatorAware(t *testing.T) {
	cases := []struct {
		root, target string
		want         bool
	}{
		{"/home", "/home", true},
		{"/home", "/home/alice", true},
		{"/home", "/home2", false},
		{"/home", "/home2/alice", false},
		{"/home", "/hom", false},
		{"/", "/etc/passwd", true},
	}
	for _, c := range cases {
		if got := within(c.root, c.target); got != c.want {
			t.Errorf("within(%q, %q) = %v, want %v", c.root, c.target, got, c.want)
		}
	}
}

func TestPrefixCollisionIsNotContained(t *testing.T) {
	base := realTempDir(t)
	home := filepath.Join(base, "home")
	home2 := filepath.Join(base, "home2")
	os.MkdirAll(home, 0o755)
	os.MkdirAll(home2, 0o755)

	g, err := New([]string{home})
	if err != nil {
		t.Fatal(err)
	}
	if g.IsContained(home2) {
		t.Fatalf("%s must not be contained in %s", home2, home)
	}
	if !g.IsContained(home) {
		t.Error("root itself should be contained")
	}
	if !g.IsContained(filepath.Join(home, "x")) {
		t.Error("child should be contained")
	}
}

func TestCanonicalizeRejectsEmptyAndNUL(t *testing.T) {
	if _, err := Canonicalize(""); !errors.Is(err, ErrEmptyPath) {
		t.Errorf("expected ErrEmptyPath, got %v", err)
	}
	if _, err := Canonicalize("/tmp/a\x00b"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("expected ErrInvalidPath, got %v", err)
	}
}

func TestCanonicalizeDotDotEscape(t *testing.T) {
	base := realTempDir(t)
	data := filepath.Join(base, "srv", "data")
	os.MkdirAll(data, 0o755)

	g, _ := New([]string{data})
	_, err := g.Authorize(data + "/../../etc")
	if apperr.Status(err) != http.StatusForbidden {
		t.Fatalf("expected 403 for traversal, got %v", err)
	}
}

func TestCanonicalizeResolvesSymlinkEscape(t *testing.T) {
	base := realTempDir(t)
	root := filepath.Join(base, "root")
	outside := filepath.Join(base, "outside")
	os.MkdirAll(root, 0o755)
	os.MkdirAll(outside, 0o755)
	os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("s"), 0o644)
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	g, _ := New([]string{root})

	resolved, err := Canonicalize(filepath.Join(root, "link", "secret.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if resolved != filepath.Join(outside, "secret.txt") {
		t.Errorf("expected symlink to resolve to %s, got %s", outside, resolved)
	}
	if _, err := g.Authorize(filepath.Join(root, "link", "secret.txt")); apperr.KindOf(err) != apperr.KindPathNotAllowed {
		t.Errorf("expected path_not_allowed, got %v", err)
	}

	// Missing target beneath a symlinked ancestor resolves through it too.
	if _, err := g.Authorize(filepath.Join(root, "link", "new", "file.txt")); apperr.KindOf(err) != apperr.KindPathNotAllowed {
		t.Errorf("expected write target through symlink to be denied, got %v", err)
	}
}

func TestCanonicalizeMissingSuffix(t *testing.T) {
	base := realTempDir(t)
	got, err := Canonicalize(filepath.Join(base, "new", "deep", "file.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(base, "new", "deep", "file.txt"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestCanonicalizeDanglingSymlinkFailsClosed(t *testing.T) {
	base := realTempDir(t)
	root := filepath.Join(base, "root")
	os.MkdirAll(root, 0o755)
	if err := os.Symlink(filepath.Join(base, "nowhere"), filepath.Join(root, "dangling")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if _, err := Canonicalize(filepath.Join(root, "dangling")); !errors.Is(err, ErrUnresolvable) {
		t.Errorf("expected dangling symlink to be unresolvable, got %v", err)
	}
	if _, err := Canonicalize(filepath.Join(root, "dangling", "child")); !errors.Is(err, ErrUnresolvable) {
		t.Errorf("expected child of dangling symlink to be unresolvable, got %v", err)
	}
}

func TestCanonicalizeRelativePath(t *testing.T) {
	wd, _ := os.Getwd()
	wd, _ = filepath.EvalSymlinks(wd)
	got, err := Canonicalize(".")
	if err != nil {
		t.Fatal(err)
	}
	if got != wd {
		t.Errorf("expected %s, got %s", wd, got)
	}
}

func TestIsExactRoot(t *testing.T) {
	base := realTempDir(t)
	data := filepath.Join(base, "data")
	os.MkdirAll(filepath.Join(data, "sub"), 0o755)

	g, _ := New([]string{data})
	if !g.IsExactRoot(data) {
		t.Error("root should be recognised")
	}
	if g.IsExactRoot(filepath.Join(data, "sub")) {
		t.Error("child is not a root")
	}
}

func TestRootThroughSymlinkIsCanonicalized(t *testing.T) {
	base := realTempDir(t)
	real := filepath.Join(base, "real")
	os.MkdirAll(filepath.Join(real, "docs"), 0o755)
	alias := filepath.Join(base, "alias")
	if err := os.Symlink(real, alias); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	g, _ := New([]string{alias})
	resolved, err := g.Authorize(filepath.Join(alias, "docs"))
	if err != nil {
		t.Fatalf("expected access through aliased root, got %v", err)
	}
	if resolved != filepath.Join(real, "docs") {
		t.Errorf("expected canonical path, got %s", resolved)
	}
	if !g.IsExactRoot(real) {
		t.Error("canonical form of an aliased root should count as the root")
	}
}

func TestNewRejectsRelativeRoot(t *testing.T) {
	if _, err := New([]string{"relative/dir"}); err == nil {
		t.Error("expected relative root to be rejected")
	}
}

func TestNewDefaultsToHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	g, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	if g.Home() != home {
		t.Errorf("expected %s, got %s", home, g.Home())
	}
}
