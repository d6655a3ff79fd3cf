// Package fileops performs filesystem operations on paths that have already
// been authorized. It does no access control of its own.
package fileops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/audichuang/openclaw-telegram-files/internal/apperr"
	"github.com/audichuang/openclaw-telegram-files/pkg/protocol"
)

const (
	DefaultMaxReadSize   = 2 << 20  // 2 MB
	DefaultMaxUploadSize = 50 << 20 // 50 MB

	// binaryProbeSize is how much of a file is inspected for NUL bytes.
	binaryProbeSize = 512
)

// Config holds size ceilings. Zero values fall back to the defaults.
type Config struct {
	MaxReadSize   int64
	MaxUploadSize int64
}

// FS executes file operations.
type FS struct {
	maxRead   int64
	maxUpload int64
}

// New creates an FS.
func New(cfg Config) *FS {
	if cfg.MaxReadSize <= 0 {
		cfg.MaxReadSize = DefaultMaxReadSize
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = DefaultMaxUploadSize
	}
	return &FS{maxRead: cfg.MaxReadSize, maxUpload: cfg.MaxUploadSize}
}

// MaxUploadSize returns the upload ceiling in bytes.
func (f *FS) MaxUploadSize() int64 { return f.maxUpload }

// List returns the children of dir, directories first and then by name.
// Metadata is best effort: a child whose stat fails (a broken symlink, a
// permission error) is still listed with zero size and mtime.
func (f *FS) List(ctx context.Context, dir string) ([]protocol.FileEntry, error) {
	if err := checkDir(dir); err != nil {
		return nil, err
	}

	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, classify("list directory", err)
	}

	items := make([]protocol.FileEntry, 0, len(dirents))
	for _, de := range dirents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items = append(items, entryFor(dir, de))
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].IsDir != items[j].IsDir {
			return items[i].IsDir
		}
		li, lj := strings.ToLower(items[i].Name), strings.ToLower(items[j].Name)
		if li != lj {
			return li < lj
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

func entryFor(dir string, de fs.DirEntry) protocol.FileEntry {
	e := protocol.FileEntry{
		Name:      de.Name(),
		IsSymlink: de.Type()&fs.ModeSymlink != 0,
	}
	info, err := os.Stat(filepath.Join(dir, de.Name()))
	if err != nil {
		if !e.IsSymlink {
			e.IsDir = de.IsDir()
			e.IsFile = de.Type().IsRegular()
		}
		return e
	}
	e.IsDir = info.IsDir()
	e.IsFile = info.Mode().IsRegular()
	e.Size = info.Size()
	e.MtimeMs = info.ModTime().UnixMilli()
	return e
}

// Read returns the text content of a regular file no larger than the read
// ceiling. Files with a NUL byte near the start are treated as binary and
// refused.
func (f *FS) Read(ctx context.Context, file string) (string, int64, error) {
	info, err := os.Stat(file)
	if err != nil {
		return "", 0, classify("read file", err)
	}
	if !info.Mode().IsRegular() {
		return "", 0, apperr.WrongType("not a file")
	}
	if info.Size() > f.maxRead {
		return "", 0, f.tooLargeToRead()
	}

	fh, err := os.Open(file)
	if err != nil {
		return "", 0, classify("read file", err)
	}
	defer fh.Close()

	// The file may grow between stat and read.
	data, err := io.ReadAll(io.LimitReader(&ctxReader{ctx: ctx, r: fh}, f.maxRead+1))
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		return "", 0, apperr.Storage("read file", err)
	}
	if int64(len(data)) > f.maxRead {
		return "", 0, f.tooLargeToRead()
	}
	if bytes.IndexByte(data[:min(len(data), binaryProbeSize)], 0) >= 0 {
		return "", 0, apperr.WrongType("binary file")
	}
	return string(data), int64(len(data)), nil
}

func (f *FS) tooLargeToRead() error {
	return apperr.TooLarge(fmt.Sprintf("file too large (max %s)", humanize.IBytes(uint64(f.maxRead))))
}

// Write replaces file's content, creating missing parent directories.
// The new content is written to a temp file and renamed into place, so a
// reader never observes a partial write. Concurrent writers: last one wins.
func (f *FS) Write(ctx context.Context, file, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if info, err := os.Stat(file); err == nil && info.IsDir() {
		return apperr.WrongType("is a directory")
	}

	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return classify("create parent directories", err)
	}

	mode := fs.FileMode(0o644)
	if info, err := os.Stat(file); err == nil {
		mode = info.Mode().Perm()
	}

	_, err := replaceFile(ctx, file, strings.NewReader(content), -1, mode)
	return err
}

// Mkdir creates dir and any missing parents. An existing directory is not
// an error.
func (f *FS) Mkdir(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return classify("create directory", err)
	}
	return nil
}

// Delete removes target recursively. The caller is responsible for keeping
// allow-list roots out of reach.
func (f *FS) Delete(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Lstat(target); err != nil {
		return classify("delete", err)
	}
	if err := os.RemoveAll(target); err != nil {
		return classify("delete", err)
	}
	return nil
}

// checkDir verifies that dir exists and is a directory.
func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return classify("list directory", err)
	}
	if !info.IsDir() {
		return apperr.WrongType("not a directory")
	}
	return nil
}

// replaceFile streams body into a temp file next to path and renames it into
// place. With limit >= 0 the copy is aborted as soon as more than limit bytes
// arrive. The temp file never survives a failure.
func replaceFile(ctx context.Context, path string, body io.Reader, limit int64, mode fs.FileMode) (int64, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tgfiles-*.tmp")
	if err != nil {
		return 0, classify("create temp file", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) (int64, error) {
		tmp.Close()
		os.Remove(tmpName)
		return 0, err
	}

	src := io.Reader(&ctxReader{ctx: ctx, r: body})
	if limit >= 0 {
		src = io.LimitReader(src, limit+1)
	}
	n, err := io.Copy(tmp, src)
	if err != nil {
		if ctx.Err() != nil {
			return fail(ctx.Err())
		}
		return fail(apperr.Storage("write file", err))
	}
	if limit >= 0 && n > limit {
		return fail(apperr.PayloadTooLarge(fmt.Sprintf("upload too large (max %s)", humanize.IBytes(uint64(limit)))))
	}
	if err := tmp.Chmod(mode); err != nil {
		return fail(apperr.Storage("write file", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, apperr.Storage("write file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return 0, classify("write file", err)
	}
	return n, nil
}

// classify maps an os error to the gateway's taxonomy.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return apperr.NotFound("not found")
	case isNotDir(err):
		return apperr.WrongType("not a directory")
	default:
		return apperr.Storage(op, err)
	}
}

// ctxReader fails reads once ctx is done, so a dropped connection stops a
// copy at the next chunk.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
