package fileops

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/audichuang/openclaw-telegram-files/internal/apperr"
)

// MaxFilenameBytes is the longest name accepted for an upload.
const MaxFilenameBytes = 255

// ValidateFilename checks that name is a single path component.
func ValidateFilename(name string) error {
	switch {
	case name == "":
		return apperr.InvalidInput("name required")
	case name == "." || name == "..":
		return apperr.InvalidInput("invalid file name")
	case strings.ContainsAny(name, "/\\"):
		return apperr.InvalidInput("invalid file name")
	case strings.IndexByte(name, 0) >= 0:
		return apperr.InvalidInput("invalid file name")
	case len(name) > MaxFilenameBytes:
		return apperr.InvalidInput("file name too long")
	}
	return nil
}

// Upload streams body into dir/name, replacing any existing file. Bytes are
// counted as they arrive and the transfer is abandoned once the upload
// ceiling is passed; partial data is removed. Returns the final path and the
// number of bytes stored.
func (f *FS) Upload(ctx context.Context, dir, name string, body io.Reader) (string, int64, error) {
	if err := ValidateFilename(name); err != nil {
		return "", 0, err
	}
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, classify("create directory", err)
	}

	target := filepath.Join(dir, name)
	if info, err := os.Lstat(target); err == nil && info.IsDir() {
		return "", 0, apperr.WrongType("is a directory")
	}

	n, err := replaceFile(ctx, target, body, f.maxUpload, 0o644)
	if err != nil {
		return "", 0, err
	}
	return target, n, nil
}
