package api

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/audichuang/openclaw-telegram-files/internal/apperr"
	"github.com/audichuang/openclaw-telegram-files/internal/events"
	"github.com/audichuang/openclaw-telegram-files/internal/fileops"
	"github.com/audichuang/openclaw-telegram-files/internal/logging"
	"github.com/audichuang/openclaw-telegram-files/internal/metrics"
	"github.com/audichuang/openclaw-telegram-files/internal/search"
	"github.com/audichuang/openclaw-telegram-files/pkg/protocol"
)

// ─── Home ───────────────────────────────────────────────────────────────────

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	resp := protocol.HomeResponse{
		Path:  s.guard.Home(),
		Roots: s.guard.Roots(),
	}
	if free, total, err := fileops.DiskUsage(resp.Path); err == nil {
		resp.Free, resp.Total = free, total
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// ─── Listing & reading ──────────────────────────────────────────────────────

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	target, err := s.guard.Authorize(r.URL.Query().Get("path"))
	if err != nil {
		s.sendAppError(w, r, "ls", err)
		return
	}

	items, err := s.files.List(r.Context(), target)
	metrics.RecordFileOp("ls", err == nil)
	if err != nil {
		s.sendAppError(w, r, "ls", err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.ListResponse{Path: target, Items: items})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	target, err := s.guard.Authorize(r.URL.Query().Get("path"))
	if err != nil {
		s.sendAppError(w, r, "read", err)
		return
	}

	content, size, err := s.files.Read(r.Context(), target)
	metrics.RecordFileOp("read", err == nil)
	if err != nil {
		s.sendAppError(w, r, "read", err)
		return
	}
	metrics.RecordBytesRead(size)
	s.sendJSON(w, http.StatusOK, protocol.ReadResponse{Path: target, Content: content, Size: size})
}

// ─── Mutations ──────────────────────────────────────────────────────────────

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req protocol.WriteRequest
	if err := decodeJSON(w, r, maxWriteBody, &req); err != nil {
		s.sendAppError(w, r, "write", err)
		return
	}
	if req.Path == nil || *req.Path == "" {
		s.sendAppError(w, r, "write", apperr.InvalidInput("path required"))
		return
	}
	if req.Content == nil {
		s.sendAppError(w, r, "write", apperr.InvalidInput("content required"))
		return
	}

	target, err := s.guard.Authorize(*req.Path)
	if err != nil {
		s.sendAppError(w, r, "write", err)
		return
	}

	eventType := events.EventModify
	if _, statErr := os.Lstat(target); errors.Is(statErr, fs.ErrNotExist) {
		eventType = events.EventCreate
	}

	err = s.files.Write(r.Context(), target, *req.Content)
	metrics.RecordFileOp("write", err == nil)
	s.record(r, "write", target, err)
	if err != nil {
		s.sendAppError(w, r, "write", err)
		return
	}

	size := int64(len(*req.Content))
	metrics.RecordBytesWritten(size)
	s.publish(eventType, target, size)
	s.sendJSON(w, http.StatusOK, protocol.OKResponse{OK: true, Path: target})
}

func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	var req protocol.PathRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		s.sendAppError(w, r, "mkdir", err)
		return
	}

	target, err := s.guard.Authorize(req.Path)
	if err != nil {
		s.sendAppError(w, r, "mkdir", err)
		return
	}

	err = s.files.Mkdir(r.Context(), target)
	metrics.RecordFileOp("mkdir", err == nil)
	s.record(r, "mkdir", target, err)
	if err != nil {
		s.sendAppError(w, r, "mkdir", err)
		return
	}

	s.publish(events.EventMkdir, target, 0)
	s.sendJSON(w, http.StatusOK, protocol.OKResponse{OK: true, Path: target})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	target, err := s.guard.Authorize(r.URL.Query().Get("path"))
	if err != nil {
		s.sendAppError(w, r, "delete", err)
		return
	}
	if s.guard.IsExactRoot(target) {
		err := apperr.PathNotAllowed("cannot delete an allowed root")
		s.record(r, "delete", target, err)
		s.sendAppError(w, r, "delete", err)
		return
	}

	err = s.files.Delete(r.Context(), target)
	metrics.RecordFileOp("delete", err == nil)
	s.record(r, "delete", target, err)
	if err != nil {
		s.sendAppError(w, r, "delete", err)
		return
	}

	s.publish(events.EventDelete, target, 0)
	s.sendJSON(w, http.StatusOK, protocol.OKResponse{OK: true})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("name")
	if err := fileops.ValidateFilename(name); err != nil {
		s.sendAppError(w, r, "upload", err)
		return
	}

	dir, err := s.guard.Authorize(q.Get("dir"))
	if err != nil {
		s.sendAppError(w, r, "upload", err)
		return
	}
	// The final name may be an existing symlink; it must resolve inside the
	// allow-list too.
	if _, err := s.guard.Authorize(filepath.Join(dir, name)); err != nil {
		s.sendAppError(w, r, "upload", err)
		return
	}

	limit := s.files.MaxUploadSize()
	if r.ContentLength > limit {
		s.sendAppError(w, r, "upload", apperr.PayloadTooLarge("upload too large"))
		return
	}

	start := time.Now()
	target, size, err := s.files.Upload(r.Context(), dir, name, r.Body)
	metrics.RecordFileOp("upload", err == nil)
	s.record(r, "upload", filepath.Join(dir, name), err)
	if err != nil {
		s.sendAppError(w, r, "upload", err)
		return
	}

	metrics.RecordBytesUploaded(size)
	logging.WithContext(r.Context()).Info("upload stored",
		zap.Int64("size", size),
		zap.Duration("duration", time.Since(start)),
		zap.String("session", sessionFingerprint(r.Context())))
	s.publish(events.EventUpload, target, size)
	s.sendJSON(w, http.StatusOK, protocol.UploadResponse{OK: true, Path: target, Size: size})
}

// ─── Search ─────────────────────────────────────────────────────────────────

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if err := search.ValidateQuery(query); err != nil {
		s.sendAppError(w, r, "search", err)
		return
	}

	base, err := s.guard.Authorize(q.Get("path"))
	if err != nil {
		s.sendAppError(w, r, "search", err)
		return
	}

	start := time.Now()
	results, err := search.Search(r.Context(), base, query, s.searchOpts)
	metrics.RecordSearch(time.Since(start))
	metrics.RecordFileOp("search", err == nil)
	if err != nil {
		s.sendAppError(w, r, "search", err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.SearchResponse{Path: base, Query: query, Results: results})
}
