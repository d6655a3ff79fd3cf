// Package api provides the HTTP gateway and its handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/audichuang/openclaw-telegram-files/internal/apperr"
	"github.com/audichuang/openclaw-telegram-files/internal/audit"
	"github.com/audichuang/openclaw-telegram-files/internal/clock"
	"github.com/audichuang/openclaw-telegram-files/internal/events"
	"github.com/audichuang/openclaw-telegram-files/internal/fileops"
	"github.com/audichuang/openclaw-telegram-files/internal/logging"
	"github.com/audichuang/openclaw-telegram-files/internal/metrics"
	"github.com/audichuang/openclaw-telegram-files/internal/operator"
	"github.com/audichuang/openclaw-telegram-files/internal/pathguard"
	"github.com/audichuang/openclaw-telegram-files/internal/quota"
	"github.com/audichuang/openclaw-telegram-files/internal/search"
	"github.com/audichuang/openclaw-telegram-files/internal/session"
	"github.com/audichuang/openclaw-telegram-files/pkg/protocol"
)

const (
	// maxJSONBody bounds small JSON request bodies.
	maxJSONBody = 64 << 10
	// maxWriteBody bounds the write endpoint's body: content plus JSON
	// escaping overhead.
	maxWriteBody = 16 << 20

	auditTimeout = 2 * time.Second
)

// Pairer is the pairing contract shared with the chat command layer:
// Issue mints a single-use code for seed and Redeem consumes it.
type Pairer interface {
	Issue(seed string) (code string, expiresAt time.Time, err error)
	Redeem(code string) (seed string, err error)
	Len() int
}

// Sessions issues and validates session credentials.
type Sessions interface {
	Issue() (session.Credential, error)
	Validate(token string) bool
	Len() int
}

// Deps bundles the gateway's collaborators. Operator, Events, Audit and
// ExchangeLimiter are optional.
type Deps struct {
	Pairings Pairer
	Sessions Sessions
	Guard    *pathguard.Guard
	Files    *fileops.FS

	Operator        *operator.Authenticator
	Events          *events.Broadcaster
	Audit           audit.Recorder
	ExchangeLimiter *quota.RateLimiter

	// AllowedOrigin is the one cross-origin caller accepted, as
	// scheme://host. Empty rejects every cross-origin request.
	AllowedOrigin string
	// PairingBaseURL prefixes pairing links handed to the operator.
	PairingBaseURL string

	SearchMaxResults int
	SearchMaxDepth   int

	Clock clock.Clock
}

// Server is the HTTP gateway.
type Server struct {
	pairings Pairer
	sessions Sessions
	guard    *pathguard.Guard
	files    *fileops.FS

	operator        *operator.Authenticator
	broadcaster     *events.Broadcaster
	auditLog        audit.Recorder
	exchangeLimiter *quota.RateLimiter

	allowedOrigin  string
	pairingBaseURL string
	searchOpts     search.Options
	clock          clock.Clock
}

// NewServer creates a gateway.
func NewServer(d Deps) *Server {
	s := &Server{
		pairings:        d.Pairings,
		sessions:        d.Sessions,
		guard:           d.Guard,
		files:           d.Files,
		operator:        d.Operator,
		broadcaster:     d.Events,
		auditLog:        d.Audit,
		exchangeLimiter: d.ExchangeLimiter,
		allowedOrigin:   d.AllowedOrigin,
		pairingBaseURL:  d.PairingBaseURL,
		searchOpts: search.Options{
			MaxResults: d.SearchMaxResults,
			MaxDepth:   d.SearchMaxDepth,
		},
		clock: d.Clock,
	}
	if s.auditLog == nil {
		s.auditLog = audit.Nop{}
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.files == nil {
		s.files = fileops.New(fileops.Config{})
	}
	s.searchOpts.Allow = s.guard.IsContained
	return s
}

// Handler returns the HTTP handler with session, CORS, logging and metrics
// middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("GET /health", s.handleHealth)
	exchange := http.Handler(http.HandlerFunc(s.handleExchange))
	if s.exchangeLimiter != nil {
		exchange = quota.RateLimitMiddleware(s.exchangeLimiter)(exchange)
	}
	mux.Handle("POST /api/exchange", exchange)

	// Operator endpoints
	if s.operator != nil {
		login := http.Handler(http.HandlerFunc(s.operator.HandleLogin))
		if s.exchangeLimiter != nil {
			login = quota.RateLimitMiddleware(s.exchangeLimiter)(login)
		}
		mux.Handle("POST /api/operator/token", login)
		mux.Handle("POST /api/operator/pair", s.operator.Middleware(http.HandlerFunc(s.handleOperatorPair)))
		mux.Handle("GET /api/operator/audit", s.operator.Middleware(http.HandlerFunc(s.handleOperatorAudit)))
	}

	// Session-protected endpoints
	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/home", s.handleHome)
	protected.HandleFunc("GET /api/ls", s.handleList)
	protected.HandleFunc("GET /api/read", s.handleRead)
	protected.HandleFunc("POST /api/write", s.handleWrite)
	protected.HandleFunc("POST /api/mkdir", s.handleMkdir)
	protected.HandleFunc("DELETE /api/delete", s.handleDelete)
	protected.HandleFunc("GET /api/search", s.handleSearch)
	protected.HandleFunc("POST /api/upload", s.handleUpload)
	if s.broadcaster != nil {
		protected.HandleFunc("GET /api/events", s.handleEvents)
	}
	mux.Handle("/api/", s.requireSession(protected))

	return metrics.Middleware(logging.Middleware(s.cors(mux)))
}

// ─── Middleware ─────────────────────────────────────────────────────────────

type contextKey string

const sessionContextKey contextKey = "session"

// requireSession rejects requests without a live session credential. The
// credential's fingerprint is kept in the request context for auditing.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := operator.BearerToken(r)
		if !s.sessions.Validate(token) {
			metrics.RecordSessionReject()
			s.sendError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey, session.Fingerprint(token))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFingerprint(ctx context.Context) string {
	fp, _ := ctx.Value(sessionContextKey).(string)
	return fp
}

// cors answers requests carrying an Origin header. Same-origin requests
// pass through untouched; the configured origin gets CORS headers; any
// other origin is refused.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || sameOrigin(origin, r.Host) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Add("Vary", "Origin")
		if s.allowedOrigin == "" || origin != s.allowedOrigin {
			logging.WithContext(r.Context()).Warn("cross-origin request refused",
				zap.String("origin", origin),
				zap.String("path", r.URL.Path))
			s.sendError(w, http.StatusForbidden, "origin not allowed")
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Max-Age", "600")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sameOrigin(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host != "" && u.Host == host
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	s.sendJSON(w, code, protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// sendAppError maps err through the error taxonomy. Server-side failures
// are logged with their cause; the client sees a sanitized message.
func (s *Server) sendAppError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ae := apperr.From(err)
	status := ae.Status()
	logger := logging.WithContext(r.Context())

	switch {
	case ae.Kind == apperr.KindPathNotAllowed:
		metrics.RecordPathDenied(op)
		logger.Warn("path denied", zap.String("op", op), zap.String("session", sessionFingerprint(r.Context())))
	case status >= http.StatusInternalServerError:
		logger.Error("operation failed", zap.String("op", op), zap.Error(err))
	default:
		logger.Debug("request rejected", zap.String("op", op), zap.String("kind", ae.Kind.String()))
	}
	s.sendError(w, status, apperr.PublicMessage(err))
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperr.PayloadTooLarge("request body too large")
		}
		return apperr.InvalidInput("invalid request body")
	}
	return nil
}

// record writes an audit entry for a mutating operation. Audit failures are
// logged and never fail the request.
func (s *Server) record(r *http.Request, op, path string, opErr error) {
	e := audit.Entry{
		At:      s.clock.Now().UTC(),
		Op:      op,
		Path:    path,
		Session: sessionFingerprint(r.Context()),
		OK:      opErr == nil,
	}
	if opErr != nil {
		e.Detail = apperr.PublicMessage(opErr)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), auditTimeout)
	defer cancel()
	if err := s.auditLog.Record(ctx, e); err != nil {
		logging.WithContext(r.Context()).Warn("audit write failed", zap.String("op", op), zap.Error(err))
	}
}

// publish emits a change event when a broadcaster is configured.
func (s *Server) publish(eventType, path string, size int64) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Publish(events.Event{
		Type: eventType,
		Path: path,
		Size: size,
	})
}
