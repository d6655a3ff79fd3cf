package api

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/audichuang/openclaw-telegram-files/internal/logging"
	"github.com/audichuang/openclaw-telegram-files/internal/metrics"
	"github.com/audichuang/openclaw-telegram-files/internal/operator"
	"github.com/audichuang/openclaw-telegram-files/internal/session"
	"github.com/audichuang/openclaw-telegram-files/pkg/protocol"
)

// maxSeedLength bounds the opaque seed an operator attaches to a code.
const maxSeedLength = 256

// ─── Pairing exchange ───────────────────────────────────────────────────────

// handleExchange trades a pairing code for a session credential. Every
// failure answers with the same 401 so callers cannot tell an unknown code
// from an expired or spent one.
func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithContext(r.Context())

	var req protocol.ExchangeRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil || req.PairCode == "" {
		metrics.RecordExchange(false)
		s.sendError(w, http.StatusUnauthorized, "invalid or expired pairing code")
		return
	}

	seed, err := s.pairings.Redeem(req.PairCode)
	metrics.SetPendingPairings(s.pairings.Len())
	if err != nil {
		metrics.RecordExchange(false)
		logger.Info("pairing exchange rejected")
		s.sendError(w, http.StatusUnauthorized, "invalid or expired pairing code")
		return
	}

	cred, err := s.sessions.Issue()
	if err != nil {
		metrics.RecordExchange(false)
		logger.Error("failed to issue session", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to issue session")
		return
	}

	metrics.RecordExchange(true)
	metrics.SetActiveSessions(s.sessions.Len())
	logger.Info("session issued",
		zap.String("seed", seed),
		zap.String("session", session.Fingerprint(cred.Token)),
		zap.Time("expires_at", cred.ExpiresAt))

	s.sendJSON(w, http.StatusOK, protocol.ExchangeResponse{
		Token:     cred.Token,
		ExpiresAt: cred.ExpiresAt,
	})
}

// ─── Operator ───────────────────────────────────────────────────────────────

func (s *Server) handleOperatorPair(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithContext(r.Context())

	var req protocol.PairRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
			s.sendAppError(w, r, "pair", err)
			return
		}
	}
	if len(req.Seed) > maxSeedLength {
		s.sendError(w, http.StatusBadRequest, "seed too long")
		return
	}
	seed := req.Seed
	if seed == "" {
		if claims := operator.GetClaims(r.Context()); claims != nil {
			seed = claims.Subject
		}
	}

	code, expiresAt, err := s.pairings.Issue(seed)
	if err != nil {
		logger.Error("failed to issue pairing code", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to issue pairing code")
		return
	}
	metrics.RecordPairingIssued()
	metrics.SetPendingPairings(s.pairings.Len())

	resp := protocol.PairResponse{
		Code:      code,
		ExpiresAt: expiresAt,
		Link:      operator.PairingLink(s.pairingBaseURL, code),
	}
	if resp.Link != "" {
		qr, err := operator.QRDataURL(resp.Link)
		if err != nil {
			logger.Warn("failed to render pairing QR code", zap.Error(err))
		} else {
			resp.QRCode = qr
		}
	}

	logger.Info("pairing code issued", zap.String("seed", seed), zap.Time("expires_at", expiresAt))
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOperatorAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.sendError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := s.auditLog.Recent(r.Context(), limit)
	if err != nil {
		logging.WithContext(r.Context()).Error("audit query failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	s.sendJSON(w, http.StatusOK, entries)
}
