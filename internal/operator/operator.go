// Package operator authenticates the host's command layer, which is the only
// party allowed to mint pairing codes over HTTP.
package operator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/audichuang/openclaw-telegram-files/internal/clock"
	"github.com/audichuang/openclaw-telegram-files/internal/logging"
	"github.com/audichuang/openclaw-telegram-files/internal/metrics"
	"github.com/audichuang/openclaw-telegram-files/pkg/protocol"
)

type contextKey string

const claimsContextKey contextKey = "operator"

const (
	Issuer          = "tgfiles"
	DefaultTokenTTL = time.Hour

	// MinSecretLength is the shortest HS256 secret accepted.
	MinSecretLength = 16
)

// Claims holds operator JWT claims.
type Claims struct {
	jwt.RegisteredClaims
}

// Config configures an Authenticator.
type Config struct {
	Secret       string
	PasswordHash string // bcrypt; empty disables password login
	TokenTTL     time.Duration
	Clock        clock.Clock
}

// Authenticator issues and checks operator tokens.
type Authenticator struct {
	secret       []byte
	passwordHash []byte
	ttl          time.Duration
	clock        clock.Clock
}

// New creates an Authenticator.
func New(cfg Config) (*Authenticator, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("operator secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.PasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
			return nil, fmt.Errorf("operator password hash: %w", err)
		}
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	a := &Authenticator{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TokenTTL,
		clock:  cfg.Clock,
	}
	if cfg.PasswordHash != "" {
		a.passwordHash = []byte(cfg.PasswordHash)
	}
	return a, nil
}

// LoginEnabled reports whether a password hash is configured.
func (a *Authenticator) LoginEnabled() bool {
	return len(a.passwordHash) > 0
}

// IssueToken signs an operator token for subject.
func (a *Authenticator) IssueToken(subject string) (string, time.Time, error) {
	now := a.clock.Now()
	expiresAt := now.Add(a.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenStr, expiresAt, nil
}

// ValidateToken parses and verifies an operator token.
func (a *Authenticator) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.clock.Now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Middleware rejects requests without a valid operator token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := BearerToken(r)
		if tokenStr == "" {
			metrics.RecordOperatorAuth(false)
			sendAuthError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := a.ValidateToken(tokenStr)
		if err != nil {
			metrics.RecordOperatorAuth(false)
			logging.WithContext(r.Context()).Warn("operator token rejected", zap.Error(err))
			sendAuthError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		metrics.RecordOperatorAuth(true)
		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims extracts operator claims from the request context.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}

// HandleLogin handles POST /api/operator/token.
func (a *Authenticator) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.LoginEnabled() {
		sendAuthError(w, http.StatusNotFound, "operator login disabled")
		return
	}

	var req protocol.OperatorLoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		metrics.RecordOperatorAuth(false)
		sendAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Password == "" {
		metrics.RecordOperatorAuth(false)
		sendAuthError(w, http.StatusBadRequest, "password required")
		return
	}

	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(req.Password)); err != nil {
		metrics.RecordOperatorAuth(false)
		logging.WithContext(r.Context()).Warn("operator login failed")
		sendAuthError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	tokenStr, expiresAt, err := a.IssueToken("operator")
	if err != nil {
		logging.WithContext(r.Context()).Error("failed to sign operator token", zap.Error(err))
		sendAuthError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	metrics.RecordOperatorAuth(true)
	logging.WithContext(r.Context()).Info("operator login successful")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol.OperatorTokenResponse{
		Token:     tokenStr,
		ExpiresAt: expiresAt,
	})
}

// HashPassword returns a bcrypt hash suitable for the operator password
// setting.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password required")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// BearerToken returns the credential from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func sendAuthError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
