// Package session issues and validates bearer session credentials.
//
// Credentials carry no user attribution; their only defenses are entropy and
// TTL. A credential never changes once issued and dies on expiry or capacity
// eviction.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/audichuang/openclaw-telegram-files/internal/clock"
)

const (
	DefaultTTL        = 24 * time.Hour
	DefaultCapacity   = 200
	DefaultSweepLimit = 16

	tokenBytes = 32 // 256 bits
)

// Credential is a session token and its expiry.
type Credential struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Config tunes a Store. Zero values fall back to the defaults.
type Config struct {
	TTL        time.Duration
	Capacity   int
	SweepLimit int
	Clock      clock.Clock
}

// Store holds live session credentials. It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]time.Time

	ttl        time.Duration
	capacity   int
	sweepLimit int
	clock      clock.Clock
}

// New creates a session store.
func New(cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.SweepLimit <= 0 {
		cfg.SweepLimit = DefaultSweepLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &Store{
		sessions:   make(map[string]time.Time),
		ttl:        cfg.TTL,
		capacity:   cfg.Capacity,
		sweepLimit: cfg.SweepLimit,
		clock:      cfg.Clock,
	}
}

// Issue creates a new credential. At capacity the credential closest to
// expiry is evicted first.
func (s *Store) Issue() (Credential, error) {
	token, err := generateToken()
	if err != nil {
		return Credential{}, fmt.Errorf("generate session token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sessions) >= s.capacity {
		if victim := earliestExpiry(s.sessions); victim != "" {
			delete(s.sessions, victim)
		}
	}

	expiresAt := s.clock.Now().Add(s.ttl)
	s.sessions[token] = expiresAt
	return Credential{Token: token, ExpiresAt: expiresAt}, nil
}

// Validate reports whether token is a live credential. An expired token is
// removed on sight, and a bounded number of other expired entries are
// purged on every call.
func (s *Store) Validate(token string) bool {
	if token == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	valid := false
	if expiresAt, ok := s.sessions[token]; ok {
		if now.Before(expiresAt) {
			valid = true
		} else {
			delete(s.sessions, token)
		}
	}
	s.sweepLocked(now, s.sweepLimit)
	return valid
}

// Sweep removes every expired credential and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.clock.Now(), 0)
}

// Len returns the number of stored credentials.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) sweepLocked(now time.Time, limit int) int {
	scanned, removed := 0, 0
	for token, expiresAt := range s.sessions {
		if limit > 0 && scanned >= limit {
			break
		}
		scanned++
		if !now.Before(expiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// earliestExpiry is the capacity eviction policy: a full scan for the
// smallest expiry, not insertion order.
func earliestExpiry(sessions map[string]time.Time) string {
	var victim string
	var min time.Time
	for token, expiresAt := range sessions {
		if victim == "" || expiresAt.Before(min) {
			victim, min = token, expiresAt
		}
	}
	return victim
}

// Fingerprint returns a short, non-reversible identifier for token, the only
// form in which a credential may appear in logs.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:4])
}

func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
