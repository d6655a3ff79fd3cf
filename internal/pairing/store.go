// Package pairing mints and redeems single-use pairing codes.
//
// A pairing code is handed to an operator out of band (a chat message, a QR
// code) and exchanged exactly once by the companion app for a session
// credential. Codes expire after a short TTL and the store is capacity
// bounded so an operator spamming the pair command cannot grow it without
// limit.
package pairing

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/audichuang/openclaw-telegram-files/internal/clock"
)

const (
	DefaultTTL        = 5 * time.Minute
	DefaultCapacity   = 100
	DefaultSweepLimit = 32

	codeBytes = 16 // 128 bits
)

// ErrInvalidCode is returned for unknown, expired and already redeemed codes
// alike.
var ErrInvalidCode = errors.New("invalid or expired pairing code")

// Config tunes a Store. Zero values fall back to the defaults.
type Config struct {
	TTL        time.Duration
	Capacity   int
	SweepLimit int
	Clock      clock.Clock
}

type entry struct {
	seed      string
	expiresAt time.Time
	seq       uint64
}

// Store holds outstanding pairing codes. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64

	ttl        time.Duration
	capacity   int
	sweepLimit int
	clock      clock.Clock
}

// New creates a pairing store.
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
		entries:    make(map[string]*entry),
		ttl:        cfg.TTL,
		capacity:   cfg.Capacity,
		sweepLimit: cfg.SweepLimit,
		clock:      cfg.Clock,
	}
}

// Issue mints a new code bound to seed. When the store is full the single
// oldest code is evicted first.
func (s *Store) Issue(seed string) (string, time.Time, error) {
	code, err := generateCode()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate pairing code: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) >= s.capacity {
		if victim := oldest(s.entries); victim != "" {
			delete(s.entries, victim)
		}
	}

	s.seq++
	expiresAt := s.clock.Now().Add(s.ttl)
	s.entries[code] = &entry{seed: seed, expiresAt: expiresAt, seq: s.seq}
	return code, expiresAt, nil
}

// Redeem atomically looks up and removes code, returning its seed. A code
// can be redeemed at most once.
func (s *Store) Redeem(code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.sweepLocked(now, s.sweepLimit)

	e, ok := s.entries[code]
	if !ok {
		return "", ErrInvalidCode
	}
	delete(s.entries, code)
	if !now.Before(e.expiresAt) {
		return "", ErrInvalidCode
	}
	return e.seed, nil
}

// Sweep removes every expired code and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.clock.Now(), 0)
}

// Len returns the number of outstanding codes, expired ones included until
// they are swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// sweepLocked inspects at most limit entries (0 means all) and drops the
// expired ones.
func (s *Store) sweepLocked(now time.Time, limit int) int {
	scanned, removed := 0, 0
	for code, e := range s.entries {
		if limit > 0 && scanned >= limit {
			break
		}
		scanned++
		if !now.Before(e.expiresAt) {
			delete(s.entries, code)
			removed++
		}
	}
	return removed
}

// oldest is the capacity eviction policy: the earliest issued code goes.
func oldest(entries map[string]*entry) string {
	var victim string
	var min uint64
	for code, e := range entries {
		if victim == "" || e.seq < min {
			victim, min = code, e.seq
		}
	}
	return victim
}

func generateCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
