// Package csrf manages per-session cross-site request forgery tokens.
//
// Each session holds at most one active token: issuing a new token
// invalidates the previous one. Tokens are opaque random strings compared
// by exact equality; they live in memory for the session's duration and
// are never persisted.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// tokenBytes is the entropy of an issued token (128 bits encodes to a
	// 22-character base64url string).
	tokenBytes = 16

	// DefaultSessionTTL is how long an issued token remains valid without
	// being re-issued.
	DefaultSessionTTL = 12 * time.Hour

	// DefaultCleanupInterval is how often expired sessions are dropped.
	DefaultCleanupInterval = 15 * time.Minute
)

// sessionToken is the single active token for one session.
type sessionToken struct {
	token     string
	expiresAt time.Time
}

// Store holds the active CSRF token for each client session.
type Store struct {
	mu              sync.RWMutex
	sessions        map[string]sessionToken
	ttl             time.Duration
	logger          *slog.Logger
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	now             func() time.Time
}

// NewStore creates a token store with default TTL and cleanup interval.
func NewStore(logger *slog.Logger) *Store {
	return NewStoreWithConfig(DefaultSessionTTL, DefaultCleanupInterval, logger)
}

// NewStoreWithConfig creates a token store with custom session TTL and
// cleanup interval.
func NewStoreWithConfig(ttl, cleanupInterval time.Duration, logger *slog.Logger) *Store {
	return newStore(ttl, cleanupInterval, logger, time.Now)
}

// newStore is the shared constructor. The clock is fixed before the
// cleanup goroutine starts so it is never swapped while the loop is
// reading it.
func newStore(ttl, cleanupInterval time.Duration, logger *slog.Logger, now func() time.Time) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
		logger.Warn("Invalid session TTL, using default", "ttl", ttl)
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
		logger.Warn("Invalid cleanupInterval, using default", "cleanupInterval", cleanupInterval)
	}

	s := &Store{
		sessions:        make(map[string]sessionToken),
		ttl:             ttl,
		logger:          logger,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		now:             now,
	}

	go s.cleanupLoop()

	return s
}

// GenerateToken generates a cryptographically secure random token.
// Panics if the system RNG fails, which indicates a critical system-level
// security failure.
func GenerateToken() string {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand.Read failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// Issue generates a new token for the session, replacing any previous one.
// There is exactly one valid token per session at a time.
func (s *Store) Issue(sessionID string) string {
	token := GenerateToken()

	s.mu.Lock()
	s.sessions[sessionID] = sessionToken{
		token:     token,
		expiresAt: s.now().Add(s.ttl),
	}
	s.mu.Unlock()

	return token
}

// Current returns the session's active token, if one exists and has not
// expired.
func (s *Store) Current(sessionID string) (string, bool) {
	s.mu.RLock()
	st, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok || s.now().After(st.expiresAt) {
		return "", false
	}
	return st.token, true
}

// Validate reports whether candidate exactly equals the session's active
// token. False when no token has been issued, the session expired, or the
// candidate differs in any way. Comparison is constant-time to avoid
// leaking token prefixes through timing.
func (s *Store) Validate(sessionID, candidate string) bool {
	current, ok := s.Current(sessionID)
	if !ok || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(current), []byte(candidate)) == 1
}

// End removes the session's token. Called when the client session ends.
func (s *Store) End(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// Len returns the number of sessions currently holding a token.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// cleanupLoop periodically drops expired sessions.
func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// Cleanup removes sessions whose token has expired. Exposed so tests can
// trigger cleanup deterministically.
func (s *Store) Cleanup() {
	now := s.now()
	removed := 0

	s.mu.Lock()
	for id, st := range s.sessions {
		if now.After(st.expiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Debug("CSRF session cleanup completed", "removed", removed)
	}
}

// Stop terminates the cleanup goroutine. Safe to call multiple times
// concurrently.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}
