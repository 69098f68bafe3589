// Package auth issues and validates session tokens for the asset API.
// Clients exchange the shared admin secret for a short-lived opaque token;
// the secret itself never travels on asset requests.
package auth

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	apperr "github.com/galleryd/galleryd/internal/errors"
	"github.com/galleryd/galleryd/internal/uid"
)

// SessionManager holds active session tokens in memory. Tokens are random
// hex identifiers with a fixed TTL; expired entries are pruned lazily on
// validation and on each login.
type SessionManager struct {
	secret []byte
	ttl    time.Duration

	mu       sync.Mutex
	sessions map[string]time.Time

	// now is swapped out by tests.
	now func() time.Time
}

func NewSessionManager(secret string, ttl time.Duration) *SessionManager {
	return &SessionManager{
		secret:   []byte(secret),
		ttl:      ttl,
		sessions: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Login checks the shared secret and issues a new session token. The
// comparison is constant-time so the secret cannot be probed byte by byte.
func (m *SessionManager) Login(ctx context.Context, secret string) (string, time.Time, error) {
	if subtle.ConstantTimeCompare(m.secret, []byte(secret)) != 1 {
		return "", time.Time{}, apperr.Auth("invalid credentials")
	}

	token := uid.New()
	expires := m.now().Add(m.ttl)

	m.mu.Lock()
	m.pruneLocked()
	m.sessions[token] = expires
	m.mu.Unlock()

	return token, expires, nil
}

// Validate reports whether token identifies a live session.
func (m *SessionManager) Validate(ctx context.Context, token string) error {
	if token == "" {
		return apperr.Auth("missing session token")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expires, ok := m.sessions[token]
	if !ok {
		return apperr.Auth("invalid session token")
	}
	if m.now().After(expires) {
		delete(m.sessions, token)
		return apperr.Auth("session expired")
	}
	return nil
}

// Revoke removes a session, ending it before its TTL.
func (m *SessionManager) Revoke(token string) {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
}

func (m *SessionManager) pruneLocked() {
	now := m.now()
	for token, expires := range m.sessions {
		if now.After(expires) {
			delete(m.sessions, token)
		}
	}
}
