package auth

import (
	"context"
	"testing"
	"time"

	apperr "github.com/galleryd/galleryd/internal/errors"
)

const testSecret = "correct-horse"

func TestLoginIssuesToken(t *testing.T) {
	m := NewSessionManager(testSecret, time.Hour)
	ctx := context.Background()

	token, expires, err := m.Login(ctx, testSecret)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" {
		t.Error("token is empty")
	}
	if !expires.After(time.Now()) {
		t.Errorf("expires = %v, want in the future", expires)
	}

	if err := m.Validate(ctx, token); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoginWrongSecret(t *testing.T) {
	m := NewSessionManager(testSecret, time.Hour)

	_, _, err := m.Login(context.Background(), "wrong")
	if got := apperr.KindOf(err); got != apperr.KindAuth {
		t.Errorf("error kind = %v, want %v", got, apperr.KindAuth)
	}
}

func TestValidateRejectsUnknownToken(t *testing.T) {
	m := NewSessionManager(testSecret, time.Hour)
	ctx := context.Background()

	if got := apperr.KindOf(m.Validate(ctx, "")); got != apperr.KindAuth {
		t.Errorf("empty token kind = %v, want %v", got, apperr.KindAuth)
	}
	if got := apperr.KindOf(m.Validate(ctx, "not-a-token")); got != apperr.KindAuth {
		t.Errorf("unknown token kind = %v, want %v", got, apperr.KindAuth)
	}
}

func TestValidateExpiry(t *testing.T) {
	m := NewSessionManager(testSecret, time.Hour)
	ctx := context.Background()

	base := time.Now()
	m.now = func() time.Time { return base }

	token, _, err := m.Login(ctx, testSecret)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := m.Validate(ctx, token); err != nil {
		t.Fatalf("Validate before expiry: %v", err)
	}

	m.now = func() time.Time { return base.Add(time.Hour + time.Second) }
	if got := apperr.KindOf(m.Validate(ctx, token)); got != apperr.KindAuth {
		t.Errorf("expired token kind = %v, want %v", got, apperr.KindAuth)
	}

	// Expired sessions are dropped, not just rejected.
	m.mu.Lock()
	_, ok := m.sessions[token]
	m.mu.Unlock()
	if ok {
		t.Error("expired session still stored")
	}
}

func TestLoginPrunesExpired(t *testing.T) {
	m := NewSessionManager(testSecret, time.Hour)
	ctx := context.Background()

	base := time.Now()
	m.now = func() time.Time { return base }
	stale, _, err := m.Login(ctx, testSecret)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	m.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, _, err := m.Login(ctx, testSecret); err != nil {
		t.Fatalf("Login: %v", err)
	}

	m.mu.Lock()
	_, ok := m.sessions[stale]
	n := len(m.sessions)
	m.mu.Unlock()
	if ok {
		t.Error("stale session survived login prune")
	}
	if n != 1 {
		t.Errorf("session count = %d, want 1", n)
	}
}

func TestRevoke(t *testing.T) {
	m := NewSessionManager(testSecret, time.Hour)
	ctx := context.Background()

	token, _, err := m.Login(ctx, testSecret)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	m.Revoke(token)
	if got := apperr.KindOf(m.Validate(ctx, token)); got != apperr.KindAuth {
		t.Errorf("revoked token kind = %v, want %v", got, apperr.KindAuth)
	}
}
