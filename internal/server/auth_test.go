package server

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestAuthenticateRejectsAndDeletesExpiredSession(t *testing.T) {
	store := NewMemStore()
	auth := NewAuth(store, zap.NewNop(), time.Hour, 0)

	acct, _, err := auth.Register(context.Background(), "mallory", "m@example.com", "hunter22")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	stale := "stale-token"
	err = store.Update(func(tx Tx) error {
		return tx.CreateSession(&Session{
			Token:     stale,
			AccountID: acct.ID,
			CreatedAt: time.Now().Add(-48 * time.Hour).Unix(),
			ExpiresAt: time.Now().Add(-24 * time.Hour).Unix(),
		})
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}

	if _, err := auth.Authenticate(context.Background(), stale); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired session, got %v", err)
	}

	// The stale row must be gone, not just rejected.
	err = store.View(func(tx Tx) error {
		_, err := tx.SessionByToken(stale)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired session should be deleted, lookup returned %v", err)
	}
}

func TestExpiredTokenGets401(t *testing.T) {
	api, store := newTestAPI(t)
	registerUser(t, api, "carol")

	stale := "stale-token"
	err := store.Update(func(tx Tx) error {
		acct, err := tx.AccountByUsername("carol")
		if err != nil {
			return err
		}
		return tx.CreateSession(&Session{
			Token:     stale,
			AccountID: acct.ID,
			CreatedAt: time.Now().Add(-2 * time.Hour).Unix(),
			ExpiresAt: time.Now().Add(-time.Hour).Unix(),
		})
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}

	rec, _ := doRequest(t, api, http.MethodGet, "/api/auth/me", stale, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d %s", rec.Code, rec.Body.String())
	}
}
