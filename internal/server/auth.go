package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUnauthorized       = errors.New("unauthorized")
)

// Auth handles registration, login, and bearer-token sessions. Tokens are
// opaque 256-bit values stored server-side; expiry is checked on every lookup
// and stale rows are deleted in place.
type Auth struct {
	store      Store
	log        *zap.Logger
	sessionTTL time.Duration
	// balance granted to fresh accounts
	startingCoins int64
}

func NewAuth(store Store, log *zap.Logger, sessionTTL time.Duration, startingCoins int64) *Auth {
	if sessionTTL <= 0 {
		sessionTTL = 30 * 24 * time.Hour
	}
	return &Auth{
		store:         store,
		log:           log,
		sessionTTL:    sessionTTL,
		startingCoins: startingCoins,
	}
}

func (a *Auth) Register(ctx context.Context, username, email, password string) (*Account, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, "", ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	acct := &Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: string(hash),
		Coins:        a.startingCoins,
		CreatedAt:    time.Now().Unix(),
	}

	var token string
	err = a.store.Update(func(tx Tx) error {
		if _, err := tx.AccountByUsername(username); err == nil {
			return ErrUsernameTaken
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := tx.CreateAccount(acct); err != nil {
			return err
		}
		token, err = a.createSession(tx, acct.ID)
		return err
	})
	if err != nil {
		return nil, "", err
	}

	a.log.Info("account registered", zap.String("account_id", acct.ID), zap.String("username", username))
	return acct, token, nil
}

func (a *Auth) Login(ctx context.Context, username, password string) (*Account, string, error) {
	var acct *Account
	var token string
	err := a.store.Update(func(tx Tx) error {
		found, err := tx.AccountByUsername(strings.TrimSpace(username))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrInvalidCredentials
			}
			return err
		}
		if bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(password)) != nil {
			return ErrInvalidCredentials
		}
		acct = found
		token, err = a.createSession(tx, found.ID)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return acct, token, nil
}

// Authenticate resolves a bearer token to its account. Expired sessions are
// removed and rejected.
func (a *Auth) Authenticate(ctx context.Context, token string) (*Account, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	var acct *Account
	var expired bool
	err := a.store.Update(func(tx Tx) error {
		sess, err := tx.SessionByToken(token)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrUnauthorized
			}
			return err
		}
		if sess.ExpiresAt <= time.Now().Unix() {
			// Return nil so the deletion commits; reject after.
			expired = true
			return tx.DeleteSession(token)
		}
		acct, err = tx.Account(sess.AccountID)
		if errors.Is(err, ErrNotFound) {
			return ErrUnauthorized
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, ErrUnauthorized
	}
	return acct, nil
}

// EnsureAdmin creates (or promotes) the bootstrap admin account from the
// environment so a fresh deployment has a way into the admin surface.
func (a *Auth) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return a.store.Update(func(tx Tx) error {
		acct, err := tx.AccountByUsername(username)
		if err == nil {
			if acct.IsAdmin {
				return nil
			}
			acct.IsAdmin = true
			return tx.SaveAccount(acct)
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		return tx.CreateAccount(&Account{
			ID:           uuid.NewString(),
			Username:     username,
			PasswordHash: string(hash),
			IsAdmin:      true,
			CreatedAt:    time.Now().Unix(),
		})
	})
}

func (a *Auth) createSession(tx Tx, accountID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)
	now := time.Now()
	err := tx.CreateSession(&Session{
		Token:     token,
		AccountID: accountID,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(a.sessionTTL).Unix(),
	})
	if err != nil {
		return "", err
	}
	return token, nil
}
