package server

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ladybug/internal/events"
)

// Engine operation outcomes. Handlers map these to user-facing responses, so
// each condition gets its own sentinel rather than a generic failure.
var (
	ErrAlreadyAssigned     = errors.New("account already has an active server")
	ErrInsufficientBalance = errors.New("insufficient coin balance")
	ErrPoolExhausted       = errors.New("no servers available")
	ErrNoActiveServer      = errors.New("no active server to release")
)

// Engine owns every transition between available and active. All writes that
// touch a server and an account together happen inside a single store
// transaction so concurrent callers never see a half-applied grant.
type Engine struct {
	store  Store
	log    *zap.Logger
	events *events.Publisher // nil when NATS is not configured
	now    func() time.Time
}

func NewEngine(store Store, log *zap.Logger, pub *events.Publisher) *Engine {
	return &Engine{
		store:  store,
		log:    log,
		events: pub,
		now:    time.Now,
	}
}

// Grant assigns the first available server to the account. Precondition
// checks run in a fixed order: existing assignment, then balance, then pool.
func (e *Engine) Grant(ctx context.Context, accountID string) (*Server, error) {
	var granted *Server
	err := e.store.Update(func(tx Tx) error {
		acct, err := tx.Account(accountID)
		if err != nil {
			return err
		}
		if acct.HasActiveServer {
			return ErrAlreadyAssigned
		}
		if acct.Coins <= 0 {
			return ErrInsufficientBalance
		}

		srv, err := tx.FirstAvailableServer()
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrPoolExhausted
			}
			return err
		}

		srv.Status = StatusActive
		srv.OwnerID = acct.ID
		srv.AssignedAt = e.now().Unix()
		if err := tx.SaveServer(srv); err != nil {
			return err
		}

		acct.HasActiveServer = true
		if err := tx.SaveAccount(acct); err != nil {
			return err
		}

		granted = srv
		return nil
	})
	if err != nil {
		return nil, err
	}

	grantsTotal.Inc()
	e.log.Info("server granted",
		zap.String("server_id", granted.ID),
		zap.String("account_id", accountID))
	e.publish(ctx, "granted", granted.ID, accountID)
	return granted, nil
}

// Release returns the caller's active server to the pool.
func (e *Engine) Release(ctx context.Context, accountID string) error {
	var released string
	err := e.store.Update(func(tx Tx) error {
		srv, err := tx.ServerByOwner(accountID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrNoActiveServer
			}
			return err
		}
		if err := e.releaseLocked(tx, srv); err != nil {
			return err
		}
		released = srv.ID
		return nil
	})
	if err != nil {
		return err
	}

	releasesTotal.Inc()
	e.log.Info("server released",
		zap.String("server_id", released),
		zap.String("account_id", accountID))
	e.publish(ctx, "released", released, accountID)
	return nil
}

// ForceRelease frees a server by id regardless of owner consent. Releasing a
// server that is already available is a successful no-op, so admins can retry
// safely.
func (e *Engine) ForceRelease(ctx context.Context, serverID string) error {
	var owner string
	var changed bool
	err := e.store.Update(func(tx Tx) error {
		srv, err := tx.Server(serverID)
		if err != nil {
			return err
		}
		if srv.Status != StatusActive {
			return nil
		}
		owner = srv.OwnerID
		changed = true
		return e.releaseLocked(tx, srv)
	})
	if err != nil {
		return err
	}

	if changed {
		releasesTotal.Inc()
		e.log.Info("server force-released",
			zap.String("server_id", serverID),
			zap.String("account_id", owner))
		e.publish(ctx, "released", serverID, owner)
	}
	return nil
}

// releaseLocked clears ownership inside an already-open transaction. The
// owner's flag is cleared in the same transaction; a vanished owner record is
// tolerated so an orphaned server can still be freed.
func (e *Engine) releaseLocked(tx Tx, srv *Server) error {
	ownerID := srv.OwnerID
	srv.Status = StatusAvailable
	srv.OwnerID = ""
	srv.AssignedAt = 0
	if err := tx.SaveServer(srv); err != nil {
		return err
	}

	if ownerID == "" {
		return nil
	}
	acct, err := tx.Account(ownerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	acct.HasActiveServer = false
	return tx.SaveAccount(acct)
}

// RemoveServer deletes a server from the pool, releasing it first if active.
func (e *Engine) RemoveServer(ctx context.Context, serverID string) error {
	var owner string
	err := e.store.Update(func(tx Tx) error {
		srv, err := tx.Server(serverID)
		if err != nil {
			return err
		}
		if srv.Status == StatusActive {
			owner = srv.OwnerID
			if err := e.releaseLocked(tx, srv); err != nil {
				return err
			}
		}
		return tx.DeleteServer(serverID)
	})
	if err != nil {
		return err
	}

	e.log.Info("server removed",
		zap.String("server_id", serverID),
		zap.String("account_id", owner))
	e.publish(ctx, "removed", serverID, owner)
	return nil
}

// AddServer provisions a new pool entry in the available state.
func (e *Engine) AddServer(ctx context.Context, name, hostURL, hostUser, hostPass string) (*Server, error) {
	srv := &Server{
		ID:           uuid.NewString(),
		Name:         name,
		HostURL:      hostURL,
		HostUsername: hostUser,
		HostPassword: hostPass,
		Status:       StatusAvailable,
		CreatedAt:    e.now().Unix(),
	}
	err := e.store.Update(func(tx Tx) error {
		return tx.CreateServer(srv)
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("server added", zap.String("server_id", srv.ID), zap.String("name", name))
	return srv, nil
}

// AdjustBalance adds delta (positive or negative) to the account's coins.
// No floor is enforced here; the billing pass is what reacts to insolvency.
func (e *Engine) AdjustBalance(ctx context.Context, accountID string, delta int64) (int64, error) {
	var balance int64
	err := e.store.Update(func(tx Tx) error {
		acct, err := tx.Account(accountID)
		if err != nil {
			return err
		}
		acct.Coins += delta
		balance = acct.Coins
		return tx.SaveAccount(acct)
	})
	if err != nil {
		return 0, err
	}
	e.log.Info("balance adjusted",
		zap.String("account_id", accountID),
		zap.Int64("delta", delta),
		zap.Int64("balance", balance))
	return balance, nil
}

// ServerFor returns the account's active server, or ErrNoActiveServer.
func (e *Engine) ServerFor(ctx context.Context, accountID string) (*Server, error) {
	var srv *Server
	err := e.store.View(func(tx Tx) error {
		s, err := tx.ServerByOwner(accountID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrNoActiveServer
			}
			return err
		}
		srv = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

type PoolStats struct {
	Total     int `json:"totalServers"`
	Available int `json:"availableServers"`
	Active    int `json:"activeServers"`
}

func (e *Engine) Stats(ctx context.Context) (PoolStats, error) {
	var st PoolStats
	err := e.store.View(func(tx Tx) error {
		avail, err := tx.CountServersByStatus(StatusAvailable)
		if err != nil {
			return err
		}
		active, err := tx.CountServersByStatus(StatusActive)
		if err != nil {
			return err
		}
		st = PoolStats{Total: avail + active, Available: avail, Active: active}
		return nil
	})
	return st, err
}

func (e *Engine) publish(ctx context.Context, kind, serverID, accountID string) {
	if e.events == nil {
		return
	}
	err := e.events.Event(ctx, kind, map[string]any{
		"event":      "server." + kind,
		"server_id":  serverID,
		"account_id": accountID,
		"time":       e.now().Unix(),
	})
	if err != nil {
		e.log.Warn("event publish failed", zap.String("kind", kind), zap.Error(err))
	}
}
