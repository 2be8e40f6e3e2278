package server

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// BillingScheduler charges every active server one coin per interval and
// reclaims servers from insolvent owners, handing them straight to the
// highest-balance waiting account. Each server is its own unit of work: a
// failure is logged and retried on the next tick instead of aborting the
// batch.
type BillingScheduler struct {
	engine   *Engine
	store    Store
	log      *zap.Logger
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func NewBillingScheduler(engine *Engine, store Store, log *zap.Logger, interval time.Duration) *BillingScheduler {
	return &BillingScheduler{
		engine:   engine,
		store:    store,
		log:      log,
		interval: interval,
	}
}

// Start launches the tick loop. Ticks run sequentially on one goroutine, so a
// slow pass can never overlap the next one; the ticker just drops beats while
// a pass is still running.
func (b *BillingScheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)
		t := time.NewTicker(b.interval)
		defer t.Stop()
		b.log.Info("billing scheduler started", zap.Duration("interval", b.interval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				b.RunTick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for any in-flight tick to finish its
// current server before returning, so no unit of work is cut in half.
func (b *BillingScheduler) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
	b.log.Info("billing scheduler stopped")
}

// RunTick processes every server that was active when the tick began. State
// is re-read per server inside its own transaction, so a server released or
// deleted mid-tick is simply skipped.
func (b *BillingScheduler) RunTick(ctx context.Context) {
	billingTicksTotal.Inc()

	var ids []string
	err := b.store.View(func(tx Tx) error {
		active, err := tx.ServersByStatus(StatusActive)
		if err != nil {
			return err
		}
		for _, s := range active {
			ids = append(ids, s.ID)
		}
		return nil
	})
	if err != nil {
		b.log.Error("billing tick: listing active servers failed", zap.Error(err))
		return
	}

	for _, id := range ids {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := b.billServer(ctx, id); err != nil {
			billingFailuresTotal.Inc()
			b.log.Error("billing server failed, retrying next tick",
				zap.String("server_id", id), zap.Error(err))
		}
	}
}

// billServer runs one server's billing cycle in a single transaction:
// deduct a coin from a solvent owner, or reclaim and immediately reallocate.
func (b *BillingScheduler) billServer(ctx context.Context, id string) error {
	var (
		reclaimedFrom string
		grantedTo     string
		reclaimed     bool
	)

	err := b.store.Update(func(tx Tx) error {
		srv, err := tx.Server(id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil // deleted since the snapshot
			}
			return err
		}
		if srv.Status != StatusActive {
			return nil // released since the snapshot
		}

		var acct *Account
		if srv.OwnerID != "" {
			acct, err = tx.Account(srv.OwnerID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}

		// A missing owner record counts as insolvent: the server must not
		// stay active with nobody to charge.
		if acct != nil && acct.Coins > 0 {
			acct.Coins--
			if err := tx.SaveAccount(acct); err != nil {
				return err
			}
			coinsDeductedTotal.Inc()
			return nil
		}

		reclaimed = true
		reclaimedFrom = srv.OwnerID
		if err := b.engine.releaseLocked(tx, srv); err != nil {
			return err
		}

		next, err := tx.TopWaitingAccount()
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil // nobody waiting, server stays available
			}
			return err
		}

		srv.Status = StatusActive
		srv.OwnerID = next.ID
		srv.AssignedAt = b.engine.now().Unix()
		if err := tx.SaveServer(srv); err != nil {
			return err
		}
		next.HasActiveServer = true
		if err := tx.SaveAccount(next); err != nil {
			return err
		}
		grantedTo = next.ID
		return nil
	})
	if err != nil {
		return err
	}

	if reclaimed {
		reclaimsTotal.Inc()
		b.log.Info("server reclaimed from insolvent account",
			zap.String("server_id", id),
			zap.String("account_id", reclaimedFrom))
		b.engine.publish(ctx, "reclaimed", id, reclaimedFrom)

		if grantedTo != "" {
			reallocationsTotal.Inc()
			grantsTotal.Inc()
			b.log.Info("server reallocated",
				zap.String("server_id", id),
				zap.String("account_id", grantedTo))
			b.engine.publish(ctx, "reallocated", id, grantedTo)
		}
	}
	return nil
}
