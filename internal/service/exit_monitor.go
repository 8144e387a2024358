package service

import (
	"log/slog"
	"sync/atomic"
	"time"

	"fxengine/internal/domain"
	"fxengine/internal/infra"
	"fxengine/internal/infra/storage"
	"fxengine/pkg/fixed"
)

// ExitMonitor scans open positions carrying a stop-loss or take-profit on
// every tick and closes the ones whose threshold the exit price has reached.
// Take-profit wins when both thresholds could fire in the same tick.
type ExitMonitor struct {
	store   *storage.Store
	metrics *infra.Metrics

	inFlight atomic.Bool
}

// NewExitMonitor creates the TP/SL monitor.
func NewExitMonitor(store *storage.Store, metrics *infra.Metrics) *ExitMonitor {
	return &ExitMonitor{store: store, metrics: metrics}
}

// OnTick runs one exit sweep against the tick's quote.
func (em *ExitMonitor) OnTick(q domain.Quote) {
	if !em.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer em.inFlight.Store(false)

	now := time.Now()
	if !q.Valid(now) {
		return
	}

	settings, err := em.store.Settings()
	if err != nil {
		slog.Error("exit monitor: load settings failed", slog.Any("error", err))
		em.metrics.RecordError()
		return
	}
	exec := q.WithMarkup(settings.SpreadMarkup)

	positions, err := em.store.OpenPositionsWithTriggers()
	if err != nil {
		slog.Error("exit monitor: load positions failed", slog.Any("error", err))
		em.metrics.RecordError()
		return
	}

	for i := range positions {
		pos := &positions[i]
		exit := pos.ExitPrice(exec.Bid, exec.Ask)

		// TP before SL: a profit target outranks a protective stop.
		var trigger string
		switch {
		case pos.TakeProfitHit(exit):
			trigger = "take_profit"
		case pos.StopLossHit(exit):
			trigger = "stop_loss"
		default:
			continue
		}

		if err := em.close(pos.ID, exit, now); err != nil {
			// Position stays OPEN; the next tick re-evaluates it.
			slog.Error("exit monitor: close failed",
				slog.String("position_id", pos.ID), slog.Any("error", err))
			em.metrics.RecordError()
			continue
		}
		slog.Info("exit monitor: position closed",
			slog.String("position_id", pos.ID),
			slog.String("trigger", trigger),
			slog.String("price", exit.String()))
	}
}

// close finalizes one triggered position as a single atomic unit.
func (em *ExitMonitor) close(positionID string, exit fixed.Price, now time.Time) error {
	return em.store.Transact(func(tx *storage.Store) error {
		pos, err := tx.Position(positionID)
		if err != nil {
			return err
		}
		if !pos.IsOpen() {
			return nil // already resolved by a concurrent path
		}
		acct, err := tx.Account(pos.AccountID)
		if err != nil {
			return err
		}
		if err := applyCloseTx(tx, acct, pos, exit,
			domain.PositionStatusClosed, domain.TradeKindClose, now); err != nil {
			return err
		}
		if err := tx.SaveAccount(acct); err != nil {
			return err
		}
		em.metrics.RecordPositionClosed()
		return nil
	})
}
