package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"fxengine/internal/infra"
	"fxengine/internal/infra/storage"
	"fxengine/pkg/fixed"
)

// swapGateKey is the durable KV key recording the last calendar day swap was
// accrued. The gate commits in the same transaction as the accruals, so a
// crash mid-run replays the whole day and a finished day never repeats.
const swapGateKey = "swap.last_accrued_day"

const dayFormat = "2006-01-02"

// SwapScheduler applies overnight financing to open positions once per
// calendar day at the configured local hour. It checks every minute but the
// daily gate makes repeated runs within a day no-ops.
type SwapScheduler struct {
	store    *storage.Store
	metrics  *infra.Metrics
	interval time.Duration

	inFlight atomic.Bool
}

// NewSwapScheduler creates the swap accrual scheduler.
func NewSwapScheduler(store *storage.Store, metrics *infra.Metrics, interval time.Duration) *SwapScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SwapScheduler{store: store, metrics: metrics, interval: interval}
}

// Run drives the scheduler until the context is cancelled.
func (ss *SwapScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(ss.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("swap scheduler stopped")
			return
		case <-ticker.C:
			if err := ss.Accrue(time.Now()); err != nil {
				slog.Error("swap accrual failed", slog.Any("error", err))
				ss.metrics.RecordError()
			}
		}
	}
}

// Accrue runs one gate check and, when due, applies the day's swap to every
// open position. Accrual only touches each position's accumulated-swap
// field; the cash lands on the balance when the position closes.
func (ss *SwapScheduler) Accrue(now time.Time) error {
	if !ss.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer ss.inFlight.Store(false)

	settings, err := ss.store.Settings()
	if err != nil {
		return err
	}
	if now.Hour() < settings.SwapHour {
		return nil
	}

	today := now.Format(dayFormat)
	last, err := ss.store.State(swapGateKey)
	if err != nil {
		return err
	}
	if last == today {
		return nil // already accrued this calendar day
	}

	multiplier := DayMultiplier(now.Weekday(), settings.SwapRollWeekday)

	err = ss.store.Transact(func(tx *storage.Store) error {
		positions, err := tx.OpenPositions()
		if err != nil {
			return err
		}
		for i := range positions {
			pos := &positions[i]
			pos.Swap += fixed.SwapAmount(pos.Qty, settings.SwapRate(pos.Side), multiplier)
			if err := tx.SavePosition(pos); err != nil {
				return err
			}
		}
		// Setting the gate inside the same transaction keeps the day
		// atomic: all positions accrued and the day marked, or neither.
		return tx.SetState(swapGateKey, today)
	})
	if err != nil {
		return err
	}

	ss.metrics.RecordSwapAccrual()
	slog.Info("swap accrued",
		slog.String("day", today),
		slog.Int64("multiplier", multiplier))
	return nil
}

// DayMultiplier is 3 on the weekly roll day covering Saturday and Sunday
// financing in a single midweek accrual, and 1 on every other day.
func DayMultiplier(day, rollDay time.Weekday) int64 {
	if day == rollDay {
		return 3
	}
	return 1
}
