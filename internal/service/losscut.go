package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"fxengine/internal/domain"
	"fxengine/internal/infra"
	"fxengine/internal/infra/storage"
	"fxengine/pkg/fixed"
)

// LosscutMonitor periodically recomputes every margined account's equity and
// margin level and force-liquidates accounts at or below the configured
// threshold. It runs on its own timer, independent of ticks.
type LosscutMonitor struct {
	store    *storage.Store
	board    *QuoteBoard
	metrics  *infra.Metrics
	interval time.Duration

	inFlight atomic.Bool
}

// NewLosscutMonitor creates the margin-call monitor.
func NewLosscutMonitor(store *storage.Store, board *QuoteBoard,
	metrics *infra.Metrics, interval time.Duration) *LosscutMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &LosscutMonitor{store: store, board: board, metrics: metrics, interval: interval}
}

// Run drives the sweep until the context is cancelled.
func (lm *LosscutMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(lm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("losscut monitor stopped")
			return
		case <-ticker.C:
			lm.Sweep(time.Now())
		}
	}
}

// Sweep runs one losscut cycle. The quote snapshot is captured once and held
// fixed for the whole sweep so every account is judged against the same
// market. A stale feed skips the cycle: liquidation never prices off a
// synthetic quote.
func (lm *LosscutMonitor) Sweep(now time.Time) {
	if !lm.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer lm.inFlight.Store(false)

	quote, ok := lm.board.Snapshot(now)
	if !ok {
		slog.Debug("losscut: quote stale, cycle skipped")
		return
	}

	settings, err := lm.store.Settings()
	if err != nil {
		slog.Error("losscut: load settings failed", slog.Any("error", err))
		lm.metrics.RecordError()
		return
	}
	exec := quote.WithMarkup(settings.SpreadMarkup)
	threshold := fixed.Money(settings.LosscutPercent * fixed.MoneyScale)

	accounts, err := lm.store.MarginedAccounts()
	if err != nil {
		slog.Error("losscut: load accounts failed", slog.Any("error", err))
		lm.metrics.RecordError()
		return
	}

	for i := range accounts {
		acct := &accounts[i]
		if err := lm.checkAccount(acct, exec, threshold, now); err != nil {
			// Per-account failure must not abort the sweep for the rest.
			slog.Error("losscut: account sweep failed",
				slog.String("account_id", acct.ID), slog.Any("error", err))
			lm.metrics.RecordError()
		}
	}
}

// checkAccount liquidates one account when margin level <= threshold. The
// boundary is inclusive; an account with zero used margin has an unbounded
// level and never triggers.
func (lm *LosscutMonitor) checkAccount(acct *domain.Account, exec domain.Quote,
	threshold fixed.Money, now time.Time) error {

	positions, err := lm.store.OpenPositionsByAccount(acct.ID)
	if err != nil {
		return err
	}

	var unrealized fixed.Money
	for i := range positions {
		unrealized += positions[i].UnrealizedPnL(positions[i].ExitPrice(exec.Bid, exec.Ask))
	}

	level, bounded := fixed.MarginLevelPercent(acct.Equity(unrealized), acct.UsedMargin)
	if !bounded || level > threshold {
		return nil
	}

	return lm.liquidate(acct.ID, exec, level, now)
}

// liquidate closes every open position on the account at current market as
// one all-or-nothing unit, marks them LIQUIDATED, releases all margin and
// applies the aggregate realized P&L to the balance.
func (lm *LosscutMonitor) liquidate(accountID string, exec domain.Quote,
	level fixed.Money, now time.Time) error {

	err := lm.store.Transact(func(tx *storage.Store) error {
		acct, err := tx.Account(accountID)
		if err != nil {
			return err
		}
		positions, err := tx.OpenPositionsByAccount(accountID)
		if err != nil {
			return err
		}
		for i := range positions {
			pos := &positions[i]
			exit := pos.ExitPrice(exec.Bid, exec.Ask)
			if err := applyCloseTx(tx, acct, pos, exit,
				domain.PositionStatusLiquidated, domain.TradeKindLiquidation, now); err != nil {
				return err
			}
		}
		return tx.SaveAccount(acct)
	})
	if err != nil {
		return err
	}

	lm.metrics.RecordLiquidation()
	slog.Warn("losscut: account liquidated",
		slog.String("account_id", accountID),
		slog.String("margin_level_pct", level.String()))
	return nil
}
