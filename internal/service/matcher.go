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

// Matcher scans resting LIMIT/STOP orders on every tick and converts
// qualifying ones into open positions. A tick arriving while a previous scan
// is still in flight is skipped, never queued.
type Matcher struct {
	store   *storage.Store
	metrics *infra.Metrics

	inFlight atomic.Bool
}

// NewMatcher creates the pending-order matcher.
func NewMatcher(store *storage.Store, metrics *infra.Metrics) *Matcher {
	return &Matcher{store: store, metrics: metrics}
}

// OnTick runs one matching sweep against the tick's quote.
func (m *Matcher) OnTick(q domain.Quote) {
	if !m.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer m.inFlight.Store(false)

	now := time.Now()
	if !q.Valid(now) {
		// The feed went quiet between delivery and processing; execution
		// pricing is unavailable, retry from unchanged state next tick.
		return
	}

	settings, err := m.store.Settings()
	if err != nil {
		slog.Error("matcher: load settings failed", slog.Any("error", err))
		m.metrics.RecordError()
		return
	}
	exec := q.WithMarkup(settings.SpreadMarkup)

	orders, err := m.store.PendingOrders()
	if err != nil {
		slog.Error("matcher: load pending orders failed", slog.Any("error", err))
		m.metrics.RecordError()
		return
	}

	for i := range orders {
		order := &orders[i]
		if !order.ShouldFill(exec.Bid, exec.Ask) {
			continue
		}
		if err := m.fill(order.ID, exec, settings, now); err != nil {
			// The order stays PENDING; the next tick re-evaluates it from
			// unchanged state.
			slog.Error("matcher: fill failed",
				slog.String("order_id", order.ID), slog.Any("error", err))
			m.metrics.RecordError()
		}
	}
}

// fill executes one qualifying order as a single atomic unit: position,
// order status, trade record and margin reservation commit together or not
// at all. Insufficient free margin cancels the order terminally.
func (m *Matcher) fill(orderID string, exec domain.Quote,
	settings *domain.SystemSettings, now time.Time) error {

	return m.store.Transact(func(tx *storage.Store) error {
		order, err := tx.Order(orderID)
		if err != nil {
			return err
		}
		if !order.IsPending() {
			return nil // already resolved by a concurrent path
		}

		acct, err := tx.Account(order.AccountID)
		if err != nil {
			return err
		}

		px := order.ExecutionPrice(exec.Bid, exec.Ask)

		cancelReason := ""
		if !acct.IsActive() {
			cancelReason = "account not active"
		} else if acct.FreeMargin() < fixed.Margin(order.Qty, px, acct.Leverage) {
			// Terminal: no retry, no partial fill.
			cancelReason = "insufficient free margin"
		}
		if cancelReason != "" {
			order.Status = domain.OrderStatusCancelled
			if err := tx.SaveOrder(order); err != nil {
				return err
			}
			m.metrics.RecordOrderCancelled()
			slog.Warn("matcher: order cancelled",
				slog.String("order_id", order.ID),
				slog.String("reason", cancelReason))
			return nil
		}

		pos, err := openPositionTx(tx, acct, order, px, settings, now)
		if err != nil {
			return err
		}

		m.metrics.RecordOrderFilled()
		slog.Info("matcher: order filled",
			slog.String("order_id", order.ID),
			slog.String("position_id", pos.ID),
			slog.String("side", order.Side),
			slog.String("price", px.String()),
			slog.String("qty", order.Qty.String()))
		return nil
	})
}
