package infra

import (
	"sync/atomic"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	ticksReceived      atomic.Uint64
	ordersFilled       atomic.Uint64
	ordersCancelled    atomic.Uint64
	positionsClosed    atomic.Uint64
	accountsLiquidated atomic.Uint64
	swapAccruals       atomic.Uint64
	candlesPersisted   atomic.Uint64
	feedReconnects     atomic.Uint64
	broadcastDrops     atomic.Uint64
	errorsTotal        atomic.Uint64

	feedConnected atomic.Int32 // 1 = SUBSCRIBED
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	TicksReceived      uint64 `json:"ticks_received"`
	OrdersFilled       uint64 `json:"orders_filled"`
	OrdersCancelled    uint64 `json:"orders_cancelled"`
	PositionsClosed    uint64 `json:"positions_closed"`
	AccountsLiquidated uint64 `json:"accounts_liquidated"`
	SwapAccruals       uint64 `json:"swap_accruals"`
	CandlesPersisted   uint64 `json:"candles_persisted"`
	FeedReconnects     uint64 `json:"feed_reconnects"`
	BroadcastDrops     uint64 `json:"broadcast_drops"`
	ErrorsTotal        uint64 `json:"errors_total"`
	FeedConnected      bool   `json:"feed_connected"`
}

func (m *Metrics) RecordTick()            { m.ticksReceived.Add(1) }
func (m *Metrics) RecordOrderFilled()     { m.ordersFilled.Add(1) }
func (m *Metrics) RecordOrderCancelled()  { m.ordersCancelled.Add(1) }
func (m *Metrics) RecordPositionClosed()  { m.positionsClosed.Add(1) }
func (m *Metrics) RecordLiquidation()     { m.accountsLiquidated.Add(1) }
func (m *Metrics) RecordSwapAccrual()     { m.swapAccruals.Add(1) }
func (m *Metrics) RecordCandlePersisted() { m.candlesPersisted.Add(1) }
func (m *Metrics) RecordFeedReconnect()   { m.feedReconnects.Add(1) }
func (m *Metrics) RecordBroadcastDrop()   { m.broadcastDrops.Add(1) }
func (m *Metrics) RecordError()           { m.errorsTotal.Add(1) }

// SetFeedConnected flags whether the feed session is fully subscribed.
func (m *Metrics) SetFeedConnected(up bool) {
	if up {
		m.feedConnected.Store(1)
	} else {
		m.feedConnected.Store(0)
	}
}

// Snapshot copies all counters for the debug endpoint.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TicksReceived:      m.ticksReceived.Load(),
		OrdersFilled:       m.ordersFilled.Load(),
		OrdersCancelled:    m.ordersCancelled.Load(),
		PositionsClosed:    m.positionsClosed.Load(),
		AccountsLiquidated: m.accountsLiquidated.Load(),
		SwapAccruals:       m.swapAccruals.Load(),
		CandlesPersisted:   m.candlesPersisted.Load(),
		FeedReconnects:     m.feedReconnects.Load(),
		BroadcastDrops:     m.broadcastDrops.Load(),
		ErrorsTotal:        m.errorsTotal.Load(),
		FeedConnected:      m.feedConnected.Load() == 1,
	}
}
