package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"fxengine/internal/domain"
	"fxengine/internal/infra"
	"fxengine/internal/infra/storage"
)

// BaseInterval is the finest candle granularity. Coarser intervals are
// derived read-side from these bars.
const BaseInterval = time.Minute

const baseIntervalName = "1m"

// CandleAggregator folds every tick into an in-progress one-minute OHLC bar
// and persists completed bars idempotently. A fallback timer flushes a bar
// whose bucket passed without a fresh tick.
type CandleAggregator struct {
	store   *storage.Store
	metrics *infra.Metrics
	symbol  string

	mu      sync.Mutex
	current *domain.Candle
}

// NewCandleAggregator creates the aggregator for one instrument.
func NewCandleAggregator(store *storage.Store, metrics *infra.Metrics, symbol string) *CandleAggregator {
	return &CandleAggregator{store: store, metrics: metrics, symbol: symbol}
}

// OnTick folds one tick's mid price into the current bar, rolling over and
// persisting when the tick opens a newer bucket.
func (ca *CandleAggregator) OnTick(q domain.Quote) {
	bucket := q.At.Truncate(BaseInterval)
	mid := q.Mid()

	ca.mu.Lock()
	defer ca.mu.Unlock()

	switch {
	case ca.current == nil:
		ca.current = domain.NewCandle(ca.symbol, baseIntervalName, bucket, mid)
	case bucket.After(ca.current.BucketStart):
		ca.persistLocked()
		ca.current = domain.NewCandle(ca.symbol, baseIntervalName, bucket, mid)
	default:
		ca.current.Apply(mid)
	}
}

// Run drives the fallback flush until the context is cancelled.
func (ca *CandleAggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(BaseInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			ca.Flush(time.Now())
			slog.Info("candle aggregator stopped")
			return
		case <-ticker.C:
			ca.Flush(time.Now())
		}
	}
}

// Flush persists a stale in-progress bar whose bucket boundary has passed
// without a tick to roll it over.
func (ca *CandleAggregator) Flush(now time.Time) {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	if ca.current == nil {
		return
	}
	if now.Before(ca.current.BucketStart.Add(BaseInterval)) {
		return
	}
	ca.persistLocked()
	ca.current = nil
}

func (ca *CandleAggregator) persistLocked() {
	if err := ca.store.UpsertCandle(ca.current); err != nil {
		slog.Error("candle persist failed",
			slog.Time("bucket", ca.current.BucketStart), slog.Any("error", err))
		ca.metrics.RecordError()
		return
	}
	ca.metrics.RecordCandlePersisted()
}

// Aggregate derives coarser bars by grouping persisted one-minute candles by
// bucket start floored to the requested interval: open=first, close=last,
// high=max, low=min.
func (ca *CandleAggregator) Aggregate(interval time.Duration, limit int) ([]domain.Candle, error) {
	if interval < BaseInterval || interval%BaseInterval != 0 {
		return nil, fmt.Errorf("interval %s is not a multiple of %s", interval, BaseInterval)
	}
	fine, err := ca.store.Candles(ca.symbol, baseIntervalName, limit*int(interval/BaseInterval))
	if err != nil {
		return nil, err
	}
	if interval == BaseInterval {
		return fine, nil
	}

	grouped := make(map[time.Time]*domain.Candle)
	var order []time.Time
	for i := range fine {
		c := &fine[i]
		bucket := c.BucketStart.Truncate(interval)
		agg, ok := grouped[bucket]
		if !ok {
			cp := *c
			cp.ID = 0
			cp.Interval = interval.String()
			cp.BucketStart = bucket
			grouped[bucket] = &cp
			order = append(order, bucket)
			continue
		}
		// Fine candles arrive oldest-first, so open stays and close follows.
		if c.High > agg.High {
			agg.High = c.High
		}
		if c.Low < agg.Low {
			agg.Low = c.Low
		}
		agg.Close = c.Close
		agg.TickCount += c.TickCount
	}

	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })
	out := make([]domain.Candle, 0, len(order))
	for _, bucket := range order {
		out = append(out, *grouped[bucket])
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
