package service

import (
	"testing"
	"time"

	"fxengine/internal/domain"
	"fxengine/pkg/fixed"
)

func tickAt(at time.Time, mid fixed.Price) domain.Quote {
	return domain.Quote{Symbol: "USDJPY", Bid: mid, Ask: mid, At: at}
}

func TestCandleAggregatorBuildsAndRollsBars(t *testing.T) {
	store := setupStore(t)
	ca := NewCandleAggregator(store, newMetrics(), "USDJPY")

	base := time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC)
	ca.OnTick(tickAt(base.Add(5*time.Second), 15000000))
	ca.OnTick(tickAt(base.Add(20*time.Second), 15002000))
	ca.OnTick(tickAt(base.Add(40*time.Second), 14999000))

	// Nothing persists until the bucket rolls over.
	candles, err := store.Candles("USDJPY", "1m", 10)
	if err != nil {
		t.Fatalf("Candles failed: %v", err)
	}
	if len(candles) != 0 {
		t.Fatalf("expected no persisted bars yet, got %d", len(candles))
	}

	// First tick of the next minute closes the previous bar.
	ca.OnTick(tickAt(base.Add(62*time.Second), 15001000))

	candles, err = store.Candles("USDJPY", "1m", 10)
	if err != nil {
		t.Fatalf("Candles failed: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("expected one persisted bar, got %d", len(candles))
	}
	bar := candles[0]
	if !bar.BucketStart.Equal(base) {
		t.Errorf("expected bucket %v, got %v", base, bar.BucketStart)
	}
	if bar.Open != 15000000 || bar.High != 15002000 || bar.Low != 14999000 || bar.Close != 14999000 {
		t.Errorf("unexpected OHLC: %+v", bar)
	}
	if bar.TickCount != 3 {
		t.Errorf("expected 3 ticks, got %d", bar.TickCount)
	}
}

// The fallback flush persists a bar whose minute passed without a fresh tick
// to roll it over.
func TestCandleAggregatorFlushesStaleBar(t *testing.T) {
	store := setupStore(t)
	ca := NewCandleAggregator(store, newMetrics(), "USDJPY")

	base := time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC)
	ca.OnTick(tickAt(base.Add(10*time.Second), 15000000))

	// Still inside the bucket: no flush.
	ca.Flush(base.Add(50 * time.Second))
	candles, err := store.Candles("USDJPY", "1m", 10)
	if err != nil {
		t.Fatalf("Candles failed: %v", err)
	}
	if len(candles) != 0 {
		t.Fatal("flush inside the bucket must not persist")
	}

	ca.Flush(base.Add(90 * time.Second))
	candles, err = store.Candles("USDJPY", "1m", 10)
	if err != nil {
		t.Fatalf("Candles failed: %v", err)
	}
	if len(candles) != 1 || candles[0].Close != 15000000 {
		t.Errorf("expected the stale bar persisted, got %+v", candles)
	}
}

func TestCandleAggregatorDerivesCoarserBars(t *testing.T) {
	store := setupStore(t)
	ca := NewCandleAggregator(store, newMetrics(), "USDJPY")

	// Two adjacent one-minute bars inside the same five-minute bucket.
	base := time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC)
	bars := []*domain.Candle{
		{Symbol: "USDJPY", Interval: "1m", BucketStart: base,
			Open: 15000000, High: 15002000, Low: 14999000, Close: 14999500, TickCount: 3},
		{Symbol: "USDJPY", Interval: "1m", BucketStart: base.Add(time.Minute),
			Open: 14999500, High: 15003000, Low: 14998000, Close: 15001000, TickCount: 5},
	}
	for _, c := range bars {
		if err := store.UpsertCandle(c); err != nil {
			t.Fatalf("UpsertCandle failed: %v", err)
		}
	}

	out, err := ca.Aggregate(5*time.Minute, 10)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected one five-minute bar, got %d", len(out))
	}
	agg := out[0]
	if !agg.BucketStart.Equal(base) {
		t.Errorf("expected bucket %v, got %v", base, agg.BucketStart)
	}
	if agg.Open != 15000000 || agg.Close != 15001000 {
		t.Errorf("open must come from the first bar and close from the last: %+v", agg)
	}
	if agg.High != 15003000 || agg.Low != 14998000 {
		t.Errorf("high/low must span both bars: %+v", agg)
	}
	if agg.TickCount != 8 {
		t.Errorf("expected summed tick count 8, got %d", agg.TickCount)
	}
}

func TestCandleAggregatorRejectsOddInterval(t *testing.T) {
	store := setupStore(t)
	ca := NewCandleAggregator(store, newMetrics(), "USDJPY")

	if _, err := ca.Aggregate(90*time.Second, 10); err == nil {
		t.Error("expected error for a non-multiple interval")
	}
	if _, err := ca.Aggregate(30*time.Second, 10); err == nil {
		t.Error("expected error for an interval below the base granularity")
	}
}
