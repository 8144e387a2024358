package feed

import (
	"testing"
	"time"

	"fxengine/pkg/fixed"
)

func TestSyntheticWalkIsReproducible(t *testing.T) {
	now := time.Now()
	a := NewSynthetic("USDJPY", 15000000, 2, 42)
	b := NewSynthetic("USDJPY", 15000000, 2, 42)

	for i := 0; i < 100; i++ {
		qa, qb := a.Next(now), b.Next(now)
		if qa.Bid != qb.Bid || qa.Ask != qb.Ask {
			t.Fatalf("walks diverged at step %d: %+v vs %+v", i, qa, qb)
		}
	}
}

func TestSyntheticStaysNearAnchor(t *testing.T) {
	s := NewSynthetic("USDJPY", 15000000, 2, 1)
	now := time.Now()

	prev := fixed.Price(15000000)
	for i := 0; i < 1000; i++ {
		q := s.Next(now)
		mid := fixed.Mid(q.Bid, q.Ask)
		step := int64(mid) - int64(prev)
		if step < 0 {
			step = -step
		}
		allowed := int64(prev) / 10_000
		if allowed < 1 {
			allowed = 1
		}
		if step > allowed {
			t.Fatalf("step %d exceeds one basis point of %d at step %d", step, prev, i)
		}
		if q.Bid >= q.Ask {
			t.Fatalf("spread collapsed: %d/%d", q.Bid, q.Ask)
		}
		prev = mid
	}
}

func TestSyntheticAnchorRecenters(t *testing.T) {
	s := NewSynthetic("USDJPY", 15000000, 2, 7)
	now := time.Now()

	s.Anchor(18800000)
	q := s.Next(now)
	mid := fixed.Mid(q.Bid, q.Ask)
	if mid < 18700000 || mid > 18900000 {
		t.Errorf("walk did not resume from the anchor: mid %d", mid)
	}

	// A zero anchor is ignored: never re-center on an empty book.
	s.Anchor(0)
	q = s.Next(now)
	mid = fixed.Mid(q.Bid, q.Ask)
	if mid < 18700000 || mid > 18900000 {
		t.Errorf("zero anchor must be ignored: mid %d", mid)
	}
}
