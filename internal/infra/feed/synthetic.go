package feed

import (
	"math/rand"
	"sync"
	"time"

	"fxengine/internal/domain"
	"fxengine/pkg/fixed"
)

// Synthetic generates random-walk quotes around the last known mid price.
// It exists for display continuity while the live feed is stale and is wired
// only into the broadcast layer. Execution paths never see its output.
type Synthetic struct {
	mu     sync.Mutex
	rng    *rand.Rand
	symbol string
	mid    fixed.Price
	spread fixed.Points
}

// NewSynthetic seeds a generator at a base mid price. A fixed seed gives a
// reproducible walk for tests.
func NewSynthetic(symbol string, base fixed.Price, spread fixed.Points, seed int64) *Synthetic {
	return &Synthetic{
		rng:    rand.New(rand.NewSource(seed)),
		symbol: symbol,
		mid:    base,
		spread: spread,
	}
}

// Anchor re-centers the walk on a real observed mid so synthetic quotes
// resume from the last live level.
func (s *Synthetic) Anchor(mid fixed.Price) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mid > 0 {
		s.mid = mid
	}
}

// Next advances the walk one step and returns a display quote stamped now.
func (s *Synthetic) Next(now time.Time) domain.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Step within one basis point of the current mid, at least one unit.
	maxStep := int64(s.mid) / 10_000
	if maxStep < 1 {
		maxStep = 1
	}
	s.mid += fixed.Price(s.rng.Int63n(2*maxStep+1) - maxStep)
	if s.mid < 1 {
		s.mid = 1
	}

	return domain.Quote{
		Symbol: s.symbol,
		Bid:    s.mid.SubPoints(s.spread),
		Ask:    s.mid.AddPoints(s.spread),
		At:     now,
	}
}
