// Package service holds the trading engine proper: the shared quote board
// and the periodic tasks that match orders, exit positions, sweep margin
// levels, accrue swap and build candles.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fxengine/internal/domain"
	"fxengine/pkg/fixed"
)

// QuoteBoard is the single shared bid/ask cell. The feed client is its only
// writer; every other component reads a snapshot and must tolerate a stale
// or absent value without blocking.
type QuoteBoard struct {
	mu    sync.RWMutex
	quote domain.Quote

	subMu sync.Mutex
	subs  []chan domain.Quote
}

// NewQuoteBoard creates an empty board for one instrument.
func NewQuoteBoard(symbol string) *QuoteBoard {
	return &QuoteBoard{quote: domain.Quote{Symbol: symbol}}
}

// Set merges a feed update into the board and fans the tick out. Partial
// updates keep the untouched side of the book.
func (b *QuoteBoard) Set(bid, ask fixed.Price, hasBid, hasAsk bool, at time.Time) {
	b.mu.Lock()
	if hasBid {
		b.quote.Bid = bid
	}
	if hasAsk {
		b.quote.Ask = ask
	}
	b.quote.At = at
	q := b.quote
	b.mu.Unlock()

	if q.Bid == 0 || q.Ask == 0 {
		return // half a book is not a tradable quote yet
	}
	b.publish(q)
}

// Snapshot returns the latest quote and its 10-second staleness verdict.
// Callers moving money must refuse to act when ok is false.
func (b *QuoteBoard) Snapshot(now time.Time) (domain.Quote, bool) {
	b.mu.RLock()
	q := b.quote
	b.mu.RUnlock()
	return q, q.Bid != 0 && q.Ask != 0 && q.Valid(now)
}

// Subscribe registers a tick consumer. Each consumer drains its own
// one-slot channel on a dedicated goroutine, so a slow consumer only ever
// skips to the latest tick and never blocks the feed writer.
func (b *QuoteBoard) Subscribe(ctx context.Context, name string, fn func(domain.Quote)) {
	ch := make(chan domain.Quote, 1)

	b.subMu.Lock()
	b.subs = append(b.subs, ch)
	b.subMu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case q := <-ch:
				fn(q)
			}
		}
	}()
	slog.Debug("tick subscriber registered", slog.String("name", name))
}

func (b *QuoteBoard) publish(q domain.Quote) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- q:
		default:
			// Latest wins: displace the undelivered tick.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- q:
			default:
			}
		}
	}
}
