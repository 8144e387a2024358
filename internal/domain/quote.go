package domain

import (
	"time"

	"fxengine/pkg/fixed"
)

// MaxQuoteAge is how long an observed tick remains usable for execution
// pricing. Past this the feed is in maintenance mode and every money-moving
// path must refuse to price.
const MaxQuoteAge = 10 * time.Second

// Quote is the best bid/ask observed from the feed, with its observation
// time. Immutable once taken from the board.
type Quote struct {
	Symbol string      `json:"symbol"`
	Bid    fixed.Price `json:"bid"`
	Ask    fixed.Price `json:"ask"`
	At     time.Time   `json:"at"`
}

// Valid reports whether the quote is fresh enough for execution pricing.
func (q Quote) Valid(now time.Time) bool {
	return !q.At.IsZero() && now.Sub(q.At) <= MaxQuoteAge
}

// Mid returns the quote midpoint.
func (q Quote) Mid() fixed.Price { return fixed.Mid(q.Bid, q.Ask) }

// WithMarkup widens the quote by the configured spread markup, producing the
// execution quote clients actually trade against.
func (q Quote) WithMarkup(pts fixed.Points) Quote {
	q.Bid = q.Bid.SubPoints(pts)
	q.Ask = q.Ask.AddPoints(pts)
	return q
}
