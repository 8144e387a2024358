package domain

import (
	"time"

	"fxengine/pkg/fixed"
)

const (
	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"
	OrderTypeStop   = "STOP"

	OrderStatusPending   = "PENDING"
	OrderStatusFilled    = "FILLED"
	OrderStatusCancelled = "CANCELLED"
)

// Order is a client instruction. MARKET orders resolve synchronously and
// never persist in PENDING state; LIMIT and STOP orders rest until the
// matcher fills or cancels them.
type Order struct {
	ID         string       `gorm:"primaryKey" json:"id"`
	AccountID  string       `gorm:"index" json:"account_id"`
	Symbol     string       `json:"symbol"`
	Side       string       `json:"side"`
	Type       string       `json:"type"`
	Qty        fixed.Lots   `json:"qty"`
	Price      *fixed.Price `json:"price,omitempty"` // limit or stop trigger
	StopLoss   *fixed.Price `json:"stop_loss,omitempty"`
	TakeProfit *fixed.Price `json:"take_profit,omitempty"`
	Status     string       `gorm:"index" json:"status"`

	FillPrice  fixed.Price `json:"fill_price,omitempty"`
	PositionID string      `json:"position_id,omitempty"`
	FilledAt   *time.Time  `json:"filled_at,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// IsPending reports whether the order is still resting.
func (o *Order) IsPending() bool { return o.Status == OrderStatusPending }

// ShouldFill applies the fill-condition table against an execution quote.
// Equality counts as a fill on every branch.
//
//	LIMIT BUY:  ask <= price    STOP BUY:  ask >= price
//	LIMIT SELL: bid >= price    STOP SELL: bid <= price
func (o *Order) ShouldFill(bid, ask fixed.Price) bool {
	if o.Price == nil {
		return false
	}
	trigger := *o.Price
	switch o.Type {
	case OrderTypeLimit:
		if o.Side == SideBuy {
			return ask <= trigger
		}
		return bid >= trigger
	case OrderTypeStop:
		if o.Side == SideBuy {
			return ask >= trigger
		}
		return bid <= trigger
	}
	return false
}

// ExecutionPrice picks the side of the quote the fill executes at: buys lift
// the ask, sells hit the bid.
func (o *Order) ExecutionPrice(bid, ask fixed.Price) fixed.Price {
	if o.Side == SideBuy {
		return ask
	}
	return bid
}
