package domain

import (
	"time"

	"fxengine/pkg/fixed"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	PositionStatusOpen       = "OPEN"
	PositionStatusClosed     = "CLOSED"
	PositionStatusLiquidated = "LIQUIDATED"
)

// OppositeSide returns the counter side used on closing trades.
func OppositeSide(side string) string {
	if side == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Position is a leveraged exposure on the instrument. The lifecycle is
// strictly one-way: OPEN -> CLOSED or OPEN -> LIQUIDATED, never reversed.
type Position struct {
	ID         string       `gorm:"primaryKey" json:"id"`
	AccountID  string       `gorm:"index" json:"account_id"`
	Symbol     string       `json:"symbol"`
	Side       string       `json:"side"`
	Qty        fixed.Lots   `json:"qty"`
	EntryPrice fixed.Price  `json:"entry_price"`
	StopLoss   *fixed.Price `json:"stop_loss,omitempty"`
	TakeProfit *fixed.Price `json:"take_profit,omitempty"`
	Margin     fixed.Money  `json:"margin"`
	Swap       fixed.Money  `json:"swap"`
	Status     string       `gorm:"index" json:"status"`

	ClosePrice  fixed.Price `json:"close_price,omitempty"`
	RealizedPnL fixed.Money `json:"realized_pnl,omitempty"`
	OpenedAt    time.Time   `json:"opened_at"`
	ClosedAt    *time.Time  `json:"closed_at,omitempty"`
}

// IsLong reports whether the position profits from a rising price.
func (p *Position) IsLong() bool { return p.Side == SideBuy }

// IsOpen reports whether the position still holds margin.
func (p *Position) IsOpen() bool { return p.Status == PositionStatusOpen }

// ExitPrice picks the side of the quote a close would execute at: a long
// sells into the bid, a short buys back at the ask.
func (p *Position) ExitPrice(bid, ask fixed.Price) fixed.Price {
	if p.IsLong() {
		return bid
	}
	return ask
}

// UnrealizedPnL values the position against an exit price.
func (p *Position) UnrealizedPnL(exit fixed.Price) fixed.Money {
	return fixed.PnL(p.EntryPrice, exit, p.Qty, p.IsLong())
}

// TakeProfitHit reports whether the exit price has reached the take-profit
// threshold. Equality counts as a hit.
func (p *Position) TakeProfitHit(exit fixed.Price) bool {
	if p.TakeProfit == nil {
		return false
	}
	if p.IsLong() {
		return exit >= *p.TakeProfit
	}
	return exit <= *p.TakeProfit
}

// StopLossHit reports whether the exit price has reached the stop-loss
// threshold. Equality counts as a hit.
func (p *Position) StopLossHit(exit fixed.Price) bool {
	if p.StopLoss == nil {
		return false
	}
	if p.IsLong() {
		return exit <= *p.StopLoss
	}
	return exit >= *p.StopLoss
}
