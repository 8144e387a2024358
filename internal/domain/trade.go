package domain

import (
	"time"

	"fxengine/pkg/fixed"
)

const (
	TradeKindOpen        = "OPEN"
	TradeKindClose       = "CLOSE"
	TradeKindLiquidation = "LIQUIDATION"
)

// Trade is an append-only execution record. Rows are never mutated after
// creation.
type Trade struct {
	ID         string      `gorm:"primaryKey" json:"id"`
	AccountID  string      `gorm:"index" json:"account_id"`
	PositionID string      `gorm:"index" json:"position_id"`
	OrderID    string      `json:"order_id,omitempty"`
	Kind       string      `json:"kind"`
	Side       string      `json:"side"`
	Qty        fixed.Lots  `json:"qty"`
	Price      fixed.Price `json:"price"`
	PnL        fixed.Money `json:"pnl"`
	Swap       fixed.Money `json:"swap"`
	Commission fixed.Money `json:"commission"`
	ExecutedAt time.Time   `json:"executed_at"`
}
