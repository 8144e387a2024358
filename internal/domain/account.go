package domain

import (
	"time"

	"fxengine/pkg/fixed"
)

// Account statuses. Only ACTIVE accounts trade or get swept by the losscut
// monitor.
const (
	AccountStatusActive    = "ACTIVE"
	AccountStatusSuspended = "SUSPENDED"
	AccountStatusClosed    = "CLOSED"
)

// Account is a margin account in the settlement currency. Equity is derived,
// never stored.
type Account struct {
	ID         string      `gorm:"primaryKey" json:"id"`
	Balance    fixed.Money `json:"balance"`
	UsedMargin fixed.Money `json:"used_margin"`
	Leverage   int64       `json:"leverage"`
	Status     string      `gorm:"index" json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// FreeMargin is the balance not reserved by open positions.
func (a *Account) FreeMargin() fixed.Money {
	return a.Balance - a.UsedMargin
}

// Equity is the balance adjusted by the aggregate unrealized P&L of the
// account's open positions at the current quote.
func (a *Account) Equity(unrealized fixed.Money) fixed.Money {
	return a.Balance + unrealized
}

// IsActive reports whether the account may open or hold positions.
func (a *Account) IsActive() bool { return a.Status == AccountStatusActive }
