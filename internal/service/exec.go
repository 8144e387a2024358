package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"fxengine/internal/domain"
	"fxengine/internal/infra/storage"
	"fxengine/pkg/fixed"
)

// openPositionTx performs the position-opening half of a fill inside an
// existing transaction: create the OPEN position at the execution price,
// mark the order FILLED, append the OPEN trade, reserve margin and debit
// commission. The caller has already verified margin sufficiency.
func openPositionTx(tx *storage.Store, acct *domain.Account, order *domain.Order,
	px fixed.Price, settings *domain.SystemSettings, now time.Time) (*domain.Position, error) {

	pos := &domain.Position{
		ID:         uuid.NewString(),
		AccountID:  acct.ID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Qty:        order.Qty,
		EntryPrice: px,
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
		Margin:     fixed.Margin(order.Qty, px, acct.Leverage),
		Status:     domain.PositionStatusOpen,
		OpenedAt:   now,
	}
	if err := tx.SavePosition(pos); err != nil {
		return nil, fmt.Errorf("save position: %w", err)
	}

	order.Status = domain.OrderStatusFilled
	order.FillPrice = px
	order.FilledAt = &now
	order.PositionID = pos.ID
	if err := tx.SaveOrder(order); err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}

	commission := fixed.CommissionFor(order.Qty, settings.CommissionPerLot)
	trade := &domain.Trade{
		ID:         uuid.NewString(),
		AccountID:  acct.ID,
		PositionID: pos.ID,
		OrderID:    order.ID,
		Kind:       domain.TradeKindOpen,
		Side:       order.Side,
		Qty:        order.Qty,
		Price:      px,
		Commission: commission,
		ExecutedAt: now,
	}
	if err := tx.AppendTrade(trade); err != nil {
		return nil, fmt.Errorf("append trade: %w", err)
	}

	acct.UsedMargin += pos.Margin
	acct.Balance -= commission
	if err := tx.SaveAccount(acct); err != nil {
		return nil, fmt.Errorf("save account: %w", err)
	}
	return pos, nil
}

// applyCloseTx performs one position close inside an existing transaction:
// terminal status with close price and realized P&L, the opposite-side
// trade, margin release, and the cash delta. Accumulated swap is realized
// into the balance here and nowhere else. The account is mutated but not
// saved; the caller persists it once per transaction.
func applyCloseTx(tx *storage.Store, acct *domain.Account, pos *domain.Position,
	closePrice fixed.Price, status, kind string, now time.Time) error {

	if !pos.IsOpen() {
		return domain.ErrPositionNotOpen
	}

	pnl := pos.UnrealizedPnL(closePrice)

	pos.Status = status
	pos.ClosePrice = closePrice
	pos.RealizedPnL = pnl
	pos.ClosedAt = &now
	if err := tx.SavePosition(pos); err != nil {
		return fmt.Errorf("save position: %w", err)
	}

	trade := &domain.Trade{
		ID:         uuid.NewString(),
		AccountID:  acct.ID,
		PositionID: pos.ID,
		Kind:       kind,
		Side:       domain.OppositeSide(pos.Side),
		Qty:        pos.Qty,
		Price:      closePrice,
		PnL:        pnl,
		Swap:       pos.Swap,
		ExecutedAt: now,
	}
	if err := tx.AppendTrade(trade); err != nil {
		return fmt.Errorf("append trade: %w", err)
	}

	acct.UsedMargin -= pos.Margin
	acct.Balance += pnl + pos.Swap
	return nil
}
