package service

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fxengine/internal/domain"
	"fxengine/internal/infra"
	"fxengine/internal/infra/storage"
	"fxengine/pkg/fixed"
)

// OrderRequest is the engine write contract. Numeric fields arrive in their
// external decimal representation and are converted once into scaled
// integers.
type OrderRequest struct {
	AccountID  string `json:"account_id"`
	Side       string `json:"side"`
	Type       string `json:"type"`
	Qty        string `json:"qty"`
	Price      string `json:"price,omitempty"`
	StopLoss   string `json:"stop_loss,omitempty"`
	TakeProfit string `json:"take_profit,omitempty"`
}

// OrderResult reports what a placement produced: always an order, plus the
// position when the order filled immediately.
type OrderResult struct {
	Order    *domain.Order    `json:"order"`
	Position *domain.Position `json:"position,omitempty"`
}

// OrderService implements order placement, cancellation and voluntary
// position close for external callers.
type OrderService struct {
	store   *storage.Store
	board   *QuoteBoard
	metrics *infra.Metrics
	symbol  string
}

// NewOrderService creates the order placement service.
func NewOrderService(store *storage.Store, board *QuoteBoard,
	metrics *infra.Metrics, symbol string) *OrderService {
	return &OrderService{store: store, board: board, metrics: metrics, symbol: symbol}
}

// PlaceOrder validates and executes a placement. MARKET orders resolve
// synchronously against the current quote and never persist in PENDING
// state; LIMIT and STOP orders rest for the matcher.
func (os *OrderService) PlaceOrder(req OrderRequest) (*OrderResult, error) {
	order, err := os.buildOrder(req)
	if err != nil {
		return nil, err
	}

	if order.Type == domain.OrderTypeMarket {
		return os.fillMarket(order)
	}

	order.Status = domain.OrderStatusPending
	if err := os.store.SaveOrder(order); err != nil {
		return nil, err
	}
	slog.Info("order resting",
		slog.String("order_id", order.ID),
		slog.String("type", order.Type),
		slog.String("side", order.Side))
	return &OrderResult{Order: order}, nil
}

func (os *OrderService) buildOrder(req OrderRequest) (*domain.Order, error) {
	if req.Side != domain.SideBuy && req.Side != domain.SideSell {
		return nil, fmt.Errorf("%w: side %q", domain.ErrInvalidOrder, req.Side)
	}
	switch req.Type {
	case domain.OrderTypeMarket, domain.OrderTypeLimit, domain.OrderTypeStop:
	default:
		return nil, fmt.Errorf("%w: type %q", domain.ErrInvalidOrder, req.Type)
	}

	qty, err := fixed.LotsFromString(req.Qty)
	if err != nil || qty <= 0 {
		return nil, fmt.Errorf("%w: qty %q", domain.ErrInvalidOrder, req.Qty)
	}

	order := &domain.Order{
		ID:        uuid.NewString(),
		AccountID: req.AccountID,
		Symbol:    os.symbol,
		Side:      req.Side,
		Type:      req.Type,
		Qty:       qty,
		CreatedAt: time.Now(),
	}

	if req.Type != domain.OrderTypeMarket {
		if req.Price == "" {
			return nil, fmt.Errorf("%w: %s order needs a price", domain.ErrInvalidOrder, req.Type)
		}
		px, err := fixed.PriceFromString(req.Price)
		if err != nil || px <= 0 {
			return nil, fmt.Errorf("%w: price %q", domain.ErrInvalidOrder, req.Price)
		}
		order.Price = &px
	}
	if req.StopLoss != "" {
		sl, err := fixed.PriceFromString(req.StopLoss)
		if err != nil || sl <= 0 {
			return nil, fmt.Errorf("%w: stop loss %q", domain.ErrInvalidOrder, req.StopLoss)
		}
		order.StopLoss = &sl
	}
	if req.TakeProfit != "" {
		tp, err := fixed.PriceFromString(req.TakeProfit)
		if err != nil || tp <= 0 {
			return nil, fmt.Errorf("%w: take profit %q", domain.ErrInvalidOrder, req.TakeProfit)
		}
		order.TakeProfit = &tp
	}
	return order, nil
}

// fillMarket executes a market order synchronously. A margin-insufficiency
// rejection persists nothing.
func (os *OrderService) fillMarket(order *domain.Order) (*OrderResult, error) {
	now := time.Now()
	quote, ok := os.board.Snapshot(now)
	if !ok {
		return nil, domain.ErrStaleQuote
	}

	var result OrderResult
	err := os.store.Transact(func(tx *storage.Store) error {
		settings, err := tx.Settings()
		if err != nil {
			return err
		}
		exec := quote.WithMarkup(settings.SpreadMarkup)

		acct, err := tx.Account(order.AccountID)
		if err != nil {
			return err
		}
		if !acct.IsActive() {
			return domain.ErrAccountNotActive
		}

		px := order.ExecutionPrice(exec.Bid, exec.Ask)
		if acct.FreeMargin() < fixed.Margin(order.Qty, px, acct.Leverage) {
			return domain.ErrInsufficientMargin
		}

		pos, err := openPositionTx(tx, acct, order, px, settings, now)
		if err != nil {
			return err
		}
		result = OrderResult{Order: order, Position: pos}
		return nil
	})
	if err != nil {
		return nil, err
	}

	os.metrics.RecordOrderFilled()
	slog.Info("market order filled",
		slog.String("order_id", order.ID),
		slog.String("position_id", result.Position.ID),
		slog.String("price", result.Order.FillPrice.String()))
	return &result, nil
}

// CancelOrder cancels a resting order.
func (os *OrderService) CancelOrder(orderID string) error {
	return os.store.Transact(func(tx *storage.Store) error {
		order, err := tx.Order(orderID)
		if err != nil {
			return err
		}
		if !order.IsPending() {
			return domain.ErrOrderNotPending
		}
		order.Status = domain.OrderStatusCancelled
		if err := tx.SaveOrder(order); err != nil {
			return err
		}
		os.metrics.RecordOrderCancelled()
		return nil
	})
}

// ClosePosition voluntarily closes an open position at current market.
func (os *OrderService) ClosePosition(positionID string) (*domain.Position, error) {
	now := time.Now()
	quote, ok := os.board.Snapshot(now)
	if !ok {
		return nil, domain.ErrStaleQuote
	}

	var closed *domain.Position
	err := os.store.Transact(func(tx *storage.Store) error {
		settings, err := tx.Settings()
		if err != nil {
			return err
		}
		exec := quote.WithMarkup(settings.SpreadMarkup)

		pos, err := tx.Position(positionID)
		if err != nil {
			return err
		}
		acct, err := tx.Account(pos.AccountID)
		if err != nil {
			return err
		}
		if err := applyCloseTx(tx, acct, pos, pos.ExitPrice(exec.Bid, exec.Ask),
			domain.PositionStatusClosed, domain.TradeKindClose, now); err != nil {
			return err
		}
		if err := tx.SaveAccount(acct); err != nil {
			return err
		}
		closed = pos
		return nil
	})
	if err != nil {
		return nil, err
	}

	os.metrics.RecordPositionClosed()
	slog.Info("position closed",
		slog.String("position_id", closed.ID),
		slog.String("pnl", closed.RealizedPnL.String()))
	return closed, nil
}
