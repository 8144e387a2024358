package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fxengine/internal/domain"
	"fxengine/pkg/fixed"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s
}

func TestOpenSeedsDefaultSettings(t *testing.T) {
	s := setupTestStore(t)

	settings, err := s.Settings()
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if settings.LosscutPercent != 20 {
		t.Errorf("expected seeded losscut 20, got %d", settings.LosscutPercent)
	}
	if settings.SwapRollWeekday != time.Wednesday {
		t.Errorf("expected Wednesday roll, got %v", settings.SwapRollWeekday)
	}

	settings.LosscutPercent = 50
	if err := s.SaveSettings(settings); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	again, err := s.Settings()
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if again.LosscutPercent != 50 {
		t.Errorf("expected persisted losscut 50, got %d", again.LosscutPercent)
	}
}

func TestAccountRoundTrip(t *testing.T) {
	s := setupTestStore(t)

	if _, err := s.Account("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	acct := &domain.Account{
		ID:       "acct-1",
		Balance:  100_000_000, // 1,000,000.00
		Leverage: 100,
		Status:   domain.AccountStatusActive,
	}
	if err := s.SaveAccount(acct); err != nil {
		t.Fatalf("SaveAccount failed: %v", err)
	}

	loaded, err := s.Account("acct-1")
	if err != nil {
		t.Fatalf("Account failed: %v", err)
	}
	if loaded.Balance != acct.Balance || loaded.Leverage != 100 {
		t.Errorf("account did not round trip: %+v", loaded)
	}
}

func TestMarginedAccountsFilter(t *testing.T) {
	s := setupTestStore(t)

	seed := []*domain.Account{
		{ID: "flat", Balance: 1000, UsedMargin: 0, Status: domain.AccountStatusActive},
		{ID: "margined", Balance: 1000, UsedMargin: 500, Status: domain.AccountStatusActive},
		{ID: "suspended", Balance: 1000, UsedMargin: 500, Status: domain.AccountStatusSuspended},
	}
	for _, a := range seed {
		if err := s.SaveAccount(a); err != nil {
			t.Fatalf("SaveAccount failed: %v", err)
		}
	}

	accounts, err := s.MarginedAccounts()
	if err != nil {
		t.Fatalf("MarginedAccounts failed: %v", err)
	}
	if len(accounts) != 1 || accounts[0].ID != "margined" {
		t.Errorf("expected only the active margined account, got %+v", accounts)
	}
}

func TestTransactRollsBackOnError(t *testing.T) {
	s := setupTestStore(t)

	sentinel := errors.New("abort")
	err := s.Transact(func(tx *Store) error {
		if err := tx.SaveAccount(&domain.Account{ID: "acct-1", Status: domain.AccountStatusActive}); err != nil {
			return err
		}
		if err := tx.AppendTrade(&domain.Trade{ID: "t-1", AccountID: "acct-1", ExecutedAt: time.Now()}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	if _, err := s.Account("acct-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Error("account survived a rolled-back transaction")
	}
	trades, err := s.TradesByAccount("acct-1", 10)
	if err != nil {
		t.Fatalf("TradesByAccount failed: %v", err)
	}
	if len(trades) != 0 {
		t.Error("trade survived a rolled-back transaction")
	}
}

func TestPendingOrdersKeepArrivalPriority(t *testing.T) {
	s := setupTestStore(t)

	base := time.Now().Add(-time.Hour)
	px := fixed.Price(15000000)
	orders := []*domain.Order{
		{ID: "o-late", AccountID: "a", Type: domain.OrderTypeLimit, Side: domain.SideBuy,
			Price: &px, Status: domain.OrderStatusPending, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "o-early", AccountID: "a", Type: domain.OrderTypeLimit, Side: domain.SideBuy,
			Price: &px, Status: domain.OrderStatusPending, CreatedAt: base},
		{ID: "o-filled", AccountID: "a", Type: domain.OrderTypeLimit, Side: domain.SideBuy,
			Price: &px, Status: domain.OrderStatusFilled, CreatedAt: base.Add(time.Minute)},
	}
	for _, o := range orders {
		if err := s.SaveOrder(o); err != nil {
			t.Fatalf("SaveOrder failed: %v", err)
		}
	}

	pending, err := s.PendingOrders()
	if err != nil {
		t.Fatalf("PendingOrders failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending orders, got %d", len(pending))
	}
	if pending[0].ID != "o-early" || pending[1].ID != "o-late" {
		t.Errorf("orders out of arrival order: %s, %s", pending[0].ID, pending[1].ID)
	}
}

func TestOpenPositionsWithTriggers(t *testing.T) {
	s := setupTestStore(t)

	sl := fixed.Price(14900000)
	positions := []*domain.Position{
		{ID: "p-bare", AccountID: "a", Side: domain.SideBuy, Status: domain.PositionStatusOpen},
		{ID: "p-sl", AccountID: "a", Side: domain.SideBuy, StopLoss: &sl, Status: domain.PositionStatusOpen},
		{ID: "p-closed", AccountID: "a", Side: domain.SideBuy, StopLoss: &sl, Status: domain.PositionStatusClosed},
	}
	for _, p := range positions {
		if err := s.SavePosition(p); err != nil {
			t.Fatalf("SavePosition failed: %v", err)
		}
	}

	armed, err := s.OpenPositionsWithTriggers()
	if err != nil {
		t.Fatalf("OpenPositionsWithTriggers failed: %v", err)
	}
	if len(armed) != 1 || armed[0].ID != "p-sl" {
		t.Errorf("expected only the open armed position, got %+v", armed)
	}
}

func TestUpsertCandleIdempotent(t *testing.T) {
	s := setupTestStore(t)

	bucket := time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC)
	c := domain.NewCandle("USDJPY", "1m", bucket, 15000000)
	if err := s.UpsertCandle(c); err != nil {
		t.Fatalf("UpsertCandle failed: %v", err)
	}

	c.Apply(15001000)
	replay := &domain.Candle{
		Symbol: c.Symbol, Interval: c.Interval, BucketStart: c.BucketStart,
		Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, TickCount: c.TickCount,
	}
	if err := s.UpsertCandle(replay); err != nil {
		t.Fatalf("replayed UpsertCandle failed: %v", err)
	}

	candles, err := s.Candles("USDJPY", "1m", 10)
	if err != nil {
		t.Fatalf("Candles failed: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("expected a single bar after replay, got %d", len(candles))
	}
	if candles[0].Close != 15001000 || candles[0].TickCount != 2 {
		t.Errorf("replay did not update the bar: %+v", candles[0])
	}
}

func TestTradesByAccountNewestFirst(t *testing.T) {
	s := setupTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"t-1", "t-2", "t-3"} {
		trade := &domain.Trade{
			ID: id, AccountID: "a", Kind: domain.TradeKindOpen,
			ExecutedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.AppendTrade(trade); err != nil {
			t.Fatalf("AppendTrade failed: %v", err)
		}
	}

	trades, err := s.TradesByAccount("a", 2)
	if err != nil {
		t.Fatalf("TradesByAccount failed: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(trades))
	}
	if trades[0].ID != "t-3" || trades[1].ID != "t-2" {
		t.Errorf("expected newest first, got %s, %s", trades[0].ID, trades[1].ID)
	}
}

func TestEngineStateRoundTrip(t *testing.T) {
	s := setupTestStore(t)

	v, err := s.State("swap.last_accrued_day")
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if v != "" {
		t.Errorf("expected empty value for missing key, got %q", v)
	}

	if err := s.SetState("swap.last_accrued_day", "2026-08-28"); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}
	if err := s.SetState("swap.last_accrued_day", "2026-08-29"); err != nil {
		t.Fatalf("SetState overwrite failed: %v", err)
	}

	v, err = s.State("swap.last_accrued_day")
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if v != "2026-08-29" {
		t.Errorf("expected latest value, got %q", v)
	}
}
