package service

import (
	"path/filepath"
	"testing"
	"time"

	"fxengine/internal/domain"
	"fxengine/internal/infra"
	"fxengine/internal/infra/storage"
	"fxengine/pkg/fixed"
)

func setupStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("storage.Open failed: %v", err)
	}
	return s
}

func seedAccount(t *testing.T, s *storage.Store, id string, balance fixed.Money, leverage int64) *domain.Account {
	t.Helper()
	acct := &domain.Account{
		ID:       id,
		Balance:  balance,
		Leverage: leverage,
		Status:   domain.AccountStatusActive,
	}
	if err := s.SaveAccount(acct); err != nil {
		t.Fatalf("SaveAccount failed: %v", err)
	}
	return acct
}

func freshQuote(bid, ask fixed.Price) domain.Quote {
	return domain.Quote{Symbol: "USDJPY", Bid: bid, Ask: ask, At: time.Now()}
}

func boardWith(q domain.Quote) *QuoteBoard {
	b := NewQuoteBoard("USDJPY")
	b.Set(q.Bid, q.Ask, true, true, q.At)
	return b
}

func newMetrics() *infra.Metrics { return &infra.Metrics{} }

func pxPtr(p fixed.Price) *fixed.Price { return &p }
