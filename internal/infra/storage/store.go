// Package storage is the persistence collaborator: a GORM/SQLite store whose
// Transact method provides the all-or-nothing multi-entity commits every
// money-moving routine runs inside.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fxengine/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store wraps the database handle. Inside Transact, the same type carries
// the transaction handle so repository methods compose either way.
type Store struct {
	db *gorm.DB
}

// Open connects to the SQLite database, migrating all entities and seeding
// the default settings row. An empty path resolves to the user config dir.
func Open(path string) (*Store, error) {
	if path == "" {
		var err error
		path, err = defaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&domain.Account{},
		&domain.Position{},
		&domain.Order{},
		&domain.Trade{},
		&domain.Candle{},
		&domain.SystemSettings{},
		&domain.EngineState{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	s := &Store{db: db}
	if _, err := s.Settings(); err != nil {
		return nil, err
	}
	return s, nil
}

func defaultDBPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "fxengine", "data", "engine.db"), nil
}

// Transact runs fn inside one database transaction. Either every mutation in
// fn commits or none of them do.
func (s *Store) Transact(fn func(tx *Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// ======================================================================
// Accounts
// ======================================================================

// Account fetches one account by id.
func (s *Store) Account(id string) (*domain.Account, error) {
	var a domain.Account
	if err := s.db.First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// SaveAccount persists an account.
func (s *Store) SaveAccount(a *domain.Account) error {
	return s.db.Save(a).Error
}

// MarginedAccounts lists ACTIVE accounts carrying used margin; the losscut
// sweep's working set.
func (s *Store) MarginedAccounts() ([]domain.Account, error) {
	var accounts []domain.Account
	err := s.db.
		Where("status = ? AND used_margin <> 0", domain.AccountStatusActive).
		Find(&accounts).Error
	return accounts, err
}

// ======================================================================
// Orders
// ======================================================================

// Order fetches one order by id.
func (s *Store) Order(id string) (*domain.Order, error) {
	var o domain.Order
	if err := s.db.First(&o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// SaveOrder persists an order.
func (s *Store) SaveOrder(o *domain.Order) error {
	return s.db.Save(o).Error
}

// PendingOrders lists every resting order, oldest first so fills keep
// arrival priority.
func (s *Store) PendingOrders() ([]domain.Order, error) {
	var orders []domain.Order
	err := s.db.
		Where("status = ?", domain.OrderStatusPending).
		Order("created_at asc").
		Find(&orders).Error
	return orders, err
}

// ======================================================================
// Positions
// ======================================================================

// Position fetches one position by id.
func (s *Store) Position(id string) (*domain.Position, error) {
	var p domain.Position
	if err := s.db.First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// SavePosition persists a position.
func (s *Store) SavePosition(p *domain.Position) error {
	return s.db.Save(p).Error
}

// OpenPositions lists every open position.
func (s *Store) OpenPositions() ([]domain.Position, error) {
	var positions []domain.Position
	err := s.db.Where("status = ?", domain.PositionStatusOpen).Find(&positions).Error
	return positions, err
}

// OpenPositionsByAccount lists an account's open positions.
func (s *Store) OpenPositionsByAccount(accountID string) ([]domain.Position, error) {
	var positions []domain.Position
	err := s.db.
		Where("account_id = ? AND status = ?", accountID, domain.PositionStatusOpen).
		Find(&positions).Error
	return positions, err
}

// OpenPositionsWithTriggers lists open positions carrying a stop-loss or
// take-profit; the exit monitor's working set.
func (s *Store) OpenPositionsWithTriggers() ([]domain.Position, error) {
	var positions []domain.Position
	err := s.db.
		Where("status = ? AND (stop_loss IS NOT NULL OR take_profit IS NOT NULL)",
			domain.PositionStatusOpen).
		Find(&positions).Error
	return positions, err
}

// ======================================================================
// Trades
// ======================================================================

// AppendTrade inserts an execution record. Trades are append-only; there is
// deliberately no update path.
func (s *Store) AppendTrade(t *domain.Trade) error {
	return s.db.Create(t).Error
}

// TradesByAccount lists an account's executions, newest first.
func (s *Store) TradesByAccount(accountID string, limit int) ([]domain.Trade, error) {
	var trades []domain.Trade
	err := s.db.
		Where("account_id = ?", accountID).
		Order("executed_at desc").
		Limit(limit).
		Find(&trades).Error
	return trades, err
}

// ======================================================================
// Candles
// ======================================================================

// UpsertCandle persists a completed bar keyed by instrument, granularity and
// bucket start, so replayed ticks stay idempotent.
func (s *Store) UpsertCandle(c *domain.Candle) error {
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"}, {Name: "interval"}, {Name: "bucket_start"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"open", "high", "low", "close", "tick_count",
		}),
	}).Create(c).Error
}

// Candles lists bars for a symbol and interval, oldest first.
func (s *Store) Candles(symbol, interval string, limit int) ([]domain.Candle, error) {
	var candles []domain.Candle
	err := s.db.
		Where("symbol = ? AND interval = ?", symbol, interval).
		Order("bucket_start asc").
		Limit(limit).
		Find(&candles).Error
	return candles, err
}

// ======================================================================
// Settings / engine state
// ======================================================================

// Settings returns the broker settings row, seeding the default on first
// run.
func (s *Store) Settings() (*domain.SystemSettings, error) {
	var settings domain.SystemSettings
	err := s.db.First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings = *domain.DefaultSettings()
		if err := s.db.Create(&settings).Error; err != nil {
			return nil, err
		}
		return &settings, nil
	}
	return &settings, err
}

// SaveSettings persists the broker settings row.
func (s *Store) SaveSettings(settings *domain.SystemSettings) error {
	return s.db.Save(settings).Error
}

// State reads a durable engine key-value; missing keys return "".
func (s *Store) State(key string) (string, error) {
	var row domain.EngineState
	err := s.db.First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return row.Value, err
}

// SetState writes a durable engine key-value.
func (s *Store) SetState(key, value string) error {
	return s.db.Save(&domain.EngineState{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}).Error
}
