package domain

import (
	"time"

	"fxengine/pkg/fixed"
)

// SystemSettings is the single broker-level configuration row. SpreadMarkup
// is in tenths of a pip, LosscutPercent in whole percent, swap rates in cash
// per 1.000 lot per day.
type SystemSettings struct {
	ID               uint         `gorm:"primaryKey" json:"-"`
	SpreadMarkup     fixed.Points `json:"spread_markup"`
	CommissionPerLot fixed.Money  `json:"commission_per_lot"`
	LosscutPercent   int64        `json:"losscut_percent"`
	SwapLongPerLot   fixed.Money  `json:"swap_long_per_lot"`
	SwapShortPerLot  fixed.Money  `json:"swap_short_per_lot"`
	SwapHour         int          `json:"swap_hour"`
	SwapRollWeekday  time.Weekday `json:"swap_roll_weekday"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// SwapRate picks the per-lot daily financing rate for a position side.
func (s *SystemSettings) SwapRate(side string) fixed.Money {
	if side == SideBuy {
		return s.SwapLongPerLot
	}
	return s.SwapShortPerLot
}

// DefaultSettings matches a conservative retail FX setup: 20% losscut,
// Wednesday triple roll, 22:00 swap cut.
func DefaultSettings() *SystemSettings {
	return &SystemSettings{
		SpreadMarkup:     2,
		CommissionPerLot: 0,
		LosscutPercent:   20,
		SwapLongPerLot:   -50,  // -0.50 per lot per day
		SwapShortPerLot:  -120, // -1.20 per lot per day
		SwapHour:         22,
		SwapRollWeekday:  time.Wednesday,
	}
}

// EngineState is a key-value row for durable scheduler state, e.g. the swap
// accrual daily gate.
type EngineState struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
