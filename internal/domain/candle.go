package domain

import (
	"time"

	"fxengine/pkg/fixed"
)

// Candle is a fixed-interval OHLC bar built from mid-price ticks. TickCount
// stands in for volume since the feed carries no trade sizes.
type Candle struct {
	ID          uint        `gorm:"primaryKey" json:"-"`
	Symbol      string      `gorm:"uniqueIndex:idx_candle_bucket" json:"symbol"`
	Interval    string      `gorm:"uniqueIndex:idx_candle_bucket" json:"interval"`
	BucketStart time.Time   `gorm:"uniqueIndex:idx_candle_bucket" json:"bucket_start"`
	Open        fixed.Price `json:"open"`
	High        fixed.Price `json:"high"`
	Low         fixed.Price `json:"low"`
	Close       fixed.Price `json:"close"`
	TickCount   int64       `json:"tick_count"`
}

// Apply folds one mid-price tick into the bar.
func (c *Candle) Apply(mid fixed.Price) {
	if mid > c.High {
		c.High = mid
	}
	if mid < c.Low {
		c.Low = mid
	}
	c.Close = mid
	c.TickCount++
}

// NewCandle opens a bar from its first tick.
func NewCandle(symbol, interval string, bucket time.Time, mid fixed.Price) *Candle {
	return &Candle{
		Symbol:      symbol,
		Interval:    interval,
		BucketStart: bucket,
		Open:        mid,
		High:        mid,
		Low:         mid,
		Close:       mid,
		TickCount:   1,
	}
}
