// Package fixed implements the scaled-integer arithmetic used for every
// monetary value in the engine. Prices carry 5 decimal digits, lot sizes 3,
// cash amounts 2. Values enter as decimals at the API boundary, are rounded
// once to their scale, and stay exact integers from then on. No float64
// appears in any monetary path.
package fixed

import (
	"github.com/shopspring/decimal"
)

// Price is an instrument price scaled by 1e5 (188.12340 == 18812340).
type Price int64

// Lots is a position size scaled by 1e3 (0.01 lot == 10).
type Lots int64

// Money is a cash amount in the settlement currency scaled by 1e2.
type Money int64

// Points is a spread markup in tenths of a pip. With a 0.0001 pip and a
// 5-digit price scale, one point equals exactly one Price unit.
type Points int64

const (
	PriceScale = 100_000
	LotScale   = 1_000
	MoneyScale = 100

	// ContractSize is the notional in base-currency units of 1.000 lot.
	ContractSize = 100_000

	priceDecimals = 5
	lotDecimals   = 3
	moneyDecimals = 2
)

// PriceFromDecimal converts an external decimal price, rounding half away
// from zero to the price scale.
func PriceFromDecimal(d decimal.Decimal) Price {
	return Price(d.Shift(priceDecimals).Round(0).IntPart())
}

// PriceFromString parses a decimal string into a Price.
func PriceFromString(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return PriceFromDecimal(d), nil
}

// Decimal renders the price back to its external decimal representation.
func (p Price) Decimal() decimal.Decimal {
	return decimal.New(int64(p), -priceDecimals)
}

func (p Price) String() string { return p.Decimal().StringFixed(priceDecimals) }

// AddPoints widens a price by a spread markup.
func (p Price) AddPoints(pts Points) Price { return p + Price(pts) }

// SubPoints narrows a price by a spread markup.
func (p Price) SubPoints(pts Points) Price { return p - Price(pts) }

// LotsFromDecimal converts an external decimal lot size, rounding half away
// from zero to 0.001-lot granularity.
func LotsFromDecimal(d decimal.Decimal) Lots {
	return Lots(d.Shift(lotDecimals).Round(0).IntPart())
}

// LotsFromString parses a decimal string into Lots.
func LotsFromString(s string) (Lots, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return LotsFromDecimal(d), nil
}

func (l Lots) Decimal() decimal.Decimal { return decimal.New(int64(l), -lotDecimals) }

func (l Lots) String() string { return l.Decimal().StringFixed(lotDecimals) }

// Units returns the notional size in whole base-currency units. Exact for
// every multiple of 0.001 lot since ContractSize/LotScale == 100.
func (l Lots) Units() int64 { return int64(l) * (ContractSize / LotScale) }

// MoneyFromDecimal converts an external decimal amount, rounding half away
// from zero to cents.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money(d.Shift(moneyDecimals).Round(0).IntPart())
}

// MoneyFromString parses a decimal string into Money.
func MoneyFromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return MoneyFromDecimal(d), nil
}

func (m Money) Decimal() decimal.Decimal { return decimal.New(int64(m), -moneyDecimals) }

func (m Money) String() string { return m.Decimal().StringFixed(moneyDecimals) }

// Margin computes the cash reserved for a position: qty * price / leverage
// under the scale conventions, truncating toward zero. The concrete anchor:
// 0.10 lot at 150.000 with leverage 100 reserves exactly 15,000.00.
func Margin(qty Lots, price Price, leverage int64) Money {
	if leverage <= 0 {
		return 0
	}
	// units*price is a value at Price scale; dividing by
	// PriceScale/MoneyScale lands on Money scale.
	return Money(qty.Units() * int64(price) / (leverage * (PriceScale / MoneyScale)))
}

// PnL computes the realized or unrealized profit of a position at a close
// price: (close-entry)*qty for a long, negated for a short, truncated to
// cents.
func PnL(entry, close Price, qty Lots, long bool) Money {
	diff := int64(close) - int64(entry)
	if !long {
		diff = -diff
	}
	// diff * units / (PriceScale/MoneyScale); units == qty*100, so this
	// reduces to diff*qty/10 which keeps intermediates well inside int64.
	return Money(diff * int64(qty) / (LotScale * PriceScale / ContractSize / MoneyScale))
}

// SwapAmount computes an overnight financing accrual: lots * per-lot rate *
// day multiplier, truncated to cents.
func SwapAmount(qty Lots, ratePerLot Money, days int64) Money {
	return Money(int64(qty) * int64(ratePerLot) * days / LotScale)
}

// CommissionFor computes the per-fill commission for an order size.
func CommissionFor(qty Lots, perLot Money) Money {
	return Money(int64(qty) * int64(perLot) / LotScale)
}

// MarginLevelPercent returns equity/used*100 as a Money-scaled percentage.
// ok is false when used margin is zero: the level is unbounded and must
// never trigger a liquidation.
func MarginLevelPercent(equity, used Money) (level Money, ok bool) {
	if used == 0 {
		return 0, false
	}
	return Money(int64(equity) * 100 * MoneyScale / int64(used)), true
}

// Mid returns the midpoint of a bid/ask pair, truncating toward zero.
func Mid(bid, ask Price) Price { return (bid + ask) / 2 }
