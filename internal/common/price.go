package common

import "fmt"

// PriceScale is the number of decimal digits a Price carries. A Price of
// 1 represents 10^-PriceScale of a unit of quote currency.
const PriceScale = 4

const priceDivisor = 10_000

// Price is a fixed-point integer minor-unit price: value * 10^-PriceScale.
// Priority comparisons always use this representation; binary floats never
// enter a matching decision, per the no-floats design note. The session
// encoder writes a Price from its integer value; the session decoder reads
// the wire's decimal string with strconv.ParseFloat and scales it with
// NewPriceFromFloat. Float64 exists for analytics/telemetry output.
type Price int64

// ZeroPrice is the sentinel for "no price" (an empty side of the book).
const ZeroPrice Price = 0

// NewPriceFromFloat scales a decimal price into fixed-point. Used for
// operator-facing input (CLI, tests) and by the session decoder for every
// price it reads off the wire.
func NewPriceFromFloat(v float64) Price {
	return Price(v*priceDivisor + 0.5)
}

// Float64 renders the price as a float for analytics/logging. Never feed
// this back into a priority comparison.
func (p Price) Float64() float64 {
	return float64(p) / priceDivisor
}

func (p Price) String() string {
	return fmt.Sprintf("%d.%04d", int64(p)/priceDivisor, int64(p)%priceDivisor)
}

// Notional returns price * quantity as a scaled int64, sufficient for
// notional-limit checks without floating point.
func (p Price) Notional(qty uint64) int64 {
	return int64(p) * int64(qty)
}
