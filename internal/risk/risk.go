// Package risk implements the per-symbol and per-account position/notional
// ceilings the matching engine must consult before resting or matching any
// order. Stubbed in spec.md's own description ("stubbed but present; must
// be called for every order") — this is a real, swappable implementation
// of that stub, grounded on the pack's dedicated risk-checker modules.
package risk

import "venuecore/internal/common"

// Checker validates an order against risk limits before it is matched or
// rested. Check must not mutate the order. Commit is called once per order
// (and once per passive fill) after the matching engine has decided to
// accept the corresponding quantity, so the checker can update whatever
// ledger it enforces limits against.
type Checker interface {
	Check(o *common.Order) common.RejectReason // RejectNone if accepted
	Commit(o *common.Order, qty uint64)
}

// Limits configures the default Checker.
type Limits struct {
	PerSymbolPositionLimit uint64
	PerOrderNotionalLimit  int64
	MaxPrice               common.Price
	MaxQuantity            uint64
}

// position tracks net exposure per (symbol, account) pair.
type position struct {
	symbol  common.Symbol
	account string
}

// DefaultChecker enforces a per-order notional ceiling and a per-symbol net
// position ceiling per account. It is the sole writer of its own position
// ledger and is only ever called from the matching thread, so it needs no
// internal locking.
type DefaultChecker struct {
	limits    Limits
	positions map[position]int64 // signed net quantity; Buy adds, Sell subtracts
}

// NewDefaultChecker constructs a risk checker with the given limits.
func NewDefaultChecker(limits Limits) *DefaultChecker {
	return &DefaultChecker{
		limits:    limits,
		positions: make(map[position]int64),
	}
}

func (c *DefaultChecker) Check(o *common.Order) common.RejectReason {
	if o.Type != common.MarketOrder {
		if o.Price <= 0 || o.Price > c.limits.MaxPrice {
			return common.RejectInvalidPrice
		}
	}
	if o.Quantity == 0 || o.Quantity > c.limits.MaxQuantity {
		return common.RejectInvalidQuantity
	}
	if o.Type != common.MarketOrder {
		notional := o.Price.Notional(o.Quantity)
		if c.limits.PerOrderNotionalLimit > 0 && notional > c.limits.PerOrderNotionalLimit {
			return common.RejectNotionalExceeded
		}
	}

	if c.limits.PerSymbolPositionLimit == 0 {
		return common.RejectNone
	}
	key := position{symbol: o.Symbol, account: o.Owner}
	projected := c.positions[key]
	if o.Side == common.Buy {
		projected += int64(o.Quantity)
	} else {
		projected -= int64(o.Quantity)
	}
	if projected > int64(c.limits.PerSymbolPositionLimit) || projected < -int64(c.limits.PerSymbolPositionLimit) {
		return common.RejectPositionLimitExceeded
	}
	return common.RejectNone
}

// Commit records an accepted order's effect on the account's net position.
// Called by the matching engine only after an order clears Check and is
// either matched or rested (never for a rejected order).
func (c *DefaultChecker) Commit(o *common.Order, qty uint64) {
	if c.limits.PerSymbolPositionLimit == 0 {
		return
	}
	key := position{symbol: o.Symbol, account: o.Owner}
	if o.Side == common.Buy {
		c.positions[key] += int64(qty)
	} else {
		c.positions[key] -= int64(qty)
	}
}
