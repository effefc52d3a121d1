package engine

import "venuecore/internal/common"

// FillFunc is invoked once per match, in match order, with the passive
// order that was hit and the quantity/price of that specific match. The
// passive order's Filled field has already been advanced by the time this
// is called.
type FillFunc func(passive *common.Order, qty uint64, price common.Price)

// Matcher implements one matching algorithm against the opposite side of a
// book. PriceTime is the default and the only algorithm spec.md's core
// scenarios are written against; the other three exist because
// Options.MatchingAlgorithm names them as selectable, and are exercised by
// lighter tests.
type Matcher interface {
	// Match consumes resting liquidity opposite incoming.Side until
	// incoming is fully filled or no longer marketable. It calls onFill
	// for every match, in the order matches occur, and leaves incoming's
	// Filled field fully up to date.
	Match(book Book, incoming *common.Order, onFill FillFunc)
}

// marketable reports whether incoming can trade against the given
// opposite-side touch price. A Market order is always marketable as long
// as a touch price exists; Limit/IOC/FOK require the aggressor's limit to
// cross the touch.
func marketable(incoming *common.Order, touch common.Price) bool {
	if touch == common.ZeroPrice {
		return false
	}
	if incoming.Type == common.MarketOrder {
		return true
	}
	if incoming.Side == common.Buy {
		return incoming.Price >= touch
	}
	return incoming.Price <= touch
}

func touchPrice(book Book, side common.Side) common.Price {
	if side == common.Buy {
		return book.BestAsk()
	}
	return book.BestBid()
}

// PriceTimeMatcher implements price-time priority: best price first, then
// strict FIFO arrival order within a price level. This is the algorithm
// spec.md's scenarios S1-S5 are written against, and uses the book's O(1)
// front-of-queue fast path rather than the snapshot-based OrdersAtBest used
// by the other matchers.
type PriceTimeMatcher struct{}

func (PriceTimeMatcher) Match(book Book, incoming *common.Order, onFill FillFunc) {
	oppositeSide := incoming.Side.Opposite()
	for incoming.Remaining() > 0 {
		touch := touchPrice(book, oppositeSide)
		if !marketable(incoming, touch) {
			return
		}
		passive, ok := book.PeekFront(oppositeSide)
		if !ok {
			return
		}
		qty := min(incoming.Remaining(), passive.Remaining())
		passive.Fill(qty)
		incoming.Fill(qty)
		book.Reduce(passive.ID, qty)
		onFill(passive, qty, passive.Price)
		if passive.Remaining() == 0 {
			book.DropFront(oppositeSide)
		}
	}
}

// ProRataMatcher allocates the incoming order's quantity across every
// order resting at the touch, proportional to each order's remaining size,
// with a one-unit minimum per participant and any rounding remainder
// assigned to the last (latest-arrived) order. It only looks at the
// touch price level, never walking deeper into the book in a single pass —
// a simplification documented in SPEC_FULL.md/DESIGN.md alongside the other
// non-default algorithms.
type ProRataMatcher struct{}

func (ProRataMatcher) Match(book Book, incoming *common.Order, onFill FillFunc) {
	oppositeSide := incoming.Side.Opposite()
	for incoming.Remaining() > 0 {
		touch := touchPrice(book, oppositeSide)
		if !marketable(incoming, touch) {
			return
		}
		resting := book.OrdersAtBest(oppositeSide)
		if len(resting) == 0 {
			return
		}

		var levelQty uint64
		for _, o := range resting {
			levelQty += o.Remaining()
		}
		toAllocate := min(incoming.Remaining(), levelQty)
		remaining := toAllocate

		for i, passive := range resting {
			if remaining == 0 {
				break
			}
			var share uint64
			if i == len(resting)-1 {
				share = remaining // last participant absorbs rounding remainder
			} else {
				share = allocateShare(toAllocate, passive.Remaining(), levelQty)
				if share == 0 {
					share = 1
				}
				share = min(share, remaining, passive.Remaining())
			}
			if share == 0 {
				continue
			}
			passive.Fill(share)
			incoming.Fill(share)
			book.Reduce(passive.ID, share)
			onFill(passive, share, passive.Price)
			remaining -= share
			if passive.Remaining() == 0 {
				book.Cancel(passive.ID)
			}
		}
	}
}

func allocateShare(total, part, whole uint64) uint64 {
	if whole == 0 {
		return 0
	}
	return (total * part) / whole
}

// SizePriorityMatcher fills the largest resting order at the touch first,
// ties broken by arrival time.
type SizePriorityMatcher struct{}

func (SizePriorityMatcher) Match(book Book, incoming *common.Order, onFill FillFunc) {
	oppositeSide := incoming.Side.Opposite()
	for incoming.Remaining() > 0 {
		touch := touchPrice(book, oppositeSide)
		if !marketable(incoming, touch) {
			return
		}
		resting := book.OrdersAtBest(oppositeSide)
		if len(resting) == 0 {
			return
		}
		largest := resting[0]
		for _, o := range resting[1:] {
			if o.Remaining() > largest.Remaining() {
				largest = o
			}
		}
		qty := min(incoming.Remaining(), largest.Remaining())
		largest.Fill(qty)
		incoming.Fill(qty)
		book.Reduce(largest.ID, qty)
		onFill(largest, qty, largest.Price)
		if largest.Remaining() == 0 {
			book.Cancel(largest.ID)
		}
	}
}

// TimePriorityMatcher walks strictly by arrival order among marketable
// orders at the touch, identical to PriceTimeMatcher at a single price
// level (FIFO order already encodes arrival time); it is kept distinct so
// the configuration surface in spec.md is backed by a real, independently
// selectable implementation rather than an alias.
type TimePriorityMatcher struct{}

func (TimePriorityMatcher) Match(book Book, incoming *common.Order, onFill FillFunc) {
	oppositeSide := incoming.Side.Opposite()
	for incoming.Remaining() > 0 {
		touch := touchPrice(book, oppositeSide)
		if !marketable(incoming, touch) {
			return
		}
		resting := book.OrdersAtBest(oppositeSide)
		if len(resting) == 0 {
			return
		}
		for _, passive := range resting {
			if incoming.Remaining() == 0 {
				break
			}
			qty := min(incoming.Remaining(), passive.Remaining())
			if qty == 0 {
				continue
			}
			passive.Fill(qty)
			incoming.Fill(qty)
			book.Reduce(passive.ID, qty)
			onFill(passive, qty, passive.Price)
			if passive.Remaining() == 0 {
				book.Cancel(passive.ID)
			}
		}
	}
}
