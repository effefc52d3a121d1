package engine

import "venuecore/internal/common"

// DepthLevel is a snapshot of one side of one price level, returned by
// Depth(). It is a value copy safe to hand to a slow consumer.
type DepthLevel struct {
	Price    common.Price
	Quantity uint64
}

// Book is the price-level ladder with FIFO queues at each level that the
// matching engine mutates. Two implementations exist, selected by
// Options.UseIndexedBook:
//
//   - btreeBook: ordered price levels via github.com/tidwall/btree, FIFO as
//     a plain slice. Cancel is O(log P) to find the level, O(k) to splice
//     the order out of its level's slice.
//   - arenaBook: a pre-sized arena of order slots plus an intrusive
//     doubly-linked FIFO per level, giving O(1) cancel-by-id at the cost of
//     a fixed maximum order count reserved up front.
//
// Both satisfy the same invariants: best bid < best ask whenever both
// sides are non-empty; every live order_id resolves through the book's
// internal index to exactly one level containing exactly one entry with
// that id.
type Book interface {
	// Add rests a Limit-kind order at its price, appending to the level's
	// FIFO. Fails only if order.ID is already indexed (a programmer error
	// — a reject at the caller layer).
	Add(o *common.Order) error

	// Cancel removes a live order by id. Returns (order, true) if it was
	// found and removed, (nil, false) if the id is unknown.
	Cancel(id uint64) (*common.Order, bool)

	// Reduce decrements the aggregate quantity tracked at a resting
	// order's level by qty, reflecting a passive fill, without removing
	// the order from the book or its level's FIFO. The matching engine
	// calls this for every fill against a resting order before checking
	// whether the order's own remaining quantity has reached zero — in
	// which case DropFront/Cancel removes it separately. This is the
	// reduce(order_id, qty) operation spec.md §4.3 describes; it exists
	// so PriceLevel.TotalQuantity keeps tracking Σ remaining even though
	// the order itself is mutated outside the book (by the Matcher, via
	// Order.Fill).
	Reduce(id uint64, qty uint64)

	// BestBid/BestAsk return the best price on that side, or ZeroPrice if
	// the side is empty.
	BestBid() common.Price
	BestAsk() common.Price

	// PeekFront returns the order at the front of the best price level on
	// the given side, for the matching loop to inspect and mutate
	// in-place. Returns (nil, false) if the side is empty.
	PeekFront(side common.Side) (*common.Order, bool)

	// DropFront removes the (assumed fully filled) order at the front of
	// the best price level on the given side, deleting the level if it is
	// now empty.
	DropFront(side common.Side)

	// OrdersAtBest returns a snapshot, in FIFO order, of every order
	// resting at the best price level on the given side. This is the
	// slower path used by the non-default matching algorithms (ProRata,
	// SizePriority, TimePriority), which need visibility beyond the front
	// of the queue; PriceTime never calls it.
	OrdersAtBest(side common.Side) []*common.Order

	// Depth returns up to k levels from the given side, best price first.
	Depth(side common.Side, k int) []DepthLevel

	// Len reports the number of live orders resting in the book, for
	// invariant checks and tests.
	Len() int
}

var ErrAlreadyIndexed = bookError("order id already indexed")
var ErrUnknownOrder = bookError("unknown order id")

type bookError string

func (e bookError) Error() string { return string(e) }
