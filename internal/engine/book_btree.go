package engine

import (
	"venuecore/internal/common"

	"github.com/tidwall/btree"
)

// PriceLevel is one price point in a btreeBook: a FIFO of resting orders
// plus their aggregated remaining quantity. Invariant: TotalQuantity equals
// the sum of Remaining() across Orders.
type PriceLevel struct {
	Price         common.Price
	TotalQuantity uint64
	Orders        []*common.Order
}

type levelTree = btree.BTreeG[*PriceLevel]

type location struct {
	side  common.Side
	price common.Price
}

// btreeBook is the default OrderBook backend: ordered price levels kept in
// two btrees (bids sorted high-to-low, asks low-to-high), the same
// structure the teacher's engine.OrderBook uses, generalised here to
// multiple order types and an explicit cancel index.
type btreeBook struct {
	symbol common.Symbol
	bids   *levelTree
	asks   *levelTree
	// index maps a live order id to its side and price, so Cancel can
	// locate its level with a single btree lookup instead of scanning
	// every level on that side.
	index map[uint64]location

	bestBidCache common.Price
	bestAskCache common.Price
	bidCacheOK   bool
	askCacheOK   bool
}

// NewBook constructs the default (ordered-map) OrderBook implementation.
func NewBook(symbol common.Symbol) Book {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price > b.Price // descending: best bid first
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price < b.Price // ascending: best ask first
	})
	return &btreeBook{
		symbol: symbol,
		bids:   bids,
		asks:   asks,
		index:  make(map[uint64]location),
	}
}

func (b *btreeBook) ladder(side common.Side) *levelTree {
	if side == common.Buy {
		return b.bids
	}
	return b.asks
}

func (b *btreeBook) invalidateCache(side common.Side) {
	if side == common.Buy {
		b.bidCacheOK = false
	} else {
		b.askCacheOK = false
	}
}

func (b *btreeBook) Add(o *common.Order) error {
	if _, exists := b.index[o.ID]; exists {
		return ErrAlreadyIndexed
	}
	ladder := b.ladder(o.Side)
	level, ok := ladder.Get(&PriceLevel{Price: o.Price})
	if ok {
		level.Orders = append(level.Orders, o)
		level.TotalQuantity += o.Remaining()
	} else {
		ladder.Set(&PriceLevel{
			Price:         o.Price,
			TotalQuantity: o.Remaining(),
			Orders:        []*common.Order{o},
		})
	}
	b.index[o.ID] = location{side: o.Side, price: o.Price}
	b.invalidateCache(o.Side)
	return nil
}

func (b *btreeBook) Cancel(id uint64) (*common.Order, bool) {
	loc, ok := b.index[id]
	if !ok {
		return nil, false
	}
	ladder := b.ladder(loc.side)

	level, ok := ladder.Get(&PriceLevel{Price: loc.price})
	if !ok {
		return nil, false
	}
	var found *common.Order
	for i, o := range level.Orders {
		if o.ID == id {
			found = o
			level.TotalQuantity -= o.Remaining()
			level.Orders = append(level.Orders[:i], level.Orders[i+1:]...)
			break
		}
	}
	if found == nil {
		return nil, false
	}
	if len(level.Orders) == 0 {
		ladder.Delete(level)
	}
	delete(b.index, id)
	b.invalidateCache(loc.side)
	return found, true
}

// Reduce decrements the level's aggregate quantity by qty without
// touching the FIFO; the order itself is mutated by the caller (the
// Matcher, via Order.Fill) and removed separately via DropFront/Cancel once its own remaining
// quantity reaches zero.
func (b *btreeBook) Reduce(id uint64, qty uint64) {
	loc, ok := b.index[id]
	if !ok {
		return
	}
	level, ok := b.ladder(loc.side).Get(&PriceLevel{Price: loc.price})
	if !ok {
		return
	}
	level.TotalQuantity -= qty
}

func (b *btreeBook) BestBid() common.Price {
	if b.bidCacheOK {
		return b.bestBidCache
	}
	level, ok := b.bids.Min()
	if !ok {
		b.bestBidCache = common.ZeroPrice
	} else {
		b.bestBidCache = level.Price
	}
	b.bidCacheOK = true
	return b.bestBidCache
}

func (b *btreeBook) BestAsk() common.Price {
	if b.askCacheOK {
		return b.bestAskCache
	}
	level, ok := b.asks.Min()
	if !ok {
		b.bestAskCache = common.ZeroPrice
	} else {
		b.bestAskCache = level.Price
	}
	b.askCacheOK = true
	return b.bestAskCache
}

func (b *btreeBook) PeekFront(side common.Side) (*common.Order, bool) {
	level, ok := b.ladder(side).Min()
	if !ok || len(level.Orders) == 0 {
		return nil, false
	}
	return level.Orders[0], true
}

func (b *btreeBook) DropFront(side common.Side) {
	ladder := b.ladder(side)
	level, ok := ladder.Min()
	if !ok || len(level.Orders) == 0 {
		return
	}
	front := level.Orders[0]
	level.TotalQuantity -= front.Remaining()
	level.Orders = level.Orders[1:]
	delete(b.index, front.ID)
	if len(level.Orders) == 0 {
		ladder.Delete(level)
	}
	b.invalidateCache(side)
}

func (b *btreeBook) OrdersAtBest(side common.Side) []*common.Order {
	level, ok := b.ladder(side).Min()
	if !ok {
		return nil
	}
	out := make([]*common.Order, len(level.Orders))
	copy(out, level.Orders)
	return out
}

func (b *btreeBook) Depth(side common.Side, k int) []DepthLevel {
	out := make([]DepthLevel, 0, k)
	b.ladder(side).Scan(func(level *PriceLevel) bool {
		if len(out) >= k {
			return false
		}
		out = append(out, DepthLevel{Price: level.Price, Quantity: level.TotalQuantity})
		return true
	})
	return out
}

func (b *btreeBook) Len() int {
	return len(b.index)
}
