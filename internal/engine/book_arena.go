package engine

import (
	"venuecore/internal/common"

	"github.com/tidwall/btree"
)

// arenaSlot is one resting order, stored in a pre-allocated arena and
// linked into its price level's FIFO via intrusive prev/next indices.
// Cancel-by-id unlinks a slot in O(1) regardless of its position in the
// FIFO, unlike the slice-splice the btree-backed book performs.
type arenaSlot struct {
	order      *common.Order
	level      *arenaLevel
	prev, next int32 // arena indices; -1 marks list terminus
	inUse      bool
}

type arenaLevel struct {
	price         common.Price
	totalQuantity uint64
	head, tail    int32 // arena indices, -1 if empty
}

// arenaBook is the "use_indexed_book=true" OrderBook backend: a
// freelist-backed arena of order slots with an intrusive doubly-linked FIFO
// per level, grounded on the pack's lowest-latency matching engines (static
// arenas instead of per-order heap allocation, cancel by unlinking rather
// than by slice compaction). Price-level ordering still uses a btree — the
// arena's contribution is O(1) cancel-by-id, not price ordering.
type arenaBook struct {
	symbol common.Symbol
	bids   *btree.BTreeG[*arenaLevel]
	asks   *btree.BTreeG[*arenaLevel]

	slots []arenaSlot
	free  []int32 // stack of free arena indices

	index map[uint64]int32 // order id -> arena index

	bestBidCache common.Price
	bestAskCache common.Price
	bidCacheOK   bool
	askCacheOK   bool
}

// NewIndexedBook constructs the arena-backed OrderBook implementation.
func NewIndexedBook(symbol common.Symbol, initialCapacity int) Book {
	if initialCapacity <= 0 {
		initialCapacity = 1024
	}
	bids := btree.NewBTreeG(func(a, b *arenaLevel) bool { return a.price > b.price })
	asks := btree.NewBTreeG(func(a, b *arenaLevel) bool { return a.price < b.price })
	return &arenaBook{
		symbol: symbol,
		bids:   bids,
		asks:   asks,
		slots:  make([]arenaSlot, initialCapacity),
		free:   freelistOf(initialCapacity),
		index:  make(map[uint64]int32, initialCapacity),
	}
}

func freelistOf(n int) []int32 {
	free := make([]int32, n)
	for i := 0; i < n; i++ {
		// Push in reverse so index 0 pops first, matching arena growth order.
		free[i] = int32(n - 1 - i)
	}
	return free
}

func (b *arenaBook) ladder(side common.Side) *btree.BTreeG[*arenaLevel] {
	if side == common.Buy {
		return b.bids
	}
	return b.asks
}

func (b *arenaBook) invalidateCache(side common.Side) {
	if side == common.Buy {
		b.bidCacheOK = false
	} else {
		b.askCacheOK = false
	}
}

// alloc returns a free arena index, growing the arena if exhausted.
func (b *arenaBook) alloc() int32 {
	if len(b.free) == 0 {
		old := len(b.slots)
		grown := make([]arenaSlot, old*2)
		copy(grown, b.slots)
		b.slots = grown
		for i := old * 2; i > old; i-- {
			b.free = append(b.free, int32(i-1))
		}
	}
	n := len(b.free) - 1
	idx := b.free[n]
	b.free = b.free[:n]
	return idx
}

func (b *arenaBook) release(idx int32) {
	b.slots[idx] = arenaSlot{}
	b.free = append(b.free, idx)
}

func (b *arenaBook) Add(o *common.Order) error {
	if _, exists := b.index[o.ID]; exists {
		return ErrAlreadyIndexed
	}
	ladder := b.ladder(o.Side)
	level, ok := ladder.Get(&arenaLevel{price: o.Price})
	if !ok {
		level = &arenaLevel{price: o.Price, head: -1, tail: -1}
		ladder.Set(level)
	}

	idx := b.alloc()
	b.slots[idx] = arenaSlot{order: o, level: level, prev: level.tail, next: -1, inUse: true}
	if level.tail == -1 {
		level.head = idx
	} else {
		b.slots[level.tail].next = idx
	}
	level.tail = idx
	level.totalQuantity += o.Remaining()

	b.index[o.ID] = idx
	b.invalidateCache(o.Side)
	return nil
}

// unlink removes the slot at idx from its level's FIFO in O(1) and
// releases it back to the freelist. Deletes the level from its ladder if
// it is now empty.
func (b *arenaBook) unlink(idx int32, side common.Side) {
	s := &b.slots[idx]
	level := s.level
	level.totalQuantity -= s.order.Remaining()

	if s.prev != -1 {
		b.slots[s.prev].next = s.next
	} else {
		level.head = s.next
	}
	if s.next != -1 {
		b.slots[s.next].prev = s.prev
	} else {
		level.tail = s.prev
	}

	if level.head == -1 {
		b.ladder(side).Delete(level)
	}
	delete(b.index, s.order.ID)
	b.release(idx)
	b.invalidateCache(side)
}

func (b *arenaBook) Cancel(id uint64) (*common.Order, bool) {
	idx, ok := b.index[id]
	if !ok {
		return nil, false
	}
	order := b.slots[idx].order
	side := order.Side
	b.unlink(idx, side)
	return order, true
}

// Reduce decrements the level's aggregate quantity by qty without
// unlinking the slot; the order itself is mutated by the caller (the
// Matcher, via Order.Fill) and removed separately via DropFront/Cancel once its own remaining
// quantity reaches zero.
func (b *arenaBook) Reduce(id uint64, qty uint64) {
	idx, ok := b.index[id]
	if !ok {
		return
	}
	b.slots[idx].level.totalQuantity -= qty
}

func (b *arenaBook) BestBid() common.Price {
	if b.bidCacheOK {
		return b.bestBidCache
	}
	level, ok := b.bids.Min()
	if !ok {
		b.bestBidCache = common.ZeroPrice
	} else {
		b.bestBidCache = level.price
	}
	b.bidCacheOK = true
	return b.bestBidCache
}

func (b *arenaBook) BestAsk() common.Price {
	if b.askCacheOK {
		return b.bestAskCache
	}
	level, ok := b.asks.Min()
	if !ok {
		b.bestAskCache = common.ZeroPrice
	} else {
		b.bestAskCache = level.price
	}
	b.askCacheOK = true
	return b.bestAskCache
}

func (b *arenaBook) PeekFront(side common.Side) (*common.Order, bool) {
	level, ok := b.ladder(side).Min()
	if !ok || level.head == -1 {
		return nil, false
	}
	return b.slots[level.head].order, true
}

func (b *arenaBook) DropFront(side common.Side) {
	level, ok := b.ladder(side).Min()
	if !ok || level.head == -1 {
		return
	}
	b.unlink(level.head, side)
}

func (b *arenaBook) OrdersAtBest(side common.Side) []*common.Order {
	level, ok := b.ladder(side).Min()
	if !ok {
		return nil
	}
	var out []*common.Order
	for idx := level.head; idx != -1; idx = b.slots[idx].next {
		out = append(out, b.slots[idx].order)
	}
	return out
}

func (b *arenaBook) Depth(side common.Side, k int) []DepthLevel {
	out := make([]DepthLevel, 0, k)
	b.ladder(side).Scan(func(level *arenaLevel) bool {
		if len(out) >= k {
			return false
		}
		out = append(out, DepthLevel{Price: level.price, Quantity: level.totalQuantity})
		return true
	})
	return out
}

func (b *arenaBook) Len() int {
	return len(b.index)
}
