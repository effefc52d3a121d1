package engine

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"venuecore/internal/clock"
	"venuecore/internal/common"
	"venuecore/internal/config"
	"venuecore/internal/dispatch"
	"venuecore/internal/queue"
	"venuecore/internal/risk"
)

// MatchingEngine is the single writer of every OrderBook it owns. It is
// driven by one goroutine draining the IngressQueue; nothing else may ever
// call ProcessCommand concurrently with itself. This single-writer
// discipline is what lets Book implementations skip locking entirely.
type MatchingEngine struct {
	books   map[common.Symbol]Book
	matcher Matcher
	checker risk.Checker
	bus     *dispatch.Bus
	clock   *clock.Timebase
	log     zerolog.Logger

	useIndexedBook bool
	initialDepth   int

	stats map[common.Symbol]*Stats
}

// New constructs a MatchingEngine. Symbols must be known up front — the
// venue does not support listing an instrument after startup, matching
// spec.md's "symbol recognized" validation step, which rejects anything not
// named here.
func New(opts config.Options, symbols []common.Symbol, checker risk.Checker, bus *dispatch.Bus, tb *clock.Timebase, log zerolog.Logger) (*MatchingEngine, error) {
	matcher, err := selectMatcher(opts.MatchingAlgorithm)
	if err != nil {
		return nil, err
	}

	e := &MatchingEngine{
		books:          make(map[common.Symbol]Book, len(symbols)),
		matcher:        matcher,
		checker:        checker,
		bus:            bus,
		clock:          tb,
		log:            log.With().Str("component", "engine").Logger(),
		useIndexedBook: opts.UseIndexedBook,
		initialDepth:   1024,
		stats:          make(map[common.Symbol]*Stats, len(symbols)),
	}
	for _, sym := range symbols {
		e.books[sym] = e.newBook(sym)
		e.stats[sym] = &Stats{}
	}
	return e, nil
}

func selectMatcher(algo config.MatchingAlgorithm) (Matcher, error) {
	switch algo {
	case config.PriceTime, "":
		return PriceTimeMatcher{}, nil
	case config.ProRata:
		return ProRataMatcher{}, nil
	case config.SizePriority:
		return SizePriorityMatcher{}, nil
	case config.TimePriority:
		return TimePriorityMatcher{}, nil
	default:
		return nil, fmt.Errorf("engine: unknown matching algorithm %q", algo)
	}
}

func (e *MatchingEngine) newBook(sym common.Symbol) Book {
	if e.useIndexedBook {
		return NewIndexedBook(sym, e.initialDepth)
	}
	return NewBook(sym)
}

// Stats returns a best-effort snapshot of a symbol's counters, or the zero
// value if the symbol is unknown.
func (e *MatchingEngine) Stats(sym common.Symbol) StatsSnapshot {
	s, ok := e.stats[sym]
	if !ok {
		return StatsSnapshot{}
	}
	return s.snapshot()
}

// Book exposes the OrderBook for a symbol, for read-only depth queries from
// market-data listeners. Callers must not mutate the returned Book.
func (e *MatchingEngine) Book(sym common.Symbol) (Book, bool) {
	b, ok := e.books[sym]
	return b, ok
}

// ProcessCommand runs one ingress command through the full pipeline:
// validate, risk-check, match, rest, emit, record. It never panics on bad
// input — every rejection path produces an ExecutionReport with a
// RejectReason and returns normally. A non-nil error return indicates an
// invariant violation severe enough that the caller (the supervising
// goroutine) should treat the engine as unsafe to continue running.
func (e *MatchingEngine) ProcessCommand(cmd queue.Command) error {
	start := e.clock.Now()
	switch cmd.Type {
	case queue.CommandSubmit:
		return e.submit(&cmd.Order, start)
	case queue.CommandCancel:
		return e.cancel(cmd.Symbol, cmd.OrderID, start)
	case queue.CommandModify:
		return e.modify(cmd.Symbol, cmd.OrderID, cmd.NewPrice, cmd.NewQuantity, start)
	default:
		return fmt.Errorf("engine: unknown command type %d", cmd.Type)
	}
}

func (e *MatchingEngine) submit(o *common.Order, start int64) error {
	o.Arrival = start
	book, ok := e.books[o.Symbol]
	if !ok {
		e.rejectAndEmit(o, common.RejectInvalidSymbol, start)
		return nil
	}
	stats := e.stats[o.Symbol]

	if reason := e.validate(o); reason != common.RejectNone {
		e.rejectAndEmit(o, reason, start)
		stats.recordOrder(true)
		return nil
	}
	if reason := e.checker.Check(o); reason != common.RejectNone {
		e.rejectAndEmit(o, reason, start)
		stats.recordOrder(true)
		return nil
	}

	// Market orders with nothing to trade against are rejected outright:
	// there is no price to rest them at.
	if o.Type == common.MarketOrder && touchPrice(book, o.Side) == common.ZeroPrice {
		e.rejectAndEmit(o, common.RejectInsufficientLiquidity, start)
		stats.recordOrder(true)
		return nil
	}

	// Fill-or-Kill is an all-or-nothing preflight: compute the quantity
	// marketable against the current book state and refuse to match at all
	// unless it covers the full order. No partial fill is ever emitted for
	// a rejected FOK order.
	if o.Type == common.FOK {
		if !e.fokSatisfiable(book, o) {
			e.rejectAndEmit(o, common.RejectInsufficientLiquidity, start)
			stats.recordOrder(true)
			return nil
		}
	}

	var fills []common.Fill
	e.matcher.Match(book, o, func(passive *common.Order, qty uint64, price common.Price) {
		fill := common.Fill{
			AggressiveID: o.ID,
			PassiveID:    passive.ID,
			Symbol:       o.Symbol,
			Price:        price,
			Quantity:     qty,
			Timestamp:    e.clock.Now(),
		}
		fills = append(fills, fill)
		stats.recordFill(qty, price.Notional(qty))
		e.checker.Commit(passive, qty)
		e.bus.DispatchFill(fill)

		if passive.IsDone() {
			e.emit(passive, nil, start)
		}
	})

	switch {
	case o.Remaining() == 0:
		// Status already set to Filled by the last Fill() call inside Match.
	case o.Type == common.LimitOrder:
		if err := book.Add(o); err != nil {
			return fmt.Errorf("engine: resting order %d: %w", o.ID, err)
		}
		if o.Filled == 0 {
			o.Status = common.Pending
		}
	default:
		// Market, IOC, and FOK orders never rest: any residual quantity is
		// cancelled rather than left on the book.
		o.Status = common.Cancelled
	}

	e.checker.Commit(o, o.Filled)
	e.emit(o, fills, start)
	if len(fills) > 0 {
		stats.recordMatch()
	}
	stats.recordOrder(false)
	stats.recordLatency(uint64(e.clock.Now() - start))
	return nil
}

// fokSatisfiable reports whether the full remaining quantity of o could be
// matched against book's current resting liquidity, without mutating
// either. It sums the aggregate quantity of every marketable level on the
// opposite side, best price first, whichever matcher is configured.
func (e *MatchingEngine) fokSatisfiable(book Book, o *common.Order) bool {
	oppositeSide := o.Side.Opposite()
	var available uint64
	for _, level := range book.Depth(oppositeSide, 1<<20) {
		if !marketable(o, level.Price) {
			break
		}
		available += level.Quantity
		if available >= o.Remaining() {
			return true
		}
	}
	return false
}

func (e *MatchingEngine) cancel(sym common.Symbol, orderID uint64, start int64) error {
	book, ok := e.books[sym]
	if !ok {
		e.bus.DispatchError(dispatch.EngineError{Symbol: sym, OrderID: orderID, Message: "cancel: unknown symbol"})
		return nil
	}
	order, ok := book.Cancel(orderID)
	if !ok {
		e.bus.DispatchError(dispatch.EngineError{Symbol: sym, OrderID: orderID, Message: "cancel: unknown order id"})
		return nil
	}
	order.Status = common.Cancelled
	e.emit(order, nil, start)
	return nil
}

// modify implements Modify as cancel-plus-resubmit at a fresh price and/or
// quantity: the order loses its place in time priority, surfacing as a new
// Arrival timestamp and unchanged id. This mirrors FIX-style order-cancel-
// replace semantics rather than in-place mutation, matching the venue's
// decision that a modified order is a new arrival for priority purposes.
func (e *MatchingEngine) modify(sym common.Symbol, orderID uint64, newPrice common.Price, newQty uint64, start int64) error {
	book, ok := e.books[sym]
	if !ok {
		e.bus.DispatchError(dispatch.EngineError{Symbol: sym, OrderID: orderID, Message: "modify: unknown symbol"})
		return nil
	}
	existing, ok := book.Cancel(orderID)
	if !ok {
		e.bus.DispatchError(dispatch.EngineError{Symbol: sym, OrderID: orderID, Message: "modify: unknown order id"})
		return nil
	}
	replacement := *existing
	replacement.Price = newPrice
	replacement.Quantity = newQty
	replacement.Filled = 0
	replacement.Status = common.Pending
	return e.submit(&replacement, start)
}

func (e *MatchingEngine) validate(o *common.Order) common.RejectReason {
	if o.Type != common.MarketOrder && o.Price <= common.ZeroPrice {
		return common.RejectInvalidPrice
	}
	if o.Quantity == 0 {
		return common.RejectInvalidQuantity
	}
	return common.RejectNone
}

func (e *MatchingEngine) rejectAndEmit(o *common.Order, reason common.RejectReason, start int64) {
	o.Status = common.Rejected
	o.Reason = reason
	e.emit(o, nil, start)
}

func (e *MatchingEngine) emit(o *common.Order, fills []common.Fill, start int64) {
	report := common.ExecutionReport{
		OrderID:      o.ID,
		Symbol:       o.Symbol,
		Side:         o.Side,
		Status:       o.Status,
		Reason:       o.Reason,
		OriginalQty:  o.Quantity,
		FilledQty:    o.Filled,
		RemainingQty: o.Remaining(),
		AvgPrice:     common.AvgFillPrice(fills),
		Fills:        fills,
		ExecutionID:  uuid.NewString(),
		Timestamp:    e.clock.Now(),
	}
	e.bus.DispatchExecution(report)
}
