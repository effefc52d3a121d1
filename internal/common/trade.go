package common

import "fmt"

// Fill records one match between an aggressive and a passive order. The
// aggressive order's limit price has been proven marketable against the
// passive order's price at match time; Price is always the passive
// (resting) side's price — the aggressor never receives price improvement
// beyond what the book offered.
type Fill struct {
	AggressiveID uint64
	PassiveID    uint64
	Symbol       Symbol
	Price        Price
	Quantity     uint64
	Timestamp    int64 // monotonic ns
}

func (f Fill) String() string {
	return fmt.Sprintf("Fill{agg=%d pass=%d sym=%s price=%s qty=%d}",
		f.AggressiveID, f.PassiveID, f.Symbol, f.Price, f.Quantity)
}

// ExecutionReport summarises the outcome of processing one order: its
// final status, the fills it produced (in match order), and the
// volume-weighted average fill price.
type ExecutionReport struct {
	OrderID      uint64
	Symbol       Symbol
	Side         Side
	Status       OrderStatus
	Reason       RejectReason
	OriginalQty  uint64
	FilledQty    uint64
	RemainingQty uint64
	AvgPrice     Price
	Fills        []Fill
	ExecutionID  string
	Timestamp    int64 // monotonic ns
}

func (r ExecutionReport) String() string {
	return fmt.Sprintf("ExecutionReport{order=%d sym=%s side=%s status=%s filled=%d/%d avg=%s fills=%d}",
		r.OrderID, r.Symbol, r.Side, r.Status, r.FilledQty, r.OriginalQty, r.AvgPrice, len(r.Fills))
}

// AvgFillPrice computes the volume-weighted average price across fills.
// Returns ZeroPrice if fills is empty.
func AvgFillPrice(fills []Fill) Price {
	if len(fills) == 0 {
		return ZeroPrice
	}
	var num int64
	var qty uint64
	for _, f := range fills {
		num += f.Price.Notional(f.Quantity)
		qty += f.Quantity
	}
	if qty == 0 {
		return ZeroPrice
	}
	return Price(num / int64(qty))
}
