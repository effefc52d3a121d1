package engine

import "sync/atomic"

// Stats accumulates per-symbol counters using relaxed atomics, as the
// design notes require: no locks on the matching worker's hot path. Exact
// values are guaranteed accurate only after a quiescence barrier (the
// matching worker pausing); reads at any other time are best-effort.
type Stats struct {
	ordersProcessed  atomic.Uint64
	ordersMatched    atomic.Uint64
	ordersRejected   atomic.Uint64
	totalFills       atomic.Uint64
	totalVolume      atomic.Uint64
	totalNotional    atomic.Int64
	matchingOps      atomic.Uint64
	latencyEWMANanos atomic.Uint64
	maxLatencyNanos  atomic.Uint64
}

// StatsSnapshot is a value-typed, best-effort copy of Stats, safe to hand
// to a slow reader.
type StatsSnapshot struct {
	OrdersProcessed  uint64
	OrdersMatched    uint64
	OrdersRejected   uint64
	TotalFills       uint64
	TotalVolume      uint64
	TotalNotional    int64
	MatchingOps      uint64
	AvgMatchLatency  uint64 // ns, exponentially-weighted
	MaxMatchLatency  uint64 // ns
}

// emaAlpha weights the most recent latency sample; matches the exchange
// literature's typical choice of a fast-responding EWMA over a sliding
// window for a single live gauge.
const emaAlpha = 8 // 1/8 weight, i.e. shift-friendly smoothing factor

func (s *Stats) recordOrder(rejected bool) {
	s.ordersProcessed.Add(1)
	if rejected {
		s.ordersRejected.Add(1)
	}
}

func (s *Stats) recordFill(qty uint64, notional int64) {
	s.totalFills.Add(1)
	s.totalVolume.Add(qty)
	s.totalNotional.Add(notional)
}

func (s *Stats) recordMatch() {
	s.ordersMatched.Add(1)
}

func (s *Stats) recordLatency(latencyNanos uint64) {
	s.matchingOps.Add(1)
	for {
		cur := s.maxLatencyNanos.Load()
		if latencyNanos <= cur || s.maxLatencyNanos.CompareAndSwap(cur, latencyNanos) {
			break
		}
	}
	for {
		cur := s.latencyEWMANanos.Load()
		var next uint64
		if cur == 0 {
			next = latencyNanos
		} else if latencyNanos >= cur {
			next = cur + (latencyNanos-cur)/emaAlpha
		} else {
			next = cur - (cur-latencyNanos)/emaAlpha
		}
		if s.latencyEWMANanos.CompareAndSwap(cur, next) {
			break
		}
	}
}

func (s *Stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		OrdersProcessed: s.ordersProcessed.Load(),
		OrdersMatched:   s.ordersMatched.Load(),
		OrdersRejected:  s.ordersRejected.Load(),
		TotalFills:      s.totalFills.Load(),
		TotalVolume:     s.totalVolume.Load(),
		TotalNotional:   s.totalNotional.Load(),
		MatchingOps:     s.matchingOps.Load(),
		AvgMatchLatency: s.latencyEWMANanos.Load(),
		MaxMatchLatency: s.maxLatencyNanos.Load(),
	}
}
