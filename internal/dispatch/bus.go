// Package dispatch fans execution reports, fills, and engine errors out to
// registered listeners synchronously on the matching thread, the way
// spec.md's DispatchBus requires: delivery happens inline with the command
// that produced the event, never on a separate goroutine, so a listener
// observes events in exactly matching order with no reordering risk.
package dispatch

import (
	"github.com/rs/zerolog"

	"venuecore/internal/common"
)

// Listener receives dispatch events. Implementations must not block; the
// matching thread calls every registered listener in registration order for
// every event, and a slow listener directly slows matching. A listener that
// returns an error has that error counted and swallowed — dispatch never
// retries and never lets a listener's failure affect engine state.
type Listener interface {
	OnExecution(report common.ExecutionReport) error
	OnFill(fill common.Fill) error
	OnError(err EngineError) error
}

// EngineError describes an invariant violation or other fatal-class engine
// condition raised outside the normal reject path.
type EngineError struct {
	Symbol  common.Symbol
	OrderID uint64
	Message string
}

// Bus holds the ordered list of registered listeners and the counters of
// listener failures, split out by event kind so an operator can tell which
// listener category is unhealthy without per-listener plumbing.
type Bus struct {
	listeners []Listener
	log       zerolog.Logger

	executionErrors uint64
	fillErrors      uint64
	reportErrors    uint64
}

// New constructs an empty Bus. Listeners are added with Register before the
// engine starts processing commands; Bus is not safe to mutate concurrently
// with dispatch (registration happens at startup, before the matching
// goroutine that calls Dispatch* is started).
func New(log zerolog.Logger) *Bus {
	return &Bus{log: log.With().Str("component", "dispatch").Logger()}
}

// Register appends a listener. Order of registration is the order in which
// listeners receive every event.
func (b *Bus) Register(l Listener) {
	b.listeners = append(b.listeners, l)
}

// DispatchExecution delivers an execution report to every listener,
// counting but not propagating failures.
func (b *Bus) DispatchExecution(report common.ExecutionReport) {
	for _, l := range b.listeners {
		if err := l.OnExecution(report); err != nil {
			b.executionErrors++
			b.log.Warn().Err(err).Uint64("order_id", report.OrderID).Msg("execution listener failed")
		}
	}
}

// DispatchFill delivers one fill to every listener.
func (b *Bus) DispatchFill(fill common.Fill) {
	for _, l := range b.listeners {
		if err := l.OnFill(fill); err != nil {
			b.fillErrors++
			b.log.Warn().Err(err).Uint64("aggressive_id", fill.AggressiveID).Msg("fill listener failed")
		}
	}
}

// DispatchError delivers an engine error event to every listener.
func (b *Bus) DispatchError(ee EngineError) {
	for _, l := range b.listeners {
		if err := l.OnError(ee); err != nil {
			b.reportErrors++
			b.log.Warn().Err(err).Str("reason", ee.Message).Msg("error listener failed")
		}
	}
}

// FailureCounts reports the cumulative number of listener failures per
// event kind, for a metrics scrape or operator diagnostic.
func (b *Bus) FailureCounts() (execution, fill, errorEvents uint64) {
	return b.executionErrors, b.fillErrors, b.reportErrors
}
