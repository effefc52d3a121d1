package engine

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venuecore/internal/clock"
	"venuecore/internal/common"
	"venuecore/internal/config"
	"venuecore/internal/dispatch"
	"venuecore/internal/queue"
	"venuecore/internal/risk"
)

type recordingListener struct {
	executions []common.ExecutionReport
	fills      []common.Fill
	errors     []dispatch.EngineError
}

func (r *recordingListener) OnExecution(report common.ExecutionReport) error {
	r.executions = append(r.executions, report)
	return nil
}

func (r *recordingListener) OnFill(fill common.Fill) error {
	r.fills = append(r.fills, fill)
	return nil
}

func (r *recordingListener) OnError(ee dispatch.EngineError) error {
	r.errors = append(r.errors, ee)
	return nil
}

func newTestEngine(t *testing.T, opts config.Options) (*MatchingEngine, *recordingListener) {
	t.Helper()
	log := zerolog.New(io.Discard)
	bus := dispatch.New(log)
	listener := &recordingListener{}
	bus.Register(listener)

	checker := risk.NewDefaultChecker(risk.Limits{
		MaxPrice:    common.NewPriceFromFloat(1_000_000),
		MaxQuantity: 1_000_000,
	})

	eng, err := New(opts, []common.Symbol{"AAPL"}, checker, bus, clock.New(), log)
	require.NoError(t, err)
	return eng, listener
}

func submitOrder(eng *MatchingEngine, id uint64, side common.Side, orderType common.OrderType, price float64, qty uint64) error {
	o := common.Order{
		ID:       id,
		Symbol:   "AAPL",
		Side:     side,
		Type:     orderType,
		Quantity: qty,
		Owner:    "acct",
	}
	if orderType != common.MarketOrder {
		o.Price = common.NewPriceFromFloat(price)
	}
	return eng.ProcessCommand(queue.Command{Type: queue.CommandSubmit, Order: o})
}

func defaultTestOptions() config.Options {
	opts := config.Defaults()
	return opts
}

func TestEngine_LimitOrderRestsWhenNotMarketable(t *testing.T) {
	eng, listener := newTestEngine(t, defaultTestOptions())
	require.NoError(t, submitOrder(eng, 1, common.Buy, common.LimitOrder, 99.0, 10))

	require.Len(t, listener.executions, 1)
	report := listener.executions[0]
	assert.Equal(t, common.Pending, report.Status)
	assert.Equal(t, uint64(0), report.FilledQty)

	book, ok := eng.Book("AAPL")
	require.True(t, ok)
	assert.Equal(t, common.NewPriceFromFloat(99.0), book.BestBid())
}

func TestEngine_CrossingLimitOrdersMatch(t *testing.T) {
	eng, listener := newTestEngine(t, defaultTestOptions())
	require.NoError(t, submitOrder(eng, 1, common.Sell, common.LimitOrder, 100.0, 10))
	require.NoError(t, submitOrder(eng, 2, common.Buy, common.LimitOrder, 100.0, 10))

	require.Len(t, listener.fills, 1)
	assert.Equal(t, uint64(10), listener.fills[0].Quantity)

	last := listener.executions[len(listener.executions)-1]
	assert.Equal(t, common.Filled, last.Status)
	assert.Equal(t, uint64(10), last.FilledQty)
}

func TestEngine_MarketOrderOnEmptyBookRejected(t *testing.T) {
	eng, listener := newTestEngine(t, defaultTestOptions())
	require.NoError(t, submitOrder(eng, 1, common.Buy, common.MarketOrder, 0, 10))

	require.Len(t, listener.executions, 1)
	report := listener.executions[0]
	assert.Equal(t, common.Rejected, report.Status)
	assert.Equal(t, common.RejectInsufficientLiquidity, report.Reason)
}

func TestEngine_IOCCancelsResidual(t *testing.T) {
	eng, listener := newTestEngine(t, defaultTestOptions())
	require.NoError(t, submitOrder(eng, 1, common.Sell, common.LimitOrder, 100.0, 5))
	require.NoError(t, submitOrder(eng, 2, common.Buy, common.IOC, 100.0, 10))

	last := listener.executions[len(listener.executions)-1]
	assert.Equal(t, common.Cancelled, last.Status)
	assert.Equal(t, uint64(5), last.FilledQty)
	assert.Equal(t, uint64(5), last.RemainingQty)

	book, ok := eng.Book("AAPL")
	require.True(t, ok)
	assert.Equal(t, 0, book.Len())
}

func TestEngine_FOKRejectedWithoutPartialFillWhenLiquidityInsufficient(t *testing.T) {
	eng, listener := newTestEngine(t, defaultTestOptions())
	require.NoError(t, submitOrder(eng, 1, common.Sell, common.LimitOrder, 100.0, 5))
	require.NoError(t, submitOrder(eng, 2, common.Buy, common.FOK, 100.0, 10))

	last := listener.executions[len(listener.executions)-1]
	assert.Equal(t, common.Rejected, last.Status)
	assert.Equal(t, common.RejectInsufficientLiquidity, last.Reason)
	assert.Equal(t, uint64(0), last.FilledQty)

	book, ok := eng.Book("AAPL")
	require.True(t, ok)
	assert.Equal(t, 1, book.Len()) // resting sell order untouched
}

func TestEngine_FOKFillsCompletelyWhenLiquiditySufficient(t *testing.T) {
	eng, listener := newTestEngine(t, defaultTestOptions())
	require.NoError(t, submitOrder(eng, 1, common.Sell, common.LimitOrder, 100.0, 20))
	require.NoError(t, submitOrder(eng, 2, common.Buy, common.FOK, 100.0, 10))

	last := listener.executions[len(listener.executions)-1]
	assert.Equal(t, common.Filled, last.Status)
	assert.Equal(t, uint64(10), last.FilledQty)
}

func TestEngine_FOKRejectsAgainstStaleDepthAfterPartialFill(t *testing.T) {
	eng, listener := newTestEngine(t, defaultTestOptions())
	require.NoError(t, submitOrder(eng, 1, common.Sell, common.LimitOrder, 100.0, 20))
	require.NoError(t, submitOrder(eng, 2, common.Buy, common.LimitOrder, 100.0, 5))

	book, ok := eng.Book("AAPL")
	require.True(t, ok)
	depth := book.Depth(common.Sell, 1)
	require.Len(t, depth, 1)
	require.Equal(t, uint64(15), depth[0].Quantity) // level must track remaining, not original, qty

	fillsBefore := len(listener.fills)
	require.NoError(t, submitOrder(eng, 3, common.Buy, common.FOK, 100.0, 16))

	last := listener.executions[len(listener.executions)-1]
	assert.Equal(t, common.Rejected, last.Status)
	assert.Equal(t, common.RejectInsufficientLiquidity, last.Reason)
	assert.Equal(t, uint64(0), last.FilledQty)
	assert.Equal(t, fillsBefore, len(listener.fills)) // no partial fill leaked from the rejected FOK

	depth = book.Depth(common.Sell, 1)
	require.Len(t, depth, 1)
	assert.Equal(t, uint64(15), depth[0].Quantity) // resting order untouched by the rejected FOK
}

func TestEngine_CancelUnknownOrderEmitsError(t *testing.T) {
	eng, listener := newTestEngine(t, defaultTestOptions())
	require.NoError(t, eng.ProcessCommand(queue.Command{Type: queue.CommandCancel, Symbol: "AAPL", OrderID: 999}))
	require.Len(t, listener.errors, 1)
}

func TestEngine_ModifyLosesTimePriority(t *testing.T) {
	eng, _ := newTestEngine(t, defaultTestOptions())
	require.NoError(t, submitOrder(eng, 1, common.Buy, common.LimitOrder, 99.0, 10))
	require.NoError(t, submitOrder(eng, 2, common.Buy, common.LimitOrder, 99.0, 10))

	require.NoError(t, eng.ProcessCommand(queue.Command{
		Type:        queue.CommandModify,
		Symbol:      "AAPL",
		OrderID:     1,
		NewPrice:    common.NewPriceFromFloat(99.0),
		NewQuantity: 10,
	}))

	book, ok := eng.Book("AAPL")
	require.True(t, ok)
	orders := book.OrdersAtBest(common.Buy)
	require.Len(t, orders, 2)
	assert.Equal(t, uint64(2), orders[0].ID, "order 2 now has priority since order 1 was re-queued behind it")
	assert.Equal(t, uint64(1), orders[1].ID)
}

func TestEngine_InvalidPriceRejected(t *testing.T) {
	eng, listener := newTestEngine(t, defaultTestOptions())
	require.NoError(t, submitOrder(eng, 1, common.Buy, common.LimitOrder, 0, 10))

	require.Len(t, listener.executions, 1)
	assert.Equal(t, common.RejectInvalidPrice, listener.executions[0].Reason)
}

func TestEngine_UnknownSymbolRejected(t *testing.T) {
	eng, listener := newTestEngine(t, defaultTestOptions())
	o := common.Order{ID: 1, Symbol: "MSFT", Side: common.Buy, Type: common.LimitOrder, Price: common.NewPriceFromFloat(10), Quantity: 1}
	require.NoError(t, eng.ProcessCommand(queue.Command{Type: queue.CommandSubmit, Order: o}))

	require.Len(t, listener.executions, 1)
	assert.Equal(t, common.RejectInvalidSymbol, listener.executions[0].Reason)
}
