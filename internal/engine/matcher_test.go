package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venuecore/internal/common"
)

type recordedFill struct {
	passiveID uint64
	qty       uint64
	price     common.Price
}

func collectFills(t *testing.T, book Book, matcher Matcher, incoming *common.Order) []recordedFill {
	t.Helper()
	var fills []recordedFill
	matcher.Match(book, incoming, func(passive *common.Order, qty uint64, price common.Price) {
		fills = append(fills, recordedFill{passive.ID, qty, price})
	})
	return fills
}

func TestPriceTimeMatcher_FIFOAtSameLevel(t *testing.T) {
	book := NewBook("AAPL")
	require.NoError(t, book.Add(newTestOrder(1, common.Sell, 100.0, 10)))
	require.NoError(t, book.Add(newTestOrder(2, common.Sell, 100.0, 10)))

	incoming := newTestOrder(3, common.Buy, 100.0, 15)
	fills := collectFills(t, book, PriceTimeMatcher{}, incoming)

	require.Len(t, fills, 2)
	assert.Equal(t, uint64(1), fills[0].passiveID)
	assert.Equal(t, uint64(10), fills[0].qty)
	assert.Equal(t, uint64(2), fills[1].passiveID)
	assert.Equal(t, uint64(5), fills[1].qty)
	assert.Equal(t, uint64(15), incoming.Filled)
	assert.Equal(t, common.Filled, incoming.Status)
}

func TestPriceTimeMatcher_StopsWhenNotMarketable(t *testing.T) {
	book := NewBook("AAPL")
	require.NoError(t, book.Add(newTestOrder(1, common.Sell, 101.0, 10)))

	incoming := newTestOrder(2, common.Buy, 100.0, 10)
	fills := collectFills(t, book, PriceTimeMatcher{}, incoming)

	assert.Empty(t, fills)
	assert.Equal(t, uint64(0), incoming.Filled)
}

func TestPriceTimeMatcher_MarketOrderTakesTouch(t *testing.T) {
	book := NewBook("AAPL")
	require.NoError(t, book.Add(newTestOrder(1, common.Sell, 100.0, 10)))

	incoming := &common.Order{ID: 2, Symbol: "AAPL", Side: common.Buy, Type: common.MarketOrder, Quantity: 10}
	fills := collectFills(t, book, PriceTimeMatcher{}, incoming)

	require.Len(t, fills, 1)
	assert.Equal(t, common.NewPriceFromFloat(100.0), fills[0].price)
}

func TestPriceTimeMatcher_AggressorPaysTouchAcrossLevels(t *testing.T) {
	book := NewBook("AAPL")
	require.NoError(t, book.Add(newTestOrder(1, common.Sell, 10.00, 100)))
	require.NoError(t, book.Add(newTestOrder(2, common.Sell, 10.01, 100)))

	incoming := newTestOrder(3, common.Buy, 10.02, 150)
	fills := collectFills(t, book, PriceTimeMatcher{}, incoming)

	require.Len(t, fills, 2)
	assert.Equal(t, common.NewPriceFromFloat(10.00), fills[0].price)
	assert.Equal(t, uint64(100), fills[0].qty)
	assert.Equal(t, common.NewPriceFromFloat(10.01), fills[1].price)
	assert.Equal(t, uint64(50), fills[1].qty)
	for _, f := range fills {
		assert.NotEqual(t, common.NewPriceFromFloat(10.02), f.price, "aggressor's limit price must never print")
	}
	assert.Equal(t, common.NewPriceFromFloat(10.01), book.BestAsk())
	assert.Equal(t, uint64(50), book.Depth(common.Sell, 1)[0].Quantity)
}

func TestProRataMatcher_AllocatesProportionally(t *testing.T) {
	book := NewBook("AAPL")
	require.NoError(t, book.Add(newTestOrder(1, common.Sell, 100.0, 30)))
	require.NoError(t, book.Add(newTestOrder(2, common.Sell, 100.0, 70)))

	incoming := newTestOrder(3, common.Buy, 100.0, 50)
	fills := collectFills(t, book, ProRataMatcher{}, incoming)

	var total uint64
	for _, f := range fills {
		total += f.qty
	}
	assert.Equal(t, uint64(50), total)
	assert.Equal(t, uint64(50), incoming.Filled)
}

func TestSizePriorityMatcher_FillsLargestFirst(t *testing.T) {
	book := NewBook("AAPL")
	require.NoError(t, book.Add(newTestOrder(1, common.Sell, 100.0, 10)))
	require.NoError(t, book.Add(newTestOrder(2, common.Sell, 100.0, 50)))

	incoming := newTestOrder(3, common.Buy, 100.0, 10)
	fills := collectFills(t, book, SizePriorityMatcher{}, incoming)

	require.Len(t, fills, 1)
	assert.Equal(t, uint64(2), fills[0].passiveID)
}

func TestTimePriorityMatcher_WalksArrivalOrder(t *testing.T) {
	book := NewBook("AAPL")
	require.NoError(t, book.Add(newTestOrder(1, common.Sell, 100.0, 5)))
	require.NoError(t, book.Add(newTestOrder(2, common.Sell, 100.0, 5)))

	incoming := newTestOrder(3, common.Buy, 100.0, 10)
	fills := collectFills(t, book, TimePriorityMatcher{}, incoming)

	require.Len(t, fills, 2)
	assert.Equal(t, uint64(1), fills[0].passiveID)
	assert.Equal(t, uint64(2), fills[1].passiveID)
}
