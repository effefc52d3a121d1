package session

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venuecore/internal/common"
	"venuecore/internal/queue"
)

func TestDecoder_RoundTripsSubmitFrame(t *testing.T) {
	d := NewDecoder(MaxFrame)
	frame := EncodeSubmit("AAPL", common.Buy, common.LimitOrder, common.NewPriceFromFloat(100.25), 10, "acct1")

	cmds, err := d.Feed(frame)
	require.NoError(t, err)
	require.Len(t, cmds, 1)

	cmd := cmds[0]
	assert.Equal(t, queue.CommandSubmit, cmd.Type)
	assert.Equal(t, common.Symbol("AAPL"), cmd.Order.Symbol)
	assert.Equal(t, common.Buy, cmd.Order.Side)
	assert.Equal(t, common.LimitOrder, cmd.Order.Type)
	assert.Equal(t, uint64(10), cmd.Order.Quantity)
	assert.Equal(t, common.NewPriceFromFloat(100.25), cmd.Order.Price)
	assert.Equal(t, "acct1", cmd.Order.Owner)
}

func TestDecoder_RoundTripsCancelFrame(t *testing.T) {
	d := NewDecoder(MaxFrame)
	frame := EncodeCancel("AAPL", 42)

	cmds, err := d.Feed(frame)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, queue.CommandCancel, cmds[0].Type)
	assert.Equal(t, uint64(42), cmds[0].OrderID)
}

func TestDecoder_RoundTripsModifyFrame(t *testing.T) {
	d := NewDecoder(MaxFrame)
	frame := EncodeModify("AAPL", 42, common.NewPriceFromFloat(101.0), 5)

	cmds, err := d.Feed(frame)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, queue.CommandModify, cmds[0].Type)
	assert.Equal(t, common.NewPriceFromFloat(101.0), cmds[0].NewPrice)
	assert.Equal(t, uint64(5), cmds[0].NewQuantity)
}

func TestDecoder_HandlesMultipleFramesInOneFeed(t *testing.T) {
	d := NewDecoder(MaxFrame)
	var buf bytes.Buffer
	buf.Write(EncodeCancel("AAPL", 1))
	buf.Write(EncodeCancel("AAPL", 2))

	cmds, err := d.Feed(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, uint64(1), cmds[0].OrderID)
	assert.Equal(t, uint64(2), cmds[1].OrderID)
}

func TestDecoder_HandlesFrameSplitAcrossFeeds(t *testing.T) {
	d := NewDecoder(MaxFrame)
	frame := EncodeCancel("AAPL", 7)
	split := len(frame) / 2

	cmds, err := d.Feed(frame[:split])
	require.NoError(t, err)
	assert.Empty(t, cmds)

	cmds, err = d.Feed(frame[split:])
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, uint64(7), cmds[0].OrderID)
}

func TestDecoder_CorruptChecksumTriggersResyncAndIsCounted(t *testing.T) {
	d := NewDecoder(MaxFrame)
	good := EncodeCancel("AAPL", 1)

	// Flip a byte inside the body so the trailing checksum no longer matches.
	corrupt := append([]byte(nil), good...)
	corrupt[10] ^= 0xFF

	var buf bytes.Buffer
	buf.Write(corrupt)
	buf.Write(EncodeCancel("AAPL", 2)) // a valid frame after the corrupt one

	cmds, err := d.Feed(buf.Bytes())
	require.NoError(t, err) // resync is recovered internally, never surfaced as an error
	require.Len(t, cmds, 1)
	assert.Equal(t, uint64(2), cmds[0].OrderID)

	resyncs, checksumErrors := d.Stats()
	assert.Equal(t, uint64(1), resyncs)
	assert.Equal(t, uint64(1), checksumErrors)
}

func TestDecoder_OversizedFrameTriggersResync(t *testing.T) {
	d := NewDecoder(32)
	frame := EncodeSubmit("AAPL", common.Buy, common.LimitOrder, common.NewPriceFromFloat(100.25), 10, "a-very-long-account-identifier")

	cmds, err := d.Feed(frame)
	require.NoError(t, err)
	assert.Empty(t, cmds)

	resyncs, _ := d.Stats()
	assert.Equal(t, uint64(1), resyncs)
}

func TestDecoder_MaxFrameClampedToHardCeiling(t *testing.T) {
	d := NewDecoder(1 << 20)
	assert.Equal(t, MaxFrame, d.maxFrame)
}
