package session

import (
	"fmt"
	"strconv"

	"venuecore/internal/common"
)

// EncodeSubmit builds a wire frame for a new order (MsgType D). Intended
// for operator tooling (cmd/venuectl) and tests; the matching core never
// calls this itself.
func EncodeSubmit(symbol common.Symbol, side common.Side, orderType common.OrderType, price common.Price, qty uint64, account string) []byte {
	fields := []field{
		{TagMsgType, MsgTypeNewOrder},
		{TagSymbol, string(symbol)},
		{TagSide, sideTag(side)},
		{TagOrderType, orderTypeTag(orderType)},
		{TagOrderQty, strconv.FormatUint(qty, 10)},
		{TagAccount, account},
	}
	if orderType != common.MarketOrder {
		fields = append(fields, field{TagPrice, formatPrice(price)})
	}
	return encode(fields)
}

// EncodeCancel builds a wire frame for a cancel request (MsgType F).
func EncodeCancel(symbol common.Symbol, orderID uint64) []byte {
	return encode([]field{
		{TagMsgType, MsgTypeCancel},
		{TagSymbol, string(symbol)},
		{TagOrderID, strconv.FormatUint(orderID, 10)},
	})
}

// EncodeModify builds a wire frame for a cancel-replace request (MsgType G).
func EncodeModify(symbol common.Symbol, orderID uint64, price common.Price, qty uint64) []byte {
	return encode([]field{
		{TagMsgType, MsgTypeModify},
		{TagSymbol, string(symbol)},
		{TagOrderID, strconv.FormatUint(orderID, 10)},
		{TagPrice, formatPrice(price)},
		{TagOrderQty, strconv.FormatUint(qty, 10)},
	})
}

// BeginString identifies the venue's dialect version. It is always the
// first field of an encoded frame, matching what Decoder.Feed scans for
// to locate the start of the next frame.
const BeginString = "VENUE.1.0"

type field struct {
	tag   int
	value string
}

func encode(fields []field) []byte {
	fields = append([]field{{TagBeginString, BeginString}}, fields...)
	var body []byte
	for _, f := range fields {
		body = append(body, []byte(fmt.Sprintf("%d=%s", f.tag, f.value))...)
		body = append(body, 0x01)
	}
	var sum int
	for _, b := range body {
		sum = (sum + int(b)) % 256
	}
	body = append(body, []byte(fmt.Sprintf("%d=%03d", TagCheckSum, sum))...)
	body = append(body, 0x01)
	return body
}

func sideTag(s common.Side) string {
	if s == common.Buy {
		return "1"
	}
	return "2"
}

func orderTypeTag(t common.OrderType) string {
	switch t {
	case common.MarketOrder:
		return "1"
	case common.LimitOrder:
		return "2"
	case common.IOC:
		return "3"
	case common.FOK:
		return "4"
	default:
		return "2"
	}
}

func formatPrice(p common.Price) string {
	return p.String()
}
