// Command venuectl is the venue's operator CLI: a thin cobra client that
// dials the running venued process and sends a single wire frame, then
// exits. It carries no matching logic of its own — spec.md's Non-goals
// exclude an operator dashboard, so this stays an interface onto the
// already-running engine, grounded on the teacher's cmd/client/client.go
// TCP order-submission tool but re-expressed as cobra subcommands instead
// of a single flag.FlagSet.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"

	"venuecore/internal/common"
	"venuecore/internal/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var addr string
	root := &cobra.Command{
		Use:   "venuectl",
		Short: "operator client for the matching venue",
	}
	root.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:9001", "venue server address")

	root.AddCommand(newSubmitCmd(&addr))
	root.AddCommand(newCancelCmd(&addr))
	root.AddCommand(newModifyCmd(&addr))
	return root
}

func newSubmitCmd(addr *string) *cobra.Command {
	var symbol, sideStr, typeStr, account string
	var price float64
	var qty uint64

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "submit a new order",
		RunE: func(cmd *cobra.Command, args []string) error {
			side, err := parseSide(sideStr)
			if err != nil {
				return err
			}
			orderType, err := parseOrderType(typeStr)
			if err != nil {
				return err
			}
			frame := session.EncodeSubmit(common.Symbol(symbol), side, orderType, common.NewPriceFromFloat(price), qty, account)
			return send(*addr, frame)
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "instrument symbol")
	cmd.Flags().StringVar(&sideStr, "side", "buy", "buy|sell")
	cmd.Flags().StringVar(&typeStr, "type", "limit", "limit|market|ioc|fok")
	cmd.Flags().Float64Var(&price, "price", 0, "limit price (ignored for market orders)")
	cmd.Flags().Uint64Var(&qty, "qty", 0, "order quantity")
	cmd.Flags().StringVar(&account, "account", "", "owning account")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("qty")
	return cmd
}

func newCancelCmd(addr *string) *cobra.Command {
	var symbol string
	var orderID uint64
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "cancel a live order",
		RunE: func(cmd *cobra.Command, args []string) error {
			frame := session.EncodeCancel(common.Symbol(symbol), orderID)
			return send(*addr, frame)
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "instrument symbol")
	cmd.Flags().Uint64Var(&orderID, "order-id", 0, "order id to cancel")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("order-id")
	return cmd
}

func newModifyCmd(addr *string) *cobra.Command {
	var symbol string
	var orderID uint64
	var price float64
	var qty uint64
	cmd := &cobra.Command{
		Use:   "modify",
		Short: "cancel-replace a live order at a new price/quantity",
		RunE: func(cmd *cobra.Command, args []string) error {
			frame := session.EncodeModify(common.Symbol(symbol), orderID, common.NewPriceFromFloat(price), qty)
			return send(*addr, frame)
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "instrument symbol")
	cmd.Flags().Uint64Var(&orderID, "order-id", 0, "order id to modify")
	cmd.Flags().Float64Var(&price, "price", 0, "new limit price")
	cmd.Flags().Uint64Var(&qty, "qty", 0, "new quantity")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("order-id")
	return cmd
}

func send(addr string, frame []byte) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("venuectl: dial %s: %w", addr, err)
	}
	defer conn.Close()
	_, err = conn.Write(frame)
	return err
}

func parseSide(s string) (common.Side, error) {
	switch s {
	case "buy":
		return common.Buy, nil
	case "sell":
		return common.Sell, nil
	default:
		return 0, fmt.Errorf("venuectl: unknown side %q", s)
	}
}

func parseOrderType(s string) (common.OrderType, error) {
	switch s {
	case "limit":
		return common.LimitOrder, nil
	case "market":
		return common.MarketOrder, nil
	case "ioc":
		return common.IOC, nil
	case "fok":
		return common.FOK, nil
	default:
		return 0, fmt.Errorf("venuectl: unknown order type %q", s)
	}
}
