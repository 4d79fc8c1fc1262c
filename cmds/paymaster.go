package cmds

import (
	"fmt"

	"github.com/filecoin-project/go-state-types/big"
	"github.com/urfave/cli/v2"

	"github.com/Beutife/Ghost-Wallet/types"
)

var PaymasterCmds = &cli.Command{
	Name:        "paymaster",
	Usage:       "gas sponsorship cmds",
	Subcommands: []*cli.Command{paymasterStatusCmd, paymasterTotalsCmd, paymasterPendingCmd, paymasterRecentCmd, paymasterRefundCmd},
}

var paymasterStatusCmd = &cli.Command{
	Name:  "status",
	Usage: "balance against the configured floors",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		st, err := api.PaymasterStatus(cctx.Context)
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{
			"address":        st.Address.Hex(),
			"balance":        types.FormatEther(st.Balance) + " ETH",
			"minBalance":     types.FormatEther(st.MinBalance) + " ETH",
			"alertThreshold": types.FormatEther(st.AlertThreshold) + " ETH",
			"maxGasSponsor":  types.FormatEther(st.MaxGasSponsor) + " ETH",
			"healthy":        st.Healthy,
			"canSponsor":     st.CanSponsor,
			"pending":        st.PendingCount,
		})
	},
}

var paymasterTotalsCmd = &cli.Command{
	Name: "totals",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		totals, err := api.TotalSponsored(cctx.Context)
		if err != nil {
			return err
		}
		return printJSON(totals)
	},
}

var paymasterPendingCmd = &cli.Command{
	Name: "pending",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		pending, err := api.PendingSponsorships(cctx.Context)
		if err != nil {
			return err
		}
		return printJSON(pending)
	},
}

var paymasterRecentCmd = &cli.Command{
	Name: "recent",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Value: 20},
	},
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		recent, err := api.RecentSponsorships(cctx.Context, cctx.Int("limit"))
		if err != nil {
			return err
		}
		return printJSON(recent)
	},
}

var paymasterRefundCmd = &cli.Command{
	Name:      "refund",
	Usage:     "record a refund paid back for a confirmed sponsorship",
	ArgsUsage: "<sponsored tx hash> <amount wei> <refund tx hash>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 3 {
			return fmt.Errorf("expect 3 arguments, got %d", cctx.NArg())
		}
		txHash, err := types.ParseTxHash(cctx.Args().Get(0))
		if err != nil {
			return err
		}
		amount, err := big.FromString(cctx.Args().Get(1))
		if err != nil {
			return fmt.Errorf("parse amount: %w", err)
		}
		refundTx, err := types.ParseTxHash(cctx.Args().Get(2))
		if err != nil {
			return err
		}

		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		s, err := api.RecordRefund(cctx.Context, txHash, amount, refundTx)
		if err != nil {
			return err
		}
		return printJSON(s)
	},
}
