package cmds

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Beutife/Ghost-Wallet/ghostwallet"
	"github.com/Beutife/Ghost-Wallet/types"
)

var WalletCmds = &cli.Command{
	Name:  "wallet",
	Usage: "wallet cmds",
	Subcommands: []*cli.Command{
		listWalletCmd,
		showWalletCmd,
		refreshWalletCmd,
		limitsCmd,
		setLimitCmd,
		listTxCmd,
		txStatsCmd,
		sweepCmd,
		destroyCmd,
		addKeyCmd,
		revokeKeyCmd,
	},
}

var listWalletCmd = &cli.Command{
	Name:      "list",
	Usage:     "list wallets of an owner",
	ArgsUsage: "<owner>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "all", Usage: "include destroyed wallets"},
	},
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		owner, err := addressArg(cctx, 0, "owner")
		if err != nil {
			return err
		}
		wallets, err := api.ListWallets(cctx.Context, owner, cctx.Bool("all"))
		if err != nil {
			return err
		}
		return printJSON(wallets)
	},
}

var showWalletCmd = &cli.Command{
	Name:      "show",
	ArgsUsage: "<wallet>",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		addr, err := addressArg(cctx, 0, "wallet")
		if err != nil {
			return err
		}
		w, err := api.GetWallet(cctx.Context, addr)
		if err != nil {
			return err
		}
		return printJSON(w)
	},
}

var refreshWalletCmd = &cli.Command{
	Name:      "refresh",
	Usage:     "read the wallet balance from the chain",
	ArgsUsage: "<wallet>",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		addr, err := addressArg(cctx, 0, "wallet")
		if err != nil {
			return err
		}
		w, err := api.RefreshBalance(cctx.Context, addr)
		if err != nil {
			return err
		}
		return printJSON(map[string]string{
			"address": w.Address.Hex(),
			"balance": types.FormatEther(w.LastKnownBalance) + " ETH",
		})
	},
}

var limitsCmd = &cli.Command{
	Name:      "limits",
	Usage:     "show spending limits and what is left today",
	ArgsUsage: "<wallet>",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		addr, err := addressArg(cctx, 0, "wallet")
		if err != nil {
			return err
		}
		state, err := api.SpendingState(cctx.Context, addr)
		if err != nil {
			return err
		}
		return printJSON(state)
	},
}

var setLimitCmd = &cli.Command{
	Name:      "set-limit",
	Usage:     "set the per transaction and per day caps in wei, 0 disables a cap",
	ArgsUsage: "<wallet>",
	Flags: []cli.Flag{
		callerFlag,
		&cli.StringFlag{Name: "per-tx", Value: "0"},
		&cli.StringFlag{Name: "per-day", Value: "0"},
	},
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		addr, err := addressArg(cctx, 0, "wallet")
		if err != nil {
			return err
		}
		caller, err := callerAddress(cctx)
		if err != nil {
			return err
		}
		perTx, err := types.ParseAmount(cctx.String("per-tx"))
		if err != nil {
			return err
		}
		perDay, err := types.ParseAmount(cctx.String("per-day"))
		if err != nil {
			return err
		}
		w, err := api.SetSpendingLimit(cctx.Context, addr, caller, ghostwallet.LimitInput{MaxPerTx: perTx, MaxPerDay: perDay})
		if err != nil {
			return err
		}
		return printJSON(w.SpendingLimit)
	},
}

var listTxCmd = &cli.Command{
	Name:      "txs",
	Usage:     "list recent transactions of a wallet",
	ArgsUsage: "<wallet>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Value: 20},
	},
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		addr, err := addressArg(cctx, 0, "wallet")
		if err != nil {
			return err
		}
		txs, err := api.ListTransactions(cctx.Context, addr, cctx.Int("limit"))
		if err != nil {
			return err
		}
		return printJSON(txs)
	},
}

var txStatsCmd = &cli.Command{
	Name:      "tx-stats",
	ArgsUsage: "<wallet>",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		addr, err := addressArg(cctx, 0, "wallet")
		if err != nil {
			return err
		}
		stats, err := api.TransactionStats(cctx.Context, addr)
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var sweepCmd = &cli.Command{
	Name:      "sweep",
	Usage:     "move the whole balance to the owner",
	ArgsUsage: "<wallet>",
	Flags:     []cli.Flag{callerFlag},
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		addr, err := addressArg(cctx, 0, "wallet")
		if err != nil {
			return err
		}
		caller, err := callerAddress(cctx)
		if err != nil {
			return err
		}
		tx, err := api.Sweep(cctx.Context, addr, caller)
		if err != nil {
			return err
		}
		return printJSON(tx)
	},
}

var destroyCmd = &cli.Command{
	Name:      "destroy",
	Usage:     "destroy the wallet, refunding its balance",
	ArgsUsage: "<wallet>",
	Flags: []cli.Flag{
		callerFlag,
		&cli.StringFlag{Name: "recipient", Usage: "refund address, the owner when empty"},
	},
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		addr, err := addressArg(cctx, 0, "wallet")
		if err != nil {
			return err
		}
		caller, err := callerAddress(cctx)
		if err != nil {
			return err
		}
		recipient := caller
		if r := cctx.String("recipient"); r != "" {
			if recipient, err = types.ParseAddress(r); err != nil {
				return err
			}
		}
		tx, err := api.Destroy(cctx.Context, addr, caller, recipient)
		if err != nil {
			return err
		}
		return printJSON(tx)
	},
}

var addKeyCmd = &cli.Command{
	Name:      "add-key",
	Usage:     "authorize an ephemeral key without opening a session",
	ArgsUsage: "<wallet> <key>",
	Flags: []cli.Flag{
		callerFlag,
		&cli.DurationFlag{Name: "duration", Value: time.Hour},
	},
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		addr, err := addressArg(cctx, 0, "wallet")
		if err != nil {
			return err
		}
		key, err := addressArg(cctx, 1, "key")
		if err != nil {
			return err
		}
		caller, err := callerAddress(cctx)
		if err != nil {
			return err
		}
		tx, err := api.AddEphemeralKey(cctx.Context, addr, caller, key, time.Now().Add(cctx.Duration("duration")))
		if err != nil {
			return err
		}
		return printJSON(tx)
	},
}

var revokeKeyCmd = &cli.Command{
	Name:      "revoke-key",
	ArgsUsage: "<wallet> <key>",
	Flags:     []cli.Flag{callerFlag},
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		addr, err := addressArg(cctx, 0, "wallet")
		if err != nil {
			return err
		}
		key, err := addressArg(cctx, 1, "key")
		if err != nil {
			return err
		}
		caller, err := callerAddress(cctx)
		if err != nil {
			return err
		}
		tx, err := api.RevokeEphemeralKey(cctx.Context, addr, caller, key)
		if err != nil {
			return err
		}
		return printJSON(tx)
	},
}
