package cmds

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Beutife/Ghost-Wallet/ghostwallet"
	"github.com/Beutife/Ghost-Wallet/types"
)

var SessionCmds = &cli.Command{
	Name:        "session",
	Usage:       "session key cmds",
	Subcommands: []*cli.Command{startSessionCmd, endSessionCmd, revokeSessionCmd, showSessionCmd, listSessionCmd},
}

var startSessionCmd = &cli.Command{
	Name:      "start",
	Usage:     "open a session with a fresh ephemeral key, the private key is printed once",
	ArgsUsage: "<wallet>",
	Flags: []cli.Flag{
		callerFlag,
		&cli.DurationFlag{Name: "duration", Value: time.Hour},
		&cli.StringFlag{Name: "key", Usage: "use this key address instead of generating one"},
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
		req := ghostwallet.StartRequest{Wallet: addr, Caller: caller, Duration: cctx.Duration("duration")}
		if k := cctx.String("key"); k != "" {
			if req.KeyAddress, err = types.ParseAddress(k); err != nil {
				return err
			}
		}
		started, err := api.StartSession(cctx.Context, req)
		if err != nil {
			return err
		}
		return printJSON(started)
	},
}

var endSessionCmd = &cli.Command{
	Name:      "end",
	Usage:     "end a session and revoke its key",
	ArgsUsage: "<token>",
	Flags:     []cli.Flag{callerFlag},
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		caller, err := callerAddress(cctx)
		if err != nil {
			return err
		}
		s, err := api.EndSession(cctx.Context, cctx.Args().First(), caller)
		if err != nil {
			return err
		}
		return printJSON(s)
	},
}

var revokeSessionCmd = &cli.Command{
	Name:      "revoke",
	Usage:     "revoke a session administratively, the key is revoked on chain",
	ArgsUsage: "<token>",
	Flags:     []cli.Flag{callerFlag},
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		caller, err := callerAddress(cctx)
		if err != nil {
			return err
		}
		s, err := api.RevokeSession(cctx.Context, cctx.Args().First(), caller)
		if err != nil {
			return err
		}
		return printJSON(s)
	},
}

var showSessionCmd = &cli.Command{
	Name:      "show",
	ArgsUsage: "<token>",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		s, err := api.GetSession(cctx.Context, cctx.Args().First())
		if err != nil {
			return err
		}
		return printJSON(s)
	},
}

var listSessionCmd = &cli.Command{
	Name:      "list",
	ArgsUsage: "<wallet>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "active", Usage: "only sessions that are still active"},
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
		var sessions []*types.Session
		if cctx.Bool("active") {
			sessions, err = api.ActiveSessions(cctx.Context, addr)
		} else {
			sessions, err = api.ListSessions(cctx.Context, addr)
		}
		if err != nil {
			return err
		}
		return printJSON(sessions)
	},
}
