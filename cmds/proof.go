package cmds

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var ProofCmds = &cli.Command{
	Name:        "proof",
	Usage:       "authorization proof cmds",
	Subcommands: []*cli.Command{showProofCmd, replayProofCmd, verifyProofCmd, cleanupProofCmd},
}

var showProofCmd = &cli.Command{
	Name:      "show",
	ArgsUsage: "<proof-hash>",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		p, err := api.GetProof(cctx.Context, cctx.Args().First())
		if err != nil {
			return err
		}
		return printJSON(p)
	},
}

var replayProofCmd = &cli.Command{
	Name:      "is-replay",
	Usage:     "report whether a proof hash was already consumed",
	ArgsUsage: "<proof-hash>",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		used, err := api.IsProofReplay(cctx.Context, cctx.Args().First())
		if err != nil {
			return err
		}
		fmt.Println(used)
		return nil
	},
}

var verifyProofCmd = &cli.Command{
	Name:      "verify",
	Usage:     "record the outcome of an external verification",
	ArgsUsage: "<proof-hash>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "valid"},
		&cli.StringFlag{Name: "error", Usage: "verifier message for an invalid proof"},
	},
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		p, err := api.VerifyProof(cctx.Context, cctx.Args().First(), cctx.Bool("valid"), cctx.String("error"))
		if err != nil {
			return err
		}
		return printJSON(p)
	},
}

var cleanupProofCmd = &cli.Command{
	Name:      "flag",
	Usage:     "flag an unused proof for the next cleanup",
	ArgsUsage: "<proof-hash>",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		p, err := api.MarkProofForCleanup(cctx.Context, cctx.Args().First())
		if err != nil {
			return err
		}
		return printJSON(p)
	},
}
