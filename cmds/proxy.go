package cmds

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Beutife/Ghost-Wallet/proxy"
)

var ProxyCmds = &cli.Command{
	Name:        "proxy",
	Usage:       "manipulate upstreams reachable through the daemon",
	Subcommands: []*cli.Command{setProxyCmd, listProxyCmd},
}

var setProxyCmd = &cli.Command{
	Name:  "set",
	Usage: "set an upstream (or unset it by setting an empty url)",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "type",
			Usage:    fmt.Sprintf("which upstream to set, one of %s, %s, %s", proxy.HostChain, proxy.HostBundler, proxy.HostVerifier),
			Required: true,
		},
		&cli.StringFlag{
			Name:  "url",
			Usage: "the url or multiaddr requests are forwarded to",
		},
	},
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		if err := api.SetUpstream(cctx.Context, cctx.String("type"), cctx.String("url")); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

var listProxyCmd = &cli.Command{
	Name: "list",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGhostClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		hosts, err := api.ListUpstreams(cctx.Context)
		if err != nil {
			return err
		}
		return printJSON(hosts)
	},
}
