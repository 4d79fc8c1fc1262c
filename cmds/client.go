package cmds

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mitchellh/go-homedir"
	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/urfave/cli/v2"

	"github.com/filecoin-project/go-jsonrpc"

	"github.com/Beutife/Ghost-Wallet/api"
	"github.com/Beutife/Ghost-Wallet/types"
	"github.com/Beutife/Ghost-Wallet/utils"
)

var callerFlag = &cli.StringFlag{
	Name:     "caller",
	Usage:    "address acting on the wallet, its owner or an ephemeral key",
	Required: true,
}

func NewGhostClient(cctx *cli.Context) (api.GhostWalletAPI, jsonrpc.ClientCloser, error) {
	addr, err := DialArgs(cctx.String("listen"))
	if err != nil {
		return nil, nil, err
	}
	repo, err := homedir.Expand(cctx.String("repo"))
	if err != nil {
		return nil, nil, err
	}

	token, err := os.ReadFile(filepath.Join(repo, utils.TokenFile))
	if err != nil {
		return nil, nil, err
	}
	header := http.Header{}
	header.Add("Authorization", "Bearer "+strings.TrimSpace(string(token)))

	return api.NewClient(cctx.Context, addr, header)
}

func DialArgs(addr string) (string, error) {
	ma, err := multiaddr.NewMultiaddr(addr)
	if err == nil {
		_, addr, err := manet.DialArgs(ma)
		if err != nil {
			return "", err
		}

		return "ws://" + addr + "/rpc/v0", nil
	}

	_, err = url.Parse(addr)
	if err != nil {
		return "", err
	}
	return addr + "/rpc/v0", nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, " ", "\t")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func callerAddress(cctx *cli.Context) (common.Address, error) {
	return types.ParseAddress(cctx.String(callerFlag.Name))
}

func addressArg(cctx *cli.Context, i int, name string) (common.Address, error) {
	if cctx.NArg() <= i {
		return common.Address{}, fmt.Errorf("missing %s argument", name)
	}
	return types.ParseAddress(cctx.Args().Get(i))
}
