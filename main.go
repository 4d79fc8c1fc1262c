package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/etherlabsio/healthcheck/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-jsonrpc/auth"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/gorilla/mux"
	"github.com/ipfs-force-community/metrics"
	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.opencensus.io/plugin/ochttp"

	"github.com/Beutife/Ghost-Wallet/api"
	"github.com/Beutife/Ghost-Wallet/chain"
	"github.com/Beutife/Ghost-Wallet/cmds"
	"github.com/Beutife/Ghost-Wallet/config"
	"github.com/Beutife/Ghost-Wallet/ghostwallet"
	gwmetrics "github.com/Beutife/Ghost-Wallet/metrics"
	"github.com/Beutife/Ghost-Wallet/notify"
	"github.com/Beutife/Ghost-Wallet/paymaster"
	"github.com/Beutife/Ghost-Wallet/proof"
	"github.com/Beutife/Ghost-Wallet/proxy"
	"github.com/Beutife/Ghost-Wallet/reconcile"
	"github.com/Beutife/Ghost-Wallet/retention"
	"github.com/Beutife/Ghost-Wallet/store"
	"github.com/Beutife/Ghost-Wallet/types"
	"github.com/Beutife/Ghost-Wallet/utils"
	"github.com/Beutife/Ghost-Wallet/version"
)

var log = logging.Logger("main")

func main() {
	_ = logging.SetLogLevel("*", "INFO")

	app := &cli.App{
		Name:  "ghost-wallet",
		Usage: "ghost wallet service: session keys, spending limits and sponsored gas for disposable wallets",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "host address and port the api will listen on",
				Value: "/ip4/127.0.0.1/tcp/45132",
			},
			&cli.StringFlag{
				Name:    "repo",
				Usage:   "directory holding config.toml, the token and the sqlite database",
				Value:   "~/.ghostwallet",
				EnvVars: []string{"GHOST_WALLET_REPO"},
			},
		},
		Commands: []*cli.Command{
			initCmd, runCmd,
			cmds.WalletCmds, cmds.SessionCmds, cmds.ProofCmds, cmds.PaymasterCmds, cmds.ProxyCmds,
		},
	}
	app.Version = version.UserVersion
	if err := app.Run(os.Args); err != nil {
		log.Warn(err)
		os.Exit(1)
	}
}

func repoPath(cctx *cli.Context) (string, error) {
	repo, err := homedir.Expand(cctx.String("repo"))
	if err != nil {
		return "", err
	}
	return repo, os.MkdirAll(repo, 0755)
}

var initCmd = &cli.Command{
	Name:  "init",
	Usage: "write a default config.toml into the repo",
	Action: func(cctx *cli.Context) error {
		repo, err := repoPath(cctx)
		if err != nil {
			return err
		}
		cfgPath := filepath.Join(repo, config.ConfigFile)
		if _, err := os.Stat(cfgPath); err == nil {
			return fmt.Errorf("%s already exists", cfgPath)
		}
		cfg := config.DefaultConfig()
		cfg.API.ListenAddress = cctx.String("listen")
		if err := config.WriteConfig(cfgPath, cfg); err != nil {
			return err
		}
		log.Infof("wrote %s", cfgPath)
		return nil
	},
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "start ghost-wallet daemon",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "log-level", Value: "info"},
		&cli.StringFlag{Name: "relayer-key", EnvVars: []string{"GHOST_WALLET_RELAYER_KEY"}, Usage: "overrides Chain.RelayerKey"},
	},
	Action: func(cctx *cli.Context) error {
		if err := logging.SetLogLevel("*", cctx.String("log-level")); err != nil {
			return err
		}
		repo, err := repoPath(cctx)
		if err != nil {
			return err
		}
		cfg, err := config.ReadConfig(filepath.Join(repo, config.ConfigFile))
		if err != nil {
			return errors.Wrap(err, "read config, run init first")
		}
		if cctx.IsSet("listen") {
			cfg.API.ListenAddress = cctx.String("listen")
		}
		if key := cctx.String("relayer-key"); key != "" {
			cfg.Chain.RelayerKey = key
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return RunMain(cctx.Context, repo, cfg)
	},
}

func openStore(repo string, cfg *config.StoreConfig) (store.Store, error) {
	if cfg.Type == config.StoreMemory {
		log.Warn("using the in-memory store, state is lost on restart")
		return store.NewMemoryStore(), nil
	}
	path := cfg.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(repo, path)
	}
	return store.OpenSQLite(path)
}

// stateSource feeds the gauges sampled by the metrics loop.
type stateSource struct {
	sessions *ghostwallet.SessionService
	sponsor  *paymaster.Ledger
	chain    types.Ledger
}

func (s stateSource) CountActiveSessions(ctx context.Context) (int64, error) {
	return s.sessions.CountActive(ctx)
}

func (s stateSource) CountPendingSponsorships(ctx context.Context) (int64, error) {
	pending, err := s.sponsor.Pending(ctx)
	return int64(len(pending)), err
}

func (s stateSource) PaymasterBalance(ctx context.Context) (big.Int, error) {
	if s.sponsor.Address() == (common.Address{}) {
		return big.Int{}, nil
	}
	return s.chain.BalanceOf(ctx, s.sponsor.Address())
}

func RunMain(ctx context.Context, repo string, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Infof("ghost-wallet current version %s, listen %s", version.UserVersion, cfg.API.ListenAddress)

	st, err := openStore(repo, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	chainClient, err := chain.Dial(ctx, cfg.ChainConfig())
	if err != nil {
		return err
	}
	defer chainClient.Close()

	hub := notify.NewHub()
	alerts := notify.Multi{notify.LogSink{}, hub}
	clock := types.SystemClock{}

	pmCfg, err := cfg.PaymasterConfig()
	if err != nil {
		return err
	}
	sponsor := paymaster.NewLedger(st, chainClient, alerts, clock, pmCfg)
	proofs := proof.NewRegistry(st, clock, cfg.ProofConfig())
	sm := ghostwallet.NewStateMachine(st, chainClient, sponsor, proofs, alerts, clock, cfg.WalletConfig())
	sessions := ghostwallet.NewSessionService(st, sm, clock)

	reconciler := reconcile.NewReconciler(sm, sponsor, chainClient, chainClient, alerts, clock, cfg.ReconcileConfig())
	go reconciler.Run(ctx)
	cleaner := retention.NewCleaner(sessions, proofs, cfg.RetentionConfig())
	go cleaner.Run(ctx)

	if err := gwmetrics.SetupMetrics(ctx, cfg.Metrics, stateSource{sessions: sessions, sponsor: sponsor, chain: chainClient}); err != nil {
		return err
	}

	upstreams := proxy.NewProxy()
	if err := upstreams.RegisterReverseByAddr(proxy.HostChain, cfg.Chain.RPCURL); err != nil {
		return err
	}

	impl := api.NewGhostAPIImpl(sm, sessions, proofs, sponsor, upstreams)

	localJwt, err := utils.NewLocalJwtClient(repo)
	if err != nil {
		return fmt.Errorf("make token failed:%s", err.Error())
	}
	if err := localJwt.SaveToken(); err != nil {
		return err
	}

	router := mux.NewRouter()
	router.Handle("/rpc/v0", api.NewRPCServer(impl))
	router.Handle("/ws/alerts", hub)
	router.Handle("/healthz", healthcheck.Handler(
		healthcheck.WithTimeout(5*time.Second),
		healthcheck.WithChecker("store", healthcheck.CheckerFunc(st.Ping)),
		healthcheck.WithChecker("chain", healthcheck.CheckerFunc(chainClient.Check)),
	))
	router.PathPrefix("/").Handler(http.DefaultServeMux)

	// requests without a token run with read permission
	handler := http.Handler(&auth.Handler{Verify: localJwt.Verify, Next: upstreams.ProxyMiddleware(router).ServeHTTP})

	log.Infof("trace config %v", cfg.Trace)
	exporter, err := metrics.SetupJaegerTracing(cfg.Trace.ServerName, cfg.Trace)
	if err != nil {
		return fmt.Errorf("setup %s jaeger tracing to %s failed: %w", cfg.Trace.ServerName, cfg.Trace.JaegerEndpoint, err)
	}
	if exporter != nil {
		log.Infof("register jaeger-tracing exporter to %s, with node-name:%s", cfg.Trace.JaegerEndpoint, cfg.Trace.ServerName)
		defer func() {
			if err := metrics.ShutdownJaeger(context.Background(), exporter); err != nil {
				log.Warnf("shutdown jaeger exporter: %v", err)
			}
		}()
		handler = &ochttp.Handler{Handler: handler}
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 30 * time.Second}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Warnw("received shutdown", "signal", sig)
		case <-ctx.Done():
			log.Warn("received shutdown")
		}

		log.Info("Shutting down...")
		cancel()
		if err := srv.Shutdown(context.TODO()); err != nil {
			log.Errorf("shutting down RPC server failed: %s", err)
		}
	}()

	addr, err := multiaddr.NewMultiaddr(cfg.API.ListenAddress)
	if err != nil {
		return err
	}
	nl, err := manet.Listen(addr)
	if err != nil {
		return err
	}

	log.Infof("start to rpc listen %s", nl.Addr())
	if err = srv.Serve(manet.NetListener(nl)); err != nil && err != http.ErrServerClosed {
		return err
	}

	log.Info("Graceful shutdown successful")
	return nil
}
