package integrate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"time"

	"github.com/etherlabsio/healthcheck/v2"
	"github.com/filecoin-project/go-jsonrpc/auth"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/gorilla/mux"
	"github.com/ipfs-force-community/metrics"
	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/plugin/ochttp"

	"github.com/Beutife/Ghost-Wallet/api"
	"github.com/Beutife/Ghost-Wallet/config"
	"github.com/Beutife/Ghost-Wallet/ghostwallet"
	"github.com/Beutife/Ghost-Wallet/notify"
	"github.com/Beutife/Ghost-Wallet/paymaster"
	"github.com/Beutife/Ghost-Wallet/proof"
	"github.com/Beutife/Ghost-Wallet/proxy"
	"github.com/Beutife/Ghost-Wallet/reconcile"
	"github.com/Beutife/Ghost-Wallet/store"
	"github.com/Beutife/Ghost-Wallet/testhelper"
	"github.com/Beutife/Ghost-Wallet/utils"
	"github.com/Beutife/Ghost-Wallet/version"
)

var log = logging.Logger("mock main")

// MockDaemon is a running API server over an in-memory store and a mock ledger.
type MockDaemon struct {
	URL    string
	Token  []byte
	Jwt    *utils.LocalJwtClient
	Ledger *testhelper.MockLedger
	Clock  *testhelper.FakeClock
	Alerts *testhelper.AlertRecorder
	Feed   *testhelper.MockFeed

	Reconciler *reconcile.Reconciler

	srv           *httptest.Server
	shutdownTrace func()
	closeStore    func() error
}

// RPCURL is the websocket JSON-RPC endpoint.
func (d *MockDaemon) RPCURL() string {
	return "ws" + strings.TrimPrefix(d.URL, "http") + "/rpc/v0"
}

// AlertsURL is the websocket alert stream.
func (d *MockDaemon) AlertsURL() string {
	return "ws" + strings.TrimPrefix(d.URL, "http") + "/ws/alerts"
}

func (d *MockDaemon) Close() {
	d.srv.Close()
	if d.shutdownTrace != nil {
		d.shutdownTrace()
	}
	if d.closeStore != nil {
		if err := d.closeStore(); err != nil {
			log.Warnf("close store: %v", err)
		}
	}
}

func MockMain(ctx context.Context, repoPath string, cfg *config.Config) (*MockDaemon, error) {
	d := &MockDaemon{
		Ledger: testhelper.NewMockLedger(),
		Clock:  testhelper.NewFakeClock(time.Now().UTC()),
		Alerts: &testhelper.AlertRecorder{},
		Feed:   testhelper.NewMockFeed(),
	}
	d.Ledger.AutoMine = true
	d.Ledger.SetGasPrice(big.NewInt(1_000_000_000))

	var st store.Store = store.NewMemoryStore()
	if cfg.Store.Type == config.StoreSQLite {
		sqlStore, err := store.OpenSQLite(filepath.Join(repoPath, cfg.Store.Path))
		if err != nil {
			return nil, err
		}
		d.closeStore = sqlStore.Close
		st = sqlStore
	}
	hub := notify.NewHub()
	alerts := notify.Multi{notify.LogSink{}, d.Alerts, hub}

	pmCfg, err := cfg.PaymasterConfig()
	if err != nil {
		return nil, err
	}
	d.Ledger.SetBalance(pmCfg.Address, testhelper.Wei("1000000000000000000"))

	sponsor := paymaster.NewLedger(st, d.Ledger, alerts, d.Clock, pmCfg)
	proofs := proof.NewRegistry(st, d.Clock, cfg.ProofConfig())
	sm := ghostwallet.NewStateMachine(st, d.Ledger, sponsor, proofs, alerts, d.Clock, cfg.WalletConfig())
	sessions := ghostwallet.NewSessionService(st, sm, d.Clock)

	d.Reconciler = reconcile.NewReconciler(sm, sponsor, d.Ledger, d.Feed, alerts, d.Clock, cfg.ReconcileConfig())
	go d.Reconciler.Run(ctx)

	impl := api.NewGhostAPIImpl(sm, sessions, proofs, sponsor, proxy.NewProxy())

	log.Infof("ghost-wallet current version %s", version.UserVersion)

	router := mux.NewRouter()
	router.Handle("/rpc/v0", api.NewRPCServer(impl))
	router.Handle("/ws/alerts", hub)
	router.Handle("/healthz", healthcheck.Handler(
		healthcheck.WithChecker("store", healthcheck.CheckerFunc(st.Ping)),
	))

	if d.Jwt, err = utils.NewLocalJwtClient(repoPath); err != nil {
		return nil, fmt.Errorf("failed to generate local jwt client: %v", err)
	}
	d.Token = d.Jwt.Token

	handler := http.Handler(&auth.Handler{Verify: d.Jwt.Verify, Next: router.ServeHTTP})

	exporter, err := metrics.SetupJaegerTracing(cfg.Trace.ServerName, cfg.Trace)
	if err != nil {
		return nil, fmt.Errorf("setup jaeger tracing failed %v: %w", cfg.Trace, err)
	}
	if exporter != nil {
		log.Info("register jaeger exporter success!")
		d.shutdownTrace = func() {
			if err := metrics.ShutdownJaeger(context.Background(), exporter); err != nil {
				log.Warnf("shutdown jaeger exporter: %v", err)
			}
		}
		handler = &ochttp.Handler{Handler: handler}
	}

	d.srv = httptest.NewServer(handler)
	d.URL = d.srv.URL
	return d, nil
}
