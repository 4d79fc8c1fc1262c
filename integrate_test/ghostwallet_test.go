package integrate

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beutife/Ghost-Wallet/api"
	"github.com/Beutife/Ghost-Wallet/config"
	"github.com/Beutife/Ghost-Wallet/ghostwallet"
	"github.com/Beutife/Ghost-Wallet/proof"
	"github.com/Beutife/Ghost-Wallet/types"
	"github.com/Beutife/Ghost-Wallet/utils"
	"github.com/Beutife/Ghost-Wallet/version"
)

var (
	owner         = common.HexToAddress("0x1000000000000000000000000000000000000001")
	walletAddr    = common.HexToAddress("0x2000000000000000000000000000000000000002")
	target        = common.HexToAddress("0x4000000000000000000000000000000000000004")
	paymasterAddr = "0xfee0000000000000000000000000000000000001"
)

func defaultTestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Store.Type = config.StoreMemory
	cfg.Contracts.Paymaster = paymasterAddr
	return cfg
}

func setupDaemon(t *testing.T, ctx context.Context, cfg *config.Config) *MockDaemon {
	d, err := MockMain(ctx, t.TempDir(), cfg)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func newClient(t *testing.T, ctx context.Context, d *MockDaemon, token []byte) api.GhostWalletAPI {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+string(token))
	client, closer, err := api.NewClient(ctx, d.RPCURL(), header)
	require.NoError(t, err)
	t.Cleanup(closer)
	return client
}

func pay(wei int64) ghostwallet.Call {
	return ghostwallet.Call{Target: target, Value: big.NewInt(wei)}
}

func TestWalletAPI(t *testing.T) {
	t.Run("memory store", func(t *testing.T) {
		testWalletAPI(t, defaultTestConfig())
	})
	t.Run("sqlite store", func(t *testing.T) {
		cfg := defaultTestConfig()
		cfg.Store.Type = config.StoreSQLite
		cfg.Store.Path = "ghostwallet.db"
		testWalletAPI(t, cfg)
	})
}

func testWalletAPI(t *testing.T, cfg *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := setupDaemon(t, ctx, cfg)
	client := newClient(t, ctx, d, d.Token)

	v, err := client.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, version.UserVersion, v)

	w, err := client.RegisterWallet(ctx, ghostwallet.RegisterRequest{
		Address:          walletAddr,
		Owner:            owner,
		DeploymentTxHash: common.HexToHash("0xd0"),
	})
	require.NoError(t, err)
	assert.Equal(t, walletAddr, w.Address)

	t.Run("set spending limit", func(t *testing.T) {
		w, err := client.SetSpendingLimit(ctx, walletAddr, owner, ghostwallet.LimitInput{
			MaxPerTx:  big.NewInt(100),
			MaxPerDay: big.NewInt(150),
		})
		require.NoError(t, err)
		assert.Equal(t, "100", w.SpendingLimit.MaxPerTx.String())
	})

	var executed common.Hash
	t.Run("session key spends within limits", func(t *testing.T) {
		started, err := client.StartSession(ctx, ghostwallet.StartRequest{Wallet: walletAddr, Caller: owner, Duration: time.Hour})
		require.NoError(t, err)
		require.NotEmpty(t, started.PrivateKey)
		key := started.Session.EphemeralKeyAddress

		tx, err := client.Execute(ctx, walletAddr, key, pay(80))
		require.NoError(t, err)
		assert.Equal(t, types.TxExecute, tx.Type)
		executed = tx.TxHash

		_, err = client.Execute(ctx, walletAddr, key, pay(80))
		require.Error(t, err)
		assert.Contains(t, err.Error(), string(types.CodeSpendingLimit))

		state, err := client.SpendingState(ctx, walletAddr)
		require.NoError(t, err)
		assert.Equal(t, "70", state.Remaining.String())

		active, err := client.ActiveSessions(ctx, walletAddr)
		require.NoError(t, err)
		assert.Len(t, active, 1)

		ended, err := client.EndSession(ctx, started.Session.Token, owner)
		require.NoError(t, err)
		assert.Equal(t, types.SessionEnded, ended.Status)

		_, err = client.Execute(ctx, walletAddr, key, pay(1))
		require.Error(t, err)
		assert.Contains(t, err.Error(), string(types.CodeSessionExpired))
	})

	t.Run("transactions", func(t *testing.T) {
		txs, err := client.ListTransactions(ctx, walletAddr, 0)
		require.NoError(t, err)
		kinds := make(map[types.TxType]int)
		for _, tx := range txs {
			kinds[tx.Type]++
		}
		assert.Equal(t, 1, kinds[types.TxAddEphemeralKey])
		assert.Equal(t, 1, kinds[types.TxRevokeEphemeralKey])

		_, err = d.Reconciler.PollPending(ctx)
		require.NoError(t, err)
		tx, err := client.GetTransaction(ctx, executed)
		require.NoError(t, err)
		assert.Equal(t, types.TxConfirmed, tx.Status)
		assert.Equal(t, "80", tx.Value.String())
	})

	t.Run("paymaster", func(t *testing.T) {
		status, err := client.PaymasterStatus(ctx)
		require.NoError(t, err)
		assert.True(t, status.Healthy)
		assert.Equal(t, 0, status.PendingCount)

		recent, err := client.RecentSponsorships(ctx, 10)
		require.NoError(t, err)
		assert.NotEmpty(t, recent)

		refundTx := common.HexToHash("0xef")
		s, err := client.RecordRefund(ctx, executed, big.NewInt(1000), refundTx)
		require.NoError(t, err)
		assert.True(t, s.Refunded)
		assert.Equal(t, "1000", s.RefundAmount.String())
		assert.Equal(t, refundTx, s.RefundTxHash)

		_, err = client.RecordRefund(ctx, executed, big.NewInt(1000), refundTx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), string(types.CodeAlreadyRefunded))
	})

	t.Run("revoke session", func(t *testing.T) {
		started, err := client.StartSession(ctx, ghostwallet.StartRequest{Wallet: walletAddr, Caller: owner, Duration: time.Hour})
		require.NoError(t, err)
		key := started.Session.EphemeralKeyAddress

		revoked, err := client.RevokeSession(ctx, started.Session.Token, owner)
		require.NoError(t, err)
		assert.Equal(t, types.SessionRevoked, revoked.Status)
		assert.True(t, revoked.OnChainRevoked)

		_, err = client.Execute(ctx, walletAddr, key, pay(1))
		require.Error(t, err)
		assert.Contains(t, err.Error(), string(types.CodeSessionExpired))
	})
}

func TestProofAPI(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := setupDaemon(t, ctx, defaultTestConfig())
	client := newClient(t, ctx, d, d.Token)

	p, err := client.SubmitProof(ctx, proof.SubmitRequest{
		Hash:          "0xproof",
		Type:          types.ProofWalletCreation,
		Nonce:         "1",
		WalletAddress: walletAddr,
	})
	require.NoError(t, err)
	assert.False(t, p.Verified)

	_, err = client.SubmitProof(ctx, proof.SubmitRequest{Hash: "0xproof", Type: types.ProofWalletCreation, Nonce: "2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(types.CodeProofUsed))

	p, err = client.VerifyProof(ctx, "0xproof", true, "")
	require.NoError(t, err)
	assert.True(t, p.IsValid)

	replay, err := client.IsProofReplay(ctx, "0xproof")
	require.NoError(t, err)
	assert.False(t, replay)

	_, err = client.RegisterWallet(ctx, ghostwallet.RegisterRequest{
		Address:          walletAddr,
		Owner:            owner,
		DeploymentTxHash: common.HexToHash("0xd0"),
		CreationProof:    "0xproof",
	})
	require.NoError(t, err)

	replay, err = client.IsProofReplay(ctx, "0xproof")
	require.NoError(t, err)
	assert.True(t, replay)

	p, err = client.GetProof(ctx, "0xproof")
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xd0"), p.UsedForTxHash)
}

func TestPermission(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := setupDaemon(t, ctx, defaultTestConfig())

	token, err := d.Jwt.Issue("viewer", utils.PermRead)
	require.NoError(t, err)
	client := newClient(t, ctx, d, token)

	_, err = client.Version(ctx)
	require.NoError(t, err)

	_, err = client.RegisterWallet(ctx, ghostwallet.RegisterRequest{Address: walletAddr, Owner: owner})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing permission")

	_, err = client.PendingSponsorships(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing permission")

	_, err = client.RevokeSession(ctx, "token", owner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing permission")

	_, err = client.RecordRefund(ctx, common.HexToHash("0xd0"), big.NewInt(1), common.HexToHash("0xef"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing permission")
}

func TestLowBalanceAlertStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := defaultTestConfig()
	cfg.Paymaster.AlertThreshold = "2"
	d := setupDaemon(t, ctx, cfg)
	client := newClient(t, ctx, d, d.Token)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+string(d.Token))
	conn, _, err := websocket.DefaultDialer.Dial(d.AlertsURL(), header)
	require.NoError(t, err)
	defer conn.Close() //nolint

	// the hub registers the subscriber after the upgrade completes
	time.Sleep(50 * time.Millisecond)

	_, err = client.PaymasterStatus(ctx)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var alert types.Alert
	require.NoError(t, conn.ReadJSON(&alert))
	assert.Equal(t, types.AlertLowBalance, alert.Kind)
	assert.Equal(t, common.HexToAddress(paymasterAddr), alert.Paymaster)
	assert.Equal(t, 1, d.Alerts.Count(types.AlertLowBalance))
}
