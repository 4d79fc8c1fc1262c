package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beutife/Ghost-Wallet/ghostwallet"
	"github.com/Beutife/Ghost-Wallet/paymaster"
	"github.com/Beutife/Ghost-Wallet/proof"
	"github.com/Beutife/Ghost-Wallet/store"
	"github.com/Beutife/Ghost-Wallet/testhelper"
	"github.com/Beutife/Ghost-Wallet/types"
)

var (
	t0         = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	owner      = common.HexToAddress("0x1000000000000000000000000000000000000001")
	walletAddr = common.HexToAddress("0x2000000000000000000000000000000000000002")
	target     = common.HexToAddress("0x4000000000000000000000000000000000000004")
	pmAddr     = common.HexToAddress("0xfee0000000000000000000000000000000000001")
)

type env struct {
	chain   *testhelper.MockLedger
	clock   *testhelper.FakeClock
	alerts  *testhelper.AlertRecorder
	feed    *testhelper.MockFeed
	sponsor *paymaster.Ledger
	sm      *ghostwallet.StateMachine
	r       *Reconciler
}

func newEnv(t *testing.T) *env {
	st := store.NewMemoryStore()
	chain := testhelper.NewMockLedger()
	chain.SetGasPrice(big.NewInt(1_000_000_000))
	chain.SetBalance(pmAddr, testhelper.Wei("1000000000000000000"))
	clock := testhelper.NewFakeClock(t0)
	alerts := &testhelper.AlertRecorder{}
	feed := testhelper.NewMockFeed()

	sponsor := paymaster.NewLedger(st, chain, alerts, clock, paymaster.Config{
		Address:       pmAddr,
		MaxGasSponsor: testhelper.Wei("10000000000000000"),
	})
	sm := ghostwallet.NewStateMachine(st, chain, sponsor, proof.NewRegistry(st, clock, proof.DefaultConfig()), alerts, clock, ghostwallet.DefaultConfig())
	ghostwallet.NewSessionService(st, sm, clock)

	r := NewReconciler(sm, sponsor, chain, feed, alerts, clock, Config{
		PollInterval: 10 * time.Millisecond,
		ReceiptWait:  time.Second,
		StaleAfter:   30 * time.Minute,
		DropAfter:    24 * time.Hour,
	})
	return &env{chain: chain, clock: clock, alerts: alerts, feed: feed, sponsor: sponsor, sm: sm, r: r}
}

func (e *env) execute(t *testing.T, amount int64) *types.Transaction {
	tx, err := e.sm.Execute(context.Background(), walletAddr, owner, ghostwallet.Call{Target: target, Value: big.NewInt(amount)})
	require.NoError(t, err)
	return tx
}

func (e *env) wallet(t *testing.T) {
	_, err := e.sm.Register(context.Background(), ghostwallet.RegisterRequest{Address: walletAddr, Owner: owner})
	require.NoError(t, err)
}

func TestHandleEventSettlesTransaction(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.wallet(t)
	tx := e.execute(t, 10)

	// unmined: nothing changes
	require.NoError(t, e.r.HandleEvent(ctx, &types.LedgerEvent{Kind: types.EventWalletExecuted, TxHash: tx.TxHash}))
	cur, err := e.sm.GetTransaction(ctx, tx.TxHash)
	require.NoError(t, err)
	assert.Equal(t, types.TxPending, cur.Status)

	e.chain.Mine(tx.TxHash, types.ReceiptSuccess)
	require.NoError(t, e.r.HandleEvent(ctx, &types.LedgerEvent{Kind: types.EventWalletExecuted, TxHash: tx.TxHash}))
	cur, err = e.sm.GetTransaction(ctx, tx.TxHash)
	require.NoError(t, err)
	assert.Equal(t, types.TxConfirmed, cur.Status)

	s, err := e.sponsor.GetByTxHash(ctx, tx.TxHash)
	require.NoError(t, err)
	assert.Equal(t, types.SponsorshipConfirmed, s.Status)

	// a duplicate delivery is a no-op
	require.NoError(t, e.r.HandleEvent(ctx, &types.LedgerEvent{Kind: types.EventGasSponsored, TxHash: tx.TxHash}))
	assert.Empty(t, e.alerts.Alerts())
}

func TestHandleEventWithoutRecord(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	unknown := common.HexToHash("0xbad")

	require.NoError(t, e.r.HandleEvent(ctx, &types.LedgerEvent{Kind: types.EventSwept, TxHash: unknown}))
	require.NoError(t, e.r.HandleEvent(ctx, &types.LedgerEvent{Kind: types.EventGasSponsored, TxHash: unknown}))

	alerts := e.alerts.Alerts()
	require.Len(t, alerts, 2)
	for _, a := range alerts {
		assert.Equal(t, types.AlertReconciliation, a.Kind)
		assert.Equal(t, unknown, a.TxHash)
	}
}

func TestGhostCreatedRegistersWallet(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ev := &types.LedgerEvent{Kind: types.EventGhostCreated, TxHash: common.HexToHash("0xd0"), Wallet: walletAddr, Owner: owner}

	require.NoError(t, e.r.HandleEvent(ctx, ev))
	w, err := e.sm.Get(ctx, walletAddr)
	require.NoError(t, err)
	assert.Equal(t, owner, w.Owner)
	assert.Equal(t, ev.TxHash, w.DeploymentTxHash)

	require.NoError(t, e.r.HandleEvent(ctx, ev))
}

func TestSponsorshipWithoutTransaction(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	hash := common.HexToHash("0xc0ffee")

	s, err := e.sponsor.RecordSponsorship(ctx, paymaster.SponsorRequest{
		Wallet:        walletAddr,
		OperationType: types.OpWalletCreation,
		GasLimit:      types.WalletCreationGasLimit,
	})
	require.NoError(t, err)
	_, err = e.sponsor.AttachTxHash(ctx, s.ID, hash)
	require.NoError(t, err)

	e.chain.Mine(hash, types.ReceiptSuccess)
	require.NoError(t, e.r.HandleEvent(ctx, &types.LedgerEvent{Kind: types.EventGasSponsored, TxHash: hash}))

	s, err = e.sponsor.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SponsorshipConfirmed, s.Status)
	assert.Equal(t, "21000000000000", s.GasCost.String())
}

func TestPollPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.wallet(t)
	mined := e.execute(t, 1)
	stuck := e.execute(t, 2)
	e.chain.Mine(mined.TxHash, types.ReceiptReverted)

	n, err := e.r.PollPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tx, err := e.sm.GetTransaction(ctx, mined.TxHash)
	require.NoError(t, err)
	assert.Equal(t, types.TxReverted, tx.Status)
	assert.Empty(t, e.alerts.Alerts())

	e.clock.Advance(31 * time.Minute)
	for i := 0; i < 2; i++ {
		n, err = e.r.PollPending(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	}
	alerts := e.alerts.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, stuck.TxHash, alerts[0].TxHash)
}

func TestPollPendingDropsUnmined(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.wallet(t)
	tx := e.execute(t, 3)
	require.NotEmpty(t, tx.SponsorshipID)

	e.clock.Advance(23 * time.Hour)
	n, err := e.r.PollPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	e.clock.Advance(time.Hour)
	n, err = e.r.PollPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cur, err := e.sm.GetTransaction(ctx, tx.TxHash)
	require.NoError(t, err)
	assert.Equal(t, types.TxFailed, cur.Status)
	assert.Contains(t, cur.ErrorMessage, "not mined within")

	s, err := e.sponsor.GetByTxHash(ctx, tx.TxHash)
	require.NoError(t, err)
	assert.Equal(t, types.SponsorshipFailed, s.Status)
	assert.False(t, s.Reverted)

	pending, err := e.sponsor.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	n, err = e.r.PollPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRunFollowsFeed(t *testing.T) {
	e := newEnv(t)
	e.wallet(t)
	tx := e.execute(t, 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.r.Run(ctx)
	}()

	e.chain.Mine(tx.TxHash, types.ReceiptSuccess)
	e.feed.Publish(&types.LedgerEvent{Kind: types.EventWalletExecuted, TxHash: tx.TxHash})

	require.Eventually(t, func() bool {
		cur, err := e.sm.GetTransaction(context.Background(), tx.TxHash)
		return err == nil && cur.Status == types.TxConfirmed
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not stop")
	}
}
