package ghostwallet

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/stretchr/testify/require"

	"github.com/Beutife/Ghost-Wallet/paymaster"
	"github.com/Beutife/Ghost-Wallet/proof"
	"github.com/Beutife/Ghost-Wallet/store"
	"github.com/Beutife/Ghost-Wallet/testhelper"
	"github.com/Beutife/Ghost-Wallet/types"
)

var (
	t0          = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	owner       = common.HexToAddress("0x1000000000000000000000000000000000000001")
	walletAddr  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	outsider    = common.HexToAddress("0x3000000000000000000000000000000000000003")
	target      = common.HexToAddress("0x4000000000000000000000000000000000000004")
	paymasterID = common.HexToAddress("0xfee0000000000000000000000000000000000001")
)

type env struct {
	store    *store.MemoryStore
	chain    *testhelper.MockLedger
	clock    *testhelper.FakeClock
	alerts   *testhelper.AlertRecorder
	sponsor  *paymaster.Ledger
	proofs   *proof.Registry
	sm       *StateMachine
	sessions *SessionService
}

func newEnv(t *testing.T) *env {
	st := store.NewMemoryStore()
	chain := testhelper.NewMockLedger()
	chain.AutoMine = true
	chain.SetGasPrice(big.NewInt(1_000_000_000))
	chain.SetBalance(paymasterID, testhelper.Wei("1000000000000000000"))
	clock := testhelper.NewFakeClock(t0)
	alerts := &testhelper.AlertRecorder{}

	sponsor := paymaster.NewLedger(st, chain, alerts, clock, paymaster.Config{
		Address:        paymasterID,
		MaxGasSponsor:  testhelper.Wei("10000000000000000"),
		AlertThreshold: testhelper.Wei("100000000000000000"),
	})
	proofs := proof.NewRegistry(st, clock, proof.DefaultConfig())
	sm := NewStateMachine(st, chain, sponsor, proofs, alerts, clock, DefaultConfig())
	return &env{
		store:    st,
		chain:    chain,
		clock:    clock,
		alerts:   alerts,
		sponsor:  sponsor,
		proofs:   proofs,
		sm:       sm,
		sessions: NewSessionService(st, sm, clock),
	}
}

// register creates the test wallet with the given caps; nil caps mean none.
func (e *env) register(t *testing.T, maxPerTx, maxPerDay int64) *types.GhostWallet {
	req := RegisterRequest{
		Address:          walletAddr,
		Owner:            owner,
		DeploymentTxHash: common.HexToHash("0xd0"),
	}
	if maxPerTx > 0 || maxPerDay > 0 {
		req.SpendingLimit = &LimitInput{MaxPerTx: big.NewInt(maxPerTx), MaxPerDay: big.NewInt(maxPerDay)}
	}
	w, err := e.sm.Register(context.Background(), req)
	require.NoError(t, err)
	return w
}

func (e *env) startSession(t *testing.T, d time.Duration) *StartedSession {
	started, err := e.sessions.Start(context.Background(), StartRequest{
		Wallet:   walletAddr,
		Caller:   owner,
		Duration: d,
	})
	require.NoError(t, err)
	return started
}

func pay(amount int64) Call {
	return Call{Target: target, Value: big.NewInt(amount)}
}

func (e *env) spent(t *testing.T) string {
	w, err := e.sm.Get(context.Background(), walletAddr)
	require.NoError(t, err)
	return types.AmountString(w.SpendingLimit.SpentToday)
}
