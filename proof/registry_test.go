package proof

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beutife/Ghost-Wallet/store"
	"github.com/Beutife/Ghost-Wallet/testhelper"
	"github.com/Beutife/Ghost-Wallet/types"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newRegistry() (*Registry, *testhelper.FakeClock) {
	clock := testhelper.NewFakeClock(t0)
	return NewRegistry(store.NewMemoryStore(), clock, DefaultConfig()), clock
}

func submit(t *testing.T, r *Registry, hash string) *types.Proof {
	p, err := r.Submit(context.Background(), SubmitRequest{
		Hash:  hash,
		Type:  types.ProofTransactionAuthorization,
		Nonce: "n-" + hash,
	})
	require.NoError(t, err)
	return p
}

func TestConsumeOnce(t *testing.T) {
	r, _ := newRegistry()
	ctx := context.Background()

	p := submit(t, r, "p1")
	assert.True(t, p.ExpiresAt.Equal(t0.Add(5*time.Minute)))

	_, err := r.Verify(ctx, "p1", true, "")
	require.NoError(t, err)

	used, err := r.Consume(ctx, "p1", common.HexToHash("0xabc"))
	require.NoError(t, err)
	assert.True(t, used.Used)
	assert.Equal(t, common.HexToHash("0xabc"), used.UsedForTxHash)

	_, err = r.Consume(ctx, "p1", common.HexToHash("0xdef"))
	require.Error(t, err)
	assert.Equal(t, types.KindConflict, types.KindOf(err))
	assert.Equal(t, types.CodeProofUsed, types.CodeOf(err))

	replay, err := r.IsReplay(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, replay)

	got, err := r.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xabc"), got.UsedForTxHash)
}

func TestSubmitDuplicate(t *testing.T) {
	r, _ := newRegistry()
	submit(t, r, "p1")
	_, err := r.Submit(context.Background(), SubmitRequest{Hash: "p1", Type: types.ProofTransactionAuthorization, Nonce: "other"})
	assert.Equal(t, types.CodeProofUsed, types.CodeOf(err))

	_, err = r.Submit(context.Background(), SubmitRequest{Hash: "p2", Type: "bogus", Nonce: "n"})
	assert.Equal(t, types.KindValidation, types.KindOf(err))

	_, err = r.Submit(context.Background(), SubmitRequest{Hash: "p3", Type: types.ProofTransactionAuthorization, Nonce: "n", ExpiresAt: t0})
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}

func TestConsumeRequiresValidUnexpiredProof(t *testing.T) {
	r, clock := newRegistry()
	ctx := context.Background()

	submit(t, r, "unverified")
	_, err := r.Consume(ctx, "unverified", common.HexToHash("0x1"))
	assert.Equal(t, types.CodeInvalidProof, types.CodeOf(err))

	submit(t, r, "invalid")
	_, err = r.Verify(ctx, "invalid", false, "bad witness")
	require.NoError(t, err)
	_, err = r.Consume(ctx, "invalid", common.HexToHash("0x1"))
	assert.Equal(t, types.KindAuthorization, types.KindOf(err))

	submit(t, r, "late")
	_, err = r.Verify(ctx, "late", true, "")
	require.NoError(t, err)
	clock.Advance(5 * time.Minute)
	_, err = r.Consume(ctx, "late", common.HexToHash("0x1"))
	assert.Equal(t, types.CodeProofExpired, types.CodeOf(err))

	_, err = r.Consume(ctx, "missing", common.HexToHash("0x1"))
	assert.Equal(t, types.CodeProofNotFound, types.CodeOf(err))
}

func TestConsumeAsChecksType(t *testing.T) {
	r, _ := newRegistry()
	ctx := context.Background()
	submit(t, r, "p1")
	_, err := r.Verify(ctx, "p1", true, "")
	require.NoError(t, err)

	_, err = r.ConsumeAs(ctx, "p1", types.ProofWalletCreation, common.HexToHash("0x1"))
	assert.Equal(t, types.CodeInvalidProof, types.CodeOf(err))

	_, err = r.ConsumeAs(ctx, "p1", types.ProofTransactionAuthorization, common.HexToHash("0x1"))
	assert.NoError(t, err)
}

func TestVerifyAttemptsBounded(t *testing.T) {
	r, _ := newRegistry()
	ctx := context.Background()
	submit(t, r, "p1")

	_, err := r.RecordFailedAttempt(ctx, "p1", "verifier unreachable")
	require.NoError(t, err)
	_, err = r.Verify(ctx, "p1", false, "bad witness")
	require.NoError(t, err)
	p, err := r.Verify(ctx, "p1", true, "")
	require.NoError(t, err)
	assert.Equal(t, 3, p.VerificationAttempts)
	assert.Empty(t, p.VerificationError)

	_, err = r.Verify(ctx, "p1", true, "")
	require.Error(t, err)
	assert.Equal(t, types.CodeVerificationFailed, types.CodeOf(err))

	got, err := r.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.VerificationAttempts)
	assert.True(t, got.IsValid)
}

func TestCleanupKeepsConsumed(t *testing.T) {
	r, clock := newRegistry()
	ctx := context.Background()

	submit(t, r, "consumed")
	_, err := r.Verify(ctx, "consumed", true, "")
	require.NoError(t, err)
	_, err = r.Consume(ctx, "consumed", common.HexToHash("0x1"))
	require.NoError(t, err)

	submit(t, r, "flagged")
	_, err = r.MarkForCleanup(ctx, "flagged")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	submit(t, r, "fresh")

	n, err := r.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	clock.Advance(10 * time.Minute)
	n, err = r.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = r.Get(ctx, "consumed")
	assert.NoError(t, err)
	_, err = r.Get(ctx, "fresh")
	assert.Equal(t, types.KindNotFound, types.KindOf(err))

	// a purged unused hash can be submitted again; a consumed one cannot
	submit(t, r, "fresh")
	_, err = r.Submit(ctx, SubmitRequest{Hash: "consumed", Type: types.ProofTransactionAuthorization, Nonce: "n"})
	assert.Equal(t, types.CodeProofUsed, types.CodeOf(err))
}

func TestRestoreConsumed(t *testing.T) {
	r, _ := newRegistry()
	ctx := context.Background()
	submit(t, r, "p1")
	_, err := r.Verify(ctx, "p1", true, "")
	require.NoError(t, err)

	tx := common.HexToHash("0xd0")
	_, err = r.Consume(ctx, "p1", tx)
	require.NoError(t, err)

	_, err = r.Restore(ctx, "p1", common.HexToHash("0xd1"))
	assert.Equal(t, types.CodeProofUsed, types.CodeOf(err))

	p, err := r.Restore(ctx, "p1", tx)
	require.NoError(t, err)
	assert.False(t, p.Used)
	assert.Equal(t, common.Hash{}, p.UsedForTxHash)

	replay, err := r.IsReplay(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, replay)

	_, err = r.Consume(ctx, "p1", tx)
	require.NoError(t, err)
}
