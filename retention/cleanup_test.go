package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beutife/Ghost-Wallet/proof"
	"github.com/Beutife/Ghost-Wallet/store"
	"github.com/Beutife/Ghost-Wallet/testhelper"
	"github.com/Beutife/Ghost-Wallet/types"
)

type sessionsFunc func(context.Context, time.Duration) (int, int, error)

func (f sessionsFunc) Cleanup(ctx context.Context, retention time.Duration) (int, int, error) {
	return f(ctx, retention)
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	clock := testhelper.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	st := store.NewMemoryStore()
	proofs := proof.NewRegistry(st, clock, proof.DefaultConfig())

	for _, h := range []string{"keep", "flagged", "stale"} {
		_, err := proofs.Submit(ctx, proof.SubmitRequest{Hash: h, Type: types.ProofTransactionAuthorization, Nonce: h})
		require.NoError(t, err)
	}
	_, err := proofs.MarkForCleanup(ctx, "flagged")
	require.NoError(t, err)

	var gotRetention time.Duration
	sessions := sessionsFunc(func(_ context.Context, retention time.Duration) (int, int, error) {
		gotRetention = retention
		return 2, 1, nil
	})

	c := NewCleaner(sessions, proofs, Config{SessionRetention: 48 * time.Hour})
	stats, err := c.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, gotRetention)
	assert.Equal(t, Stats{SessionsExpired: 2, SessionsDeleted: 1, ProofsPurged: 1}, stats)

	clock.Advance(6 * time.Minute)
	stats, err = c.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ProofsPurged)
}

func TestRunOnceKeepsGoingAfterError(t *testing.T) {
	ctx := context.Background()
	clock := testhelper.NewFakeClock(time.Now())
	st := store.NewMemoryStore()
	proofs := proof.NewRegistry(st, clock, proof.DefaultConfig())
	_, err := proofs.Submit(ctx, proof.SubmitRequest{Hash: "p", Type: types.ProofWalletCreation, Nonce: "n"})
	require.NoError(t, err)
	_, err = proofs.MarkForCleanup(ctx, "p")
	require.NoError(t, err)

	boom := errors.New("database is locked")
	c := NewCleaner(sessionsFunc(func(context.Context, time.Duration) (int, int, error) {
		return 0, 0, boom
	}), proofs, Config{})

	stats, err := c.RunOnce(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, stats.ProofsPurged)
}

func TestRunStopsWithContext(t *testing.T) {
	calls := make(chan struct{}, 16)
	c := NewCleaner(sessionsFunc(func(context.Context, time.Duration) (int, int, error) {
		select {
		case calls <- struct{}{}:
		default:
		}
		return 0, 0, nil
	}), nil, Config{SessionInterval: 5 * time.Millisecond, ProofInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("session cleanup never ran")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleaner did not stop")
	}
}
