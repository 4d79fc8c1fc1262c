package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/Beutife/Ghost-Wallet/types"
)

var (
	t0     = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	owner  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	wallet = common.HexToAddress("0x2000000000000000000000000000000000000002")
	keyA   = common.HexToAddress("0xa000000000000000000000000000000000000000")
)

func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "ghost.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func newWallet() *types.GhostWallet {
	return &types.GhostWallet{
		Address:          wallet,
		Owner:            owner,
		Network:          types.NetworkSepolia,
		CreatedAt:        t0,
		LastKnownBalance: big.NewInt(85),
		SpendingLimit: &types.SpendingLimit{
			MaxPerTx:   big.NewInt(50),
			MaxPerDay:  big.NewInt(120),
			SpentToday: big.Zero(),
		},
	}
}

func TestWalletStore(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		w := newWallet()
		require.NoError(t, s.CreateWallet(ctx, w))
		require.EqualValues(t, 1, w.Version)
		require.ErrorIs(t, s.CreateWallet(ctx, newWallet()), ErrAlreadyExists)

		got, err := s.GetWallet(ctx, wallet)
		require.NoError(t, err)
		require.Equal(t, owner, got.Owner)
		require.Equal(t, "85", got.LastKnownBalance.String())
		require.Equal(t, "120", got.SpendingLimit.MaxPerDay.String())

		got.Keys = append(got.Keys, types.EphemeralKey{KeyAddress: keyA, AddedAt: t0, ExpiresAt: t0.Add(time.Hour)})
		got.SpendingLimit.SpentToday = big.NewInt(40)
		require.NoError(t, s.UpdateWallet(ctx, got))
		require.EqualValues(t, 2, got.Version)

		// stale writer loses
		w.Label = "stale"
		require.ErrorIs(t, s.UpdateWallet(ctx, w), ErrVersionConflict)

		again, err := s.GetWallet(ctx, wallet)
		require.NoError(t, err)
		require.Len(t, again.Keys, 1)
		require.Equal(t, keyA, again.Keys[0].KeyAddress)
		require.True(t, again.Keys[0].ExpiresAt.Equal(t0.Add(time.Hour)))
		require.Equal(t, "40", again.SpendingLimit.SpentToday.String())
		require.Empty(t, again.Label)

		_, err = s.GetWallet(ctx, common.HexToAddress("0xdead"))
		require.ErrorIs(t, err, ErrNotFound)

		missing := newWallet()
		missing.Address = common.HexToAddress("0xbeef")
		require.ErrorIs(t, s.UpdateWallet(ctx, missing), ErrNotFound)

		destroyed := newWallet()
		destroyed.Address = common.HexToAddress("0x3000000000000000000000000000000000000003")
		destroyed.Destroyed = true
		destroyed.CreatedAt = t0.Add(time.Hour)
		require.NoError(t, s.CreateWallet(ctx, destroyed))

		list, err := s.ListWalletsByOwner(ctx, owner, false)
		require.NoError(t, err)
		require.Len(t, list, 1)
		list, err = s.ListWalletsByOwner(ctx, owner, true)
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, destroyed.Address, list[0].Address)
	})
}

func TestConcurrentCAS(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateWallet(ctx, newWallet()))

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := CAS(ctx, 50,
					func(ctx context.Context) (*types.GhostWallet, error) { return s.GetWallet(ctx, wallet) },
					func(w *types.GhostWallet) (*types.GhostWallet, bool, error) {
						next := w.Clone()
						next.TotalTransactions++
						return next, true, nil
					},
					s.UpdateWallet)
				require.NoError(t, err)
			}()
		}
		wg.Wait()

		w, err := s.GetWallet(ctx, wallet)
		require.NoError(t, err)
		require.EqualValues(t, 8, w.TotalTransactions)
		require.EqualValues(t, 9, w.Version)
	})
}

func TestSessionStore(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mk := func(token string, status types.SessionStatus, started time.Time) *types.Session {
			return &types.Session{
				Token:               token,
				WalletAddress:       wallet,
				EphemeralKeyAddress: keyA,
				StartedAt:           started,
				ExpiresAt:           started.Add(time.Hour),
				DurationSecs:        3600,
				Status:              status,
			}
		}
		active := mk("active", types.SessionActive, t0)
		old := mk("old", types.SessionEnded, t0.Add(-40*24*time.Hour))
		old.EndedAt = t0.Add(-39 * 24 * time.Hour)
		recent := mk("recent", types.SessionExpired, t0.Add(-2*time.Hour))
		recent.EndedAt = t0.Add(-time.Hour)
		for _, sess := range []*types.Session{active, old, recent} {
			require.NoError(t, s.CreateSession(ctx, sess))
		}
		require.ErrorIs(t, s.CreateSession(ctx, mk("active", types.SessionActive, t0)), ErrAlreadyExists)

		list, err := s.ListSessions(ctx, SessionFilter{Wallet: wallet, Status: []types.SessionStatus{types.SessionActive}})
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, "active", list[0].Token)

		list, err = s.ListSessions(ctx, SessionFilter{Key: keyA, ExpiresBefore: t0})
		require.NoError(t, err)
		require.Len(t, list, 2)

		got, err := s.GetSession(ctx, "active")
		require.NoError(t, err)
		got.TransactionCount = 3
		require.NoError(t, s.UpdateSession(ctx, got))
		require.ErrorIs(t, s.UpdateSession(ctx, active), ErrVersionConflict)

		n, err := s.DeleteSessionsEndedBefore(ctx, t0.Add(-30*24*time.Hour))
		require.NoError(t, err)
		require.Equal(t, 1, n)
		_, err = s.GetSession(ctx, "old")
		require.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetSession(ctx, "recent")
		require.NoError(t, err)
	})
}

func TestProofStorePurge(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mk := func(hash string, submitted time.Time) *types.Proof {
			return &types.Proof{
				Hash:          hash,
				Type:          types.ProofTransactionAuthorization,
				Nonce:         "n-" + hash,
				SubmittedAt:   submitted,
				ExpiresAt:     submitted.Add(5 * time.Minute),
				PublicSignals: []string{"1", "2"},
			}
		}
		fresh := mk("fresh", t0)
		stale := mk("stale", t0.Add(-48*time.Hour))
		flagged := mk("flagged", t0)
		flagged.FlaggedForCleanup = true
		consumed := mk("consumed", t0.Add(-48*time.Hour))
		consumed.Verified, consumed.IsValid, consumed.Used = true, true, true
		consumed.FlaggedForCleanup = true
		for _, p := range []*types.Proof{fresh, stale, flagged, consumed} {
			require.NoError(t, s.CreateProof(ctx, p))
		}
		require.ErrorIs(t, s.CreateProof(ctx, mk("fresh", t0)), ErrAlreadyExists)

		got, err := s.GetProof(ctx, "fresh")
		require.NoError(t, err)
		require.Equal(t, []string{"1", "2"}, got.PublicSignals)

		n, err := s.PurgeProofs(ctx, ProofPurge{SubmittedBefore: t0.Add(-24 * time.Hour), Flagged: true})
		require.NoError(t, err)
		require.Equal(t, 2, n)

		for hash, exists := range map[string]bool{"fresh": true, "stale": false, "flagged": false, "consumed": true} {
			_, err := s.GetProof(ctx, hash)
			if exists {
				require.NoError(t, err, hash)
			} else {
				require.ErrorIs(t, err, ErrNotFound, hash)
			}
		}

		n, err = s.PurgeProofs(ctx, ProofPurge{ExpiredBy: t0.Add(5 * time.Minute)})
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})
}

func TestSponsorshipStore(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		pm := common.HexToAddress("0x9000000000000000000000000000000000000009")
		mk := func(id string, at time.Time) *types.Sponsorship {
			return &types.Sponsorship{
				ID:               id,
				UserWallet:       wallet,
				Paymaster:        pm,
				OperationType:    types.OpTransactionExecution,
				EstimatedGasCost: big.NewInt(1_000_000_000_000),
				Status:           types.SponsorshipPending,
				SponsoredAt:      at,
			}
		}
		a, b := mk("a", t0), mk("b", t0.Add(time.Minute))
		require.NoError(t, s.CreateSponsorship(ctx, a))
		require.NoError(t, s.CreateSponsorship(ctx, b))

		hash := common.HexToHash("0xabc")
		a.TxHash = hash
		require.NoError(t, s.UpdateSponsorship(ctx, a))

		b.TxHash = hash
		require.ErrorIs(t, s.UpdateSponsorship(ctx, b), ErrAlreadyExists)

		got, err := s.GetSponsorshipByTxHash(ctx, hash)
		require.NoError(t, err)
		require.Equal(t, "a", got.ID)
		require.Equal(t, "1000000000000", got.EstimatedGasCost.String())

		_, err = s.GetSponsorshipByTxHash(ctx, common.HexToHash("0xdef"))
		require.ErrorIs(t, err, ErrNotFound)

		got.Status = types.SponsorshipConfirmed
		got.GasCost, _ = big.FromString("630000000000000")
		require.NoError(t, s.UpdateSponsorship(ctx, got))

		pending, err := s.ListSponsorships(ctx, SponsorshipFilter{Status: []types.SponsorshipStatus{types.SponsorshipPending}})
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.Equal(t, "b", pending[0].ID)

		all, err := s.ListSponsorships(ctx, SponsorshipFilter{Paymaster: pm, NewestFirst: true, Limit: 1})
		require.NoError(t, err)
		require.Len(t, all, 1)
		require.Equal(t, "b", all[0].ID)

		confirmed, err := s.GetSponsorship(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, "630000000000000", confirmed.GasCost.String())
		require.True(t, confirmed.BalanceAfter.Nil())

		confirmed.BalanceAfter = big.NewInt(5)
		require.NoError(t, s.UpdateSponsorship(ctx, confirmed))
		confirmed, err = s.GetSponsorship(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, "5", confirmed.BalanceAfter.String())
	})
}

func TestTransactionStore(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for i, status := range []types.TxStatus{types.TxPending, types.TxConfirmed, types.TxPending} {
			tx := &types.Transaction{
				TxHash:        common.BigToHash(big.NewInt(int64(i + 1)).Int),
				WalletAddress: wallet,
				Type:          types.TxExecute,
				Caller:        keyA,
				Value:         big.NewInt(int64(10 * (i + 1))),
				Status:        status,
				SubmittedAt:   t0.Add(time.Duration(i) * time.Minute),
			}
			require.NoError(t, s.CreateTransaction(ctx, tx))
		}

		pending, err := s.ListTransactions(ctx, TransactionFilter{Wallet: wallet, Status: []types.TxStatus{types.TxPending}})
		require.NoError(t, err)
		require.Len(t, pending, 2)
		require.Equal(t, "30", pending[0].Value.String())

		tx, err := s.GetTransaction(ctx, common.BigToHash(big.NewInt(1).Int))
		require.NoError(t, err)
		tx.Status = types.TxReverted
		require.NoError(t, s.UpdateTransaction(ctx, tx))

		_, err = s.GetTransaction(ctx, common.HexToHash("0xffff"))
		require.True(t, errors.Is(err, ErrNotFound))

		limited, err := s.ListTransactions(ctx, TransactionFilter{Limit: 2})
		require.NoError(t, err)
		require.Len(t, limited, 2)
	})
}
