// Package store persists the ghost wallet entities. Updates are optimistic:
// a record is written only if its Version still matches the stored one, so
// concurrent service instances coordinate through the store instead of locks.
package store

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"github.com/Beutife/Ghost-Wallet/types"
)

var log = logging.Logger("store")

var (
	ErrNotFound        = errors.New("record not found")
	ErrAlreadyExists   = errors.New("record already exists")
	ErrVersionConflict = errors.New("record was modified concurrently")
)

// WalletStore keys wallets by address. UpdateWallet succeeds only when
// w.Version equals the stored version, and bumps w.Version on success.
type WalletStore interface {
	CreateWallet(ctx context.Context, w *types.GhostWallet) error
	GetWallet(ctx context.Context, addr common.Address) (*types.GhostWallet, error)
	UpdateWallet(ctx context.Context, w *types.GhostWallet) error
	ListWalletsByOwner(ctx context.Context, owner common.Address, includeDestroyed bool) ([]*types.GhostWallet, error)
}

type SessionFilter struct {
	Wallet common.Address
	Key    common.Address
	Status []types.SessionStatus
	// ExpiresBefore keeps sessions whose deadline is at or before it.
	ExpiresBefore time.Time
}

type SessionStore interface {
	CreateSession(ctx context.Context, s *types.Session) error
	GetSession(ctx context.Context, token string) (*types.Session, error)
	UpdateSession(ctx context.Context, s *types.Session) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]*types.Session, error)
	// DeleteSessionsEndedBefore removes terminal sessions whose EndedAt is before cutoff.
	DeleteSessionsEndedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// ProofPurge selects unused proofs to delete. Consumed proofs never match.
type ProofPurge struct {
	SubmittedBefore time.Time
	ExpiredBy       time.Time
	Flagged         bool
}

type ProofStore interface {
	CreateProof(ctx context.Context, p *types.Proof) error
	GetProof(ctx context.Context, hash string) (*types.Proof, error)
	UpdateProof(ctx context.Context, p *types.Proof) error
	PurgeProofs(ctx context.Context, purge ProofPurge) (int, error)
}

type SponsorshipFilter struct {
	Paymaster common.Address
	Wallet    common.Address
	Status    []types.SponsorshipStatus
	// NewestFirst orders by SponsoredAt descending, oldest first otherwise.
	NewestFirst bool
	Limit       int
}

type SponsorshipStore interface {
	CreateSponsorship(ctx context.Context, s *types.Sponsorship) error
	GetSponsorship(ctx context.Context, id string) (*types.Sponsorship, error)
	GetSponsorshipByTxHash(ctx context.Context, txHash common.Hash) (*types.Sponsorship, error)
	UpdateSponsorship(ctx context.Context, s *types.Sponsorship) error
	ListSponsorships(ctx context.Context, filter SponsorshipFilter) ([]*types.Sponsorship, error)
}

type TransactionFilter struct {
	Wallet common.Address
	Status []types.TxStatus
	Limit  int
}

// TransactionStore lists newest first.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx *types.Transaction) error
	GetTransaction(ctx context.Context, hash common.Hash) (*types.Transaction, error)
	UpdateTransaction(ctx context.Context, tx *types.Transaction) error
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*types.Transaction, error)
}

type Store interface {
	WalletStore
	SessionStore
	ProofStore
	SponsorshipStore
	TransactionStore

	Ping(ctx context.Context) error
	Close() error
}

// NotFound maps ErrNotFound to the typed error callers see.
func NotFound(err error, code types.ErrorCode, format string, args ...interface{}) error {
	if errors.Is(err, ErrNotFound) {
		return types.WrapError(err, types.KindNotFound, code, format, args...)
	}
	return types.WrapError(err, types.KindInternal, types.CodeDatabase, format, args...)
}

// CAS runs mutate against a fresh read until the write lands or attempts run
// out. mutate reports write=false to stop without persisting; CAS then
// returns the record as read.
func CAS[T any](ctx context.Context, attempts int, load func(context.Context) (T, error), mutate func(T) (next T, write bool, err error), save func(context.Context, T) error) (T, error) {
	var zero T
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		cur, err := load(ctx)
		if err != nil {
			return zero, err
		}
		next, write, err := mutate(cur)
		if err != nil {
			return zero, err
		}
		if !write {
			return cur, nil
		}
		err = save(ctx, next)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return zero, err
		}
		log.Debugf("version conflict, retry %d/%d", i+1, attempts)
	}
	return zero, types.WrapError(ErrVersionConflict, types.KindConflict, types.CodeConcurrentUpdate, "gave up after %d concurrent updates", attempts)
}
