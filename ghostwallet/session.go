package ghostwallet

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"

	"github.com/Beutife/Ghost-Wallet/metrics"
	"github.com/Beutife/Ghost-Wallet/sessionkey"
	"github.com/Beutife/Ghost-Wallet/store"
	"github.com/Beutife/Ghost-Wallet/types"
)

var _ SessionObserver = (*SessionService)(nil)

// SessionService binds a time boxed session to a freshly generated
// ephemeral key of a wallet.
type SessionService struct {
	sessions    store.SessionStore
	sm          *StateMachine
	clock       types.Clock
	casAttempts int
}

// NewSessionService registers itself as the session observer of sm.
func NewSessionService(sessions store.SessionStore, sm *StateMachine, clock types.Clock) *SessionService {
	s := &SessionService{sessions: sessions, sm: sm, clock: clock, casAttempts: sm.cfg.CASAttempts}
	sm.SetObserver(s)
	return s
}

type StartRequest struct {
	Wallet   common.Address `json:"walletAddress"`
	Caller   common.Address `json:"caller"`
	Duration time.Duration  `json:"duration"`
	// KeyAddress is generated when empty.
	KeyAddress common.Address `json:"keyAddress,omitempty"`
}

type StartedSession struct {
	Session     *types.Session     `json:"session"`
	Transaction *types.Transaction `json:"transaction"`
	// PrivateKey is only set for generated keys and is never stored.
	PrivateKey string `json:"privateKey,omitempty"`
}

// Start adds a new ephemeral key to the wallet and opens a session for it.
func (ss *SessionService) Start(ctx context.Context, req StartRequest) (*StartedSession, error) {
	if err := ss.sm.KeyBounds().CheckDuration(req.Duration); err != nil {
		return nil, err
	}

	out := &StartedSession{}
	key := req.KeyAddress
	if key == (common.Address{}) {
		priv, err := crypto.GenerateKey()
		if err != nil {
			return nil, types.WrapError(err, types.KindInternal, types.CodeInternal, "generate ephemeral key")
		}
		key = crypto.PubkeyToAddress(priv.PublicKey)
		out.PrivateKey = hexutil.Encode(crypto.FromECDSA(priv))
	}

	now := ss.clock.Now()
	expiresAt := now.Add(req.Duration)
	tx, err := ss.sm.AddEphemeralKey(ctx, req.Wallet, req.Caller, key, expiresAt)
	if err != nil {
		return nil, err
	}

	w, err := ss.sm.Get(ctx, req.Wallet)
	if err != nil {
		return nil, err
	}
	s := &types.Session{
		Token:               uuid.NewString(),
		WalletAddress:       req.Wallet,
		EphemeralKeyAddress: key,
		StartedAt:           now,
		ExpiresAt:           expiresAt,
		DurationSecs:        int64(req.Duration / time.Second),
		Status:              types.SessionActive,
		LastActivityAt:      now,
		OnChainAdded:        true,
		AddKeyTxHash:        tx.TxHash,
	}
	if err := ss.sessions.CreateSession(ctx, s); err != nil {
		return nil, types.WrapError(err, types.KindInternal, types.CodeDatabase, "store session")
	}
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.NetworkKey, string(w.Network)))
	stats.Record(ctx, metrics.SessionStarted.M(1))
	log.Infow("session started", "token", s.Token, "wallet", req.Wallet.Hex(), "key", key.Hex(), "expiresAt", expiresAt)

	out.Session = s
	out.Transaction = tx
	return out, nil
}

func (ss *SessionService) load(ctx context.Context, token string) (*types.Session, error) {
	s, err := ss.sessions.GetSession(ctx, token)
	if err != nil {
		return nil, store.NotFound(err, types.CodeSessionNotFound, "session %s", token)
	}
	return s, nil
}

func (ss *SessionService) update(ctx context.Context, token string, mutate func(*types.Session) (*types.Session, error)) (*types.Session, error) {
	return store.CAS(ctx, ss.casAttempts,
		func(ctx context.Context) (*types.Session, error) { return ss.load(ctx, token) },
		func(s *types.Session) (*types.Session, bool, error) {
			next, err := mutate(s)
			if err != nil {
				return nil, false, err
			}
			return next, next != nil, nil
		},
		ss.sessions.UpdateSession)
}

// End revokes the session key and only then marks the session ended. When
// the revocation fails the session stays active and the caller retries.
func (ss *SessionService) End(ctx context.Context, token string, caller common.Address) (*types.Session, error) {
	return ss.terminate(ctx, token, caller, sessionkey.End)
}

// Revoke is End for administrative revocation.
func (ss *SessionService) Revoke(ctx context.Context, token string, caller common.Address) (*types.Session, error) {
	return ss.terminate(ctx, token, caller, sessionkey.Revoke)
}

func (ss *SessionService) terminate(ctx context.Context, token string, caller common.Address, transition func(*types.Session, time.Time) (*types.Session, error)) (*types.Session, error) {
	s, err := ss.load(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := sessionkey.CanEnd(s, ss.clock.Now()); err != nil {
		return nil, err
	}

	tx, err := ss.sm.RevokeEphemeralKey(ctx, s.WalletAddress, caller, s.EphemeralKeyAddress)
	if err != nil {
		return nil, err
	}

	now := ss.clock.Now()
	out, err := ss.update(ctx, token, func(s *types.Session) (*types.Session, error) {
		next, err := transition(s, now)
		if err != nil {
			return nil, err
		}
		next.OnChainRevoked = true
		if tx != nil {
			next.RevokeKeyTxHash = tx.TxHash
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.StatusKey, string(out.Status)))
	stats.Record(ctx, metrics.SessionEnded.M(1))
	log.Infow("session closed", "token", token, "status", out.Status)
	return out, nil
}

// resolve brings s up to date with now and the wallet record: lazy expiry
// first, then a key revoked behind the session's back, or a destroyed wallet,
// closes it as revoked.
func resolve(s *types.Session, w *types.GhostWallet, now time.Time) (*types.Session, bool) {
	if next, changed := sessionkey.Evaluate(s, now); changed || s.Status != types.SessionActive {
		return next, changed
	}
	voided := w == nil || w.Destroyed || s.OnChainRevoked
	if !voided && len(w.FindKeys(s.EphemeralKeyAddress)) > 0 && !sessionkey.HasLiveEntry(w, s.EphemeralKeyAddress) {
		voided = true
	}
	if !voided {
		return s, false
	}
	next := s.Clone()
	next.Status = types.SessionRevoked
	next.EndedAt = now
	return next, true
}

func (ss *SessionService) refresh(ctx context.Context, s *types.Session) (*types.Session, error) {
	if s.Status != types.SessionActive {
		return s, nil
	}
	w, err := ss.sm.Get(ctx, s.WalletAddress)
	if err != nil && types.KindOf(err) != types.KindNotFound {
		return nil, err
	}
	now := ss.clock.Now()
	if _, changed := resolve(s, w, now); !changed {
		return s, nil
	}
	return ss.update(ctx, s.Token, func(cur *types.Session) (*types.Session, error) {
		next, changed := resolve(cur, w, now)
		if !changed {
			return nil, nil
		}
		return next, nil
	})
}

// Get returns the session with lazy expiry applied and persisted.
func (ss *SessionService) Get(ctx context.Context, token string) (*types.Session, error) {
	s, err := ss.load(ctx, token)
	if err != nil {
		return nil, err
	}
	return ss.refresh(ctx, s)
}

func (ss *SessionService) List(ctx context.Context, wallet common.Address) ([]*types.Session, error) {
	return ss.list(ctx, store.SessionFilter{Wallet: wallet})
}

// ActiveSessions lists the sessions of wallet that are still active at now.
func (ss *SessionService) ActiveSessions(ctx context.Context, wallet common.Address) ([]*types.Session, error) {
	all, err := ss.list(ctx, store.SessionFilter{Wallet: wallet, Status: []types.SessionStatus{types.SessionActive}})
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, s := range all {
		if s.Status == types.SessionActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (ss *SessionService) list(ctx context.Context, filter store.SessionFilter) ([]*types.Session, error) {
	sessions, err := ss.sessions.ListSessions(ctx, filter)
	if err != nil {
		return nil, types.WrapError(err, types.KindInternal, types.CodeDatabase, "list sessions")
	}
	for i, s := range sessions {
		cur, err := ss.refresh(ctx, s)
		if err != nil {
			return nil, err
		}
		sessions[i] = cur
	}
	return sessions, nil
}

func (ss *SessionService) CountActive(ctx context.Context) (int64, error) {
	sessions, err := ss.sessions.ListSessions(ctx, store.SessionFilter{Status: []types.SessionStatus{types.SessionActive}})
	if err != nil {
		return 0, err
	}
	now := ss.clock.Now()
	var n int64
	for _, s := range sessions {
		if now.Before(s.ExpiresAt) {
			n++
		}
	}
	return n, nil
}

// Cleanup persists lazy expiry for overdue sessions and deletes terminal
// sessions that ended more than retention ago.
func (ss *SessionService) Cleanup(ctx context.Context, retention time.Duration) (expired int, deleted int, err error) {
	now := ss.clock.Now()
	overdue, err := ss.sessions.ListSessions(ctx, store.SessionFilter{
		Status:        []types.SessionStatus{types.SessionActive},
		ExpiresBefore: now,
	})
	if err != nil {
		return 0, 0, types.WrapError(err, types.KindInternal, types.CodeDatabase, "list overdue sessions")
	}
	for _, s := range overdue {
		_, err := ss.update(ctx, s.Token, func(cur *types.Session) (*types.Session, error) {
			next, changed := sessionkey.Evaluate(cur, now)
			if !changed {
				return nil, nil
			}
			return next, nil
		})
		if err != nil {
			log.Warnf("failed to expire session %s: %v", s.Token, err)
			continue
		}
		expired++
	}

	deleted, err = ss.sessions.DeleteSessionsEndedBefore(ctx, now.Add(-retention))
	if err != nil {
		return expired, 0, types.WrapError(err, types.KindInternal, types.CodeDatabase, "delete old sessions")
	}
	if expired > 0 || deleted > 0 {
		log.Infof("session cleanup: %d expired, %d deleted", expired, deleted)
	}
	return expired, deleted, nil
}

func (ss *SessionService) forActive(ctx context.Context, filter store.SessionFilter, mutate func(*types.Session) (*types.Session, error)) {
	filter.Status = []types.SessionStatus{types.SessionActive}
	sessions, err := ss.sessions.ListSessions(ctx, filter)
	if err != nil {
		log.Warnf("failed to list sessions of %s: %v", filter.Wallet.Hex(), err)
		return
	}
	for _, s := range sessions {
		if _, err := ss.update(ctx, s.Token, mutate); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Warnf("failed to update session %s: %v", s.Token, err)
		}
	}
}

func (ss *SessionService) Executed(ctx context.Context, wallet, key common.Address, _ common.Hash) {
	now := ss.clock.Now()
	ss.forActive(ctx, store.SessionFilter{Wallet: wallet, Key: key}, func(s *types.Session) (*types.Session, error) {
		if s.Status != types.SessionActive {
			return nil, nil
		}
		return sessionkey.RecordActivity(s, now), nil
	})
}

// KeyRevoked marks the revocation on the session; the status follows on the
// next read or through End.
func (ss *SessionService) KeyRevoked(ctx context.Context, wallet, key common.Address, txHash common.Hash) {
	ss.forActive(ctx, store.SessionFilter{Wallet: wallet, Key: key}, func(s *types.Session) (*types.Session, error) {
		if s.OnChainRevoked {
			return nil, nil
		}
		next := s.Clone()
		next.OnChainRevoked = true
		next.RevokeKeyTxHash = txHash
		return next, nil
	})
}

func (ss *SessionService) WalletDestroyed(ctx context.Context, wallet common.Address) {
	now := ss.clock.Now()
	ss.forActive(ctx, store.SessionFilter{Wallet: wallet}, func(s *types.Session) (*types.Session, error) {
		if next, changed := sessionkey.Evaluate(s, now); changed {
			return next, nil
		}
		if s.Status != types.SessionActive {
			return nil, nil
		}
		return sessionkey.Revoke(s, now)
	})
}
