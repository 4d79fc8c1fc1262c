package proof

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
	"go.opencensus.io/stats"

	"github.com/Beutife/Ghost-Wallet/metrics"
	"github.com/Beutife/Ghost-Wallet/store"
	"github.com/Beutife/Ghost-Wallet/types"
)

var log = logging.Logger("proof")

type Config struct {
	DefaultExpiry           time.Duration
	MaxVerificationAttempts int
	// UnusedMaxAge is how long an unused proof is kept after submission.
	UnusedMaxAge time.Duration
	CASAttempts  int
}

func DefaultConfig() Config {
	return Config{
		DefaultExpiry:           5 * time.Minute,
		MaxVerificationAttempts: 3,
		UnusedMaxAge:            24 * time.Hour,
		CASAttempts:             5,
	}
}

// Registry is the replay gate for authorization proofs.
type Registry struct {
	proofs store.ProofStore
	clock  types.Clock
	cfg    Config
}

func NewRegistry(proofs store.ProofStore, clock types.Clock, cfg Config) *Registry {
	return &Registry{proofs: proofs, clock: clock, cfg: cfg}
}

type SubmitRequest struct {
	Hash          string          `json:"proofHash"`
	Type          types.ProofType `json:"proofType"`
	Nonce         string          `json:"nonce"`
	ExpiresAt     time.Time       `json:"expiresAt"`
	WalletAddress common.Address  `json:"walletAddress"`
	PublicSignals []string        `json:"publicSignals,omitempty"`
	Network       types.Network   `json:"network,omitempty"`
	SessionToken  string          `json:"sessionToken,omitempty"`
}

// Submit records a new proof. A hash that is already known is rejected,
// whatever state the existing record is in.
func (r *Registry) Submit(ctx context.Context, req SubmitRequest) (*types.Proof, error) {
	now := r.clock.Now()
	hash := strings.TrimSpace(req.Hash)
	if hash == "" {
		return nil, types.NewError(types.KindValidation, types.CodeMissingField, "proof hash is required")
	}
	if _, err := types.ParseProofType(string(req.Type)); err != nil {
		return nil, err
	}
	if req.Nonce == "" {
		return nil, types.NewError(types.KindValidation, types.CodeMissingField, "proof nonce is required")
	}
	expiresAt := req.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(r.cfg.DefaultExpiry)
	}
	if !expiresAt.After(now) {
		return nil, types.NewError(types.KindValidation, types.CodeInvalidDuration, "proof expiry must be in the future")
	}

	p := &types.Proof{
		Hash:          hash,
		Type:          req.Type,
		Nonce:         req.Nonce,
		WalletAddress: req.WalletAddress,
		PublicSignals: req.PublicSignals,
		Network:       req.Network,
		SessionToken:  req.SessionToken,
		SubmittedAt:   now,
		ExpiresAt:     expiresAt,
	}
	if err := r.proofs.CreateProof(ctx, p); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, types.NewError(types.KindConflict, types.CodeProofUsed, "proof %s was already submitted", hash)
		}
		return nil, types.WrapError(err, types.KindInternal, types.CodeDatabase, "store proof")
	}
	log.Infow("proof submitted", "hash", hash, "type", req.Type, "expiresAt", expiresAt)
	return p, nil
}

func (r *Registry) Get(ctx context.Context, hash string) (*types.Proof, error) {
	p, err := r.proofs.GetProof(ctx, hash)
	if err != nil {
		return nil, store.NotFound(err, types.CodeProofNotFound, "proof %s", hash)
	}
	return p, nil
}

func (r *Registry) update(ctx context.Context, hash string, transition func(*types.Proof) (*types.Proof, error)) (*types.Proof, error) {
	return store.CAS(ctx, r.cfg.CASAttempts,
		func(ctx context.Context) (*types.Proof, error) { return r.Get(ctx, hash) },
		func(p *types.Proof) (*types.Proof, bool, error) {
			next, err := transition(p)
			if err != nil {
				return nil, false, err
			}
			return next, next != nil, nil
		},
		r.proofs.UpdateProof)
}

// Verify records a verification outcome.
func (r *Registry) Verify(ctx context.Context, hash string, isValid bool, verificationErr string) (*types.Proof, error) {
	now := r.clock.Now()
	p, err := r.update(ctx, hash, func(p *types.Proof) (*types.Proof, error) {
		return Verify(p, isValid, verificationErr, r.cfg.MaxVerificationAttempts, now)
	})
	if err != nil {
		return nil, err
	}
	log.Infow("proof verified", "hash", hash, "valid", isValid, "attempts", p.VerificationAttempts)
	return p, nil
}

// RecordFailedAttempt counts a verification that could not produce an outcome.
func (r *Registry) RecordFailedAttempt(ctx context.Context, hash string, reason string) (*types.Proof, error) {
	return r.update(ctx, hash, func(p *types.Proof) (*types.Proof, error) {
		return RecordFailedAttempt(p, reason, r.cfg.MaxVerificationAttempts)
	})
}

// Consume binds the proof to txHash. For any hash it succeeds at most once.
func (r *Registry) Consume(ctx context.Context, hash string, txHash common.Hash) (*types.Proof, error) {
	return r.ConsumeAs(ctx, hash, "", txHash)
}

// ConsumeAs is Consume restricted to proofs of type want; an empty want accepts any type.
func (r *Registry) ConsumeAs(ctx context.Context, hash string, want types.ProofType, txHash common.Hash) (*types.Proof, error) {
	now := r.clock.Now()
	p, err := r.update(ctx, hash, func(p *types.Proof) (*types.Proof, error) {
		if want != "" && p.Type != want {
			return nil, types.NewError(types.KindAuthorization, types.CodeInvalidProof, "proof %s is a %s proof, need %s", p.Hash, p.Type, want)
		}
		return Consume(p, txHash, now)
	})
	if err != nil {
		return nil, err
	}
	stats.Record(ctx, metrics.ProofConsumed.M(1))
	log.Infow("proof consumed", "hash", hash, "tx", txHash.Hex())
	return p, nil
}

// Restore releases a proof consumed for txHash when the work it authorized
// could not be recorded.
func (r *Registry) Restore(ctx context.Context, hash string, txHash common.Hash) (*types.Proof, error) {
	p, err := r.update(ctx, hash, func(p *types.Proof) (*types.Proof, error) {
		return Restore(p, txHash)
	})
	if err != nil {
		return nil, err
	}
	log.Warnw("proof restored", "hash", hash, "tx", txHash.Hex())
	return p, nil
}

func (r *Registry) MarkForCleanup(ctx context.Context, hash string) (*types.Proof, error) {
	return r.update(ctx, hash, func(p *types.Proof) (*types.Proof, error) {
		if p.FlaggedForCleanup {
			return nil, nil
		}
		next := p.Clone()
		next.FlaggedForCleanup = true
		return next, nil
	})
}

// IsReplay reports whether hash was already consumed.
func (r *Registry) IsReplay(ctx context.Context, hash string) (bool, error) {
	p, err := r.proofs.GetProof(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.Used, nil
}

// Cleanup purges unused proofs that are flagged, expired or older than
// UnusedMaxAge. Consumed proofs are kept so their hashes stay rejected.
func (r *Registry) Cleanup(ctx context.Context) (int, error) {
	now := r.clock.Now()
	purge := store.ProofPurge{ExpiredBy: now, Flagged: true}
	if r.cfg.UnusedMaxAge > 0 {
		purge.SubmittedBefore = now.Add(-r.cfg.UnusedMaxAge)
	}
	n, err := r.proofs.PurgeProofs(ctx, purge)
	if err != nil {
		return 0, types.WrapError(err, types.KindInternal, types.CodeDatabase, "purge proofs")
	}
	if n > 0 {
		log.Infof("purged %d unused proofs", n)
	}
	return n, nil
}
