// Package ghostwallet runs the wallet lifecycle: registration, owner and
// session key execution under spending caps, sweep, destroy, and the session
// service built on top of ephemeral keys.
package ghostwallet

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"github.com/Beutife/Ghost-Wallet/paymaster"
	"github.com/Beutife/Ghost-Wallet/proof"
	"github.com/Beutife/Ghost-Wallet/sessionkey"
	"github.com/Beutife/Ghost-Wallet/spending"
	"github.com/Beutife/Ghost-Wallet/store"
	"github.com/Beutife/Ghost-Wallet/types"
)

var log = logging.Logger("ghostwallet")

type Config struct {
	Network     types.Network
	KeyBounds   sessionkey.Bounds
	CASAttempts int
}

func DefaultConfig() Config {
	return Config{
		Network:     types.NetworkSepolia,
		KeyBounds:   sessionkey.DefaultBounds(),
		CASAttempts: 8,
	}
}

// SessionObserver hears about key level events that sessions track.
type SessionObserver interface {
	Executed(ctx context.Context, wallet, key common.Address, txHash common.Hash)
	KeyRevoked(ctx context.Context, wallet, key common.Address, txHash common.Hash)
	WalletDestroyed(ctx context.Context, wallet common.Address)
}

// StateMachine owns every wallet mutation. All writes go through compare and
// swap on the wallet record, so several instances can share one store.
type StateMachine struct {
	wallets store.WalletStore
	txs     store.TransactionStore
	chain   types.Ledger
	sponsor *paymaster.Ledger
	proofs  *proof.Registry
	alerts  types.AlertSink
	clock   types.Clock
	cfg     Config

	observer SessionObserver
}

// NewStateMachine builds the state machine. sponsor may be nil, in which
// case operations are submitted without gas sponsorship.
func NewStateMachine(st store.Store, chain types.Ledger, sponsor *paymaster.Ledger, proofs *proof.Registry, alerts types.AlertSink, clock types.Clock, cfg Config) *StateMachine {
	if cfg.CASAttempts <= 0 {
		cfg.CASAttempts = DefaultConfig().CASAttempts
	}
	if cfg.KeyBounds == (sessionkey.Bounds{}) {
		cfg.KeyBounds = sessionkey.DefaultBounds()
	}
	return &StateMachine{
		wallets: st,
		txs:     st,
		chain:   chain,
		sponsor: sponsor,
		proofs:  proofs,
		alerts:  alerts,
		clock:   clock,
		cfg:     cfg,
	}
}

func (sm *StateMachine) SetObserver(o SessionObserver) {
	sm.observer = o
}

func (sm *StateMachine) KeyBounds() sessionkey.Bounds { return sm.cfg.KeyBounds }

func (sm *StateMachine) Get(ctx context.Context, addr common.Address) (*types.GhostWallet, error) {
	w, err := sm.wallets.GetWallet(ctx, addr)
	if err != nil {
		return nil, store.NotFound(err, types.CodeWalletNotFound, "wallet %s", addr.Hex())
	}
	return w, nil
}

// update applies mutate to a fresh copy of the wallet until the write lands.
// mutate returning nil leaves the record as it is.
func (sm *StateMachine) update(ctx context.Context, addr common.Address, mutate func(*types.GhostWallet) (*types.GhostWallet, error)) (*types.GhostWallet, error) {
	return store.CAS(ctx, sm.cfg.CASAttempts,
		func(ctx context.Context) (*types.GhostWallet, error) { return sm.Get(ctx, addr) },
		func(w *types.GhostWallet) (*types.GhostWallet, bool, error) {
			next, err := mutate(w)
			if err != nil {
				return nil, false, err
			}
			return next, next != nil, nil
		},
		sm.wallets.UpdateWallet)
}

type LimitInput struct {
	MaxPerTx  big.Int `json:"maxPerTx"`
	MaxPerDay big.Int `json:"maxPerDay"`
}

type RegisterRequest struct {
	Address          common.Address `json:"address"`
	Owner            common.Address `json:"owner"`
	Network          types.Network  `json:"network,omitempty"`
	Label            string         `json:"label,omitempty"`
	DeploymentTxHash common.Hash    `json:"deploymentTxHash"`
	SpendingLimit    *LimitInput    `json:"spendingLimit,omitempty"`
	// CreationProof is an optional wallet_creation proof bound to the deployment.
	CreationProof string `json:"creationProof,omitempty"`
}

// Register records a deployed wallet.
func (sm *StateMachine) Register(ctx context.Context, req RegisterRequest) (*types.GhostWallet, error) {
	if req.Address == (common.Address{}) || req.Owner == (common.Address{}) {
		return nil, types.NewError(types.KindValidation, types.CodeInvalidAddress, "wallet and owner addresses are required")
	}
	if req.Address == req.Owner {
		return nil, types.NewError(types.KindValidation, types.CodeInvalidAddress, "wallet address must differ from its owner")
	}
	network := req.Network
	if network == "" {
		network = sm.cfg.Network
	}
	if _, err := types.ParseNetwork(string(network)); err != nil {
		return nil, err
	}

	var limit *types.SpendingLimit
	if req.SpendingLimit != nil {
		l, err := spending.Configure(nil, req.SpendingLimit.MaxPerTx, req.SpendingLimit.MaxPerDay)
		if err != nil {
			return nil, err
		}
		limit = l
	}

	if _, err := sm.wallets.GetWallet(ctx, req.Address); err == nil {
		return nil, types.NewError(types.KindConflict, types.CodeWalletExists, "wallet %s is already registered", req.Address.Hex())
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, types.WrapError(err, types.KindInternal, types.CodeDatabase, "load wallet %s", req.Address.Hex())
	}

	if req.CreationProof != "" {
		if sm.proofs == nil {
			return nil, types.NewError(types.KindInternal, types.CodeInternal, "no proof registry configured")
		}
		if _, err := sm.proofs.ConsumeAs(ctx, req.CreationProof, types.ProofWalletCreation, req.DeploymentTxHash); err != nil {
			return nil, err
		}
	}

	w := &types.GhostWallet{
		Address:               req.Address,
		Owner:                 req.Owner,
		Network:               network,
		Label:                 req.Label,
		CreatedAt:             sm.clock.Now(),
		DeploymentTxHash:      req.DeploymentTxHash,
		LastKnownBalance:      big.Zero(),
		TotalValueTransferred: big.Zero(),
		SpendingLimit:         limit,
	}
	if err := sm.wallets.CreateWallet(ctx, w); err != nil {
		if req.CreationProof != "" {
			if _, rerr := sm.proofs.Restore(ctx, req.CreationProof, req.DeploymentTxHash); rerr != nil {
				log.Errorf("failed to restore creation proof %s: %v", req.CreationProof, rerr)
			}
		}
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, types.NewError(types.KindConflict, types.CodeWalletExists, "wallet %s is already registered", req.Address.Hex())
		}
		return nil, types.WrapError(err, types.KindInternal, types.CodeDatabase, "store wallet")
	}
	log.Infow("wallet registered", "wallet", w.Address.Hex(), "owner", w.Owner.Hex(), "network", network)
	return w, nil
}

func (sm *StateMachine) ListByOwner(ctx context.Context, owner common.Address, includeDestroyed bool) ([]*types.GhostWallet, error) {
	ws, err := sm.wallets.ListWalletsByOwner(ctx, owner, includeDestroyed)
	if err != nil {
		return nil, types.WrapError(err, types.KindInternal, types.CodeDatabase, "list wallets")
	}
	return ws, nil
}

// RefreshBalance stores the current ledger balance. The stored value is
// advisory: sweep and destroy always read the ledger.
func (sm *StateMachine) RefreshBalance(ctx context.Context, addr common.Address) (*types.GhostWallet, error) {
	bal, err := sm.chain.BalanceOf(ctx, addr)
	if err != nil {
		return nil, types.LedgerFailure(err, "get balance of %s", addr.Hex())
	}
	return sm.update(ctx, addr, func(w *types.GhostWallet) (*types.GhostWallet, error) {
		if !w.LastKnownBalance.Nil() && w.LastKnownBalance.Equals(bal) {
			return nil, nil
		}
		next := w.Clone()
		next.LastKnownBalance = bal
		return next, nil
	})
}

// SetSpendingLimit replaces the caps. Zero disables a cap; the running day
// counters are kept.
func (sm *StateMachine) SetSpendingLimit(ctx context.Context, addr, caller common.Address, in LimitInput) (*types.GhostWallet, error) {
	now := sm.clock.Now()
	w, err := sm.update(ctx, addr, func(w *types.GhostWallet) (*types.GhostWallet, error) {
		if _, err := sessionkey.Authorize(w, caller, now, true); err != nil {
			return nil, err
		}
		limit, err := spending.Configure(w.SpendingLimit, in.MaxPerTx, in.MaxPerDay)
		if err != nil {
			return nil, err
		}
		next := w.Clone()
		next.SpendingLimit = limit
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	log.Infow("spending limit set", "wallet", addr.Hex(), "maxPerTx", types.AmountString(in.MaxPerTx), "maxPerDay", types.AmountString(in.MaxPerDay))
	return w, nil
}

// LimitState is the spending view a session key holder needs.
type LimitState struct {
	MaxPerTx       big.Int   `json:"maxPerTx"`
	MaxPerDay      big.Int   `json:"maxPerDay"`
	SpentToday     big.Int   `json:"spentToday"`
	Remaining      big.Int   `json:"remaining"`
	DayCapEnabled  bool      `json:"dayCapEnabled"`
	WindowResetsAt time.Time `json:"windowResetsAt,omitempty"`
}

func (sm *StateMachine) SpendingState(ctx context.Context, addr common.Address) (*LimitState, error) {
	w, err := sm.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	now := sm.clock.Now()
	st := &LimitState{MaxPerTx: big.Zero(), MaxPerDay: big.Zero(), SpentToday: big.Zero(), Remaining: big.Zero()}
	if w.SpendingLimit == nil {
		return st, nil
	}
	st.MaxPerTx = types.OrZero(w.SpendingLimit.MaxPerTx)
	st.MaxPerDay = types.OrZero(w.SpendingLimit.MaxPerDay)
	if spending.InWindow(w.SpendingLimit.DayWindowStart, now) {
		st.SpentToday = types.OrZero(w.SpendingLimit.SpentToday)
		st.WindowResetsAt = w.SpendingLimit.DayWindowStart.Add(spending.Window)
	}
	st.Remaining, st.DayCapEnabled = spending.Remaining(w.SpendingLimit, now)
	return st, nil
}
