package api

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"

	"github.com/Beutife/Ghost-Wallet/ghostwallet"
	"github.com/Beutife/Ghost-Wallet/paymaster"
	"github.com/Beutife/Ghost-Wallet/proof"
	"github.com/Beutife/Ghost-Wallet/proxy"
	"github.com/Beutife/Ghost-Wallet/types"
)

// Namespace is the JSON-RPC namespace the API is served under.
const Namespace = "GhostWallet"

// GhostWalletAPI is the remote surface of the service. Caller arguments name
// the address acting on a wallet: its owner or one of its ephemeral keys.
type GhostWalletAPI interface {
	Version(ctx context.Context) (string, error)

	// wallet
	RegisterWallet(ctx context.Context, req ghostwallet.RegisterRequest) (*types.GhostWallet, error)
	GetWallet(ctx context.Context, addr common.Address) (*types.GhostWallet, error)
	ListWallets(ctx context.Context, owner common.Address, includeDestroyed bool) ([]*types.GhostWallet, error)
	RefreshBalance(ctx context.Context, addr common.Address) (*types.GhostWallet, error)
	SetSpendingLimit(ctx context.Context, addr, caller common.Address, in ghostwallet.LimitInput) (*types.GhostWallet, error)
	SpendingState(ctx context.Context, addr common.Address) (*ghostwallet.LimitState, error)
	Execute(ctx context.Context, wallet, caller common.Address, call ghostwallet.Call) (*types.Transaction, error)
	ExecuteBatch(ctx context.Context, wallet, caller common.Address, calls []ghostwallet.Call) (*types.Transaction, error)
	Sweep(ctx context.Context, wallet, caller common.Address) (*types.Transaction, error)
	Destroy(ctx context.Context, wallet, caller, recipient common.Address) (*types.Transaction, error)
	AddEphemeralKey(ctx context.Context, wallet, caller, key common.Address, expiresAt time.Time) (*types.Transaction, error)
	RevokeEphemeralKey(ctx context.Context, wallet, caller, key common.Address) (*types.Transaction, error)

	// transactions
	GetTransaction(ctx context.Context, hash common.Hash) (*types.Transaction, error)
	ListTransactions(ctx context.Context, wallet common.Address, limit int) ([]*types.Transaction, error)
	TransactionStats(ctx context.Context, wallet common.Address) (map[types.TxStatus]ghostwallet.TxStats, error)

	// sessions
	StartSession(ctx context.Context, req ghostwallet.StartRequest) (*ghostwallet.StartedSession, error)
	EndSession(ctx context.Context, token string, caller common.Address) (*types.Session, error)
	RevokeSession(ctx context.Context, token string, caller common.Address) (*types.Session, error)
	GetSession(ctx context.Context, token string) (*types.Session, error)
	ListSessions(ctx context.Context, wallet common.Address) ([]*types.Session, error)
	ActiveSessions(ctx context.Context, wallet common.Address) ([]*types.Session, error)

	// proofs
	SubmitProof(ctx context.Context, req proof.SubmitRequest) (*types.Proof, error)
	VerifyProof(ctx context.Context, hash string, isValid bool, verificationErr string) (*types.Proof, error)
	RecordFailedVerification(ctx context.Context, hash string, reason string) (*types.Proof, error)
	GetProof(ctx context.Context, hash string) (*types.Proof, error)
	IsProofReplay(ctx context.Context, hash string) (bool, error)
	MarkProofForCleanup(ctx context.Context, hash string) (*types.Proof, error)

	// paymaster
	PaymasterStatus(ctx context.Context) (*paymaster.Status, error)
	TotalSponsored(ctx context.Context) (paymaster.Totals, error)
	PendingSponsorships(ctx context.Context) ([]*types.Sponsorship, error)
	RecordRefund(ctx context.Context, txHash common.Hash, amount big.Int, refundTx common.Hash) (*types.Sponsorship, error)
	RecentSponsorships(ctx context.Context, limit int) ([]*types.Sponsorship, error)
	WalletSponsorshipStats(ctx context.Context, wallet common.Address) (map[types.SponsorshipStatus]paymaster.StatusStats, error)

	// upstreams
	SetUpstream(ctx context.Context, host string, addr string) error
	ListUpstreams(ctx context.Context) ([]proxy.HostKey, error)
}

var _ GhostWalletAPI = (*GhostWalletStruct)(nil)

// GhostWalletStruct is both the JSON-RPC client stub and the permission
// checked server side of GhostWalletAPI.
type GhostWalletStruct struct {
	Internal struct {
		Version func(ctx context.Context) (string, error) `perm:"read"`

		RegisterWallet     func(ctx context.Context, req ghostwallet.RegisterRequest) (*types.GhostWallet, error)                         `perm:"write"`
		GetWallet          func(ctx context.Context, addr common.Address) (*types.GhostWallet, error)                                     `perm:"read"`
		ListWallets        func(ctx context.Context, owner common.Address, includeDestroyed bool) ([]*types.GhostWallet, error)           `perm:"read"`
		RefreshBalance     func(ctx context.Context, addr common.Address) (*types.GhostWallet, error)                                     `perm:"write"`
		SetSpendingLimit   func(ctx context.Context, addr, caller common.Address, in ghostwallet.LimitInput) (*types.GhostWallet, error)  `perm:"sign"`
		SpendingState      func(ctx context.Context, addr common.Address) (*ghostwallet.LimitState, error)                                `perm:"read"`
		Execute            func(ctx context.Context, wallet, caller common.Address, call ghostwallet.Call) (*types.Transaction, error)    `perm:"sign"`
		ExecuteBatch       func(ctx context.Context, wallet, caller common.Address, calls []ghostwallet.Call) (*types.Transaction, error) `perm:"sign"`
		Sweep              func(ctx context.Context, wallet, caller common.Address) (*types.Transaction, error)                           `perm:"sign"`
		Destroy            func(ctx context.Context, wallet, caller, recipient common.Address) (*types.Transaction, error)                `perm:"sign"`
		AddEphemeralKey    func(ctx context.Context, wallet, caller, key common.Address, expiresAt time.Time) (*types.Transaction, error) `perm:"sign"`
		RevokeEphemeralKey func(ctx context.Context, wallet, caller, key common.Address) (*types.Transaction, error)                      `perm:"sign"`

		GetTransaction   func(ctx context.Context, hash common.Hash) (*types.Transaction, error)                          `perm:"read"`
		ListTransactions func(ctx context.Context, wallet common.Address, limit int) ([]*types.Transaction, error)        `perm:"read"`
		TransactionStats func(ctx context.Context, wallet common.Address) (map[types.TxStatus]ghostwallet.TxStats, error) `perm:"read"`

		StartSession   func(ctx context.Context, req ghostwallet.StartRequest) (*ghostwallet.StartedSession, error) `perm:"sign"`
		EndSession     func(ctx context.Context, token string, caller common.Address) (*types.Session, error)       `perm:"sign"`
		RevokeSession  func(ctx context.Context, token string, caller common.Address) (*types.Session, error)       `perm:"admin"`
		GetSession     func(ctx context.Context, token string) (*types.Session, error)                              `perm:"read"`
		ListSessions   func(ctx context.Context, wallet common.Address) ([]*types.Session, error)                   `perm:"read"`
		ActiveSessions func(ctx context.Context, wallet common.Address) ([]*types.Session, error)                   `perm:"read"`

		SubmitProof              func(ctx context.Context, req proof.SubmitRequest) (*types.Proof, error)                           `perm:"write"`
		VerifyProof              func(ctx context.Context, hash string, isValid bool, verificationErr string) (*types.Proof, error) `perm:"admin"`
		RecordFailedVerification func(ctx context.Context, hash string, reason string) (*types.Proof, error)                        `perm:"admin"`
		GetProof                 func(ctx context.Context, hash string) (*types.Proof, error)                                       `perm:"read"`
		IsProofReplay            func(ctx context.Context, hash string) (bool, error)                                               `perm:"read"`
		MarkProofForCleanup      func(ctx context.Context, hash string) (*types.Proof, error)                                       `perm:"admin"`

		PaymasterStatus        func(ctx context.Context) (*paymaster.Status, error)                                                            `perm:"read"`
		TotalSponsored         func(ctx context.Context) (paymaster.Totals, error)                                                             `perm:"read"`
		PendingSponsorships    func(ctx context.Context) ([]*types.Sponsorship, error)                                                         `perm:"admin"`
		RecordRefund           func(ctx context.Context, txHash common.Hash, amount big.Int, refundTx common.Hash) (*types.Sponsorship, error) `perm:"admin"`
		RecentSponsorships     func(ctx context.Context, limit int) ([]*types.Sponsorship, error)                                              `perm:"read"`
		WalletSponsorshipStats func(ctx context.Context, wallet common.Address) (map[types.SponsorshipStatus]paymaster.StatusStats, error)     `perm:"read"`

		SetUpstream   func(ctx context.Context, host string, addr string) error `perm:"admin"`
		ListUpstreams func(ctx context.Context) ([]proxy.HostKey, error)        `perm:"read"`
	}
}

func (s *GhostWalletStruct) Version(ctx context.Context) (string, error) {
	return s.Internal.Version(ctx)
}

func (s *GhostWalletStruct) RegisterWallet(ctx context.Context, req ghostwallet.RegisterRequest) (*types.GhostWallet, error) {
	return s.Internal.RegisterWallet(ctx, req)
}

func (s *GhostWalletStruct) GetWallet(ctx context.Context, addr common.Address) (*types.GhostWallet, error) {
	return s.Internal.GetWallet(ctx, addr)
}

func (s *GhostWalletStruct) ListWallets(ctx context.Context, owner common.Address, includeDestroyed bool) ([]*types.GhostWallet, error) {
	return s.Internal.ListWallets(ctx, owner, includeDestroyed)
}

func (s *GhostWalletStruct) RefreshBalance(ctx context.Context, addr common.Address) (*types.GhostWallet, error) {
	return s.Internal.RefreshBalance(ctx, addr)
}

func (s *GhostWalletStruct) SetSpendingLimit(ctx context.Context, addr, caller common.Address, in ghostwallet.LimitInput) (*types.GhostWallet, error) {
	return s.Internal.SetSpendingLimit(ctx, addr, caller, in)
}

func (s *GhostWalletStruct) SpendingState(ctx context.Context, addr common.Address) (*ghostwallet.LimitState, error) {
	return s.Internal.SpendingState(ctx, addr)
}

func (s *GhostWalletStruct) Execute(ctx context.Context, wallet, caller common.Address, call ghostwallet.Call) (*types.Transaction, error) {
	return s.Internal.Execute(ctx, wallet, caller, call)
}

func (s *GhostWalletStruct) ExecuteBatch(ctx context.Context, wallet, caller common.Address, calls []ghostwallet.Call) (*types.Transaction, error) {
	return s.Internal.ExecuteBatch(ctx, wallet, caller, calls)
}

func (s *GhostWalletStruct) Sweep(ctx context.Context, wallet, caller common.Address) (*types.Transaction, error) {
	return s.Internal.Sweep(ctx, wallet, caller)
}

func (s *GhostWalletStruct) Destroy(ctx context.Context, wallet, caller, recipient common.Address) (*types.Transaction, error) {
	return s.Internal.Destroy(ctx, wallet, caller, recipient)
}

func (s *GhostWalletStruct) AddEphemeralKey(ctx context.Context, wallet, caller, key common.Address, expiresAt time.Time) (*types.Transaction, error) {
	return s.Internal.AddEphemeralKey(ctx, wallet, caller, key, expiresAt)
}

func (s *GhostWalletStruct) RevokeEphemeralKey(ctx context.Context, wallet, caller, key common.Address) (*types.Transaction, error) {
	return s.Internal.RevokeEphemeralKey(ctx, wallet, caller, key)
}

func (s *GhostWalletStruct) GetTransaction(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	return s.Internal.GetTransaction(ctx, hash)
}

func (s *GhostWalletStruct) ListTransactions(ctx context.Context, wallet common.Address, limit int) ([]*types.Transaction, error) {
	return s.Internal.ListTransactions(ctx, wallet, limit)
}

func (s *GhostWalletStruct) TransactionStats(ctx context.Context, wallet common.Address) (map[types.TxStatus]ghostwallet.TxStats, error) {
	return s.Internal.TransactionStats(ctx, wallet)
}

func (s *GhostWalletStruct) StartSession(ctx context.Context, req ghostwallet.StartRequest) (*ghostwallet.StartedSession, error) {
	return s.Internal.StartSession(ctx, req)
}

func (s *GhostWalletStruct) EndSession(ctx context.Context, token string, caller common.Address) (*types.Session, error) {
	return s.Internal.EndSession(ctx, token, caller)
}

func (s *GhostWalletStruct) RevokeSession(ctx context.Context, token string, caller common.Address) (*types.Session, error) {
	return s.Internal.RevokeSession(ctx, token, caller)
}

func (s *GhostWalletStruct) GetSession(ctx context.Context, token string) (*types.Session, error) {
	return s.Internal.GetSession(ctx, token)
}

func (s *GhostWalletStruct) ListSessions(ctx context.Context, wallet common.Address) ([]*types.Session, error) {
	return s.Internal.ListSessions(ctx, wallet)
}

func (s *GhostWalletStruct) ActiveSessions(ctx context.Context, wallet common.Address) ([]*types.Session, error) {
	return s.Internal.ActiveSessions(ctx, wallet)
}

func (s *GhostWalletStruct) SubmitProof(ctx context.Context, req proof.SubmitRequest) (*types.Proof, error) {
	return s.Internal.SubmitProof(ctx, req)
}

func (s *GhostWalletStruct) VerifyProof(ctx context.Context, hash string, isValid bool, verificationErr string) (*types.Proof, error) {
	return s.Internal.VerifyProof(ctx, hash, isValid, verificationErr)
}

func (s *GhostWalletStruct) RecordFailedVerification(ctx context.Context, hash string, reason string) (*types.Proof, error) {
	return s.Internal.RecordFailedVerification(ctx, hash, reason)
}

func (s *GhostWalletStruct) GetProof(ctx context.Context, hash string) (*types.Proof, error) {
	return s.Internal.GetProof(ctx, hash)
}

func (s *GhostWalletStruct) IsProofReplay(ctx context.Context, hash string) (bool, error) {
	return s.Internal.IsProofReplay(ctx, hash)
}

func (s *GhostWalletStruct) MarkProofForCleanup(ctx context.Context, hash string) (*types.Proof, error) {
	return s.Internal.MarkProofForCleanup(ctx, hash)
}

func (s *GhostWalletStruct) PaymasterStatus(ctx context.Context) (*paymaster.Status, error) {
	return s.Internal.PaymasterStatus(ctx)
}

func (s *GhostWalletStruct) TotalSponsored(ctx context.Context) (paymaster.Totals, error) {
	return s.Internal.TotalSponsored(ctx)
}

func (s *GhostWalletStruct) PendingSponsorships(ctx context.Context) ([]*types.Sponsorship, error) {
	return s.Internal.PendingSponsorships(ctx)
}

func (s *GhostWalletStruct) RecordRefund(ctx context.Context, txHash common.Hash, amount big.Int, refundTx common.Hash) (*types.Sponsorship, error) {
	return s.Internal.RecordRefund(ctx, txHash, amount, refundTx)
}

func (s *GhostWalletStruct) RecentSponsorships(ctx context.Context, limit int) ([]*types.Sponsorship, error) {
	return s.Internal.RecentSponsorships(ctx, limit)
}

func (s *GhostWalletStruct) WalletSponsorshipStats(ctx context.Context, wallet common.Address) (map[types.SponsorshipStatus]paymaster.StatusStats, error) {
	return s.Internal.WalletSponsorshipStats(ctx, wallet)
}

func (s *GhostWalletStruct) SetUpstream(ctx context.Context, host string, addr string) error {
	return s.Internal.SetUpstream(ctx, host, addr)
}

func (s *GhostWalletStruct) ListUpstreams(ctx context.Context) ([]proxy.HostKey, error) {
	return s.Internal.ListUpstreams(ctx)
}
