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
	"github.com/Beutife/Ghost-Wallet/version"
)

var _ GhostWalletAPI = (*GhostAPIImpl)(nil)

type GhostAPIImpl struct {
	sm       *ghostwallet.StateMachine
	sessions *ghostwallet.SessionService
	proofs   *proof.Registry
	sponsor  *paymaster.Ledger
	proxy    *proxy.Proxy
}

func NewGhostAPIImpl(sm *ghostwallet.StateMachine, sessions *ghostwallet.SessionService, proofs *proof.Registry, sponsor *paymaster.Ledger, p *proxy.Proxy) *GhostAPIImpl {
	return &GhostAPIImpl{sm: sm, sessions: sessions, proofs: proofs, sponsor: sponsor, proxy: p}
}

func (g *GhostAPIImpl) Version(context.Context) (string, error) {
	return version.UserVersion, nil
}

func (g *GhostAPIImpl) RegisterWallet(ctx context.Context, req ghostwallet.RegisterRequest) (*types.GhostWallet, error) {
	return g.sm.Register(ctx, req)
}

func (g *GhostAPIImpl) GetWallet(ctx context.Context, addr common.Address) (*types.GhostWallet, error) {
	return g.sm.Get(ctx, addr)
}

func (g *GhostAPIImpl) ListWallets(ctx context.Context, owner common.Address, includeDestroyed bool) ([]*types.GhostWallet, error) {
	return g.sm.ListByOwner(ctx, owner, includeDestroyed)
}

func (g *GhostAPIImpl) RefreshBalance(ctx context.Context, addr common.Address) (*types.GhostWallet, error) {
	return g.sm.RefreshBalance(ctx, addr)
}

func (g *GhostAPIImpl) SetSpendingLimit(ctx context.Context, addr, caller common.Address, in ghostwallet.LimitInput) (*types.GhostWallet, error) {
	return g.sm.SetSpendingLimit(ctx, addr, caller, in)
}

func (g *GhostAPIImpl) SpendingState(ctx context.Context, addr common.Address) (*ghostwallet.LimitState, error) {
	return g.sm.SpendingState(ctx, addr)
}

func (g *GhostAPIImpl) Execute(ctx context.Context, wallet, caller common.Address, call ghostwallet.Call) (*types.Transaction, error) {
	return g.sm.Execute(ctx, wallet, caller, call)
}

func (g *GhostAPIImpl) ExecuteBatch(ctx context.Context, wallet, caller common.Address, calls []ghostwallet.Call) (*types.Transaction, error) {
	return g.sm.ExecuteBatch(ctx, wallet, caller, calls)
}

func (g *GhostAPIImpl) Sweep(ctx context.Context, wallet, caller common.Address) (*types.Transaction, error) {
	return g.sm.Sweep(ctx, wallet, caller)
}

func (g *GhostAPIImpl) Destroy(ctx context.Context, wallet, caller, recipient common.Address) (*types.Transaction, error) {
	return g.sm.Destroy(ctx, wallet, caller, recipient)
}

func (g *GhostAPIImpl) AddEphemeralKey(ctx context.Context, wallet, caller, key common.Address, expiresAt time.Time) (*types.Transaction, error) {
	return g.sm.AddEphemeralKey(ctx, wallet, caller, key, expiresAt)
}

func (g *GhostAPIImpl) RevokeEphemeralKey(ctx context.Context, wallet, caller, key common.Address) (*types.Transaction, error) {
	return g.sm.RevokeEphemeralKey(ctx, wallet, caller, key)
}

func (g *GhostAPIImpl) GetTransaction(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	return g.sm.GetTransaction(ctx, hash)
}

func (g *GhostAPIImpl) ListTransactions(ctx context.Context, wallet common.Address, limit int) ([]*types.Transaction, error) {
	return g.sm.ListTransactions(ctx, wallet, limit)
}

func (g *GhostAPIImpl) TransactionStats(ctx context.Context, wallet common.Address) (map[types.TxStatus]ghostwallet.TxStats, error) {
	return g.sm.TransactionStats(ctx, wallet)
}

func (g *GhostAPIImpl) StartSession(ctx context.Context, req ghostwallet.StartRequest) (*ghostwallet.StartedSession, error) {
	return g.sessions.Start(ctx, req)
}

func (g *GhostAPIImpl) EndSession(ctx context.Context, token string, caller common.Address) (*types.Session, error) {
	return g.sessions.End(ctx, token, caller)
}

// RevokeSession ends a session as an administrative revocation.
func (g *GhostAPIImpl) RevokeSession(ctx context.Context, token string, caller common.Address) (*types.Session, error) {
	return g.sessions.Revoke(ctx, token, caller)
}

func (g *GhostAPIImpl) GetSession(ctx context.Context, token string) (*types.Session, error) {
	return g.sessions.Get(ctx, token)
}

func (g *GhostAPIImpl) ListSessions(ctx context.Context, wallet common.Address) ([]*types.Session, error) {
	return g.sessions.List(ctx, wallet)
}

func (g *GhostAPIImpl) ActiveSessions(ctx context.Context, wallet common.Address) ([]*types.Session, error) {
	return g.sessions.ActiveSessions(ctx, wallet)
}

func (g *GhostAPIImpl) SubmitProof(ctx context.Context, req proof.SubmitRequest) (*types.Proof, error) {
	return g.proofs.Submit(ctx, req)
}

func (g *GhostAPIImpl) VerifyProof(ctx context.Context, hash string, isValid bool, verificationErr string) (*types.Proof, error) {
	return g.proofs.Verify(ctx, hash, isValid, verificationErr)
}

func (g *GhostAPIImpl) RecordFailedVerification(ctx context.Context, hash string, reason string) (*types.Proof, error) {
	return g.proofs.RecordFailedAttempt(ctx, hash, reason)
}

func (g *GhostAPIImpl) GetProof(ctx context.Context, hash string) (*types.Proof, error) {
	return g.proofs.Get(ctx, hash)
}

func (g *GhostAPIImpl) IsProofReplay(ctx context.Context, hash string) (bool, error) {
	return g.proofs.IsReplay(ctx, hash)
}

func (g *GhostAPIImpl) MarkProofForCleanup(ctx context.Context, hash string) (*types.Proof, error) {
	return g.proofs.MarkForCleanup(ctx, hash)
}

func (g *GhostAPIImpl) PaymasterStatus(ctx context.Context) (*paymaster.Status, error) {
	return g.sponsor.Status(ctx)
}

func (g *GhostAPIImpl) TotalSponsored(ctx context.Context) (paymaster.Totals, error) {
	return g.sponsor.TotalSponsored(ctx, g.sponsor.Address())
}

func (g *GhostAPIImpl) PendingSponsorships(ctx context.Context) ([]*types.Sponsorship, error) {
	return g.sponsor.Pending(ctx)
}

func (g *GhostAPIImpl) RecordRefund(ctx context.Context, txHash common.Hash, amount big.Int, refundTx common.Hash) (*types.Sponsorship, error) {
	return g.sponsor.RecordRefund(ctx, txHash, amount, refundTx)
}

func (g *GhostAPIImpl) RecentSponsorships(ctx context.Context, limit int) ([]*types.Sponsorship, error) {
	return g.sponsor.RecentActivity(ctx, limit)
}

func (g *GhostAPIImpl) WalletSponsorshipStats(ctx context.Context, wallet common.Address) (map[types.SponsorshipStatus]paymaster.StatusStats, error) {
	return g.sponsor.WalletStats(ctx, wallet)
}

func (g *GhostAPIImpl) SetUpstream(ctx context.Context, host string, addr string) error {
	key, err := proxy.ParseHostKey(host)
	if err != nil {
		return types.WrapError(err, types.KindValidation, types.CodeMissingField, "set upstream")
	}
	return g.proxy.RegisterReverseByAddr(key, addr)
}

func (g *GhostAPIImpl) ListUpstreams(ctx context.Context) ([]proxy.HostKey, error) {
	return g.proxy.Hosts(), nil
}
