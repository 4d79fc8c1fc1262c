package paymaster

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"

	"github.com/Beutife/Ghost-Wallet/metrics"
	"github.com/Beutife/Ghost-Wallet/store"
	"github.com/Beutife/Ghost-Wallet/types"
)

var log = logging.Logger("paymaster")

type Config struct {
	Address common.Address
	// MaxGasSponsor caps a single sponsorship and is the balance the
	// paymaster must hold to admit one more.
	MaxGasSponsor  big.Int
	AlertThreshold big.Int
	MinBalance     big.Int
	CASAttempts    int
}

type Ledger struct {
	// admitLk serializes admission so pending commitments are counted
	// before the next sponsorship is recorded.
	admitLk sync.Mutex

	sponsorships store.SponsorshipStore
	chain        types.Ledger
	alerts       types.AlertSink
	clock        types.Clock
	cfg          Config
}

func NewLedger(sponsorships store.SponsorshipStore, chain types.Ledger, alerts types.AlertSink, clock types.Clock, cfg Config) *Ledger {
	if cfg.CASAttempts <= 0 {
		cfg.CASAttempts = 5
	}
	return &Ledger{sponsorships: sponsorships, chain: chain, alerts: alerts, clock: clock, cfg: cfg}
}

func (l *Ledger) Address() common.Address { return l.cfg.Address }

type SponsorRequest struct {
	Wallet        common.Address      `json:"wallet"`
	OperationType types.OperationType `json:"operationType"`
	// EstimatedGasCost wins over GasLimit when set.
	EstimatedGasCost big.Int       `json:"estimatedGasCost"`
	GasLimit         uint64        `json:"gasLimit"`
	SessionToken     string        `json:"sessionToken,omitempty"`
	Network          types.Network `json:"network,omitempty"`
}

// RecordSponsorship admits and records a pending sponsorship before the
// operation is submitted.
func (l *Ledger) RecordSponsorship(ctx context.Context, req SponsorRequest) (*types.Sponsorship, error) {
	estimate := req.EstimatedGasCost
	if !types.IsSet(estimate) {
		if req.GasLimit == 0 {
			return nil, types.NewError(types.KindValidation, types.CodeMissingField, "sponsorship needs a gas estimate or a gas limit")
		}
		price, err := l.chain.GasPrice(ctx)
		if err != nil {
			return nil, types.LedgerFailure(err, "get gas price")
		}
		estimate = big.Mul(big.NewIntUnsigned(req.GasLimit), price)
	}

	if types.IsSet(l.cfg.MaxGasSponsor) && estimate.GreaterThan(l.cfg.MaxGasSponsor) {
		return nil, types.NewError(types.KindLimitExceeded, types.CodeSponsorCapExceeded, "estimated gas cost exceeds the sponsorship cap").
			With("estimate", estimate.String()).
			With("maxGasSponsor", l.cfg.MaxGasSponsor.String())
	}

	l.admitLk.Lock()
	defer l.admitLk.Unlock()

	balance, err := l.chain.BalanceOf(ctx, l.cfg.Address)
	if err != nil {
		return nil, types.LedgerFailure(err, "get paymaster balance")
	}
	required := big.Max(types.OrZero(l.cfg.MaxGasSponsor), estimate)
	if balance.LessThan(required) {
		l.lowBalance(ctx, balance, required)
		return nil, types.NewError(types.KindLimitExceeded, types.CodePaymasterFunds, "paymaster cannot cover another sponsorship").
			With("balance", balance.String()).
			With("required", required.String())
	}
	committed, err := l.committed(ctx)
	if err != nil {
		return nil, err
	}
	if available := big.Sub(balance, committed); available.LessThan(required) {
		return nil, types.NewError(types.KindLimitExceeded, types.CodePaymasterFunds, "paymaster balance is committed to pending sponsorships").
			With("balance", balance.String()).
			With("committed", committed.String()).
			With("required", required.String())
	}

	now := l.clock.Now()
	s := &types.Sponsorship{
		ID:               uuid.NewString(),
		UserWallet:       req.Wallet,
		Paymaster:        l.cfg.Address,
		OperationType:    req.OperationType,
		SessionToken:     req.SessionToken,
		Network:          req.Network,
		EstimatedGasCost: estimate,
		GasUsed:          big.Zero(),
		GasPrice:         big.Zero(),
		GasCost:          big.Zero(),
		Status:           types.SponsorshipPending,
		BalanceBefore:    balance,
		RefundAmount:     big.Zero(),
		SponsoredAt:      now,
	}
	if err := l.sponsorships.CreateSponsorship(ctx, s); err != nil {
		return nil, types.WrapError(err, types.KindInternal, types.CodeDatabase, "store sponsorship")
	}
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.TxTypeKey, string(req.OperationType)))
	stats.Record(ctx, metrics.PaymasterSponsored.M(1))
	log.Infow("sponsorship recorded", "id", s.ID, "wallet", req.Wallet.Hex(), "operation", req.OperationType, "estimate", estimate.String())
	return s, nil
}

// committed sums the estimates of sponsorships still waiting for a receipt.
func (l *Ledger) committed(ctx context.Context) (big.Int, error) {
	pending, err := l.Pending(ctx)
	if err != nil {
		return big.Int{}, types.WrapError(err, types.KindInternal, types.CodeDatabase, "list pending sponsorships")
	}
	amounts := make([]big.Int, len(pending))
	for i, p := range pending {
		amounts[i] = p.EstimatedGasCost
	}
	return types.Sum(amounts), nil
}

func (l *Ledger) byID(id string) func(context.Context) (*types.Sponsorship, error) {
	return func(ctx context.Context) (*types.Sponsorship, error) {
		s, err := l.sponsorships.GetSponsorship(ctx, id)
		if err != nil {
			return nil, store.NotFound(err, types.CodeSponsorshipNotFound, "sponsorship %s", id)
		}
		return s, nil
	}
}

func (l *Ledger) byTxHash(txHash common.Hash) func(context.Context) (*types.Sponsorship, error) {
	return func(ctx context.Context) (*types.Sponsorship, error) {
		s, err := l.sponsorships.GetSponsorshipByTxHash(ctx, txHash)
		if err != nil {
			return nil, store.NotFound(err, types.CodeSponsorshipNotFound, "sponsorship for %s", txHash.Hex())
		}
		return s, nil
	}
}

func (l *Ledger) update(ctx context.Context, load func(context.Context) (*types.Sponsorship, error), transition func(*types.Sponsorship) (*types.Sponsorship, error)) (*types.Sponsorship, error) {
	return store.CAS(ctx, l.cfg.CASAttempts, load,
		func(s *types.Sponsorship) (*types.Sponsorship, bool, error) {
			next, err := transition(s)
			if err != nil {
				return nil, false, err
			}
			return next, next != nil, nil
		},
		l.sponsorships.UpdateSponsorship)
}

// AttachTxHash binds the submitted transaction to a pending sponsorship.
func (l *Ledger) AttachTxHash(ctx context.Context, id string, txHash common.Hash) (*types.Sponsorship, error) {
	return l.update(ctx, l.byID(id), func(s *types.Sponsorship) (*types.Sponsorship, error) {
		if s.TxHash == txHash {
			return nil, nil
		}
		if s.TxHash != (common.Hash{}) {
			return nil, types.NewError(types.KindConflict, types.CodeSponsorshipSettled, "sponsorship %s is bound to %s", s.ID, s.TxHash.Hex())
		}
		if err := requirePending(s); err != nil {
			return nil, err
		}
		next := s.Clone()
		next.TxHash = txHash
		return next, nil
	})
}

func (l *Ledger) Get(ctx context.Context, id string) (*types.Sponsorship, error) {
	return l.byID(id)(ctx)
}

func (l *Ledger) GetByTxHash(ctx context.Context, txHash common.Hash) (*types.Sponsorship, error) {
	return l.byTxHash(txHash)(ctx)
}

// balanceAfter returns an unset value when the balance cannot be read, so the
// record never shows a zero balance that was not observed.
func (l *Ledger) balanceAfter(ctx context.Context) big.Int {
	bal, err := l.chain.BalanceOf(ctx, l.cfg.Address)
	if err != nil {
		log.Warnf("failed to read paymaster balance after settlement: %v", err)
		return big.Int{}
	}
	return bal
}

// ConfirmSponsorship settles a successful receipt.
func (l *Ledger) ConfirmSponsorship(ctx context.Context, txHash common.Hash, in Settlement) (*types.Sponsorship, error) {
	after := l.balanceAfter(ctx)
	now := l.clock.Now()
	s, err := l.update(ctx, l.byTxHash(txHash), func(s *types.Sponsorship) (*types.Sponsorship, error) {
		return Confirm(s, in, after, now)
	})
	if err != nil {
		return nil, err
	}
	stats.Record(ctx, metrics.PaymasterConfirmed.M(1))
	log.Infow("sponsorship confirmed", "id", s.ID, "tx", txHash.Hex(), "gasCost", s.GasCost.String())
	if !after.Nil() {
		l.checkThreshold(ctx, after)
	}
	return s, nil
}

// MarkReverted settles a reverted receipt, recording the gas it burnt.
func (l *Ledger) MarkReverted(ctx context.Context, txHash common.Hash, in Settlement, reason string) (*types.Sponsorship, error) {
	after := l.balanceAfter(ctx)
	now := l.clock.Now()
	s, err := l.update(ctx, l.byTxHash(txHash), func(s *types.Sponsorship) (*types.Sponsorship, error) {
		return Revert(s, in, after, reason, now)
	})
	if err != nil {
		return nil, err
	}
	l.recordFailed(ctx, "reverted")
	log.Warnw("sponsored transaction reverted", "id", s.ID, "tx", txHash.Hex(), "gasCost", s.GasCost.String())
	if !after.Nil() {
		l.checkThreshold(ctx, after)
	}
	return s, nil
}

// FailSponsorship marks a submitted operation that never executed.
func (l *Ledger) FailSponsorship(ctx context.Context, txHash common.Hash, reason string) (*types.Sponsorship, error) {
	return l.fail(ctx, l.byTxHash(txHash), reason)
}

// Abandon fails a sponsorship whose operation never reached the ledger.
func (l *Ledger) Abandon(ctx context.Context, id string, reason string) (*types.Sponsorship, error) {
	return l.fail(ctx, l.byID(id), reason)
}

func (l *Ledger) fail(ctx context.Context, load func(context.Context) (*types.Sponsorship, error), reason string) (*types.Sponsorship, error) {
	now := l.clock.Now()
	s, err := l.update(ctx, load, func(s *types.Sponsorship) (*types.Sponsorship, error) {
		return Fail(s, reason, now)
	})
	if err != nil {
		return nil, err
	}
	l.recordFailed(ctx, "failed")
	log.Infow("sponsorship failed", "id", s.ID, "reason", reason)
	return s, nil
}

func (l *Ledger) RecordRefund(ctx context.Context, txHash common.Hash, amount big.Int, refundTx common.Hash) (*types.Sponsorship, error) {
	s, err := l.update(ctx, l.byTxHash(txHash), func(s *types.Sponsorship) (*types.Sponsorship, error) {
		return Refund(s, amount, refundTx)
	})
	if err != nil {
		return nil, err
	}
	log.Infow("sponsorship refunded", "id", s.ID, "amount", amount.String(), "refundTx", refundTx.Hex())
	return s, nil
}

// TotalSponsored aggregates every sponsorship of paymaster, the configured
// one when paymaster is zero.
func (l *Ledger) TotalSponsored(ctx context.Context, paymaster common.Address) (Totals, error) {
	if paymaster == (common.Address{}) {
		paymaster = l.cfg.Address
	}
	entries, err := l.sponsorships.ListSponsorships(ctx, store.SponsorshipFilter{Paymaster: paymaster})
	if err != nil {
		return Totals{}, types.WrapError(err, types.KindInternal, types.CodeDatabase, "list sponsorships")
	}
	return Summarize(entries), nil
}

func (l *Ledger) WalletStats(ctx context.Context, wallet common.Address) (map[types.SponsorshipStatus]StatusStats, error) {
	entries, err := l.sponsorships.ListSponsorships(ctx, store.SponsorshipFilter{Wallet: wallet})
	if err != nil {
		return nil, types.WrapError(err, types.KindInternal, types.CodeDatabase, "list sponsorships")
	}
	return GroupByStatus(entries), nil
}

// Pending lists unsettled sponsorships, oldest first.
func (l *Ledger) Pending(ctx context.Context) ([]*types.Sponsorship, error) {
	return l.sponsorships.ListSponsorships(ctx, store.SponsorshipFilter{
		Paymaster: l.cfg.Address,
		Status:    []types.SponsorshipStatus{types.SponsorshipPending},
	})
}

// RecentActivity lists confirmed sponsorships, most recently confirmed first.
func (l *Ledger) RecentActivity(ctx context.Context, limit int) ([]*types.Sponsorship, error) {
	if limit <= 0 {
		limit = 100
	}
	confirmed, err := l.sponsorships.ListSponsorships(ctx, store.SponsorshipFilter{
		Paymaster: l.cfg.Address,
		Status:    []types.SponsorshipStatus{types.SponsorshipConfirmed},
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(confirmed, func(i, j int) bool {
		return confirmed[i].ConfirmedAt.After(confirmed[j].ConfirmedAt)
	})
	if len(confirmed) > limit {
		confirmed = confirmed[:limit]
	}
	return confirmed, nil
}

type Status struct {
	Address        common.Address `json:"address"`
	Balance        big.Int        `json:"balance"`
	MinBalance     big.Int        `json:"minBalance"`
	AlertThreshold big.Int        `json:"alertThreshold"`
	MaxGasSponsor  big.Int        `json:"maxGasSponsor"`
	Healthy        bool           `json:"healthy"`
	CanSponsor     bool           `json:"canSponsor"`
	PendingCount   int            `json:"pendingCount"`
	CheckedAt      time.Time      `json:"checkedAt"`
}

// Status reports the paymaster balance against its configured floors and
// emits a low balance alert when it is under the threshold.
func (l *Ledger) Status(ctx context.Context) (*Status, error) {
	balance, err := l.chain.BalanceOf(ctx, l.cfg.Address)
	if err != nil {
		return nil, types.LedgerFailure(err, "get paymaster balance")
	}
	pending, err := l.Pending(ctx)
	if err != nil {
		return nil, types.WrapError(err, types.KindInternal, types.CodeDatabase, "list pending sponsorships")
	}
	l.checkThreshold(ctx, balance)
	return &Status{
		Address:        l.cfg.Address,
		Balance:        balance,
		MinBalance:     types.OrZero(l.cfg.MinBalance),
		AlertThreshold: types.OrZero(l.cfg.AlertThreshold),
		MaxGasSponsor:  types.OrZero(l.cfg.MaxGasSponsor),
		Healthy:        balance.GreaterThanEqual(types.OrZero(l.cfg.MinBalance)),
		CanSponsor:     balance.GreaterThanEqual(types.OrZero(l.cfg.MaxGasSponsor)),
		PendingCount:   len(pending),
		CheckedAt:      l.clock.Now(),
	}, nil
}

func (l *Ledger) checkThreshold(ctx context.Context, balance big.Int) {
	if types.IsSet(l.cfg.AlertThreshold) && balance.LessThan(l.cfg.AlertThreshold) {
		l.lowBalance(ctx, balance, l.cfg.AlertThreshold)
	}
}

func (l *Ledger) lowBalance(ctx context.Context, balance, threshold big.Int) {
	log.Warnw("paymaster balance low", "paymaster", l.cfg.Address.Hex(), "balance", balance.String(), "threshold", threshold.String())
	if l.alerts == nil {
		return
	}
	l.alerts.Emit(ctx, &types.Alert{
		Kind:           types.AlertLowBalance,
		Paymaster:      l.cfg.Address,
		CurrentBalance: balance,
		Threshold:      threshold,
		Timestamp:      l.clock.Now(),
	})
}

func (l *Ledger) recordFailed(ctx context.Context, status string) {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.StatusKey, status))
	stats.Record(ctx, metrics.PaymasterFailed.M(1))
}
