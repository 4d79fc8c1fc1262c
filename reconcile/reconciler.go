// Package reconcile settles submitted transactions. Ledger events drive it;
// a poll over pending transactions covers events that never arrive.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"go.uber.org/zap"

	"github.com/Beutife/Ghost-Wallet/ghostwallet"
	"github.com/Beutife/Ghost-Wallet/metrics"
	"github.com/Beutife/Ghost-Wallet/paymaster"
	"github.com/Beutife/Ghost-Wallet/types"
)

var log = logging.Logger("reconcile")

type Config struct {
	PollInterval time.Duration
	// ReceiptWait bounds a single receipt lookup.
	ReceiptWait time.Duration
	// StaleAfter raises an alert for a transaction still pending after it.
	StaleAfter time.Duration
	// DropAfter fails a transaction that is still unmined after it, zero
	// keeps it pending forever.
	DropAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 30 * time.Second,
		ReceiptWait:  10 * time.Second,
		StaleAfter:   30 * time.Minute,
		DropAfter:    24 * time.Hour,
	}
}

type Reconciler struct {
	sm      *ghostwallet.StateMachine
	sponsor *paymaster.Ledger
	chain   types.Ledger
	feed    types.EventFeed
	alerts  types.AlertSink
	clock   types.Clock
	cfg     Config
	log     *zap.SugaredLogger

	staleLk sync.Mutex
	stale   map[common.Hash]struct{}
}

// NewReconciler builds a reconciler. feed may be nil, in which case only
// polling settles transactions.
func NewReconciler(sm *ghostwallet.StateMachine, sponsor *paymaster.Ledger, chain types.Ledger, feed types.EventFeed, alerts types.AlertSink, clock types.Clock, cfg Config) *Reconciler {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ReceiptWait <= 0 {
		cfg.ReceiptWait = def.ReceiptWait
	}
	return &Reconciler{
		sm:      sm,
		sponsor: sponsor,
		chain:   chain,
		feed:    feed,
		alerts:  alerts,
		clock:   clock,
		cfg:     cfg,
		log:     log.With("component", "reconciler"),
		stale:   make(map[common.Hash]struct{}),
	}
}

// Run listens to the event feed and polls pending transactions until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	if r.feed != nil {
		go r.listen(ctx)
	}

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := r.PollPending(ctx); err != nil {
				r.log.Warnf("poll pending transactions: %v", err)
			}
		case <-ctx.Done():
			r.log.Info("context done, stop reconciling")
			return
		}
	}
}

func (r *Reconciler) listen(ctx context.Context) {
	for {
		if err := r.listenOnce(ctx); err != nil {
			r.log.Errorf("listen ledger events errored: %s", err)
		} else {
			r.log.Warn("ledger event feed closed, try again")
		}
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			r.log.Warnf("not restarting event listener: %s", ctx.Err())
			return
		}
		r.log.Info("restarting event listener")
	}
}

func (r *Reconciler) listenOnce(ctx context.Context) error {
	events, err := r.feed.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe ledger events: %w", err)
	}
	for ev := range events {
		if err := r.HandleEvent(ctx, ev); err != nil {
			r.log.Errorw("handle ledger event", "kind", ev.Kind, "tx", ev.TxHash.Hex(), "err", err)
		}
	}
	return nil
}

// HandleEvent applies one decoded ledger event. Events with no matching
// local record are alerted on and otherwise dropped.
func (r *Reconciler) HandleEvent(ctx context.Context, ev *types.LedgerEvent) error {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.EventKey, string(ev.Kind)))
	stats.Record(ctx, metrics.ReconcileEvent.M(1))

	switch ev.Kind {
	case types.EventGhostCreated:
		return r.walletCreated(ctx, ev)
	case types.EventGasSponsored, types.EventUserOperationExecuted:
		return r.sponsored(ctx, ev)
	default:
		return r.settleEvent(ctx, ev)
	}
}

func (r *Reconciler) walletCreated(ctx context.Context, ev *types.LedgerEvent) error {
	_, err := r.sm.Register(ctx, ghostwallet.RegisterRequest{
		Address:          ev.Wallet,
		Owner:            ev.Owner,
		DeploymentTxHash: ev.TxHash,
	})
	if types.CodeOf(err) == types.CodeWalletExists {
		return nil
	}
	return err
}

func (r *Reconciler) settleEvent(ctx context.Context, ev *types.LedgerEvent) error {
	tx, err := r.sm.GetTransaction(ctx, ev.TxHash)
	if types.KindOf(err) == types.KindNotFound {
		r.unmatched(ctx, ev, fmt.Sprintf("%s event for %s has no recorded transaction", ev.Kind, ev.TxHash.Hex()))
		return nil
	}
	if err != nil {
		return err
	}
	if tx.Status != types.TxPending {
		return nil
	}
	_, err = r.settle(ctx, tx)
	return err
}

func (r *Reconciler) sponsored(ctx context.Context, ev *types.LedgerEvent) error {
	if r.sponsor == nil {
		return nil
	}
	s, err := r.sponsor.GetByTxHash(ctx, ev.TxHash)
	if types.KindOf(err) == types.KindNotFound {
		r.unmatched(ctx, ev, fmt.Sprintf("%s event for %s has no pending sponsorship", ev.Kind, ev.TxHash.Hex()))
		return nil
	}
	if err != nil {
		return err
	}
	if s.Settled() {
		return nil
	}

	// the transaction path settles the sponsorship along with everything else
	tx, err := r.sm.GetTransaction(ctx, ev.TxHash)
	if err == nil {
		if tx.Status != types.TxPending {
			return nil
		}
		_, err = r.settle(ctx, tx)
		return err
	}
	if types.KindOf(err) != types.KindNotFound {
		return err
	}

	receipt, err := r.receipt(ctx, ev.TxHash)
	if err != nil || receipt == nil {
		return err
	}
	in := paymaster.Settlement{
		BlockNumber:    receipt.BlockNumber,
		BlockTimestamp: receipt.BlockTimestamp,
		GasUsed:        receipt.GasUsed,
		GasPrice:       receipt.GasPrice,
	}
	if receipt.Status == types.ReceiptSuccess {
		_, err = r.sponsor.ConfirmSponsorship(ctx, ev.TxHash, in)
	} else {
		_, err = r.sponsor.MarkReverted(ctx, ev.TxHash, in, "execution reverted")
	}
	if types.KindOf(err) == types.KindConflict {
		return nil
	}
	return err
}

// receipt returns nil without error while the transaction is unmined.
func (r *Reconciler) receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReceiptWait)
	defer cancel()
	receipt, err := r.chain.WaitForReceipt(ctx, hash)
	if err != nil {
		if types.CodeOf(err) == types.CodeReceiptTimeout || ctx.Err() == context.DeadlineExceeded {
			return nil, nil
		}
		return nil, types.LedgerFailure(err, "receipt of %s", hash.Hex())
	}
	return receipt, nil
}

// settle reports whether tx left the pending state.
func (r *Reconciler) settle(ctx context.Context, tx *types.Transaction) (bool, error) {
	receipt, err := r.receipt(ctx, tx.TxHash)
	if err != nil {
		return false, err
	}
	var final *types.Transaction
	if receipt == nil {
		if r.cfg.DropAfter <= 0 || r.clock.Now().Sub(tx.SubmittedAt) < r.cfg.DropAfter {
			r.checkStale(ctx, tx)
			return false, nil
		}
		reason := fmt.Sprintf("not mined within %s", r.cfg.DropAfter)
		if final, err = r.sm.FailTransaction(ctx, tx.TxHash, reason); err != nil {
			return false, err
		}
		r.alert(ctx, tx.TxHash, fmt.Sprintf("%s of %s dropped: %s", tx.Type, tx.WalletAddress.Hex(), reason))
	} else if final, err = r.sm.FinalizeTransaction(ctx, tx.TxHash, receipt); err != nil {
		return false, err
	}
	r.staleLk.Lock()
	delete(r.stale, tx.TxHash)
	r.staleLk.Unlock()

	ctx, _ = tag.New(ctx, tag.Upsert(metrics.StatusKey, string(final.Status)))
	stats.Record(ctx, metrics.ReconcileSettled.M(1))
	r.log.Infow("transaction reconciled", "tx", tx.TxHash.Hex(), "wallet", tx.WalletAddress.Hex(), "status", final.Status, "block", final.BlockNumber)
	return true, nil
}

// PollPending looks up a receipt for every pending transaction and returns
// how many were settled.
func (r *Reconciler) PollPending(ctx context.Context) (int, error) {
	pending, err := r.sm.PendingTransactions(ctx)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, tx := range pending {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		ok, err := r.settle(ctx, tx)
		if err != nil {
			r.log.Warnw("settle pending transaction", "tx", tx.TxHash.Hex(), "err", err)
			continue
		}
		if ok {
			settled++
		}
	}
	return settled, nil
}

func (r *Reconciler) checkStale(ctx context.Context, tx *types.Transaction) {
	if r.cfg.StaleAfter <= 0 || r.clock.Now().Sub(tx.SubmittedAt) < r.cfg.StaleAfter {
		return
	}
	r.staleLk.Lock()
	_, seen := r.stale[tx.TxHash]
	r.stale[tx.TxHash] = struct{}{}
	r.staleLk.Unlock()
	if seen {
		return
	}
	r.alert(ctx, tx.TxHash, fmt.Sprintf("%s of %s is still unmined since %s", tx.Type, tx.WalletAddress.Hex(), tx.SubmittedAt.UTC().Format(time.RFC3339)))
}

func (r *Reconciler) unmatched(ctx context.Context, ev *types.LedgerEvent, msg string) {
	stats.Record(ctx, metrics.ReconcileUnmatched.M(1))
	r.alert(ctx, ev.TxHash, msg)
}

func (r *Reconciler) alert(ctx context.Context, txHash common.Hash, msg string) {
	r.log.Warnw(msg, "tx", txHash.Hex())
	if r.alerts == nil {
		return
	}
	r.alerts.Emit(ctx, &types.Alert{
		Kind:      types.AlertReconciliation,
		TxHash:    txHash,
		Message:   msg,
		Timestamp: r.clock.Now(),
	})
}
