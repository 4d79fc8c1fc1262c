package ghostwallet

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/pkg/errors"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"

	"github.com/Beutife/Ghost-Wallet/metrics"
	"github.com/Beutife/Ghost-Wallet/paymaster"
	"github.com/Beutife/Ghost-Wallet/sessionkey"
	"github.com/Beutife/Ghost-Wallet/spending"
	"github.com/Beutife/Ghost-Wallet/types"
)

// Call is one contract call made by the wallet.
type Call struct {
	Target common.Address `json:"target"`
	Value  big.Int        `json:"value"`
	Data   []byte         `json:"data,omitempty"`
}

func validateCalls(calls []Call) error {
	if len(calls) == 0 {
		return types.NewError(types.KindValidation, types.CodeMissingField, "at least one call is required")
	}
	for i, c := range calls {
		if c.Target == (common.Address{}) {
			return types.NewError(types.KindValidation, types.CodeInvalidAddress, "call %d has no target", i)
		}
		if !c.Value.Nil() && c.Value.Sign() < 0 {
			return types.NewError(types.KindValidation, types.CodeInvalidAmount, "call %d has a negative value", i)
		}
	}
	return nil
}

// Execute submits a single call signed by the owner or an active session key.
func (sm *StateMachine) Execute(ctx context.Context, wallet, caller common.Address, call Call) (*types.Transaction, error) {
	return sm.execute(ctx, types.TxExecute, wallet, caller, []Call{call})
}

// ExecuteBatch submits calls atomically. The values are reserved together
// against the day cap and each one is checked against the per transaction cap.
func (sm *StateMachine) ExecuteBatch(ctx context.Context, wallet, caller common.Address, calls []Call) (*types.Transaction, error) {
	return sm.execute(ctx, types.TxExecuteBatch, wallet, caller, calls)
}

func (sm *StateMachine) execute(ctx context.Context, txType types.TxType, addr, caller common.Address, calls []Call) (*types.Transaction, error) {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.TxTypeKey, string(txType)))
	tx, err := sm.doExecute(ctx, txType, addr, caller, calls)
	if err != nil {
		rejected(ctx, err)
		return nil, err
	}
	return tx, nil
}

func (sm *StateMachine) doExecute(ctx context.Context, txType types.TxType, addr, caller common.Address, calls []Call) (*types.Transaction, error) {
	if err := validateCalls(calls); err != nil {
		return nil, err
	}
	amounts := make([]big.Int, len(calls))
	for i, c := range calls {
		amounts[i] = types.OrZero(c.Value)
	}

	now := sm.clock.Now()
	var (
		role sessionkey.Role
		res  spending.Reservation
	)
	w, err := sm.update(ctx, addr, func(w *types.GhostWallet) (*types.GhostWallet, error) {
		r, err := sessionkey.Authorize(w, caller, now, false)
		if err != nil {
			return nil, err
		}
		role, res = r, spending.Reservation{}
		if role != sessionkey.RoleSessionKey || w.SpendingLimit == nil {
			return nil, nil
		}
		limit, booked, err := spending.CheckAndReserve(w.SpendingLimit, amounts, now)
		if err != nil {
			return nil, err
		}
		if booked.Empty() {
			return nil, nil
		}
		res = booked
		next := w.Clone()
		next.SpendingLimit = limit
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	if !res.Empty() {
		stats.Record(ctx, metrics.SpendingReserved.M(1))
	}

	op := &types.Operation{
		Type:     txType,
		Wallet:   addr,
		GasLimit: txType.GasLimit(),
	}
	for _, c := range calls {
		op.Targets = append(op.Targets, c.Target)
		op.Values = append(op.Values, types.OrZero(c.Value))
		op.Data = append(op.Data, c.Data)
	}
	tx := &types.Transaction{
		WalletAddress:     addr,
		Type:              txType,
		Caller:            caller,
		SessionKey:        role == sessionkey.RoleSessionKey,
		To:                calls[0].Target,
		Value:             types.Sum(amounts),
		Reservation:       types.OrZero(res.Amount),
		ReservationWindow: res.WindowStart,
	}
	if txType == types.TxExecuteBatch {
		tx.BatchSize = len(calls)
	}

	if err := sm.submit(ctx, w, op, tx); err != nil {
		if !res.Empty() {
			sm.release(ctx, addr, res)
		}
		return nil, err
	}
	stats.Record(ctx, metrics.WalletExecute.M(1))
	if tx.SessionKey && sm.observer != nil {
		sm.observer.Executed(ctx, addr, caller, tx.TxHash)
	}
	return tx, nil
}

// release gives back a reservation whose submission never reached the ledger.
func (sm *StateMachine) release(ctx context.Context, addr common.Address, res spending.Reservation) {
	_, err := sm.update(ctx, addr, func(w *types.GhostWallet) (*types.GhostWallet, error) {
		if w.SpendingLimit == nil {
			return nil, nil
		}
		next := w.Clone()
		next.SpendingLimit = spending.Release(w.SpendingLimit, res)
		return next, nil
	})
	if err != nil {
		log.Errorf("failed to release reservation of %s on %s: %v", res.Amount, addr.Hex(), err)
	}
}

// submit books a sponsorship, hands op to the ledger and records tx as
// pending. A returned error means nothing reached the ledger.
func (sm *StateMachine) submit(ctx context.Context, w *types.GhostWallet, op *types.Operation, tx *types.Transaction) error {
	var sponsorship *types.Sponsorship
	if sm.sponsor != nil {
		s, err := sm.sponsor.RecordSponsorship(ctx, paymaster.SponsorRequest{
			Wallet:        w.Address,
			OperationType: op.Type.OperationType(),
			GasLimit:      op.GasLimit,
			Network:       w.Network,
		})
		if err != nil {
			return err
		}
		sponsorship = s
	}

	start := time.Now()
	hash, err := sm.chain.Submit(ctx, op)
	stats.Record(ctx, metrics.LedgerSubmit.M(metrics.SinceInMilliseconds(start)))
	if err != nil {
		if sponsorship != nil {
			if _, ferr := sm.sponsor.Abandon(ctx, sponsorship.ID, err.Error()); ferr != nil {
				log.Warnf("failed to abandon sponsorship %s: %v", sponsorship.ID, ferr)
			}
		}
		log.Warnw("ledger rejected submission", "wallet", w.Address.Hex(), "type", op.Type, "err", err)
		return types.LedgerFailure(err, "submit %s for %s", op.Type, w.Address.Hex())
	}

	// accepted from here on: failures are logged, never returned as rejections
	if sponsorship != nil {
		if _, err := sm.sponsor.AttachTxHash(ctx, sponsorship.ID, hash); err != nil {
			log.Errorf("failed to bind sponsorship %s to %s: %v", sponsorship.ID, hash.Hex(), err)
		}
		tx.SponsorshipID = sponsorship.ID
	}
	tx.TxHash = hash
	tx.Status = types.TxPending
	tx.SubmittedAt = sm.clock.Now()
	tx.GasUsed = big.Zero()
	tx.GasPrice = big.Zero()
	tx.Value = types.OrZero(tx.Value)
	tx.Reservation = types.OrZero(tx.Reservation)
	if err := sm.txs.CreateTransaction(ctx, tx); err != nil {
		log.Errorf("failed to record transaction %s: %v", hash.Hex(), err)
	}
	log.Infow("operation submitted", "wallet", w.Address.Hex(), "type", op.Type, "tx", hash.Hex())
	return nil
}

// Sweep moves the full balance to the owner. The wallet stays active.
func (sm *StateMachine) Sweep(ctx context.Context, addr, caller common.Address) (*types.Transaction, error) {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.TxTypeKey, string(types.TxSweep)))
	tx, err := sm.sweep(ctx, addr, caller)
	if err != nil {
		rejected(ctx, err)
		return nil, err
	}
	return tx, nil
}

func (sm *StateMachine) sweep(ctx context.Context, addr, caller common.Address) (*types.Transaction, error) {
	w, err := sm.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	if _, err := sessionkey.Authorize(w, caller, sm.clock.Now(), true); err != nil {
		return nil, err
	}
	balance, err := sm.chain.BalanceOf(ctx, addr)
	if err != nil {
		return nil, types.LedgerFailure(err, "get balance of %s", addr.Hex())
	}
	if !types.IsSet(balance) {
		return nil, types.NewError(types.KindValidation, types.CodeInsufficientBalance, "wallet %s has nothing to sweep", addr.Hex())
	}
	// the balance read can race a destroy claim; authorize again on the
	// version the store holds now
	w, err = sm.update(ctx, addr, func(w *types.GhostWallet) (*types.GhostWallet, error) {
		if _, err := sessionkey.Authorize(w, caller, sm.clock.Now(), true); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	op := &types.Operation{Type: types.TxSweep, Wallet: addr, Recipient: w.Owner, GasLimit: types.TxSweep.GasLimit()}
	tx := &types.Transaction{
		WalletAddress: addr,
		Type:          types.TxSweep,
		Caller:        caller,
		To:            w.Owner,
		Value:         balance,
	}
	if err := sm.submit(ctx, w, op, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// Destroy sweeps the balance to recipient and retires the wallet for good.
// The destroyed flag is claimed before submission so destroy can never be
// submitted twice; the claim is dropped if the ledger rejects it.
func (sm *StateMachine) Destroy(ctx context.Context, addr, caller, recipient common.Address) (*types.Transaction, error) {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.TxTypeKey, string(types.TxDestroy)))
	tx, err := sm.destroy(ctx, addr, caller, recipient)
	if err != nil {
		rejected(ctx, err)
		return nil, err
	}
	return tx, nil
}

func (sm *StateMachine) destroy(ctx context.Context, addr, caller, recipient common.Address) (*types.Transaction, error) {
	cur, err := sm.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	now := sm.clock.Now()
	if _, err := sessionkey.Authorize(cur, caller, now, true); err != nil {
		return nil, err
	}
	if recipient == (common.Address{}) {
		recipient = cur.Owner
	}
	if recipient == addr {
		return nil, types.NewError(types.KindValidation, types.CodeInvalidAddress, "refund recipient cannot be the wallet itself")
	}
	balance, err := sm.chain.BalanceOf(ctx, addr)
	if err != nil {
		return nil, types.LedgerFailure(err, "get balance of %s", addr.Hex())
	}

	w, err := sm.update(ctx, addr, func(w *types.GhostWallet) (*types.GhostWallet, error) {
		if _, err := sessionkey.Authorize(w, caller, now, true); err != nil {
			return nil, err
		}
		next := w.Clone()
		next.Destroyed = true
		next.DestroyedAt = now
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	op := &types.Operation{Type: types.TxDestroy, Wallet: addr, Recipient: recipient, GasLimit: types.TxDestroy.GasLimit()}
	tx := &types.Transaction{
		WalletAddress: addr,
		Type:          types.TxDestroy,
		Caller:        caller,
		To:            recipient,
		Value:         types.OrZero(balance),
	}
	if err := sm.submit(ctx, w, op, tx); err != nil {
		sm.undoDestroyClaim(ctx, addr, now)
		return nil, err
	}

	if _, err := sm.update(ctx, addr, func(w *types.GhostWallet) (*types.GhostWallet, error) {
		next := w.Clone()
		next.DestroyedTxHash = tx.TxHash
		next.LastKnownBalance = big.Zero()
		return next, nil
	}); err != nil {
		log.Errorf("failed to record destroy tx %s on %s: %v", tx.TxHash.Hex(), addr.Hex(), err)
	}
	log.Infow("wallet destroyed", "wallet", addr.Hex(), "recipient", recipient.Hex(), "amount", balance.String())
	if sm.observer != nil {
		sm.observer.WalletDestroyed(ctx, addr)
	}
	return tx, nil
}

func (sm *StateMachine) undoDestroyClaim(ctx context.Context, addr common.Address, claimedAt time.Time) {
	_, err := sm.update(ctx, addr, func(w *types.GhostWallet) (*types.GhostWallet, error) {
		if !w.Destroyed || w.DestroyedTxHash != (common.Hash{}) || !w.DestroyedAt.Equal(claimedAt) {
			return nil, nil
		}
		next := w.Clone()
		next.Destroyed = false
		next.DestroyedAt = time.Time{}
		return next, nil
	})
	if err != nil {
		log.Errorf("failed to drop destroy claim on %s: %v", addr.Hex(), err)
	}
}

func rejected(ctx context.Context, err error) {
	var code types.ErrorCode = types.CodeInternal
	if te, ok := types.AsError(err); ok {
		code = te.Code
	} else if errors.Is(err, context.Canceled) {
		return
	}
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.CodeKey, string(code)))
	stats.Record(ctx, metrics.WalletRejected.M(1))
}
