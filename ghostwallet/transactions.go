package ghostwallet

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"

	"github.com/Beutife/Ghost-Wallet/paymaster"
	"github.com/Beutife/Ghost-Wallet/sessionkey"
	"github.com/Beutife/Ghost-Wallet/store"
	"github.com/Beutife/Ghost-Wallet/types"
)

func (sm *StateMachine) GetTransaction(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	tx, err := sm.txs.GetTransaction(ctx, hash)
	if err != nil {
		return nil, store.NotFound(err, types.CodeTransactionNotFound, "transaction %s", hash.Hex())
	}
	return tx, nil
}

func (sm *StateMachine) ListTransactions(ctx context.Context, wallet common.Address, limit int) ([]*types.Transaction, error) {
	return sm.txs.ListTransactions(ctx, store.TransactionFilter{Wallet: wallet, Limit: limit})
}

// PendingTransactions lists what still waits for a receipt.
func (sm *StateMachine) PendingTransactions(ctx context.Context) ([]*types.Transaction, error) {
	return sm.txs.ListTransactions(ctx, store.TransactionFilter{Status: []types.TxStatus{types.TxPending}})
}

type TxStats struct {
	Count        int     `json:"count"`
	TotalValue   big.Int `json:"totalValue"`
	TotalGasCost big.Int `json:"totalGasCost"`
}

// TransactionStats groups a wallet's transactions by status.
func (sm *StateMachine) TransactionStats(ctx context.Context, wallet common.Address) (map[types.TxStatus]TxStats, error) {
	txs, err := sm.txs.ListTransactions(ctx, store.TransactionFilter{Wallet: wallet})
	if err != nil {
		return nil, err
	}
	out := make(map[types.TxStatus]TxStats)
	for _, tx := range txs {
		st, ok := out[tx.Status]
		if !ok {
			st = TxStats{TotalValue: big.Zero(), TotalGasCost: big.Zero()}
		}
		st.Count++
		st.TotalValue = big.Add(st.TotalValue, types.OrZero(tx.Value))
		st.TotalGasCost = big.Add(st.TotalGasCost, tx.GasCost())
		out[tx.Status] = st
	}
	return out, nil
}

// FinalizeTransaction applies a receipt to a pending transaction: the record
// is settled, the wallet effect of the call is applied and the sponsorship
// is settled. Receipts for already settled transactions are ignored.
func (sm *StateMachine) FinalizeTransaction(ctx context.Context, hash common.Hash, r *types.Receipt) (*types.Transaction, error) {
	now := sm.clock.Now()
	settled := false
	tx, err := store.CAS(ctx, sm.cfg.CASAttempts,
		func(ctx context.Context) (*types.Transaction, error) { return sm.GetTransaction(ctx, hash) },
		func(tx *types.Transaction) (*types.Transaction, bool, error) {
			settled = false
			if tx.Status != types.TxPending {
				return nil, false, nil
			}
			next := tx.Clone()
			next.Status = types.TxConfirmed
			if r.Status != types.ReceiptSuccess {
				next.Status = types.TxReverted
				next.ErrorMessage = "execution reverted"
			}
			next.BlockNumber = r.BlockNumber
			next.BlockTimestamp = r.BlockTimestamp
			next.GasUsed = types.OrZero(r.GasUsed)
			next.GasPrice = types.OrZero(r.GasPrice)
			next.ConfirmedAt = now
			settled = true
			return next, true, nil
		},
		sm.txs.UpdateTransaction)
	if err != nil {
		return nil, err
	}
	if !settled {
		return tx, nil
	}
	log.Infow("transaction settled", "tx", hash.Hex(), "type", tx.Type, "status", tx.Status)

	if tx.Status == types.TxConfirmed {
		sm.applyConfirmed(ctx, tx)
	} else {
		sm.applyReverted(ctx, tx)
	}
	sm.settleSponsorship(ctx, tx, r)
	return tx, nil
}

// FailTransaction settles a transaction the ledger dropped without mining it.
func (sm *StateMachine) FailTransaction(ctx context.Context, hash common.Hash, reason string) (*types.Transaction, error) {
	now := sm.clock.Now()
	tx, err := store.CAS(ctx, sm.cfg.CASAttempts,
		func(ctx context.Context) (*types.Transaction, error) { return sm.GetTransaction(ctx, hash) },
		func(tx *types.Transaction) (*types.Transaction, bool, error) {
			if tx.Status != types.TxPending {
				return nil, false, types.NewError(types.KindConflict, types.CodeTransactionFailed, "transaction %s is %s", hash.Hex(), tx.Status)
			}
			next := tx.Clone()
			next.Status = types.TxFailed
			next.ErrorMessage = reason
			next.ConfirmedAt = now
			return next, true, nil
		},
		sm.txs.UpdateTransaction)
	if err != nil {
		return nil, err
	}
	sm.applyReverted(ctx, tx)
	if sm.sponsor != nil && tx.SponsorshipID != "" {
		if _, err := sm.sponsor.FailSponsorship(ctx, hash, reason); err != nil {
			log.Warnf("failed to fail sponsorship of %s: %v", hash.Hex(), err)
		}
	}
	return tx, nil
}

func (sm *StateMachine) applyConfirmed(ctx context.Context, tx *types.Transaction) {
	now := sm.clock.Now()
	var revoked bool
	_, err := sm.update(ctx, tx.WalletAddress, func(w *types.GhostWallet) (*types.GhostWallet, error) {
		revoked = false
		next := w.Clone()
		next.TotalTransactions++
		switch tx.Type {
		case types.TxExecute, types.TxExecuteBatch, types.TxSweep, types.TxDestroy:
			next.TotalValueTransferred = big.Add(types.OrZero(w.TotalValueTransferred), types.OrZero(tx.Value))
		}
		switch tx.Type {
		case types.TxDestroy:
			next.Destroyed = true
			if next.DestroyedAt.IsZero() {
				next.DestroyedAt = now
			}
			next.DestroyedTxHash = tx.TxHash
		case types.TxAddEphemeralKey:
			if len(w.FindKeys(tx.KeyAddress)) == 0 && tx.KeyExpiresAt.After(now) {
				log.Warnf("restoring key %s of %s from confirmed %s", tx.KeyAddress.Hex(), w.Address.Hex(), tx.TxHash.Hex())
				next.Keys = append(next.Keys, types.EphemeralKey{
					KeyAddress: tx.KeyAddress,
					AddedAt:    tx.SubmittedAt,
					ExpiresAt:  tx.KeyExpiresAt,
					AddTxHash:  tx.TxHash,
				})
			}
		case types.TxRevokeEphemeralKey:
			nw, changed := sessionkey.RevokeKey(next, tx.KeyAddress, now)
			next, revoked = nw, changed
		}
		return next, nil
	})
	if err != nil {
		log.Errorf("failed to apply confirmed %s to %s: %v", tx.TxHash.Hex(), tx.WalletAddress.Hex(), err)
		return
	}
	if tx.Type == types.TxRevokeEphemeralKey && sm.observer != nil {
		if revoked {
			log.Infow("ephemeral key revoked", "wallet", tx.WalletAddress.Hex(), "key", tx.KeyAddress.Hex())
		}
		sm.observer.KeyRevoked(ctx, tx.WalletAddress, tx.KeyAddress, tx.TxHash)
	}
}

func (sm *StateMachine) applyReverted(ctx context.Context, tx *types.Transaction) {
	switch tx.Type {
	case types.TxAddEphemeralKey:
		// the contract never learnt the key, so it must not sign off chain either
		now := sm.clock.Now()
		_, err := sm.update(ctx, tx.WalletAddress, func(w *types.GhostWallet) (*types.GhostWallet, error) {
			next, changed := sessionkey.RevokeKey(w, tx.KeyAddress, now)
			if !changed {
				return nil, nil
			}
			return next, nil
		})
		if err != nil {
			log.Errorf("failed to void key %s of %s: %v", tx.KeyAddress.Hex(), tx.WalletAddress.Hex(), err)
		}
		if sm.observer != nil {
			sm.observer.KeyRevoked(ctx, tx.WalletAddress, tx.KeyAddress, tx.TxHash)
		}
	case types.TxDestroy:
		sm.alert(ctx, tx.TxHash, fmt.Sprintf("destroy of %s did not execute, the wallet stays retired off chain", tx.WalletAddress.Hex()))
	case types.TxRevokeEphemeralKey:
		sm.alert(ctx, tx.TxHash, fmt.Sprintf("revocation of key %s on %s did not execute", tx.KeyAddress.Hex(), tx.WalletAddress.Hex()))
	}
}

func (sm *StateMachine) settleSponsorship(ctx context.Context, tx *types.Transaction, r *types.Receipt) {
	if sm.sponsor == nil || tx.SponsorshipID == "" {
		return
	}
	in := paymaster.Settlement{
		BlockNumber:    r.BlockNumber,
		BlockTimestamp: r.BlockTimestamp,
		GasUsed:        types.OrZero(r.GasUsed),
		GasPrice:       types.OrZero(r.GasPrice),
	}
	var err error
	if r.Status == types.ReceiptSuccess {
		_, err = sm.sponsor.ConfirmSponsorship(ctx, tx.TxHash, in)
	} else {
		_, err = sm.sponsor.MarkReverted(ctx, tx.TxHash, in, "execution reverted")
	}
	if err != nil {
		if types.KindOf(err) == types.KindConflict {
			log.Debugf("sponsorship of %s already settled", tx.TxHash.Hex())
			return
		}
		log.Errorf("failed to settle sponsorship of %s: %v", tx.TxHash.Hex(), err)
		sm.alert(ctx, tx.TxHash, fmt.Sprintf("sponsorship of %s could not be settled: %v", tx.TxHash.Hex(), err))
	}
}

func (sm *StateMachine) alert(ctx context.Context, txHash common.Hash, msg string) {
	log.Warn(msg)
	if sm.alerts == nil {
		return
	}
	sm.alerts.Emit(ctx, &types.Alert{
		Kind:      types.AlertReconciliation,
		TxHash:    txHash,
		Message:   msg,
		Timestamp: sm.clock.Now(),
	})
}
