package ghostwallet

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opencensus.io/tag"

	"github.com/Beutife/Ghost-Wallet/metrics"
	"github.com/Beutife/Ghost-Wallet/sessionkey"
	"github.com/Beutife/Ghost-Wallet/types"
)

// AddEphemeralKey registers key on the wallet contract and, once the ledger
// accepted the call, in the wallet record.
func (sm *StateMachine) AddEphemeralKey(ctx context.Context, addr, caller, key common.Address, expiresAt time.Time) (*types.Transaction, error) {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.TxTypeKey, string(types.TxAddEphemeralKey)))
	tx, err := sm.addKey(ctx, addr, caller, key, expiresAt)
	if err != nil {
		rejected(ctx, err)
		return nil, err
	}
	return tx, nil
}

func (sm *StateMachine) addKey(ctx context.Context, addr, caller, key common.Address, expiresAt time.Time) (*types.Transaction, error) {
	w, err := sm.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	now := sm.clock.Now()
	if _, err := sessionkey.Authorize(w, caller, now, true); err != nil {
		return nil, err
	}
	if _, err := sessionkey.AddKey(w, key, expiresAt, now, sm.cfg.KeyBounds, common.Hash{}); err != nil {
		return nil, err
	}

	op := &types.Operation{
		Type:         types.TxAddEphemeralKey,
		Wallet:       addr,
		KeyAddress:   key,
		KeyExpiresAt: expiresAt,
		GasLimit:     types.TxAddEphemeralKey.GasLimit(),
	}
	tx := &types.Transaction{
		WalletAddress: addr,
		Type:          types.TxAddEphemeralKey,
		Caller:        caller,
		To:            addr,
		KeyAddress:    key,
		KeyExpiresAt:  expiresAt,
	}
	if err := sm.submit(ctx, w, op, tx); err != nil {
		return nil, err
	}

	if _, err := sm.update(ctx, addr, func(w *types.GhostWallet) (*types.GhostWallet, error) {
		return sessionkey.AddKey(w, key, expiresAt, now, sm.cfg.KeyBounds, tx.TxHash)
	}); err != nil {
		// the contract has the key; the record is repaired when the tx confirms
		log.Errorf("key %s added on chain by %s but not recorded: %v", key.Hex(), tx.TxHash.Hex(), err)
		te, ok := types.AsError(err)
		if !ok {
			te = types.WrapError(err, types.KindInternal, types.CodeDatabase, "record key %s", key.Hex())
		}
		return nil, te.With("txHash", tx.TxHash.Hex())
	}
	log.Infow("ephemeral key added", "wallet", addr.Hex(), "key", key.Hex(), "expiresAt", expiresAt, "tx", tx.TxHash.Hex())
	return tx, nil
}

// RevokeEphemeralKey revokes key and waits for the receipt, so a nil error
// means the key can no longer sign. Revoking a key that is not active is a
// no-op and returns a nil transaction.
func (sm *StateMachine) RevokeEphemeralKey(ctx context.Context, addr, caller, key common.Address) (*types.Transaction, error) {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.TxTypeKey, string(types.TxRevokeEphemeralKey)))
	tx, err := sm.revokeKey(ctx, addr, caller, key)
	if err != nil {
		rejected(ctx, err)
	}
	return tx, err
}

func (sm *StateMachine) revokeKey(ctx context.Context, addr, caller, key common.Address) (*types.Transaction, error) {
	w, err := sm.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	now := sm.clock.Now()
	if w.Destroyed && caller == w.Owner {
		// keys of a destroyed wallet are void already
		return nil, nil
	}
	if _, err := sessionkey.Authorize(w, caller, now, true); err != nil {
		return nil, err
	}
	if !sessionkey.IsActive(w, key, now) {
		return nil, nil
	}

	op := &types.Operation{
		Type:       types.TxRevokeEphemeralKey,
		Wallet:     addr,
		KeyAddress: key,
		GasLimit:   types.TxRevokeEphemeralKey.GasLimit(),
	}
	tx := &types.Transaction{
		WalletAddress: addr,
		Type:          types.TxRevokeEphemeralKey,
		Caller:        caller,
		To:            addr,
		KeyAddress:    key,
	}
	if err := sm.submit(ctx, w, op, tx); err != nil {
		return nil, err
	}

	receipt, err := sm.chain.WaitForReceipt(ctx, tx.TxHash)
	if err != nil {
		if types.CodeOf(err) == types.CodeReceiptTimeout {
			return tx, err
		}
		return tx, types.LedgerFailure(err, "wait for revoke %s", tx.TxHash.Hex())
	}
	final, err := sm.FinalizeTransaction(ctx, tx.TxHash, receipt)
	if err != nil {
		return tx, err
	}
	if final.Status != types.TxConfirmed {
		return final, types.NewError(types.KindReconciliation, types.CodeTransactionFailed, "revocation of %s reverted", key.Hex()).
			With("txHash", tx.TxHash.Hex())
	}
	return final, nil
}
