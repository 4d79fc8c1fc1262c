package types

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"
)

// Operation is a wallet contract call handed to the ledger.
type Operation struct {
	Type    TxType           `json:"type"`
	Wallet  common.Address   `json:"wallet"`
	Targets []common.Address `json:"targets,omitempty"`
	Values  []big.Int        `json:"values,omitempty"`
	Data    [][]byte         `json:"data,omitempty"`

	// sweep and destroy
	Recipient common.Address `json:"recipient,omitempty"`

	// addEphemeralKey and revokeEphemeralKey
	KeyAddress   common.Address `json:"keyAddress,omitempty"`
	KeyExpiresAt time.Time      `json:"keyExpiresAt,omitempty"`

	GasLimit uint64 `json:"gasLimit"`
}

type ReceiptStatus string

const (
	ReceiptSuccess  ReceiptStatus = "success"
	ReceiptReverted ReceiptStatus = "reverted"
)

type Receipt struct {
	TxHash         common.Hash    `json:"txHash"`
	Status         ReceiptStatus  `json:"status"`
	BlockNumber    uint64         `json:"blockNumber"`
	BlockTimestamp time.Time      `json:"blockTimestamp"`
	GasUsed        big.Int        `json:"gasUsed"`
	GasPrice       big.Int        `json:"gasPrice"`
	Events         []*LedgerEvent `json:"events,omitempty"`
}

// Ledger is the submission side of the blockchain. Submit returning a hash
// means the node accepted the operation; it says nothing about execution.
// WaitForReceipt returns an error coded CodeReceiptTimeout while the
// transaction is still unmined, distinct from a reverted receipt.
type Ledger interface {
	Submit(ctx context.Context, op *Operation) (common.Hash, error)
	WaitForReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error)
	BalanceOf(ctx context.Context, addr common.Address) (big.Int, error)
	GasPrice(ctx context.Context) (big.Int, error)
}

type EventKind string

const (
	EventGhostCreated          EventKind = "GhostCreated"
	EventWalletExecuted        EventKind = "WalletExecuted"
	EventWalletBatchExecuted   EventKind = "WalletBatchExecuted"
	EventSwept                 EventKind = "Swept"
	EventDestroyed             EventKind = "Destroyed"
	EventEphemeralKeyAdded     EventKind = "EphemeralKeyAdded"
	EventEphemeralKeyRevoked   EventKind = "EphemeralKeyRevoked"
	EventGasSponsored          EventKind = "GasSponsored"
	EventUserOperationExecuted EventKind = "UserOperationExecuted"
)

// LedgerEvent is a decoded contract log. Fields a kind does not carry stay zero.
type LedgerEvent struct {
	Kind        EventKind      `json:"kind"`
	TxHash      common.Hash    `json:"txHash"`
	BlockNumber uint64         `json:"blockNumber"`
	Contract    common.Address `json:"contract"`
	Wallet      common.Address `json:"wallet,omitempty"`
	Owner       common.Address `json:"owner,omitempty"`
	KeyAddress  common.Address `json:"keyAddress,omitempty"`
	Target      common.Address `json:"target,omitempty"`
	ExpiresAt   time.Time      `json:"expiresAt,omitempty"`
	Amount      big.Int        `json:"amount"`
	Success     bool           `json:"success"`
}

// EventFeed delivers ledger events until ctx is done, then closes the channel.
type EventFeed interface {
	Subscribe(ctx context.Context) (<-chan *LedgerEvent, error)
}

type AlertKind string

const (
	AlertLowBalance     AlertKind = "low_balance"
	AlertReconciliation AlertKind = "reconciliation"
)

type Alert struct {
	Kind           AlertKind      `json:"kind"`
	Paymaster      common.Address `json:"paymasterAddress,omitempty"`
	CurrentBalance big.Int        `json:"currentBalance"`
	Threshold      big.Int        `json:"threshold"`
	TxHash         common.Hash    `json:"txHash,omitempty"`
	Message        string         `json:"message,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// AlertSink receives operational signals. Emit must not block the caller for long.
type AlertSink interface {
	Emit(ctx context.Context, alert *Alert)
}
