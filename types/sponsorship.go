package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"
)

// Sponsorship is one gas sponsorship obligation of the paymaster. It is
// created before submission, so TxHash stays zero until the ledger accepts
// the operation.
type Sponsorship struct {
	ID            string         `json:"id"`
	TxHash        common.Hash    `json:"txHash"`
	UserWallet    common.Address `json:"userWalletAddress"`
	Paymaster     common.Address `json:"paymasterAddress"`
	OperationType OperationType  `json:"operationType"`
	SessionToken  string         `json:"sessionToken,omitempty"`
	Network       Network        `json:"network,omitempty"`

	EstimatedGasCost big.Int `json:"estimatedGasCost"`
	GasUsed          big.Int `json:"gasUsed"`
	GasPrice         big.Int `json:"gasPrice"`
	GasCost          big.Int `json:"gasCost"`

	Status         SponsorshipStatus `json:"status"`
	Reverted       bool              `json:"reverted"`
	BlockNumber    uint64            `json:"blockNumber"`
	BlockTimestamp time.Time         `json:"blockTimestamp,omitempty"`
	ErrorMessage   string            `json:"errorMessage,omitempty"`

	BalanceBefore big.Int `json:"paymasterBalanceBefore"`
	// BalanceAfter is unset until settlement, and stays unset when the
	// balance could not be read at settlement.
	BalanceAfter big.Int `json:"paymasterBalanceAfter"`

	Refunded     bool        `json:"refunded"`
	RefundAmount big.Int     `json:"refundAmount"`
	RefundTxHash common.Hash `json:"refundTxHash"`

	SponsoredAt time.Time `json:"sponsoredAt"`
	ConfirmedAt time.Time `json:"confirmedAt,omitempty"`

	Version uint64 `json:"version"`
}

func (s *Sponsorship) Clone() *Sponsorship {
	cp := *s
	return &cp
}

// Settled reports whether the sponsorship left the pending state.
func (s *Sponsorship) Settled() bool {
	return s.Status != SponsorshipPending
}
