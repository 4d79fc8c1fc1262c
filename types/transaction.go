package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"
)

// Transaction records one ledger submission made on behalf of a wallet.
type Transaction struct {
	TxHash        common.Hash    `json:"txHash"`
	WalletAddress common.Address `json:"walletAddress"`
	Type          TxType         `json:"type"`
	Caller        common.Address `json:"caller"`
	SessionKey    bool           `json:"sessionKey"`
	To            common.Address `json:"to"`
	Value         big.Int        `json:"value"`
	BatchSize     int            `json:"batchSize,omitempty"`
	KeyAddress    common.Address `json:"keyAddress,omitempty"`
	KeyExpiresAt  time.Time      `json:"keyExpiresAt,omitempty"`
	SponsorshipID string         `json:"sponsorshipId,omitempty"`

	// Reservation is the amount booked against the day cap, zero for owner calls.
	Reservation       big.Int   `json:"reservation"`
	ReservationWindow time.Time `json:"reservationWindow,omitempty"`

	Status         TxStatus  `json:"status"`
	BlockNumber    uint64    `json:"blockNumber"`
	BlockTimestamp time.Time `json:"blockTimestamp,omitempty"`
	GasUsed        big.Int   `json:"gasUsed"`
	GasPrice       big.Int   `json:"gasPrice"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	SubmittedAt    time.Time `json:"submittedAt"`
	ConfirmedAt    time.Time `json:"confirmedAt,omitempty"`

	Version uint64 `json:"version"`
}

func (t *Transaction) Clone() *Transaction {
	cp := *t
	return &cp
}

func (t *Transaction) GasCost() big.Int {
	if t.GasUsed.Nil() || t.GasPrice.Nil() {
		return big.Zero()
	}
	return big.Mul(t.GasUsed, t.GasPrice)
}
