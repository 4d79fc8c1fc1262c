// Package paymaster keeps the books of gas sponsorship: one record per
// sponsored operation, settled from receipts, and aggregated exactly.
package paymaster

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"

	"github.com/Beutife/Ghost-Wallet/types"
)

// Settlement is what a receipt tells us about a sponsored operation.
type Settlement struct {
	BlockNumber    uint64    `json:"blockNumber"`
	BlockTimestamp time.Time `json:"blockTimestamp"`
	GasUsed        big.Int   `json:"gasUsed"`
	GasPrice       big.Int   `json:"gasPrice"`
}

func (s Settlement) validate() error {
	if s.GasUsed.Nil() || s.GasUsed.Sign() < 0 {
		return types.NewError(types.KindValidation, types.CodeInvalidAmount, "gas used must be a non-negative integer")
	}
	if s.GasPrice.Nil() || s.GasPrice.Sign() < 0 {
		return types.NewError(types.KindValidation, types.CodeInvalidAmount, "gas price must be a non-negative integer")
	}
	return nil
}

func requirePending(s *types.Sponsorship) error {
	if s.Status != types.SponsorshipPending {
		return types.NewError(types.KindConflict, types.CodeSponsorshipSettled, "sponsorship %s is %s", s.ID, s.Status).
			With("txHash", s.TxHash.Hex())
	}
	return nil
}

func settle(s *types.Sponsorship, in Settlement, balanceAfter big.Int, now time.Time) *types.Sponsorship {
	next := s.Clone()
	next.BlockNumber = in.BlockNumber
	next.BlockTimestamp = in.BlockTimestamp
	next.GasUsed = in.GasUsed
	next.GasPrice = in.GasPrice
	next.GasCost = big.Mul(in.GasUsed, in.GasPrice)
	next.BalanceAfter = balanceAfter
	next.ConfirmedAt = now
	return next
}

// Confirm moves pending to confirmed with gasCost = gasUsed * gasPrice.
func Confirm(s *types.Sponsorship, in Settlement, balanceAfter big.Int, now time.Time) (*types.Sponsorship, error) {
	if err := requirePending(s); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	next := settle(s, in, balanceAfter, now)
	next.Status = types.SponsorshipConfirmed
	return next, nil
}

// Revert settles a mined but reverted operation. The gas was spent, so it
// is recorded even though the status is failed.
func Revert(s *types.Sponsorship, in Settlement, balanceAfter big.Int, reason string, now time.Time) (*types.Sponsorship, error) {
	if err := requirePending(s); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	next := settle(s, in, balanceAfter, now)
	next.Status = types.SponsorshipFailed
	next.Reverted = true
	next.ErrorMessage = reason
	return next, nil
}

// Fail moves pending to failed without charging gas.
func Fail(s *types.Sponsorship, reason string, now time.Time) (*types.Sponsorship, error) {
	if err := requirePending(s); err != nil {
		return nil, err
	}
	next := s.Clone()
	next.Status = types.SponsorshipFailed
	next.ErrorMessage = reason
	next.GasCost = big.Zero()
	next.ConfirmedAt = now
	return next, nil
}

func Refund(s *types.Sponsorship, amount big.Int, refundTx common.Hash) (*types.Sponsorship, error) {
	if s.Status == types.SponsorshipPending {
		return nil, types.NewError(types.KindConflict, types.CodeSponsorshipSettled, "sponsorship %s is still pending", s.ID)
	}
	if s.Refunded {
		return nil, types.NewError(types.KindConflict, types.CodeAlreadyRefunded, "sponsorship %s was already refunded", s.ID).
			With("refundTxHash", s.RefundTxHash.Hex())
	}
	if !types.IsSet(amount) {
		return nil, types.NewError(types.KindValidation, types.CodeInvalidAmount, "refund amount must be positive")
	}
	next := s.Clone()
	next.Refunded = true
	next.RefundAmount = amount
	next.RefundTxHash = refundTx
	return next, nil
}

// Totals is a projection over a set of sponsorships.
type Totals struct {
	ConfirmedCount   int     `json:"confirmedCount"`
	ConfirmedGasCost big.Int `json:"confirmedGasCost"`
	RevertedCount    int     `json:"revertedCount"`
	RevertedGasCost  big.Int `json:"revertedGasCost"`
	FailedCount      int     `json:"failedCount"`
	PendingCount     int     `json:"pendingCount"`
	RefundedCount    int     `json:"refundedCount"`
	RefundedAmount   big.Int `json:"refundedAmount"`
}

// StatusStats groups one status.
type StatusStats struct {
	Count   int     `json:"count"`
	GasCost big.Int `json:"totalGasCost"`
	GasUsed big.Int `json:"totalGasUsed"`
}

// Summarize folds entries into Totals. Reverted entries are counted under
// both FailedCount and RevertedCount; their gas is kept out of ConfirmedGasCost.
func Summarize(entries []*types.Sponsorship) Totals {
	t := Totals{
		ConfirmedGasCost: big.Zero(),
		RevertedGasCost:  big.Zero(),
		RefundedAmount:   big.Zero(),
	}
	for _, s := range entries {
		switch s.Status {
		case types.SponsorshipConfirmed:
			t.ConfirmedCount++
			t.ConfirmedGasCost = big.Add(t.ConfirmedGasCost, types.OrZero(s.GasCost))
		case types.SponsorshipFailed:
			t.FailedCount++
			if s.Reverted {
				t.RevertedCount++
				t.RevertedGasCost = big.Add(t.RevertedGasCost, types.OrZero(s.GasCost))
			}
		case types.SponsorshipPending:
			t.PendingCount++
		}
		if s.Refunded {
			t.RefundedCount++
			t.RefundedAmount = big.Add(t.RefundedAmount, types.OrZero(s.RefundAmount))
		}
	}
	return t
}

// GroupByStatus returns one entry per status present in entries.
func GroupByStatus(entries []*types.Sponsorship) map[types.SponsorshipStatus]StatusStats {
	out := make(map[types.SponsorshipStatus]StatusStats)
	for _, s := range entries {
		st, ok := out[s.Status]
		if !ok {
			st = StatusStats{GasCost: big.Zero(), GasUsed: big.Zero()}
		}
		st.Count++
		st.GasCost = big.Add(st.GasCost, types.OrZero(s.GasCost))
		st.GasUsed = big.Add(st.GasUsed, types.OrZero(s.GasUsed))
		out[s.Status] = st
	}
	return out
}
