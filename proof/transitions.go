// Package proof tracks single-use authorization proofs. Verification itself
// is external; this package only records outcomes and enforces that a proof
// authorizes at most one transaction.
package proof

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Beutife/Ghost-Wallet/types"
)

func attemptsExhausted(p *types.Proof, max int) error {
	if max > 0 && p.VerificationAttempts >= max {
		return types.NewError(types.KindAuthorization, types.CodeVerificationFailed, "proof %s exhausted its %d verification attempts", p.Hash, max).
			With("attempts", p.VerificationAttempts)
	}
	return nil
}

// Verify records an outcome. Once max attempts were made every further call
// is rejected, whatever the outcome would have been.
func Verify(p *types.Proof, isValid bool, verificationErr string, max int, now time.Time) (*types.Proof, error) {
	if p.Used {
		return nil, types.NewError(types.KindConflict, types.CodeProofUsed, "proof %s was already consumed", p.Hash)
	}
	if err := attemptsExhausted(p, max); err != nil {
		return nil, err
	}
	next := p.Clone()
	next.VerificationAttempts++
	next.Verified = true
	next.IsValid = isValid
	next.VerificationError = verificationErr
	if isValid {
		next.VerificationError = ""
	}
	return next, nil
}

func RecordFailedAttempt(p *types.Proof, reason string, max int) (*types.Proof, error) {
	if err := attemptsExhausted(p, max); err != nil {
		return nil, err
	}
	next := p.Clone()
	next.VerificationAttempts++
	next.VerificationError = reason
	return next, nil
}

// Consume moves used from false to true. Only Consume and Restore write Used.
func Consume(p *types.Proof, txHash common.Hash, now time.Time) (*types.Proof, error) {
	if p.Used {
		return nil, types.NewError(types.KindConflict, types.CodeProofUsed, "proof %s was already consumed", p.Hash).
			With("usedForTxHash", p.UsedForTxHash.Hex())
	}
	if !p.Verified {
		return nil, types.NewError(types.KindAuthorization, types.CodeInvalidProof, "proof %s is not verified", p.Hash)
	}
	if !p.IsValid {
		return nil, types.NewError(types.KindAuthorization, types.CodeInvalidProof, "proof %s is invalid", p.Hash)
	}
	if p.Expired(now) {
		return nil, types.NewError(types.KindAuthorization, types.CodeProofExpired, "proof %s expired", p.Hash).
			With("expiresAt", p.ExpiresAt.UTC().Format(time.RFC3339))
	}
	next := p.Clone()
	next.Used = true
	next.UsedAt = now
	next.UsedForTxHash = txHash
	return next, nil
}

// Restore undoes a Consume whose transaction was never recorded. It only
// applies to the binding made for txHash.
func Restore(p *types.Proof, txHash common.Hash) (*types.Proof, error) {
	if !p.Used {
		return nil, nil
	}
	if p.UsedForTxHash != txHash {
		return nil, types.NewError(types.KindConflict, types.CodeProofUsed, "proof %s is bound to %s", p.Hash, p.UsedForTxHash.Hex())
	}
	next := p.Clone()
	next.Used = false
	next.UsedAt = time.Time{}
	next.UsedForTxHash = common.Hash{}
	return next, nil
}
