package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Proof is a single-use, time boxed authorization token. Only its hash and
// bookkeeping are held here; verification happens elsewhere.
type Proof struct {
	Hash          string         `json:"proofHash"`
	Type          ProofType      `json:"proofType"`
	Nonce         string         `json:"nonce"`
	WalletAddress common.Address `json:"walletAddress"`
	PublicSignals []string       `json:"publicSignals,omitempty"`
	Network       Network        `json:"network,omitempty"`
	SubmittedAt   time.Time      `json:"submittedAt"`
	ExpiresAt     time.Time      `json:"expiresAt"`

	Verified             bool   `json:"verified"`
	IsValid              bool   `json:"isValid"`
	VerificationAttempts int    `json:"verificationAttempts"`
	VerificationError    string `json:"verificationError,omitempty"`

	Used          bool        `json:"used"`
	UsedAt        time.Time   `json:"usedAt,omitempty"`
	UsedForTxHash common.Hash `json:"usedForTxHash"`
	SessionToken  string      `json:"sessionToken,omitempty"`

	FlaggedForCleanup bool `json:"shouldCleanup"`

	Version uint64 `json:"version"`
}

func (p *Proof) Clone() *Proof {
	cp := *p
	cp.PublicSignals = append([]string(nil), p.PublicSignals...)
	return &cp
}

func (p *Proof) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
