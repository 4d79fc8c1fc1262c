package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"
)

// EphemeralKey is a key delegated by the wallet owner for a bounded time.
// Entries are append-only; revocation is logical.
type EphemeralKey struct {
	KeyAddress common.Address `json:"keyAddress"`
	AddedAt    time.Time      `json:"addedAt"`
	ExpiresAt  time.Time      `json:"expiresAt"`
	Revoked    bool           `json:"revoked"`
	RevokedAt  time.Time      `json:"revokedAt,omitempty"`
	AddTxHash  common.Hash    `json:"addTxHash"`
}

// ActiveAt ignores the owning wallet's destroyed flag; use sessionkey.IsActive for the full rule.
func (k EphemeralKey) ActiveAt(now time.Time) bool {
	return !k.Revoked && now.Before(k.ExpiresAt)
}

// SpendingLimit caps session key spend. A nil or zero cap is disabled.
type SpendingLimit struct {
	MaxPerTx       big.Int   `json:"maxPerTx"`
	MaxPerDay      big.Int   `json:"maxPerDay"`
	SpentToday     big.Int   `json:"spentToday"`
	DayWindowStart time.Time `json:"dayWindowStart"`
}

func (l *SpendingLimit) Clone() *SpendingLimit {
	if l == nil {
		return nil
	}
	cp := *l
	return &cp
}

type GhostWallet struct {
	Address          common.Address `json:"address"`
	Owner            common.Address `json:"owner"`
	Network          Network        `json:"network"`
	Label            string         `json:"label,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	DeploymentTxHash common.Hash    `json:"deploymentTxHash"`

	Destroyed       bool        `json:"destroyed"`
	DestroyedAt     time.Time   `json:"destroyedAt,omitempty"`
	DestroyedTxHash common.Hash `json:"destroyedTxHash"`

	// advisory, the ledger is authoritative
	LastKnownBalance      big.Int `json:"lastKnownBalance"`
	TotalTransactions     int64   `json:"totalTransactions"`
	TotalValueTransferred big.Int `json:"totalValueTransferred"`

	Keys          []EphemeralKey `json:"keys"`
	SpendingLimit *SpendingLimit `json:"spendingLimit,omitempty"`

	// Version is bumped by every successful store update.
	Version uint64 `json:"version"`
}

// Clone returns a copy whose slices and pointers are not shared with w.
// big.Int fields are shared; they are never mutated in place.
func (w *GhostWallet) Clone() *GhostWallet {
	cp := *w
	cp.Keys = append([]EphemeralKey(nil), w.Keys...)
	cp.SpendingLimit = w.SpendingLimit.Clone()
	return &cp
}

// FindKeys returns the indices of every entry for key, oldest first.
func (w *GhostWallet) FindKeys(key common.Address) []int {
	var idx []int
	for i := range w.Keys {
		if w.Keys[i].KeyAddress == key {
			idx = append(idx, i)
		}
	}
	return idx
}
