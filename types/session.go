package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	MinSessionDuration = 60 * time.Second
	MaxSessionDuration = 24 * time.Hour
)

type Session struct {
	Token               string         `json:"sessionToken"`
	WalletAddress       common.Address `json:"walletAddress"`
	EphemeralKeyAddress common.Address `json:"ephemeralKeyAddress"`
	StartedAt           time.Time      `json:"startedAt"`
	ExpiresAt           time.Time      `json:"expiresAt"`
	DurationSecs        int64          `json:"duration"`
	Status              SessionStatus  `json:"status"`
	EndedAt             time.Time      `json:"endedAt,omitempty"`

	LastActivityAt   time.Time `json:"lastActivityAt"`
	TransactionCount int64     `json:"transactionCount"`

	OnChainAdded    bool        `json:"onChainAdded"`
	AddKeyTxHash    common.Hash `json:"addKeyTxHash"`
	OnChainRevoked  bool        `json:"onChainRevoked"`
	RevokeKeyTxHash common.Hash `json:"revokeKeyTxHash"`

	Version uint64 `json:"version"`
}

func (s *Session) Clone() *Session {
	cp := *s
	return &cp
}

func (s *Session) Remaining(now time.Time) time.Duration {
	if s.Status != SessionActive || !now.Before(s.ExpiresAt) {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}
