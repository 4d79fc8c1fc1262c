package types

import (
	"fmt"
	"time"
)

type Network string

const (
	NetworkMainnet  Network = "mainnet"
	NetworkSepolia  Network = "sepolia"
	NetworkGoerli   Network = "goerli"
	NetworkPolygon  Network = "polygon"
	NetworkArbitrum Network = "arbitrum"
	NetworkOptimism Network = "optimism"
	NetworkBase     Network = "base"
)

var chainIDs = map[Network]int64{
	NetworkMainnet:  1,
	NetworkSepolia:  11155111,
	NetworkGoerli:   5,
	NetworkPolygon:  137,
	NetworkArbitrum: 42161,
	NetworkOptimism: 10,
	NetworkBase:     8453,
}

func (n Network) ChainID() (int64, bool) {
	id, ok := chainIDs[n]
	return id, ok
}

func ParseNetwork(s string) (Network, error) {
	n := Network(s)
	if _, ok := chainIDs[n]; !ok {
		return "", NewError(KindValidation, CodeMissingField, "unsupported network %q", s)
	}
	return n, nil
}

// TxType names the wallet contract call behind a ledger submission.
type TxType string

const (
	TxExecute            TxType = "execute"
	TxExecuteBatch       TxType = "executeBatch"
	TxSweep              TxType = "sweep"
	TxDestroy            TxType = "destroy"
	TxAddEphemeralKey    TxType = "addEphemeralKey"
	TxRevokeEphemeralKey TxType = "revokeEphemeralKey"
)

// gas ceilings used both as the submitted gas limit and for sponsorship estimates
var gasLimits = map[TxType]uint64{
	TxExecute:            300000,
	TxExecuteBatch:       800000,
	TxSweep:              21000 * 3,
	TxDestroy:            100000,
	TxAddEphemeralKey:    100000,
	TxRevokeEphemeralKey: 80000,
}

const WalletCreationGasLimit uint64 = 500000

func (t TxType) GasLimit() uint64 {
	return gasLimits[t]
}

// OperationType returns the sponsorship category the paymaster books t under.
func (t TxType) OperationType() OperationType {
	switch t {
	case TxExecuteBatch:
		return OpBatchExecution
	case TxAddEphemeralKey:
		return OpSessionKeyAddition
	case TxRevokeEphemeralKey:
		return OpSessionKeyRevocation
	default:
		return OpTransactionExecution
	}
}

type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
	TxReverted  TxStatus = "reverted"
)

type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionExpired SessionStatus = "expired"
	SessionRevoked SessionStatus = "revoked"
	SessionEnded   SessionStatus = "ended"
)

// Terminal reports whether no transition can leave s.
func (s SessionStatus) Terminal() bool {
	return s != SessionActive
}

type ProofType string

const (
	ProofWalletCreation           ProofType = "wallet_creation"
	ProofTransactionAuthorization ProofType = "transaction_authorization"
	ProofSessionKeyAddition       ProofType = "session_key_addition"
	ProofOwnershipVerification    ProofType = "ownership_verification"
)

func ParseProofType(s string) (ProofType, error) {
	switch p := ProofType(s); p {
	case ProofWalletCreation, ProofTransactionAuthorization, ProofSessionKeyAddition, ProofOwnershipVerification:
		return p, nil
	}
	return "", NewError(KindValidation, CodeInvalidProof, "unknown proof type %q", s)
}

type OperationType string

const (
	OpWalletCreation       OperationType = "wallet_creation"
	OpTransactionExecution OperationType = "transaction_execution"
	OpBatchExecution       OperationType = "batch_execution"
	OpSessionKeyAddition   OperationType = "session_key_addition"
	OpSessionKeyRevocation OperationType = "session_key_revocation"
)

type SponsorshipStatus string

const (
	SponsorshipPending   SponsorshipStatus = "pending"
	SponsorshipConfirmed SponsorshipStatus = "confirmed"
	SponsorshipFailed    SponsorshipStatus = "failed"
)

func ParseSponsorshipStatus(s string) (SponsorshipStatus, error) {
	switch st := SponsorshipStatus(s); st {
	case SponsorshipPending, SponsorshipConfirmed, SponsorshipFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown sponsorship status %q", s)
}

// Clock is the source of "now" for services; pure transitions take now as a parameter.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
