package types

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrorKind groups rejections by how a caller is expected to react to them.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindAuthorization  ErrorKind = "authorization"
	KindConflict       ErrorKind = "conflict"
	KindLimitExceeded  ErrorKind = "limit_exceeded"
	KindNotFound       ErrorKind = "not_found"
	KindLedger         ErrorKind = "ledger"
	KindReconciliation ErrorKind = "reconciliation"
	KindInternal       ErrorKind = "internal"
)

// ErrorCode is the stable machine readable reason of a rejection.
type ErrorCode string

const (
	CodeInvalidAddress      ErrorCode = "INVALID_ADDRESS"
	CodeInvalidAmount       ErrorCode = "INVALID_AMOUNT"
	CodeInvalidDuration     ErrorCode = "INVALID_DURATION"
	CodeInvalidSignature    ErrorCode = "INVALID_SIGNATURE"
	CodeInvalidProof        ErrorCode = "INVALID_PROOF"
	CodeMissingField        ErrorCode = "MISSING_REQUIRED_FIELD"
	CodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	CodeForbidden           ErrorCode = "FORBIDDEN"
	CodeNotWalletOwner      ErrorCode = "NOT_WALLET_OWNER"
	CodeSessionExpired      ErrorCode = "SESSION_EXPIRED"
	CodeSessionNotActive    ErrorCode = "SESSION_NOT_ACTIVE"
	CodeProofExpired        ErrorCode = "PROOF_EXPIRED"
	CodeWalletNotFound      ErrorCode = "WALLET_NOT_FOUND"
	CodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	CodeTransactionNotFound ErrorCode = "TRANSACTION_NOT_FOUND"
	CodeProofNotFound       ErrorCode = "PROOF_NOT_FOUND"
	CodeSponsorshipNotFound ErrorCode = "SPONSORSHIP_NOT_FOUND"
	CodeWalletExists        ErrorCode = "WALLET_ALREADY_EXISTS"
	CodeWalletDestroyed     ErrorCode = "WALLET_DESTROYED"
	CodeSessionActive       ErrorCode = "SESSION_ALREADY_ACTIVE"
	CodeKeyReused           ErrorCode = "EPHEMERAL_KEY_REUSED"
	CodeProofUsed           ErrorCode = "PROOF_ALREADY_USED"
	CodeSponsorshipSettled  ErrorCode = "SPONSORSHIP_NOT_PENDING"
	CodeAlreadyRefunded     ErrorCode = "ALREADY_REFUNDED"
	CodeInternal            ErrorCode = "INTERNAL_ERROR"
	CodeBlockchain          ErrorCode = "BLOCKCHAIN_ERROR"
	CodeDatabase            ErrorCode = "DATABASE_ERROR"
	CodeVerificationFailed  ErrorCode = "PROOF_VERIFICATION_FAILED"
	CodeSpendingLimit       ErrorCode = "SPENDING_LIMIT_EXCEEDED"
	CodeSponsorCapExceeded  ErrorCode = "SPONSOR_CAP_EXCEEDED"
	CodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	CodeTransactionFailed   ErrorCode = "TRANSACTION_FAILED"
	CodeReceiptTimeout      ErrorCode = "RECEIPT_TIMEOUT"
	CodePaymasterFunds      ErrorCode = "PAYMASTER_INSUFFICIENT_FUNDS"
	CodeConcurrentUpdate    ErrorCode = "CONCURRENT_UPDATE"
)

// Error is the typed rejection returned by every core operation. Details
// carries the current state values relevant to the rejection (caps, usage,
// deadlines) so callers can explain it without a second query.
type Error struct {
	Kind    ErrorKind         `json:"kind"`
	Code    ErrorCode         `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	cause   error
}

func NewError(kind ErrorKind, code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind and code to an infrastructure error.
func WrapError(err error, kind ErrorKind, code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// With adds a detail entry and returns the receiver for chaining.
func (e *Error) With(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = fmt.Sprint(value)
	return e
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	sb.WriteString("/")
	sb.WriteString(string(e.Code))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(e.Details[k])
		}
		sb.WriteString(")")
	}
	if e.cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.cause.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.cause }

// AsError extracts the typed error from err's chain.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// KindOf reports the kind of err, KindInternal for untyped errors.
func KindOf(err error) ErrorKind {
	if te, ok := AsError(err); ok {
		return te.Kind
	}
	return KindInternal
}

// CodeOf reports the code of err, CodeInternal for untyped errors.
func CodeOf(err error) ErrorCode {
	if te, ok := AsError(err); ok {
		return te.Code
	}
	return CodeInternal
}

// IsKind is a shorthand for KindOf(err) == kind that tolerates nil.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// LedgerFailure keeps typed errors as they are and marks anything else as a
// blockchain failure.
func LedgerFailure(err error, format string, args ...interface{}) error {
	if _, ok := AsError(err); ok {
		return err
	}
	return WrapError(err, KindLedger, CodeBlockchain, format, args...)
}
