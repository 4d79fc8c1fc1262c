package types

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/shopspring/decimal"
)

const etherDecimals = 18

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ParseAddress accepts a 0x-prefixed 20 byte hex address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") || !common.IsHexAddress(s) {
		return common.Address{}, NewError(KindValidation, CodeInvalidAddress, "malformed address %q", s)
	}
	return common.HexToAddress(s), nil
}

// ParseTxHash accepts a 0x-prefixed 32 byte hex hash.
func ParseTxHash(s string) (common.Hash, error) {
	s = strings.TrimSpace(s)
	if !txHashPattern.MatchString(s) {
		return common.Hash{}, NewError(KindValidation, CodeMissingField, "malformed transaction hash %q", s)
	}
	return common.HexToHash(s), nil
}

// ParseAmount parses a non-negative base-unit integer written in decimal.
func ParseAmount(s string) (big.Int, error) {
	v, err := big.FromString(strings.TrimSpace(s))
	if err != nil {
		return big.Int{}, NewError(KindValidation, CodeInvalidAmount, "amount %q is not an integer", s)
	}
	if v.Sign() < 0 {
		return big.Int{}, NewError(KindValidation, CodeInvalidAmount, "amount %q is negative", s)
	}
	return v, nil
}

// IsSet reports whether v carries a positive value. Nil and zero both mean unset.
func IsSet(v big.Int) bool {
	return !v.Nil() && v.Sign() > 0
}

// OrZero maps a nil value to zero so arithmetic never dereferences nil.
func OrZero(v big.Int) big.Int {
	if v.Nil() {
		return big.Zero()
	}
	return v
}

// Sum adds all values exactly.
func Sum(values []big.Int) big.Int {
	total := big.Zero()
	for _, v := range values {
		total = big.Add(total, OrZero(v))
	}
	return total
}

func AmountString(v big.Int) string {
	return OrZero(v).String()
}

// EtherToWei converts a decimal ETH amount such as "0.01" to wei. Fractions
// below one wei are rejected.
func EtherToWei(s string) (big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return big.Int{}, NewError(KindValidation, CodeInvalidAmount, "amount %q is not a decimal", s)
	}
	if d.IsNegative() {
		return big.Int{}, NewError(KindValidation, CodeInvalidAmount, "amount %q is negative", s)
	}
	wei := d.Shift(etherDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return big.Int{}, NewError(KindValidation, CodeInvalidAmount, "amount %q has more than %d decimals", s, etherDecimals)
	}
	return big.Int{Int: wei.BigInt()}, nil
}

// FormatEther renders wei as a decimal ETH amount without trailing zeros.
func FormatEther(v big.Int) string {
	return decimal.NewFromBigInt(OrZero(v).Int, -etherDecimals).String()
}
