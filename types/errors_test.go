package types

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestTypedError(t *testing.T) {
	t.Run("details are rendered sorted", func(t *testing.T) {
		err := NewError(KindLimitExceeded, CodeSpendingLimit, "day cap exceeded").
			With("spent", 185).
			With("cap", 200).
			With("requested", 30)
		require.Equal(t, "limit_exceeded/SPENDING_LIMIT_EXCEEDED: day cap exceeded (cap=200, requested=30, spent=185)", err.Error())
	})

	t.Run("kind survives wrapping", func(t *testing.T) {
		base := NewError(KindAuthorization, CodeNotWalletOwner, "caller is not the owner")
		wrapped := errors.Wrap(fmt.Errorf("execute: %w", base), "api")
		require.Equal(t, KindAuthorization, KindOf(wrapped))
		require.Equal(t, CodeNotWalletOwner, CodeOf(wrapped))
		require.True(t, IsKind(wrapped, KindAuthorization))
	})

	t.Run("untyped errors are internal", func(t *testing.T) {
		require.Equal(t, KindInternal, KindOf(errors.New("boom")))
		require.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
		require.False(t, IsKind(nil, KindInternal))
	})

	t.Run("wrapped cause is reachable", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := WrapError(cause, KindLedger, CodeBlockchain, "submit failed")
		require.True(t, errors.Is(err, cause))
		require.Contains(t, err.Error(), "connection refused")
	})
}

func TestParseInputs(t *testing.T) {
	addr, err := ParseAddress("0x00000000000000000000000000000000000000aB")
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xab"), addr)

	for _, bad := range []string{"", "0x1234", "00000000000000000000000000000000000000ab", "0xzz000000000000000000000000000000000000ab"} {
		_, err := ParseAddress(bad)
		require.Equal(t, CodeInvalidAddress, CodeOf(err), bad)
	}

	_, err = ParseTxHash("0xabc")
	require.Equal(t, KindValidation, KindOf(err))

	v, err := ParseAmount("630000000000000")
	require.NoError(t, err)
	require.Equal(t, "630000000000000", v.String())

	_, err = ParseAmount("-1")
	require.Equal(t, CodeInvalidAmount, CodeOf(err))
	_, err = ParseAmount("1.5")
	require.Equal(t, CodeInvalidAmount, CodeOf(err))
}

func TestEtherConversion(t *testing.T) {
	wei, err := EtherToWei("0.01")
	require.NoError(t, err)
	require.Equal(t, "10000000000000000", wei.String())
	require.Equal(t, "0.01", FormatEther(wei))

	wei, err = EtherToWei(" 2 ")
	require.NoError(t, err)
	require.Equal(t, "2000000000000000000", wei.String())

	require.Equal(t, "0", FormatEther(big.Int{}))

	for _, bad := range []string{"abc", "-0.1", "0.0000000000000000001"} {
		_, err := EtherToWei(bad)
		require.Equal(t, CodeInvalidAmount, CodeOf(err), bad)
	}
}
