package sessionkey

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/Beutife/Ghost-Wallet/types"
)

var (
	t0     = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	owner  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	wallet = common.HexToAddress("0x2000000000000000000000000000000000000002")
	keyA   = common.HexToAddress("0xa000000000000000000000000000000000000000")
	keyB   = common.HexToAddress("0xb000000000000000000000000000000000000000")
)

func newWallet() *types.GhostWallet {
	return &types.GhostWallet{Address: wallet, Owner: owner, Network: types.NetworkSepolia, CreatedAt: t0}
}

func TestAddKey(t *testing.T) {
	b := DefaultBounds()

	t.Run("appends without touching the input", func(t *testing.T) {
		w := newWallet()
		next, err := AddKey(w, keyA, t0.Add(time.Hour), t0, b, common.Hash{})
		require.NoError(t, err)
		require.Len(t, next.Keys, 1)
		require.Empty(t, w.Keys)
		require.True(t, IsActive(next, keyA, t0))
	})

	t.Run("rejects bad windows", func(t *testing.T) {
		w := newWallet()
		for _, exp := range []time.Time{t0, t0.Add(-time.Second), t0.Add(59 * time.Second), t0.Add(24*time.Hour + time.Second)} {
			_, err := AddKey(w, keyA, exp, t0, b, common.Hash{})
			require.Equal(t, types.CodeInvalidDuration, types.CodeOf(err), exp)
		}
		_, err := AddKey(w, keyA, t0.Add(24*time.Hour), t0, b, common.Hash{})
		require.NoError(t, err)
	})

	t.Run("active key is a conflict", func(t *testing.T) {
		w, err := AddKey(newWallet(), keyA, t0.Add(time.Hour), t0, b, common.Hash{})
		require.NoError(t, err)
		_, err = AddKey(w, keyA, t0.Add(2*time.Hour), t0.Add(time.Minute), b, common.Hash{})
		require.Equal(t, types.KindConflict, types.KindOf(err))
		require.Equal(t, types.CodeSessionActive, types.CodeOf(err))
	})

	t.Run("revoked or expired key cannot be reused", func(t *testing.T) {
		w, err := AddKey(newWallet(), keyA, t0.Add(time.Hour), t0, b, common.Hash{})
		require.NoError(t, err)
		revoked, _ := RevokeKey(w, keyA, t0.Add(time.Minute))
		_, err = AddKey(revoked, keyA, t0.Add(2*time.Hour), t0.Add(2*time.Minute), b, common.Hash{})
		require.Equal(t, types.CodeKeyReused, types.CodeOf(err))

		_, err = AddKey(w, keyA, t0.Add(3*time.Hour), t0.Add(time.Hour), b, common.Hash{})
		require.Equal(t, types.CodeKeyReused, types.CodeOf(err))
	})

	t.Run("owner address is not a session key", func(t *testing.T) {
		_, err := AddKey(newWallet(), owner, t0.Add(time.Hour), t0, b, common.Hash{})
		require.Equal(t, types.CodeInvalidAddress, types.CodeOf(err))
	})
}

func TestIsActive(t *testing.T) {
	w, err := AddKey(newWallet(), keyA, t0.Add(3600*time.Second), t0, DefaultBounds(), common.Hash{})
	require.NoError(t, err)

	require.True(t, IsActive(w, keyA, t0.Add(3599*time.Second)))
	require.False(t, IsActive(w, keyA, t0.Add(3600*time.Second)))
	require.False(t, IsActive(w, keyA, t0.Add(3601*time.Second)))
	require.False(t, IsActive(w, keyB, t0))

	destroyed := w.Clone()
	destroyed.Destroyed = true
	require.False(t, IsActive(destroyed, keyA, t0))
	require.Empty(t, ActiveKeys(destroyed, t0))
}

func TestRevokeKeyIdempotent(t *testing.T) {
	b := DefaultBounds()
	w, err := AddKey(newWallet(), keyA, t0.Add(time.Hour), t0, b, common.Hash{})
	require.NoError(t, err)
	w, err = AddKey(w, keyB, t0.Add(time.Hour), t0, b, common.Hash{})
	require.NoError(t, err)

	once, changed := RevokeKey(w, keyA, t0.Add(time.Minute))
	require.True(t, changed)
	require.False(t, IsActive(once, keyA, t0.Add(time.Minute)))
	require.True(t, IsActive(once, keyB, t0.Add(time.Minute)))

	twice, changed := RevokeKey(once, keyA, t0.Add(2*time.Minute))
	require.False(t, changed)
	require.Equal(t, once.Keys, twice.Keys)

	unknown, changed := RevokeKey(once, common.HexToAddress("0xc0"), t0)
	require.False(t, changed)
	require.Equal(t, once.Keys, unknown.Keys)
}

func TestActiveKey(t *testing.T) {
	b := DefaultBounds()
	w := newWallet()
	_, ok := ActiveKey(w, t0)
	require.False(t, ok)

	w, err := AddKey(w, keyA, t0.Add(2*time.Hour), t0, b, common.Hash{})
	require.NoError(t, err)
	w, err = AddKey(w, keyB, t0.Add(2*time.Hour), t0.Add(time.Minute), b, common.Hash{})
	require.NoError(t, err)

	k, ok := ActiveKey(w, t0.Add(2*time.Minute))
	require.True(t, ok)
	require.Equal(t, keyB, k.KeyAddress)

	w, _ = RevokeKey(w, keyB, t0.Add(3*time.Minute))
	k, ok = ActiveKey(w, t0.Add(3*time.Minute))
	require.True(t, ok)
	require.Equal(t, keyA, k.KeyAddress)
}

func TestAuthorize(t *testing.T) {
	w, err := AddKey(newWallet(), keyA, t0.Add(time.Hour), t0, DefaultBounds(), common.Hash{})
	require.NoError(t, err)

	role, err := Authorize(w, owner, t0, true)
	require.NoError(t, err)
	require.Equal(t, RoleOwner, role)

	role, err = Authorize(w, keyA, t0, false)
	require.NoError(t, err)
	require.Equal(t, RoleSessionKey, role)

	_, err = Authorize(w, keyA, t0, true)
	require.Equal(t, types.CodeNotWalletOwner, types.CodeOf(err))

	_, err = Authorize(w, keyA, t0.Add(time.Hour), false)
	require.Equal(t, types.KindAuthorization, types.KindOf(err))
	require.Equal(t, types.CodeSessionExpired, types.CodeOf(err))

	_, err = Authorize(w, keyB, t0, false)
	require.Equal(t, types.CodeNotWalletOwner, types.CodeOf(err))

	w.Destroyed = true
	_, err = Authorize(w, keyA, t0, false)
	require.Equal(t, types.KindAuthorization, types.KindOf(err))
	require.Equal(t, types.CodeWalletDestroyed, types.CodeOf(err))
	_, err = Authorize(w, owner, t0, true)
	require.Equal(t, types.KindConflict, types.KindOf(err))
}
