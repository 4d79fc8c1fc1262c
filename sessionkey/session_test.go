package sessionkey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Beutife/Ghost-Wallet/types"
)

func newSession() *types.Session {
	return &types.Session{
		Token:               "s1",
		WalletAddress:       wallet,
		EphemeralKeyAddress: keyA,
		StartedAt:           t0,
		ExpiresAt:           t0.Add(time.Hour),
		DurationSecs:        3600,
		Status:              types.SessionActive,
	}
}

func TestEvaluate(t *testing.T) {
	s := newSession()
	cur, changed := Evaluate(s, t0.Add(59*time.Minute))
	require.False(t, changed)
	require.Same(t, s, cur)

	cur, changed = Evaluate(s, t0.Add(time.Hour))
	require.True(t, changed)
	require.Equal(t, types.SessionExpired, cur.Status)
	require.Equal(t, s.ExpiresAt, cur.EndedAt)
	require.Equal(t, types.SessionActive, s.Status)
}

func TestTerminalStatesAreFinal(t *testing.T) {
	now := t0.Add(time.Minute)
	ended, err := End(newSession(), now)
	require.NoError(t, err)
	require.Equal(t, types.SessionEnded, ended.Status)
	require.Equal(t, now, ended.EndedAt)

	revoked, err := Revoke(newSession(), now)
	require.NoError(t, err)
	require.Equal(t, types.SessionRevoked, revoked.Status)

	expired, _ := Evaluate(newSession(), t0.Add(2*time.Hour))

	for _, s := range []*types.Session{ended, revoked, expired} {
		_, err := End(s, now)
		require.Equal(t, types.KindConflict, types.KindOf(err))
		_, err = Revoke(s, now)
		require.Equal(t, types.KindConflict, types.KindOf(err))
		cur, changed := Evaluate(s, t0.Add(48*time.Hour))
		require.False(t, changed)
		require.Equal(t, s.Status, cur.Status)
	}

	_, err = End(newSession(), t0.Add(2*time.Hour))
	require.Equal(t, types.CodeSessionExpired, types.CodeOf(err))
}

func TestRecordActivity(t *testing.T) {
	s := RecordActivity(newSession(), t0.Add(time.Minute))
	s = RecordActivity(s, t0.Add(2*time.Minute))
	require.EqualValues(t, 2, s.TransactionCount)
	require.Equal(t, t0.Add(2*time.Minute), s.LastActivityAt)
}
