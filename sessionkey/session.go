package sessionkey

import (
	"time"

	"github.com/Beutife/Ghost-Wallet/types"
)

// Evaluate applies lazy expiry: an active session observed at or after its
// deadline becomes expired. changed reports whether a transition happened.
func Evaluate(s *types.Session, now time.Time) (*types.Session, bool) {
	if s.Status != types.SessionActive || now.Before(s.ExpiresAt) {
		return s, false
	}
	next := s.Clone()
	next.Status = types.SessionExpired
	next.EndedAt = s.ExpiresAt
	return next, true
}

func requireActive(s *types.Session, now time.Time) error {
	cur, _ := Evaluate(s, now)
	switch cur.Status {
	case types.SessionActive:
		return nil
	case types.SessionExpired:
		return types.NewError(types.KindConflict, types.CodeSessionExpired, "session %s expired", s.Token).
			With("expiresAt", s.ExpiresAt.UTC().Format(time.RFC3339))
	default:
		return types.NewError(types.KindConflict, types.CodeSessionNotActive, "session %s is %s", s.Token, cur.Status)
	}
}

// CanEnd reports whether s may still be ended or revoked at now.
func CanEnd(s *types.Session, now time.Time) error {
	return requireActive(s, now)
}

// End moves an active session to ended once its key revocation succeeded.
func End(s *types.Session, now time.Time) (*types.Session, error) {
	return terminate(s, now, types.SessionEnded)
}

// Revoke is the administrative counterpart of End.
func Revoke(s *types.Session, now time.Time) (*types.Session, error) {
	return terminate(s, now, types.SessionRevoked)
}

func terminate(s *types.Session, now time.Time, status types.SessionStatus) (*types.Session, error) {
	if err := requireActive(s, now); err != nil {
		return nil, err
	}
	next := s.Clone()
	next.Status = status
	next.EndedAt = now
	return next, nil
}

// RecordActivity counts one more operation signed by the session key.
func RecordActivity(s *types.Session, now time.Time) *types.Session {
	next := s.Clone()
	next.LastActivityAt = now
	next.TransactionCount++
	return next
}
