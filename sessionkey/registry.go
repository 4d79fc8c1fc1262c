// Package sessionkey decides whether a delegated key may act for a wallet and
// computes key and session transitions. Nothing here performs I/O.
package sessionkey

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Beutife/Ghost-Wallet/types"
)

// Bounds limits how far in the future a key may expire.
type Bounds struct {
	Min time.Duration
	Max time.Duration
}

func DefaultBounds() Bounds {
	return Bounds{Min: types.MinSessionDuration, Max: types.MaxSessionDuration}
}

// CheckDuration validates a requested key lifetime.
func (b Bounds) CheckDuration(d time.Duration) error {
	if d <= 0 {
		return types.NewError(types.KindValidation, types.CodeInvalidDuration, "expiry must be in the future")
	}
	if d < b.Min || d > b.Max {
		return types.NewError(types.KindValidation, types.CodeInvalidDuration, "duration %s outside [%s, %s]", d, b.Min, b.Max).
			With("min", int64(b.Min/time.Second)).
			With("max", int64(b.Max/time.Second)).
			With("requested", int64(d/time.Second))
	}
	return nil
}

// AddKey returns a copy of w with key appended. Re-adding a key that is
// currently active is a conflict, and so is reusing a key that was revoked or
// has expired: a new session always needs a fresh key.
func AddKey(w *types.GhostWallet, key common.Address, expiresAt, now time.Time, b Bounds, txHash common.Hash) (*types.GhostWallet, error) {
	if key == (common.Address{}) {
		return nil, types.NewError(types.KindValidation, types.CodeInvalidAddress, "ephemeral key address is empty")
	}
	if key == w.Owner || key == w.Address {
		return nil, types.NewError(types.KindValidation, types.CodeInvalidAddress, "ephemeral key must differ from the owner and the wallet")
	}
	if !expiresAt.After(now) {
		return nil, types.NewError(types.KindValidation, types.CodeInvalidDuration, "expiry %s is not after now", expiresAt.UTC().Format(time.RFC3339))
	}
	if err := b.CheckDuration(expiresAt.Sub(now)); err != nil {
		return nil, err
	}

	for _, i := range w.FindKeys(key) {
		k := w.Keys[i]
		if k.ActiveAt(now) {
			return nil, types.NewError(types.KindConflict, types.CodeSessionActive, "key %s is already active", key.Hex()).
				With("expiresAt", k.ExpiresAt.UTC().Format(time.RFC3339))
		}
		return nil, types.NewError(types.KindConflict, types.CodeKeyReused, "key %s was used before and cannot start a new session", key.Hex())
	}

	next := w.Clone()
	next.Keys = append(next.Keys, types.EphemeralKey{
		KeyAddress: key,
		AddedAt:    now,
		ExpiresAt:  expiresAt,
		AddTxHash:  txHash,
	})
	return next, nil
}

// RevokeKey marks every live entry of key revoked. changed is false when
// there was nothing to revoke, which is not an error.
func RevokeKey(w *types.GhostWallet, key common.Address, now time.Time) (next *types.GhostWallet, changed bool) {
	next = w.Clone()
	for _, i := range next.FindKeys(key) {
		if next.Keys[i].Revoked {
			continue
		}
		next.Keys[i].Revoked = true
		next.Keys[i].RevokedAt = now
		changed = true
	}
	if !changed {
		return w, false
	}
	return next, true
}

// IsActive reports whether key may act for w at now. A destroyed wallet has
// no active keys.
func IsActive(w *types.GhostWallet, key common.Address, now time.Time) bool {
	if w == nil || w.Destroyed {
		return false
	}
	for _, i := range w.FindKeys(key) {
		if w.Keys[i].ActiveAt(now) {
			return true
		}
	}
	return false
}

// HasLiveEntry reports whether key has an entry that was never revoked, even if it expired.
func HasLiveEntry(w *types.GhostWallet, key common.Address) bool {
	for _, i := range w.FindKeys(key) {
		if !w.Keys[i].Revoked {
			return true
		}
	}
	return false
}

// ActiveKeys lists the keys active at now, oldest first.
func ActiveKeys(w *types.GhostWallet, now time.Time) []types.EphemeralKey {
	if w == nil || w.Destroyed {
		return nil
	}
	var out []types.EphemeralKey
	for _, k := range w.Keys {
		if k.ActiveAt(now) {
			out = append(out, k)
		}
	}
	return out
}

// ActiveKey returns the most recently added active key. Entries with equal
// AddedAt are ordered by position, so the later append wins.
func ActiveKey(w *types.GhostWallet, now time.Time) (types.EphemeralKey, bool) {
	var (
		best  types.EphemeralKey
		found bool
	)
	for _, k := range ActiveKeys(w, now) {
		if !found || !k.AddedAt.Before(best.AddedAt) {
			best, found = k, true
		}
	}
	return best, found
}

// Role is how a caller is allowed to act on a wallet.
type Role int

const (
	RoleNone Role = iota
	RoleOwner
	RoleSessionKey
)

// Authorize resolves caller's role on w. ownerOnly rejects session keys.
// Destroyed wallets reject everyone: the owner with a conflict, anyone else
// with an authorization error.
func Authorize(w *types.GhostWallet, caller common.Address, now time.Time, ownerOnly bool) (Role, error) {
	if w.Destroyed {
		if caller == w.Owner {
			return RoleNone, types.NewError(types.KindConflict, types.CodeWalletDestroyed, "wallet %s is destroyed", w.Address.Hex()).
				With("destroyedAt", w.DestroyedAt.UTC().Format(time.RFC3339))
		}
		return RoleNone, types.NewError(types.KindAuthorization, types.CodeWalletDestroyed, "wallet %s is destroyed", w.Address.Hex())
	}
	if caller == w.Owner {
		return RoleOwner, nil
	}
	if ownerOnly {
		return RoleNone, types.NewError(types.KindAuthorization, types.CodeNotWalletOwner, "%s is not the owner of %s", caller.Hex(), w.Address.Hex())
	}
	if IsActive(w, caller, now) {
		return RoleSessionKey, nil
	}

	idx := w.FindKeys(caller)
	if len(idx) == 0 {
		return RoleNone, types.NewError(types.KindAuthorization, types.CodeNotWalletOwner, "%s is neither the owner nor a session key of %s", caller.Hex(), w.Address.Hex())
	}
	last := w.Keys[idx[len(idx)-1]]
	err := types.NewError(types.KindAuthorization, types.CodeSessionExpired, "session key %s is no longer active", caller.Hex()).
		With("expiresAt", last.ExpiresAt.UTC().Format(time.RFC3339))
	if last.Revoked {
		err.With("revokedAt", last.RevokedAt.UTC().Format(time.RFC3339))
	}
	return RoleNone, err
}
