// Package spending enforces the per-transaction and rolling day caps applied
// to session key operations. Every function is pure: it computes the next
// limit state and leaves persistence to the caller.
package spending

import (
	"time"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/Beutife/Ghost-Wallet/types"
)

// Window is the length of the rolling day window, anchored at the first
// reservation made after the previous window lapsed.
const Window = 24 * time.Hour

// Reservation is what CheckAndReserve booked; it is needed to release it.
type Reservation struct {
	Amount      big.Int   `json:"amount"`
	WindowStart time.Time `json:"windowStart"`
}

func (r Reservation) Empty() bool {
	return !types.IsSet(r.Amount)
}

// InWindow reports whether now falls inside the window opened at start.
func InWindow(start, now time.Time) bool {
	if start.IsZero() {
		return false
	}
	return !now.Before(start) && now.Before(start.Add(Window))
}

// CheckAndReserve validates amounts against limit and returns the limit state
// with the summed amounts booked. A nil limit imposes nothing. On rejection
// the returned error is KindLimitExceeded and limit is left untouched.
// A batch passes as a single reservation, each element still capped by MaxPerTx.
func CheckAndReserve(limit *types.SpendingLimit, amounts []big.Int, now time.Time) (*types.SpendingLimit, Reservation, error) {
	for i, amount := range amounts {
		if amount.Nil() || amount.Sign() < 0 {
			return limit, Reservation{}, types.NewError(types.KindValidation, types.CodeInvalidAmount, "amount at index %d is negative or empty", i)
		}
	}
	if limit == nil {
		return nil, Reservation{}, nil
	}

	if types.IsSet(limit.MaxPerTx) {
		for i, amount := range amounts {
			if amount.GreaterThan(limit.MaxPerTx) {
				err := types.NewError(types.KindLimitExceeded, types.CodeSpendingLimit, "amount %s exceeds the per transaction cap %s", amount, limit.MaxPerTx).
					With("limit", "maxPerTx").
					With("cap", limit.MaxPerTx).
					With("requested", amount)
				if len(amounts) > 1 {
					err.With("index", i)
				}
				return limit, Reservation{}, err
			}
		}
	}

	total := types.Sum(amounts)
	spent := types.OrZero(limit.SpentToday)
	windowStart := limit.DayWindowStart
	if !InWindow(windowStart, now) {
		spent = big.Zero()
		windowStart = now
	}

	if types.IsSet(limit.MaxPerDay) {
		after := big.Add(spent, total)
		if after.GreaterThan(limit.MaxPerDay) {
			return limit, Reservation{}, types.NewError(types.KindLimitExceeded, types.CodeSpendingLimit, "day cap %s, already spent %s, requested %s", limit.MaxPerDay, spent, total).
				With("limit", "maxPerDay").
				With("cap", limit.MaxPerDay).
				With("spent", spent).
				With("requested", total).
				With("remaining", big.Sub(limit.MaxPerDay, spent)).
				With("windowResetsAt", windowStart.Add(Window).UTC().Format(time.RFC3339))
		}
	}

	if total.Sign() == 0 {
		// nothing to book, do not open a window for it
		return limit.Clone(), Reservation{}, nil
	}

	next := limit.Clone()
	next.SpentToday = big.Add(spent, total)
	next.DayWindowStart = windowStart
	return next, Reservation{Amount: total, WindowStart: windowStart}, nil
}

// Release gives back a reservation whose submission never reached the ledger.
// It only acts while the window the reservation was booked in is current.
func Release(limit *types.SpendingLimit, res Reservation) *types.SpendingLimit {
	if limit == nil || res.Empty() {
		return limit
	}
	next := limit.Clone()
	if !next.DayWindowStart.Equal(res.WindowStart) {
		return next
	}
	spent := big.Sub(types.OrZero(next.SpentToday), res.Amount)
	if spent.Sign() < 0 {
		spent = big.Zero()
	}
	next.SpentToday = spent
	return next
}

// Remaining reports the day capacity left at now; ok is false when the day cap is disabled.
func Remaining(limit *types.SpendingLimit, now time.Time) (remaining big.Int, ok bool) {
	if limit == nil || !types.IsSet(limit.MaxPerDay) {
		return big.Zero(), false
	}
	spent := types.OrZero(limit.SpentToday)
	if !InWindow(limit.DayWindowStart, now) {
		spent = big.Zero()
	}
	rest := big.Sub(limit.MaxPerDay, spent)
	if rest.Sign() < 0 {
		rest = big.Zero()
	}
	return rest, true
}

// Configure replaces the caps and keeps the running counters.
func Configure(limit *types.SpendingLimit, maxPerTx, maxPerDay big.Int) (*types.SpendingLimit, error) {
	for name, v := range map[string]big.Int{"maxPerTx": maxPerTx, "maxPerDay": maxPerDay} {
		if !v.Nil() && v.Sign() < 0 {
			return nil, types.NewError(types.KindValidation, types.CodeInvalidAmount, "%s must not be negative", name)
		}
	}
	next := limit.Clone()
	if next == nil {
		next = &types.SpendingLimit{SpentToday: big.Zero()}
	}
	next.MaxPerTx = types.OrZero(maxPerTx)
	next.MaxPerDay = types.OrZero(maxPerDay)
	return next, nil
}
