package metrics

import (
	"time"

	rpcMetrics "github.com/filecoin-project/go-jsonrpc/metrics"
	"github.com/ipfs-force-community/metrics"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// Global Tags
var (
	NetworkKey, _ = tag.NewKey("network")
	TxTypeKey, _  = tag.NewKey("tx_type")
	CodeKey, _    = tag.NewKey("code")
	StatusKey, _  = tag.NewKey("status")
	EventKey, _   = tag.NewKey("event")
)

// Distribution
var defaultMillisecondsDistribution = view.Distribution(0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8, 10, 13, 16, 20, 25, 30, 40, 50, 65, 80, 100, 130, 160, 200, 250, 300, 400, 500, 650, 800, 1000, 2000, 3000, 4000, 5000, 7500, 10000, 20000, 50000, 100000)

var (
	// session
	SessionStarted = stats.Int64("session/started", "Session started", stats.UnitDimensionless)
	SessionEnded   = stats.Int64("session/ended", "Session ended or revoked", stats.UnitDimensionless)
	SessionActive  = metrics.NewInt64("session/active", "Active session count", stats.UnitDimensionless)

	// wallet
	WalletExecute  = stats.Int64("wallet/execute", "Wallet transaction submitted", stats.UnitDimensionless)
	WalletRejected = stats.Int64("wallet/rejected", "Wallet operation rejected", stats.UnitDimensionless)

	SpendingReserved = stats.Int64("spending/reserved", "Spending reservation taken", stats.UnitDimensionless)

	// paymaster
	PaymasterSponsored   = stats.Int64("paymaster/sponsored", "Sponsorship recorded", stats.UnitDimensionless)
	PaymasterConfirmed   = stats.Int64("paymaster/confirmed", "Sponsorship confirmed", stats.UnitDimensionless)
	PaymasterFailed      = stats.Int64("paymaster/failed", "Sponsorship failed or reverted", stats.UnitDimensionless)
	PaymasterPending     = metrics.NewInt64("paymaster/pending", "Pending sponsorship count", stats.UnitDimensionless)
	PaymasterBalanceGwei = metrics.NewInt64("paymaster/balance_gwei", "Paymaster balance in gwei", stats.UnitDimensionless)

	ProofConsumed = stats.Int64("proof/consumed", "Proof consumed", stats.UnitDimensionless)

	// reconcile
	ReconcileEvent     = stats.Int64("reconcile/event", "Ledger event handled", stats.UnitDimensionless)
	ReconcileUnmatched = stats.Int64("reconcile/unmatched", "Ledger event without a local record", stats.UnitDimensionless)
	ReconcileSettled   = stats.Int64("reconcile/settled", "Pending transaction settled", stats.UnitDimensionless)

	// method call
	LedgerSubmit = stats.Float64("ledger/submit_ms", "Ledger submission spent time", stats.UnitMilliseconds)

	ApiState = metrics.NewInt64("api/state", "api service state. 0: down, 1: up", "")
)

var (
	sessionStartedView = &view.View{
		Measure:     SessionStarted,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{NetworkKey},
	}
	sessionEndedView = &view.View{
		Measure:     SessionEnded,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{StatusKey},
	}

	walletExecuteView = &view.View{
		Measure:     WalletExecute,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{TxTypeKey},
	}
	walletRejectedView = &view.View{
		Measure:     WalletRejected,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{TxTypeKey, CodeKey},
	}
	spendingReservedView = &view.View{
		Measure:     SpendingReserved,
		Aggregation: view.Count(),
	}

	paymasterSponsoredView = &view.View{
		Measure:     PaymasterSponsored,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{TxTypeKey},
	}
	paymasterConfirmedView = &view.View{
		Measure:     PaymasterConfirmed,
		Aggregation: view.Count(),
	}
	paymasterFailedView = &view.View{
		Measure:     PaymasterFailed,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{StatusKey},
	}
	proofConsumedView = &view.View{
		Measure:     ProofConsumed,
		Aggregation: view.Count(),
	}

	reconcileEventView = &view.View{
		Measure:     ReconcileEvent,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{EventKey},
	}
	reconcileUnmatchedView = &view.View{
		Measure:     ReconcileUnmatched,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{EventKey},
	}
	reconcileSettledView = &view.View{
		Measure:     ReconcileSettled,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{StatusKey},
	}

	// method call
	ledgerSubmitView = &view.View{
		Measure:     LedgerSubmit,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{TxTypeKey},
	}
)

var views = append([]*view.View{
	sessionStartedView,
	sessionEndedView,
	walletExecuteView,
	walletRejectedView,
	spendingReservedView,
	paymasterSponsoredView,
	paymasterConfirmedView,
	paymasterFailedView,
	proofConsumedView,
	reconcileEventView,
	reconcileUnmatchedView,
	reconcileSettledView,
	ledgerSubmitView,
}, rpcMetrics.DefaultViews...)

// SinceInMilliseconds returns the duration of time since the provide time as a float64.
func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}

func init() {
	// register metrics
	_ = view.Register(views...)
}
