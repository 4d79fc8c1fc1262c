package metrics

import (
	"context"
	"time"

	"github.com/filecoin-project/go-state-types/big"
)

var gwei = big.NewInt(1_000_000_000)

// StateSource exposes the values sampled into gauges.
type StateSource interface {
	CountActiveSessions(ctx context.Context) (int64, error)
	CountPendingSponsorships(ctx context.Context) (int64, error)
	PaymasterBalance(ctx context.Context) (big.Int, error)
}

func recordMetricsLoop(ctx context.Context, src StateSource) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			RecordState(ctx, src)
		case <-ctx.Done():
			log.Infof("context done, stop record metrics")
			return
		}
	}
}

// RecordState samples src once.
func RecordState(ctx context.Context, src StateSource) {
	if n, err := src.CountActiveSessions(ctx); err != nil {
		log.Warnf("failed to count active sessions %v", err)
	} else {
		SessionActive.Set(ctx, n)
	}

	if n, err := src.CountPendingSponsorships(ctx); err != nil {
		log.Warnf("failed to count pending sponsorships %v", err)
	} else {
		PaymasterPending.Set(ctx, n)
	}

	bal, err := src.PaymasterBalance(ctx)
	if err != nil {
		log.Warnf("failed to get paymaster balance %v", err)
		return
	}
	if bal.Int == nil {
		return
	}
	PaymasterBalanceGwei.Set(ctx, big.Div(bal, gwei).Int64())
}
