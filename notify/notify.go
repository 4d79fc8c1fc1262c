// Package notify delivers operational alerts: to the log, to websocket
// subscribers, or to several sinks at once.
package notify

import (
	"context"

	logging "github.com/ipfs/go-log/v2"

	"github.com/Beutife/Ghost-Wallet/types"
)

var log = logging.Logger("notify")

var (
	_ types.AlertSink = LogSink{}
	_ types.AlertSink = Multi(nil)
)

// LogSink writes every alert as a warning.
type LogSink struct{}

func (LogSink) Emit(_ context.Context, a *types.Alert) {
	switch a.Kind {
	case types.AlertLowBalance:
		log.Warnw("paymaster balance low",
			"paymaster", a.Paymaster.Hex(),
			"balance", types.FormatEther(a.CurrentBalance),
			"threshold", types.FormatEther(a.Threshold))
	default:
		log.Warnw("alert", "kind", a.Kind, "tx", a.TxHash.Hex(), "message", a.Message)
	}
}

// Multi fans an alert out to each sink in order.
type Multi []types.AlertSink

func (m Multi) Emit(ctx context.Context, a *types.Alert) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ctx, a)
		}
	}
}
