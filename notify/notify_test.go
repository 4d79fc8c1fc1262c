package notify

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beutife/Ghost-Wallet/testhelper"
	"github.com/Beutife/Ghost-Wallet/types"
)

func TestMulti(t *testing.T) {
	a, b := &testhelper.AlertRecorder{}, &testhelper.AlertRecorder{}
	sink := Multi{a, LogSink{}, nil, b}

	sink.Emit(context.Background(), &types.Alert{Kind: types.AlertLowBalance, CurrentBalance: testhelper.Wei("1"), Threshold: testhelper.Wei("10")})
	sink.Emit(context.Background(), &types.Alert{Kind: types.AlertReconciliation, Message: "no pending sponsorship"})

	assert.Equal(t, 1, a.Count(types.AlertLowBalance))
	assert.Equal(t, 1, b.Count(types.AlertReconciliation))
	assert.Len(t, b.Alerts(), 2)
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	txHash := common.HexToHash("0x01")
	hub.Emit(context.Background(), &types.Alert{Kind: types.AlertReconciliation, TxHash: txHash, Message: "unknown transaction"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var got types.Alert
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, types.AlertReconciliation, got.Kind)
	assert.Equal(t, txHash, got.TxHash)
	assert.Equal(t, "unknown transaction", got.Message)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 5*time.Millisecond)
}
