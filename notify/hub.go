package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Beutife/Ghost-Wallet/types"
)

var _ types.AlertSink = (*Hub)(nil)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 32
)

type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan *types.Alert
}

// Hub broadcasts alerts to websocket clients. A client that cannot keep up
// loses alerts rather than slowing down the emitter.
type Hub struct {
	upgrader websocket.Upgrader

	lk   sync.Mutex
	subs map[string]*subscriber
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		subs: make(map[string]*subscriber),
	}
}

func (h *Hub) Emit(_ context.Context, a *types.Alert) {
	h.lk.Lock()
	defer h.lk.Unlock()
	for _, sub := range h.subs {
		select {
		case sub.send <- a:
		default:
			log.Warnf("subscriber %s is slow, dropping %s alert", sub.id, a.Kind)
		}
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.lk.Lock()
	defer h.lk.Unlock()
	return len(h.subs)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("upgrade websocket: %v", err)
		return
	}
	sub := &subscriber{id: uuid.NewString(), conn: conn, send: make(chan *types.Alert, sendBuffer)}

	h.lk.Lock()
	h.subs[sub.id] = sub
	h.lk.Unlock()
	log.Infof("alert subscriber %s connected from %s", sub.id, r.RemoteAddr)

	done := make(chan struct{})
	go h.readLoop(sub, done)
	h.writeLoop(sub, done)

	h.lk.Lock()
	delete(h.subs, sub.id)
	h.lk.Unlock()
	if err := conn.Close(); err != nil {
		log.Debugf("close subscriber %s: %v", sub.id, err)
	}
	log.Infof("alert subscriber %s disconnected", sub.id)
}

// readLoop drains client frames so control messages are processed; it
// closes done once the peer goes away.
func (h *Hub) readLoop(sub *subscriber, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(sub *subscriber, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case a := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteJSON(a); err != nil {
				log.Warnf("write to subscriber %s: %v", sub.id, err)
				return
			}
		case <-ticker.C:
			if err := sub.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
