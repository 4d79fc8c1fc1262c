package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gorilla/websocket"
)

// hopHeaders are dropped before a request leaves for an upstream. The local
// bearer token means nothing there.
var hopHeaders = []string{"Authorization", UpstreamHeader}

// NewReverseServer forwards plain and websocket requests to u.
func NewReverseServer(u *url.URL) http.Handler {
	urlForHttp := *u
	proxy := httputil.NewSingleHostReverseProxy(&urlForHttp)
	director := proxy.Director
	proxy.Director = func(r *http.Request) {
		director(r)
		for _, h := range hopHeaders {
			r.Header.Del(h)
		}
		r.Host = urlForHttp.Host
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") != "websocket" {
			proxy.ServeHTTP(w, r)
			return
		}

		urlForWs := *r.URL
		switch u.Scheme {
		case "https":
			urlForWs.Scheme = "wss"
		default:
			urlForWs.Scheme = "ws"
		}
		urlForWs.Host = u.Host
		if u.Path != "" && u.Path != "/" {
			urlForWs.Path = u.Path
		}

		header := http.Header{}
		for k, v := range r.Header {
			header[k] = v
		}
		for _, h := range append([]string{"Upgrade", "Connection", "Sec-Websocket-Key", "Sec-Websocket-Version", "Sec-Websocket-Extensions"}, hopHeaders...) {
			header.Del(h)
		}

		upstreamConn, resp, err := websocket.DefaultDialer.Dial(urlForWs.String(), header)
		if err != nil {
			err = fmt.Errorf("dial upstream websocket: %w", err)
			log.Error(err)
			if resp != nil {
				log.Errorf("upstream answered %s", resp.Status)
			}
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		defer func() {
			if err := upstreamConn.Close(); err != nil {
				log.Debugf("close upstream conn: %v", err)
			}
		}()

		upgrader := websocket.Upgrader{}
		clientConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Errorf("upgrade websocket: %v", err)
			return
		}
		defer func() {
			if err := clientConn.Close(); err != nil {
				log.Debugf("close client conn: %v", err)
			}
		}()

		done := make(chan struct{}, 2)
		go forwardMessages(done, upstreamConn, clientConn)
		go forwardMessages(done, clientConn, upstreamConn)
		<-done
	})
}

// forwardMessages copies frames from src to dst until either side fails.
func forwardMessages(done chan<- struct{}, src *websocket.Conn, dst *websocket.Conn) {
	defer func() { done <- struct{}{} }()
	for {
		messageType, message, err := src.ReadMessage()
		if err != nil {
			log.Debugf("read from %s: %v", src.RemoteAddr(), err)
			return
		}
		if err := dst.WriteMessage(messageType, message); err != nil {
			log.Debugf("write to %s: %v", dst.RemoteAddr(), err)
			return
		}
	}
}
