package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"

	"github.com/filecoin-project/go-jsonrpc/auth"
	logging "github.com/ipfs/go-log/v2"
	"github.com/multiformats/go-multiaddr"
	maNet "github.com/multiformats/go-multiaddr/net"
)

var log = logging.Logger("proxy")

type IProxy interface {
	RegisterReverseHandler(hostKey HostKey, server http.Handler)
	RegisterReverseByAddr(hostKey HostKey, address string) error
	ProxyMiddleware(next http.Handler) http.Handler
}

// Proxy forwards requests to the upstream named by UpstreamHeader.
type Proxy struct {
	lk      sync.RWMutex
	handler map[HostKey]http.Handler
	Key     map[string]HostKey
}

var _ IProxy = (*Proxy)(nil)

func NewProxy() *Proxy {
	p := &Proxy{
		handler: make(map[HostKey]http.Handler),
		Key:     make(map[string]HostKey),
	}
	for k, v := range Header2HostPreset {
		p.Key[k] = v
	}
	return p
}

func (p *Proxy) ProxyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiHeader := r.Header.Get(UpstreamHeader)
		if apiHeader == "" {
			log.Debugf("no api header found, skip proxy")
			next.ServeHTTP(w, r)
			return
		}

		if !auth.HasPerm(r.Context(), nil, RequiredPerm) {
			http.Error(w, fmt.Sprintf("forwarding needs '%s' permission", RequiredPerm), http.StatusUnauthorized)
			return
		}

		ser, err := p.getReverseHandler(apiHeader)
		if err != nil {
			log.Errorf("get reverse handler fail: %s", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ser.ServeHTTP(w, r)
	})
}

func (p *Proxy) getReverseHandler(header string) (http.Handler, error) {
	p.lk.RLock()
	defer p.lk.RUnlock()
	hostKey, ok := p.Key[header]
	if !ok {
		return nil, fmt.Errorf("header(%s): %w", header, ErrorInvalidHeader)
	}
	server, ok := p.handler[hostKey]
	if !ok {
		return nil, fmt.Errorf("host key(%s) : %w", hostKey, ErrorNoReverseProxyRegistered)
	}
	return server, nil
}

// Hosts lists the upstreams that currently have a handler.
func (p *Proxy) Hosts() []HostKey {
	p.lk.RLock()
	defer p.lk.RUnlock()
	out := make([]HostKey, 0, len(p.handler))
	for k := range p.handler {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *Proxy) RegisterReverseHandler(hostKey HostKey, server http.Handler) {
	p.lk.Lock()
	defer p.lk.Unlock()
	if server == nil {
		delete(p.handler, hostKey)
		log.Info("unregister reverse proxy for ", hostKey)
		return
	}
	log.Debugf("register reverse proxy for %s", hostKey)
	p.handler[hostKey] = server
}

func (p *Proxy) RegisterReverseByAddr(hostKey HostKey, address string) error {
	// unregister handler if address is empty
	if address == "" {
		p.RegisterReverseHandler(hostKey, nil)
		return nil
	}
	u, err := parseAddr(address)
	if err != nil {
		return err
	}

	log.Infof("register reverse proxy for %s: %s", hostKey, u.String())
	p.RegisterReverseHandler(hostKey, NewReverseServer(u))
	return nil
}

// parseAddr accepts a multiaddr or a plain url. Multiaddrs with a wss or
// https component map onto https.
func parseAddr(address string) (*url.URL, error) {
	ma, err := multiaddr.NewMultiaddr(address)
	if err != nil {
		return url.Parse(address)
	}
	_, hostPort, err := maNet.DialArgs(ma)
	if err != nil {
		return nil, fmt.Errorf("upstream multiaddr %s: %w", address, err)
	}
	scheme := "http"
	for _, proto := range []int{multiaddr.P_WSS, multiaddr.P_HTTPS} {
		_, err := ma.ValueForProtocol(proto)
		if err == nil {
			scheme = "https"
			break
		}
		if err != multiaddr.ErrProtocolNotFound {
			return nil, err
		}
	}
	return &url.URL{Scheme: scheme, Host: hostPort}, nil
}
