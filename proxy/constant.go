package proxy

import (
	"fmt"

	"github.com/filecoin-project/go-jsonrpc/auth"
)

type HostKey string

const (
	HostUnknown  HostKey = ""
	HostChain    HostKey = "CHAIN"
	HostBundler  HostKey = "BUNDLER"
	HostVerifier HostKey = "VERIFIER"
)

// UpstreamHeader selects the service a request is forwarded to. Requests
// without it are served locally.
const UpstreamHeader = "Ghost-Upstream"

// RequiredPerm is the permission a caller needs to be forwarded.
const RequiredPerm auth.Permission = "write"

var Header2HostPreset = map[string]HostKey{
	"chain":    HostChain,
	"eth":      HostChain,
	"bundler":  HostBundler,
	"verifier": HostVerifier,
}

var (
	ErrorInvalidHeader            = fmt.Errorf("invalid upstream header %s", UpstreamHeader)
	ErrorNoReverseProxyRegistered = fmt.Errorf("no reverse proxy registered")
)

// ParseHostKey accepts a host key or one of its header aliases.
func ParseHostKey(s string) (HostKey, error) {
	switch k := HostKey(s); k {
	case HostChain, HostBundler, HostVerifier:
		return k, nil
	}
	if k, ok := Header2HostPreset[s]; ok {
		return k, nil
	}
	return HostUnknown, fmt.Errorf("unknown upstream %q", s)
}
