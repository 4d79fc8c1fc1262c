package proxy

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/filecoin-project/go-jsonrpc/auth"
	"github.com/stretchr/testify/require"
)

func TestRegisterProxyHeader(t *testing.T) {
	t.Run("test invalid header", func(t *testing.T) {
		proxy := NewProxy()
		_, err := proxy.getReverseHandler("test-header")
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrorInvalidHeader))
	})

	t.Run("test default header", func(t *testing.T) {
		proxy := NewProxy()
		_, err := proxy.getReverseHandler("chain")
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrorInvalidHeader)
		require.ErrorIs(t, err, ErrorNoReverseProxyRegistered)
	})

	t.Run("test parse host key", func(t *testing.T) {
		k, err := ParseHostKey("eth")
		require.NoError(t, err)
		require.Equal(t, HostChain, k)
		k, err = ParseHostKey("BUNDLER")
		require.NoError(t, err)
		require.Equal(t, HostBundler, k)
		_, err = ParseHostKey("miner")
		require.Error(t, err)
	})
}

func TestRegisterReverseProxy(t *testing.T) {
	proxy := NewProxy()
	u, err := url.Parse("http://localhost")
	require.NoError(t, err)

	proxy.RegisterReverseHandler(HostChain, NewReverseServer(u))
	_, err = proxy.getReverseHandler("eth")
	require.NoError(t, err)
	require.Equal(t, []HostKey{HostChain}, proxy.Hosts())

	// unset
	proxy.RegisterReverseHandler(HostChain, nil)
	_, err = proxy.getReverseHandler("eth")
	require.ErrorIs(t, err, ErrorNoReverseProxyRegistered)

	require.NoError(t, proxy.RegisterReverseByAddr(HostVerifier, "/ip4/127.0.0.1/tcp/8546"))
	_, err = proxy.getReverseHandler("verifier")
	require.NoError(t, err)

	// unset by empty addr
	require.NoError(t, proxy.RegisterReverseByAddr(HostVerifier, ""))
	_, err = proxy.getReverseHandler("verifier")
	require.ErrorIs(t, err, ErrorNoReverseProxyRegistered)
	require.Empty(t, proxy.Hosts())
}

func TestProxyMiddleware(t *testing.T) {
	var seenAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, "upstream")
	}))
	defer upstream.Close()

	proxy := NewProxy()
	require.NoError(t, proxy.RegisterReverseByAddr(HostChain, upstream.URL))

	local := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "local")
	})
	inner := proxy.ProxyMiddleware(local)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			r = r.WithContext(auth.WithPerm(r.Context(), []auth.Permission{"write", "read"}))
		}
		inner.ServeHTTP(w, r)
	}))
	defer srv.Close()

	get := func(header string, token bool) (int, string) {
		req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
		require.NoError(t, err)
		if token {
			req.Header.Set("Authorization", "Bearer local-token")
		}
		if header != "" {
			req.Header.Set(UpstreamHeader, header)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close() //nolint:errcheck
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("", false)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "local", body)

	code, body = get("chain", true)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "upstream", body)
	require.Empty(t, seenAuth)

	code, _ = get("chain", false)
	require.Equal(t, http.StatusUnauthorized, code)

	code, _ = get("bundler", true)
	require.Equal(t, http.StatusBadRequest, code)
}
