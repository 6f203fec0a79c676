package rpc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/proxy"
)

type countingProvider struct {
	calls int
}

func (p *countingProvider) Dialer() (proxy.Dialer, error) {
	p.calls++
	return proxy.Direct, nil
}

func serviceAddress(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestProofClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/outputs", r.URL.Path)
		assert.Equal(t, "abc", r.URL.Query().Get("txhash"))
		assert.Equal(t, "1", r.URL.Query().Get("txprove"))
		assert.Equal(t, "txproof/test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	c, err := NewProofClient(logrus.New(), serviceAddress(t, srv), nil, Config{UserAgent: "txproof/test"})
	require.NoError(t, err)
	require.Equal(t, srv.URL, c.BaseURL())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	body, err := c.Get(ctx, "/api/outputs?txhash=abc&address=a&viewkey=k&txprove=1")
	require.NoError(t, err)
	require.Equal(t, `{"status":"success"}`, body)
}

func TestProofClient_Get_non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}))
	defer srv.Close()

	c, err := NewProofClient(logrus.New(), serviceAddress(t, srv), nil, Config{})
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/api/outputs")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	require.Contains(t, statusErr.Error(), "maintenance")
}

func TestProofClient_Get_connectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	c, err := NewProofClient(logrus.New(), addr, nil, Config{Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/api/outputs")
	require.Error(t, err)
}

func TestProofClient_proxyBypass(t *testing.T) {
	local := &countingProvider{}
	c, err := NewProofClient(logrus.New(), "127.0.0.1:8081", local, Config{})
	require.NoError(t, err)
	require.True(t, c.IgnoresProxy())
	require.Equal(t, 0, local.calls)

	remote := &countingProvider{}
	c, err = NewProofClient(logrus.New(), "xmrblocks.example.onion", remote, Config{})
	require.NoError(t, err)
	require.False(t, c.IgnoresProxy())
	require.Equal(t, 1, remote.calls)
}

func TestProofClient_localAddressSkipsEnvProxy(t *testing.T) {
	t.Setenv("HTTP_PROXY", "http://10.0.0.1:3128")

	c, err := NewProofClient(logrus.New(), "192.168.1.20:18081", &countingProvider{}, Config{})
	require.NoError(t, err)
	require.True(t, c.IgnoresProxy())

	transport, ok := c.client.HTTPClient.Transport.(*http.Transport)
	require.True(t, ok)
	require.Nil(t, transport.Proxy)
}

func TestIsLocalAddress(t *testing.T) {
	tests := []struct {
		addr     string
		expected bool
	}{
		{"localhost", true},
		{"localhost:8081", true},
		{"127.0.0.1:8081", true},
		{"192.168.1.20", true},
		{"10.0.0.5:80", true},
		{"[::1]:8081", true},
		{"8.8.8.8", false},
		{"explorer.example.com", false},
		{"abcdefghijklmnop.onion", false},
	}

	for _, tc := range tests {
		t.Run(tc.addr, func(t *testing.T) {
			require.Equal(t, tc.expected, IsLocalAddress(tc.addr))
		})
	}
}

func TestNewProxyProvider(t *testing.T) {
	require.Nil(t, NewProxyProvider(ProxyConfig{}))

	p := NewProxyProvider(ProxyConfig{Socks5Address: "127.0.0.1:9050", User: "u", Password: "p"})
	require.NotNil(t, p)
	d, err := p.Dialer()
	require.NoError(t, err)
	require.NotNil(t, d)
}
