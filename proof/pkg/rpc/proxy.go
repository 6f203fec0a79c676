package rpc

import (
	"fmt"

	"golang.org/x/net/proxy"
)

type ProxyProvider interface {
	// Dialer returns nil when requests should go out directly.
	Dialer() (proxy.Dialer, error)
}

type ProxyConfig struct {
	Socks5Address string `mapstructure:"socks5_address" json:"socks5_address,omitempty"`
	User          string `mapstructure:"user" json:"user,omitempty"`
	Password      string `mapstructure:"password" json:"password,omitempty"`
}

type Socks5Provider struct {
	address string
	auth    *proxy.Auth
}

// NewProxyProvider returns nil when no socks5 address is configured.
func NewProxyProvider(cfg ProxyConfig) ProxyProvider {
	if cfg.Socks5Address == "" {
		return nil
	}
	p := &Socks5Provider{address: cfg.Socks5Address}
	if cfg.User != "" {
		p.auth = &proxy.Auth{User: cfg.User, Password: cfg.Password}
	}
	return p
}

func (p *Socks5Provider) Dialer() (proxy.Dialer, error) {
	d, err := proxy.SOCKS5("tcp", p.address, p.auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("proxy.SOCKS5: %w", err)
	}
	return d, nil
}
