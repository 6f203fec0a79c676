package rpc

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

const (
	defaultTimeout  = 30 * time.Second
	maxBodyInError  = 512
	productName     = "txproof"
	userAgentHeader = "User-Agent"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

func DefaultUserAgent() string {
	return productName + "/" + Version
}

type Config struct {
	Timeout   time.Duration `mapstructure:"timeout" json:"timeout,omitempty"`
	RetryMax  int           `mapstructure:"retry_max" json:"retry_max,omitempty"`
	UserAgent string        `mapstructure:"user_agent" json:"user_agent,omitempty"`
}

// StatusError is returned for any non-2xx answer of the proof service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError]
	}
	return fmt.Sprintf("proof service returned status %d: %s", e.StatusCode, body)
}

// ProofClient talks to one proof service over plain http, optionally through a
// SOCKS5 proxy.
type ProofClient struct {
	logger      *logrus.Logger
	baseURL     string
	userAgent   string
	client      *retryablehttp.Client
	ignoreProxy bool
}

func NewProofClient(
	logger *logrus.Logger,
	serviceAddress string,
	proxyProvider ProxyProvider,
	cfg Config,
) (*ProofClient, error) {
	if serviceAddress == "" {
		return nil, fmt.Errorf("service address is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent()
	}

	c := &ProofClient{
		logger:    logger.WithField("pkg", "rpc.proof_client").Logger,
		baseURL:   "http://" + serviceAddress,
		userAgent: userAgent,
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if IsLocalAddress(serviceAddress) {
		c.logger.Infof("ignoring socks5 proxy for local net address: %s", serviceAddress)
		c.ignoreProxy = true
		transport.Proxy = nil
	} else if proxyProvider != nil {
		dialer, err := proxyProvider.Dialer()
		if err != nil {
			return nil, fmt.Errorf("proxyProvider.Dialer: %w", err)
		}
		if dialer != nil {
			transport.Proxy = nil
			transport.DialContext = dialContext(dialer)
		}
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
	retryClient.Logger = c.logger
	retryClient.RetryMax = cfg.RetryMax
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.client = retryClient

	return c, nil
}

func (c *ProofClient) BaseURL() string {
	return c.baseURL
}

func (c *ProofClient) IgnoresProxy() bool {
	return c.ignoreProxy
}

func (c *ProofClient) Get(ctx context.Context, path string) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", fmt.Errorf("retryablehttp.NewRequestWithContext: %w", err)
	}
	req.Header.Set(userAgentHeader, c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("c.client.Do: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("io.ReadAll: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return string(body), nil
}

// IsLocalAddress reports whether addr is localhost or a loopback/private IP
// literal, with or without port.
func IsLocalAddress(addr string) bool {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate()
}

func dialContext(dialer proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}
}
