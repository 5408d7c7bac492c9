package http

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/abdul-hamid-achik/hitshot/packages/audit"
	"github.com/abdul-hamid-achik/hitshot/packages/tlsaudit"
	"golang.org/x/net/http2"
)

const (
	// DefaultTimeout is the default connect and response-header timeout
	DefaultTimeout = 30 * time.Second
	// MinTimeout replaces non-positive timeouts
	MinTimeout = time.Millisecond
	// DefaultMaxRedirects is the maximum number of redirects to follow
	DefaultMaxRedirects = 10
	// DefaultMaxIdleConns is the maximum number of idle connections in the pool
	DefaultMaxIdleConns = 10
	// DefaultIdleConnTimeout is how long idle connections stay in the pool
	DefaultIdleConnTimeout = 90 * time.Second
)

// Client is the per-task HTTP client. It is built for one request and closed
// once the response has been read.
type Client struct {
	httpClient     *http.Client
	transport      *http.Transport
	layer          *tlsaudit.Layer
	auditor        *audit.Auditor
	timeout        time.Duration
	followRedirect bool
	maxRedirects   int
	proxy          *Proxy
	protocol       string
	trust          tlsaudit.TrustManager
	keys           tlsaudit.KeyManager
	rootCAs        *x509.CertPool
	http2          bool
}

type ClientOption func(*Client)

func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		timeout:        DefaultTimeout,
		followRedirect: true,
		maxRedirects:   DefaultMaxRedirects,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.timeout <= 0 {
		c.timeout = MinTimeout
	}

	dialer := &net.Dialer{Timeout: c.timeout}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          DefaultMaxIdleConns,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   c.timeout,
		ResponseHeaderTimeout: c.timeout,
	}

	if c.proxy != nil {
		if err := c.proxy.Validate(); err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(c.proxy.URL())
	}

	if c.protocol != "" {
		if err := c.installLayer(transport); err != nil {
			return nil, err
		}
	} else if c.rootCAs != nil {
		transport.TLSClientConfig = &tls.Config{RootCAs: c.rootCAs}
	}

	if c.http2 {
		if _, err := http2.ConfigureTransports(transport); err != nil {
			return nil, fmt.Errorf("configuring http2: %w", err)
		}
	}

	redirectPolicy := func(req *http.Request, via []*http.Request) error {
		if !c.followRedirect {
			return http.ErrUseLastResponse
		}
		if len(via) >= c.maxRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	}

	c.transport = transport
	c.httpClient = &http.Client{
		Transport:     transport,
		CheckRedirect: redirectPolicy,
	}

	return c, nil
}

// installLayer routes every https connection through the auditing layer. A
// proxied https request is tunnelled by the layer itself, since the
// transport never calls DialTLSContext for proxied requests.
func (c *Client) installLayer(transport *http.Transport) error {
	if c.auditor == nil {
		return &tlsaudit.TLSInitializationError{Protocol: c.protocol, Err: errors.New("auditor is required")}
	}

	layerOpts := []tlsaudit.LayerOption{tlsaudit.WithConnectTimeout(c.timeout)}
	if c.http2 {
		layerOpts = append(layerOpts, tlsaudit.WithNextProtos("h2", "http/1.1"))
	}

	trust := c.trust
	if trust == nil {
		trust = tlsaudit.NewStrictDelegating(c.auditor, c.rootCAs)
	}
	keys := c.keys
	if keys == nil {
		keys = tlsaudit.NewNoCredential(c.auditor)
	}

	layer, err := tlsaudit.NewLayer(c.auditor, c.protocol, trust, keys, layerOpts...)
	if err != nil {
		return err
	}
	c.layer = layer

	if c.proxy == nil {
		transport.DialTLSContext = layer.DialTLSContext
		return nil
	}

	proxy := *c.proxy
	proxyURL := proxy.URL()
	transport.Proxy = func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" {
			return nil, nil
		}
		return proxyURL, nil
	}
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return layer.DialTunnel(ctx, proxy.tunnel(), addr)
	}
	return nil
}

// WithTimeout bounds connecting, the TLS handshake and waiting for response
// headers. A task reading the body allows it the same duration again.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithFollowRedirects(follow bool) ClientOption {
	return func(c *Client) {
		c.followRedirect = follow
	}
}

func WithMaxRedirects(max int) ClientOption {
	return func(c *Client) {
		c.maxRedirects = max
	}
}

// WithProxy routes requests through proxy
func WithProxy(proxy Proxy) ClientOption {
	return func(c *Client) {
		c.proxy = &proxy
	}
}

// WithSecurity installs the auditing TLS layer for protocol. Nil managers
// default to strict verification and no client credential.
func WithSecurity(protocol string, trust tlsaudit.TrustManager, keys tlsaudit.KeyManager) ClientOption {
	return func(c *Client) {
		c.protocol = protocol
		c.trust = trust
		c.keys = keys
	}
}

func WithAuditor(a *audit.Auditor) ClientOption {
	return func(c *Client) {
		c.auditor = a
	}
}

// WithRootCAs replaces the system roots for server verification
func WithRootCAs(pool *x509.CertPool) ClientOption {
	return func(c *Client) {
		c.rootCAs = pool
	}
}

func WithHTTP2(enabled bool) ClientOption {
	return func(c *Client) {
		c.http2 = enabled
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// Timeout returns the effective timeout after clamping
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Audited reports whether the auditing TLS layer is installed
func (c *Client) Audited() bool {
	return c.layer != nil
}

// ClientAuthRequested reports whether any server asked this client for a
// certificate during a handshake.
func (c *Client) ClientAuthRequested() bool {
	if c.layer == nil {
		return false
	}
	return c.layer.ClientAuthRequested()
}

// Close drops the client's pooled connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
