package tlsaudit

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/abdul-hamid-achik/hitshot/packages/audit"
)

// Layer produces secure connections whose handshakes are written to the
// auditor. It is the socket factory installed on an http.Transport.
type Layer struct {
	auditor    *audit.Auditor
	protocol   string
	trust      TrustManager
	keys       KeyManager
	base       *tls.Config
	nextProtos []string
	timeout    time.Duration
}

type LayerOption func(*Layer)

// WithNextProtos sets the ALPN protocols offered during the handshake
func WithNextProtos(protos ...string) LayerOption {
	return func(l *Layer) {
		l.nextProtos = protos
	}
}

// WithConnectTimeout bounds dialling plus handshake in DialTLSContext and
// DialTunnel.
func WithConnectTimeout(d time.Duration) LayerOption {
	return func(l *Layer) {
		l.timeout = d
	}
}

// NewLayer builds the secure context for protocol from the two managers.
func NewLayer(auditor *audit.Auditor, protocol string, trust TrustManager, keys KeyManager, opts ...LayerOption) (*Layer, error) {
	if auditor == nil {
		return nil, &TLSInitializationError{Protocol: protocol, Err: errors.New("auditor cannot be nil")}
	}
	if trust == nil {
		return nil, &TLSInitializationError{Protocol: protocol, Err: errors.New("trust manager cannot be nil")}
	}
	if keys == nil {
		return nil, &TLSInitializationError{Protocol: protocol, Err: errors.New("key manager cannot be nil")}
	}

	versions, ok := lookupProtocol(protocol)
	if !ok {
		return nil, &TLSInitializationError{Protocol: protocol, Err: ErrUnknownProtocol}
	}

	l := &Layer{
		auditor:  auditor,
		protocol: protocol,
		trust:    trust,
		keys:     keys,
	}
	for _, opt := range opts {
		opt(l)
	}

	l.base = &tls.Config{
		MinVersion: versions.min,
		MaxVersion: versions.max,
		// Chain verification happens in VerifyConnection, through the trust manager
		InsecureSkipVerify:   true,
		GetClientCertificate: keys.GetClientCertificate,
		NextProtos:           l.nextProtos,
	}

	return l, nil
}

// Protocol returns the secure protocol name the layer was built for
func (l *Layer) Protocol() string {
	return l.protocol
}

// ClientAuthRequested reports whether a server asked for a client certificate
func (l *Layer) ClientAuthRequested() bool {
	return l.keys.ClientAuthRequested()
}

func (l *Layer) configFor(serverName string) *tls.Config {
	cfg := l.base.Clone()
	cfg.ServerName = serverName
	cfg.VerifyConnection = func(cs tls.ConnectionState) error {
		return l.trust.CheckServerTrusted(serverName, cs)
	}
	return cfg
}

// ConnectOptions controls ConnectSocket
type ConnectOptions struct {
	// LocalAddr binds the socket before connecting when set
	LocalAddr net.Addr
	// Timeout bounds connect plus handshake. Zero means the context decides.
	Timeout time.Duration
}

// ConnectSocket dials addr, secures the socket and completes the handshake.
func (l *Layer) ConnectSocket(ctx context.Context, network, addr string, opts ConnectOptions) (*tls.Conn, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	dialer := &net.Dialer{LocalAddr: opts.LocalAddr}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		l.auditor.Appendf(true, "connect to %s failed: %v", addr, err)
		return nil, &ConnectError{Addr: addr, Err: err}
	}

	return l.Secure(ctx, conn, hostOnly(addr))
}

// CreateSocket wraps conn in a secure socket without starting the handshake.
func (l *Layer) CreateSocket(conn net.Conn, serverName string) *tls.Conn {
	return tls.Client(conn, l.configFor(serverName))
}

// CreateLayeredSocket layers TLS over an already connected plain socket and
// completes the handshake. Closing the returned socket closes conn.
func (l *Layer) CreateLayeredSocket(ctx context.Context, conn net.Conn, serverName string) (*tls.Conn, error) {
	tlsConn := l.CreateSocket(conn, serverName)
	if err := l.handshake(ctx, tlsConn); err != nil {
		return nil, err
	}
	return tlsConn, nil
}

// Secure makes sure conn is a handshaken secure socket. An existing
// *tls.Conn is reused, anything else is layered.
func (l *Layer) Secure(ctx context.Context, conn net.Conn, serverName string) (*tls.Conn, error) {
	if tlsConn, ok := conn.(*tls.Conn); ok {
		if tlsConn.ConnectionState().HandshakeComplete {
			return tlsConn, nil
		}
		if err := l.handshake(ctx, tlsConn); err != nil {
			return nil, err
		}
		return tlsConn, nil
	}
	return l.CreateLayeredSocket(ctx, conn, serverName)
}

// DialTLSContext is the http.Transport hook
func (l *Layer) DialTLSContext(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := l.ConnectSocket(ctx, network, addr, ConnectOptions{Timeout: l.timeout})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// TunnelProxy is the HTTP proxy DialTunnel goes through
type TunnelProxy struct {
	Addr     string
	Username string
	Password string
}

// DialTunnel connects to proxy, asks it to CONNECT to addr and layers TLS
// over the tunnel.
func (l *Layer) DialTunnel(ctx context.Context, proxy TunnelProxy, addr string) (*tls.Conn, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", proxy.Addr)
	if err != nil {
		l.auditor.Appendf(true, "connect to proxy %s failed: %v", proxy.Addr, err)
		return nil, &ConnectError{Addr: proxy.Addr, Err: err}
	}

	if err := l.connectThrough(ctx, conn, proxy, addr); err != nil {
		conn.Close()
		l.auditor.Appendf(true, "tunnel to %s via %s failed: %v", addr, proxy.Addr, err)
		return nil, &ConnectError{Addr: addr, Err: err}
	}
	l.auditor.Appendf(true, "tunnel established to %s via proxy %s", addr, proxy.Addr)

	return l.CreateLayeredSocket(ctx, conn, hostOnly(addr))
}

func (l *Layer) connectThrough(ctx context.Context, conn net.Conn, proxy TunnelProxy, addr string) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if proxy.Username != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(proxy.Username + ":" + proxy.Password))
		req.Header.Set("Proxy-Authorization", "Basic "+creds)
	}

	if err := req.Write(conn); err != nil {
		return fmt.Errorf("writing CONNECT: %w", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return fmt.Errorf("reading CONNECT response: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxy refused CONNECT: %s", resp.Status)
	}
	if br.Buffered() > 0 {
		return errors.New("proxy sent data before the TLS handshake")
	}
	return nil
}

func (l *Layer) handshake(ctx context.Context, conn *tls.Conn) error {
	remote := conn.RemoteAddr().String()
	if err := conn.HandshakeContext(ctx); err != nil {
		l.auditor.Appendf(true, "handshake with %s failed: %v", remote, err)
		conn.Close()
		return &HandshakeError{Addr: remote, Err: err}
	}

	cs := conn.ConnectionState()
	peer := "-"
	if len(cs.PeerCertificates) > 0 {
		peer = cs.PeerCertificates[0].Subject.String()
	}
	alpn := cs.NegotiatedProtocol
	if alpn == "" {
		alpn = "-"
	}
	l.auditor.Appendf(true, "handshake completed: remote=%s version=%s cipher=%s alpn=%s peer=%q",
		remote, tls.VersionName(cs.Version), tls.CipherSuiteName(cs.CipherSuite), alpn, peer)
	return nil
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
