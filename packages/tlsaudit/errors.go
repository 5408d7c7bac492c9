package tlsaudit

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProtocol indicates the secure protocol name is not supported
	ErrUnknownProtocol = errors.New("unknown secure protocol")

	// ErrUnknownTrustMode indicates a trust mode other than strict or audit-only
	ErrUnknownTrustMode = errors.New("unknown trust mode")
)

// TLSInitializationError is returned when a secure context cannot be built.
type TLSInitializationError struct {
	Protocol string
	Err      error
}

func (e *TLSInitializationError) Error() string {
	return fmt.Sprintf("tls initialization for protocol %q failed: %v", e.Protocol, e.Err)
}

func (e *TLSInitializationError) Unwrap() error {
	return e.Err
}

// ConnectError is returned when the TCP connection, or the proxy tunnel,
// cannot be established.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// HandshakeError is returned when the TLS handshake fails.
type HandshakeError struct {
	Addr string
	Err  error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("tls handshake with %s: %v", e.Addr, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}
