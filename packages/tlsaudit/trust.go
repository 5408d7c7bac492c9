package tlsaudit

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/hitshot/packages/audit"
)

// TrustMode selects the TrustManager variant
type TrustMode string

const (
	// TrustStrict verifies the server chain against the configured roots
	TrustStrict TrustMode = "strict"

	// TrustAuditOnly accepts every server chain. UNSAFE: diagnostics only.
	TrustAuditOnly TrustMode = "audit-only"
)

// ParseTrustMode parses a trust mode name. The empty string is strict.
func ParseTrustMode(s string) (TrustMode, error) {
	switch TrustMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", TrustStrict:
		return TrustStrict, nil
	case TrustAuditOnly:
		return TrustAuditOnly, nil
	default:
		return "", fmt.Errorf("%w: %q (use strict or audit-only)", ErrUnknownTrustMode, s)
	}
}

// TrustManager makes the trust decision for a server certificate chain.
// It is called once per handshake with the name the client dialled.
type TrustManager interface {
	CheckServerTrusted(serverName string, cs tls.ConnectionState) error
}

// NewTrustManager returns the variant for mode. roots may be nil to use the
// system pool; it is ignored in audit-only mode.
func NewTrustManager(mode TrustMode, auditor *audit.Auditor, roots *x509.CertPool) (TrustManager, error) {
	switch mode {
	case "", TrustStrict:
		return NewStrictDelegating(auditor, roots), nil
	case TrustAuditOnly:
		return NewAuditOnlyAccepting(auditor), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTrustMode, mode)
	}
}

// StrictDelegating logs the callback, then applies standard x509 chain and
// hostname verification.
type StrictDelegating struct {
	auditor *audit.Auditor
	roots   *x509.CertPool
}

func NewStrictDelegating(auditor *audit.Auditor, roots *x509.CertPool) *StrictDelegating {
	return &StrictDelegating{auditor: auditor, roots: roots}
}

func (m *StrictDelegating) CheckServerTrusted(serverName string, cs tls.ConnectionState) error {
	logPeerChain(m.auditor, serverName, cs)

	if len(cs.PeerCertificates) == 0 {
		err := errors.New("server presented no certificate")
		m.auditor.Appendf(true, "server certificate rejected: %v", err)
		return err
	}

	opts := x509.VerifyOptions{
		Roots:         m.roots,
		DNSName:       serverName,
		Intermediates: x509.NewCertPool(),
	}
	for _, cert := range cs.PeerCertificates[1:] {
		opts.Intermediates.AddCert(cert)
	}

	if _, err := cs.PeerCertificates[0].Verify(opts); err != nil {
		m.auditor.Appendf(true, "server certificate rejected: %v", err)
		return err
	}

	m.auditor.Append(true, "server certificate trusted")
	return nil
}

// AuditOnlyAccepting logs the callback and accepts any chain, including an
// empty, expired or self-signed one. Never use it for real traffic.
type AuditOnlyAccepting struct {
	auditor *audit.Auditor
}

func NewAuditOnlyAccepting(auditor *audit.Auditor) *AuditOnlyAccepting {
	return &AuditOnlyAccepting{auditor: auditor}
}

func (m *AuditOnlyAccepting) CheckServerTrusted(serverName string, cs tls.ConnectionState) error {
	logPeerChain(m.auditor, serverName, cs)
	m.auditor.Append(true, "server certificate accepted without verification (audit-only)")
	return nil
}

func logPeerChain(a *audit.Auditor, serverName string, cs tls.ConnectionState) {
	a.Appendf(true, "checkServerTrusted: server=%q chain=%d", serverName, len(cs.PeerCertificates))
	for i, cert := range cs.PeerCertificates {
		line := fmt.Sprintf("  [%d] subject=%q issuer=%q", i, cert.Subject.String(), cert.Issuer.String())
		if len(cert.DNSNames) > 0 {
			line += " dns=" + strings.Join(cert.DNSNames, ",")
		}
		if len(cert.IPAddresses) > 0 {
			ips := make([]string, len(cert.IPAddresses))
			for j, ip := range cert.IPAddresses {
				ips[j] = ip.String()
			}
			line += " ip=" + strings.Join(ips, ",")
		}
		a.Append(false, line)
	}
}
