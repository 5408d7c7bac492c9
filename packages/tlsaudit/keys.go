package tlsaudit

import (
	"crypto/tls"
	"fmt"
	"sync/atomic"

	"github.com/abdul-hamid-achik/hitshot/packages/audit"
)

// KeyManager chooses the client certificate presented when a server asks
// for one. Implementations never return an error: having no credential is
// a normal, logged outcome and results in an empty certificate message.
type KeyManager interface {
	GetClientCertificate(cri *tls.CertificateRequestInfo) (*tls.Certificate, error)

	// ClientAuthRequested reports whether any handshake asked for a client
	// certificate, whether or not one was sent.
	ClientAuthRequested() bool
}

// NoCredential never discloses a client certificate.
type NoCredential struct {
	auditor   *audit.Auditor
	requested atomic.Bool
}

func NewNoCredential(auditor *audit.Auditor) *NoCredential {
	return &NoCredential{auditor: auditor}
}

func (m *NoCredential) GetClientCertificate(cri *tls.CertificateRequestInfo) (*tls.Certificate, error) {
	m.requested.Store(true)
	logCertificateRequest(m.auditor, cri)
	m.auditor.Append(true, "chooseClientAlias: no client credential available, sending none")
	return &tls.Certificate{}, nil
}

func (m *NoCredential) ClientAuthRequested() bool {
	return m.requested.Load()
}

// StaticCredential discloses one certificate, selected from a certificate
// store by alias.
type StaticCredential struct {
	auditor   *audit.Auditor
	alias     string
	cert      tls.Certificate
	requested atomic.Bool
}

func NewStaticCredential(auditor *audit.Auditor, alias string, cert tls.Certificate) *StaticCredential {
	return &StaticCredential{auditor: auditor, alias: alias, cert: cert}
}

func (m *StaticCredential) GetClientCertificate(cri *tls.CertificateRequestInfo) (*tls.Certificate, error) {
	m.requested.Store(true)
	logCertificateRequest(m.auditor, cri)

	m.auditor.Appendf(true, "chooseClientAlias: %q", m.alias)
	if err := cri.SupportsCertificate(&m.cert); err != nil {
		// Still send it; the server gets the final word and the audit shows why
		m.auditor.Appendf(true, "chooseClientAlias: %q may be refused: %v", m.alias, err)
	}
	m.auditor.Appendf(true, "getCertificateChain(%q): %d certificate(s)", m.alias, len(m.cert.Certificate))
	m.auditor.Appendf(true, "getPrivateKey(%q): %T", m.alias, m.cert.PrivateKey)

	return &m.cert, nil
}

func (m *StaticCredential) ClientAuthRequested() bool {
	return m.requested.Load()
}

func logCertificateRequest(a *audit.Auditor, cri *tls.CertificateRequestInfo) {
	a.Append(true, fmt.Sprintf("client certificate requested: version=%s acceptableCAs=%d signatureSchemes=%d",
		tls.VersionName(cri.Version), len(cri.AcceptableCAs), len(cri.SignatureSchemes)))
}
