// Package tlsaudit provides a TLS layer whose every trust and credential
// decision is written to an audit.Auditor.
//
// It is made of three parts:
//   - TrustManager decides whether a server certificate chain is accepted
//   - KeyManager decides which client certificate, if any, is disclosed
//   - Layer builds the tls.Config from both and dials, layers or tunnels
//     secure connections, logging each completed handshake
//
// The AuditOnlyAccepting trust manager accepts any certificate chain. It
// exists for inspecting handshakes against misconfigured servers and is
// unsafe for production traffic.
package tlsaudit
