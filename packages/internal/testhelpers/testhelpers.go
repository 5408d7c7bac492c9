// Package testhelpers provides TLS fixtures and a CONNECT proxy for tests.
//
// It is shared by the tlsaudit, keystore, http and model test suites:
//   - GenerateCertificate creates a self-signed ECDSA certificate
//   - WritePKCS12 and WritePEM persist it as a certificate store
//   - NewConnectProxy starts an HTTP proxy that only tunnels CONNECT
package testhelpers

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"
)

// Certificate bundles a generated key pair
type Certificate struct {
	Key  *ecdsa.PrivateKey
	Cert *x509.Certificate
	DER  []byte
}

// TLS returns the pair as a tls.Certificate
func (c *Certificate) TLS() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{c.DER},
		PrivateKey:  c.Key,
		Leaf:        c.Cert,
	}
}

// GenerateCertificate creates a self-signed client certificate for commonName.
func GenerateCertificate(t *testing.T, commonName string) *Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &Certificate{Key: key, Cert: cert, DER: der}
}

// WritePKCS12 writes c into dir as a password protected .p12 file.
func WritePKCS12(t *testing.T, dir string, c *Certificate, password string) string {
	t.Helper()

	data, err := pkcs12.Modern.Encode(c.Key, c.Cert, nil, password)
	require.NoError(t, err)

	path := filepath.Join(dir, "client.p12")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

// WritePEM writes c into dir as a .pem file holding the certificate and key.
func WritePEM(t *testing.T, dir string, c *Certificate) string {
	t.Helper()

	keyDER, err := x509.MarshalPKCS8PrivateKey(c.Key)
	require.NoError(t, err)

	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.DER})
	data = append(data, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})...)

	path := filepath.Join(dir, "client.pem")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

// ConnectProxy is a tunnelling proxy for tests
type ConnectProxy struct {
	*httptest.Server
	Tunnels atomic.Int32
}

// NewConnectProxy starts a proxy that answers CONNECT by piping bytes to the
// requested address. When wantAuth is set, requests without a matching
// Proxy-Authorization header get 407.
func NewConnectProxy(t *testing.T, wantAuth string) *ConnectProxy {
	t.Helper()

	p := &ConnectProxy{}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodConnect {
			http.Error(w, "CONNECT only", http.StatusMethodNotAllowed)
			return
		}
		if wantAuth != "" && r.Header.Get("Proxy-Authorization") != wantAuth {
			w.WriteHeader(http.StatusProxyAuthRequired)
			return
		}

		upstream, err := net.Dial("tcp", r.Host)
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		hj, ok := w.(http.Hijacker)
		if !ok {
			upstream.Close()
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		client, _, err := hj.Hijack()
		if err != nil {
			upstream.Close()
			return
		}
		p.Tunnels.Add(1)

		_, _ = client.Write([]byte("HTTP/1.1 200 Connection established\r\n\r\n"))
		go func() {
			_, _ = io.Copy(upstream, client)
			upstream.Close()
		}()
		go func() {
			_, _ = io.Copy(client, upstream)
			client.Close()
		}()
	}))
	t.Cleanup(p.Close)
	return p
}

// Addr returns the proxy's host and port
func (p *ConnectProxy) Addr() (string, int) {
	addr := p.Listener.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}
