// Package keystore opens client certificate stores and selects a credential
// by alias.
//
// Two on-disk formats are understood:
//   - PKCS#12 (.p12/.pfx), decrypted with the store password
//   - PEM files holding certificates and unencrypted private keys
//
// An entry's alias is the common name of its leaf certificate. Stores are
// opened lazily, once, on first use.
package keystore

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"software.sslmate.com/src/go-pkcs12"
)

var (
	// ErrAliasNotFound indicates no entry matches the requested alias
	ErrAliasNotFound = errors.New("alias not found in certificate store")

	// ErrNoEntries indicates the store holds no certificate/key pair
	ErrNoEntries = errors.New("certificate store holds no key entries")

	// ErrUnsupportedKey indicates a private key type tls cannot use
	ErrUnsupportedKey = errors.New("unsupported private key")

	// ErrEncryptedPEM indicates a legacy encrypted PEM key
	ErrEncryptedPEM = errors.New("encrypted PEM private keys are not supported, convert the store to PKCS#12")
)

// Entry is one credential in a store
type Entry struct {
	Alias       string
	Certificate tls.Certificate
}

// Store is a certificate store on disk
type Store struct {
	Path     string
	Password string

	once    sync.Once
	entries []Entry
	err     error
}

func New(path, password string) *Store {
	return &Store{Path: path, Password: password}
}

// Open reads and decodes the store. Only the first call touches the disk;
// later calls return the cached outcome.
func (s *Store) Open() error {
	s.once.Do(func() {
		s.entries, s.err = s.load()
	})
	return s.err
}

// Aliases lists the aliases of every entry in the store
func (s *Store) Aliases() ([]string, error) {
	if err := s.Open(); err != nil {
		return nil, err
	}
	aliases := make([]string, len(s.entries))
	for i, e := range s.entries {
		aliases[i] = e.Alias
	}
	return aliases, nil
}

// Certificate returns the credential for alias. Matching is case-insensitive;
// an empty alias selects the first entry.
func (s *Store) Certificate(alias string) (tls.Certificate, error) {
	if err := s.Open(); err != nil {
		return tls.Certificate{}, err
	}

	if alias == "" {
		return s.entries[0].Certificate, nil
	}
	for _, e := range s.entries {
		if strings.EqualFold(e.Alias, alias) {
			return e.Certificate, nil
		}
	}
	return tls.Certificate{}, fmt.Errorf("%w: %q in %s", ErrAliasNotFound, alias, s.Path)
}

func (s *Store) load() ([]Entry, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("opening certificate store: %w", err)
	}

	var entries []Entry
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("-----BEGIN")) {
		entries, err = decodePEM(data)
	} else {
		entries, err = decodePKCS12(data, s.Password)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding certificate store %s: %w", s.Path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: %w", s.Path, ErrNoEntries)
	}
	return entries, nil
}

func decodePKCS12(data []byte, password string) ([]Entry, error) {
	key, leaf, chain, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, err
	}

	signer, err := asSigner(key)
	if err != nil {
		return nil, err
	}

	cert := tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  signer,
		Leaf:        leaf,
	}
	for _, c := range chain {
		cert.Certificate = append(cert.Certificate, c.Raw)
	}

	return []Entry{{Alias: aliasFor(leaf), Certificate: cert}}, nil
}

func decodePEM(data []byte) ([]Entry, error) {
	var certs []*x509.Certificate
	var keys []crypto.Signer

	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if _, encrypted := block.Headers["Proc-Type"]; encrypted {
			return nil, ErrEncryptedPEM
		}

		switch block.Type {
		case "CERTIFICATE":
			c, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parsing certificate: %w", err)
			}
			certs = append(certs, c)
		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			key, err := parsePrivateKey(block)
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
		case "ENCRYPTED PRIVATE KEY":
			return nil, ErrEncryptedPEM
		}
	}

	var entries []Entry
	used := make(map[*x509.Certificate]bool)
	for _, key := range keys {
		leaf := matchLeaf(certs, key)
		if leaf == nil {
			continue
		}
		used[leaf] = true
		entries = append(entries, Entry{
			Alias: aliasFor(leaf),
			Certificate: tls.Certificate{
				Certificate: [][]byte{leaf.Raw},
				PrivateKey:  key,
				Leaf:        leaf,
			},
		})
	}

	// Certificates without a key are treated as intermediates for every entry
	for i := range entries {
		for _, c := range certs {
			if !used[c] {
				entries[i].Certificate.Certificate = append(entries[i].Certificate.Certificate, c.Raw)
			}
		}
	}

	return entries, nil
}

func parsePrivateKey(block *pem.Block) (crypto.Signer, error) {
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return asSigner(key)
}

func asSigner(key any) (crypto.Signer, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return k, nil
	case *ecdsa.PrivateKey:
		return k, nil
	case ed25519.PrivateKey:
		return k, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
}

type publicKeyEqualer interface {
	Equal(crypto.PublicKey) bool
}

func matchLeaf(certs []*x509.Certificate, key crypto.Signer) *x509.Certificate {
	pub, ok := key.Public().(publicKeyEqualer)
	if !ok {
		return nil
	}
	for _, c := range certs {
		if pub.Equal(c.PublicKey) {
			return c
		}
	}
	return nil
}

func aliasFor(cert *x509.Certificate) string {
	if cert.Subject.CommonName != "" {
		return cert.Subject.CommonName
	}
	return cert.SerialNumber.String()
}
