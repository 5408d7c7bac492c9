package config

import (
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoCertificates indicates a CA bundle without any PEM certificate
var ErrNoCertificates = errors.New("no certificates found")

// ResolvePath makes p relative to the workspace file's directory. Absolute
// paths, and every path of a workspace not loaded from a file, are returned
// unchanged.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.Path), p)
}

// RootCAs loads Defaults.CACert into a pool. It returns nil without error
// when no bundle is configured, which means the system roots.
func (c *Config) RootCAs() (*x509.CertPool, error) {
	if c.Defaults.CACert == "" {
		return nil, nil
	}
	return LoadCertPool(c.ResolvePath(c.Defaults.CACert))
}

// LoadCertPool reads a PEM bundle
func LoadCertPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("%s: %w", path, ErrNoCertificates)
	}
	return pool, nil
}
