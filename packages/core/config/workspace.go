package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/hitshot/packages/http"
	"github.com/abdul-hamid-achik/hitshot/packages/keystore"
	"github.com/abdul-hamid-achik/hitshot/packages/tlsaudit"
)

var (
	// ErrUnknownRequest indicates a request name missing from the workspace
	ErrUnknownRequest = errors.New("unknown request")
	// ErrUnknownProxy indicates a proxy name missing from the workspace
	ErrUnknownProxy = errors.New("unknown proxy")
	// ErrUnknownKeystore indicates a keystore name missing from the workspace
	ErrUnknownKeystore = errors.New("unknown keystore")
)

// Request builds the descriptor for the named request. Default headers come
// first, followed by the request's own.
func (c *Config) Request(name string) (http.Request, error) {
	spec, ok := c.Requests[name]
	if !ok {
		return http.Request{}, fmt.Errorf("%w: %q", ErrUnknownRequest, name)
	}
	return c.BuildRequest(spec), nil
}

// BuildRequest turns a RequestSpec into a descriptor. GET is assumed when no
// method is given.
func (c *Config) BuildRequest(spec RequestSpec) http.Request {
	method := spec.Method
	if method == "" {
		method = "GET"
	}

	req := http.NewRequest(strings.ToUpper(method), spec.URL).WithPayload(spec.Body, spec.ContentType)
	req.Security = spec.Security
	req.Base64 = spec.Base64

	for _, name := range sortedKeys(c.Defaults.Headers) {
		if !hasHeader(spec.Headers, name) {
			req = req.WithHeader(name, c.Defaults.Headers[name])
		}
	}
	for _, h := range spec.Headers {
		req = req.WithHeader(h.Name, h.Value)
	}
	for _, key := range sortedKeys(spec.Query) {
		req = req.WithQueryParam(key, spec.Query[key])
	}
	if spec.Auth != nil {
		req = req.WithBasicAuth(spec.Auth.Username, spec.Auth.Password)
	}
	return req
}

// Proxy resolves a proxy by name. An empty name returns nil.
func (c *Config) Proxy(name string) (*http.Proxy, error) {
	if name == "" {
		return nil, nil
	}
	spec, ok := c.Proxies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProxy, name)
	}
	p := &http.Proxy{
		Host:     spec.Host,
		Port:     spec.Port,
		Username: spec.Username,
		Password: spec.Password,
	}
	return p, p.Validate()
}

// ProxyFor resolves the request's proxy, falling back to the default proxy
func (c *Config) ProxyFor(spec RequestSpec) (*http.Proxy, error) {
	name := spec.Proxy
	if name == "" {
		name = c.Defaults.Proxy
	}
	return c.Proxy(name)
}

// Keystore opens a store descriptor by name. A relative path is taken
// from the workspace file's directory; the store itself is read lazily on
// first use. The returned alias is the keystore's default alias.
func (c *Config) Keystore(name string) (*keystore.Store, string, error) {
	spec, ok := c.Keystores[name]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownKeystore, name)
	}
	return keystore.New(c.ResolvePath(spec.Path), spec.Password), spec.Alias, nil
}

// KeystoreFor resolves the request's keystore and alias. The request's alias
// wins over the keystore's.
func (c *Config) KeystoreFor(spec RequestSpec) (*keystore.Store, string, error) {
	if spec.Keystore == "" {
		return nil, "", nil
	}
	store, alias, err := c.Keystore(spec.Keystore)
	if err != nil {
		return nil, "", err
	}
	if spec.Alias != "" {
		alias = spec.Alias
	}
	return store, alias, nil
}

// Validate checks references and values the schema cannot express. Every
// problem is reported.
func (c *Config) Validate() error {
	var errs []error

	if _, err := tlsaudit.ParseTrustMode(c.Defaults.TrustMode); err != nil {
		errs = append(errs, fmt.Errorf("defaults: %w", err))
	}
	if c.Defaults.Proxy != "" {
		if _, err := c.Proxy(c.Defaults.Proxy); err != nil {
			errs = append(errs, fmt.Errorf("defaults: %w", err))
		}
	}

	for _, name := range c.RequestNames() {
		spec := c.Requests[name]
		req := c.BuildRequest(spec)

		if !strings.Contains(spec.URL, "${") {
			if err := req.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("request %q: %w", name, err))
			}
		} else if !http.IsSupportedMethod(req.Method) {
			errs = append(errs, fmt.Errorf("request %q: unsupported method %q", name, req.Method))
		}

		if spec.Security != "" && !tlsaudit.IsKnownProtocol(spec.Security) {
			errs = append(errs, fmt.Errorf("request %q: %w: %q", name, tlsaudit.ErrUnknownProtocol, spec.Security))
		}
		if spec.Proxy != "" {
			if _, err := c.Proxy(spec.Proxy); err != nil {
				errs = append(errs, fmt.Errorf("request %q: %w", name, err))
			}
		}
		if spec.Keystore != "" {
			if _, ok := c.Keystores[spec.Keystore]; !ok {
				errs = append(errs, fmt.Errorf("request %q: %w: %q", name, ErrUnknownKeystore, spec.Keystore))
			}
		}
		if spec.Keystore == "" && spec.Alias != "" {
			errs = append(errs, fmt.Errorf("request %q: alias %q given without a keystore", name, spec.Alias))
		}
	}

	return errors.Join(errs...)
}

func hasHeader(headers []http.Header, name string) bool {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
