package http

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/hitshot/packages/tlsaudit"
)

// Proxy describes an HTTP proxy. Credentials are optional.
type Proxy struct {
	Host     string
	Port     int
	Username string
	Password string
}

func (p Proxy) Validate() error {
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidProxy)
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidProxy, p.Port)
	}
	return nil
}

func (p Proxy) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// URL returns the proxy as an http:// URL, credentials included
func (p Proxy) URL() *url.URL {
	u := &url.URL{Scheme: "http", Host: p.Addr()}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

func (p Proxy) String() string {
	if p.Username != "" {
		return p.Username + "@" + p.Addr()
	}
	return p.Addr()
}

func (p Proxy) tunnel() tlsaudit.TunnelProxy {
	return tlsaudit.TunnelProxy{
		Addr:     p.Addr(),
		Username: p.Username,
		Password: p.Password,
	}
}

// ParseProxy reads "[http://][user[:pass]@]host:port"
func ParseProxy(s string) (Proxy, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Proxy{}, fmt.Errorf("%w: empty proxy", ErrInvalidProxy)
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return Proxy{}, fmt.Errorf("%w: %v", ErrInvalidProxy, err)
	}
	if u.Scheme != "http" {
		return Proxy{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidProxy, u.Scheme)
	}

	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return Proxy{}, fmt.Errorf("%w: port is required", ErrInvalidProxy)
	}

	p := Proxy{Host: u.Hostname(), Port: port}
	if u.User != nil {
		p.Username = u.User.Username()
		p.Password, _ = u.User.Password()
	}
	return p, p.Validate()
}
