package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// SupportedMethods lists the verbs a request may use
var SupportedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodHead,
	http.MethodOptions,
	http.MethodTrace,
}

// Header is one request header. Headers keep the order they were declared in.
type Header struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Request describes one request. It is a value: the With* helpers return a
// modified copy.
type Request struct {
	Endpoint    string
	Method      string
	Payload     string
	ContentType string
	// Security names the TLS protocol, e.g. "TLSv1.2". Empty means the
	// auditing layer is not installed.
	Security  string
	Base64    bool
	BasicAuth bool
	Username  string
	Password  string
	Headers   []Header
}

func NewRequest(method, endpoint string) Request {
	return Request{
		Method:   method,
		Endpoint: endpoint,
	}
}

func (r Request) WithHeader(name, value string) Request {
	headers := make([]Header, len(r.Headers), len(r.Headers)+1)
	copy(headers, r.Headers)
	r.Headers = append(headers, Header{Name: name, Value: value})
	return r
}

func (r Request) WithPayload(payload, contentType string) Request {
	r.Payload = payload
	r.ContentType = contentType
	return r
}

func (r Request) WithBasicAuth(username, password string) Request {
	r.BasicAuth = true
	r.Username = username
	r.Password = password
	return r
}

// WithQueryParam adds key=value to the endpoint's query string. An endpoint
// that does not parse is returned unchanged.
func (r Request) WithQueryParam(key, value string) Request {
	u, err := url.Parse(r.Endpoint)
	if err != nil {
		return r
	}

	q := u.Query()
	q.Add(key, value)
	u.RawQuery = q.Encode()
	r.Endpoint = u.String()
	return r
}

// URI parses the endpoint. It returns nil when the endpoint is not an
// absolute URI with a host.
func (r Request) URI() *url.URL {
	u, err := url.Parse(strings.TrimSpace(r.Endpoint))
	if err != nil {
		return nil
	}
	if !u.IsAbs() || u.Host == "" {
		return nil
	}
	return u
}

func (r Request) IsActionable() bool {
	return r.Validate() == nil
}

// Validate reports why the request is not actionable. Every error wraps
// ErrNotActionable.
func (r Request) Validate() error {
	if err := ValidateURL(r.Endpoint); err != nil {
		return fmt.Errorf("%w: %v", ErrNotActionable, err)
	}
	if !IsSupportedMethod(r.Method) {
		return fmt.Errorf("%w: unsupported method %q", ErrNotActionable, r.Method)
	}
	return nil
}

// ValidateURL checks that a URL is well-formed and uses an allowed scheme
func ValidateURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %q (only http and https are allowed)", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	return nil
}

func IsSupportedMethod(method string) bool {
	for _, m := range SupportedMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// Body returns the bytes to transmit, base64-decoding the payload when the
// flag is set.
func (r Request) Body() ([]byte, error) {
	if !r.Base64 {
		return []byte(r.Payload), nil
	}

	payload := strings.Join(strings.Fields(r.Payload), "")
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 payload: %w", err)
	}
	return decoded, nil
}

// build turns the descriptor into a net/http request carrying body
func (r Request) build(ctx context.Context, body []byte) (*http.Request, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(r.Method), r.URI().String(), reader)
	if err != nil {
		return nil, err
	}

	for _, h := range r.Headers {
		httpReq.Header.Add(h.Name, h.Value)
	}

	if r.ContentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", r.ContentType)
	}

	if r.BasicAuth {
		httpReq.SetBasicAuth(r.Username, r.Password)
	}

	return httpReq, nil
}
