package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/hitshot/packages/audit"
	"github.com/abdul-hamid-achik/hitshot/packages/tlsaudit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Defaults(t *testing.T) {
	client, err := NewClient()
	require.NoError(t, err)

	assert.Equal(t, DefaultTimeout, client.Timeout())
	assert.False(t, client.Audited())
	assert.False(t, client.ClientAuthRequested())
	assert.NoError(t, client.Close())
}

func TestNewClient_NonPositiveTimeoutClamped(t *testing.T) {
	for _, d := range []time.Duration{0, -5 * time.Second} {
		client, err := NewClient(WithTimeout(d))
		require.NoError(t, err)
		assert.Equal(t, MinTimeout, client.Timeout())
	}
}

func TestNewClient_InvalidProxy(t *testing.T) {
	_, err := NewClient(WithProxy(Proxy{Host: "proxy.local", Port: -1}))
	assert.ErrorIs(t, err, ErrInvalidProxy)
}

func TestNewClient_SecurityNeedsAuditor(t *testing.T) {
	_, err := NewClient(WithSecurity("TLS", nil, nil))

	var initErr *tlsaudit.TLSInitializationError
	assert.ErrorAs(t, err, &initErr)
}

func TestNewClient_SecurityDefaultsManagers(t *testing.T) {
	client, err := NewClient(WithAuditor(audit.New()), WithSecurity("TLSv1.3", nil, nil))
	require.NoError(t, err)
	assert.True(t, client.Audited())
}

func TestClient_WithTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(WithTimeout(50 * time.Millisecond))
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "timeout awaiting response headers")
}

func TestClient_Redirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/end", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tests := []struct {
		name   string
		opts   []ClientOption
		status int
	}{
		{"follows by default", nil, http.StatusOK},
		{"disabled", []ClientOption{WithFollowRedirects(false)}, http.StatusFound},
		{"limit reached", []ClientOption{WithMaxRedirects(0)}, http.StatusFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.opts...)
			require.NoError(t, err)

			req, err := http.NewRequest(http.MethodGet, server.URL+"/start", nil)
			require.NoError(t, err)

			resp, err := client.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestClient_RootCAsWithoutSecurity(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := NewClient(WithRootCAs(rootsOf(server)))
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
