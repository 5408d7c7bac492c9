package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/abdul-hamid-achik/hitshot/packages/core/env"
	"github.com/abdul-hamid-achik/hitshot/packages/http"
	"github.com/abdul-hamid-achik/hitshot/packages/tlsaudit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleWorkspace = `
defaults:
  timeout: 10
  trustMode: audit-only
  proxy: corp
  headers:
    User-Agent: hitshot-test
requests:
  health:
    url: https://${API_HOST:-localhost:8443}/health
    security: TLSv1.2
    keystore: client
  create:
    url: http://localhost:8080/items
    method: post
    contentType: application/json
    body: '{"name":"${ITEM_NAME}"}'
    headers:
      - name: X-Trace
        value: abc
      - name: User-Agent
        value: custom
    query:
      dry: "true"
    auth:
      username: bob
      password: ${API_PASSWORD}
    proxy: ""
proxies:
  corp:
    host: proxy.local
    port: 3128
    username: alice
keystores:
  client:
    path: ./certs/client.p12
    password: ${KEYSTORE_PASSWORD}
    alias: client
`

func writeWorkspace(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "hitshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkspace(t, dir, sampleWorkspace)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ITEM_NAME=widget\nAPI_PASSWORD=pw\nKEYSTORE_PASSWORD=changeit"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, 10, cfg.Defaults.Timeout)
	assert.Equal(t, "audit-only", cfg.Defaults.TrustMode)
	assert.Equal(t, DefaultHistoryPath, cfg.Defaults.History)
	assert.Equal(t, []string{"create", "health"}, cfg.RequestNames())

	assert.Equal(t, "https://localhost:8443/health", cfg.Requests["health"].URL)
	assert.Equal(t, `{"name":"widget"}`, cfg.Requests["create"].Body)
	assert.Equal(t, "pw", cfg.Requests["create"].Auth.Password)
	assert.Equal(t, "changeit", cfg.Keystores["client"].Password)
	assert.NoError(t, cfg.Validate())
}

func TestFindAndLoadConfig_Defaults(t *testing.T) {
	cfg, err := FindAndLoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.True(t, cfg.IsDefault())
	assert.Empty(t, cfg.Path)
}

func TestFindConfigFile_Order(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hitshot.yml"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hitshot.yaml"), []byte("{}"), 0644))

	assert.Equal(t, filepath.Join(dir, ".hitshot.yaml"), FindConfigFile(dir))
}

func TestLoadConfig_SchemaViolation(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkspace(t, dir, `
requests:
  broken:
    method: GET
proxies:
  bad:
    host: proxy.local
    port: 99999
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchema)
	assert.Contains(t, err.Error(), "url")
}

func TestValidateSchema(t *testing.T) {
	assert.NoError(t, ValidateSchema([]byte("")))
	assert.NoError(t, ValidateSchema([]byte(sampleWorkspace)))
	assert.ErrorIs(t, ValidateSchema([]byte("unknown: true")), ErrSchema)
	assert.ErrorIs(t, ValidateSchema([]byte("defaults:\n  trustMode: lenient")), ErrSchema)
	assert.Error(t, ValidateSchema([]byte("requests: [unclosed")))
}

func TestConfig_Request(t *testing.T) {
	resolver := env.NewResolver()
	resolver.SetVariables(map[string]string{"ITEM_NAME": "widget", "API_PASSWORD": "pw"})

	cfg, err := Parse([]byte(sampleWorkspace), resolver)
	require.NoError(t, err)

	req, err := cfg.Request("create")
	require.NoError(t, err)

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "http://localhost:8080/items?dry=true", req.Endpoint)
	assert.Equal(t, "application/json", req.ContentType)
	assert.True(t, req.BasicAuth)
	assert.Equal(t, "pw", req.Password)
	assert.Equal(t, []http.Header{
		{Name: "X-Trace", Value: "abc"},
		{Name: "User-Agent", Value: "custom"},
	}, req.Headers)

	health, err := cfg.Request("health")
	require.NoError(t, err)
	assert.Equal(t, "GET", health.Method)
	assert.Equal(t, "TLSv1.2", health.Security)
	assert.Equal(t, []http.Header{{Name: "User-Agent", Value: "hitshot-test"}}, health.Headers)

	_, err = cfg.Request("missing")
	assert.ErrorIs(t, err, ErrUnknownRequest)
}

func TestConfig_ProxyAndKeystore(t *testing.T) {
	cfg, err := Parse([]byte(sampleWorkspace), nil)
	require.NoError(t, err)

	proxy, err := cfg.ProxyFor(cfg.Requests["health"])
	require.NoError(t, err)
	require.NotNil(t, proxy)
	assert.Equal(t, "proxy.local:3128", proxy.Addr())
	assert.Equal(t, "alice", proxy.Username)

	store, alias, err := cfg.KeystoreFor(cfg.Requests["health"])
	require.NoError(t, err)
	assert.Equal(t, "./certs/client.p12", store.Path)
	assert.Equal(t, "client", alias)

	store, _, err = cfg.KeystoreFor(cfg.Requests["create"])
	require.NoError(t, err)
	assert.Nil(t, store)

	_, err = cfg.Proxy("nope")
	assert.ErrorIs(t, err, ErrUnknownProxy)
	_, _, err = cfg.Keystore("nope")
	assert.ErrorIs(t, err, ErrUnknownKeystore)
}

func TestConfig_Validate(t *testing.T) {
	cfg, err := Parse([]byte(`
defaults:
  trustMode: strict
requests:
  badMethod:
    url: http://localhost/
    method: BREW
  badSecurity:
    url: https://localhost/
    security: SSLv3
  danglingProxy:
    url: http://localhost/
    proxy: ghost
  danglingKeystore:
    url: https://localhost/
    keystore: ghost
  aliasOnly:
    url: https://localhost/
    alias: me
  templated:
    url: ${BASE_URL}/x
`), nil)
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)

	assert.ErrorIs(t, err, http.ErrNotActionable)
	assert.ErrorIs(t, err, tlsaudit.ErrUnknownProtocol)
	assert.ErrorIs(t, err, ErrUnknownProxy)
	assert.ErrorIs(t, err, ErrUnknownKeystore)
	assert.Contains(t, err.Error(), "alias \"me\" given without a keystore")
	assert.NotContains(t, err.Error(), "templated")
}

func TestConfig_Merge(t *testing.T) {
	base := DefaultConfig()
	base.Requests = map[string]RequestSpec{"a": {URL: "http://a"}}

	other := &Config{
		Defaults: Defaults{Timeout: 5, HTTP2: BoolPtr(true)},
		Requests: map[string]RequestSpec{"b": {URL: "http://b"}},
	}

	merged := base.Merge(other)

	assert.Equal(t, 5, merged.Defaults.Timeout)
	assert.True(t, merged.GetHTTP2())
	assert.False(t, merged.GetVerbose())
	assert.Equal(t, "strict", merged.Defaults.TrustMode)
	assert.Len(t, merged.Requests, 2)
	assert.Len(t, base.Requests, 1)
	assert.Same(t, base, base.Merge(nil))
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".hitshot.yaml")

	cfg := DefaultConfig()
	cfg.Requests = map[string]RequestSpec{"ping": {URL: "http://localhost/ping"}}
	require.NoError(t, cfg.SaveConfig(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/ping", loaded.Requests["ping"].URL)
	assert.Equal(t, DefaultTimeout, loaded.Defaults.Timeout)
}

func TestLoadConfig_BadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkspace(t, dir, sampleWorkspace)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("ITEM_NAME=\"unterminated"), 0644))

	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, env.ErrSyntax)
	assert.Contains(t, err.Error(), ".env.local: line 1")
}
