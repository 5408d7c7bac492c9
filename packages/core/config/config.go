package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/abdul-hamid-achik/hitshot/packages/core/env"
	"github.com/abdul-hamid-achik/hitshot/packages/http"
	"gopkg.in/yaml.v3"
)

// Config represents the hitshot workspace
type Config struct {
	Defaults  Defaults                `yaml:"defaults,omitempty"`
	Requests  map[string]RequestSpec  `yaml:"requests,omitempty"`
	Proxies   map[string]ProxySpec    `yaml:"proxies,omitempty"`
	Keystores map[string]KeystoreSpec `yaml:"keystores,omitempty"`

	// Path is the file the workspace was loaded from, empty for defaults
	Path string `yaml:"-"`
}

// Defaults apply to every request unless overridden
type Defaults struct {
	Timeout   int               `yaml:"timeout,omitempty"` // seconds
	TrustMode string            `yaml:"trustMode,omitempty"`
	CACert    string            `yaml:"caCert,omitempty"`
	HTTP2     *bool             `yaml:"http2,omitempty"`
	Verbose   *bool             `yaml:"verbose,omitempty"`
	NoColor   *bool             `yaml:"noColor,omitempty"`
	History   string            `yaml:"history,omitempty"`
	Proxy     string            `yaml:"proxy,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
}

// RequestSpec is a named request in the workspace
type RequestSpec struct {
	URL         string            `yaml:"url"`
	Method      string            `yaml:"method,omitempty"`
	Headers     []http.Header     `yaml:"headers,omitempty"`
	Query       map[string]string `yaml:"query,omitempty"`
	Body        string            `yaml:"body,omitempty"`
	ContentType string            `yaml:"contentType,omitempty"`
	Base64      bool              `yaml:"base64,omitempty"`
	Security    string            `yaml:"security,omitempty"`
	Auth        *BasicAuth        `yaml:"auth,omitempty"`
	Proxy       string            `yaml:"proxy,omitempty"`
	Keystore    string            `yaml:"keystore,omitempty"`
	Alias       string            `yaml:"alias,omitempty"`
	Timeout     int               `yaml:"timeout,omitempty"` // seconds
}

type BasicAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password,omitempty"`
}

type ProxySpec struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

type KeystoreSpec struct {
	Path     string `yaml:"path"`
	Password string `yaml:"password,omitempty"`
	Alias    string `yaml:"alias,omitempty"`
}

// boolPtr returns a pointer to a bool value
func boolPtr(b bool) *bool {
	return &b
}

// BoolPtr is exported version of boolPtr for external use
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetHTTP2 returns the http2 setting, defaulting to false
func (c *Config) GetHTTP2() bool {
	return getBool(c.Defaults.HTTP2, false)
}

// GetVerbose returns the verbose setting, defaulting to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Defaults.Verbose, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.Defaults.NoColor, false)
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".hitshot.yaml",
	"hitshot.yaml",
	"hitshot.yml",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	if path := FindConfigFile(dir); path != "" {
		return loadConfigFromFile(path)
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

// FindConfigFile returns the first workspace file present in dir, or ""
func FindConfigFile(dir string) string {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}
	return ""
}

// loadConfigFromFile validates, decodes and expands a workspace file
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := ValidateSchema(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	vars, err := env.LoadDir(filepath.Dir(path))
	if err != nil {
		return nil, err
	}

	resolver := env.NewResolver()
	resolver.SetVariables(vars)

	config, err := Parse(data, resolver)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	config.Path = path
	return config, nil
}

// Parse decodes a workspace document on top of the defaults and expands
// variable references with resolver, which may be nil.
func Parse(data []byte, resolver *env.Resolver) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing workspace: %w", err)
	}
	if resolver != nil {
		config.Expand(resolver)
	}
	return config, nil
}

// Expand replaces ${VAR} references in every string value
func (c *Config) Expand(r *env.Resolver) {
	c.Defaults.CACert = r.Resolve(c.Defaults.CACert)
	c.Defaults.History = r.Resolve(c.Defaults.History)
	c.Defaults.Headers = r.ResolveAll(c.Defaults.Headers)

	for name, req := range c.Requests {
		req.URL = r.Resolve(req.URL)
		req.Body = r.Resolve(req.Body)
		req.Alias = r.Resolve(req.Alias)
		for i, h := range req.Headers {
			req.Headers[i].Value = r.Resolve(h.Value)
		}
		if req.Query != nil {
			req.Query = r.ResolveAll(req.Query)
		}
		if req.Auth != nil {
			auth := *req.Auth
			auth.Username = r.Resolve(auth.Username)
			auth.Password = r.Resolve(auth.Password)
			req.Auth = &auth
		}
		c.Requests[name] = req
	}

	for name, p := range c.Proxies {
		p.Host = r.Resolve(p.Host)
		p.Username = r.Resolve(p.Username)
		p.Password = r.Resolve(p.Password)
		c.Proxies[name] = p
	}

	for name, ks := range c.Keystores {
		ks.Path = r.Resolve(ks.Path)
		ks.Password = r.Resolve(ks.Password)
		ks.Alias = r.Resolve(ks.Alias)
		c.Keystores[name] = ks
	}
}

// RequestNames returns the workspace's request names, sorted
func (c *Config) RequestNames() []string {
	names := make([]string, 0, len(c.Requests))
	for name := range c.Requests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.Defaults.Timeout > 0 {
		result.Defaults.Timeout = other.Defaults.Timeout
	}
	if other.Defaults.TrustMode != "" {
		result.Defaults.TrustMode = other.Defaults.TrustMode
	}
	if other.Defaults.CACert != "" {
		result.Defaults.CACert = other.Defaults.CACert
	}
	if other.Defaults.History != "" {
		result.Defaults.History = other.Defaults.History
	}
	if other.Defaults.Proxy != "" {
		result.Defaults.Proxy = other.Defaults.Proxy
	}

	// Boolean flags - only override if explicitly set in other config
	if other.Defaults.HTTP2 != nil {
		result.Defaults.HTTP2 = other.Defaults.HTTP2
	}
	if other.Defaults.Verbose != nil {
		result.Defaults.Verbose = other.Defaults.Verbose
	}
	if other.Defaults.NoColor != nil {
		result.Defaults.NoColor = other.Defaults.NoColor
	}

	result.Defaults.Headers = mergeMaps(c.Defaults.Headers, other.Defaults.Headers)
	result.Requests = mergeMaps(c.Requests, other.Requests)
	result.Proxies = mergeMaps(c.Proxies, other.Proxies)
	result.Keystores = mergeMaps(c.Keystores, other.Keystores)

	if other.Path != "" {
		result.Path = other.Path
	}

	return &result
}

func mergeMaps[V any](base, over map[string]V) map[string]V {
	if len(base) == 0 && len(over) == 0 {
		return base
	}
	result := make(map[string]V, len(base)+len(over))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range over {
		result[k] = v
	}
	return result
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
