package config

import "github.com/abdul-hamid-achik/hitshot/packages/tlsaudit"

const (
	// DefaultTimeout is the request timeout in seconds
	DefaultTimeout = 30
	// DefaultHistoryPath is where responses are recorded
	DefaultHistoryPath = ".hitshot/history.db"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Defaults: Defaults{
			Timeout:   DefaultTimeout,
			TrustMode: string(tlsaudit.TrustStrict),
			HTTP2:     boolPtr(false),
			Verbose:   boolPtr(false),
			NoColor:   boolPtr(false),
			History:   DefaultHistoryPath,
		},
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	defaults := DefaultConfig()
	return c.Defaults.Timeout == defaults.Defaults.Timeout &&
		c.Defaults.TrustMode == defaults.Defaults.TrustMode &&
		c.Defaults.CACert == "" &&
		c.GetHTTP2() == defaults.GetHTTP2() &&
		c.GetVerbose() == defaults.GetVerbose() &&
		c.GetNoColor() == defaults.GetNoColor() &&
		c.Defaults.History == defaults.Defaults.History &&
		c.Defaults.Proxy == "" &&
		len(c.Defaults.Headers) == 0 &&
		len(c.Requests) == 0 &&
		len(c.Proxies) == 0 &&
		len(c.Keystores) == 0
}
