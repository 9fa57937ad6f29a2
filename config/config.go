// Package config loads the settings of the invocation chain and its sinks
// from .env files and POWERTOOLS_* environment variables.
//
// Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		var cfgErr *config.ConfigurationError
//		if errors.As(err, &cfgErr) { ... }
//	}
package config

// Load loads the configuration through the process-wide provider.
func Load() (*Config, error) {
	p := GetProvider()
	if err := p.Load(); err != nil {
		return nil, err
	}
	return p.Get()
}

// MustLoad is Load for main functions; it panics on error.
func MustLoad() *Config {
	p := GetProvider()
	p.MustLoad()
	return p.MustGet()
}

// FromEnv parses and validates the environment without touching the
// provider or .env files.
func FromEnv() (*Config, error) {
	cfg := parse(newEnvReader())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
