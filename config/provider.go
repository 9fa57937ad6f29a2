package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
)

// ErrNotLoaded is returned by Get before the first successful Load.
var ErrNotLoaded = errors.New("configuration not loaded; call Load() first")

// Provider holds the process-wide configuration. Lambda reuses the process
// across invocations, so it is read once at init and shared by every
// chain built afterwards.
type Provider struct {
	mu  sync.RWMutex
	cfg *Config
}

var (
	provider     *Provider
	providerOnce sync.Once
)

// GetProvider returns the process-wide provider.
func GetProvider() *Provider {
	providerOnce.Do(func() { provider = &Provider{} })
	return provider
}

// Load reads the .env files and the environment once. Later calls are
// no-ops until Reload.
func (p *Provider) Load() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg != nil {
		return nil
	}
	return p.readLocked()
}

// MustLoad is Load for main functions; it panics on error.
func (p *Provider) MustLoad() {
	if err := p.Load(); err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
}

// Get returns the loaded configuration.
func (p *Provider) Get() (*Config, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cfg == nil {
		return nil, ErrNotLoaded
	}
	return p.cfg, nil
}

// MustGet is Get that panics when nothing was loaded.
func (p *Provider) MustGet() *Config {
	cfg, err := p.Get()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Reload re-reads the environment. The previous configuration is kept
// when the new one is invalid.
func (p *Provider) Reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readLocked()
}

func (p *Provider) readLocked() error {
	if err := loadEnvFiles(); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	cfg := parse(newEnvReader())
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.cfg = cfg
	return nil
}

// loadEnvFiles applies .env, then .env.<ENVIRONMENT>, then .env.local.
// Missing files are skipped. The process environment always wins over
// .env; the later files override the earlier ones.
func loadEnvFiles() error {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = os.Getenv("ENV")
	}

	files := []struct {
		name     string
		override bool
	}{
		{".env", false},
		{".env." + env, true},
		{".env.local", true},
	}
	for _, f := range files {
		if f.name == ".env." {
			continue
		}
		if _, err := os.Stat(f.name); err != nil {
			continue
		}
		load := godotenv.Load
		if f.override {
			load = godotenv.Overload
		}
		if err := load(f.name); err != nil {
			return fmt.Errorf("failed to load %s: %w", f.name, err)
		}
	}
	return nil
}
