package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/jqb69/darkseek/pkg/config"
)

const (
	providerGoogle     = "google"
	providerDuckDuckGo = "duckduckgo"
	providerBrave      = "brave"

	defaultProviderTimeout = 15 * time.Second
)

// Config holds environment configuration for search providers. Providers
// is an ordered list; earlier entries win when deduplicating results.
type Config struct {
	Providers    []string
	GoogleAPIKey string
	GoogleCSEID  string
	BraveAPIKey  string
	BraveAPIURL  string
	Timeout      time.Duration
}

// LoadConfig loads search configuration from the environment.
func LoadConfig() Config {
	providers := strings.Split(config.GetEnv("SEARCH_PROVIDERS", providerGoogle+","+providerDuckDuckGo), ",")
	for i, p := range providers {
		providers[i] = strings.TrimSpace(strings.ToLower(p))
	}
	return Config{
		Providers:    providers,
		GoogleAPIKey: config.GetEnv("GOOGLE_API_KEY", ""),
		GoogleCSEID:  config.GetEnv("GOOGLE_CSE_ID", ""),
		BraveAPIKey:  config.GetEnv("BRAVE_API_KEY", ""),
		BraveAPIURL:  config.GetEnv("BRAVE_API_URL", ""),
		Timeout:      config.GetEnvDuration("SEARCH_TIMEOUT", defaultProviderTimeout),
	}
}

// NewProviders creates the configured providers in priority order.
func NewProviders(cfg Config) ([]Provider, error) {
	providers := make([]Provider, 0, len(cfg.Providers))
	for _, name := range cfg.Providers {
		switch name {
		case providerGoogle:
			p, err := NewGoogleProvider(cfg.GoogleAPIKey, cfg.GoogleCSEID, cfg.Timeout)
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		case providerDuckDuckGo:
			providers = append(providers, NewDuckDuckGoProvider(cfg.Timeout))
		case providerBrave:
			p, err := NewBraveProvider(cfg.BraveAPIKey, cfg.BraveAPIURL, cfg.Timeout)
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		case "":
			continue
		default:
			return nil, fmt.Errorf("unsupported search provider: %s", name)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one search provider is required")
	}
	return providers, nil
}
