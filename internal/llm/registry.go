package llm

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Config carries the per-provider connection settings. BaseURL overrides the
// provider default (self-hosted gateways, Azure-style deployments, local
// runtimes).
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 120 * time.Second}
}

type Factory func(cfg Config) (Client, error)

var registry = map[string]Factory{}

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

// New builds a client for the named provider.
func New(name string, cfg Config) (Client, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
	return factory(cfg)
}

// Providers lists every registered provider id.
func Providers() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
