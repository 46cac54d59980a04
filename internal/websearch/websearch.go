package websearch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Result is one web hit handed to prompt assembly.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher is one web search backend.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, count int) ([]Result, error)
}

// Config carries backend credentials. EngineID is only meaningful for
// backends with per-engine scoping (Google CSE).
type Config struct {
	APIKey     string
	EngineID   string
	HTTPClient *http.Client
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

type Factory func(cfg Config) (Searcher, error)

var registry = map[string]Factory{}

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

// New builds a searcher for the named backend.
func New(name string, cfg Config) (Searcher, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("search backend name is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported search backend: %s", name)
	}
	return factory(cfg)
}

func Backends() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
