package provider

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/ragdesk/ragdesk/internal/llm"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	defaultCacheTTL  = 5 * time.Minute
	defaultCacheSize = 64
)

type clientResolver interface {
	ClientForProvider(provider string) (llm.Client, error)
}

// Service answers "is this provider reachable" and "what models does it
// serve" without hammering upstream APIs: results are cached per provider
// with a short TTL, so settings screens can poll freely.
type Service struct {
	resolver clientResolver
	probes   *expirable.LRU[string, error]
	models   *expirable.LRU[string, []string]
}

type Option func(*options)

type options struct {
	ttl  time.Duration
	size int
}

func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

func WithCacheSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.size = size
		}
	}
}

func NewService(resolver clientResolver, opts ...Option) *Service {
	o := &options{ttl: defaultCacheTTL, size: defaultCacheSize}
	for _, opt := range opts {
		opt(o)
	}
	return &Service{
		resolver: resolver,
		probes:   expirable.NewLRU[string, error](o.size, nil, o.ttl),
		models:   expirable.NewLRU[string, []string](o.size, nil, o.ttl),
	}
}

// Providers lists every registered provider id, sorted.
func (s *Service) Providers() []string {
	names := llm.Providers()
	sort.Strings(names)
	return names
}

// TestConnection probes the provider, serving a cached verdict when fresh.
func (s *Service) TestConnection(ctx context.Context, provider string) error {
	if verdict, ok := s.probes.Get(provider); ok {
		return verdict
	}
	err := s.probe(ctx, provider)
	s.probes.Add(provider, err)
	return err
}

// ListModels returns the provider's model catalog, cached per provider.
func (s *Service) ListModels(ctx context.Context, provider string) ([]string, error) {
	if cached, ok := s.models.Get(provider); ok {
		return cached, nil
	}
	client, err := s.resolver.ClientForProvider(provider)
	if err != nil {
		return nil, err
	}
	lister, ok := client.(llm.ModelLister)
	if !ok {
		return nil, fmt.Errorf("%s model listing: %w", provider, llm.ErrUnsupportedCapability)
	}
	models, err := lister.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	s.models.Add(provider, models)
	logutil.GetLogger(ctx).Debug("provider models listed",
		zap.String("provider", provider), zap.Int("models", len(models)))
	return models, nil
}

// Invalidate drops the cached state for one provider, e.g. after its
// credentials changed.
func (s *Service) Invalidate(provider string) {
	s.probes.Remove(provider)
	s.models.Remove(provider)
}

func (s *Service) probe(ctx context.Context, provider string) error {
	client, err := s.resolver.ClientForProvider(provider)
	if err != nil {
		return err
	}
	if lister, ok := client.(llm.ModelLister); ok {
		if _, err := lister.ListModels(ctx); err != nil {
			return err
		}
		return nil
	}
	// No catalog endpoint; a successfully built client (credentials
	// present) is the best signal available.
	return nil
}
