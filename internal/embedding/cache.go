package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/ragdesk/ragdesk/internal/llm"
	"github.com/xxxsen/common/logutil"
)

// WrapLRUCache caches single-text embeddings in front of a client. Batches
// of more than one text bypass the cache; ingest batches rarely repeat,
// query embeddings do.
func WrapLRUCache(next llm.Client, size int, ttl time.Duration) llm.Client {
	if next == nil || size <= 0 || ttl <= 0 {
		return next
	}
	return &cachedClient{
		Client: next,
		cache:  expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type cachedClient struct {
	llm.Client
	cache *expirable.LRU[string, []float32]
}

func (c *cachedClient) Embeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) != 1 {
		return c.Client.Embeddings(ctx, texts, model)
	}
	key := cacheKey(model, texts[0])
	if cached, ok := c.cache.Get(key); ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit (lru)")
		return [][]float32{cloneVector(cached)}, nil
	}
	vectors, err := c.Client.Embeddings(ctx, texts, model)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 1 {
		c.cache.Add(key, cloneVector(vectors[0]))
	}
	return vectors, nil
}

type modelResolver interface {
	ClientForModel(model string) (llm.Client, error)
}

// CachedResolver hands out cache-wrapped clients, keyed by model, so every
// caller embedding the same model shares one LRU.
type CachedResolver struct {
	next    modelResolver
	size    int
	ttl     time.Duration
	mu      sync.Mutex
	clients map[string]llm.Client
}

func NewCachedResolver(next modelResolver, size int, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		next:    next,
		size:    size,
		ttl:     ttl,
		clients: make(map[string]llm.Client),
	}
}

func (r *CachedResolver) ClientForModel(model string) (llm.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[model]; ok {
		return client, nil
	}
	client, err := r.next.ClientForModel(model)
	if err != nil {
		return nil, err
	}
	client = WrapLRUCache(client, r.size, r.ttl)
	r.clients[model] = client
	return client, nil
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
