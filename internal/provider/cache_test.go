package provider

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ragdesk/ragdesk/internal/llm"
	"github.com/stretchr/testify/require"
)

type listingClient struct {
	calls  int
	models []string
	err    error
}

func (c *listingClient) Name() string { return "listing" }

func (c *listingClient) Embeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	return nil, llm.ErrUnsupportedCapability
}

func (c *listingClient) StreamChat(ctx context.Context, req llm.ChatRequest) (*llm.ChatStream, error) {
	return nil, fmt.Errorf("not implemented")
}

func (c *listingClient) ListModels(ctx context.Context) ([]string, error) {
	c.calls++
	return c.models, c.err
}

type resolverStub struct {
	client llm.Client
	err    error
}

func (r *resolverStub) ClientForProvider(provider string) (llm.Client, error) {
	return r.client, r.err
}

func TestListModelsCached(t *testing.T) {
	client := &listingClient{models: []string{"m1", "m2"}}
	service := NewService(&resolverStub{client: client})

	for i := 0; i < 3; i++ {
		models, err := service.ListModels(context.Background(), "openai")
		require.NoError(t, err)
		require.Equal(t, []string{"m1", "m2"}, models)
	}
	require.Equal(t, 1, client.calls)
}

func TestListModelsErrorNotCached(t *testing.T) {
	client := &listingClient{err: fmt.Errorf("unreachable")}
	service := NewService(&resolverStub{client: client})

	_, err := service.ListModels(context.Background(), "openai")
	require.Error(t, err)
	_, err = service.ListModels(context.Background(), "openai")
	require.Error(t, err)
	require.Equal(t, 2, client.calls)
}

func TestTestConnectionCachesVerdict(t *testing.T) {
	client := &listingClient{models: []string{"m1"}}
	service := NewService(&resolverStub{client: client})

	require.NoError(t, service.TestConnection(context.Background(), "openai"))
	require.NoError(t, service.TestConnection(context.Background(), "openai"))
	require.Equal(t, 1, client.calls)
}

func TestTestConnectionFailureCached(t *testing.T) {
	client := &listingClient{err: fmt.Errorf("bad key")}
	service := NewService(&resolverStub{client: client})

	require.Error(t, service.TestConnection(context.Background(), "openai"))
	require.Error(t, service.TestConnection(context.Background(), "openai"))
	require.Equal(t, 1, client.calls)
}

func TestInvalidateDropsCache(t *testing.T) {
	client := &listingClient{models: []string{"m1"}}
	service := NewService(&resolverStub{client: client})

	_, err := service.ListModels(context.Background(), "openai")
	require.NoError(t, err)
	service.Invalidate("openai")
	_, err = service.ListModels(context.Background(), "openai")
	require.NoError(t, err)
	require.Equal(t, 2, client.calls)
}

func TestCacheExpires(t *testing.T) {
	client := &listingClient{models: []string{"m1"}}
	service := NewService(&resolverStub{client: client}, WithTTL(20*time.Millisecond))

	_, err := service.ListModels(context.Background(), "openai")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, cached := service.models.Get("openai")
		return !cached
	}, time.Second, 10*time.Millisecond)

	_, err = service.ListModels(context.Background(), "openai")
	require.NoError(t, err)
	require.Equal(t, 2, client.calls)
}
