package embedding

import (
	"fmt"
	"testing"
	"time"

	"github.com/ragdesk/ragdesk/internal/llm"
	"github.com/stretchr/testify/require"
)

type resolverStub struct {
	built int
	fail  bool
}

func (r *resolverStub) ClientForModel(model string) (llm.Client, error) {
	if r.fail {
		return nil, fmt.Errorf("no provider for %s", model)
	}
	r.built++
	return &fakeEmbedder{}, nil
}

func TestCachedResolverReusesClients(t *testing.T) {
	stub := &resolverStub{}
	resolver := NewCachedResolver(stub, 8, time.Minute)

	first, err := resolver.ClientForModel("text-embedding-3-small")
	require.NoError(t, err)
	second, err := resolver.ClientForModel("text-embedding-3-small")
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, stub.built)

	_, err = resolver.ClientForModel("embed-english-v3.0")
	require.NoError(t, err)
	require.Equal(t, 2, stub.built)
}

func TestCachedResolverPropagatesError(t *testing.T) {
	resolver := NewCachedResolver(&resolverStub{fail: true}, 8, time.Minute)
	_, err := resolver.ClientForModel("unknown-model")
	require.Error(t, err)
}
