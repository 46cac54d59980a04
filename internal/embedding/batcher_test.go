package embedding

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ragdesk/ragdesk/internal/llm"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	batches [][]string
	failAt  int
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Embeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if f.failAt > 0 && len(f.batches)+1 == f.failAt {
		return nil, fmt.Errorf("provider down")
	}
	f.batches = append(f.batches, texts)
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vectors = append(vectors, []float32{float32(len(text))})
	}
	return vectors, nil
}

func (f *fakeEmbedder) StreamChat(ctx context.Context, req llm.ChatRequest) (*llm.ChatStream, error) {
	return nil, fmt.Errorf("not implemented")
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestBatcherSplitsAndPreservesOrder(t *testing.T) {
	fake := &fakeEmbedder{}
	batcher := NewBatcher(fake, WithBatchSize(3), WithSleepFunc(noSleep))

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee", "ffffff", "g"}
	vectors, err := batcher.EmbedAll(context.Background(), texts, "m", nil)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, text := range texts {
		require.Equal(t, []float32{float32(len(text))}, vectors[i])
	}
	require.Equal(t, [][]string{
		{"a", "bb", "ccc"},
		{"dddd", "eeeee", "ffffff"},
		{"g"},
	}, fake.batches)
}

func TestBatcherReportsProgress(t *testing.T) {
	fake := &fakeEmbedder{}
	batcher := NewBatcher(fake, WithBatchSize(2), WithSleepFunc(noSleep))

	var reported [][2]int
	_, err := batcher.EmbedAll(context.Background(), []string{"a", "b", "c"}, "m", func(done, total int) {
		reported = append(reported, [2]int{done, total})
	})
	require.NoError(t, err)
	require.Equal(t, [][2]int{{2, 3}, {3, 3}}, reported)
}

func TestBatcherFailureAborts(t *testing.T) {
	fake := &fakeEmbedder{failAt: 2}
	batcher := NewBatcher(fake, WithBatchSize(2), WithSleepFunc(noSleep))

	_, err := batcher.EmbedAll(context.Background(), []string{"a", "b", "c", "d"}, "m", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "provider down")
}

func TestBatcherSleepsBetweenBatches(t *testing.T) {
	fake := &fakeEmbedder{}
	var sleeps []time.Duration
	batcher := NewBatcher(fake, WithBatchSize(1), WithBatchDelay(50*time.Millisecond),
		WithSleepFunc(func(ctx context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		}))

	_, err := batcher.EmbedAll(context.Background(), []string{"a", "b", "c"}, "m", nil)
	require.NoError(t, err)
	require.Equal(t, []time.Duration{50 * time.Millisecond, 50 * time.Millisecond}, sleeps)
}

func TestBatcherEmptyInput(t *testing.T) {
	batcher := NewBatcher(&fakeEmbedder{}, WithSleepFunc(noSleep))
	vectors, err := batcher.EmbedAll(context.Background(), nil, "m", nil)
	require.NoError(t, err)
	require.Nil(t, vectors)
}

func TestLRUCacheSingleText(t *testing.T) {
	fake := &fakeEmbedder{}
	cached := WrapLRUCache(fake, 8, time.Minute)

	first, err := cached.Embeddings(context.Background(), []string{"hello"}, "m")
	require.NoError(t, err)
	second, err := cached.Embeddings(context.Background(), []string{"hello"}, "m")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, fake.batches, 1)
}
