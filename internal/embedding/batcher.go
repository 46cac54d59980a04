package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/ragdesk/ragdesk/internal/llm"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	defaultBatchSize  = 10
	defaultBatchDelay = 50 * time.Millisecond
)

// ProgressFunc reports how many texts have been embedded so far.
type ProgressFunc func(done, total int)

// Batcher embeds large text sets in fixed-size batches with a small pause
// between batches so upstream rate limits are not tripped. Any batch
// failure aborts the whole run; partial vectors are never returned.
type Batcher struct {
	client    llm.Client
	batchSize int
	delay     time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

type Option func(*Batcher)

func WithBatchSize(size int) Option {
	return func(b *Batcher) {
		if size > 0 {
			b.batchSize = size
		}
	}
}

func WithBatchDelay(delay time.Duration) Option {
	return func(b *Batcher) {
		b.delay = delay
	}
}

// WithSleepFunc overrides the inter-batch wait, for tests.
func WithSleepFunc(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(b *Batcher) {
		if sleep != nil {
			b.sleep = sleep
		}
	}
}

func NewBatcher(client llm.Client, opts ...Option) *Batcher {
	b := &Batcher{
		client:    client,
		batchSize: defaultBatchSize,
		delay:     defaultBatchDelay,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// EmbedAll returns one vector per input text, in input order.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string, model string, progress ProgressFunc) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		if start > 0 && b.delay > 0 {
			if err := b.sleep(ctx, b.delay); err != nil {
				return nil, err
			}
		}
		batch := texts[start:end]
		batchVectors, err := b.client.Embeddings(ctx, batch, model)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(batchVectors) != len(batch) {
			return nil, fmt.Errorf("embed batch %d-%d: got %d vectors for %d texts", start, end, len(batchVectors), len(batch))
		}
		vectors = append(vectors, batchVectors...)
		logutil.GetLogger(ctx).Debug("embedded batch",
			zap.String("model", model), zap.Int("done", len(vectors)), zap.Int("total", len(texts)))
		if progress != nil {
			progress(len(vectors), len(texts))
		}
	}
	return vectors, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
