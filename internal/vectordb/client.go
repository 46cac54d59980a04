package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	defaultMaxRetries  = 3
	defaultRetryBase   = 1000 * time.Millisecond
	upsertBatchSize    = 100
	upsertBatchDelay   = 100 * time.Millisecond
	defaultHTTPTimeout = 30 * time.Second
)

// Client talks to a Qdrant-compatible REST endpoint. Transient failures
// (429, 5xx, network errors) are retried with exponential backoff; any
// other 4xx is terminal and surfaces the response body.
type Client struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	maxRetries int
	retryBase  time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.client = httpClient
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

func WithRetryBase(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryBase = d
		}
	}
}

// WithSleepFunc overrides backoff and inter-batch waits, for tests.
func WithSleepFunc(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		client:     &http.Client{Timeout: defaultHTTPTimeout},
		maxRetries: defaultMaxRetries,
		retryBase:  defaultRetryBase,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Point is one vector with its payload, addressed by a UUID.
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// ScoredPoint is a search hit.
type ScoredPoint struct {
	ID      string                 `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// CollectionInfo is the subset of collection metadata callers need.
type CollectionInfo struct {
	PointsCount uint64
	VectorSize  uint64
	Distance    string
}

type apiEnvelope struct {
	Status interface{}     `json:"status"`
	Result json.RawMessage `json:"result"`
}

func (c *Client) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	_, err := c.do(ctx, http.MethodPut, "/collections/"+name, body)
	return err
}

func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	_, err := c.do(ctx, http.MethodDelete, "/collections/"+name, nil)
	return err
}

// CollectionExists maps a 404 to (false, nil) rather than an error.
func (c *Client) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, err := c.do(ctx, http.MethodGet, "/collections/"+name, nil)
	if err != nil {
		var statusErr *statusError
		if asStatusError(err, &statusErr) && statusErr.code == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	raw, err := c.do(ctx, http.MethodGet, "/collections/"+name, nil)
	if err != nil {
		return nil, err
	}
	var result struct {
		PointsCount uint64 `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size     uint64 `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode collection info: %w", err)
	}
	return &CollectionInfo{
		PointsCount: result.PointsCount,
		VectorSize:  result.Config.Params.Vectors.Size,
		Distance:    result.Config.Params.Vectors.Distance,
	}, nil
}

func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	raw, err := c.do(ctx, http.MethodGet, "/collections", nil)
	if err != nil {
		return nil, err
	}
	var result struct {
		Collections []struct {
			Name string `json:"name"`
		} `json:"collections"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode collections: %w", err)
	}
	names := make([]string, 0, len(result.Collections))
	for _, item := range result.Collections {
		names = append(names, item.Name)
	}
	return names, nil
}

// Upsert writes points in batches of at most 100 with a short pause between
// batches. Any batch failure aborts the remaining batches.
func (c *Client) Upsert(ctx context.Context, collection string, points []Point) error {
	for start := 0; start < len(points); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}
		if start > 0 {
			if err := c.sleep(ctx, upsertBatchDelay); err != nil {
				return err
			}
		}
		body := map[string]interface{}{"points": points[start:end]}
		if _, err := c.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body); err != nil {
			return fmt.Errorf("upsert points %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// DeletePointsByFile removes every point whose payload carries the given
// file id. Re-ingesting a file starts from a clean slate.
func (c *Client) DeletePointsByFile(ctx context.Context, collection string, fileID string) error {
	body := map[string]interface{}{
		"filter": map[string]interface{}{
			"must": []map[string]interface{}{
				{"key": "file_id", "match": map[string]interface{}{"value": fileID}},
			},
		},
	}
	_, err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", body)
	return err
}

// Search queries one collection.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, limit int) ([]ScoredPoint, error) {
	body := map[string]interface{}{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	raw, err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", body)
	if err != nil {
		return nil, err
	}
	var hits []ScoredPoint
	if err := json.Unmarshal(raw, &hits); err != nil {
		return nil, fmt.Errorf("decode search result: %w", err)
	}
	return hits, nil
}

// SearchCollections fans a query out over several collections and merges
// the hits by descending score, truncated to limit. A failing collection
// is logged and skipped; the merged result degrades instead of failing.
func (c *Client) SearchCollections(ctx context.Context, collections []string, vector []float32, limit int) ([]ScoredPoint, error) {
	merged := make([]ScoredPoint, 0, limit*len(collections))
	var lastErr error
	failed := 0
	for _, collection := range collections {
		hits, err := c.Search(ctx, collection, vector, limit)
		if err != nil {
			logutil.GetLogger(ctx).Warn("search collection failed, skipping",
				zap.String("collection", collection), zap.Error(err))
			lastErr = err
			failed++
			continue
		}
		merged = append(merged, hits...)
	}
	if failed == len(collections) && failed > 0 {
		return nil, fmt.Errorf("all %d collections failed: %w", failed, lastErr)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("vectordb request failed: status %d: %s", e.code, e.body)
}

func asStatusError(err error, target **statusError) bool {
	for err != nil {
		if statusErr, ok := err.(*statusError); ok {
			*target = statusErr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func retriableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// do performs one API call with retries and unwraps the result envelope.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = data
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.retryBase * time.Duration(1<<(attempt-1))
			logutil.GetLogger(ctx).Warn("retrying vectordb request",
				zap.String("method", method), zap.String("path", path),
				zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(lastErr))
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}
		raw, err := c.doOnce(ctx, method, path, payload)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		var statusErr *statusError
		if asStatusError(err, &statusErr) && !retriableStatus(statusErr.code) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte) (json.RawMessage, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	var envelope apiEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return envelope.Result, nil
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
