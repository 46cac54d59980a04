package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func recordSleeps(sleeps *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
}

func okEnvelope(result string) string {
	return fmt.Sprintf(`{"status":"ok","result":%s}`, result)
}

func TestRetryOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, okEnvelope("true"))
	}))
	defer server.Close()

	var sleeps []time.Duration
	client := New(server.URL, "", WithHTTPClient(server.Client()), WithSleepFunc(recordSleeps(&sleeps)))

	err := client.CreateCollection(context.Background(), "kb", 1536)
	require.NoError(t, err)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
	require.Equal(t, []time.Duration{1000 * time.Millisecond, 2000 * time.Millisecond}, sleeps)
}

func TestRetryExhausted(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	var sleeps []time.Duration
	client := New(server.URL, "", WithHTTPClient(server.Client()), WithSleepFunc(recordSleeps(&sleeps)))

	err := client.CreateCollection(context.Background(), "kb", 1536)
	require.Error(t, err)
	require.EqualValues(t, 4, atomic.LoadInt32(&calls))
	require.Equal(t, []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
	}, sleeps)
}

func TestClientErrorIsTerminal(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"status":{"error":"vector size mismatch"}}`)
	}))
	defer server.Close()

	var sleeps []time.Duration
	client := New(server.URL, "", WithHTTPClient(server.Client()), WithSleepFunc(recordSleeps(&sleeps)))

	err := client.CreateCollection(context.Background(), "kb", 1536)
	require.Error(t, err)
	require.Contains(t, err.Error(), "vector size mismatch")
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.Empty(t, sleeps)
}

func TestCollectionExistsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"status":{"error":"not found"}}`)
	}))
	defer server.Close()

	client := New(server.URL, "", WithHTTPClient(server.Client()))
	exists, err := client.CollectionExists(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestUpsertBatches(t *testing.T) {
	var batchSizes []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Points []Point `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		batchSizes = append(batchSizes, len(body.Points))
		io.WriteString(w, okEnvelope(`{"status":"completed"}`))
	}))
	defer server.Close()

	var sleeps []time.Duration
	client := New(server.URL, "", WithHTTPClient(server.Client()), WithSleepFunc(recordSleeps(&sleeps)))

	points := make([]Point, 250)
	for i := range points {
		points[i] = Point{ID: fmt.Sprintf("id-%d", i), Vector: []float32{1}}
	}
	err := client.Upsert(context.Background(), "kb", points)
	require.NoError(t, err)
	require.Equal(t, []int{100, 100, 50}, batchSizes)
	require.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, sleeps)
}

func TestSearchCollectionsMergesAndDegrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/a/points/search":
			io.WriteString(w, okEnvelope(`[{"id":"1","score":0.9},{"id":"2","score":0.5}]`))
		case "/collections/b/points/search":
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"status":{"error":"broken"}}`)
		case "/collections/c/points/search":
			io.WriteString(w, okEnvelope(`[{"id":"3","score":0.7}]`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := New(server.URL, "", WithHTTPClient(server.Client()))
	hits, err := client.SearchCollections(context.Background(), []string{"a", "b", "c"}, []float32{1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "1", hits[0].ID)
	require.Equal(t, "3", hits[1].ID)
}

func TestSearchRequestBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, true, body["with_payload"])
		require.Equal(t, false, body["with_vector"])
		require.EqualValues(t, 3, body["limit"])
		io.WriteString(w, okEnvelope(`[]`))
	}))
	defer server.Close()

	client := New(server.URL, "", WithHTTPClient(server.Client()))
	_, err := client.Search(context.Background(), "kb", []float32{1, 2}, 3)
	require.NoError(t, err)
}

func TestSearchCollectionsAllFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"status":{"error":"broken"}}`)
	}))
	defer server.Close()

	client := New(server.URL, "", WithHTTPClient(server.Client()))
	_, err := client.SearchCollections(context.Background(), []string{"a", "b"}, []float32{1}, 5)
	require.Error(t, err)
}

func TestAPIKeyHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret", r.Header.Get("api-key"))
		io.WriteString(w, okEnvelope(`{"collections":[{"name":"kb_1"}]}`))
	}))
	defer server.Close()

	client := New(server.URL, "secret", WithHTTPClient(server.Client()))
	names, err := client.ListCollections(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"kb_1"}, names)
}
