package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ragdesk/ragdesk/internal/embedding"
	"github.com/ragdesk/ragdesk/internal/llm"
	"github.com/ragdesk/ragdesk/internal/model"
	"github.com/ragdesk/ragdesk/internal/pkg/errors"
	"github.com/ragdesk/ragdesk/internal/vectordb"
	"github.com/stretchr/testify/require"
)

type memFileRepo struct {
	mu       sync.Mutex
	files    map[string]*model.File
	statuses []model.IngestStatus
}

func (r *memFileRepo) Get(ctx context.Context, id string) (*model.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, errors.ErrNotFound)
	}
	clone := *file
	return &clone, nil
}

func (r *memFileRepo) UpdateStatus(ctx context.Context, id string, status model.IngestStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.files[id]
	if !ok {
		return fmt.Errorf("file %s: %w", id, errors.ErrNotFound)
	}
	file.Status = status
	r.statuses = append(r.statuses, status)
	return nil
}

type memKBRepo struct {
	kb *model.KnowledgeBase
}

func (r *memKBRepo) Get(ctx context.Context, id string) (*model.KnowledgeBase, error) {
	if r.kb == nil || r.kb.ID != id {
		return nil, fmt.Errorf("knowledge base %s: %w", id, errors.ErrNotFound)
	}
	return r.kb, nil
}

type memStore struct {
	blobs map[string][]byte
}

func (s *memStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", key, errors.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type memIndex struct {
	mu          sync.Mutex
	collections map[string]uint64
	points      map[string][]vectordb.Point
	deletedFor  []string
	upsertErr   error
}

func newMemIndex() *memIndex {
	return &memIndex{collections: map[string]uint64{}, points: map[string][]vectordb.Point{}}
}

func (m *memIndex) CollectionExists(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.collections[name]
	return ok, nil
}

func (m *memIndex) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[name] = vectorSize
	return nil
}

func (m *memIndex) DeletePointsByFile(ctx context.Context, collection string, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletedFor = append(m.deletedFor, collection+"/"+fileID)
	kept := m.points[collection][:0]
	for _, point := range m.points[collection] {
		if point.Payload["file_id"] != fileID {
			kept = append(kept, point)
		}
	}
	m.points[collection] = kept
	return nil
}

func (m *memIndex) Upsert(ctx context.Context, collection string, points []vectordb.Point) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[collection] = append(m.points[collection], points...)
	return nil
}

type stubResolver struct {
	client llm.Client
	err    error
}

func (r *stubResolver) ClientForModel(model string) (llm.Client, error) {
	return r.client, r.err
}

type stubEmbedder struct{}

func (stubEmbedder) Name() string { return "stub" }

func (stubEmbedder) Embeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(i)}
	}
	return vectors, nil
}

func (stubEmbedder) StreamChat(ctx context.Context, req llm.ChatRequest) (*llm.ChatStream, error) {
	return nil, fmt.Errorf("not implemented")
}

type recordSink struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (s *recordSink) Emit(event string, payload interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if progress, ok := payload.(ProgressEvent); ok {
		s.events = append(s.events, progress)
	}
}

func noDelay() embedding.Option {
	return embedding.WithSleepFunc(func(ctx context.Context, d time.Duration) error { return nil })
}

func newTestPipeline(files *memFileRepo, kbs *memKBRepo, store *memStore, index *memIndex, sink *recordSink) *Pipeline {
	return New(files, kbs, store, index, &stubResolver{client: stubEmbedder{}}, sink,
		WithBatcherOptions(noDelay()))
}

func fixtures() (*memFileRepo, *memKBRepo, *memStore, *memIndex, *recordSink) {
	files := &memFileRepo{files: map[string]*model.File{
		"f1": {ID: "f1", Name: "notes.txt", StoreKey: "blob-1", KnowledgeBaseID: "kb1", Status: model.IngestStatusPending},
	}}
	kbs := &memKBRepo{kb: &model.KnowledgeBase{ID: "kb1", EmbeddingModel: "text-embedding-3-small", VectorSize: 1536}}
	store := &memStore{blobs: map[string][]byte{
		"blob-1": []byte("first paragraph\n\nsecond paragraph\n\nthird paragraph"),
	}}
	return files, kbs, store, newMemIndex(), &recordSink{}
}

func TestIngestHappyPath(t *testing.T) {
	files, kbs, store, index, sink := fixtures()
	pipeline := newTestPipeline(files, kbs, store, index, sink)

	err := pipeline.Ingest(context.Background(), "f1")
	require.NoError(t, err)
	require.Equal(t, model.IngestStatusIndexed, files.files["f1"].Status)
	require.Equal(t, []model.IngestStatus{
		model.IngestStatusProcessing,
		model.IngestStatusIndexing,
		model.IngestStatusIndexed,
	}, files.statuses)

	collection := "knowledge_base_kb1"
	require.Contains(t, index.collections, collection)
	require.EqualValues(t, 1536, index.collections[collection])
	require.Equal(t, []string{collection + "/f1"}, index.deletedFor)
	require.NotEmpty(t, index.points[collection])
	for i, point := range index.points[collection] {
		require.NotEmpty(t, point.ID)
		require.Equal(t, "f1", point.Payload["file_id"])
		require.Equal(t, "notes.txt", point.Payload["file_name"])
		require.Equal(t, i, point.Payload["chunk_index"])
		require.NotEmpty(t, point.Payload["content"])
	}

	last := sink.events[len(sink.events)-1]
	require.Equal(t, model.IngestStatusIndexed, last.Status)
	require.Equal(t, 100, last.Progress)
}

func TestIngestMissingFile(t *testing.T) {
	files, kbs, store, index, sink := fixtures()
	pipeline := newTestPipeline(files, kbs, store, index, sink)

	err := pipeline.Ingest(context.Background(), "missing")
	require.True(t, errors.IsNotFound(err))
}

func TestIngestMissingKnowledgeBaseMarksError(t *testing.T) {
	files, kbs, store, index, sink := fixtures()
	kbs.kb = nil
	pipeline := newTestPipeline(files, kbs, store, index, sink)

	err := pipeline.Ingest(context.Background(), "f1")
	require.True(t, errors.IsNotFound(err))
	require.Equal(t, model.IngestStatusError, files.files["f1"].Status)

	require.NotEmpty(t, sink.events)
	last := sink.events[len(sink.events)-1]
	require.Equal(t, model.IngestStatusError, last.Status)
	require.Contains(t, last.Message, "kb1")
}

func TestIngestUpsertFailureMarksError(t *testing.T) {
	files, kbs, store, index, sink := fixtures()
	index.upsertErr = fmt.Errorf("index unavailable")
	pipeline := newTestPipeline(files, kbs, store, index, sink)

	err := pipeline.Ingest(context.Background(), "f1")
	require.Error(t, err)
	require.Equal(t, model.IngestStatusError, files.files["f1"].Status)

	last := sink.events[len(sink.events)-1]
	require.Equal(t, model.IngestStatusError, last.Status)
	require.Contains(t, last.Message, "index unavailable")
}

func TestIngestEmptyContent(t *testing.T) {
	files, kbs, store, index, sink := fixtures()
	store.blobs["blob-1"] = []byte("")
	pipeline := newTestPipeline(files, kbs, store, index, sink)

	err := pipeline.Ingest(context.Background(), "f1")
	require.Error(t, err)
	require.Equal(t, model.IngestStatusError, files.files["f1"].Status)
}

type blockingStore struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	close(s.entered)
	<-s.release
	return io.NopCloser(bytes.NewReader([]byte("hello world"))), nil
}

func TestIngestConcurrentSameFileConflicts(t *testing.T) {
	files, kbs, _, index, sink := fixtures()
	store := &blockingStore{entered: make(chan struct{}), release: make(chan struct{})}
	pipeline := New(files, kbs, store, index, &stubResolver{client: stubEmbedder{}}, sink,
		WithBatcherOptions(noDelay()))

	done := make(chan error, 1)
	go func() {
		done <- pipeline.Ingest(context.Background(), "f1")
	}()
	<-store.entered

	err := pipeline.Ingest(context.Background(), "f1")
	require.True(t, errors.IsConflict(err))

	close(store.release)
	require.NoError(t, <-done)
}

func TestExtractMarkdown(t *testing.T) {
	text, err := ExtractText("doc.md", "text/markdown", []byte("# Title\n\nSome *emphasis* here.\n\n```\ncode line\n```\n"))
	require.NoError(t, err)
	require.Contains(t, text, "Title")
	require.Contains(t, text, "Some emphasis here.")
	require.Contains(t, text, "code line")
	require.NotContains(t, text, "#")
	require.NotContains(t, text, "*")
}

func TestExtractBinaryRejected(t *testing.T) {
	_, err := ExtractText("blob.bin", "application/octet-stream", []byte{0xff, 0xfe, 0x00, 0x01})
	require.Error(t, err)
}
