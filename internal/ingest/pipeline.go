package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/ragdesk/ragdesk/internal/embedding"
	"github.com/ragdesk/ragdesk/internal/events"
	"github.com/ragdesk/ragdesk/internal/llm"
	"github.com/ragdesk/ragdesk/internal/model"
	"github.com/ragdesk/ragdesk/internal/pkg/errors"
	"github.com/ragdesk/ragdesk/internal/pkg/keylock"
	"github.com/ragdesk/ragdesk/internal/vectordb"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// EventFileProgress is the event name the UI subscribes to for ingest
// progress updates.
const EventFileProgress = "file-processing-progress"

// ProgressEvent is the payload of EventFileProgress.
type ProgressEvent struct {
	FileID   string             `json:"fileId"`
	Status   model.IngestStatus `json:"status"`
	Progress int                `json:"progress"`
	Message  string             `json:"message,omitempty"`
}

type fileRepo interface {
	Get(ctx context.Context, id string) (*model.File, error)
	UpdateStatus(ctx context.Context, id string, status model.IngestStatus) error
}

type knowledgeBaseRepo interface {
	Get(ctx context.Context, id string) (*model.KnowledgeBase, error)
}

type blobStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type vectorIndex interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	DeletePointsByFile(ctx context.Context, collection string, fileID string) error
	Upsert(ctx context.Context, collection string, points []vectordb.Point) error
}

type clientResolver interface {
	ClientForModel(model string) (llm.Client, error)
}

type textSplitter interface {
	Split(text string) []string
}

// Pipeline drives one file from PENDING to INDEXED: load, extract, chunk,
// embed, upsert. Each step failure flips the file to ERROR; a file already
// being ingested is rejected instead of queued.
type Pipeline struct {
	files       fileRepo
	kbs         knowledgeBaseRepo
	store       blobStore
	index       vectorIndex
	resolver    clientResolver
	splitter    textSplitter
	sink        events.Sink
	locks       *keylock.KeyLock
	batcherOpts []embedding.Option
}

type Option func(*Pipeline)

// WithBatcherOptions tunes the embedding batcher, mainly for tests.
func WithBatcherOptions(opts ...embedding.Option) Option {
	return func(p *Pipeline) {
		p.batcherOpts = append(p.batcherOpts, opts...)
	}
}

func WithSplitter(splitter textSplitter) Option {
	return func(p *Pipeline) {
		if splitter != nil {
			p.splitter = splitter
		}
	}
}

func New(files fileRepo, kbs knowledgeBaseRepo, store blobStore, index vectorIndex,
	resolver clientResolver, sink events.Sink, opts ...Option) *Pipeline {
	p := &Pipeline{
		files:    files,
		kbs:      kbs,
		store:    store,
		index:    index,
		resolver: resolver,
		sink:     sink,
		locks:    keylock.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.splitter == nil {
		p.splitter = newDefaultSplitter()
	}
	return p
}

// Ingest processes one file end to end. Only one ingest per file id runs
// at a time; a concurrent call fails fast with ErrConflict.
func (p *Pipeline) Ingest(ctx context.Context, fileID string) error {
	if !p.locks.TryLock(fileID) {
		return fmt.Errorf("file %s is already being processed: %w", fileID, errors.ErrConflict)
	}
	defer p.locks.Unlock(fileID)

	file, err := p.files.Get(ctx, fileID)
	if err != nil {
		return err
	}
	// Once the file record is resolvable, every failure must land the file
	// in ERROR, the knowledge-base lookup included.
	kb, err := p.kbs.Get(ctx, file.KnowledgeBaseID)
	if err == nil {
		err = p.run(ctx, file, kb)
	}
	if err != nil {
		logutil.GetLogger(ctx).Error("ingest failed",
			zap.String("file_id", file.ID), zap.String("file_name", file.Name), zap.Error(err))
		if updateErr := p.files.UpdateStatus(ctx, file.ID, model.IngestStatusError); updateErr != nil {
			logutil.GetLogger(ctx).Error("mark file error failed",
				zap.String("file_id", file.ID), zap.Error(updateErr))
		}
		p.emit(file.ID, model.IngestStatusError, 0, err.Error())
		return err
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, file *model.File, kb *model.KnowledgeBase) error {
	if err := p.setStatus(ctx, file.ID, model.IngestStatusProcessing, 0, ""); err != nil {
		return err
	}

	reader, err := p.store.Open(ctx, file.StoreKey)
	if err != nil {
		return fmt.Errorf("open stored file: %w", err)
	}
	data, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		return fmt.Errorf("read stored file: %w", err)
	}

	text, err := ExtractText(file.Name, file.MimeType, data)
	if err != nil {
		return err
	}
	p.emit(file.ID, model.IngestStatusProcessing, 30, "")

	chunks := p.splitter.Split(text)
	if len(chunks) == 0 {
		return fmt.Errorf("no text content extracted from %s", file.Name)
	}
	p.emit(file.ID, model.IngestStatusProcessing, 50, "")

	client, err := p.resolver.ClientForModel(kb.EmbeddingModel)
	if err != nil {
		return err
	}
	batcher := embedding.NewBatcher(client, p.batcherOpts...)
	vectors, err := batcher.EmbedAll(ctx, chunks, kb.EmbeddingModel, func(done, total int) {
		p.emit(file.ID, model.IngestStatusProcessing, 50+done*30/total, "")
	})
	if err != nil {
		return err
	}

	if err := p.setStatus(ctx, file.ID, model.IngestStatusIndexing, 80, ""); err != nil {
		return err
	}
	collection := kb.CollectionName()
	exists, err := p.index.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if !exists {
		if err := p.index.CreateCollection(ctx, collection, uint64(kb.VectorSize)); err != nil {
			return fmt.Errorf("create collection %s: %w", collection, err)
		}
	}
	// Re-ingests must not leave stale chunks behind.
	if err := p.index.DeletePointsByFile(ctx, collection, file.ID); err != nil {
		return fmt.Errorf("delete stale points: %w", err)
	}

	points := make([]vectordb.Point, 0, len(chunks))
	for i, chunk := range chunks {
		points = append(points, vectordb.Point{
			ID:     uuid.NewString(),
			Vector: vectors[i],
			Payload: map[string]interface{}{
				"content":     chunk,
				"file_id":     file.ID,
				"file_name":   file.Name,
				"chunk_index": i,
			},
		})
	}
	if err := p.index.Upsert(ctx, collection, points); err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}

	if err := p.setStatus(ctx, file.ID, model.IngestStatusIndexed, 100, ""); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("file indexed",
		zap.String("file_id", file.ID), zap.String("file_name", file.Name),
		zap.String("collection", collection), zap.Int("chunks", len(chunks)))
	return nil
}

func (p *Pipeline) setStatus(ctx context.Context, fileID string, status model.IngestStatus, progress int, message string) error {
	if err := p.files.UpdateStatus(ctx, fileID, status); err != nil {
		return err
	}
	p.emit(fileID, status, progress, message)
	return nil
}

func (p *Pipeline) emit(fileID string, status model.IngestStatus, progress int, message string) {
	if p.sink == nil {
		return
	}
	p.sink.Emit(EventFileProgress, ProgressEvent{
		FileID:   fileID,
		Status:   status,
		Progress: progress,
		Message:  message,
	})
}
