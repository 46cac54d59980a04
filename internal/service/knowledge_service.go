package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ragdesk/ragdesk/internal/model"
	"github.com/ragdesk/ragdesk/internal/pkg/errors"
	"github.com/ragdesk/ragdesk/internal/repo"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type collectionManager interface {
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	DeleteCollection(ctx context.Context, name string) error
	CollectionExists(ctx context.Context, name string) (bool, error)
}

// KnowledgeService owns the knowledge base lifecycle, keeping the
// relational record and the vector collection in step.
type KnowledgeService struct {
	kbs   *repo.KnowledgeBaseRepo
	index collectionManager
}

func NewKnowledgeService(kbs *repo.KnowledgeBaseRepo, index collectionManager) *KnowledgeService {
	return &KnowledgeService{kbs: kbs, index: index}
}

func (s *KnowledgeService) Create(ctx context.Context, name, description, embeddingModel string) (*model.KnowledgeBase, error) {
	name = strings.TrimSpace(name)
	embeddingModel = strings.TrimSpace(embeddingModel)
	if name == "" {
		return nil, fmt.Errorf("knowledge base name is required: %w", errors.ErrInvalid)
	}
	if embeddingModel == "" {
		return nil, fmt.Errorf("embedding model is required: %w", errors.ErrInvalid)
	}
	kb := &model.KnowledgeBase{
		ID:             uuid.NewString(),
		Name:           name,
		Description:    strings.TrimSpace(description),
		EmbeddingModel: embeddingModel,
		VectorSize:     VectorSizeForModel(embeddingModel),
		Ctime:          time.Now().UnixMilli(),
	}
	if err := s.kbs.Create(ctx, kb); err != nil {
		return nil, err
	}
	if err := s.index.CreateCollection(ctx, kb.CollectionName(), uint64(kb.VectorSize)); err != nil {
		// The record stays usable; ingest creates the collection lazily.
		logutil.GetLogger(ctx).Warn("create collection failed, deferring to ingest",
			zap.String("collection", kb.CollectionName()), zap.Error(err))
	}
	logutil.GetLogger(ctx).Info("knowledge base created",
		zap.String("id", kb.ID), zap.String("name", kb.Name),
		zap.String("embedding_model", kb.EmbeddingModel), zap.Int("vector_size", kb.VectorSize))
	return kb, nil
}

func (s *KnowledgeService) Get(ctx context.Context, id string) (*model.KnowledgeBase, error) {
	return s.kbs.Get(ctx, id)
}

func (s *KnowledgeService) List(ctx context.Context) ([]model.KnowledgeBase, error) {
	return s.kbs.List(ctx)
}

// Delete removes the knowledge base, its file records and its vector
// collection. A missing collection is not an error.
func (s *KnowledgeService) Delete(ctx context.Context, id string) error {
	kb, err := s.kbs.Get(ctx, id)
	if err != nil {
		return err
	}
	exists, err := s.index.CollectionExists(ctx, kb.CollectionName())
	if err != nil {
		return err
	}
	if exists {
		if err := s.index.DeleteCollection(ctx, kb.CollectionName()); err != nil {
			return fmt.Errorf("delete collection %s: %w", kb.CollectionName(), err)
		}
	}
	if err := s.kbs.Delete(ctx, id); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("knowledge base deleted", zap.String("id", id))
	return nil
}
