package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ragdesk/ragdesk/internal/filestore"
	"github.com/ragdesk/ragdesk/internal/model"
	"github.com/ragdesk/ragdesk/internal/pkg/errors"
	"github.com/ragdesk/ragdesk/internal/repo"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type ingester interface {
	Ingest(ctx context.Context, fileID string) error
}

type pointDeleter interface {
	DeletePointsByFile(ctx context.Context, collection string, fileID string) error
	CollectionExists(ctx context.Context, name string) (bool, error)
}

// FileService handles document upload, re-processing and removal for a
// knowledge base.
type FileService struct {
	files    *repo.FileRepo
	kbs      *repo.KnowledgeBaseRepo
	store    filestore.Store
	index    pointDeleter
	pipeline ingester
}

func NewFileService(files *repo.FileRepo, kbs *repo.KnowledgeBaseRepo,
	store filestore.Store, index pointDeleter, pipeline ingester) *FileService {
	return &FileService{files: files, kbs: kbs, store: store, index: index, pipeline: pipeline}
}

// Upload stores the document and records it as PENDING. Processing is a
// separate step so uploads return fast.
func (s *FileService) Upload(ctx context.Context, kbID, name, mimeType string, r io.Reader, size int64) (*model.File, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("file name is required: %w", errors.ErrInvalid)
	}
	if _, err := s.kbs.Get(ctx, kbID); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	storeKey := id + strings.ToLower(filepath.Ext(name))
	if err := s.store.Save(ctx, storeKey, r, size); err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}
	now := time.Now().UnixMilli()
	file := &model.File{
		ID:              id,
		Name:            name,
		MimeType:        mimeType,
		StoreKey:        storeKey,
		KnowledgeBaseID: kbID,
		Status:          model.IngestStatusPending,
		Ctime:           now,
		Mtime:           now,
	}
	if err := s.files.Create(ctx, file); err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("file uploaded",
		zap.String("file_id", file.ID), zap.String("name", file.Name),
		zap.String("knowledge_base_id", kbID), zap.Int64("size", size))
	return file, nil
}

// Process runs the ingestion pipeline for the file.
func (s *FileService) Process(ctx context.Context, fileID string) error {
	return s.pipeline.Ingest(ctx, fileID)
}

func (s *FileService) Get(ctx context.Context, fileID string) (*model.File, error) {
	return s.files.Get(ctx, fileID)
}

func (s *FileService) ListByKnowledgeBase(ctx context.Context, kbID string) ([]model.File, error) {
	return s.files.ListByKnowledgeBase(ctx, kbID)
}

// Delete removes the file's vectors, its stored blob and its record, in
// that order so a partial failure never orphans vectors.
func (s *FileService) Delete(ctx context.Context, fileID string) error {
	file, err := s.files.Get(ctx, fileID)
	if err != nil {
		return err
	}
	kb, err := s.kbs.Get(ctx, file.KnowledgeBaseID)
	if err != nil {
		return err
	}
	exists, err := s.index.CollectionExists(ctx, kb.CollectionName())
	if err != nil {
		return err
	}
	if exists {
		if err := s.index.DeletePointsByFile(ctx, kb.CollectionName(), file.ID); err != nil {
			return fmt.Errorf("delete vectors: %w", err)
		}
	}
	if err := s.store.Delete(ctx, file.StoreKey); err != nil {
		logutil.GetLogger(ctx).Warn("delete stored blob failed",
			zap.String("file_id", file.ID), zap.String("store_key", file.StoreKey), zap.Error(err))
	}
	if err := s.files.Delete(ctx, file.ID); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("file deleted", zap.String("file_id", file.ID))
	return nil
}
