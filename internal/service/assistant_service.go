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

// AssistantService manages assistants and their knowledge base links.
type AssistantService struct {
	assistants *repo.AssistantRepo
	kbs        *repo.KnowledgeBaseRepo
}

func NewAssistantService(assistants *repo.AssistantRepo, kbs *repo.KnowledgeBaseRepo) *AssistantService {
	return &AssistantService{assistants: assistants, kbs: kbs}
}

type CreateAssistantArgs struct {
	Name             string
	Model            string
	SystemPrompt     string
	Temperature      float64
	MaxTokens        int
	KnowledgeBaseIDs []string
}

func (s *AssistantService) Create(ctx context.Context, args CreateAssistantArgs) (*model.Assistant, error) {
	args.Name = strings.TrimSpace(args.Name)
	args.Model = strings.TrimSpace(args.Model)
	if args.Name == "" {
		return nil, fmt.Errorf("assistant name is required: %w", errors.ErrInvalid)
	}
	if args.Model == "" {
		return nil, fmt.Errorf("assistant model is required: %w", errors.ErrInvalid)
	}
	for _, kbID := range args.KnowledgeBaseIDs {
		if _, err := s.kbs.Get(ctx, kbID); err != nil {
			return nil, err
		}
	}
	assistant := &model.Assistant{
		ID:           uuid.NewString(),
		Name:         args.Name,
		Model:        args.Model,
		SystemPrompt: args.SystemPrompt,
		Temperature:  args.Temperature,
		MaxTokens:    args.MaxTokens,
		Ctime:        time.Now().UnixMilli(),
	}
	if err := s.assistants.Create(ctx, assistant); err != nil {
		return nil, err
	}
	if len(args.KnowledgeBaseIDs) > 0 {
		if err := s.assistants.SetKnowledgeBases(ctx, assistant.ID, args.KnowledgeBaseIDs); err != nil {
			return nil, err
		}
	}
	logutil.GetLogger(ctx).Info("assistant created",
		zap.String("id", assistant.ID), zap.String("name", assistant.Name),
		zap.String("model", assistant.Model), zap.Int("knowledge_bases", len(args.KnowledgeBaseIDs)))
	return assistant, nil
}

func (s *AssistantService) Get(ctx context.Context, id string) (*model.Assistant, error) {
	return s.assistants.Get(ctx, id)
}

func (s *AssistantService) List(ctx context.Context) ([]model.Assistant, error) {
	return s.assistants.List(ctx)
}

func (s *AssistantService) Delete(ctx context.Context, id string) error {
	if _, err := s.assistants.Get(ctx, id); err != nil {
		return err
	}
	return s.assistants.Delete(ctx, id)
}

func (s *AssistantService) SetKnowledgeBases(ctx context.Context, assistantID string, kbIDs []string) error {
	if _, err := s.assistants.Get(ctx, assistantID); err != nil {
		return err
	}
	for _, kbID := range kbIDs {
		if _, err := s.kbs.Get(ctx, kbID); err != nil {
			return err
		}
	}
	return s.assistants.SetKnowledgeBases(ctx, assistantID, kbIDs)
}

func (s *AssistantService) ListKnowledgeBases(ctx context.Context, assistantID string) ([]model.KnowledgeBase, error) {
	return s.assistants.ListKnowledgeBases(ctx, assistantID)
}
