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

type turnRunner interface {
	Execute(ctx context.Context, sessionID, userMessage string) error
}

// ChatService manages sessions and hands user turns to the retrieval
// pipeline.
type ChatService struct {
	chats      *repo.ChatRepo
	assistants *repo.AssistantRepo
	pipeline   turnRunner
}

func NewChatService(chats *repo.ChatRepo, assistants *repo.AssistantRepo, pipeline turnRunner) *ChatService {
	return &ChatService{chats: chats, assistants: assistants, pipeline: pipeline}
}

func (s *ChatService) CreateSession(ctx context.Context, assistantID, title string) (*model.ChatSession, error) {
	if _, err := s.assistants.Get(ctx, assistantID); err != nil {
		return nil, err
	}
	session := &model.ChatSession{
		ID:          uuid.NewString(),
		AssistantID: assistantID,
		Title:       strings.TrimSpace(title),
		Ctime:       time.Now().UnixMilli(),
	}
	if err := s.chats.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("chat session created",
		zap.String("session_id", session.ID), zap.String("assistant_id", assistantID))
	return session, nil
}

func (s *ChatService) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	return s.chats.GetSession(ctx, id)
}

func (s *ChatService) ListSessions(ctx context.Context, assistantID string) ([]model.ChatSession, error) {
	return s.chats.ListSessions(ctx, assistantID)
}

func (s *ChatService) RenameSession(ctx context.Context, id, title string) error {
	if _, err := s.chats.GetSession(ctx, id); err != nil {
		return err
	}
	return s.chats.UpdateSessionTitle(ctx, id, strings.TrimSpace(title))
}

func (s *ChatService) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.chats.GetSession(ctx, id); err != nil {
		return err
	}
	return s.chats.DeleteSession(ctx, id)
}

func (s *ChatService) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	if _, err := s.chats.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.chats.ListMessages(ctx, sessionID)
}

// SendMessage runs one retrieval turn. The response streams out through
// the event sink; this returns once the turn is fully persisted.
func (s *ChatService) SendMessage(ctx context.Context, sessionID, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return fmt.Errorf("message is required: %w", errors.ErrInvalid)
	}
	return s.pipeline.Execute(ctx, sessionID, message)
}
