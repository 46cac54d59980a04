package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/ragdesk/ragdesk/internal/model"
	pkgerrors "github.com/ragdesk/ragdesk/internal/pkg/errors"
)

var (
	chatSessionFields = []string{"id", "assistant_id", "title", "ctime"}
	chatMessageFields = []string{"id", "session_id", "role", "content", "ctime"}
)

type ChatRepo struct {
	db *sqlx.DB
}

func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

func (r *ChatRepo) CreateSession(ctx context.Context, session *model.ChatSession) error {
	data := map[string]interface{}{
		"id":           session.ID,
		"assistant_id": session.AssistantID,
		"title":        session.Title,
		"ctime":        session.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("chat_sessions", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(sqlStr), args...)
	return err
}

func (r *ChatRepo) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	where := map[string]interface{}{"id": id}
	sqlStr, args, err := builder.BuildSelect("chat_sessions", where, chatSessionFields)
	if err != nil {
		return nil, err
	}
	var session model.ChatSession
	if err := r.db.GetContext(ctx, &session, r.db.Rebind(sqlStr), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat session %s: %w", id, pkgerrors.ErrNotFound)
		}
		return nil, err
	}
	return &session, nil
}

func (r *ChatRepo) ListSessions(ctx context.Context, assistantID string) ([]model.ChatSession, error) {
	where := map[string]interface{}{"_orderby": "ctime desc"}
	if assistantID != "" {
		where["assistant_id"] = assistantID
	}
	sqlStr, args, err := builder.BuildSelect("chat_sessions", where, chatSessionFields)
	if err != nil {
		return nil, err
	}
	var items []model.ChatSession
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(sqlStr), args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ChatRepo) UpdateSessionTitle(ctx context.Context, id string, title string) error {
	sqlStr, args, err := builder.BuildUpdate("chat_sessions",
		map[string]interface{}{"id": id},
		map[string]interface{}{"title": title})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(sqlStr), args...)
	return err
}

func (r *ChatRepo) DeleteSession(ctx context.Context, id string) error {
	where := map[string]interface{}{"id": id}
	sqlStr, args, err := builder.BuildDelete("chat_sessions", where)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(sqlStr), args...)
	return err
}

func (r *ChatRepo) AddMessage(ctx context.Context, message *model.ChatMessage) error {
	data := map[string]interface{}{
		"id":         message.ID,
		"session_id": message.SessionID,
		"role":       message.Role,
		"content":    message.Content,
		"ctime":      message.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("chat_messages", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(sqlStr), args...)
	return err
}

// ListMessages returns the full history in chronological order.
func (r *ChatRepo) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	where := map[string]interface{}{
		"session_id": sessionID,
		"_orderby":   "ctime asc",
	}
	sqlStr, args, err := builder.BuildSelect("chat_messages", where, chatMessageFields)
	if err != nil {
		return nil, err
	}
	var items []model.ChatMessage
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(sqlStr), args...); err != nil {
		return nil, err
	}
	return items, nil
}

// ListRecentMessages returns up to limit newest messages, oldest first.
func (r *ChatRepo) ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	where := map[string]interface{}{
		"session_id": sessionID,
		"_orderby":   "ctime desc",
		"_limit":     []uint{uint(limit)},
	}
	sqlStr, args, err := builder.BuildSelect("chat_messages", where, chatMessageFields)
	if err != nil {
		return nil, err
	}
	var items []model.ChatMessage
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(sqlStr), args...); err != nil {
		return nil, err
	}
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}
