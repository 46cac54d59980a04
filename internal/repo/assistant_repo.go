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

var assistantFields = []string{"id", "name", "model", "system_prompt", "temperature", "max_tokens", "ctime"}

type AssistantRepo struct {
	db *sqlx.DB
}

func NewAssistantRepo(db *sqlx.DB) *AssistantRepo {
	return &AssistantRepo{db: db}
}

func (r *AssistantRepo) Create(ctx context.Context, assistant *model.Assistant) error {
	data := map[string]interface{}{
		"id":            assistant.ID,
		"name":          assistant.Name,
		"model":         assistant.Model,
		"system_prompt": assistant.SystemPrompt,
		"temperature":   assistant.Temperature,
		"max_tokens":    assistant.MaxTokens,
		"ctime":         assistant.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("assistants", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(sqlStr), args...)
	return err
}

func (r *AssistantRepo) Get(ctx context.Context, id string) (*model.Assistant, error) {
	where := map[string]interface{}{"id": id}
	sqlStr, args, err := builder.BuildSelect("assistants", where, assistantFields)
	if err != nil {
		return nil, err
	}
	var assistant model.Assistant
	if err := r.db.GetContext(ctx, &assistant, r.db.Rebind(sqlStr), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("assistant %s: %w", id, pkgerrors.ErrNotFound)
		}
		return nil, err
	}
	return &assistant, nil
}

func (r *AssistantRepo) List(ctx context.Context) ([]model.Assistant, error) {
	where := map[string]interface{}{"_orderby": "ctime desc"}
	sqlStr, args, err := builder.BuildSelect("assistants", where, assistantFields)
	if err != nil {
		return nil, err
	}
	var items []model.Assistant
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(sqlStr), args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *AssistantRepo) Delete(ctx context.Context, id string) error {
	where := map[string]interface{}{"id": id}
	sqlStr, args, err := builder.BuildDelete("assistants", where)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(sqlStr), args...)
	return err
}

// SetKnowledgeBases replaces the assistant's knowledge base links.
func (r *AssistantRepo) SetKnowledgeBases(ctx context.Context, assistantID string, kbIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	deleteSQL, deleteArgs, err := builder.BuildDelete("assistant_knowledge_bases",
		map[string]interface{}{"assistant_id": assistantID})
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(deleteSQL), deleteArgs...); err != nil {
		return err
	}
	if len(kbIDs) > 0 {
		rows := make([]map[string]interface{}, 0, len(kbIDs))
		for _, kbID := range kbIDs {
			rows = append(rows, map[string]interface{}{
				"assistant_id":      assistantID,
				"knowledge_base_id": kbID,
			})
		}
		insertSQL, insertArgs, err := builder.BuildInsert("assistant_knowledge_bases", rows)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(insertSQL), insertArgs...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListKnowledgeBases returns the knowledge bases linked to the assistant,
// oldest link first so the first entry is the primary embedding source.
func (r *AssistantRepo) ListKnowledgeBases(ctx context.Context, assistantID string) ([]model.KnowledgeBase, error) {
	const query = `
		SELECT kb.id, kb.name, kb.description, kb.embedding_model, kb.vector_size, kb.ctime
		FROM knowledge_bases kb
		JOIN assistant_knowledge_bases link ON link.knowledge_base_id = kb.id
		WHERE link.assistant_id = ?
		ORDER BY kb.ctime ASC
	`
	var items []model.KnowledgeBase
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), assistantID); err != nil {
		return nil, err
	}
	return items, nil
}
