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

var knowledgeBaseFields = []string{"id", "name", "description", "embedding_model", "vector_size", "ctime"}

type KnowledgeBaseRepo struct {
	db *sqlx.DB
}

func NewKnowledgeBaseRepo(db *sqlx.DB) *KnowledgeBaseRepo {
	return &KnowledgeBaseRepo{db: db}
}

func (r *KnowledgeBaseRepo) Create(ctx context.Context, kb *model.KnowledgeBase) error {
	data := map[string]interface{}{
		"id":              kb.ID,
		"name":            kb.Name,
		"description":     kb.Description,
		"embedding_model": kb.EmbeddingModel,
		"vector_size":     kb.VectorSize,
		"ctime":           kb.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("knowledge_bases", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(sqlStr), args...)
	return err
}

func (r *KnowledgeBaseRepo) Get(ctx context.Context, id string) (*model.KnowledgeBase, error) {
	where := map[string]interface{}{"id": id}
	sqlStr, args, err := builder.BuildSelect("knowledge_bases", where, knowledgeBaseFields)
	if err != nil {
		return nil, err
	}
	var kb model.KnowledgeBase
	if err := r.db.GetContext(ctx, &kb, r.db.Rebind(sqlStr), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("knowledge base %s: %w", id, pkgerrors.ErrNotFound)
		}
		return nil, err
	}
	return &kb, nil
}

func (r *KnowledgeBaseRepo) List(ctx context.Context) ([]model.KnowledgeBase, error) {
	where := map[string]interface{}{"_orderby": "ctime desc"}
	sqlStr, args, err := builder.BuildSelect("knowledge_bases", where, knowledgeBaseFields)
	if err != nil {
		return nil, err
	}
	var items []model.KnowledgeBase
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(sqlStr), args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *KnowledgeBaseRepo) Delete(ctx context.Context, id string) error {
	where := map[string]interface{}{"id": id}
	sqlStr, args, err := builder.BuildDelete("knowledge_bases", where)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(sqlStr), args...)
	return err
}
