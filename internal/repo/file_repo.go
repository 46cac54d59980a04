package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/ragdesk/ragdesk/internal/model"
	pkgerrors "github.com/ragdesk/ragdesk/internal/pkg/errors"
)

var fileFields = []string{"id", "name", "mime_type", "store_key", "knowledge_base_id", "status", "ctime", "mtime"}

type FileRepo struct {
	db *sqlx.DB
}

func NewFileRepo(db *sqlx.DB) *FileRepo {
	return &FileRepo{db: db}
}

func (r *FileRepo) Create(ctx context.Context, file *model.File) error {
	data := map[string]interface{}{
		"id":                file.ID,
		"name":              file.Name,
		"mime_type":         file.MimeType,
		"store_key":         file.StoreKey,
		"knowledge_base_id": file.KnowledgeBaseID,
		"status":            file.Status,
		"ctime":             file.Ctime,
		"mtime":             file.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("files", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(sqlStr), args...)
	return err
}

func (r *FileRepo) Get(ctx context.Context, id string) (*model.File, error) {
	where := map[string]interface{}{"id": id}
	sqlStr, args, err := builder.BuildSelect("files", where, fileFields)
	if err != nil {
		return nil, err
	}
	var file model.File
	if err := r.db.GetContext(ctx, &file, r.db.Rebind(sqlStr), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("file %s: %w", id, pkgerrors.ErrNotFound)
		}
		return nil, err
	}
	return &file, nil
}

func (r *FileRepo) ListByKnowledgeBase(ctx context.Context, kbID string) ([]model.File, error) {
	where := map[string]interface{}{
		"knowledge_base_id": kbID,
		"_orderby":          "ctime desc",
	}
	sqlStr, args, err := builder.BuildSelect("files", where, fileFields)
	if err != nil {
		return nil, err
	}
	var items []model.File
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(sqlStr), args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *FileRepo) ListByStatus(ctx context.Context, status model.IngestStatus, limit int) ([]model.File, error) {
	where := map[string]interface{}{
		"status":   status,
		"_orderby": "ctime asc",
		"_limit":   []uint{uint(limit)},
	}
	sqlStr, args, err := builder.BuildSelect("files", where, fileFields)
	if err != nil {
		return nil, err
	}
	var items []model.File
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(sqlStr), args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *FileRepo) UpdateStatus(ctx context.Context, id string, status model.IngestStatus) error {
	where := map[string]interface{}{"id": id}
	update := map[string]interface{}{
		"status": status,
		"mtime":  time.Now().UnixMilli(),
	}
	sqlStr, args, err := builder.BuildUpdate("files", where, update)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(sqlStr), args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("file %s: %w", id, pkgerrors.ErrNotFound)
	}
	return nil
}

func (r *FileRepo) Delete(ctx context.Context, id string) error {
	where := map[string]interface{}{"id": id}
	sqlStr, args, err := builder.BuildDelete("files", where)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(sqlStr), args...)
	return err
}
