package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/chatvec/internal/model"
	"github.com/xxxsen/chatvec/internal/pkg/dbutil"
	appErr "github.com/xxxsen/chatvec/internal/pkg/errors"
)

var failedRequestColumns = []string{
	"id", "feature", "resource_id", "error_type", "error_message", "status_code",
	"retry_count", "next_retry_at", "resolved", "resolved_at", "ctime", "mtime",
}

// FailedRequestRepo is the durable store behind the retry queue.
type FailedRequestRepo struct {
	db *sql.DB
}

func NewFailedRequestRepo(db *sql.DB) *FailedRequestRepo {
	return &FailedRequestRepo{db: db}
}

func (r *FailedRequestRepo) Create(ctx context.Context, req *model.FailedAIRequest) error {
	data := map[string]interface{}{
		"id":            req.ID,
		"feature":       req.Feature,
		"resource_id":   req.ResourceID,
		"error_type":    req.ErrorType,
		"error_message": req.ErrorMessage,
		"status_code":   req.StatusCode,
		"retry_count":   req.RetryCount,
		"next_retry_at": req.NextRetryAt,
		"resolved":      req.Resolved,
		"resolved_at":   req.ResolvedAt,
		"ctime":         req.Ctime,
		"mtime":         req.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("failed_ai_requests", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

// FindUnresolved returns the open record for a feature/resource pair, if any.
// One attempt-chain per distinct failed operation: a second failure of the same
// operation folds into the existing record instead of growing the queue.
func (r *FailedRequestRepo) FindUnresolved(ctx context.Context, feature, resourceID string) (*model.FailedAIRequest, error) {
	where := map[string]interface{}{
		"feature":     feature,
		"resource_id": resourceID,
		"resolved":    false,
	}
	sqlStr, args, err := builder.BuildSelect("failed_ai_requests", where, failedRequestColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	req, err := scanFailedRequest(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

// DueBatch selects up to limit unresolved records whose next_retry_at has
// passed, oldest first. The bound keeps a sweep finite.
func (r *FailedRequestRepo) DueBatch(ctx context.Context, now int64, limit int) ([]model.FailedAIRequest, error) {
	where := map[string]interface{}{
		"resolved":         false,
		"next_retry_at <=": now,
		"_orderby":         "next_retry_at asc",
		"_limit":           []uint{0, uint(limit)},
	}
	sqlStr, args, err := builder.BuildSelect("failed_ai_requests", where, failedRequestColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.FailedAIRequest
	for rows.Next() {
		req, err := scanFailedRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

// ApplyBatch persists the state transitions of one sweep in a single
// transaction. Either every record's update lands or none do.
func (r *FailedRequestRepo) ApplyBatch(ctx context.Context, updates []model.FailedAIRequest) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for i := range updates {
		req := &updates[i]
		where := map[string]interface{}{
			"id": req.ID,
		}
		update := map[string]interface{}{
			"retry_count":   req.RetryCount,
			"next_retry_at": req.NextRetryAt,
			"resolved":      req.Resolved,
			"resolved_at":   req.ResolvedAt,
			"mtime":         req.Mtime,
		}
		sqlStr, args, err := builder.BuildUpdate("failed_ai_requests", where, update)
		if err != nil {
			return err
		}
		sqlStr, args = dbutil.Finalize(sqlStr, args)
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *FailedRequestRepo) CountUnresolved(ctx context.Context) (int64, error) {
	sqlStr, args := dbutil.Finalize("SELECT COUNT(*) FROM failed_ai_requests WHERE resolved=?", []interface{}{false})
	var count int64
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFailedRequest(row rowScanner) (*model.FailedAIRequest, error) {
	var req model.FailedAIRequest
	if err := row.Scan(
		&req.ID,
		&req.Feature,
		&req.ResourceID,
		&req.ErrorType,
		&req.ErrorMessage,
		&req.StatusCode,
		&req.RetryCount,
		&req.NextRetryAt,
		&req.Resolved,
		&req.ResolvedAt,
		&req.Ctime,
		&req.Mtime,
	); err != nil {
		return nil, err
	}
	return &req, nil
}
