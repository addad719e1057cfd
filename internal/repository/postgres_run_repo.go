package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/workflowhub/internal/model"
)

// PostgresWorkflowRunRepo はPostgreSQLを使用したワークフロー実行ログリポジトリ。
type PostgresWorkflowRunRepo struct {
	db *sql.DB
}

// NewPostgresWorkflowRunRepo はPostgresWorkflowRunRepoを生成する。
func NewPostgresWorkflowRunRepo(db *sql.DB) *PostgresWorkflowRunRepo {
	return &PostgresWorkflowRunRepo{db: db}
}

// Insert は実行ログを1件追加する。
func (r *PostgresWorkflowRunRepo) Insert(ctx context.Context, run *model.WorkflowRun) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (id, user_id, workflow_title, created_at)
		 VALUES ($1, $2, $3, $4)`,
		run.ID, run.UserID, run.WorkflowTitle, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow run: %w", err)
	}
	return nil
}

// ListRecent は実行ログを作成日時降順でlimit件返す。
func (r *PostgresWorkflowRunRepo) ListRecent(ctx context.Context, limit int) ([]*model.WorkflowRun, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, workflow_title, created_at
		 FROM workflow_runs
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent workflow runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.WorkflowRun
	for rows.Next() {
		run := &model.WorkflowRun{}
		if err := rows.Scan(&run.ID, &run.UserID, &run.WorkflowTitle, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workflow run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflow runs: %w", err)
	}

	return runs, nil
}

// CountSince は指定日時以降の実行件数を返す。
func (r *PostgresWorkflowRunRepo) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM workflow_runs WHERE created_at >= $1`,
		since,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count workflow runs: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ WorkflowRunRepository = (*PostgresWorkflowRunRepo)(nil)
