package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/todoman/internal/model"
)

const todoColumns = `id, member_id, text, completed, display_order, created_at, updated_at`

// PostgresTodoRepo はPostgreSQLを使用したTodoリポジトリ。
type PostgresTodoRepo struct {
	db *sql.DB
}

// NewPostgresTodoRepo はPostgresTodoRepoを生成する。
func NewPostgresTodoRepo(db *sql.DB) *PostgresTodoRepo {
	return &PostgresTodoRepo{db: db}
}

// FindByID は指定IDのTodoを取得する。見つからない場合はnilを返す。
func (r *PostgresTodoRepo) FindByID(ctx context.Context, id int64) (*model.Todo, error) {
	todo := &model.Todo{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+todoColumns+` FROM todos WHERE id = $1`,
		id,
	).Scan(&todo.ID, &todo.MemberID, &todo.Text, &todo.Completed, &todo.DisplayOrder, &todo.CreatedAt, &todo.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find todo by ID: %w", err)
	}
	return todo, nil
}

// ListByMember はメンバーのTodoをフィルタ条件に従って取得する。
func (r *PostgresTodoRepo) ListByMember(ctx context.Context, memberID int64, filter model.TodoFilter) ([]*model.Todo, error) {
	var (
		rows *sql.Rows
		err  error
	)
	switch filter {
	case model.TodoFilterActive, model.TodoFilterCompleted:
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+todoColumns+` FROM todos
			 WHERE member_id = $1 AND completed = $2
			 ORDER BY display_order ASC, id ASC`,
			memberID, filter == model.TodoFilterCompleted,
		)
	default:
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+todoColumns+` FROM todos
			 WHERE member_id = $1
			 ORDER BY display_order ASC, created_at DESC`,
			memberID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	var todos []*model.Todo
	for rows.Next() {
		todo := &model.Todo{}
		if err := rows.Scan(&todo.ID, &todo.MemberID, &todo.Text, &todo.Completed, &todo.DisplayOrder, &todo.CreatedAt, &todo.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, todo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate todos: %w", err)
	}
	return todos, nil
}

// StatsByMember はメンバーのTodo件数を集計する。
func (r *PostgresTodoRepo) StatsByMember(ctx context.Context, memberID int64) (model.TodoStats, error) {
	var total, completed int64
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*), count(*) FILTER (WHERE completed)
		 FROM todos WHERE member_id = $1`,
		memberID,
	).Scan(&total, &completed)
	if err != nil {
		return model.TodoStats{}, fmt.Errorf("failed to count todos: %w", err)
	}
	return model.NewTodoStats(total, completed), nil
}

// CreateAppended はメンバーの現在件数を表示順としてTodoを作成する。
// メンバー行をロックして同一メンバーの同時作成を直列化する。
func (r *PostgresTodoRepo) CreateAppended(ctx context.Context, todo *model.Todo) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM members WHERE id = $1 FOR UPDATE`,
		todo.MemberID,
	).Scan(&locked)
	if err == sql.ErrNoRows {
		return fmt.Errorf("member not found: %d", todo.MemberID)
	}
	if err != nil {
		return fmt.Errorf("failed to lock member: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT count(*) FROM todos WHERE member_id = $1`,
		todo.MemberID,
	).Scan(&count); err != nil {
		return fmt.Errorf("failed to count todos: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO todos (member_id, text, completed, display_order)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		todo.MemberID, todo.Text, todo.Completed, count,
	).Scan(&todo.ID, &todo.CreatedAt, &todo.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert todo: %w", err)
	}
	todo.DisplayOrder = count

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update は本文・完了状態・表示順を更新する。
func (r *PostgresTodoRepo) Update(ctx context.Context, todo *model.Todo) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE todos
		 SET text = $2, completed = $3, display_order = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		todo.ID, todo.Text, todo.Completed, todo.DisplayOrder,
	).Scan(&todo.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("todo not found: %d", todo.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update todo: %w", err)
	}
	return nil
}

// Delete は指定IDのTodoを削除する。
func (r *PostgresTodoRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM todos WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("todo not found: %d", id)
	}
	return nil
}

// DeleteCompletedByMember はメンバーの完了済みTodoを削除し、削除件数を返す。
func (r *PostgresTodoRepo) DeleteCompletedByMember(ctx context.Context, memberID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM todos WHERE member_id = $1 AND completed = true`,
		memberID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete completed todos: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ TodoRepository = (*PostgresTodoRepo)(nil)
