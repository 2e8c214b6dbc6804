// Package todo はメンバー単位のTodo管理のドメインロジックを提供する。
package todo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
)

// CreateInput はTodo作成の入力値。
// Completedがnilの場合は未完了として作成する。
type CreateInput struct {
	Text      string
	Completed *bool
}

// UpdateInput はTodo更新の入力値。
// CompletedとDisplayOrderはnilの場合に変更しない。
type UpdateInput struct {
	Text         string
	Completed    *bool
	DisplayOrder *int
}

// Service はTodo管理のサービス層。
// すべての操作は呼び出し元のPrincipalからメンバーを解決し、所有者のTodoのみを扱う。
type Service struct {
	members repository.MemberRepository
	todos   repository.TodoRepository
	metrics metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	members repository.MemberRepository,
	todos repository.TodoRepository,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		members: members,
		todos:   todos,
		metrics: collector,
	}
}

// List はフィルタ条件に一致するTodoを返す。
func (s *Service) List(ctx context.Context, principal model.Principal, filter model.TodoFilter) ([]*model.Todo, error) {
	member, err := s.currentMember(ctx, principal)
	if err != nil {
		return nil, err
	}

	todos, err := s.todos.ListByMember(ctx, member.ID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	if todos == nil {
		todos = []*model.Todo{}
	}
	return todos, nil
}

// Get は指定IDのTodoを返す。
func (s *Service) Get(ctx context.Context, principal model.Principal, id int64) (*model.Todo, error) {
	member, err := s.currentMember(ctx, principal)
	if err != nil {
		return nil, err
	}
	return s.ownedTodo(ctx, member, id)
}

// Create はTodoを末尾に追加する。表示順は現在の件数になる。
func (s *Service) Create(ctx context.Context, principal model.Principal, in CreateInput) (*model.Todo, error) {
	member, err := s.currentMember(ctx, principal)
	if err != nil {
		return nil, err
	}

	text, err := s.cleanText(in.Text)
	if err != nil {
		return nil, err
	}

	todo := &model.Todo{MemberID: member.ID, Text: text}
	if in.Completed != nil {
		todo.Completed = *in.Completed
	}
	if err := s.todos.CreateAppended(ctx, todo); err != nil {
		return nil, fmt.Errorf("failed to create todo: %w", err)
	}

	s.metrics.RecordTodoOperation("create")
	return todo, nil
}

// Update は本文を置き換え、指定された完了状態・表示順を反映する。
func (s *Service) Update(ctx context.Context, principal model.Principal, id int64, in UpdateInput) (*model.Todo, error) {
	member, err := s.currentMember(ctx, principal)
	if err != nil {
		return nil, err
	}

	text, err := s.cleanText(in.Text)
	if err != nil {
		return nil, err
	}
	if in.DisplayOrder != nil && *in.DisplayOrder < 0 {
		return nil, model.NewValidationError(map[string]string{
			"displayOrder": "表示順は0以上で指定してください。",
		})
	}

	current, err := s.ownedTodo(ctx, member, id)
	if err != nil {
		return nil, err
	}

	updated := current.WithText(text)
	if in.Completed != nil {
		updated = updated.WithCompleted(*in.Completed)
	}
	if in.DisplayOrder != nil {
		updated = updated.WithDisplayOrder(*in.DisplayOrder)
	}

	if err := s.todos.Update(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to update todo: %w", err)
	}

	s.metrics.RecordTodoOperation("update")
	return &updated, nil
}

// Toggle は完了状態を反転する。
func (s *Service) Toggle(ctx context.Context, principal model.Principal, id int64) (*model.Todo, error) {
	member, err := s.currentMember(ctx, principal)
	if err != nil {
		return nil, err
	}

	current, err := s.ownedTodo(ctx, member, id)
	if err != nil {
		return nil, err
	}

	toggled := current.Toggled()
	if err := s.todos.Update(ctx, &toggled); err != nil {
		return nil, fmt.Errorf("failed to toggle todo: %w", err)
	}

	s.metrics.RecordTodoOperation("toggle")
	return &toggled, nil
}

// Delete は指定IDのTodoを削除する。残りのTodoの表示順は詰めない。
func (s *Service) Delete(ctx context.Context, principal model.Principal, id int64) error {
	member, err := s.currentMember(ctx, principal)
	if err != nil {
		return err
	}

	if _, err := s.ownedTodo(ctx, member, id); err != nil {
		return err
	}

	if err := s.todos.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
	}

	s.metrics.RecordTodoOperation("delete")
	return nil
}

// DeleteCompleted は完了済みのTodoをすべて削除し、削除件数を返す。
func (s *Service) DeleteCompleted(ctx context.Context, principal model.Principal) (int64, error) {
	member, err := s.currentMember(ctx, principal)
	if err != nil {
		return 0, err
	}

	deleted, err := s.todos.DeleteCompletedByMember(ctx, member.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete completed todos: %w", err)
	}

	s.metrics.RecordTodoOperation("delete_completed")
	slog.Info("completed todos deleted",
		slog.Int64("member_id", member.ID),
		slog.Int64("deleted", deleted),
	)
	return deleted, nil
}

// Stats はTodoの件数を集計する。
func (s *Service) Stats(ctx context.Context, principal model.Principal) (model.TodoStats, error) {
	member, err := s.currentMember(ctx, principal)
	if err != nil {
		return model.TodoStats{}, err
	}

	stats, err := s.todos.StatsByMember(ctx, member.ID)
	if err != nil {
		return model.TodoStats{}, fmt.Errorf("failed to aggregate todos: %w", err)
	}
	return stats, nil
}

func (s *Service) currentMember(ctx context.Context, principal model.Principal) (*model.Member, error) {
	if !principal.IsAuthenticated() {
		return nil, model.NewUnauthorizedError()
	}
	member, err := s.members.FindByEmail(ctx, principal.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find member: %w", err)
	}
	if member == nil {
		return nil, model.NewUnauthorizedError()
	}
	return member, nil
}

// ownedTodo はTodoを取得し、メンバーの所有物であることを確認する。
func (s *Service) ownedTodo(ctx context.Context, member *model.Member, id int64) (*model.Todo, error) {
	todo, err := s.todos.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find todo: %w", err)
	}
	if todo == nil {
		return nil, model.NewTodoNotFoundError(id)
	}
	if !todo.OwnedBy(member.ID) {
		slog.Warn("todo ownership violation",
			slog.Int64("member_id", member.ID),
			slog.Int64("todo_id", id),
		)
		return nil, model.NewForbiddenError()
	}
	return todo, nil
}

// cleanText は前後の空白を除いた本文を検証して返す。
// 本文はプレーンテキストとして入力どおり保存し、エスケープは表示側で行う。
func (s *Service) cleanText(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	switch {
	case text == "":
		return "", model.NewValidationError(map[string]string{
			"text": "Todoの内容は必須です。",
		})
	case utf8.RuneCountInString(text) > model.TodoTextMaxLength:
		return "", model.NewValidationError(map[string]string{
			"text": fmt.Sprintf("Todoの内容は%d文字以内で入力してください。", model.TodoTextMaxLength),
		})
	}
	return text, nil
}
