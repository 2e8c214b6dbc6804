// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/todoman/internal/model"
)

// ErrDuplicateEmail はメールアドレスのユニーク制約違反を表す。
var ErrDuplicateEmail = errors.New("email already registered")

// MemberRepository はメンバーデータの永続化インターフェース。
type MemberRepository interface {
	// FindByID は指定IDのメンバーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Member, error)

	// FindByEmail はメールアドレスでメンバーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Member, error)

	// ExistsByEmail はメールアドレスが登録済みかを返す。
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// Create はメンバーを作成し、採番されたIDと作成日時をmemberへ設定する。
	// メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, member *model.Member) error

	// Update はニックネーム・パスワード・プロバイダ情報を更新する。
	Update(ctx context.Context, member *model.Member) error
}

// TodoRepository はTodoデータの永続化インターフェース。
type TodoRepository interface {
	// FindByID は指定IDのTodoを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Todo, error)

	// ListByMember はメンバーのTodoをフィルタ条件に従って取得する。
	// allはdisplay_order昇順・created_at降順、それ以外はdisplay_order昇順・id昇順で並べる。
	ListByMember(ctx context.Context, memberID int64, filter model.TodoFilter) ([]*model.Todo, error)

	// StatsByMember はメンバーのTodo件数を集計する。
	StatsByMember(ctx context.Context, memberID int64) (model.TodoStats, error)

	// CreateAppended はメンバーの現在件数を表示順としてTodoを作成する。
	// 件数取得と挿入は同一トランザクションで行い、ID・表示順・作成日時をtodoへ設定する。
	CreateAppended(ctx context.Context, todo *model.Todo) error

	// Update は本文・完了状態・表示順を更新する。
	Update(ctx context.Context, todo *model.Todo) error

	// Delete は指定IDのTodoを削除する。
	Delete(ctx context.Context, id int64) error

	// DeleteCompletedByMember はメンバーの完了済みTodoを削除し、削除件数を返す。
	DeleteCompletedByMember(ctx context.Context, memberID int64) (int64, error)
}

// RefreshTokenRepository はリフレッシュトークンの永続化インターフェース。
// メンバーごとに1件だけ保持し、保存のたびに上書きする。
type RefreshTokenRepository interface {
	// Save はメンバーのトークンを保存する。既存のトークンは無効になる。
	Save(ctx context.Context, token model.RefreshToken) error

	// FindByToken はトークン値で検索する。見つからない・期限切れの場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.RefreshToken, error)

	// DeleteByMemberID はメンバーのトークンを削除する。存在しなくてもエラーにしない。
	DeleteByMemberID(ctx context.Context, memberID int64) error
}

// ExpiredTokenPurger は期限切れトークンを物理削除できるストアのインターフェース。
type ExpiredTokenPurger interface {
	// DeleteExpired は期限切れのトークンを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
