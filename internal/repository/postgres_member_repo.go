package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/todoman/internal/model"
)

// pqUniqueViolation はPostgreSQLのユニーク制約違反コード。
const pqUniqueViolation = "23505"

const memberColumns = `id, email, COALESCE(password, ''), nickname, role, provider, COALESCE(provider_id, ''), created_at, updated_at`

// PostgresMemberRepo はPostgreSQLを使用したメンバーリポジトリ。
type PostgresMemberRepo struct {
	db *sql.DB
}

// NewPostgresMemberRepo はPostgresMemberRepoを生成する。
func NewPostgresMemberRepo(db *sql.DB) *PostgresMemberRepo {
	return &PostgresMemberRepo{db: db}
}

// FindByID は指定IDのメンバーを取得する。見つからない場合はnilを返す。
func (r *PostgresMemberRepo) FindByID(ctx context.Context, id int64) (*model.Member, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1`,
		id,
	)
	member, err := scanMember(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find member by ID: %w", err)
	}
	return member, nil
}

// FindByEmail はメールアドレスでメンバーを検索する。見つからない場合はnilを返す。
func (r *PostgresMemberRepo) FindByEmail(ctx context.Context, email string) (*model.Member, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE email = $1`,
		email,
	)
	member, err := scanMember(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find member by email: %w", err)
	}
	return member, nil
}

// ExistsByEmail はメールアドレスが登録済みかを返す。
func (r *PostgresMemberRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM members WHERE email = $1)`,
		email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check member email: %w", err)
	}
	return exists, nil
}

// Create はメンバーを作成する。
// パスワード・provider_idが空文字列の場合はNULLとして保存する。
func (r *PostgresMemberRepo) Create(ctx context.Context, member *model.Member) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO members (email, password, nickname, role, provider, provider_id)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, NULLIF($6, ''))
		 RETURNING id, created_at, updated_at`,
		member.Email, member.PasswordHash, member.Nickname, member.Role, member.Provider, member.ProviderID,
	).Scan(&member.ID, &member.CreatedAt, &member.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

// Update はニックネーム・パスワード・プロバイダ情報を更新する。
func (r *PostgresMemberRepo) Update(ctx context.Context, member *model.Member) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE members
		 SET password = NULLIF($2, ''), nickname = $3, role = $4, provider = $5,
		     provider_id = NULLIF($6, ''), updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		member.ID, member.PasswordHash, member.Nickname, member.Role, member.Provider, member.ProviderID,
	).Scan(&member.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("member not found: %d", member.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	return nil
}

// scanMember は1行をMemberへ読み込む。行が無い場合はnilを返す。
func scanMember(row *sql.Row) (*model.Member, error) {
	m := &model.Member{}
	err := row.Scan(&m.ID, &m.Email, &m.PasswordHash, &m.Nickname, &m.Role, &m.Provider, &m.ProviderID, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// isUniqueViolation はエラーがユニーク制約違反かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// compile-time interface check
var _ MemberRepository = (*PostgresMemberRepo)(nil)
