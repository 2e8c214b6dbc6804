package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/todoman/internal/model"
)

// PostgresRefreshTokenRepo はPostgreSQLのrefresh_tokensテーブルを使用するリフレッシュトークンリポジトリ。
// 有効期限はexpires_atで管理し、期限切れ行はクリーンアップワーカーが削除する。
type PostgresRefreshTokenRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresRefreshTokenRepo はPostgresRefreshTokenRepoを生成する。
func NewPostgresRefreshTokenRepo(db *sql.DB) *PostgresRefreshTokenRepo {
	return &PostgresRefreshTokenRepo{db: db, now: time.Now}
}

// Save はメンバーのトークンをUPSERTする。
func (r *PostgresRefreshTokenRepo) Save(ctx context.Context, token model.RefreshToken) error {
	expiresAt := r.now().Add(token.TTL)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (member_id, token, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (member_id) DO UPDATE
		 SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at, created_at = now()`,
		token.MemberID, token.Token, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// FindByToken はトークン値で検索する。見つからない・期限切れの場合はnilを返す。
func (r *PostgresRefreshTokenRepo) FindByToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	var (
		memberID  int64
		expiresAt time.Time
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT member_id, expires_at FROM refresh_tokens
		 WHERE token = $1 AND expires_at > now()`,
		token,
	).Scan(&memberID, &expiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}

	return &model.RefreshToken{
		MemberID: memberID,
		Token:    token,
		TTL:      expiresAt.Sub(r.now()),
	}, nil
}

// DeleteByMemberID はメンバーのトークンを削除する。
func (r *PostgresRefreshTokenRepo) DeleteByMemberID(ctx context.Context, memberID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE member_id = $1`,
		memberID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れのトークンを削除し、削除件数を返す。
func (r *PostgresRefreshTokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var (
	_ RefreshTokenRepository = (*PostgresRefreshTokenRepo)(nil)
	_ ExpiredTokenPurger     = (*PostgresRefreshTokenRepo)(nil)
)
