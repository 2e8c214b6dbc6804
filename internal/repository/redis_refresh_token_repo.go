package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/todoman/internal/model"
)

const (
	refreshTokenKeyPrefix      = "refreshToken:"
	refreshTokenIndexKeyPrefix = "refreshToken:idx:"
)

// RedisRefreshTokenRepo はRedisを使用するリフレッシュトークンリポジトリ。
//
// キー構成:
//
//	refreshToken:{memberID}  -> トークン値
//	refreshToken:idx:{token} -> memberID
//
// どちらも同じTTLで保存し、有効期限はRedisが管理する。
type RedisRefreshTokenRepo struct {
	client redis.UniversalClient
}

// NewRedisRefreshTokenRepo はRedisRefreshTokenRepoを生成する。
func NewRedisRefreshTokenRepo(client redis.UniversalClient) *RedisRefreshTokenRepo {
	return &RedisRefreshTokenRepo{client: client}
}

func memberTokenKey(memberID int64) string {
	return refreshTokenKeyPrefix + strconv.FormatInt(memberID, 10)
}

func tokenIndexKey(token string) string {
	return refreshTokenIndexKeyPrefix + token
}

// Save はメンバーのトークンを上書き保存する。
// 以前のトークンの逆引きキーは同じトランザクションで削除する。
func (r *RedisRefreshTokenRepo) Save(ctx context.Context, token model.RefreshToken) error {
	key := memberTokenKey(token.MemberID)

	old, err := r.client.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read current refresh token: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if old != "" && old != token.Token {
			pipe.Del(ctx, tokenIndexKey(old))
		}
		pipe.Set(ctx, key, token.Token, token.TTL)
		pipe.Set(ctx, tokenIndexKey(token.Token), token.MemberID, token.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// FindByToken はトークン値で検索する。見つからない・期限切れの場合はnilを返す。
// 逆引きキーが残っていてもメンバーの現行トークンと一致しなければ無効とする。
func (r *RedisRefreshTokenRepo) FindByToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	memberID, err := r.client.Get(ctx, tokenIndexKey(token)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}

	key := memberTokenKey(memberID)
	current, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read current refresh token: %w", err)
	}
	if current != token {
		return nil, nil
	}

	ttl, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh token TTL: %w", err)
	}

	return &model.RefreshToken{
		MemberID: memberID,
		Token:    token,
		TTL:      ttl,
	}, nil
}

// DeleteByMemberID はメンバーのトークンと逆引きキーを削除する。
func (r *RedisRefreshTokenRepo) DeleteByMemberID(ctx context.Context, memberID int64) error {
	key := memberTokenKey(memberID)

	current, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read current refresh token: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key, tokenIndexKey(current))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return nil
}

// compile-time interface check
var _ RefreshTokenRepository = (*RedisRefreshTokenRepo)(nil)
