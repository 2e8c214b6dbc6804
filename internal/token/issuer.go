// Package token はアクセストークン（JWT）とリフレッシュトークンの発行・検証を提供する。
package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/todoman/internal/model"
)

// minSecretBytes はHS512に必要な鍵長。
const minSecretBytes = 64

var (
	// ErrTokenExpired は署名は正しいが有効期限切れのトークンを表す。
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid は署名不正・形式不正・未対応アルゴリズムのトークンを表す。
	ErrTokenInvalid = errors.New("token invalid")
	// ErrNoAuthorities は権限クレームを持たないトークンを表す。
	ErrNoAuthorities = errors.New("token has no authorities")
)

// Claims はアクセストークンに埋め込むクレーム。
type Claims struct {
	Auth     string `json:"auth"`
	Nickname string `json:"nickname,omitempty"`
	jwt.RegisteredClaims
}

// Authorities はauthクレームを権限一覧に分解する。
func (c *Claims) Authorities() []string {
	var out []string
	for _, a := range strings.Split(c.Auth, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Option はIssuerの設定を変更する。
type Option func(*Issuer)

// WithClock は現在時刻の取得関数を差し替える（テスト用）。
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// Issuer はトークンの発行と検証を行う。
type Issuer struct {
	key             []byte
	accessValidity  time.Duration
	refreshValidity time.Duration
	now             func() time.Time
}

// NewIssuer はBase64エンコードされた秘密鍵からIssuerを生成する。
// 復号後の鍵長が64バイト未満の場合はエラーを返す。
func NewIssuer(secret string, accessValidity, refreshValidity time.Duration, opts ...Option) (*Issuer, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(secret))
	if err != nil {
		return nil, fmt.Errorf("JWT secret must be base64 encoded: %w", err)
	}
	if len(key) < minSecretBytes {
		return nil, fmt.Errorf("JWT secret must decode to at least %d bytes, got %d", minSecretBytes, len(key))
	}
	if accessValidity <= 0 || refreshValidity <= 0 {
		return nil, fmt.Errorf("token validity must be positive")
	}

	i := &Issuer{
		key:             key,
		accessValidity:  accessValidity,
		refreshValidity: refreshValidity,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// RefreshTokenValidity はリフレッシュトークンの有効期間を返す。
func (i *Issuer) RefreshTokenValidity() time.Duration {
	return i.refreshValidity
}

// IssueAccessToken はHS512で署名したアクセストークンを発行する。
// nicknameが空白のみの場合はnicknameクレームを含めない。
func (i *Issuer) IssueAccessToken(subject string, authorities []string, nickname string) (string, error) {
	now := i.now()
	claims := Claims{
		Auth:     strings.Join(authorities, ","),
		Nickname: strings.TrimSpace(nickname),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessValidity)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// IssueRefreshToken はランダムなUUIDのリフレッシュトークンを発行する。
func (i *Issuer) IssueRefreshToken() string {
	return uuid.New().String()
}

// ParseClaims はトークンを検証してクレームを返す。
// 有効期限切れの場合はクレームとErrTokenExpiredを、それ以外の不正はnilとErrTokenInvalidを返す。
func (i *Issuer) ParseClaims(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, i.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return claims, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}

// Validate はトークンが有効かを返す。無効な場合は理由をログに出力する。
func (i *Issuer) Validate(tokenString string) bool {
	if strings.TrimSpace(tokenString) == "" {
		slog.Info("JWT token is empty")
		return false
	}

	_, err := jwt.ParseWithClaims(tokenString, &Claims{}, i.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err == nil {
		return true
	}

	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenMalformed):
		slog.Info("invalid JWT signature or format", slog.String("error", err.Error()))
	case errors.Is(err, jwt.ErrTokenExpired):
		slog.Info("JWT token expired")
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		slog.Info("unsupported JWT token", slog.String("error", err.Error()))
	default:
		slog.Info("JWT token is invalid", slog.String("error", err.Error()))
	}
	return false
}

// Authenticate はアクセストークンから呼び出し元のPrincipalを復元する。
func (i *Issuer) Authenticate(tokenString string) (model.Principal, error) {
	if !i.Validate(tokenString) {
		return model.Principal{}, ErrTokenInvalid
	}
	claims, err := i.ParseClaims(tokenString)
	if err != nil {
		return model.Principal{}, err
	}

	authorities := claims.Authorities()
	if len(authorities) == 0 {
		return model.Principal{}, ErrNoAuthorities
	}

	return model.Principal{
		Email:       claims.Subject,
		Authorities: authorities,
	}, nil
}

func (i *Issuer) keyFunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return i.key, nil
}
