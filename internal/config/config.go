// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// RefreshTokenStore はリフレッシュトークンの保存先を表す。
type RefreshTokenStore string

const (
	// RefreshTokenStoreRedis はRedisに保存する（TTLはRedisが管理する）。
	RefreshTokenStoreRedis RefreshTokenStore = "redis"
	// RefreshTokenStorePostgres はPostgreSQLのrefresh_tokensテーブルに保存する。
	RefreshTokenStorePostgres RefreshTokenStore = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string        `env:"DATABASE_URL,required,notEmpty"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// Refresh token store
	RefreshTokenStore RefreshTokenStore `env:"REFRESH_TOKEN_STORE" envDefault:"redis"`
	RedisURL          string            `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// JWT
	JWTSecret            string        `env:"JWT_SECRET,required,notEmpty"`
	AccessTokenValidity  time.Duration `env:"JWT_ACCESS_TOKEN_VALIDITY" envDefault:"30m"`
	RefreshTokenValidity time.Duration `env:"JWT_REFRESH_TOKEN_VALIDITY" envDefault:"336h"`

	// OAuth
	GoogleClientID            string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret        string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL         string `env:"GOOGLE_REDIRECT_URL"`
	KakaoClientID             string `env:"KAKAO_CLIENT_ID"`
	KakaoClientSecret         string `env:"KAKAO_CLIENT_SECRET"`
	KakaoRedirectURL          string `env:"KAKAO_REDIRECT_URL"`
	OAuthAuthorizedRedirect   string `env:"OAUTH_AUTHORIZED_REDIRECT_URI" envDefault:"http://localhost:3000/auth/oauth/callback"`
	OAuthRequireVerifiedEmail bool   `env:"OAUTH_REQUIRE_VERIFIED_EMAIL" envDefault:"true"`
	OAuthSafeHTTPClient       bool   `env:"OAUTH_SAFE_HTTP_CLIENT" envDefault:"true"`

	// Rate Limit (req/min)
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitAuth    int `env:"RATE_LIMIT_AUTH" envDefault:"20"`

	// Worker
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`

	// CORS
	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	CORSAllowedMethods   []string `env:"CORS_ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,PUT,PATCH,DELETE,OPTIONS"`
	CORSAllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS" envSeparator:"," envDefault:"Authorization,Content-Type"`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	CORSMaxAge           int      `env:"CORS_MAX_AGE" envDefault:"3600"`

	// Cookie
	CookieSecure bool `env:"-"`
}

// GoogleEnabled はGoogle OAuthの設定が揃っているかを返す。
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

// KakaoEnabled はKakao OAuthの設定が揃っているかを返す。
func (c *Config) KakaoEnabled() bool {
	return c.KakaoClientID != "" && c.KakaoRedirectURL != ""
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合は未設定の変数名をすべて含むエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		var aggErr env.AggregateError
		if errors.As(err, &aggErr) {
			if missing := missingVars(aggErr); len(missing) > 0 {
				return nil, fmt.Errorf("required environment variables are not set: %v", missing)
			}
		}
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	switch cfg.RefreshTokenStore {
	case RefreshTokenStoreRedis, RefreshTokenStorePostgres:
	default:
		return nil, fmt.Errorf("unsupported REFRESH_TOKEN_STORE: %q", cfg.RefreshTokenStore)
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.OAuthAuthorizedRedirect, "https://")

	return cfg, nil
}

// missingVars はAggregateErrorから未設定の必須変数名を取り出す。
func missingVars(aggErr env.AggregateError) []string {
	var missing []string
	for _, e := range aggErr.Errors {
		var notSet env.VarIsNotSetError
		if errors.As(e, &notSet) {
			missing = append(missing, notSet.Key)
			continue
		}
		var empty env.EmptyVarError
		if errors.As(e, &empty) {
			missing = append(missing, empty.Key)
		}
	}
	return missing
}
