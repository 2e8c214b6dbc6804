package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/todoman/internal/auth"
	"github.com/hitoshi/todoman/internal/config"
	"github.com/hitoshi/todoman/internal/database"
	"github.com/hitoshi/todoman/internal/handler"
	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/repository"
	"github.com/hitoshi/todoman/internal/security"
)

// oauthHTTPTimeout はIdPへのトークン交換・ユーザー情報取得のタイムアウト。
const oauthHTTPTimeout = 10 * time.Second

// openDatabase はプール設定を適用してDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return database.Connect(ctx, cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
}

// tokenStore は設定に応じて選択したリフレッシュトークンストアを保持する。
type tokenStore struct {
	Repo  repository.RefreshTokenRepository
	redis *redis.Client
}

// newTokenStore はREFRESH_TOKEN_STOREに応じたリフレッシュトークンストアを生成する。
// Redisの場合は接続を確認する。
func newTokenStore(cfg *config.Config, db *sql.DB) (*tokenStore, error) {
	switch cfg.RefreshTokenStore {
	case config.RefreshTokenStorePostgres:
		slog.Info("refresh token store selected", slog.String("store", "postgres"))
		return &tokenStore{Repo: repository.NewPostgresRefreshTokenRepo(db)}, nil

	case config.RefreshTokenStoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		slog.Info("refresh token store selected",
			slog.String("store", "redis"),
			slog.String("addr", opts.Addr),
		)
		return &tokenStore{
			Repo:  repository.NewRedisRefreshTokenRepo(client),
			redis: client,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported refresh token store: %q", cfg.RefreshTokenStore)
	}
}

// healthCheckers は/healthで確認する依存先を返す。
func (s *tokenStore) healthCheckers(db *sql.DB) map[string]handler.HealthChecker {
	checkers := map[string]handler.HealthChecker{"database": db}
	if s.redis != nil {
		checkers["redis"] = redisHealthChecker{client: s.redis}
	}
	return checkers
}

// Close はストアが保持する接続を閉じる。
func (s *tokenStore) Close() error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Close()
}

// redisHealthChecker はRedisクライアントをhandler.HealthCheckerに適合させる。
type redisHealthChecker struct {
	client redis.UniversalClient
}

func (c redisHealthChecker) PingContext(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// newOAuthProviders は設定済みのIdPごとにOAuthProviderを生成する。
// エンドポイントは起動時にSSRFガードで検証し、送信にはSSRF防止クライアントを使う。
func newOAuthProviders(cfg *config.Config, guard security.SSRFGuardService) ([]auth.OAuthProvider, error) {
	configs := providerConfigs(cfg)

	client := &http.Client{Timeout: oauthHTTPTimeout}
	if cfg.OAuthSafeHTTPClient {
		client = guard.NewSafeClient(oauthHTTPTimeout)
	}

	providers := make([]auth.OAuthProvider, 0, len(configs))
	for _, pc := range configs {
		for _, endpoint := range []string{pc.Endpoint.AuthURL, pc.Endpoint.TokenURL, pc.UserInfoURL} {
			if err := guard.ValidateURL(endpoint); err != nil {
				return nil, fmt.Errorf("invalid %s oauth endpoint: %w", pc.Provider, err)
			}
		}
		pc.HTTPClient = client
		providers = append(providers, auth.NewOAuth2Provider(pc))
		slog.Info("oauth provider enabled", slog.String("provider", string(pc.Provider)))
	}

	if len(providers) == 0 {
		slog.Warn("no oauth provider is configured; social login is disabled")
	}
	return providers, nil
}

// providerConfigs は設定済みのIdPのProviderConfigを返す。
func providerConfigs(cfg *config.Config) []auth.ProviderConfig {
	var configs []auth.ProviderConfig
	if cfg.GoogleEnabled() {
		configs = append(configs, auth.GoogleProviderConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL))
	}
	if cfg.KakaoEnabled() {
		configs = append(configs, auth.KakaoProviderConfig(cfg.KakaoClientID, cfg.KakaoClientSecret, cfg.KakaoRedirectURL))
	}
	return configs
}

// oauthEndpointHosts は設定済みIdPの各エンドポイントのホスト名を重複なく返す。
// SSRFガードの許可ホストとして使う。
func oauthEndpointHosts(cfg *config.Config) []string {
	seen := make(map[string]struct{})
	var hosts []string
	for _, pc := range providerConfigs(cfg) {
		for _, endpoint := range []string{pc.Endpoint.AuthURL, pc.Endpoint.TokenURL, pc.UserInfoURL} {
			u, err := url.Parse(endpoint)
			if err != nil || u.Hostname() == "" {
				continue
			}
			if _, ok := seen[u.Hostname()]; ok {
				continue
			}
			seen[u.Hostname()] = struct{}{}
			hosts = append(hosts, u.Hostname())
		}
	}
	return hosts
}

// newRegistry はアプリケーション用のPrometheusレジストリを生成する。
// Goランタイムとプロセスのメトリクスも登録する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// corsConfig はConfigからCORS設定を組み立てる。
func corsConfig(cfg *config.Config) middleware.CORSConfig {
	return middleware.CORSConfig{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   cfg.CORSAllowedMethods,
		AllowedHeaders:   cfg.CORSAllowedHeaders,
		AllowCredentials: cfg.CORSAllowCredentials,
		MaxAge:           cfg.CORSMaxAge,
	}
}
