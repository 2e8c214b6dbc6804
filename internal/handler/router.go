package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger        *slog.Logger
	Authenticator middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	CORS          middleware.CORSConfig

	// メトリクス
	Metrics         metrics.MetricsCollector
	MetricsGatherer prometheus.Gatherer

	// ヘルスチェック対象（キーは依存先名）
	HealthCheckers map[string]HealthChecker

	// 認証
	AuthService  AuthServiceInterface
	OAuthService OAuthServiceInterface
	AuthConfig   AuthHandlerConfig

	// Todo
	TodoService TodoServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders → CORS → Metrics
//
// 認証ルート（/api/auth/*、/oauth2/*、/login/oauth2/*）にはIP単位のレート制限を適用し、
// Todoルートとログイン中メンバー向けルートにはBearer認証とメンバー単位のレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.AuthConfig.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORS))
	r.Use(metrics.NewHTTPMiddleware(collector))

	authHandler := NewAuthHandler(deps.AuthService, deps.OAuthService, deps.AuthConfig)
	todoHandler := NewTodoHandler(deps.TodoService)
	healthHandler := NewHealthHandler(deps.HealthCheckers)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 認証不要のルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())

		r.Post("/api/auth/signup", authHandler.Signup)
		r.Post("/api/auth/login", authHandler.Login)
		r.Post("/api/auth/reissue", authHandler.Reissue)

		// ソーシャルログイン（OAuth2認可コードフロー）
		r.Get("/oauth2/authorization/{provider}", authHandler.OAuthLogin)
		r.Get("/login/oauth2/code/{provider}", authHandler.OAuthCallback)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth(Bearer) → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Authenticator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/api/auth/logout", authHandler.Logout)
		r.Get("/api/auth/me", authHandler.Me)

		r.Route("/api/todos", func(r chi.Router) {
			r.Get("/", todoHandler.ListTodos)
			r.Post("/", todoHandler.CreateTodo)
			r.Get("/stats", todoHandler.GetStats)
			r.Delete("/completed", todoHandler.DeleteCompletedTodos)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", todoHandler.GetTodo)
				r.Put("/", todoHandler.UpdateTodo)
				r.Delete("/", todoHandler.DeleteTodo)
				r.Patch("/toggle", todoHandler.ToggleTodo)
			})
		})
	})

	return r
}
