package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// healthCheckTimeout は依存先1件あたりの疎通確認のタイムアウト。
const healthCheckTimeout = 2 * time.Second

// HealthChecker は依存先の疎通確認を行う。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// HealthHandler は依存先の状態を返すヘルスチェックハンドラー。
type HealthHandler struct {
	checkers map[string]HealthChecker
}

// NewHealthHandler はHealthHandlerを生成する。checkersのキーはレスポンスに表示する依存先名。
func NewHealthHandler(checkers map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{checkers: checkers}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health は全依存先に疎通確認を行い、1件でも失敗した場合は503を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	statusCode := http.StatusOK

	for name, checker := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := checker.PingContext(ctx)
		cancel()
		if err != nil {
			slog.Warn("health check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			resp.Checks[name] = "unavailable"
			resp.Status = "unavailable"
			statusCode = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	writeJSON(w, statusCode, resp)
}
