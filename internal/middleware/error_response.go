package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/todoman/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Status    int               `json:"status"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors"`
	Timestamp string            `json:"timestamp"`
}

// now はタイムスタンプの取得関数（テストで差し替える）。
var now = time.Now

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// フィールドエラーが無い場合errorsはnullになる。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	body := ErrorResponseBody{
		Status:    statusCode,
		Message:   apiErr.Message,
		Timestamp: now().Format(time.RFC3339),
	}
	if len(apiErr.Fields) > 0 {
		body.Errors = apiErr.Fields
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode error response", slog.String("error", err.Error()))
	}
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "内部エラーが発生しました。",
	})
}
