package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORSConfig はCORSミドルウェアの設定。
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int // 秒
}

// NewCORSMiddleware は指定されたオリジンに対するCORSミドルウェアを返す。
// プリフライトリクエストはrs/corsが応答し、後続のハンドラーには渡さない。
func NewCORSMiddleware(cfg CORSConfig) func(next http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
	return c.Handler
}
