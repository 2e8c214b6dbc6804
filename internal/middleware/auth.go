// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/todoman/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// principalContextKey はリクエストコンテキストにPrincipalを格納するためのキー。
	principalContextKey = contextKey("principal")
	// principalHolderContextKey はロギングミドルウェアのホルダーを格納するためのキー。
	principalHolderContextKey = contextKey("principal_holder")
)

// principalHolder は下流で認証されたPrincipalを外側のミドルウェアへ伝える。
type principalHolder struct {
	email string
}

func contextWithPrincipalHolder(ctx context.Context, h *principalHolder) context.Context {
	return context.WithValue(ctx, principalHolderContextKey, h)
}

// principalEmail はコンテキストのPrincipal、無ければホルダーに記録されたメールアドレスを返す。
func principalEmail(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.Email
	}
	if h, ok := ctx.Value(principalHolderContextKey).(*principalHolder); ok {
		return h.email
	}
	return ""
}

// Authenticator はアクセストークンから呼び出し元を復元する。
// token.Issuerが実装する。
type Authenticator interface {
	Authenticate(tokenString string) (model.Principal, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 認証済みのPrincipalをリクエストコンテキストに注入するミドルウェアを返す。
// トークンが無い・無効な場合は401を返す。
func NewAuthMiddleware(authn Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := BearerToken(r)
			if tokenString == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			principal, err := authn.Authenticate(tokenString)
			if err != nil || !principal.IsAuthenticated() {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。無い場合は空文字列を返す。
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// PrincipalFromContext はリクエストコンテキストからPrincipalを取得する。
// 認証ミドルウェアを通過していない場合はfalseを返す。
func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(model.Principal)
	if !ok || !principal.IsAuthenticated() {
		return model.Principal{}, false
	}
	return principal, true
}

// ContextWithPrincipal はコンテキストにPrincipalを注入する。
func ContextWithPrincipal(ctx context.Context, principal model.Principal) context.Context {
	if h, ok := ctx.Value(principalHolderContextKey).(*principalHolder); ok {
		h.email = principal.Email
	}
	return context.WithValue(ctx, principalContextKey, principal)
}
