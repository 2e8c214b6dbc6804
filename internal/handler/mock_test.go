package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/todoman/internal/auth"
	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/todo"
)

// --- モック定義 ---

type mockAuthService struct {
	signupFn  func(ctx context.Context, in auth.SignupInput) error
	loginFn   func(ctx context.Context, email, password string) (*model.AuthResult, error)
	reissueFn func(ctx context.Context, refreshToken string) (*model.AuthResult, error)
	logoutFn  func(ctx context.Context, principal model.Principal) error
	meFn      func(ctx context.Context, principal model.Principal) (*model.Member, error)
}

func (m *mockAuthService) Signup(ctx context.Context, in auth.SignupInput) error {
	if m.signupFn != nil {
		return m.signupFn(ctx, in)
	}
	return nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.AuthResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) Reissue(ctx context.Context, refreshToken string) (*model.AuthResult, error) {
	if m.reissueFn != nil {
		return m.reissueFn(ctx, refreshToken)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) Logout(ctx context.Context, principal model.Principal) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, principal)
	}
	return nil
}

func (m *mockAuthService) Me(ctx context.Context, principal model.Principal) (*model.Member, error) {
	if m.meFn != nil {
		return m.meFn(ctx, principal)
	}
	return nil, errors.New("not implemented")
}

type mockOAuthService struct {
	authCodeURLFn func(provider model.Provider, state string) (string, error)
	loginFn       func(ctx context.Context, provider model.Provider, code string) (*model.AuthResult, error)
}

func (m *mockOAuthService) AuthCodeURL(provider model.Provider, state string) (string, error) {
	if m.authCodeURLFn != nil {
		return m.authCodeURLFn(provider, state)
	}
	return "", auth.ErrUnsupportedProvider
}

func (m *mockOAuthService) Login(ctx context.Context, provider model.Provider, code string) (*model.AuthResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, provider, code)
	}
	return nil, errors.New("not implemented")
}

type mockTodoService struct {
	listFn            func(ctx context.Context, principal model.Principal, filter model.TodoFilter) ([]*model.Todo, error)
	getFn             func(ctx context.Context, principal model.Principal, id int64) (*model.Todo, error)
	createFn          func(ctx context.Context, principal model.Principal, in todo.CreateInput) (*model.Todo, error)
	updateFn          func(ctx context.Context, principal model.Principal, id int64, in todo.UpdateInput) (*model.Todo, error)
	toggleFn          func(ctx context.Context, principal model.Principal, id int64) (*model.Todo, error)
	deleteFn          func(ctx context.Context, principal model.Principal, id int64) error
	deleteCompletedFn func(ctx context.Context, principal model.Principal) (int64, error)
	statsFn           func(ctx context.Context, principal model.Principal) (model.TodoStats, error)
}

func (m *mockTodoService) List(ctx context.Context, principal model.Principal, filter model.TodoFilter) ([]*model.Todo, error) {
	if m.listFn != nil {
		return m.listFn(ctx, principal, filter)
	}
	return []*model.Todo{}, nil
}

func (m *mockTodoService) Get(ctx context.Context, principal model.Principal, id int64) (*model.Todo, error) {
	if m.getFn != nil {
		return m.getFn(ctx, principal, id)
	}
	return nil, model.NewTodoNotFoundError(id)
}

func (m *mockTodoService) Create(ctx context.Context, principal model.Principal, in todo.CreateInput) (*model.Todo, error) {
	if m.createFn != nil {
		return m.createFn(ctx, principal, in)
	}
	return nil, errors.New("not implemented")
}

func (m *mockTodoService) Update(ctx context.Context, principal model.Principal, id int64, in todo.UpdateInput) (*model.Todo, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, principal, id, in)
	}
	return nil, model.NewTodoNotFoundError(id)
}

func (m *mockTodoService) Toggle(ctx context.Context, principal model.Principal, id int64) (*model.Todo, error) {
	if m.toggleFn != nil {
		return m.toggleFn(ctx, principal, id)
	}
	return nil, model.NewTodoNotFoundError(id)
}

func (m *mockTodoService) Delete(ctx context.Context, principal model.Principal, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, principal, id)
	}
	return nil
}

func (m *mockTodoService) DeleteCompleted(ctx context.Context, principal model.Principal) (int64, error) {
	if m.deleteCompletedFn != nil {
		return m.deleteCompletedFn(ctx, principal)
	}
	return 0, nil
}

func (m *mockTodoService) Stats(ctx context.Context, principal model.Principal) (model.TodoStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, principal)
	}
	return model.TodoStats{}, nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// compile-time interface checks
var (
	_ AuthServiceInterface  = (*mockAuthService)(nil)
	_ OAuthServiceInterface = (*mockOAuthService)(nil)
	_ TodoServiceInterface  = (*mockTodoService)(nil)
	_ HealthChecker         = (*mockHealthChecker)(nil)

	_ AuthServiceInterface  = (*auth.Service)(nil)
	_ OAuthServiceInterface = (*auth.OAuthService)(nil)
	_ TodoServiceInterface  = (*todo.Service)(nil)
)

// --- テストヘルパー ---

// withPrincipal はテスト用にリクエストコンテキストに認証済みPrincipalを注入するヘルパー。
func withPrincipal(r *http.Request, email string) *http.Request {
	ctx := middleware.ContextWithPrincipal(r.Context(), model.Principal{
		Email:       email,
		Authorities: []string{"ROLE_USER"},
	})
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseErrorResponse はレスポンスボディから統一エラーレスポンスをパースするヘルパー。
func parseErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var result middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// decodeBody はレスポンスボディをvにデコードするヘルパー。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}
