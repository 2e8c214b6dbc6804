// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/todoman/internal/auth"
	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
)

const (
	oauthStateCookie = "oauth2_state"
	oauthStateMaxAge = 600 // 10分

	signupSucceededText = "会員登録が完了しました。"
	logoutSucceededText = "ログアウトしました。"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Signup(ctx context.Context, in auth.SignupInput) error
	Login(ctx context.Context, email, password string) (*model.AuthResult, error)
	Reissue(ctx context.Context, refreshToken string) (*model.AuthResult, error)
	Logout(ctx context.Context, principal model.Principal) error
	Me(ctx context.Context, principal model.Principal) (*model.Member, error)
}

// OAuthServiceInterface はソーシャルログインに必要なサービスインターフェース。
type OAuthServiceInterface interface {
	AuthCodeURL(provider model.Provider, state string) (string, error)
	Login(ctx context.Context, provider model.Provider, code string) (*model.AuthResult, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// AuthorizedRedirectURI はソーシャルログイン完了後にトークンを渡すフロントエンドのURL。
	AuthorizedRedirectURI string
	CookieSecure          bool
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	oauth   OAuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, oauth OAuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		oauth:   oauth,
		config:  config,
	}
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type reissueRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// authResponse はトークン発行結果のAPIレスポンス。
type authResponse struct {
	GrantType    string `json:"grantType"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Nickname     string `json:"nickname"`
	Email        string `json:"email"`
	Role         string `json:"role"`
}

// memberResponse はログイン中メンバーのAPIレスポンス。
type memberResponse struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Role     string `json:"role"`
	Provider string `json:"provider"`
}

// Signup はローカルアカウントを登録する。
// POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	err := h.service.Signup(r.Context(), auth.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		Nickname: req.Nickname,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeText(w, http.StatusOK, signupSucceededText)
}

// Login はメールアドレスとパスワードでログインする。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(result))
}

// Reissue はリフレッシュトークンでトークンの組を再発行する。
// POST /api/auth/reissue
func (h *AuthHandler) Reissue(w http.ResponseWriter, r *http.Request) {
	var req reissueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.service.Reissue(r.Context(), req.RefreshToken)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(result))
}

// Logout はリフレッシュトークンを破棄する。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	if err := h.service.Logout(r.Context(), principal); err != nil {
		handleServiceError(w, err)
		return
	}

	writeText(w, http.StatusOK, logoutSucceededText)
}

// Me は現在のログインメンバー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	member, err := h.service.Me(r.Context(), principal)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, memberResponse{
		ID:       member.ID,
		Email:    member.Email,
		Nickname: member.Nickname,
		Role:     string(member.Role),
		Provider: string(member.Provider),
	})
}

// OAuthLogin はソーシャルログインのフローを開始する。
// GET /oauth2/authorization/{provider}
func (h *AuthHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	provider, ok := model.ParseProvider(name)
	if !ok {
		handleServiceError(w, model.NewProviderNotFoundError(name))
		return
	}

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	authURL, err := h.oauth.AuthCodeURL(provider, state)
	if err != nil {
		if errors.Is(err, auth.ErrUnsupportedProvider) {
			handleServiceError(w, model.NewProviderNotFoundError(name))
			return
		}
		handleServiceError(w, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   oauthStateMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// OAuthCallback はIdPからのコールバックを処理し、結果をフロントエンドへリダイレクトで渡す。
// 失敗した場合はerrorクエリパラメータにメッセージを付けてリダイレクトする。
// GET /login/oauth2/code/{provider}?code=xxx&state=yyy
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// 1. stateの検証（CSRF対策）
	state := query.Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	h.clearStateCookie(w)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		h.redirectWithError(w, r, "不正なリクエストです。もう一度ログインしてください。")
		return
	}

	name := chi.URLParam(r, "provider")
	provider, ok := model.ParseProvider(name)
	if !ok || provider == model.ProviderLocal {
		h.redirectWithError(w, r, "対応していないプロバイダです。")
		return
	}

	// 2. IdP側でのエラー（同意拒否など）
	if idpErr := query.Get("error"); idpErr != "" {
		slog.Warn("oauth provider returned error",
			slog.String("provider", string(provider)),
			slog.String("error", idpErr),
		)
		h.redirectWithError(w, r, "ソーシャルログインがキャンセルされました。")
		return
	}

	// 3. 認可コードの取得
	code := query.Get("code")
	if code == "" {
		h.redirectWithError(w, r, "認可コードがありません。")
		return
	}

	// 4. 認証処理
	result, err := h.oauth.Login(r.Context(), provider, code)
	if err != nil {
		slog.Error("oauth callback failed",
			slog.String("provider", string(provider)),
			slog.String("error", err.Error()),
		)
		h.redirectWithError(w, r, oauthFailureMessage(err))
		return
	}

	// 5. トークンを付けてフロントエンドにリダイレクト
	h.redirectWithQuery(w, r, url.Values{
		"accessToken":  {result.AccessToken},
		"refreshToken": {result.RefreshToken},
		"email":        {result.Email},
		"nickname":     {result.Nickname},
		"role":         {string(result.Role)},
	})
}

func (h *AuthHandler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, message string) {
	h.redirectWithQuery(w, r, url.Values{"error": {message}})
}

// redirectWithQuery はAuthorizedRedirectURIに既存のクエリを保ったままパラメータを付けてリダイレクトする。
func (h *AuthHandler) redirectWithQuery(w http.ResponseWriter, r *http.Request, params url.Values) {
	target, err := url.Parse(h.config.AuthorizedRedirectURI)
	if err != nil {
		slog.Error("invalid authorized redirect uri", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	q := target.Query()
	for key, values := range params {
		for _, v := range values {
			q.Set(key, v)
		}
	}
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusTemporaryRedirect)
}

// oauthFailureMessage はソーシャルログインの失敗理由をフロントエンド向けのメッセージに変換する。
func oauthFailureMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrEmailNotFound):
		return "メールアドレスを取得できませんでした。"
	case errors.Is(err, auth.ErrUnsupportedProvider):
		return "対応していないプロバイダです。"
	default:
		return "ソーシャルログインに失敗しました。"
	}
}

func toAuthResponse(result *model.AuthResult) authResponse {
	return authResponse{
		GrantType:    result.GrantType,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		Nickname:     result.Nickname,
		Email:        result.Email,
		Role:         string(result.Role),
	}
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
