package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/hitoshi/todoman/internal/model"
)

// maxUserInfoSize はユーザー情報レスポンスの最大サイズ。
const maxUserInfoSize = 1 << 20

const (
	defaultGoogleAuthURL     = "https://accounts.google.com/o/oauth2/auth"
	defaultGoogleTokenURL    = "https://oauth2.googleapis.com/token"
	defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

	defaultKakaoAuthURL     = "https://kauth.kakao.com/oauth/authorize"
	defaultKakaoTokenURL    = "https://kauth.kakao.com/oauth/token"
	defaultKakaoUserInfoURL = "https://kapi.kakao.com/v2/user/me"
)

// OAuthProvider は外部IdPによる認可コードフローを抽象化する。
type OAuthProvider interface {
	// Name はIdPの種別を返す。
	Name() model.Provider
	// AuthCodeURL は認可エンドポイントへのリダイレクトURLを生成する。
	AuthCodeURL(state string) string
	// FetchProfile は認可コードをトークンに交換し、ユーザー情報を取得する。
	FetchProfile(ctx context.Context, code string) (*OAuthProfile, error)
}

// ProviderConfig はOAuth2Providerの設定。
type ProviderConfig struct {
	Provider     model.Provider
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Endpoint     oauth2.Endpoint
	UserInfoURL  string

	// HTTPClient はトークン交換とユーザー情報取得に使うクライアント。nilの場合はhttp.DefaultClient。
	HTTPClient *http.Client
}

// GoogleProviderConfig はGoogleの既定エンドポイントを設定したProviderConfigを返す。
func GoogleProviderConfig(clientID, clientSecret, redirectURL string) ProviderConfig {
	return ProviderConfig{
		Provider:     model.ProviderGoogle,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  defaultGoogleAuthURL,
			TokenURL: defaultGoogleTokenURL,
		},
		UserInfoURL: defaultGoogleUserInfoURL,
	}
}

// KakaoProviderConfig はKakaoの既定エンドポイントを設定したProviderConfigを返す。
// Kakaoはクライアント認証情報をPOSTボディで受け取る。
func KakaoProviderConfig(clientID, clientSecret, redirectURL string) ProviderConfig {
	return ProviderConfig{
		Provider:     model.ProviderKakao,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"profile_nickname", "account_email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   defaultKakaoAuthURL,
			TokenURL:  defaultKakaoTokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		UserInfoURL: defaultKakaoUserInfoURL,
	}
}

// OAuth2Provider はgolang.org/x/oauth2による認可コードフローの実装。
type OAuth2Provider struct {
	name        model.Provider
	conf        *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// NewOAuth2Provider はOAuth2Providerを生成する。
func NewOAuth2Provider(cfg ProviderConfig) *OAuth2Provider {
	return &OAuth2Provider{
		name: cfg.Provider,
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     cfg.Endpoint,
		},
		userInfoURL: cfg.UserInfoURL,
		httpClient:  cfg.HTTPClient,
	}
}

// Name はIdPの種別を返す。
func (p *OAuth2Provider) Name() model.Provider {
	return p.name
}

// AuthCodeURL は認可エンドポイントへのリダイレクトURLを生成する。
func (p *OAuth2Provider) AuthCodeURL(state string) string {
	return p.conf.AuthCodeURL(state)
}

// FetchProfile は認可コードをトークンに交換し、ユーザー情報を取得する。
func (p *OAuth2Provider) FetchProfile(ctx context.Context, code string) (*OAuthProfile, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}

	resp, err := p.conf.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	return ExtractProfile(p.name, body)
}

// compile-time interface check
var _ OAuthProvider = (*OAuth2Provider)(nil)
