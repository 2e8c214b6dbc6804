// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Role はメンバーの権限種別を表す。
type Role string

const (
	// RoleUser は一般ユーザー権限。
	RoleUser Role = "USER"
	// RoleAdmin は管理者権限。
	RoleAdmin Role = "ADMIN"
)

// Provider はアカウントの認証元を表す。
type Provider string

const (
	// ProviderLocal はメールアドレスとパスワードで登録したアカウント。
	ProviderLocal Provider = "LOCAL"
	// ProviderGoogle はGoogle OAuthで登録・連携したアカウント。
	ProviderGoogle Provider = "GOOGLE"
	// ProviderKakao はKakao OAuthで登録・連携したアカウント。
	ProviderKakao Provider = "KAKAO"
)

// ParseProvider はURLパス等の小文字表記からProviderを解決する。
// 未対応の値の場合はfalseを返す。
func ParseProvider(s string) (Provider, bool) {
	switch Provider(strings.ToUpper(strings.TrimSpace(s))) {
	case ProviderGoogle:
		return ProviderGoogle, true
	case ProviderKakao:
		return ProviderKakao, true
	case ProviderLocal:
		return ProviderLocal, true
	}
	return "", false
}

// Member はサービス利用者のアカウントを表す。
// PasswordHashが空の場合はOAuthのみで作成されたアカウントを意味する。
type Member struct {
	ID           int64
	Email        string
	PasswordHash string
	Nickname     string
	Role         Role
	Provider     Provider
	ProviderID   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword はローカルパスワードが設定済みかを返す。
func (m Member) HasPassword() bool {
	return m.PasswordHash != ""
}

// Authorities はアクセストークンに埋め込む権限一覧を返す。
func (m Member) Authorities() []string {
	role := m.Role
	if role == "" {
		role = RoleUser
	}
	return []string{"ROLE_" + string(role)}
}

// LinkProvider は外部IdPを紐付けた新しいMemberを返す。
// レシーバ自体は変更しない。永続化は呼び出し側が明示的に行う。
func (m Member) LinkProvider(provider Provider, providerID string) Member {
	m.Provider = provider
	m.ProviderID = providerID
	return m
}

// Principal は認証済みの呼び出し元を表す。
// アクセストークンから復元され、各サービス呼び出しに明示的に渡される。
type Principal struct {
	Email       string
	Authorities []string
}

// IsAuthenticated はPrincipalが認証済みの主体を表しているかを返す。
func (p Principal) IsAuthenticated() bool {
	return strings.TrimSpace(p.Email) != ""
}
