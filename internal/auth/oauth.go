package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
	"github.com/hitoshi/todoman/internal/security"
)

// ErrUnsupportedProvider は設定されていないIdPが指定されたことを表す。
var ErrUnsupportedProvider = errors.New("unsupported oauth provider")

// OAuthServiceConfig はOAuthServiceの設定。
type OAuthServiceConfig struct {
	// RequireVerifiedEmail がtrueの場合、IdPが検証済みと示さないメールアドレスは無いものとして扱う。
	RequireVerifiedEmail bool

	// NicknameSanitizer はIdPから受け取ったニックネームのHTMLを除去する。nilの場合はそのまま使う。
	NicknameSanitizer security.TextSanitizer
}

// OAuthService は外部IdPによるログインとアカウント連携を提供する。
type OAuthService struct {
	providers map[model.Provider]OAuthProvider
	members   repository.MemberRepository
	tokens    repository.RefreshTokenRepository
	issuer    TokenIssuer
	metrics   metrics.MetricsCollector
	config    OAuthServiceConfig
}

// NewOAuthService はOAuthServiceを生成する。
func NewOAuthService(
	members repository.MemberRepository,
	tokens repository.RefreshTokenRepository,
	issuer TokenIssuer,
	collector metrics.MetricsCollector,
	config OAuthServiceConfig,
	providers ...OAuthProvider,
) *OAuthService {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	m := make(map[model.Provider]OAuthProvider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &OAuthService{
		providers: m,
		members:   members,
		tokens:    tokens,
		issuer:    issuer,
		metrics:   collector,
		config:    config,
	}
}

// AuthCodeURL は指定IdPの認可URLを生成する。
func (s *OAuthService) AuthCodeURL(provider model.Provider, state string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	return p.AuthCodeURL(state), nil
}

// Login は認可コードからプロフィールを取得し、メンバーを解決してトークンを発行する。
//
// メールアドレスが一致するメンバーがいない場合は新規作成する。
// 既存メンバーがLOCALの場合はIdPを連携し、別のIdPに連携済みの場合は変更しない。
func (s *OAuthService) Login(ctx context.Context, provider model.Provider, code string) (*model.AuthResult, error) {
	method := strings.ToLower(string(provider))

	p, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}

	profile, err := p.FetchProfile(ctx, code)
	if err != nil {
		s.metrics.RecordLogin(method, false)
		return nil, fmt.Errorf("failed to fetch %s profile: %w", provider, err)
	}
	if s.config.RequireVerifiedEmail && !profile.EmailVerified {
		s.metrics.RecordLogin(method, false)
		slog.Warn("oauth email is not verified",
			slog.String("provider", string(provider)),
			slog.String("email", MaskEmail(profile.Email)),
		)
		return nil, ErrEmailNotFound
	}

	member, unlinked, err := s.resolveMember(ctx, profile)
	if err != nil {
		s.metrics.RecordLogin(method, false)
		return nil, err
	}

	result, err := issueTokens(ctx, s.issuer, s.tokens, member)
	if err != nil {
		s.metrics.RecordLogin(method, false)
		if unlinked != nil {
			s.revertLink(ctx, unlinked)
		}
		return nil, err
	}

	s.metrics.RecordLogin(method, true)
	slog.Info("oauth login succeeded",
		slog.String("provider", string(provider)),
		slog.String("email", MaskEmail(member.Email)),
	)
	return result, nil
}

// resolveMember はプロフィールのメールアドレスでメンバーを検索し、連携または新規作成する。
// LOCALメンバーに連携した場合は連携前のメンバーも返す。
func (s *OAuthService) resolveMember(ctx context.Context, profile *OAuthProfile) (member, unlinked *model.Member, err error) {
	existing, err := s.members.FindByEmail(ctx, profile.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find member: %w", err)
	}

	if existing != nil {
		if existing.Provider != model.ProviderLocal {
			return existing, nil, nil
		}
		linked := existing.LinkProvider(profile.Provider, profile.ProviderID)
		if err := s.members.Update(ctx, &linked); err != nil {
			return nil, nil, fmt.Errorf("failed to link provider: %w", err)
		}
		slog.Info("linked oauth provider to existing member",
			slog.Int64("member_id", linked.ID),
			slog.String("provider", string(profile.Provider)),
		)
		return &linked, existing, nil
	}

	created, err := s.createMember(ctx, profile)
	return created, nil, err
}

// revertLink はトークン発行に失敗したログインで行った連携を元に戻す。
// メンバー更新とトークン保存は同一トランザクションではないため、失敗時はここで補償する。
func (s *OAuthService) revertLink(ctx context.Context, unlinked *model.Member) {
	if err := s.members.Update(ctx, unlinked); err != nil {
		slog.Error("failed to revert oauth provider link",
			slog.Int64("member_id", unlinked.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	slog.Warn("reverted oauth provider link after token issue failure",
		slog.Int64("member_id", unlinked.ID),
	)
}

// createMember はIdPのプロフィールから新しいメンバーを作成する。
func (s *OAuthService) createMember(ctx context.Context, profile *OAuthProfile) (*model.Member, error) {

	member := &model.Member{
		Email:      profile.Email,
		Nickname:   s.nicknameOrDefault(profile),
		Role:       model.RoleUser,
		Provider:   profile.Provider,
		ProviderID: profile.ProviderID,
	}
	if err := s.members.Create(ctx, member); err != nil {
		if !errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, fmt.Errorf("failed to create member: %w", err)
		}
		// 同時ログインで先に作成された場合は既存メンバーとして扱う
		again, findErr := s.members.FindByEmail(ctx, profile.Email)
		if findErr != nil || again == nil {
			return nil, fmt.Errorf("failed to create member: %w", err)
		}
		return again, nil
	}

	slog.Info("new member created via oauth",
		slog.Int64("member_id", member.ID),
		slog.String("provider", string(profile.Provider)),
		slog.String("email", MaskEmail(member.Email)),
	)
	return member, nil
}

// nicknameOrDefault はニックネームが空の場合にメールアドレスのローカル部を返す。
func (s *OAuthService) nicknameOrDefault(profile *OAuthProfile) string {
	nickname := profile.Nickname
	if s.config.NicknameSanitizer != nil {
		nickname = s.config.NicknameSanitizer.Sanitize(nickname)
	}
	if nickname != "" {
		return nickname
	}
	if at := strings.Index(profile.Email, "@"); at > 0 {
		return profile.Email[:at]
	}
	return profile.Email
}
