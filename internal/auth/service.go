// Package auth は会員登録・ログイン・トークン再発行・ログアウトとOAuthログインを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
)

// minPasswordLength はパスワードの最小文字数。
const minPasswordLength = 8

// TokenIssuer はアクセストークンとリフレッシュトークンを発行する。
type TokenIssuer interface {
	IssueAccessToken(subject string, authorities []string, nickname string) (string, error)
	IssueRefreshToken() string
	RefreshTokenValidity() time.Duration
}

// SignupInput は会員登録の入力値。
type SignupInput struct {
	Email    string
	Password string
	Nickname string
}

// Validate は入力値を検証し、フィールド単位のエラーを返す。問題がなければnilを返す。
func (in SignupInput) Validate() map[string]string {
	fields := map[string]string{}
	email := strings.TrimSpace(in.Email)
	switch {
	case email == "":
		fields["email"] = "メールアドレスは必須です。"
	case !strings.Contains(email, "@"):
		fields["email"] = "メールアドレスの形式が正しくありません。"
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLength {
		fields["password"] = fmt.Sprintf("パスワードは%d文字以上で入力してください。", minPasswordLength)
	}
	if strings.TrimSpace(in.Nickname) == "" {
		fields["nickname"] = "ニックネームは必須です。"
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// Service はローカルアカウントの認証に関するビジネスロジックを提供する。
type Service struct {
	members repository.MemberRepository
	tokens  repository.RefreshTokenRepository
	issuer  TokenIssuer
	hasher  PasswordHasher
	metrics metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(
	members repository.MemberRepository,
	tokens repository.RefreshTokenRepository,
	issuer TokenIssuer,
	hasher PasswordHasher,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		members: members,
		tokens:  tokens,
		issuer:  issuer,
		hasher:  hasher,
		metrics: collector,
	}
}

// Signup はローカルアカウントを作成する。自動ログインは行わない。
func (s *Service) Signup(ctx context.Context, in SignupInput) error {
	if fields := in.Validate(); fields != nil {
		return model.NewValidationError(fields)
	}
	email := strings.TrimSpace(in.Email)

	exists, err := s.members.ExistsByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return model.NewDuplicateAccountError()
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return err
	}

	member := &model.Member{
		Email:        email,
		PasswordHash: hash,
		Nickname:     strings.TrimSpace(in.Nickname),
		Role:         model.RoleUser,
		Provider:     model.ProviderLocal,
	}
	if err := s.members.Create(ctx, member); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return model.NewDuplicateAccountError()
		}
		return fmt.Errorf("failed to create member: %w", err)
	}

	s.metrics.RecordSignup()
	slog.Info("member signed up",
		slog.Int64("member_id", member.ID),
		slog.String("email", MaskEmail(email)),
	)
	return nil
}

// Login はメールアドレスとパスワードで認証し、トークンを発行する。
// メンバーが存在しない場合とパスワード不一致を区別しない。
func (s *Service) Login(ctx context.Context, email, password string) (*model.AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		fields := map[string]string{}
		if email == "" {
			fields["email"] = "メールアドレスは必須です。"
		}
		if password == "" {
			fields["password"] = "パスワードは必須です。"
		}
		return nil, model.NewValidationError(fields)
	}

	member, err := s.members.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find member: %w", err)
	}
	if member == nil || !member.HasPassword() || !s.hasher.Compare(member.PasswordHash, password) {
		s.metrics.RecordLogin("local", false)
		slog.Info("login failed", slog.String("email", MaskEmail(email)))
		return nil, model.NewInvalidCredentialsError()
	}

	result, err := issueTokens(ctx, s.issuer, s.tokens, member)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordLogin("local", true)
	slog.Info("member logged in", slog.Int64("member_id", member.ID))
	return result, nil
}

// Reissue はリフレッシュトークンを検証し、新しいトークンの組を発行する。
// 発行後は古いリフレッシュトークンは使用できない。
func (s *Service) Reissue(ctx context.Context, refreshToken string) (*model.AuthResult, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		s.metrics.RecordTokenReissue(false)
		return nil, model.NewInvalidTokenError()
	}

	saved, err := s.tokens.FindByToken(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}
	if saved == nil {
		s.metrics.RecordTokenReissue(false)
		return nil, model.NewInvalidTokenError()
	}

	member, err := s.members.FindByID(ctx, saved.MemberID)
	if err != nil {
		return nil, fmt.Errorf("failed to find member: %w", err)
	}
	if member == nil {
		s.metrics.RecordTokenReissue(false)
		return nil, model.NewInvalidTokenError()
	}

	result, err := issueTokens(ctx, s.issuer, s.tokens, member)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTokenReissue(true)
	return result, nil
}

// Logout は呼び出し元のリフレッシュトークンを削除する。
// トークンが保存されていなくてもエラーにしない。
func (s *Service) Logout(ctx context.Context, principal model.Principal) error {
	member, err := s.currentMember(ctx, principal)
	if err != nil {
		return err
	}

	if err := s.tokens.DeleteByMemberID(ctx, member.ID); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}

	slog.Info("member logged out", slog.Int64("member_id", member.ID))
	return nil
}

// Me は呼び出し元のメンバー情報を返す。
func (s *Service) Me(ctx context.Context, principal model.Principal) (*model.Member, error) {
	return s.currentMember(ctx, principal)
}

func (s *Service) currentMember(ctx context.Context, principal model.Principal) (*model.Member, error) {
	if !principal.IsAuthenticated() {
		return nil, model.NewUnauthorizedError()
	}
	member, err := s.members.FindByEmail(ctx, principal.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find member: %w", err)
	}
	if member == nil {
		return nil, model.NewUnauthorizedError()
	}
	return member, nil
}

// issueTokens はメンバーのトークンの組を発行し、リフレッシュトークンを上書き保存する。
func issueTokens(ctx context.Context, issuer TokenIssuer, store repository.RefreshTokenRepository, member *model.Member) (*model.AuthResult, error) {
	accessToken, err := issuer.IssueAccessToken(member.Email, member.Authorities(), member.Nickname)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	refreshToken := issuer.IssueRefreshToken()

	if err := store.Save(ctx, model.RefreshToken{
		MemberID: member.ID,
		Token:    refreshToken,
		TTL:      issuer.RefreshTokenValidity(),
	}); err != nil {
		return nil, fmt.Errorf("failed to save refresh token: %w", err)
	}

	role := member.Role
	if role == "" {
		role = model.RoleUser
	}
	return &model.AuthResult{
		GrantType:    model.GrantTypeBearer,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Nickname:     member.Nickname,
		Email:        member.Email,
		Role:         role,
	}, nil
}
