package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
)

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %q, want %q", apiErr.Code, code)
	}
}

// --- Signup ---

func TestSignup_CreatesLocalMemberWithHashedPassword(t *testing.T) {
	var created *model.Member
	repo := &mockMemberRepo{
		createFn: func(_ context.Context, m *model.Member) error {
			created = m
			m.ID = 10
			return nil
		},
	}
	svc := NewService(repo, newMemoryTokenStore(), newTestIssuer(t), newTestHasher(), nil)

	err := svc.Signup(context.Background(), SignupInput{
		Email: "new@example.com", Password: "password123", Nickname: "newbie",
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}

	if created == nil {
		t.Fatal("member should be created")
	}
	if created.Role != model.RoleUser || created.Provider != model.ProviderLocal {
		t.Errorf("role/provider = %q/%q, want USER/LOCAL", created.Role, created.Provider)
	}
	if created.PasswordHash == "password123" || created.PasswordHash == "" {
		t.Errorf("password should be hashed, got %q", created.PasswordHash)
	}
	if !newTestHasher().Compare(created.PasswordHash, "password123") {
		t.Error("stored hash should match the password")
	}
}

func TestSignup_DuplicateEmail_ReturnsConflict(t *testing.T) {
	createCalled := false
	repo := &mockMemberRepo{
		existsByEmailFn: func(context.Context, string) (bool, error) { return true, nil },
		createFn: func(context.Context, *model.Member) error {
			createCalled = true
			return nil
		},
	}
	svc := NewService(repo, newMemoryTokenStore(), newTestIssuer(t), newTestHasher(), nil)

	err := svc.Signup(context.Background(), SignupInput{
		Email: "dup@example.com", Password: "password123", Nickname: "dup",
	})
	assertAPIErrorCode(t, err, model.ErrCodeDuplicateAccount)
	if createCalled {
		t.Error("Create should not be called for a duplicate email")
	}
}

func TestSignup_UniqueViolationOnInsert_ReturnsConflict(t *testing.T) {
	repo := &mockMemberRepo{
		createFn: func(context.Context, *model.Member) error { return repository.ErrDuplicateEmail },
	}
	svc := NewService(repo, newMemoryTokenStore(), newTestIssuer(t), newTestHasher(), nil)

	err := svc.Signup(context.Background(), SignupInput{
		Email: "race@example.com", Password: "password123", Nickname: "race",
	})
	assertAPIErrorCode(t, err, model.ErrCodeDuplicateAccount)
}

func TestSignup_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input SignupInput
		field string
	}{
		{"blank email", SignupInput{Email: " ", Password: "password123", Nickname: "n"}, "email"},
		{"malformed email", SignupInput{Email: "nope", Password: "password123", Nickname: "n"}, "email"},
		{"short password", SignupInput{Email: "a@example.com", Password: "short", Nickname: "n"}, "password"},
		{"blank nickname", SignupInput{Email: "a@example.com", Password: "password123", Nickname: "  "}, "nickname"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&mockMemberRepo{}, newMemoryTokenStore(), newTestIssuer(t), newTestHasher(), nil)

			err := svc.Signup(context.Background(), tt.input)
			assertAPIErrorCode(t, err, model.ErrCodeValidation)

			var apiErr *model.APIError
			errors.As(err, &apiErr)
			if _, ok := apiErr.Fields[tt.field]; !ok {
				t.Errorf("expected field error for %q, got %v", tt.field, apiErr.Fields)
			}
		})
	}
}

// --- Login ---

func TestLogin_Success_IssuesTokensAndStoresRefreshToken(t *testing.T) {
	member := &model.Member{
		ID: 5, Email: "user@example.com", PasswordHash: mustHash(t, "password123"),
		Nickname: "User", Role: model.RoleUser, Provider: model.ProviderLocal,
	}
	repo := &mockMemberRepo{
		findByEmailFn: func(context.Context, string) (*model.Member, error) { return member, nil },
	}
	store := newMemoryTokenStore()
	issuer := newTestIssuer(t)
	svc := NewService(repo, store, issuer, newTestHasher(), nil)

	result, err := svc.Login(context.Background(), "user@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if result.GrantType != "Bearer" {
		t.Errorf("GrantType = %q, want Bearer", result.GrantType)
	}
	if result.Nickname != "User" || result.Email != "user@example.com" || result.Role != model.RoleUser {
		t.Errorf("unexpected result: %+v", result)
	}

	saved, ok := store.byMember[5]
	if !ok || saved.Token != result.RefreshToken {
		t.Errorf("refresh token should be stored under member 5, got %+v", saved)
	}
	if saved.TTL != issuer.RefreshTokenValidity() {
		t.Errorf("TTL = %v, want %v", saved.TTL, issuer.RefreshTokenValidity())
	}

	claims, err := issuer.ParseClaims(result.AccessToken)
	if err != nil {
		t.Fatalf("ParseClaims: %v", err)
	}
	if claims.Subject != "user@example.com" || claims.Auth != "ROLE_USER" || claims.Nickname != "User" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestLogin_SecondLoginOverwritesSlot(t *testing.T) {
	member := &model.Member{ID: 5, Email: "user@example.com", PasswordHash: mustHash(t, "password123"), Role: model.RoleUser}
	repo := &mockMemberRepo{
		findByEmailFn: func(context.Context, string) (*model.Member, error) { return member, nil },
	}
	store := newMemoryTokenStore()
	svc := NewService(repo, store, newTestIssuer(t), newTestHasher(), nil)

	first, err := svc.Login(context.Background(), "user@example.com", "password123")
	if err != nil {
		t.Fatalf("first Login: %v", err)
	}
	second, err := svc.Login(context.Background(), "user@example.com", "password123")
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}

	if len(store.byMember) != 1 {
		t.Errorf("store should hold one slot, got %d", len(store.byMember))
	}
	if found, _ := store.FindByToken(context.Background(), first.RefreshToken); found != nil {
		t.Error("first refresh token should be overwritten")
	}
	if store.byMember[5].Token != second.RefreshToken {
		t.Error("slot should hold the latest refresh token")
	}
}

func TestLogin_Failures_AreIndistinguishable(t *testing.T) {
	withPassword := &model.Member{ID: 1, Email: "a@example.com", PasswordHash: mustHash(t, "password123")}
	oauthOnly := &model.Member{ID: 2, Email: "g@example.com", Provider: model.ProviderGoogle}

	tests := []struct {
		name     string
		member   *model.Member
		password string
	}{
		{"unknown email", nil, "password123"},
		{"wrong password", withPassword, "wrong-password"},
		{"oauth-only member", oauthOnly, "password123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockMemberRepo{
				findByEmailFn: func(context.Context, string) (*model.Member, error) { return tt.member, nil },
			}
			store := newMemoryTokenStore()
			svc := NewService(repo, store, newTestIssuer(t), newTestHasher(), nil)

			_, err := svc.Login(context.Background(), "x@example.com", tt.password)
			assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)

			var apiErr *model.APIError
			errors.As(err, &apiErr)
			if apiErr.Message != model.NewInvalidCredentialsError().Message {
				t.Errorf("message should be generic, got %q", apiErr.Message)
			}
			if len(store.byMember) != 0 {
				t.Error("no refresh token should be stored on failure")
			}
		})
	}
}

func TestLogin_StoreFailure_ReturnsError(t *testing.T) {
	member := &model.Member{ID: 5, Email: "user@example.com", PasswordHash: mustHash(t, "password123")}
	repo := &mockMemberRepo{
		findByEmailFn: func(context.Context, string) (*model.Member, error) { return member, nil },
	}
	store := newMemoryTokenStore()
	store.saveErr = errors.New("redis down")
	svc := NewService(repo, store, newTestIssuer(t), newTestHasher(), nil)

	if _, err := svc.Login(context.Background(), "user@example.com", "password123"); err == nil {
		t.Fatal("expected error when refresh token cannot be stored")
	}
}

// --- Reissue ---

func TestReissue_RotatesRefreshToken(t *testing.T) {
	member := &model.Member{ID: 7, Email: "r@example.com", PasswordHash: mustHash(t, "password123"), Nickname: "R", Role: model.RoleUser}
	repo := &mockMemberRepo{
		findByEmailFn: func(context.Context, string) (*model.Member, error) { return member, nil },
		findByIDFn: func(_ context.Context, id int64) (*model.Member, error) {
			if id == 7 {
				return member, nil
			}
			return nil, nil
		},
	}
	store := newMemoryTokenStore()
	svc := NewService(repo, store, newTestIssuer(t), newTestHasher(), nil)
	ctx := context.Background()

	login, err := svc.Login(ctx, "r@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	reissued, err := svc.Reissue(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Reissue: %v", err)
	}
	if reissued.RefreshToken == login.RefreshToken {
		t.Error("refresh token should rotate")
	}
	if reissued.Nickname != "R" || reissued.Email != "r@example.com" {
		t.Errorf("unexpected result: %+v", reissued)
	}

	_, err = svc.Reissue(ctx, login.RefreshToken)
	assertAPIErrorCode(t, err, model.ErrCodeInvalidToken)

	if _, err := svc.Reissue(ctx, reissued.RefreshToken); err != nil {
		t.Errorf("new refresh token should be usable: %v", err)
	}
}

func TestReissue_InvalidInputs(t *testing.T) {
	store := newMemoryTokenStore()
	store.byMember[99] = model.RefreshToken{MemberID: 99, Token: "orphan"}
	svc := NewService(&mockMemberRepo{}, store, newTestIssuer(t), newTestHasher(), nil)

	for _, value := range []string{"", "   ", "unknown", "orphan"} {
		t.Run(value, func(t *testing.T) {
			_, err := svc.Reissue(context.Background(), value)
			assertAPIErrorCode(t, err, model.ErrCodeInvalidToken)
		})
	}
}

// --- Logout ---

func TestLogout_DeletesSlotAndIsIdempotent(t *testing.T) {
	member := &model.Member{ID: 3, Email: "out@example.com"}
	repo := &mockMemberRepo{
		findByEmailFn: func(context.Context, string) (*model.Member, error) { return member, nil },
	}
	store := newMemoryTokenStore()
	store.byMember[3] = model.RefreshToken{MemberID: 3, Token: "rt"}
	svc := NewService(repo, store, newTestIssuer(t), newTestHasher(), nil)
	principal := model.Principal{Email: "out@example.com", Authorities: []string{"ROLE_USER"}}

	if err := svc.Logout(context.Background(), principal); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, ok := store.byMember[3]; ok {
		t.Error("slot should be deleted")
	}

	if err := svc.Logout(context.Background(), principal); err != nil {
		t.Errorf("second Logout should succeed, got %v", err)
	}
}

func TestLogout_UnknownPrincipal_ReturnsUnauthorized(t *testing.T) {
	svc := NewService(&mockMemberRepo{}, newMemoryTokenStore(), newTestIssuer(t), newTestHasher(), nil)

	err := svc.Logout(context.Background(), model.Principal{Email: "ghost@example.com"})
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)

	err = svc.Logout(context.Background(), model.Principal{})
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
}

// --- Me ---

func TestMe_ReturnsMember(t *testing.T) {
	member := &model.Member{ID: 4, Email: "me@example.com", Nickname: "me"}
	repo := &mockMemberRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.Member, error) {
			if email == "me@example.com" {
				return member, nil
			}
			return nil, nil
		},
	}
	svc := NewService(repo, newMemoryTokenStore(), newTestIssuer(t), newTestHasher(), nil)

	got, err := svc.Me(context.Background(), model.Principal{Email: "me@example.com"})
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if got.ID != 4 {
		t.Errorf("ID = %d, want 4", got.ID)
	}
}
