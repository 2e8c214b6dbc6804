package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
	"github.com/hitoshi/todoman/internal/token"
)

// --- モック定義 ---

type mockMemberRepo struct {
	findByIDFn      func(ctx context.Context, id int64) (*model.Member, error)
	findByEmailFn   func(ctx context.Context, email string) (*model.Member, error)
	existsByEmailFn func(ctx context.Context, email string) (bool, error)
	createFn        func(ctx context.Context, member *model.Member) error
	updateFn        func(ctx context.Context, member *model.Member) error
}

func (m *mockMemberRepo) FindByID(ctx context.Context, id int64) (*model.Member, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockMemberRepo) FindByEmail(ctx context.Context, email string) (*model.Member, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockMemberRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if m.existsByEmailFn != nil {
		return m.existsByEmailFn(ctx, email)
	}
	return false, nil
}

func (m *mockMemberRepo) Create(ctx context.Context, member *model.Member) error {
	if m.createFn != nil {
		return m.createFn(ctx, member)
	}
	member.ID = 1
	return nil
}

func (m *mockMemberRepo) Update(ctx context.Context, member *model.Member) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, member)
	}
	return nil
}

// memoryTokenStore はメンバーごとに1件だけ保持するインメモリのトークンストア。
type memoryTokenStore struct {
	byMember map[int64]model.RefreshToken
	saveErr  error
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{byMember: map[int64]model.RefreshToken{}}
}

func (s *memoryTokenStore) Save(_ context.Context, t model.RefreshToken) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.byMember[t.MemberID] = t
	return nil
}

func (s *memoryTokenStore) FindByToken(_ context.Context, value string) (*model.RefreshToken, error) {
	for _, t := range s.byMember {
		if t.Token == value {
			found := t
			return &found, nil
		}
	}
	return nil, nil
}

func (s *memoryTokenStore) DeleteByMemberID(_ context.Context, memberID int64) error {
	delete(s.byMember, memberID)
	return nil
}

// compile-time interface check
var (
	_ repository.MemberRepository       = (*mockMemberRepo)(nil)
	_ repository.RefreshTokenRepository = (*memoryTokenStore)(nil)
)

// --- ヘルパー ---

func newTestIssuer(t *testing.T) *token.Issuer {
	t.Helper()
	secret := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("s"), 64))
	issuer, err := token.NewIssuer(secret, 30*time.Minute, 14*24*time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return issuer
}

func newTestHasher() *BcryptHasher {
	return NewBcryptHasher(bcrypt.MinCost)
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := newTestHasher().Hash(password)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	return h
}
