package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"krishantraders/backend/internal/domain"
	"krishantraders/backend/internal/store"
)

type userStoreStub struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.User)
	}
	if user.ID == "" {
		user.ID = "user-" + user.Email
	}
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return nil, store.ErrDuplicateKey
		}
	}
	s.users[user.ID] = user
	created := user
	return &created, nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.User, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			found := user
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *userStoreStub) UpdateUser(_ context.Context, id string, patch domain.UserPatch) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if patch.Status != nil {
		user.Status = *patch.Status
	}
	if patch.Deleted != nil {
		user.Deleted = *patch.Deleted
	}
	s.users[id] = user
	updated := user
	return &updated, nil
}

func stubWithUser(t *testing.T, status string, deleted bool) *userStoreStub {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret99"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return &userStoreStub{
		users: map[string]domain.User{
			"user-1": {
				ID:        "user-1",
				Name:      "Shop Admin",
				Email:     "admin@example.com",
				Password:  string(hash),
				Role:      domain.RoleAdmin,
				Status:    status,
				Deleted:   deleted,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestLoginIssuesParseableToken(t *testing.T) {
	manager := NewAuthManager("test-secret-key", time.Hour, stubWithUser(t, domain.UserStatusActive, false))

	resp, err := manager.Login(context.Background(), domain.LoginRequest{
		Email:    "admin@example.com",
		Password: "secret99",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", resp.Role)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.UserID != "user-1" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	manager := NewAuthManager("test-secret-key", time.Hour, stubWithUser(t, domain.UserStatusActive, false))

	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Email:    "admin@example.com",
		Password: "nope",
	})
	if !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestLoginRejectsBlockedAndDeletedAccounts(t *testing.T) {
	blocked := NewAuthManager("test-secret-key", time.Hour, stubWithUser(t, domain.UserStatusBlocked, false))
	if _, err := blocked.Login(context.Background(), domain.LoginRequest{
		Email:    "admin@example.com",
		Password: "secret99",
	}); err == nil {
		t.Fatalf("expected blocked account login to fail")
	}

	deleted := NewAuthManager("test-secret-key", time.Hour, stubWithUser(t, domain.UserStatusActive, true))
	if _, err := deleted.Login(context.Background(), domain.LoginRequest{
		Email:    "admin@example.com",
		Password: "secret99",
	}); err == nil {
		t.Fatalf("expected deleted account login to fail")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	users := stubWithUser(t, domain.UserStatusActive, false)
	issuer := NewAuthManager("secret-one-0123456789abcdef", time.Hour, users)
	verifier := NewAuthManager("secret-two-0123456789abcdef", time.Hour, users)

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{
		Email:    "admin@example.com",
		Password: "secret99",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with other secret to be rejected")
	}
}

func TestCreateUserStoresPasswordHash(t *testing.T) {
	stub := &userStoreStub{}
	manager := NewAuthManager("test-secret-key", time.Hour, stub)

	user, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{
		Name:     "New Staff",
		Email:    "Staff@Example.com",
		Password: "staffpass",
		Role:     domain.RoleStaff,
	})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if user.Email != "staff@example.com" {
		t.Fatalf("expected lowercased email, got %s", user.Email)
	}

	stored, err := stub.GetUserByEmail(context.Background(), "staff@example.com")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if stored.Password == "staffpass" {
		t.Fatalf("expected password to be hashed")
	}
	if !strings.HasPrefix(stored.Password, "$2") {
		t.Fatalf("expected bcrypt hash, got %s", stored.Password)
	}
}

func TestCreateUserValidatesInput(t *testing.T) {
	manager := NewAuthManager("test-secret-key", time.Hour, &userStoreStub{})

	cases := []domain.UserCreateRequest{
		{Name: "No Email", Password: "longenough", Role: domain.RoleStaff},
		{Name: "Short Password", Email: "a@b.com", Password: "abc", Role: domain.RoleStaff},
		{Name: "Bad Role", Email: "a@b.com", Password: "longenough", Role: "owner"},
	}
	for i, req := range cases {
		if _, err := manager.CreateUser(context.Background(), req); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}
