package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"hatid/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func (s *userStoreStub) storedPassword(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[username].Password
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	stub := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret-key", time.Hour, stub)

	if stub.updates == 0 {
		t.Fatalf("expected plain-text password to be rewritten in the store")
	}
	stored := stub.storedPassword("admin")
	if !strings.HasPrefix(stored, "$2") {
		t.Fatalf("expected bcrypt hash in store, got %q", stored)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte("admin123")); err != nil {
		t.Fatalf("upgraded hash does not verify: %v", err)
	}

	resp, err := manager.Login(domain.LoginRequest{Username: "Admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login after upgrade failed: %v", err)
	}
	if resp.AccessToken == "" || resp.Role != "admin" {
		t.Fatalf("unexpected login response %+v", resp)
	}
}

func TestLoginAndParseTokenRoundTrip(t *testing.T) {
	stub := &userStoreStub{}
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if err := stub.CreateUser(context.Background(), domain.UserAccount{
		Username:  "clerk",
		Password:  string(hash),
		Role:      "staff",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("stub create user: %v", err)
	}

	manager := NewAuthManager("test-secret-key", time.Hour, stub)

	resp, err := manager.Login(domain.LoginRequest{Username: "clerk", Password: "secret-pass"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "clerk" || actor.Role != "staff" {
		t.Fatalf("unexpected actor %+v", actor)
	}

	if _, err := manager.ParseToken("not.a.jwt"); err == nil {
		t.Fatalf("expected garbage token to be rejected")
	}

	other := NewAuthManager("another-secret-key", time.Hour, stub)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with a different secret to be rejected")
	}
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	stub := &userStoreStub{}
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret-pass"), bcrypt.MinCost)
	_ = stub.CreateUser(context.Background(), domain.UserAccount{
		Username:  "ghost",
		Password:  string(hash),
		Role:      "staff",
		Active:    false,
		CreatedAt: time.Now().UTC(),
	})

	manager := NewAuthManager("test-secret-key", time.Hour, stub)

	if _, err := manager.Login(domain.LoginRequest{Username: "ghost", Password: "secret-pass"}); err == nil {
		t.Fatalf("expected inactive account to be rejected")
	}
}

func TestCreateStaffStoresPasswordHash(t *testing.T) {
	stub := &userStoreStub{}
	manager := NewAuthManager("test-secret-key", time.Hour, stub)

	created, err := manager.CreateStaff(domain.StaffCreateRequest{
		Username: "NewClerk",
		Password: "clerk-pass",
	})
	if err != nil {
		t.Fatalf("create staff failed: %v", err)
	}
	if created.Username != "newclerk" || created.Role != "staff" || !created.Active {
		t.Fatalf("unexpected staff record %+v", created)
	}

	stored := stub.storedPassword("newclerk")
	if stored == "clerk-pass" || !strings.HasPrefix(stored, "$2") {
		t.Fatalf("expected hashed password in store, got %q", stored)
	}

	if _, err := manager.CreateStaff(domain.StaffCreateRequest{Username: "newclerk", Password: "another-pass"}); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}
	if _, err := manager.CreateStaff(domain.StaffCreateRequest{Username: "ab", Password: "long-enough"}); err == nil {
		t.Fatalf("expected short username to be rejected")
	}
	if _, err := manager.CreateStaff(domain.StaffCreateRequest{Username: "validname", Password: "short"}); err == nil {
		t.Fatalf("expected short password to be rejected")
	}

	staff := manager.ListStaff()
	if len(staff) != 1 || staff[0].Username != "newclerk" {
		t.Fatalf("expected single staff entry, got %+v", staff)
	}
}

func TestResetStaffPassword(t *testing.T) {
	stub := &userStoreStub{}
	manager := NewAuthManager("test-secret-key", time.Hour, stub)

	if _, err := manager.CreateStaff(domain.StaffCreateRequest{Username: "clerk1", Password: "first-pass"}); err != nil {
		t.Fatalf("create staff failed: %v", err)
	}

	if err := manager.ResetStaffPassword("nobody", "whatever-pass"); err == nil {
		t.Fatalf("expected unknown user to be rejected")
	}
	if err := manager.ResetStaffPassword("clerk1", "tiny"); err == nil {
		t.Fatalf("expected short password to be rejected")
	}

	if err := manager.ResetStaffPassword("Clerk1", "second-pass"); err != nil {
		t.Fatalf("reset password failed: %v", err)
	}

	if _, err := manager.Login(domain.LoginRequest{Username: "clerk1", Password: "first-pass"}); err == nil {
		t.Fatalf("expected old password to stop working")
	}
	if _, err := manager.Login(domain.LoginRequest{Username: "clerk1", Password: "second-pass"}); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}
