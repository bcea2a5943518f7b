package authpw

import (
	"context"
	"errors"
	"testing"

	"wayfare/api/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string // email -> userID
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) error {
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return nil
}

func (m *mockUserStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	if user, ok := m.users[userID]; ok {
		user.PasswordHash = passwordHash
		m.users[userID] = user
		return nil
	}
	return errors.New("user not found")
}

func TestSignUp(t *testing.T) {
	svc := NewService(newMockUserStore())

	user, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "Traveler@Example.com",
		Password:    "longenough",
		DisplayName: "Traveler",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if user.ID == "" {
		t.Error("user should get an id")
	}
	if user.Email != "traveler@example.com" {
		t.Errorf("email should be lowercased, got %q", user.Email)
	}
	if user.PasswordHash == "longenough" || user.PasswordHash == "" {
		t.Error("password must be stored hashed")
	}
}

func TestSignUpValidation(t *testing.T) {
	svc := NewService(newMockUserStore())

	tests := []struct {
		name string
		req  SignUpRequest
	}{
		{"missing email", SignUpRequest{Password: "longenough", DisplayName: "T"}},
		{"missing password", SignUpRequest{Email: "a@b.c", DisplayName: "T"}},
		{"missing display name", SignUpRequest{Email: "a@b.c", Password: "longenough"}},
		{"short password", SignUpRequest{Email: "a@b.c", Password: "short", DisplayName: "T"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.SignUp(context.Background(), tt.req); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	svc := NewService(newMockUserStore())
	req := SignUpRequest{Email: "a@b.c", Password: "longenough", DisplayName: "T"}

	if _, err := svc.SignUp(context.Background(), req); err != nil {
		t.Fatalf("first SignUp failed: %v", err)
	}
	if _, err := svc.SignUp(context.Background(), req); err == nil {
		t.Error("duplicate email should be rejected")
	}
}

func TestSignIn(t *testing.T) {
	svc := NewService(newMockUserStore())
	created, err := svc.SignUp(context.Background(), SignUpRequest{
		Email: "a@b.c", Password: "longenough", DisplayName: "T",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	user, err := svc.SignIn(context.Background(), SignInRequest{Email: "a@b.c", Password: "longenough"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if user.ID != created.ID {
		t.Errorf("SignIn returned wrong user: %s", user.ID)
	}

	if _, err := svc.SignIn(context.Background(), SignInRequest{Email: "a@b.c", Password: "wrongpass"}); err == nil {
		t.Error("wrong password should be rejected")
	}
	if _, err := svc.SignIn(context.Background(), SignInRequest{Email: "nobody@b.c", Password: "longenough"}); err == nil {
		t.Error("unknown email should be rejected")
	}
}

func TestChangePassword(t *testing.T) {
	svc := NewService(newMockUserStore())
	user, err := svc.SignUp(context.Background(), SignUpRequest{
		Email: "a@b.c", Password: "oldpassword", DisplayName: "T",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	if err := svc.ChangePassword(context.Background(), ChangePasswordRequest{
		UserID: user.ID, Current: "wrong", NewPassword: "newpassword",
	}); err == nil {
		t.Error("wrong current password should be rejected")
	}

	if err := svc.ChangePassword(context.Background(), ChangePasswordRequest{
		UserID: user.ID, Current: "oldpassword", NewPassword: "newpassword",
	}); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	if _, err := svc.SignIn(context.Background(), SignInRequest{Email: "a@b.c", Password: "newpassword"}); err != nil {
		t.Errorf("sign-in with new password failed: %v", err)
	}
	if _, err := svc.SignIn(context.Background(), SignInRequest{Email: "a@b.c", Password: "oldpassword"}); err == nil {
		t.Error("old password should no longer work")
	}
}
