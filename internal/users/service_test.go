package users

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/studybuddy/backend/internal/identity"
	"gorm.io/gorm"
)

type sequentialIDs struct {
	next int
}

func (g *sequentialIDs) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("user-%d", g.next), nil
}

var _ identity.Provider = (*sequentialIDs)(nil)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db, IDProvider: &sequentialIDs{}})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service
}

func TestSignupAndLogin(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	created, err := service.Signup(ctx, "Alice@Example.com", "hunter2hunter2", "Alice")
	if err != nil {
		t.Fatalf("unexpected signup error: %v", err)
	}
	if created.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %s", created.Email)
	}
	if created.PasswordHash == "hunter2hunter2" {
		t.Fatal("expected password to be hashed")
	}

	user, err := service.Login(ctx, "alice@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("unexpected login error: %v", err)
	}
	if user.ID != created.ID {
		t.Fatalf("expected user %s, got %s", created.ID, user.ID)
	}
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Signup(ctx, "bob@example.com", "password-one", "Bob"); err != nil {
		t.Fatalf("unexpected signup error: %v", err)
	}
	_, err := service.Signup(ctx, "bob@example.com", "password-two", "Bobby")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Signup(ctx, "carol@example.com", "right-password", "Carol"); err != nil {
		t.Fatalf("unexpected signup error: %v", err)
	}
	if _, err := service.Login(ctx, "carol@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := service.Login(ctx, "nobody@example.com", "right-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}
