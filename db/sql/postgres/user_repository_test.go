package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/storefront-kit/storefront/auth"
)

func newTestUser() auth.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return auth.User{
		ID:           uuid.NewString(),
		Email:        uuid.NewString() + "@example.com",
		FirstName:    "Alice",
		LastName:     "Smith",
		Phone:        "+1-555-0100",
		PasswordHash: "$2a$10$fakehashfakehashfakehash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUserRepositoryCreateAndGet(t *testing.T) {
	repo := NewUserRepository(testDB)
	ctx := context.Background()
	user := newTestUser()

	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	byID, err := repo.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if byID.Email != user.Email || byID.FirstName != "Alice" {
		t.Fatalf("GetUserByID() = %+v, want %+v", byID, user)
	}

	byEmail, err := repo.GetUserByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if byEmail.ID != user.ID {
		t.Fatalf("GetUserByEmail() ID = %s, want %s", byEmail.ID, user.ID)
	}
}

func TestUserRepositoryDuplicateEmail(t *testing.T) {
	repo := NewUserRepository(testDB)
	ctx := context.Background()
	user := newTestUser()

	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	dup := newTestUser()
	dup.Email = user.Email
	if err := repo.CreateUser(ctx, dup); !errors.Is(err, auth.ErrUserEmailInUse) {
		t.Fatalf("CreateUser(duplicate) error = %v, want ErrUserEmailInUse", err)
	}
}

func TestUserRepositoryNotFound(t *testing.T) {
	repo := NewUserRepository(testDB)
	ctx := context.Background()

	if _, err := repo.GetUserByID(ctx, uuid.NewString()); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("GetUserByID() error = %v, want ErrUserNotFound", err)
	}
	if _, err := repo.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("GetUserByEmail() error = %v, want ErrUserNotFound", err)
	}
	if err := repo.UpdateUserPassword(ctx, uuid.NewString(), "hash"); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("UpdateUserPassword() error = %v, want ErrUserNotFound", err)
	}
	if _, err := repo.UpdateUserPartial(ctx, uuid.NewString(), auth.UserPatch{}); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("UpdateUserPartial() error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepositoryUpdatePartial(t *testing.T) {
	repo := NewUserRepository(testDB)
	ctx := context.Background()
	user := newTestUser()

	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	phone := "+1-555-0199"
	updated, err := repo.UpdateUserPartial(ctx, user.ID, auth.UserPatch{Phone: &phone})
	if err != nil {
		t.Fatalf("UpdateUserPartial() error = %v", err)
	}
	if updated.Phone != phone {
		t.Fatalf("Phone = %q, want %q", updated.Phone, phone)
	}
	if updated.FirstName != user.FirstName || updated.LastName != user.LastName {
		t.Fatalf("untouched fields changed: %+v", updated)
	}
	if !updated.UpdatedAt.After(user.UpdatedAt) {
		t.Fatalf("UpdatedAt not advanced: %v <= %v", updated.UpdatedAt, user.UpdatedAt)
	}
}

func TestUserRepositoryUpdatePassword(t *testing.T) {
	repo := NewUserRepository(testDB)
	ctx := context.Background()
	user := newTestUser()

	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if err := repo.UpdateUserPassword(ctx, user.ID, "new-hash"); err != nil {
		t.Fatalf("UpdateUserPassword() error = %v", err)
	}

	got, err := repo.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if got.PasswordHash != "new-hash" {
		t.Fatalf("PasswordHash = %q, want new-hash", got.PasswordHash)
	}
}

func TestUserRepositoryList(t *testing.T) {
	repo := NewUserRepository(testDB)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := repo.CreateUser(ctx, newTestUser()); err != nil {
			t.Fatalf("CreateUser() error = %v", err)
		}
	}

	users, err := repo.ListUsers(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("ListUsers(limit=2) returned %d users", len(users))
	}
}
