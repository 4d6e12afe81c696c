package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
)

var (
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrUserEmailInUse     = errors.New("auth: email already in use")
	ErrUserInvalidInput   = errors.New("auth: invalid user input")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// User models an account persisted by the user service.
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	Phone        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserPatch carries a partial profile update; nil fields are untouched.
type UserPatch struct {
	FirstName *string
	LastName  *string
	Phone     *string
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Phone == nil
}

// UserRepository abstracts persistence so callers can map to any table
// schema.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	UpdateUserPartial(ctx context.Context, userID string, patch UserPatch) (User, error)
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	ListUsers(ctx context.Context, limit, offset int) ([]User, error)
}

// NormalizeEmail lowercases and trims an address before validation or
// lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the address shape. It deliberately stays loose; the
// mailbox's existence is not our problem.
func ValidateEmail(email string) error {
	if email == "" || len(email) > 254 || !emailPattern.MatchString(email) {
		return ErrUserInvalidInput
	}
	return nil
}
