package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/storefront-kit/storefront/event"
)

// EventPublisher emits auth lifecycle events. Publishing is best effort;
// the service logs failures and carries on.
type EventPublisher interface {
	Publish(ctx context.Context, ev event.Event) error
}

// Service orchestrates registration, login, token verification, and profile
// management.
type Service struct {
	repo        UserRepository
	hasher      PasswordHasher
	tokens      *TokenProvider
	revocations *RevocationStore
	events      EventPublisher
	logger      *slog.Logger
	now         func() time.Time
}

// ServiceConfig wires dependencies for Service.
type ServiceConfig struct {
	Repository  UserRepository
	Hasher      PasswordHasher
	Tokens      *TokenProvider
	Revocations *RevocationStore
	Events      EventPublisher
	Logger      *slog.Logger
	Now         func() time.Time
}

// NewService validates the config and builds a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil {
		return nil, errors.New("auth: repository is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("auth: token provider is required")
	}
	if cfg.Revocations == nil {
		return nil, errors.New("auth: revocation store is required")
	}
	if cfg.Hasher == nil {
		cfg.Hasher = BcryptHasher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		repo:        cfg.Repository,
		hasher:      cfg.Hasher,
		tokens:      cfg.Tokens,
		revocations: cfg.Revocations,
		events:      cfg.Events,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}, nil
}

// Registration is the input to Register.
type Registration struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// Register creates a new account and announces it.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	reg.Email = NormalizeEmail(reg.Email)
	if err := ValidateEmail(reg.Email); err != nil {
		return User{}, err
	}
	if err := ValidatePassword(reg.Password); err != nil {
		return User{}, err
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return User{}, err
	}

	now := s.now().UTC()
	user := User{
		ID:           uuid.NewString(),
		Email:        reg.Email,
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		Phone:        reg.Phone,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return User{}, err
	}

	s.publish(ctx, event.KindUserCreated, map[string]string{
		"user_id": user.ID,
		"email":   user.Email,
	})
	return user, nil
}

// Login verifies credentials, issues a token, and caches a session keyed by
// the token's jti.
func (s *Service) Login(ctx context.Context, email, password string) (User, Token, error) {
	email = NormalizeEmail(email)
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, Token{}, ErrInvalidCredentials
		}
		return User{}, Token{}, err
	}
	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			return User{}, Token{}, ErrInvalidCredentials
		}
		return User{}, Token{}, err
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return User{}, Token{}, err
	}

	if err := s.revocations.CreateSession(ctx, Session{
		ID:        token.ID,
		UserID:    user.ID,
		Email:     user.Email,
		CreatedAt: token.IssuedAt,
		ExpiresAt: token.ExpiresAt,
	}); err != nil {
		s.logger.Warn("session not cached", "user_id", user.ID, "error", err)
	}

	s.publish(ctx, event.KindUserLogin, map[string]string{
		"user_id": user.ID,
		"email":   user.Email,
	})
	return user, token, nil
}

// Logout revokes the token for its remaining lifetime and drops the session.
func (s *Service) Logout(ctx context.Context, token Token) error {
	remaining := token.Remaining(s.now())
	if err := s.revocations.Revoke(ctx, token.ID, remaining); err != nil {
		return err
	}
	s.revocations.DestroySession(ctx, token.ID)

	s.publish(ctx, event.KindUserLogout, map[string]string{
		"user_id": token.UserID,
	})
	return nil
}

// Authenticate parses a raw bearer token, checks the denylist, and loads the
// account it belongs to.
func (s *Service) Authenticate(ctx context.Context, raw string) (User, Token, error) {
	token, err := s.tokens.Parse(raw)
	if err != nil {
		return User{}, Token{}, err
	}
	if s.revocations.IsRevoked(ctx, token.ID) {
		return User{}, Token{}, ErrTokenInvalid
	}
	user, err := s.repo.GetUserByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, Token{}, ErrTokenInvalid
		}
		return User{}, Token{}, err
	}
	return user, token, nil
}

// UpdateProfile applies a partial update to the user's profile fields.
func (s *Service) UpdateProfile(ctx context.Context, userID string, patch UserPatch) (User, error) {
	if patch.Empty() {
		return User{}, fmt.Errorf("%w: empty patch", ErrUserInvalidInput)
	}
	return s.repo.UpdateUserPartial(ctx, userID, patch)
}

// ChangePassword verifies the current password before storing a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := ValidatePassword(next); err != nil {
		return err
	}
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.hasher.Verify(user.PasswordHash, current); err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			return ErrInvalidCredentials
		}
		return err
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	return s.repo.UpdateUserPassword(ctx, userID, hash)
}

// GetUser loads an account by ID.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// ListUsers pages through accounts.
func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]User, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListUsers(ctx, limit, offset)
}

func (s *Service) publish(ctx context.Context, kind string, data any) {
	if s.events == nil {
		return
	}
	ev, err := event.New(kind, data)
	if err != nil {
		s.logger.Error("event not built", "kind", kind, "error", err)
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("event not published", "kind", kind, "error", err)
	}
}
