package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/storefront-kit/storefront/cache"
)

var (
	ErrRevocationUnavailable = errors.New("auth: revocation store unavailable")
	ErrSessionNotFound       = errors.New("auth: session not found")
)

const (
	revokedKeyPrefix = "revoked:"
	sessionKeyPrefix = "session:"

	// DefaultSessionTTL matches the token lifetime so sessions and tokens
	// expire together.
	DefaultSessionTTL = 24 * time.Hour
)

// Session is the cached view of a logged-in user. The ID is the jti of the
// token issued at login, so destroying a session and revoking its token use
// the same handle.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RevocationStore tracks revoked token IDs and active sessions in the cache.
//
// Revocation rides on the cache's degraded mode: when the backend is down,
// the fail-open default treats every token as not revoked (availability over
// strictness), while fail-closed rejects all tokens until the backend is
// back.
type RevocationStore struct {
	cache      *cache.Cache
	sessionTTL time.Duration
	failClosed bool
	now        func() time.Time
}

// RevocationOption customizes a RevocationStore.
type RevocationOption func(*RevocationStore)

// WithRevocationFailClosed makes IsRevoked treat an unavailable backend as
// "revoked", rejecting every token while the cache is down.
func WithRevocationFailClosed() RevocationOption {
	return func(r *RevocationStore) { r.failClosed = true }
}

// WithSessionTTL overrides the session lifetime.
func WithSessionTTL(ttl time.Duration) RevocationOption {
	return func(r *RevocationStore) {
		if ttl > 0 {
			r.sessionTTL = ttl
		}
	}
}

// WithRevocationNow injects a deterministic clock for tests.
func WithRevocationNow(fn func() time.Time) RevocationOption {
	return func(r *RevocationStore) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRevocationStore builds a store over the given cache.
func NewRevocationStore(c *cache.Cache, opts ...RevocationOption) *RevocationStore {
	r := &RevocationStore{cache: c, sessionTTL: DefaultSessionTTL, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Revoke denylists a token ID for its remaining lifetime. Unlike other cache
// writes this one is load-bearing, so a failed write is surfaced as
// ErrRevocationUnavailable rather than absorbed.
func (r *RevocationStore) Revoke(ctx context.Context, tokenID string, remaining time.Duration) error {
	if tokenID == "" {
		return fmt.Errorf("%w: empty token id", ErrRevocationUnavailable)
	}
	if remaining < time.Second {
		remaining = time.Second
	}
	if !r.cache.Set(ctx, revokedKeyPrefix+tokenID, []byte("1"), remaining) {
		return ErrRevocationUnavailable
	}
	return nil
}

// IsRevoked reports whether a token ID has been denylisted. Whenever the
// cache cannot be consulted, at startup or mid-process, the answer follows
// the fail-open/fail-closed policy.
func (r *RevocationStore) IsRevoked(ctx context.Context, tokenID string) bool {
	revoked, err := r.cache.ExistsErr(ctx, revokedKeyPrefix+tokenID)
	if err != nil {
		return r.failClosed
	}
	return revoked
}

// CreateSession caches the session payload. Best effort: a failed write just
// means session lookups will miss.
func (r *RevocationStore) CreateSession(ctx context.Context, s Session) error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty session id", ErrSessionNotFound)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now().UTC()
	}
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = s.CreatedAt.Add(r.sessionTTL)
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("auth: encode session: %w", err)
	}
	r.cache.Set(ctx, sessionKeyPrefix+s.ID, payload, s.ExpiresAt.Sub(r.now()))
	return nil
}

// GetSession loads a cached session. Expired or missing payloads both read
// as ErrSessionNotFound.
func (r *RevocationStore) GetSession(ctx context.Context, id string) (Session, error) {
	payload, ok := r.cache.Get(ctx, sessionKeyPrefix+id)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		r.cache.Delete(ctx, sessionKeyPrefix+id)
		return Session{}, ErrSessionNotFound
	}
	if !s.ExpiresAt.IsZero() && !r.now().Before(s.ExpiresAt) {
		r.cache.Delete(ctx, sessionKeyPrefix+id)
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

// DestroySession drops the cached session.
func (r *RevocationStore) DestroySession(ctx context.Context, id string) {
	r.cache.Delete(ctx, sessionKeyPrefix+id)
}
