package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/storefront-kit/storefront/cache"
	"github.com/storefront-kit/storefront/cache/memory"
)

func newRevocationStore(t *testing.T, opts ...RevocationOption) *RevocationStore {
	t.Helper()
	c := cache.New(context.Background(), memory.NewStore())
	return NewRevocationStore(c, opts...)
}

func TestRevokeAndIsRevoked(t *testing.T) {
	store := newRevocationStore(t)
	ctx := context.Background()

	if store.IsRevoked(ctx, "jti-1") {
		t.Fatal("IsRevoked() before revoke = true, want false")
	}
	if err := store.Revoke(ctx, "jti-1", time.Hour); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if !store.IsRevoked(ctx, "jti-1") {
		t.Fatal("IsRevoked() after revoke = false, want true")
	}
	if store.IsRevoked(ctx, "jti-2") {
		t.Fatal("IsRevoked() for other token = true, want false")
	}
}

func TestRevokeClampsTinyTTL(t *testing.T) {
	store := newRevocationStore(t)
	ctx := context.Background()

	// Even a token about to expire stays on the denylist for a moment.
	if err := store.Revoke(ctx, "jti-1", -time.Minute); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if !store.IsRevoked(ctx, "jti-1") {
		t.Fatal("IsRevoked() = false, want true")
	}
}

func TestRevokeUnavailableBackend(t *testing.T) {
	store := NewRevocationStore(cache.Disabled())
	if err := store.Revoke(context.Background(), "jti-1", time.Hour); !errors.Is(err, ErrRevocationUnavailable) {
		t.Fatalf("Revoke() error = %v, want ErrRevocationUnavailable", err)
	}
}

func TestIsRevokedPolicyWhenUnavailable(t *testing.T) {
	ctx := context.Background()

	failOpen := NewRevocationStore(cache.Disabled())
	if failOpen.IsRevoked(ctx, "jti-1") {
		t.Fatal("fail-open IsRevoked() = true, want false")
	}

	failClosed := NewRevocationStore(cache.Disabled(), WithRevocationFailClosed())
	if !failClosed.IsRevoked(ctx, "jti-1") {
		t.Fatal("fail-closed IsRevoked() = false, want true")
	}
}

// outageStore delegates to a live backend until down is flipped, modelling a
// backend that dies after a healthy start.
type outageStore struct {
	inner cache.Store
	down  bool
}

var errCacheOutage = errors.New("backend down")

func (s *outageStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.down {
		return nil, errCacheOutage
	}
	return s.inner.Get(ctx, key)
}

func (s *outageStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.down {
		return errCacheOutage
	}
	return s.inner.Set(ctx, key, value, ttl)
}

func (s *outageStore) Delete(ctx context.Context, keys ...string) (int, error) {
	if s.down {
		return 0, errCacheOutage
	}
	return s.inner.Delete(ctx, keys...)
}

func (s *outageStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if s.down {
		return 0, errCacheOutage
	}
	return s.inner.DeletePrefix(ctx, prefix)
}

func (s *outageStore) CountPrefix(ctx context.Context, prefix string) (int, error) {
	if s.down {
		return 0, errCacheOutage
	}
	return s.inner.CountPrefix(ctx, prefix)
}

func (s *outageStore) Exists(ctx context.Context, key string) (bool, error) {
	if s.down {
		return false, errCacheOutage
	}
	return s.inner.Exists(ctx, key)
}

func (s *outageStore) Ping(ctx context.Context) error {
	if s.down {
		return errCacheOutage
	}
	return s.inner.Ping(ctx)
}

func TestIsRevokedPolicyDuringRuntimeOutage(t *testing.T) {
	tests := []struct {
		name        string
		opts        []RevocationOption
		wantRevoked bool
	}{
		{"fail-open accepts", nil, false},
		{"fail-closed rejects", []RevocationOption{WithRevocationFailClosed()}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &outageStore{inner: memory.NewStore()}
			store := NewRevocationStore(cache.New(context.Background(), backend), tt.opts...)
			ctx := context.Background()

			if err := store.Revoke(ctx, "jti-1", time.Hour); err != nil {
				t.Fatalf("Revoke() error = %v", err)
			}
			if !store.IsRevoked(ctx, "jti-1") {
				t.Fatal("IsRevoked() with live backend = false, want true")
			}
			if store.IsRevoked(ctx, "jti-2") {
				t.Fatal("IsRevoked() for unrevoked token = true, want false")
			}

			// Backend dies after the healthy start; the policy must hold even
			// though the cache was enabled at construction.
			backend.down = true
			if got := store.IsRevoked(ctx, "jti-2"); got != tt.wantRevoked {
				t.Fatalf("IsRevoked() during outage = %v, want %v", got, tt.wantRevoked)
			}
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := newRevocationStore(t)
	ctx := context.Background()

	session := Session{ID: "jti-1", UserID: "u1", Email: "alice@example.com"}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	got, err := store.GetSession(ctx, "jti-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.UserID != "u1" || got.Email != "alice@example.com" {
		t.Fatalf("GetSession() = %+v", got)
	}
	if got.ExpiresAt.IsZero() {
		t.Fatal("session has no expiry")
	}

	store.DestroySession(ctx, "jti-1")
	if _, err := store.GetSession(ctx, "jti-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("GetSession() after destroy error = %v, want ErrSessionNotFound", err)
	}
}

func TestGetSessionExpiredPayload(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := newRevocationStore(t, WithRevocationNow(clock), WithSessionTTL(time.Hour))
	ctx := context.Background()

	if err := store.CreateSession(ctx, Session{ID: "jti-1", UserID: "u1"}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	// Payload still cached but logically expired.
	now = now.Add(2 * time.Hour)
	if _, err := store.GetSession(ctx, "jti-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("GetSession() error = %v, want ErrSessionNotFound", err)
	}
}
