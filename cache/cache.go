package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound signals that a key is absent or has expired.
	ErrNotFound = errors.New("cache: key not found")
	// ErrDisabled is returned by the no-op backend selected when the real
	// backend was unreachable at startup.
	ErrDisabled = errors.New("cache: backend disabled")
)

// Store represents a TTL-based key/value backend that can be implemented by
// Redis, memory, or any other KV store. A ttl of zero or less means no expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int, error)
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	CountPrefix(ctx context.Context, prefix string) (int, error)
	Exists(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
}

// noopStore stands in for an unreachable backend so callers never have to
// special-case a disabled cache.
type noopStore struct{}

func (noopStore) Get(context.Context, string) ([]byte, error) { return nil, ErrNotFound }

func (noopStore) Set(context.Context, string, []byte, time.Duration) error { return ErrDisabled }

func (noopStore) Delete(context.Context, ...string) (int, error) { return 0, nil }

func (noopStore) DeletePrefix(context.Context, string) (int, error) { return 0, nil }

func (noopStore) CountPrefix(context.Context, string) (int, error) { return 0, nil }

func (noopStore) Exists(context.Context, string) (bool, error) { return false, nil }

func (noopStore) Ping(context.Context) error { return ErrDisabled }
