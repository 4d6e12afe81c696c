package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultTimeout bounds every backend call made through the facade.
const DefaultTimeout = 2 * time.Second

// Cache wraps a Store with bounded timeouts and error absorption. The cache
// is a pure optimization: a timeout or backend error is indistinguishable
// from a miss, and a failed write is reported as the backend simply not
// accepting it. When the backend is unreachable at construction time the
// facade selects a no-op backend once and keeps it for the process lifetime.
type Cache struct {
	store   Store
	enabled bool
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Cache)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for absorbed backend errors.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a Cache over the given backend. The backend is pinged once; if
// it does not answer, caching is disabled for good and every operation
// becomes a no-op returning miss/failure.
func New(ctx context.Context, store Store, opts ...Option) *Cache {
	c := &Cache{
		store:   store,
		enabled: true,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if store == nil {
		c.disable(nil)
		return c
	}

	pingCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		c.disable(err)
	}
	return c
}

// Disabled returns a Cache that is permanently in degraded mode. Useful for
// boots that intentionally run without a cache backend.
func Disabled() *Cache {
	return &Cache{store: noopStore{}, timeout: DefaultTimeout, logger: slog.Default()}
}

func (c *Cache) disable(err error) {
	c.store = noopStore{}
	c.enabled = false
	if err != nil {
		c.logger.Warn("cache backend unreachable, caching disabled", "error", err)
	}
}

// Enabled reports whether a live backend was selected at construction.
func (c *Cache) Enabled() bool { return c.enabled }

// Get returns the value for key, or ok=false on miss, expiry, timeout, or
// any backend error.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	value, err := c.store.Get(opCtx, key)
	if err != nil {
		c.absorb("get", key, err)
		return nil, false
	}
	return value, true
}

// Set stores value under key for ttl. A false return means the backend did
// not accept the write; callers proceed as if nothing happened.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	if err := c.store.Set(opCtx, key, value, ttl); err != nil {
		c.absorb("set", key, err)
		return false
	}
	return true
}

// Delete removes the given keys and returns how many existed.
func (c *Cache) Delete(ctx context.Context, keys ...string) int {
	if len(keys) == 0 {
		return 0
	}
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	removed, err := c.store.Delete(opCtx, keys...)
	if err != nil {
		c.absorb("delete", keys[0], err)
		return 0
	}
	return removed
}

// DeletePrefix removes every key starting with prefix and returns the count.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) int {
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	removed, err := c.store.DeletePrefix(opCtx, prefix)
	if err != nil {
		c.absorb("delete_prefix", prefix, err)
		return 0
	}
	return removed
}

// CountPrefix returns how many keys start with prefix, or 0 on any backend
// error.
func (c *Cache) CountPrefix(ctx context.Context, prefix string) int {
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	n, err := c.store.CountPrefix(opCtx, prefix)
	if err != nil {
		c.absorb("count_prefix", prefix, err)
		return 0
	}
	return n
}

// Exists reports whether key holds an unexpired entry. TTL semantics match
// Get: an expired or unreachable entry reads as absent.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	ok, _ := c.ExistsErr(ctx, key)
	return ok
}

// ExistsErr is Exists for callers that must tell a miss from an outage: the
// error is non-nil whenever the backend could not be consulted, including
// the permanently disabled mode.
func (c *Cache) ExistsErr(ctx context.Context, key string) (bool, error) {
	if !c.enabled {
		return false, ErrDisabled
	}
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	ok, err := c.store.Exists(opCtx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		c.absorb("exists", key, err)
		return false, err
	}
	return ok, nil
}

// Healthy pings the backend. Always false in disabled mode.
func (c *Cache) Healthy(ctx context.Context) bool {
	if !c.enabled {
		return false
	}
	opCtx, cancel := c.opContext(ctx)
	defer cancel()
	return c.store.Ping(opCtx) == nil
}

func (c *Cache) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Cache) absorb(op, key string, err error) {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDisabled) {
		return
	}
	c.logger.Debug("cache operation failed", "op", op, "key", key, "error", err)
}
