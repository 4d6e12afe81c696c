package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/storefront-kit/storefront/cache"
)

// Store implements cache.Store by speaking the Redis RESP protocol directly
// over pooled TCP connections.
type Store struct {
	opts   Options
	dialFn dialFunc
	pool   chan *clientConn
}

type dialFunc func(context.Context, Options) (net.Conn, error)

// NewStore builds a Redis-backed cache store.
func NewStore(opts Options) *Store {
	cfg := opts.withDefaults()
	return &Store{opts: cfg, dialFn: defaultDial, pool: make(chan *clientConn, cfg.PoolSize)}
}

// WithDial allows overriding the dialer (useful for tests/mocks).
func (s *Store) WithDial(fn dialFunc) {
	if fn != nil {
		s.dialFn = fn
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	var payload []byte
	err := s.withConn(ctx, func(conn *clientConn) error {
		if err := s.send(conn, "GET", key); err != nil {
			return err
		}
		resp, err := s.read(conn)
		if err != nil {
			return err
		}
		switch v := resp.(type) {
		case nil:
			return cache.ErrNotFound
		case []byte:
			payload = append([]byte(nil), v...)
			return nil
		default:
			return fmt.Errorf("redis: unexpected GET response %T", resp)
		}
	})

	return payload, err
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}

	return s.withConn(ctx, func(conn *clientConn) error {
		args := []string{"SET", key, string(value)}
		if ttl > 0 {
			ms := ttl.Milliseconds()
			if ms == 0 {
				ms = 1
			}
			args = append(args, "PX", strconv.FormatInt(ms, 10))
		}
		if err := s.send(conn, args...); err != nil {
			return err
		}
		resp, err := s.read(conn)
		if err != nil {
			return err
		}
		if msg, ok := resp.(string); ok && strings.EqualFold(msg, "OK") {
			return nil
		}
		return fmt.Errorf("redis: SET failed: %v", resp)
	})
}

// Delete removes the given keys and returns how many the server reported
// as removed.
func (s *Store) Delete(ctx context.Context, keys ...string) (int, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	var removed int
	err := s.withConn(ctx, func(conn *clientConn) error {
		if err := s.send(conn, append([]string{"DEL"}, keys...)...); err != nil {
			return err
		}
		resp, err := s.read(conn)
		if err != nil {
			return err
		}
		n, ok := resp.(int64)
		if !ok {
			return fmt.Errorf("redis: DEL failed: %v", resp)
		}
		removed = int(n)
		return nil
	})
	return removed, err
}

// DeletePrefix scans for keys matching prefix* and deletes them in batches.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}

	pattern := escapeGlob(prefix) + "*"
	cursor := "0"
	total := 0
	for {
		keys, next, err := s.scan(ctx, cursor, pattern)
		if err != nil {
			return total, err
		}
		if len(keys) > 0 {
			removed, err := s.Delete(ctx, keys...)
			total += removed
			if err != nil {
				return total, err
			}
		}
		if next == "0" {
			return total, nil
		}
		cursor = next
	}
}

// CountPrefix scans for keys matching prefix* and returns how many exist.
func (s *Store) CountPrefix(ctx context.Context, prefix string) (int, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}

	pattern := escapeGlob(prefix) + "*"
	cursor := "0"
	total := 0
	for {
		keys, next, err := s.scan(ctx, cursor, pattern)
		if err != nil {
			return total, err
		}
		total += len(keys)
		if next == "0" {
			return total, nil
		}
		cursor = next
	}
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}

	var found bool
	err := s.withConn(ctx, func(conn *clientConn) error {
		if err := s.send(conn, "EXISTS", key); err != nil {
			return err
		}
		resp, err := s.read(conn)
		if err != nil {
			return err
		}
		n, ok := resp.(int64)
		if !ok {
			return fmt.Errorf("redis: EXISTS failed: %v", resp)
		}
		found = n > 0
		return nil
	})
	return found, err
}

func (s *Store) Ping(ctx context.Context) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}

	return s.withConn(ctx, func(conn *clientConn) error {
		if err := s.send(conn, "PING"); err != nil {
			return err
		}
		resp, err := s.read(conn)
		if err != nil {
			return err
		}
		if msg, ok := resp.(string); ok && strings.EqualFold(msg, "PONG") {
			return nil
		}
		return fmt.Errorf("redis: PING failed: %v", resp)
	})
}

func (s *Store) scan(ctx context.Context, cursor, pattern string) ([]string, string, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, "", err
	}

	var (
		keys []string
		next string
	)
	err := s.withConn(ctx, func(conn *clientConn) error {
		count := strconv.Itoa(deletePrefixScanLen)
		if err := s.send(conn, "SCAN", cursor, "MATCH", pattern, "COUNT", count); err != nil {
			return err
		}
		resp, err := s.read(conn)
		if err != nil {
			return err
		}
		arr, ok := resp.([]any)
		if !ok || len(arr) != 2 {
			return fmt.Errorf("redis: unexpected SCAN response %v", resp)
		}
		cursorBytes, ok := arr[0].([]byte)
		if !ok {
			return fmt.Errorf("redis: unexpected SCAN cursor %T", arr[0])
		}
		next = string(cursorBytes)
		elems, ok := arr[1].([]any)
		if !ok {
			return fmt.Errorf("redis: unexpected SCAN keys %T", arr[1])
		}
		for _, elem := range elems {
			key, ok := elem.([]byte)
			if !ok {
				return fmt.Errorf("redis: unexpected SCAN key %T", elem)
			}
			keys = append(keys, string(key))
		}
		return nil
	})
	return keys, next, err
}

// escapeGlob quotes glob metacharacters so a literal prefix never matches
// more than intended.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) withConn(ctx context.Context, fn func(*clientConn) error) error {
	conn, err := s.acquireConn(ctx)
	if err != nil {
		return err
	}
	broken := false
	defer func() {
		s.releaseConn(conn, broken)
	}()
	if err := fn(conn); err != nil {
		if isConnError(err) {
			broken = true
		}
		return err
	}
	return nil
}

func isConnError(err error) bool {
	var netErr net.Error
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.As(err, &netErr)
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
