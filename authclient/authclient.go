// Package authclient verifies bearer tokens against the user service over
// HTTP. The product service uses it to guard write endpoints without
// sharing the JWT secret.
package authclient

import (
	"context"
	"errors"
	"time"

	"github.com/storefront-kit/storefront/httpx"
)

var ErrUnauthorized = errors.New("authclient: token rejected")

// Identity is the verified caller returned by the user service.
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
}

// Client calls the user service's profile endpoint to validate tokens.
type Client struct {
	http *httpx.Client
}

// New builds a client for the user service at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{http: httpx.NewClient(
		httpx.WithBaseURL(baseURL),
		httpx.WithClientTimeout(timeout),
	)}
}

// Verify presents the bearer token to the user service and returns the
// identity it maps to. Any non-2xx answer reads as ErrUnauthorized; the
// caller cannot distinguish a bad token from a revoked one, and does not
// need to.
func (c *Client) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthorized
	}
	var identity Identity
	resp, err := c.http.Get(ctx, "/api/users/profile", &identity, httpx.WithBearer(token))
	if err != nil {
		if resp != nil && resp.IsError() {
			return Identity{}, ErrUnauthorized
		}
		return Identity{}, err
	}
	if identity.UserID == "" {
		return Identity{}, ErrUnauthorized
	}
	return identity, nil
}
