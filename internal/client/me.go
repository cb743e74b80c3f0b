// ABOUTME: GET /auth/me for retrieving the authenticated user's identity
// ABOUTME: Used by the token validator to detect revoked or expired credentials

package client

import (
	"context"
	"fmt"
	"net/http"
)

// Me returns the user the current credential belongs to.
// A rejected credential yields an error matching ErrUnauthorized.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &user, true); err != nil {
		return nil, err
	}
	if user.ID == "" && user.Email == "" {
		return nil, fmt.Errorf("%w: /auth/me returned an empty user", ErrMalformedResponse)
	}
	return &user, nil
}
