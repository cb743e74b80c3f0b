// ABOUTME: Login and registration calls against /auth
// ABOUTME: Accepts token responses and bare-user registration responses

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Login exchanges credentials for an access token and user record.
func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResult, error) {
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", creds, &resp, false); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" || resp.User == nil {
		return nil, fmt.Errorf("%w: login response missing access_token or user", ErrMalformedResponse)
	}
	return &AuthResult{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
		ExpiresIn:   resp.ExpiresIn,
		User:        *resp.User,
	}, nil
}

// Register creates an account. Some backends answer with a full token
// response, others with just the created user; both are accepted.
func (c *Client) Register(ctx context.Context, reg Registration) (*AuthResult, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/auth/register", reg, &raw, false); err != nil {
		return nil, err
	}

	var resp tokenResponse
	if err := json.Unmarshal(raw, &resp); err == nil && resp.AccessToken != "" {
		if resp.User == nil {
			return nil, fmt.Errorf("%w: register response missing user", ErrMalformedResponse)
		}
		return &AuthResult{
			AccessToken: resp.AccessToken,
			TokenType:   resp.TokenType,
			ExpiresIn:   resp.ExpiresIn,
			User:        *resp.User,
		}, nil
	}

	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("%w: register: %v", ErrMalformedResponse, err)
	}
	if user.Email == "" && user.ID == "" {
		return nil, fmt.Errorf("%w: register response has neither token nor user", ErrMalformedResponse)
	}
	return &AuthResult{User: user}, nil
}
