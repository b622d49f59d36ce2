// Package collabhub is a Go client for the CollabHub auth API. Besides the
// account calls it offers net/http middleware that authenticates requests by
// asking the auth service who a bearer token belongs to.
package collabhub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Config holds the configuration for the CollabHub client.
type Config struct {
	// BaseURL is the root URL of the auth service.
	// Examples: "https://collabhub.example.com" or "https://collabhub.example.com/api"
	BaseURL string

	// CacheTTL controls how long validated tokens are cached in memory.
	// Logout blacklists access tokens server side, so keep this short.
	// Set to a negative value to disable caching. Default: 30 seconds
	CacheTTL time.Duration

	// HTTPClient is an optional custom HTTP client.
	// If nil, a default client with 10s timeout is used.
	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.CacheTTL == 0 {
		c.CacheTTL = 30 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
}

// Client calls the CollabHub auth API.
type Client struct {
	cfg   Config
	cache *gocache.Cache
}

// NewClient creates a new client with the given configuration.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	c := &Client{cfg: cfg}
	if cfg.CacheTTL > 0 {
		c.cache = gocache.New(cfg.CacheTTL, 5*time.Minute)
	}
	return c
}

// ValidateToken returns the user an access token belongs to. Results are
// cached for CacheTTL.
func (c *Client) ValidateToken(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(token); ok {
			return cached.(*User), nil
		}
	}

	var user User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, token, &user); err != nil {
		if apiErr, ok := IsAPIError(err); ok {
			switch apiErr.StatusCode {
			case http.StatusUnauthorized:
				return nil, ErrTokenInvalid
			case http.StatusForbidden:
				return nil, ErrTokenForbidden
			}
		}
		return nil, err
	}

	if c.cache != nil {
		c.cache.SetDefault(token, &user)
	}
	return &user, nil
}

// InvalidateToken removes a token from the local cache.
func (c *Client) InvalidateToken(token string) {
	if c.cache != nil {
		c.cache.Delete(token)
	}
}

// Register creates a new account. The account must verify its email before
// it can log in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	var resp RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", req, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login authenticates with email and password. When the account has MFA
// enabled and req.MFACode is empty the returned error satisfies
// IsMFARequired.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh exchanges a refresh token for a new pair. The old refresh token
// stops working.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var resp TokenPair
	body := map[string]string{"refresh": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", body, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout revokes the refresh token and the access token used for the call.
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	body := map[string]string{"refresh": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/logout", body, accessToken, nil); err != nil {
		return err
	}
	c.InvalidateToken(accessToken)
	return nil
}

// VerifyEmail redeems an email verification token.
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodGet, "/auth/verify-email/"+url.PathEscape(token), nil, "", nil)
}

// RequestPasswordReset asks for a reset email. The call succeeds whether or
// not the address has an account.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/password-reset", map[string]string{"email": email}, "", nil)
}

// ResetPassword sets a new password with a reset token.
func (c *Client) ResetPassword(ctx context.Context, token, password string) error {
	body := map[string]string{"password": password}
	return c.do(ctx, http.MethodPost, "/auth/password-reset/"+url.PathEscape(token), body, "", nil)
}

// do sends a JSON request and decodes a JSON response into out when set.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}, token string, out interface{}) error {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("collabhub: failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("collabhub: failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("collabhub: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("collabhub: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseAPIError(resp.StatusCode, body)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("collabhub: failed to parse response: %w", err)
		}
	}
	return nil
}
