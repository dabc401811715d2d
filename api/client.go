// Package api implements the typed client for the remote auth service:
// register, login, logout, refresh, and identity lookup over HTTP with JSON
// bodies.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/utafrali/AuthClientGo/httpclient"
)

// HTTPDoer is the interface for executing HTTP requests. Both
// httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client calls the auth service endpoints. Requests for authenticated
// operations rely on the doer's request hooks to attach the access token;
// Refresh attaches the refresh token explicitly.
type Client struct {
	doer    HTTPDoer
	baseURL string
}

// NewClient creates a typed auth service client over the given doer.
func NewClient(doer HTTPDoer, baseURL string) *Client {
	return &Client{
		doer:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Register creates a new account and returns the issued token pair.
func (c *Client) Register(ctx context.Context, creds Credentials) (*TokenPair, error) {
	return c.postCredentials(ctx, "/auth/register", creds)
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, creds Credentials) (*TokenPair, error) {
	return c.postCredentials(ctx, "/auth/login", creds)
}

// Logout invalidates the current session on the server. The access token is
// attached by the doer's request hooks.
func (c *Client) Logout(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/logout", http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create logout request: %w", err)
	}

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("call logout: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", httpclient.ParseResponseError(resp, "logout")
	}

	var msg MessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return "", fmt.Errorf("decode logout response: %w", err)
	}
	return msg.Message, nil
}

// Me fetches the identity of the currently authenticated user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/me", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create identity request: %w", err)
	}

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call identity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, "identity")
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode identity response: %w", err)
	}
	return &user, nil
}

// Refresh exchanges the refresh token for a new token pair. The refresh token
// is attached as the bearer credential explicitly, so this call works against
// any doer, hooked or not.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/refresh", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+refreshToken)

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, "refresh")
	}

	var pair TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}
	return &pair, nil
}

func (c *Client) postCredentials(ctx context.Context, path string, creds Credentials) (*TokenPair, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("marshal credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, httpclient.ParseResponseError(resp, path)
	}

	var pair TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	return &pair, nil
}
