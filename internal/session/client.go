package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"chatlens/internal/api"
)

// HTTPDoer issues HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// AuthClient calls the unauthenticated auth endpoints directly, outside the
// Authorize path.
type AuthClient struct {
	baseURL    string
	httpClient HTTPDoer
}

// NewAuthClient constructs an auth endpoint client.
func NewAuthClient(baseURL string, httpClient HTTPDoer) *AuthClient {
	return &AuthClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
	}
}

// Login exchanges credentials for a token pair.
func (c *AuthClient) Login(ctx context.Context, email, password string) (api.TokenPair, error) {
	var pair api.TokenPair
	err := c.postJSON(ctx, "/auth/login", api.LoginRequest{Email: email, Password: password}, &pair)
	if err != nil {
		return api.TokenPair{}, fmt.Errorf("login: %w", err)
	}
	return pair, nil
}

// Register creates an account and returns its first token pair.
func (c *AuthClient) Register(ctx context.Context, req api.RegisterRequest) (api.TokenPair, error) {
	var pair api.TokenPair
	if err := c.postJSON(ctx, "/auth/register", req, &pair); err != nil {
		return api.TokenPair{}, fmt.Errorf("register: %w", err)
	}
	return pair, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (c *AuthClient) Refresh(ctx context.Context, refreshToken string) (api.TokenPair, error) {
	var pair api.TokenPair
	err := c.postJSON(ctx, "/auth/refresh", api.RefreshRequest{RefreshToken: refreshToken}, &pair)
	if err != nil {
		return api.TokenPair{}, fmt.Errorf("refresh: %w", err)
	}
	return pair, nil
}

// Logout invalidates a refresh token server-side. Best-effort; callers ignore
// the error beyond logging.
func (c *AuthClient) Logout(ctx context.Context, accessToken, refreshToken string) error {
	encoded, err := json.Marshal(api.RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return fmt.Errorf("logout: encode request: %w", err)
	}
	endpoint, err := url.JoinPath(c.baseURL, "/auth/logout")
	if err != nil {
		return fmt.Errorf("logout: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("logout: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("logout: request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("logout: http %d", resp.StatusCode)
	}
	return nil
}

func (c *AuthClient) postJSON(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &api.Error{StatusCode: resp.StatusCode}
		if decodeErr := json.Unmarshal(payload, apiErr); decodeErr != nil || strings.TrimSpace(apiErr.Detail) == "" {
			apiErr.Detail = strings.TrimSpace(string(payload))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
