package podbean

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// tokenCache holds the bearer token for one client. The token is never
// handed out at or after expiresAt.
type tokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns the cached token while it is valid and refreshes it
// otherwise.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.tokens.mu.Lock()
	defer c.tokens.mu.Unlock()

	now := c.now()
	if c.tokens.token != "" && now.Before(c.tokens.expiresAt) {
		return c.tokens.token, nil
	}

	token, err := c.requestToken(ctx)
	if err != nil {
		return "", err
	}

	c.tokens.token = token
	c.tokens.expiresAt = now.Add(c.cfg.TokenTTL)
	c.logger.Debug("access token refreshed", "expires_at", c.tokens.expiresAt)

	return token, nil
}

func (c *Client) requestToken(ctx context.Context) (string, error) {
	var resp tokenResponse
	err := c.doJSON(ctx, http.MethodPost, c.endpoint("/v1/oauth/token"), tokenRequest{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		GrantType:    "client_credentials",
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("obtain access token: %w", err)
	}

	token := strings.TrimSpace(resp.AccessToken)
	if token == "" {
		return "", errors.New("obtain access token: empty token in response")
	}
	return token, nil
}

// invalidateToken drops the cached token.
func (c *Client) invalidateToken() {
	c.tokens.mu.Lock()
	c.tokens.token = ""
	c.tokens.expiresAt = time.Time{}
	c.tokens.mu.Unlock()
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}
