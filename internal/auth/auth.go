// Package auth resolves API bearer tokens against the external identity
// gateway. The service keeps no passwords or sessions of its own.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized covers rejected, expired and malformed tokens alike.
var ErrUnauthorized = errors.New("token inválido ou expirado")

// Identity is the authenticated subject as the gateway reports it.
type Identity struct {
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	WhatsApp string `json:"whatsapp"`
}

// Verifier turns a bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// GatewayClient is the HTTP adapter for the identity gateway.
type GatewayClient struct {
	baseURL    string
	httpClient *http.Client
}

type GatewayOption func(*GatewayClient)

// WithHTTPClient replaces the underlying HTTP client. Used in tests.
func WithHTTPClient(hc *http.Client) GatewayOption {
	return func(c *GatewayClient) { c.httpClient = hc }
}

func NewGatewayClient(baseURL string, opts ...GatewayOption) *GatewayClient {
	c := &GatewayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *GatewayClient) Verify(ctx context.Context, token string) (Identity, error) {
	if strings.TrimSpace(token) == "" {
		return Identity{}, ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/verify", nil)
	if err != nil {
		return Identity{}, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("call auth gateway: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var id Identity
		if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
			return Identity{}, fmt.Errorf("decode identity: %w", err)
		}
		if id.UserID == "" {
			return Identity{}, fmt.Errorf("auth gateway returned identity without user id")
		}
		return id, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Identity{}, ErrUnauthorized
	default:
		return Identity{}, fmt.Errorf("auth gateway returned status %d", resp.StatusCode)
	}
}
