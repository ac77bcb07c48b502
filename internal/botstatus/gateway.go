package botstatus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/darklock-sec/darklock-console/internal/shared"
)

// Gateway abstracts the bot gateway transport.
type Gateway interface {
	Status(ctx context.Context) (Snapshot, error)
	Restart(ctx context.Context) error
}

// HTTPGateway talks to the bot gateway over HTTP with short-lived HS256
// service tokens.
type HTTPGateway struct {
	baseURL string
	secret  []byte
	client  *http.Client
	now     func() time.Time
}

// NewHTTPGateway constructs an HTTPGateway.
func NewHTTPGateway(baseURL, secret string) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		secret:  []byte(secret),
		client:  &http.Client{Timeout: 5 * time.Second},
		now:     time.Now,
	}
}

// Status fetches the live snapshot from the gateway.
func (g *HTTPGateway) Status(ctx context.Context) (Snapshot, error) {
	resp, err := g.do(ctx, http.MethodGet, "/internal/status", nil)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Snapshot{}, fmt.Errorf("botstatus: gateway status %d: %w", resp.StatusCode, shared.ErrUpstreamUnavailable)
	}
	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("botstatus: decode gateway response: %w", shared.ErrUpstreamUnavailable)
	}
	snap.ObservedAt = g.now().UTC()
	return snap, nil
}

// Restart asks the gateway to restart the bot process.
func (g *HTTPGateway) Restart(ctx context.Context) error {
	resp, err := g.do(ctx, http.MethodPost, "/internal/restart", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("botstatus: gateway restart status %d: %w", resp.StatusCode, shared.ErrUpstreamUnavailable)
	}
	return nil
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	token, err := g.serviceToken()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("botstatus: gateway request: %w", shared.ErrUpstreamUnavailable)
	}
	return resp, nil
}

// serviceToken mints a short-lived token so a leaked value is useless
// within a minute.
func (g *HTTPGateway) serviceToken() (string, error) {
	now := g.now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    "darklock-console",
		Audience:  jwt.ClaimStrings{"bot-gateway"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
}
