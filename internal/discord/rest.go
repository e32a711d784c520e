package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// RESTClient implements Client over the service's HTTP API plus the
// websocket gateway.
type RESTClient struct {
	baseURL    string
	gatewayURL string
	http       *http.Client
	log        zerolog.Logger
}

var _ Client = (*RESTClient)(nil)

// NewRESTClient builds a client for the given API base URL and gateway
// websocket URL. The http.Client's timeout is left to the caller; all
// calls honor their context.
func NewRESTClient(baseURL, gatewayURL string, httpClient *http.Client, logger zerolog.Logger) *RESTClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RESTClient{
		baseURL:    baseURL,
		gatewayURL: gatewayURL,
		http:       httpClient,
		log:        logger.With().Str("component", "discord_rest").Logger(),
	}
}

// Login implements Client.
func (c *RESTClient) Login(ctx context.Context, email, password string) (Auth, error) {
	body := map[string]string{"email": email, "password": password}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &resp); err != nil {
		return Auth{}, fmt.Errorf("login: %w", err)
	}

	profile, err := c.ValidateToken(ctx, resp.Token)
	if err != nil {
		return Auth{}, fmt.Errorf("login profile: %w", err)
	}
	return Auth{Token: resp.Token, Profile: profile}, nil
}

// ValidateToken implements Client.
func (c *RESTClient) ValidateToken(ctx context.Context, token string) (Profile, error) {
	var profile Profile
	if err := c.do(ctx, http.MethodGet, "/users/@me", token, nil, &profile); err != nil {
		return Profile{}, fmt.Errorf("validate token: %w", err)
	}
	return profile, nil
}

// ChangeIdentity implements Client.
func (c *RESTClient) ChangeIdentity(ctx context.Context, token, newName, password string) (Profile, error) {
	body := map[string]string{"username": newName, "password": password}
	var profile Profile
	if err := c.do(ctx, http.MethodPatch, "/users/@me", token, body, &profile); err != nil {
		return Profile{}, fmt.Errorf("change identity: %w", err)
	}
	return profile, nil
}

// Logout implements Client.
func (c *RESTClient) Logout(ctx context.Context, token string) error {
	if err := c.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// ListGuilds implements Client.
func (c *RESTClient) ListGuilds(ctx context.Context, token string) ([]Guild, error) {
	var guilds []Guild
	if err := c.do(ctx, http.MethodGet, "/users/@me/guilds", token, nil, &guilds); err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}
	return guilds, nil
}

// SendMessage implements Client.
func (c *RESTClient) SendMessage(ctx context.Context, token, channelID, text, nonce string) (string, error) {
	body := map[string]string{"content": text, "nonce": nonce}
	var resp struct {
		ID string `json:"id"`
	}
	path := "/channels/" + channelID + "/messages"
	if err := c.do(ctx, http.MethodPost, path, token, body, &resp); err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// do issues one JSON request. A non-2xx status maps onto the package
// sentinel errors where the code is meaningful.
func (c *RESTClient) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("rest call")

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
