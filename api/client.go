package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"sentinel/models"
)

var (
	// ErrUnauthorized indicates the bearer token is missing or expired.
	// Callers must route the session to re-authentication, never retry.
	ErrUnauthorized = errors.New("api: unauthorized")
	// ErrNotFound indicates a DM identifier matched no known user.
	ErrNotFound = errors.New("api: not found")
)

// Client talks to the secure-messaging backend.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient HTTPClient
}

// NewClient creates a Client with the default HTTP transport.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: http.DefaultClient,
	}
}

// ScanMessage submits message content for risk classification. The
// backend persists the message and returns its verdict in one round
// trip. A 401 maps to ErrUnauthorized; any other failure means the
// remote classifier is unavailable and the caller should fall back to
// the local rule engine.
func (c *Client) ScanMessage(ctx context.Context, request ScanRequest) (*ScanResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal scan request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.BaseURL+"/api/v1/threat-intel/scan",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("create scan request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	var response ScanResponse
	if err := c.do(req, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// FetchMessages returns the complete ordered message sequence for a
// channel. The result is authoritative and replaces local state.
func (c *Client) FetchMessages(ctx context.Context, channelID string) ([]WireMessage, error) {
	endpoint := c.BaseURL + "/api/v1/chat/messages?channel_id=" + url.QueryEscape(channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create fetch request: %w", err)
	}
	c.authorize(req)

	messages := make([]WireMessage, 0)
	if err := c.do(req, &messages); err != nil {
		return nil, err
	}

	return messages, nil
}

// StartDM asks the directory to resolve an identifier into a
// direct-message channel. Any non-success status except 401 is treated
// as "identifier not found".
func (c *Client) StartDM(ctx context.Context, identifier string) (*DMProvision, error) {
	body, err := json.Marshal(DMRequest{Identifier: identifier})
	if err != nil {
		return nil, fmt.Errorf("marshal dm request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.BaseURL+"/api/v1/chat/dm",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("create dm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("doing dm request: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	switch {
	case res.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case res.StatusCode < 200 || res.StatusCode > 299:
		return nil, ErrNotFound
	}

	var provision DMProvision
	if err := json.NewDecoder(res.Body).Decode(&provision); err != nil {
		return nil, fmt.Errorf("decode dm response: %w", err)
	}

	return &provision, nil
}

// ListDMs returns the currently known direct-message bindings.
func (c *Client) ListDMs(ctx context.Context) ([]models.DirectMessageBinding, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/v1/chat/dms", nil)
	if err != nil {
		return nil, fmt.Errorf("create dm list request: %w", err)
	}
	c.authorize(req)

	bindings := make([]models.DirectMessageBinding, 0)
	if err := c.do(req, &bindings); err != nil {
		return nil, err
	}

	return bindings, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.Token)
}

func (c *Client) do(req *http.Request, result any) error {
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("doing request: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		resBody, _ := io.ReadAll(res.Body)
		return fmt.Errorf("unexpected status code: %d: %s", res.StatusCode, resBody)
	}

	if err := json.NewDecoder(res.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
