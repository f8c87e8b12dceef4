package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/slok/cartpool/internal/model"
)

// ClientConfig is the configuration for the API client.
type ClientConfig struct {
	// Address is the API base URL, a bare host:port uses http.
	Address    string
	HTTPClient *http.Client
}

func (c *ClientConfig) defaults() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	if !strings.Contains(c.Address, "://") {
		if strings.HasPrefix(c.Address, ":") {
			c.Address = "127.0.0.1" + c.Address
		}
		c.Address = "http://" + c.Address
	}
	if _, err := url.Parse(c.Address); err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	c.Address = strings.TrimSuffix(c.Address, "/")
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return nil
}

// Client is a client of the cartpool API.
type Client struct {
	address string
	cli     *http.Client
}

// NewClient returns a new API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{address: cfg.Address, cli: cfg.HTTPClient}, nil
}

// RunTask enqueues a run of a task.
func (c *Client) RunTask(ctx context.Context, taskID, cardFriendlyName string) error {
	body, err := json.Marshal(RunTaskRequest{CardFriendlyName: cardFriendlyName})
	if err != nil {
		return fmt.Errorf("could not marshal request: %w", err)
	}

	var resp RunTaskResponse
	return c.do(ctx, http.MethodPost, "/v1/tasks/"+url.PathEscape(taskID)+"/run", body, &resp)
}

// ListSessions returns the active browser sessions.
func (c *Client) ListSessions(ctx context.Context) ([]model.ActiveSession, error) {
	var resp ListSessionsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/sessions", nil, &resp); err != nil {
		return nil, err
	}

	sessions := make([]model.ActiveSession, 0, len(resp.Sessions))
	for _, s := range resp.Sessions {
		sessions = append(sessions, mapSessionToModel(s))
	}
	return sessions, nil
}

// GetSession returns the active browser session of a task.
func (c *Client) GetSession(ctx context.Context, taskID string) (*model.ActiveSession, error) {
	var resp Session
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(taskID), nil, &resp); err != nil {
		return nil, err
	}

	s := mapSessionToModel(resp)
	return &s, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.address+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.cli.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("api returned status %d: %s: %w", resp.StatusCode, apiErr.Error, statusError(resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	return nil
}

func statusError(status int) error {
	switch status {
	case http.StatusNotFound:
		return model.ErrNotFound
	case http.StatusConflict:
		return model.ErrAlreadyExists
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return model.ErrNotValid
	}
	return fmt.Errorf("%s", http.StatusText(status))
}
