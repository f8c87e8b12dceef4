package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/notify"
)

// SenderConfig is the configuration for the webhook sender.
type SenderConfig struct {
	URL        string
	HTTPClient *http.Client
	Logger     log.Logger
}

func (c *SenderConfig) defaults() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url scheme %q", u.Scheme)
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "notify.Webhook"})
	return nil
}

// Sender posts notifications as JSON to a webhook.
type Sender struct {
	url    string
	client *http.Client
	logger log.Logger
}

var _ notify.Sender = (*Sender)(nil)

// NewSender returns a new webhook sender.
func NewSender(cfg SenderConfig) (*Sender, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Sender{
		url:    cfg.URL,
		client: cfg.HTTPClient,
		logger: cfg.Logger,
	}, nil
}

type payload struct {
	TaskID           string `json:"taskId"`
	CheckoutComplete bool   `json:"checkoutComplete"`
	Message          string `json:"message"`
}

func (s *Sender) Name() string { return "webhook" }

func (s *Sender) Send(ctx context.Context, n notify.Notification) error {
	body, err := json.Marshal(payload{
		TaskID:           n.TaskID,
		CheckoutComplete: n.Complete,
		Message:          n.Message,
	})
	if err != nil {
		return fmt.Errorf("could not marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook received non-successful status code: %d", resp.StatusCode)
	}

	s.logger.Debugf("Webhook notified for task %s", n.TaskID)
	return nil
}
