package email

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/notify"
)

// MailClient is the interface for the SMTP operations that we use.
// This allows us to mock the SMTP client for testing.
type MailClient interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SenderConfig is the configuration for the email sender.
type SenderConfig struct {
	// Client is the SMTP client, if missing it's created from the SMTP fields.
	Client   MailClient
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	From     string
	// DefaultRecipient is used when the notification doesn't have one.
	DefaultRecipient string
	Logger           log.Logger
}

func (c *SenderConfig) defaults() error {
	if c.From == "" {
		return fmt.Errorf("from address is required")
	}
	if c.Client == nil {
		if c.SMTPHost == "" {
			return fmt.Errorf("smtp host is required")
		}
		if c.SMTPPort <= 0 {
			c.SMTPPort = 587
		}

		opts := []mail.Option{
			mail.WithPort(c.SMTPPort),
			mail.WithTLSPolicy(mail.TLSOpportunistic),
		}
		if c.Username != "" {
			opts = append(opts,
				mail.WithSMTPAuth(mail.SMTPAuthPlain),
				mail.WithUsername(c.Username),
				mail.WithPassword(c.Password),
			)
		}
		cli, err := mail.NewClient(c.SMTPHost, opts...)
		if err != nil {
			return fmt.Errorf("could not create SMTP client: %w", err)
		}
		c.Client = cli
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "notify.Email"})
	return nil
}

// Sender sends notifications by email.
type Sender struct {
	client           MailClient
	from             string
	defaultRecipient string
	logger           log.Logger
}

var _ notify.Sender = (*Sender)(nil)

// NewSender returns a new email sender.
func NewSender(cfg SenderConfig) (*Sender, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Sender{
		client:           cfg.Client,
		from:             cfg.From,
		defaultRecipient: cfg.DefaultRecipient,
		logger:           cfg.Logger,
	}, nil
}

func (s *Sender) Name() string { return "email" }

func (s *Sender) Send(ctx context.Context, n notify.Notification) error {
	to := n.Recipient
	if to == "" {
		to = s.defaultRecipient
	}
	if to == "" {
		return fmt.Errorf("notification of task %s has no recipient", n.TaskID)
	}

	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(n.Subject)
	msg.SetBodyString(mail.TypeTextPlain, n.Message)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("could not send email: %w", err)
	}

	s.logger.Debugf("Email sent to %s", to)
	return nil
}
