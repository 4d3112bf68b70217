package client

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"contact-relay/internal/config"
	"contact-relay/internal/util"
)

// Errors returned by mail senders. Provider failures are joined with
// ErrFailedToSendEmail so callers can match on it.
var (
	ErrFailedToSendEmail = errors.New("failed to send email")
	ErrInvalidConfig     = errors.New("invalid email configuration")
	ErrInvalidMessage    = errors.New("invalid email message")
)

// MailSender delivers one message through a transactional email provider.
type MailSender interface {
	Send(ctx context.Context, msg Message) error
	Provider() string
}

// Message is a provider-neutral outbound email.
type Message struct {
	ID           string
	FromEmail    string
	FromName     string
	ToEmail      string
	ToName       string
	ReplyToEmail string
	ReplyToName  string
	Subject      string
	HTMLBody     string
}

func (m Message) Validate() error {
	if m.FromEmail == "" {
		return fmt.Errorf("%w: sender is required", ErrInvalidMessage)
	}
	if m.ToEmail == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	}
	if m.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	}
	if m.HTMLBody == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidMessage)
	}
	return nil
}

func formatAddress(email, name string) string {
	if email == "" {
		return ""
	}
	return (&mail.Address{Name: name, Address: email}).String()
}

// NewMailSender builds the sender for the configured provider, wrapped in a
// throttle when MAIL_SEND_RATE is set.
func NewMailSender(cfg *config.Config, logger *zap.Logger) (MailSender, error) {
	mailCfg := cfg.Mail

	var (
		sender MailSender
		err    error
	)
	switch mailCfg.Provider {
	case config.ProviderMailjet:
		sender, err = NewMailjetClient(mailCfg.APIKey, mailCfg.APISecret)
	case config.ProviderPostmark:
		sender, err = NewPostmarkClient(mailCfg.APIKey, mailCfg.APISecret)
	case config.ProviderSMTP:
		sender, err = NewSMTPClient(mailCfg.SMTPHost, mailCfg.SMTPPort, mailCfg.APIKey, mailCfg.APISecret)
	default:
		err = fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, mailCfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("Mail sender initialized",
		util.String("provider", sender.Provider()),
		util.Float64("send_rate", mailCfg.SendRate),
		util.Int("send_burst", mailCfg.SendBurst),
	)

	return NewThrottledSender(sender, mailCfg.SendRate, mailCfg.SendBurst), nil
}

// ThrottledSender limits how fast messages leave the process so a burst of
// submissions cannot exhaust the provider's own quota.
type ThrottledSender struct {
	next    MailSender
	limiter *rate.Limiter
}

// NewThrottledSender returns next unchanged when perSecond is not positive.
func NewThrottledSender(next MailSender, perSecond float64, burst int) MailSender {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &ThrottledSender{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (s *ThrottledSender) Send(ctx context.Context, msg Message) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mail throttle: %w", err)
	}
	return s.next.Send(ctx, msg)
}

func (s *ThrottledSender) Provider() string {
	return s.next.Provider()
}
