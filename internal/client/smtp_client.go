package client

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"
)

const submissionIDHeader = "X-Submission-ID"

// SMTPClient sends through any SMTP relay that accepts plain auth.
type SMTPClient struct {
	dialer *gomail.Dialer
}

func NewSMTPClient(host string, port int, username, password string) (*SMTPClient, error) {
	if host == "" {
		return nil, fmt.Errorf("%w: SMTP host is required", ErrInvalidConfig)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: SMTP port must be between 1 and 65535", ErrInvalidConfig)
	}
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: SMTP credentials are required", ErrInvalidConfig)
	}

	return &SMTPClient{
		dialer: gomail.NewDialer(host, port, username, password),
	}, nil
}

// Send dials a new connection per message. gomail has no context support, so
// ctx is only checked before dialing.
func (c *SMTPClient) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}

	if err := c.dialer.DialAndSend(buildSMTPMessage(msg)); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	return nil
}

func (c *SMTPClient) Provider() string {
	return "smtp"
}

func buildSMTPMessage(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", msg.FromEmail, msg.FromName)
	m.SetAddressHeader("To", msg.ToEmail, msg.ToName)
	if msg.ReplyToEmail != "" {
		m.SetAddressHeader("Reply-To", msg.ReplyToEmail, msg.ReplyToName)
	}
	if msg.ID != "" {
		m.SetHeader(submissionIDHeader, msg.ID)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTMLBody)
	return m
}
