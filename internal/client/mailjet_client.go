package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mailjet/mailjet-apiv3-go/v4"
)

// mailjetTimeout caps one Send API call when the caller's context has no
// earlier deadline.
const mailjetTimeout = 30 * time.Second

// MailjetClient sends through the Mailjet Send API v3.1.
type MailjetClient struct {
	client *mailjet.Client
}

func NewMailjetClient(apiKey, apiSecret string) (*MailjetClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: Mailjet API key is required", ErrInvalidConfig)
	}
	if apiSecret == "" {
		return nil, fmt.Errorf("%w: Mailjet API secret is required", ErrInvalidConfig)
	}

	mj := mailjet.NewMailjetClient(apiKey, apiSecret)
	mj.SetClient(&http.Client{Timeout: mailjetTimeout})

	return &MailjetClient{client: mj}, nil
}

func (c *MailjetClient) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}

	// The library's default HTTP client has no timeout; ctx bounds the call.
	if _, err := c.client.SendMailV31(buildMailjetMessages(msg), mailjet.WithContext(ctx)); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	return nil
}

func (c *MailjetClient) Provider() string {
	return "mailjet"
}

func buildMailjetMessages(msg Message) *mailjet.MessagesV31 {
	info := mailjet.InfoMessagesV31{
		From: &mailjet.RecipientV31{
			Email: msg.FromEmail,
			Name:  msg.FromName,
		},
		To: &mailjet.RecipientsV31{
			mailjet.RecipientV31{
				Email: msg.ToEmail,
				Name:  msg.ToName,
			},
		},
		Subject:  msg.Subject,
		HTMLPart: msg.HTMLBody,
		CustomID: msg.ID,
	}
	if msg.ReplyToEmail != "" {
		info.ReplyTo = &mailjet.RecipientV31{
			Email: msg.ReplyToEmail,
			Name:  msg.ReplyToName,
		}
	}

	return &mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{info}}
}
