package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

const postmarkTag = "contact-form"

// PostmarkClient sends through Postmark's transactional API.
type PostmarkClient struct {
	client *postmark.Client
}

func NewPostmarkClient(serverToken, accountToken string) (*PostmarkClient, error) {
	if serverToken == "" {
		return nil, fmt.Errorf("%w: Postmark server token is required", ErrInvalidConfig)
	}
	if accountToken == "" {
		return nil, fmt.Errorf("%w: Postmark account token is required", ErrInvalidConfig)
	}

	return &PostmarkClient{
		client: postmark.NewClient(serverToken, accountToken),
	}, nil
}

func (c *PostmarkClient) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	resp, err := c.client.SendEmail(ctx, buildPostmarkEmail(msg))
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(
			ErrFailedToSendEmail,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return nil
}

func (c *PostmarkClient) Provider() string {
	return "postmark"
}

func buildPostmarkEmail(msg Message) postmark.Email {
	return postmark.Email{
		From:     formatAddress(msg.FromEmail, msg.FromName),
		To:       formatAddress(msg.ToEmail, msg.ToName),
		ReplyTo:  formatAddress(msg.ReplyToEmail, msg.ReplyToName),
		Subject:  msg.Subject,
		Tag:      postmarkTag,
		HTMLBody: msg.HTMLBody,
	}
}
