package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"contact-relay/internal/config"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return s.err
}

func (s *recordingSender) Provider() string { return "recording" }

func validMessage() Message {
	return Message{
		ID:           "4b7a8e2c-0000-4000-8000-000000000001",
		FromEmail:    "owner@example.com",
		FromName:     "Contact Form",
		ToEmail:      "owner@example.com",
		ToName:       "Contact Form",
		ReplyToEmail: "visitor@example.org",
		ReplyToName:  "Visitor",
		Subject:      "Hello",
		HTMLBody:     "hi<br>there",
	}
}

func TestMessage_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, validMessage().Validate())

	tests := []struct {
		name   string
		mutate func(*Message)
	}{
		{name: "no sender", mutate: func(m *Message) { m.FromEmail = "" }},
		{name: "no recipient", mutate: func(m *Message) { m.ToEmail = "" }},
		{name: "no subject", mutate: func(m *Message) { m.Subject = "" }},
		{name: "no body", mutate: func(m *Message) { m.HTMLBody = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := validMessage()
			tt.mutate(&msg)
			assert.ErrorIs(t, msg.Validate(), ErrInvalidMessage)
		})
	}
}

func TestNewMailSender_SelectsProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		provider string
		want     string
	}{
		{provider: config.ProviderMailjet, want: "mailjet"},
		{provider: config.ProviderPostmark, want: "postmark"},
		{provider: config.ProviderSMTP, want: "smtp"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			t.Parallel()
			cfg := &config.Config{Mail: config.MailConfig{
				Provider:  tt.provider,
				APIKey:    "key",
				APISecret: "secret",
				Sender:    "owner@example.com",
				SMTPHost:  "smtp.example.com",
				SMTPPort:  587,
			}}

			sender, err := NewMailSender(cfg, zap.NewNop())
			require.NoError(t, err)
			assert.Equal(t, tt.want, sender.Provider())
			_, throttled := sender.(*ThrottledSender)
			assert.False(t, throttled)
		})
	}
}

func TestNewMailSender_WrapsThrottle(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Mail: config.MailConfig{
		Provider:  config.ProviderMailjet,
		APIKey:    "key",
		APISecret: "secret",
		SendRate:  5,
		SendBurst: 2,
	}}
	sender, err := NewMailSender(cfg, zap.NewNop())
	require.NoError(t, err)

	throttled, ok := sender.(*ThrottledSender)
	require.True(t, ok)
	assert.Equal(t, "mailjet", throttled.Provider())
}

func TestNewMailSender_UnknownProvider(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Mail: config.MailConfig{Provider: "fax", APIKey: "k", APISecret: "s"}}
	_, err := NewMailSender(cfg, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConstructors_RejectMissingCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewMailjetClient("", "secret")
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewMailjetClient("key", "")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewPostmarkClient("", "account")
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewPostmarkClient("server", "")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewSMTPClient("", 587, "u", "p")
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewSMTPClient("smtp.example.com", 0, "u", "p")
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewSMTPClient("smtp.example.com", 587, "", "p")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSend_RejectsInvalidMessageBeforeNetwork(t *testing.T) {
	t.Parallel()

	mj, err := NewMailjetClient("key", "secret")
	require.NoError(t, err)
	pm, err := NewPostmarkClient("server", "account")
	require.NoError(t, err)
	sm, err := NewSMTPClient("smtp.invalid", 587, "u", "p")
	require.NoError(t, err)

	for _, sender := range []MailSender{mj, pm, sm} {
		err := sender.Send(context.Background(), Message{})
		assert.ErrorIs(t, err, ErrInvalidMessage, sender.Provider())
	}
}

func TestSend_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mj, err := NewMailjetClient("key", "secret")
	require.NoError(t, err)
	sm, err := NewSMTPClient("smtp.invalid", 587, "u", "p")
	require.NoError(t, err)

	for _, sender := range []MailSender{mj, sm} {
		err := sender.Send(ctx, validMessage())
		assert.ErrorIs(t, err, ErrFailedToSendEmail, sender.Provider())
		assert.ErrorIs(t, err, context.Canceled, sender.Provider())
	}
}

func TestMailjetSend_HonoursDeadline(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	mj, err := NewMailjetClient("key", "secret")
	require.NoError(t, err)
	mj.client.SetBaseURL(server.URL + "/v3")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = mj.Send(ctx, validMessage())
	assert.ErrorIs(t, err, ErrFailedToSendEmail)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, mailjetTimeout, mj.client.Client().Timeout)
}

func TestMailjetSend_PostsToSendAPI(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotBody []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Messages":[{"Status":"success"}]}`))
	}))
	defer server.Close()

	mj, err := NewMailjetClient("key", "secret")
	require.NoError(t, err)
	mj.client.SetBaseURL(server.URL + "/v3")

	require.NoError(t, mj.Send(context.Background(), validMessage()))
	assert.Equal(t, "/v3.1/send", gotPath)
	assert.Contains(t, string(gotBody), validMessage().ID)
}

func TestBuildMailjetMessages(t *testing.T) {
	t.Parallel()

	msgs := buildMailjetMessages(validMessage())
	require.Len(t, msgs.Info, 1)

	info := msgs.Info[0]
	require.NotNil(t, info.From)
	assert.Equal(t, "owner@example.com", info.From.Email)
	require.NotNil(t, info.To)
	require.Len(t, *info.To, 1)
	assert.Equal(t, "owner@example.com", (*info.To)[0].Email)
	require.NotNil(t, info.ReplyTo)
	assert.Equal(t, "visitor@example.org", info.ReplyTo.Email)
	assert.Equal(t, "Hello", info.Subject)
	assert.Equal(t, "hi<br>there", info.HTMLPart)
	assert.Equal(t, validMessage().ID, info.CustomID)

	noReply := validMessage()
	noReply.ReplyToEmail = ""
	assert.Nil(t, buildMailjetMessages(noReply).Info[0].ReplyTo)
}

func TestBuildPostmarkEmail(t *testing.T) {
	t.Parallel()

	email := buildPostmarkEmail(validMessage())
	assert.Equal(t, `"Contact Form" <owner@example.com>`, email.From)
	assert.Equal(t, `"Contact Form" <owner@example.com>`, email.To)
	assert.Equal(t, `"Visitor" <visitor@example.org>`, email.ReplyTo)
	assert.Equal(t, "Hello", email.Subject)
	assert.Equal(t, "hi<br>there", email.HTMLBody)
	assert.Equal(t, postmarkTag, email.Tag)
}

func TestBuildSMTPMessage(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	_, err := buildSMTPMessage(validMessage()).WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.String()
	assert.Contains(t, raw, "Subject: Hello")
	assert.Contains(t, raw, "Reply-To: \"Visitor\" <visitor@example.org>")
	assert.Contains(t, raw, submissionIDHeader+": "+validMessage().ID)
	assert.Contains(t, raw, "text/html")
	assert.Contains(t, raw, "hi<br>there")
}

func TestThrottledSender(t *testing.T) {
	t.Parallel()

	next := &recordingSender{}
	assert.Same(t, MailSender(next), NewThrottledSender(next, 0, 1))

	throttled := NewThrottledSender(next, 1, 1)
	require.NoError(t, throttled.Send(context.Background(), validMessage()))

	// The single token is spent, so a short deadline expires while waiting.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := throttled.Send(ctx, validMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mail throttle")

	next.mu.Lock()
	assert.Len(t, next.sent, 1)
	next.mu.Unlock()
}

func TestThrottledSender_PropagatesError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	throttled := NewThrottledSender(&recordingSender{err: boom}, 100, 1)
	assert.ErrorIs(t, throttled.Send(context.Background(), validMessage()), boom)
}
