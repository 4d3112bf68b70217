package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"contact-relay/internal/client"
	"contact-relay/internal/metrics"
	"contact-relay/internal/models"
	"contact-relay/internal/repository/memory"
	"contact-relay/internal/util"
)

var (
	ErrRateLimited    = errors.New("too many requests")
	ErrInvalidInput   = errors.New("invalid input")
	ErrDispatchFailed = errors.New("email dispatch failed")
)

// DefaultAttemptLimit is the highest remembered count that is still accepted,
// so the fifth submission inside the decay window is rejected.
const DefaultAttemptLimit = 3

// SenderIdentity is the operator mailbox. Submissions are sent from and to it.
type SenderIdentity struct {
	Email string
	Name  string
}

// ContactService turns contact-form submissions into emails to the operator.
type ContactService struct {
	tracker  *memory.AttemptTracker
	sender   client.MailSender
	identity SenderIdentity
	limit    int
	logger   *zap.Logger
}

// NewContactService creates a new contact service
func NewContactService(
	tracker *memory.AttemptTracker,
	sender client.MailSender,
	identity SenderIdentity,
	limit int,
	logger *zap.Logger,
) *ContactService {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.ObserveTracker(tracker)
	return &ContactService{
		tracker:  tracker,
		sender:   sender,
		identity: identity,
		limit:    limit,
		logger:   logger,
	}
}

// CheckRateLimit rejects clients whose remembered count is over the limit.
// The count is initialized to zero for unseen clients and never incremented.
func (s *ContactService) CheckRateLimit(clientID string) error {
	count := s.tracker.GetOrInit(clientID)
	if count > s.limit {
		metrics.Submissions.WithLabelValues(metrics.OutcomeRateLimited).Inc()
		s.logger.Info("Submission rate limited",
			util.String("client", clientID),
			util.Int("attempts", count),
		)
		return fmt.Errorf("%w: %d recent attempts", ErrRateLimited, count)
	}
	return nil
}

// Submit records an attempt for clientID and dispatches sub to the operator.
// The rate limit is checked again together with validation under the
// client's lock, so concurrent submissions cannot overshoot it. The attempt
// counts even when dispatch fails.
func (s *ContactService) Submit(ctx context.Context, clientID string, sub models.EmailSubmission) error {
	startTime := time.Now()

	count, err := s.tracker.Admit(clientID, func(count int) error {
		if count > s.limit {
			return fmt.Errorf("%w: %d recent attempts", ErrRateLimited, count)
		}
		return validateSubmission(sub)
	})
	if err != nil {
		s.rejected(clientID, err)
		return err
	}

	msg := client.Message{
		ID:           uuid.NewString(),
		FromEmail:    s.identity.Email,
		FromName:     s.identity.Name,
		ToEmail:      s.identity.Email,
		ToName:       s.identity.Name,
		ReplyToEmail: sub.Email,
		ReplyToName:  sub.Name,
		Subject:      sub.Subject,
		HTMLBody:     util.SanitizeContent(sub.Content),
	}

	provider := s.sender.Provider()
	sendStart := time.Now()
	err = s.sender.Send(ctx, msg)
	metrics.MailSendDuration.WithLabelValues(provider).Observe(time.Since(sendStart).Seconds())
	if err != nil {
		metrics.MailSendFailure.WithLabelValues(provider).Inc()
		metrics.Submissions.WithLabelValues(metrics.OutcomeFailed).Inc()
		s.logger.Error("Failed to dispatch submission",
			util.String("message_id", msg.ID),
			util.String("client", clientID),
			util.String("provider", provider),
			util.ErrorField(err),
		)
		return fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}

	metrics.MailSendSuccess.WithLabelValues(provider).Inc()
	metrics.Submissions.WithLabelValues(metrics.OutcomeAccepted).Inc()
	s.logger.Info("Submission dispatched",
		util.String("message_id", msg.ID),
		util.String("client", clientID),
		util.String("provider", provider),
		util.Int("attempts", count),
		util.Duration("duration", time.Since(startTime)),
	)
	return nil
}

// RejectInvalid records a submission that could not be decoded.
func (s *ContactService) RejectInvalid(clientID string, cause error) error {
	err := fmt.Errorf("%w: %w", ErrInvalidInput, cause)
	s.rejected(clientID, err)
	return err
}

// Attempts returns the remembered count for clientID without creating it.
func (s *ContactService) Attempts(clientID string) int {
	count, _ := s.tracker.Count(clientID)
	return count
}

// Cleanup stops pending attempt decays.
func (s *ContactService) Cleanup() {
	s.tracker.Close()
}

func (s *ContactService) rejected(clientID string, err error) {
	outcome := metrics.OutcomeInvalid
	if errors.Is(err, ErrRateLimited) {
		outcome = metrics.OutcomeRateLimited
	}
	metrics.Submissions.WithLabelValues(outcome).Inc()
	s.logger.Info("Submission rejected",
		util.String("client", clientID),
		util.String("outcome", outcome),
		util.ErrorField(err),
	)
}

func validateSubmission(sub models.EmailSubmission) error {
	if missing := sub.MissingFields(); len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	if !util.IsValidEmail(sub.Email) {
		return fmt.Errorf("%w: malformed email address", ErrInvalidInput)
	}
	return nil
}
