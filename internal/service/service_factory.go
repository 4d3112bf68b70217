package service

import (
	"contact-relay/internal/client"
	"contact-relay/internal/repository/memory"

	"go.uber.org/zap"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	tracker        *memory.AttemptTracker
	sender         client.MailSender
	identity       SenderIdentity
	attemptLimit   int
	logger         *zap.Logger
	contactService *ContactService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(
	tracker *memory.AttemptTracker,
	sender client.MailSender,
	identity SenderIdentity,
	attemptLimit int,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		tracker:      tracker,
		sender:       sender,
		identity:     identity,
		attemptLimit: attemptLimit,
		logger:       logger,
	}
}

// ContactService returns the contact service instance (singleton)
func (f *ServiceFactory) ContactService() *ContactService {
	if f.contactService == nil {
		f.contactService = NewContactService(
			f.tracker,
			f.sender,
			f.identity,
			f.attemptLimit,
			f.logger,
		)
	}
	return f.contactService
}

// Cleanup cleans up all services
func (f *ServiceFactory) Cleanup() {
	if f.contactService != nil {
		f.contactService.Cleanup()
	}
}
