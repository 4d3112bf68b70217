package factory

import (
	"fmt"
	"sync"

	"contact-relay/internal/bucketing"
	"contact-relay/internal/client"
	"contact-relay/internal/config"
	"contact-relay/internal/repository/memory"
	"contact-relay/internal/service"
	"contact-relay/internal/tls"
	"contact-relay/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	bucketingManager *bucketing.BucketingManager
	attemptTracker   *memory.AttemptTracker
	mailSender       client.MailSender

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies from an
// already validated configuration.
func NewFactory(cfg *config.Config) (*Factory, error) {
	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		tlsManager, err := tls.NewTLSManager(&tls.TLSConfig{
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize TLS: %w", err)
		}
		factory.tlsManager = tlsManager
	}

	sender, err := client.NewMailSender(cfg, util.Get())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mail sender: %w", err)
	}
	factory.mailSender = sender

	factory.initializeTracker()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.String("mail_provider", sender.Provider()),
	)

	return factory, nil
}

func (f *Factory) initializeTracker() {
	f.bucketingManager = bucketing.NewBucketingManager(f.config.RateLimit.Shards)
	f.attemptTracker = memory.NewAttemptTracker(
		memory.WithDecay(f.config.RateLimit.Decay),
		memory.WithBucketing(f.bucketingManager),
		memory.WithLogger(util.Get()),
	)

	util.Info("Attempt tracker initialized",
		util.Int("shards", f.bucketingManager.Buckets()),
		util.Duration("decay", f.config.RateLimit.Decay),
		util.Int("attempt_limit", f.config.RateLimit.AttemptLimit),
	)
}

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.attemptTracker,
			f.mailSender,
			service.SenderIdentity{
				Email: f.config.Mail.Sender,
				Name:  f.config.Mail.SenderName,
			},
			f.config.RateLimit.AttemptLimit,
			util.Get(),
		)
	}
	return f.serviceFactory
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.serviceFactory != nil {
			f.serviceFactory.Cleanup()
			util.Info("Service factory cleaned up")
		}

		if f.attemptTracker != nil {
			f.attemptTracker.Close()
			util.Info("Attempt tracker stopped")
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) AttemptTracker() *memory.AttemptTracker {
	return f.attemptTracker
}

func (f *Factory) MailSender() client.MailSender {
	return f.mailSender
}
