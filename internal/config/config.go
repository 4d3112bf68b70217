package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"contact-relay/internal/util"
)

const (
	ProviderMailjet  = "mailjet"
	ProviderPostmark = "postmark"
	ProviderSMTP     = "smtp"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	Server    ServerConfig
	Mail      MailConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Port               int           `env:"PORT" envDefault:"80"`
	StaticDir          string        `env:"STATIC_DIR" envDefault:"public"`
	TrustProxy         bool          `env:"TRUST_PROXY" envDefault:"false"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	MaxBodyBytes       int64         `env:"MAX_BODY_BYTES" envDefault:"102400"`
	ReadTimeout        time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout       time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout        time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	EnableTLS   bool   `env:"TLS_ENABLED" envDefault:"false"`
	CertFile    string `env:"TLS_CERT_FILE"`
	KeyFile     string `env:"TLS_KEY_FILE"`
	AutoCert    bool   `env:"TLS_AUTOCERT" envDefault:"false"`
	Domain      string `env:"TLS_DOMAIN"`
	AutoCertDir string `env:"TLS_AUTOCERT_DIR" envDefault:"certs"`
	Email       string `env:"TLS_EMAIL"`
}

// MailConfig holds provider credentials. For Postmark the key and secret are
// the server and account tokens, for SMTP the username and password.
type MailConfig struct {
	Provider   string  `env:"MAIL_PROVIDER" envDefault:"mailjet"`
	APIKey     string  `env:"MAIL_API_KEY,required,notEmpty"`
	APISecret  string  `env:"MAIL_API_SECRET,required,notEmpty"`
	Sender     string  `env:"MAIL_SENDER,required,notEmpty"`
	SenderName string  `env:"MAIL_SENDER_NAME" envDefault:"Contact Form"`
	SendRate   float64 `env:"MAIL_SEND_RATE" envDefault:"0"`
	SendBurst  int     `env:"MAIL_SEND_BURST" envDefault:"1"`
	SMTPHost   string  `env:"SMTP_HOST"`
	SMTPPort   int     `env:"SMTP_PORT" envDefault:"587"`
}

type RateLimitConfig struct {
	// AttemptLimit is the highest remembered count that is still accepted.
	AttemptLimit int           `env:"ATTEMPT_LIMIT" envDefault:"3"`
	Decay        time.Duration `env:"ATTEMPT_DECAY" envDefault:"10m"`
	Shards       int           `env:"ATTEMPT_SHARDS" envDefault:"32"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" envDefault:"false"`
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse builds a Config from the given variables only.
func Parse(environment map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environment}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be expressed with struct tags.
func (c *Config) Validate() error {
	c.Mail.Provider = strings.ToLower(strings.TrimSpace(c.Mail.Provider))

	switch c.Mail.Provider {
	case ProviderMailjet, ProviderPostmark:
	case ProviderSMTP:
		if c.Mail.SMTPHost == "" {
			return fmt.Errorf("%w: SMTP_HOST is required for the smtp provider", ErrInvalidConfig)
		}
		if c.Mail.SMTPPort <= 0 || c.Mail.SMTPPort > 65535 {
			return fmt.Errorf("%w: SMTP_PORT must be between 1 and 65535", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown MAIL_PROVIDER %q", ErrInvalidConfig, c.Mail.Provider)
	}

	if !util.IsValidEmail(c.Mail.Sender) {
		return fmt.Errorf("%w: MAIL_SENDER must be a valid email address", ErrInvalidConfig)
	}
	if c.Mail.SendRate < 0 {
		return fmt.Errorf("%w: MAIL_SEND_RATE must not be negative", ErrInvalidConfig)
	}
	if c.Mail.SendBurst < 1 {
		c.Mail.SendBurst = 1
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: PORT must be between 1 and 65535", ErrInvalidConfig)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: MAX_BODY_BYTES must be positive", ErrInvalidConfig)
	}
	if c.Server.EnableTLS {
		if c.Server.AutoCert && c.Server.Domain == "" {
			return fmt.Errorf("%w: TLS_DOMAIN is required with TLS_AUTOCERT", ErrInvalidConfig)
		}
		// Outside production a self-signed certificate stands in for missing files.
		if c.IsProduction() && !c.Server.AutoCert && (c.Server.CertFile == "" || c.Server.KeyFile == "") {
			return fmt.Errorf("%w: TLS_CERT_FILE and TLS_KEY_FILE are required when TLS is enabled", ErrInvalidConfig)
		}
	}

	if c.RateLimit.AttemptLimit < 0 {
		return fmt.Errorf("%w: ATTEMPT_LIMIT must not be negative", ErrInvalidConfig)
	}
	if c.RateLimit.Decay <= 0 {
		return fmt.Errorf("%w: ATTEMPT_DECAY must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
