package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"

	"contact-relay/internal/util"

	"golang.org/x/crypto/acme/autocert"
)

var ErrNoCertificate = errors.New("no TLS certificate available")

type TLSManager struct {
	config   *TLSConfig
	autoCert *autocert.Manager
	devCert  *tls.Certificate
}

type TLSConfig struct {
	AutoCert    bool
	Domain      string
	CertFile    string
	KeyFile     string
	AutoCertDir string
	Email       string
	Environment string
}

func NewTLSManager(config *TLSConfig) (*TLSManager, error) {
	manager := &TLSManager{
		config: config,
	}

	if config.AutoCert {
		if err := manager.setupAutoCert(); err != nil {
			return nil, err
		}
	}

	if manager.needsDevCert() {
		hosts := []string{"localhost", "127.0.0.1", "::1"}
		if config.Domain != "" {
			hosts = append(hosts, config.Domain)
		}
		cert, err := NewDevCertGenerator(config.AutoCertDir).GenerateCert(hosts)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare development certificate: %w", err)
		}
		manager.devCert = &cert
	}

	return manager, nil
}

func (m *TLSManager) needsDevCert() bool {
	return m.config.Environment != "production" &&
		!m.config.AutoCert &&
		(m.config.CertFile == "" || m.config.KeyFile == "")
}

func (m *TLSManager) setupAutoCert() error {
	if err := os.MkdirAll(m.config.AutoCertDir, 0700); err != nil {
		return fmt.Errorf("failed to create autocert directory: %w", err)
	}

	m.autoCert = &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(m.config.Domain),
		Cache:      autocert.DirCache(m.config.AutoCertDir),
		Email:      m.config.Email,
	}

	util.Info("AutoCert configured",
		util.String("domain", m.config.Domain),
		util.String("cache_dir", m.config.AutoCertDir))
	return nil
}

// GetCertificate prefers ACME certificates and falls back to the key pair on
// disk, reloading it on every handshake so renewed files are picked up.
func (m *TLSManager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		cert, err := m.autoCert.GetCertificate(hello)
		if err == nil {
			return cert, nil
		}
		util.Warn("AutoCert certificate unavailable", util.ErrorField(err))
	}

	if m.config.CertFile != "" && m.config.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(m.config.CertFile, m.config.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load key pair: %w", err)
		}
		return &cert, nil
	}

	if m.devCert != nil {
		return m.devCert, nil
	}

	return nil, ErrNoCertificate
}

func (m *TLSManager) GetTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1", "acme-tls/1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}
}

// HTTPHandler answers ACME HTTP-01 challenges and redirects everything else
// to HTTPS. Without autocert it returns fallback unchanged.
func (m *TLSManager) HTTPHandler(fallback http.Handler) http.Handler {
	if m.autoCert == nil {
		return fallback
	}
	return m.autoCert.HTTPHandler(fallback)
}

func (m *TLSManager) AutoCertEnabled() bool {
	return m.autoCert != nil
}
