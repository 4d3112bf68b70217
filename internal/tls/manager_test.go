package tls_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-relay/internal/tls"
)

func writeKeyPair(t *testing.T, dir string) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certPath, keyPath
}

func TestGetCertificate_FromFiles(t *testing.T) {
	t.Parallel()

	certPath, keyPath := writeKeyPair(t, t.TempDir())
	manager, err := tls.NewTLSManager(&tls.TLSConfig{CertFile: certPath, KeyFile: keyPath})
	require.NoError(t, err)
	assert.False(t, manager.AutoCertEnabled())

	cert, err := manager.GetCertificate(&cryptotls.ClientHelloInfo{ServerName: "localhost"})
	require.NoError(t, err)
	require.NotNil(t, cert)

	cfg := manager.GetTLSConfig()
	assert.Equal(t, uint16(cryptotls.VersionTLS12), cfg.MinVersion)
	assert.NotNil(t, cfg.GetCertificate)
}

func TestGetCertificate_NoSource(t *testing.T) {
	t.Parallel()

	manager, err := tls.NewTLSManager(&tls.TLSConfig{Environment: "production"})
	require.NoError(t, err)

	_, err = manager.GetCertificate(&cryptotls.ClientHelloInfo{ServerName: "localhost"})
	assert.ErrorIs(t, err, tls.ErrNoCertificate)
}

func TestHTTPHandler(t *testing.T) {
	t.Parallel()

	fallback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	plain, err := tls.NewTLSManager(&tls.TLSConfig{Environment: "production"})
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	plain.HTTPHandler(fallback).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	auto, err := tls.NewTLSManager(&tls.TLSConfig{
		AutoCert:    true,
		Domain:      "contact.example.com",
		AutoCertDir: filepath.Join(t.TempDir(), "acme"),
	})
	require.NoError(t, err)
	assert.True(t, auto.AutoCertEnabled())

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "http://contact.example.com/.well-known/acme-challenge/missing", nil)
	auto.HTTPHandler(fallback).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCertificate_DevelopmentFallback(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "certs")
	manager, err := tls.NewTLSManager(&tls.TLSConfig{AutoCertDir: dir, Environment: "development"})
	require.NoError(t, err)

	cert, err := manager.GetCertificate(&cryptotls.ClientHelloInfo{ServerName: "localhost"})
	require.NoError(t, err)
	require.NotEmpty(t, cert.Certificate)

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Contains(t, leaf.DNSNames, "localhost")
	assert.FileExists(t, filepath.Join(dir, "dev-cert.pem"))

	// A second manager reuses the stored pair.
	again, err := tls.NewTLSManager(&tls.TLSConfig{AutoCertDir: dir, Environment: "development"})
	require.NoError(t, err)
	reused, err := again.GetCertificate(&cryptotls.ClientHelloInfo{ServerName: "localhost"})
	require.NoError(t, err)
	assert.Equal(t, cert.Certificate[0], reused.Certificate[0])
}
