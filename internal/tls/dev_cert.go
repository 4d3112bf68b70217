package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"contact-relay/internal/util"
)

const devCertValidity = 365 * 24 * time.Hour

// DevCertGenerator issues a self-signed certificate for local TLS and keeps it
// on disk so restarts reuse the same key.
type DevCertGenerator struct {
	certDir string
}

func NewDevCertGenerator(certDir string) *DevCertGenerator {
	return &DevCertGenerator{
		certDir: certDir,
	}
}

func (d *DevCertGenerator) GenerateCert(hosts []string) (tls.Certificate, error) {
	certPath := filepath.Join(d.certDir, "dev-cert.pem")
	keyPath := filepath.Join(d.certDir, "dev-key.pem")

	if cert, err := tls.LoadX509KeyPair(certPath, keyPath); err == nil && d.isCertificateValid(certPath) {
		util.Info("Using existing development certificate", util.String("cert_path", certPath))
		return cert, nil
	}

	if err := os.MkdirAll(d.certDir, 0700); err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to create certificate directory: %w", err)
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{Organization: []string{"Contact Relay Development"}},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(devCertValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to encode private key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})
	if err := os.WriteFile(certPath, certPEM, 0600); err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to write private key: %w", err)
	}

	util.Info("Generated self-signed development certificate",
		util.String("cert_path", certPath),
		util.String("key_path", keyPath))

	return tls.X509KeyPair(certPEM, keyPEM)
}

func (d *DevCertGenerator) isCertificateValid(certPath string) bool {
	certData, err := os.ReadFile(certPath)
	if err != nil {
		return false
	}

	block, _ := pem.Decode(certData)
	if block == nil {
		return false
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return false
	}

	now := time.Now()
	return now.After(cert.NotBefore) && now.Before(cert.NotAfter)
}
