package swish

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/pkcs12"

	"github.com/frahmantamala/swish-payments/internal"
)

// CertificateConfig points at the client certificate issued by the gateway.
// Either a PEM pair (CertFile, KeyFile) or a PKCS#12 bundle (P12File) is used.
type CertificateConfig struct {
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
	P12File    string `mapstructure:"p12_file"`
	Passphrase string `mapstructure:"passphrase"`
	CAFile     string `mapstructure:"ca_file"`
}

func (c CertificateConfig) IsZero() bool {
	return c.CertFile == "" && c.KeyFile == "" && c.P12File == ""
}

func (c CertificateConfig) Validate() error {
	switch {
	case c.P12File != "" && (c.CertFile != "" || c.KeyFile != ""):
		return internal.ErrInvalidCertificate.WithCause(fmt.Errorf("configure either p12_file or cert_file/key_file, not both"))
	case c.P12File == "" && (c.CertFile == "") != (c.KeyFile == ""):
		return internal.ErrInvalidCertificate.WithCause(fmt.Errorf("cert_file and key_file must be set together"))
	}
	return nil
}

// LoadTLSConfig builds the client side TLS configuration. The certificate is
// used as supplied; nothing about it is verified beyond parsing.
func LoadTLSConfig(c CertificateConfig) (*tls.Config, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if !c.IsZero() {
		cert, err := loadKeyPair(c)
		if err != nil {
			return nil, internal.ErrInvalidCertificate.WithCause(err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if c.CAFile != "" {
		caPEM, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, internal.ErrInvalidCertificate.WithCause(fmt.Errorf("read ca_file: %w", err))
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, internal.ErrInvalidCertificate.WithCause(fmt.Errorf("ca_file %s has no PEM certificates", c.CAFile))
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

func loadKeyPair(c CertificateConfig) (tls.Certificate, error) {
	if c.P12File != "" {
		data, err := os.ReadFile(c.P12File)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("read p12_file: %w", err)
		}
		return keyPairFromPKCS12(data, c.Passphrase)
	}
	return tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
}

// keyPairFromPKCS12 handles bundles that carry the issuing chain next to the
// leaf. pkcs12.Decode only accepts a single certificate, so the bundle is
// converted to PEM and the leaf is found by matching it against the key.
func keyPairFromPKCS12(data []byte, passphrase string) (tls.Certificate, error) {
	blocks, err := pkcs12.ToPEM(data, passphrase)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decode p12 bundle: %w", err)
	}

	var certs [][]byte
	var keyPEM []byte
	for _, b := range blocks {
		encoded := pem.EncodeToMemory(&pem.Block{Type: b.Type, Bytes: b.Bytes})
		switch b.Type {
		case "CERTIFICATE":
			certs = append(certs, encoded)
		case "PRIVATE KEY":
			keyPEM = encoded
		}
	}
	if keyPEM == nil || len(certs) == 0 {
		return tls.Certificate{}, fmt.Errorf("p12 bundle must contain a private key and a certificate")
	}

	var lastErr error
	for i, leaf := range certs {
		chain := [][]byte{leaf}
		for j, other := range certs {
			if j != i {
				chain = append(chain, other)
			}
		}
		cert, err := tls.X509KeyPair(bytes.Join(chain, nil), keyPEM)
		if err == nil {
			return cert, nil
		}
		lastErr = err
	}
	return tls.Certificate{}, fmt.Errorf("no certificate in p12 bundle matches its key: %w", lastErr)
}

// CertificateExpiry returns NotAfter of the configured leaf certificate.
func CertificateExpiry(tlsConfig *tls.Config) (time.Time, bool) {
	if tlsConfig == nil || len(tlsConfig.Certificates) == 0 {
		return time.Time{}, false
	}
	cert := tlsConfig.Certificates[0]
	leaf := cert.Leaf
	if leaf == nil && len(cert.Certificate) > 0 {
		parsed, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return time.Time{}, false
		}
		leaf = parsed
	}
	if leaf == nil {
		return time.Time{}, false
	}
	return leaf.NotAfter, true
}
