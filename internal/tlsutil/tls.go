package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/ILLUVRSE/stark-signer/internal/config"
)

var ErrNotConfigured = errors.New("tls: certificate and key paths must both be set")

// NewServerConfig builds the listener's tls.Config from on-disk PEM files.
//
// With ClientCAPath set, client certificates are verified against that bundle
// and RequireMTLS decides whether presenting one is mandatory. Without it no
// client certificate is requested.
func NewServerConfig(cfg config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load server cert/key: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		ClientAuth:   tls.NoClientCert,
	}

	if cfg.ClientCAPath == "" {
		if cfg.RequireMTLS {
			return nil, fmt.Errorf("REQUIRE_MTLS=true but TLS_CLIENT_CA_PATH not provided")
		}
		return tlsCfg, nil
	}

	caPEM, err := os.ReadFile(cfg.ClientCAPath)
	if err != nil {
		return nil, fmt.Errorf("read client CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("failed to parse client CA bundle %s", cfg.ClientCAPath)
	}
	tlsCfg.ClientCAs = pool
	if cfg.RequireMTLS {
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	} else {
		tlsCfg.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return tlsCfg, nil
}
