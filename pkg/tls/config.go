// Package tls builds the TLS configuration of the HTTP status server, from
// PEM files or from a self-signed certificate generated at startup.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/validation"
)

var (
	ErrNoCertificate = errors.New("tls enabled but no certificate configured and auto-generation disabled")
	ErrBadCA         = errors.New("no certificates found in CA file")
)

// Config holds TLS configuration options
type Config struct {
	Enabled      bool          `yaml:"enabled"`
	CertFile     string        `yaml:"cert_file"`
	KeyFile      string        `yaml:"key_file"`
	CAFile       string        `yaml:"ca_file"`       // Client certificates are verified against this pool when set
	AutoGenerate bool          `yaml:"auto_generate"` // Self-signed certificate when no files are given
	Hosts        []string      `yaml:"hosts"`         // DNS names and IPs of a generated certificate
	ValidFor     time.Duration `yaml:"valid_for"`     // Lifetime of a generated certificate (default: 1 year)
	MinVersion   string        `yaml:"min_version"`   // "1.2" (default) or "1.3"
}

// DefaultConfig returns TLS disabled, with self-signed generation on enable
func DefaultConfig() Config {
	return Config{
		AutoGenerate: true,
		Hosts:        []string{"localhost", "127.0.0.1"},
		ValidFor:     365 * 24 * time.Hour,
		MinVersion:   "1.2",
	}
}

var versions = map[string]uint16{
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.NewConfigValidator("TLSConfig").
		OneOf("MinVersion", validation.DefaultOr(c.MinVersion, "1.2"), []string{"1.2", "1.3"}).
		When(c.CertFile != "" || c.KeyFile != "", func(v *validation.ConfigValidator) {
			v.Required("CertFile", c.CertFile).Required("KeyFile", c.KeyFile)
		}).
		When(c.CertFile == "" && c.AutoGenerate, func(v *validation.ConfigValidator) {
			v.MinDuration("ValidFor", c.ValidFor, time.Hour)
		}).
		Validate()
}

// Load returns the server TLS configuration, or nil when TLS is disabled
func Load(cfg Config) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var cert tls.Certificate
	var err error
	switch {
	case cfg.CertFile != "" && cfg.KeyFile != "":
		cert, err = tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load certificate: %w", err)
		}
	case cfg.AutoGenerate:
		cert, err = SelfSigned(cfg.Hosts, cfg.ValidFor)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrNoCertificate
	}

	out := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   versions[validation.DefaultOr(cfg.MinVersion, "1.2")],
	}
	if cfg.CAFile != "" {
		pool, err := LoadCAPool(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		out.ClientCAs = pool
		out.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return out, nil
}

// LoadCAPool loads a CA certificate pool from a PEM file
func LoadCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%s: %w", path, ErrBadCA)
	}
	return pool, nil
}
