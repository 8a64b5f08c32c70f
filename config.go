// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package xmpproxy

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

var (
	errCertKeyPair = errors.New("both cert file and key file must be set")
	errClientCA    = errors.New("failed to append client CA certificates")
)

// Config holds the listener and backend settings of one XMPP proxy.
type Config struct {
	Host            string        `env:"HOST"             envDefault:""`
	Port            string        `env:"PORT"             envDefault:""`
	TargetHost      string        `env:"TARGET_HOST"      envDefault:""`
	TargetPort      string        `env:"TARGET_PORT"      envDefault:"5222"`
	Domain          string        `env:"DOMAIN"           envDefault:""`
	DialTimeout     time.Duration `env:"DIAL_TIMEOUT"     envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	BufferSize      int           `env:"BUFFER_SIZE"      envDefault:"8192"`

	BreakerMaxFailures  int           `env:"BREAKER_MAX_FAILURES"  envDefault:"5"`
	BreakerResetTimeout time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"30s"`
	RateBurst           int           `env:"RATE_BURST"            envDefault:"0"`
	RateLimit           float64       `env:"RATE_LIMIT"            envDefault:"1"`

	CertFile     string `env:"CERT_FILE"      envDefault:""`
	KeyFile      string `env:"KEY_FILE"       envDefault:""`
	ClientCAFile string `env:"CLIENT_CA_FILE" envDefault:""`

	TLSConfig *tls.Config `env:"-"`
}

// NewConfig parses the environment variables carrying opts.Prefix and loads
// the optional listener certificate.
func NewConfig(opts env.Options) (Config, error) {
	c := Config{}
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, err
	}

	tlsConfig, err := loadTLS(c.CertFile, c.KeyFile, c.ClientCAFile)
	if err != nil {
		return Config{}, err
	}
	c.TLSConfig = tlsConfig

	return c, nil
}

func loadTLS(certFile, keyFile, clientCAFile string) (*tls.Config, error) {
	if certFile == "" && keyFile == "" {
		return nil, nil
	}
	if certFile == "" || keyFile == "" {
		return nil, errCertKeyPair
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if clientCAFile == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(clientCAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read client CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errClientCA
	}
	cfg.ClientCAs = pool
	cfg.ClientAuth = tls.RequireAndVerifyClientCert

	return cfg, nil
}
