// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"time"

	"github.com/absmach/xmpproxy/pkg/breaker"
	"github.com/absmach/xmpproxy/pkg/filter"
	"github.com/absmach/xmpproxy/pkg/handler"
	"github.com/absmach/xmpproxy/pkg/metrics"
	"github.com/absmach/xmpproxy/pkg/parser/xmpp"
	"github.com/absmach/xmpproxy/pkg/policy"
	"github.com/absmach/xmpproxy/pkg/ratelimit"
	"github.com/absmach/xmpproxy/pkg/server/tcp"
	"github.com/prometheus/client_golang/prometheus"
)

const sweepInterval = time.Minute

// XMPPConfig holds configuration for the XMPP proxy.
type XMPPConfig struct {
	Host            string
	Port            string
	TargetHost      string
	TargetPort      string
	Domain          string
	TLSConfig       *tls.Config
	DialTimeout     time.Duration
	ShutdownTimeout time.Duration
	BufferSize      int

	// Store holds the shared policy settings. A nil Store starts empty.
	Store *policy.Store

	// Metrics receives instrumentation. A nil Metrics uses a private registry.
	Metrics *metrics.Metrics

	// Breaker configures the backend dial breaker. Zero MaxFailures disables it.
	Breaker breaker.Config

	// RateBurst and RateLimit bound new sessions per client IP. Zero RateBurst
	// disables limiting.
	RateBurst int
	RateLimit float64

	Logger *slog.Logger
}

// XMPPProxy coordinates the TCP reactor, the XMPP decoder and the policy
// filters.
type XMPPProxy struct {
	server     *tcp.Server
	store      *policy.Store
	silence    *filter.Silence
	statistics *filter.Statistics
	transform  *filter.Transform
	breaker    *breaker.Breaker
	limiter    *ratelimit.Limiter
}

// NewXMPP creates a new XMPP proxy. Stanzas pass through silencing,
// statistics and transformation in that order.
func NewXMPP(cfg XMPPConfig, h handler.Handler) (*XMPPProxy, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Store == nil {
		cfg.Store = policy.NewStore()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New("", prometheus.NewRegistry())
	}

	p := &XMPPProxy{
		store:      cfg.Store,
		silence:    filter.NewSilence(cfg.Store),
		statistics: filter.NewStatistics(cfg.Metrics),
		transform:  filter.NewTransform(cfg.Store),
	}

	if cfg.Breaker.MaxFailures > 0 {
		p.breaker = breaker.New(cfg.Breaker)
		gauge := cfg.Metrics.BreakerState
		gauge.Set(float64(breaker.Closed))
		p.breaker.OnStateChange(func(from, to breaker.State) {
			gauge.Set(float64(to))
			cfg.Logger.Warn("backend breaker state changed",
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		})
	}
	if cfg.RateBurst > 0 {
		p.limiter = ratelimit.NewLimiter(cfg.RateBurst, cfg.RateLimit, 0)
	}

	serverCfg := tcp.Config{
		Address:         net.JoinHostPort(cfg.Host, cfg.Port),
		TargetAddress:   net.JoinHostPort(cfg.TargetHost, cfg.TargetPort),
		BackendDomain:   cfg.Domain,
		TLSConfig:       cfg.TLSConfig,
		DialTimeout:     cfg.DialTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		BufferSize:      cfg.BufferSize,
		Metrics:         cfg.Metrics,
		Breaker:         p.breaker,
		Limiter:         p.limiter,
		Logger:          cfg.Logger,
	}

	chain := filter.NewChain(p.silence, p.statistics, p.transform)
	p.server = tcp.New(serverCfg, &xmpp.Decoder{}, chain, h)

	return p, nil
}

// Listen starts the XMPP proxy server and blocks until context is cancelled.
func (p *XMPPProxy) Listen(ctx context.Context) error {
	p.startSweeper(ctx)
	return p.server.Listen(ctx)
}

// Serve runs the proxy on an existing listener.
func (p *XMPPProxy) Serve(ctx context.Context, l net.Listener) error {
	p.startSweeper(ctx)
	return p.server.Serve(ctx, l)
}

func (p *XMPPProxy) startSweeper(ctx context.Context) {
	if p.limiter == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.limiter.Sweep()
			}
		}
	}()
}

// Store returns the policy store shared by the filters.
func (p *XMPPProxy) Store() *policy.Store {
	return p.store
}

// Silence returns the silencing filter.
func (p *XMPPProxy) Silence() *filter.Silence {
	return p.silence
}

// Statistics returns the statistics filter.
func (p *XMPPProxy) Statistics() *filter.Statistics {
	return p.statistics
}

// Breaker returns the backend dial breaker, or nil when disabled.
func (p *XMPPProxy) Breaker() *breaker.Breaker {
	return p.breaker
}
