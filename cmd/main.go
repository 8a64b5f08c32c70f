// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/absmach/xmpproxy"
	"github.com/absmach/xmpproxy/examples/simple"
	"github.com/absmach/xmpproxy/pkg/admin"
	"github.com/absmach/xmpproxy/pkg/breaker"
	"github.com/absmach/xmpproxy/pkg/health"
	"github.com/absmach/xmpproxy/pkg/metrics"
	"github.com/absmach/xmpproxy/pkg/policy"
	"github.com/absmach/xmpproxy/pkg/proxy"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const envPrefix = "XPROXY_"

type config struct {
	LogLevel        string        `env:"LOG_LEVEL"        envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT"       envDefault:"json"`
	HTTPAddress     string        `env:"HTTP_ADDRESS"     envDefault:":9090"`
	AdminAddress    string        `env:"ADMIN_ADDRESS"    envDefault:"localhost:5280"`
	PolicyFile      string        `env:"POLICY_FILE"      envDefault:""`
	MetricsPrefix   string        `env:"METRICS_PREFIX"   envDefault:"xmpproxy"`
	HealthCacheTTL  time.Duration `env:"HEALTH_CACHE_TTL" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	// Load .env file
	envErr := godotenv.Load()

	cfg := config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		logger.Warn("no .env file found, using environment variables")
	}

	proxyCfg, err := xmpproxy.NewConfig(env.Options{Prefix: envPrefix})
	if err != nil {
		logger.Error("failed to load proxy config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if proxyCfg.Port == "" || proxyCfg.TargetHost == "" {
		logger.Error("proxy port and target host must be configured")
		os.Exit(1)
	}

	store := policy.NewStore()
	if cfg.PolicyFile != "" {
		if store, err = policy.Load(cfg.PolicyFile); err != nil {
			logger.Error("failed to load policy seed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("policy seed loaded", slog.String("file", cfg.PolicyFile))
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(cfg.MetricsPrefix, reg)

	xmppProxy, err := proxy.NewXMPP(proxy.XMPPConfig{
		Host:            proxyCfg.Host,
		Port:            proxyCfg.Port,
		TargetHost:      proxyCfg.TargetHost,
		TargetPort:      proxyCfg.TargetPort,
		Domain:          proxyCfg.Domain,
		TLSConfig:       proxyCfg.TLSConfig,
		DialTimeout:     proxyCfg.DialTimeout,
		ShutdownTimeout: proxyCfg.ShutdownTimeout,
		BufferSize:      proxyCfg.BufferSize,
		Store:           store,
		Metrics:         m,
		Breaker: breaker.Config{
			MaxFailures:  proxyCfg.BreakerMaxFailures,
			ResetTimeout: proxyCfg.BreakerResetTimeout,
		},
		RateBurst: proxyCfg.RateBurst,
		RateLimit: proxyCfg.RateLimit,
		Logger:    logger,
	}, simple.New(logger))
	if err != nil {
		logger.Error("failed to create XMPP proxy", slog.String("error", err.Error()))
		os.Exit(1)
	}

	domain := proxyCfg.Domain
	if domain == "" {
		domain = proxyCfg.TargetHost
	}
	checker := health.NewChecker(cfg.HealthCacheTTL)
	checker.Register("backend", health.XMPPBackend(
		net.JoinHostPort(proxyCfg.TargetHost, proxyCfg.TargetPort), domain, proxyCfg.DialTimeout))

	exec := admin.NewExecutor(store, xmppProxy.Silence(), xmppProxy.Statistics(), m, logger)
	adminServer := admin.NewServer(admin.Config{
		Address: cfg.AdminAddress,
		Logger:  logger,
	}, exec)

	g.Go(func() error {
		return xmppProxy.Listen(ctx)
	})

	g.Go(func() error {
		return adminServer.Listen(ctx)
	})

	g.Go(func() error {
		return startHTTPServer(ctx, cfg, reg, checker, logger)
	})

	// Signal handler
	g.Go(func() error {
		return StopSignalHandler(ctx, cancel, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("xmpproxy service terminated with error: %s", err))
	} else {
		logger.Info("xmpproxy service stopped")
	}
}

func startHTTPServer(ctx context.Context, cfg config, reg *prometheus.Registry, checker *health.Checker, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", checker.HTTPHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.HandleFunc("/live", health.LivenessHandler())

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
	}()

	logger.Info("HTTP server started", slog.String("address", cfg.HTTPAddress))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server: %w", err)
	}
	return nil
}

// setupLogger creates a structured logger with the specified level and format.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGABRT)
	select {
	case <-c:
		logger.Info("received shutdown signal")
		cancel()
		return nil
	case <-ctx.Done():
		return nil
	}
}
