package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ILLUVRSE/stark-signer/internal/config"
	"github.com/ILLUVRSE/stark-signer/internal/credentials"
	"github.com/ILLUVRSE/stark-signer/internal/httpserver"
	"github.com/ILLUVRSE/stark-signer/internal/logging"
	"github.com/ILLUVRSE/stark-signer/internal/metrics"
	"github.com/ILLUVRSE/stark-signer/internal/service"
	"github.com/ILLUVRSE/stark-signer/internal/signing"
	"github.com/ILLUVRSE/stark-signer/internal/tlsutil"
)

const serviceName = "stark-signer"

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("signer stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	logger.Info("starting", zap.String("service", serviceName), zap.String("version", version), zap.Object("config", cfg))

	creds, err := credentials.FromConfig(cfg)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}

	curve := signing.NewStarkCurve()
	// Derive the public key before binding so an unusable key never serves.
	pub, err := curve.PublicKey(creds.PrivateKey())
	if err != nil {
		return fmt.Errorf("derive public key: %w", err)
	}
	logger.Info("signer key loaded", zap.Stringer("public_key", pub))

	svc := service.New(creds, curve)

	server := httpserver.New(svc, creds, logger, metrics.New(), httpserver.Options{
		ServiceName:    serviceName,
		Version:        version,
		RequestTimeout: cfg.RequestTimeout,
	})
	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorLog:     zap.NewStdLog(logger.Named("http")),
	}
	if cfg.TLS.Enabled() {
		tlsCfg, err := tlsutil.NewServerConfig(cfg.TLS)
		if err != nil {
			return fmt.Errorf("tls: %w", err)
		}
		httpServer.TLSConfig = tlsCfg
	}

	ln, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", httpServer.Addr, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", ln.Addr().String()), zap.Bool("tls", httpServer.TLSConfig != nil))
		if httpServer.TLSConfig != nil {
			serveErr <- httpServer.ServeTLS(ln, "", "")
			return
		}
		serveErr <- httpServer.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("stopped")
	return nil
}
