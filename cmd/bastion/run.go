package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"

	gateway "github.com/bastionlabs/bastion/internal"
	"github.com/bastionlabs/bastion/internal/audit"
	"github.com/bastionlabs/bastion/internal/auth"
	"github.com/bastionlabs/bastion/internal/clientstore"
	"github.com/bastionlabs/bastion/internal/config"
	"github.com/bastionlabs/bastion/internal/provider"
	"github.com/bastionlabs/bastion/internal/provider/bedrock"
	"github.com/bastionlabs/bastion/internal/provider/openai"
	"github.com/bastionlabs/bastion/internal/ratelimit"
	"github.com/bastionlabs/bastion/internal/server"
	"github.com/bastionlabs/bastion/internal/telemetry"
	"github.com/bastionlabs/bastion/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func run() error {
	settings, err := config.Load()
	if err != nil {
		return err
	}

	slog.Info("starting bastion", "version", version, "addr", settings.Addr)

	auditLog, err := audit.New(settings.LogLevel, settings.AuditLogFile)
	if err != nil {
		return err
	}
	defer auditLog.Close()

	ctx := context.Background()

	// Tracing
	if settings.OTLPEndpoint != "" {
		shutdown, err := telemetry.SetupTracing(ctx, settings.OTLPEndpoint, settings.TraceSampleRate)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			shutdown(shutdownCtx) //nolint:errcheck
		}()
	}

	// Metrics
	promReg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(promReg)

	// Client directory. nil store means legacy environment keys only.
	store, err := clientstore.New(ctx, settings, slog.Default())
	if err != nil {
		return err
	}

	// Shared DNS cache for upstream HTTP clients.
	resolver := &dnscache.Resolver{}

	// Register providers. Construction is lazy, so a deployment that never
	// routes to Bedrock skips AWS credential resolution entirely.
	providers := provider.NewRegistry()
	providers.Register(gateway.ProviderOpenAI, func() (gateway.Provider, error) {
		// No total timeout: streaming responses stay open past any fixed
		// budget. Dial and TLS handshake timeouts still apply.
		return openai.New(settings.UpstreamBaseURL, settings.UpstreamAPIKey,
			provider.NewHTTPClient(resolver, 0)), nil
	})
	providers.Register(gateway.ProviderBedrock, func() (gateway.Provider, error) {
		cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(settings.AWSRegion))
		if err != nil {
			return nil, err
		}
		return bedrock.New(bedrockruntime.NewFromConfig(cfg)), nil
	})
	defer providers.Close()

	limiter := ratelimit.New()

	handler := server.New(server.Deps{
		Auth:           auth.New(store, settings.GatewayAPIKeys, settings.RateLimitRPM, slog.Default()),
		Providers:      providers,
		Limiter:        limiter,
		Settings:       settings,
		Audit:          auditLog,
		Metrics:        metrics,
		MetricsHandler: promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
		Version:        version,
	})

	srv := &http.Server{
		Addr:         settings.Addr,
		Handler:      handler,
		ReadTimeout:  settings.ReadTimeout,
		WriteTimeout: settings.WriteTimeout,
	}

	// Background workers
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	runner := worker.NewRunner(worker.NewWindowSweeper(limiter, slog.Default()))
	go func() {
		if err := runner.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("worker runner stopped", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	auditLog.Info("Gateway started")
	slog.Info("bastion ready", "addr", settings.Addr)

	// Wait for signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	auditLog.Info("Gateway stopped")
	slog.Info("bastion stopped")
	return nil
}
