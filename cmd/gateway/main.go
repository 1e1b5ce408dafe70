// Package main is the report gateway entry point. It loads configuration,
// wires the credential store, rate limiter, idempotency cache, and signed-url
// authority onto a shared durable store, and serves the tenant and admin HTTP
// surfaces until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/rs/zerolog"

	"github.com/hfi/report-gateway/internal/api"
	"github.com/hfi/report-gateway/internal/artifacts"
	"github.com/hfi/report-gateway/internal/audit"
	"github.com/hfi/report-gateway/internal/config"
	"github.com/hfi/report-gateway/internal/credstore"
	"github.com/hfi/report-gateway/internal/idempotency"
	"github.com/hfi/report-gateway/internal/metrics"
	"github.com/hfi/report-gateway/internal/ratelimit"
	"github.com/hfi/report-gateway/internal/server"
	"github.com/hfi/report-gateway/internal/signedurl"
	"github.com/hfi/report-gateway/internal/storage"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Str("service", "report-gateway").Logger()
}

func newStore(cfg *config.Config, logger zerolog.Logger) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "redis":
		store, err := storage.NewRedisStore(cfg.Storage.Redis.Address, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Info().Str("address", cfg.Storage.Redis.Address).Msg("using redis storage")
		return store, nil
	case "memory":
		logger.Warn().Msg("using in-memory storage; state is lost on restart")
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

func newArtifactStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (artifacts.Store, error) {
	switch cfg.Artifacts.Type {
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Artifacts.S3.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		logger.Info().Str("bucket", cfg.Artifacts.S3.Bucket).Msg("using s3 artifact storage")
		return artifacts.NewS3Store(awsCfg, cfg.Artifacts.S3.Bucket, cfg.Artifacts.S3.KeyPrefix, logger), nil
	case "memory":
		logger.Warn().Msg("using in-memory artifact storage; artifacts are lost on restart")
		return artifacts.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown artifacts type %q", cfg.Artifacts.Type)
	}
}

func newTrail(cfg *config.Config) (audit.Trail, error) {
	if !cfg.Logging.Audit.Enabled {
		return audit.NewNopTrail(), nil
	}
	return audit.NewLogger(&audit.Config{
		Enabled: true,
		Level:   cfg.Logging.Audit.Level,
		Output:  cfg.Logging.Audit.Output,
	})
}

func newLimits(cfg *config.Config) map[ratelimit.Action]ratelimit.Limit {
	return map[ratelimit.Action]ratelimit.Limit{
		ratelimit.ActionReportSend: {Max: cfg.RateLimit.ReportSend.Max, Window: cfg.RateLimit.ReportSend.Window.Std()},
		ratelimit.ActionCSVUpload:  {Max: cfg.RateLimit.CSVUpload.Max, Window: cfg.RateLimit.CSVUpload.Window.Std()},
	}
}

func newManagementServer(cfg *config.Config, store storage.Store, objects artifacts.Store) *server.Server {
	mgmt := server.New(server.Config{Addr: cfg.Metrics.Addr, Version: Version})
	mgmt.RegisterCheck("store", func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			metrics.StoreUp.Set(0)
			return err
		}
		metrics.StoreUp.Set(1)
		return nil
	})
	mgmt.RegisterCheck("artifacts", objects.Ping)
	return mgmt
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := newLogger(cfg.Logging.Level)
	logger.Info().Str("version", Version).Str("commit", GitCommit).Msg("report gateway starting")

	store, err := newStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	objects, err := newArtifactStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	trail, err := newTrail(cfg)
	if err != nil {
		return fmt.Errorf("init audit trail: %w", err)
	}
	defer trail.Close()

	handler := api.New(
		credstore.New(store, logger),
		ratelimit.New(store, newLimits(cfg)),
		idempotency.New(store, cfg.IdempotencyTTL()),
		signedurl.New([]byte(cfg.SignedURL.Secret)),
		objects,
		trail,
		logger,
		api.Config{
			AdminSecret:  cfg.Admin.Secret,
			SignedURLTTL: cfg.SignedURL.DefaultTTL.Std(),
		},
	)

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  120 * time.Second,
	}

	var mgmt *server.Server
	if cfg.Metrics.Enabled {
		mgmt = newManagementServer(cfg, store, objects)
		go func() {
			if err := mgmt.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("management server failed")
			}
		}()
		logger.Info().Str("addr", cfg.Metrics.Addr).Msg("management server listening")
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Listen).Msg("api server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api server shutdown")
	}
	if mgmt != nil {
		if err := mgmt.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("management server shutdown")
		}
	}
	return nil
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("Report Gateway %s\n", Version)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "report gateway: %v\n", err)
		os.Exit(1)
	}
}
