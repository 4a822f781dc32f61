package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/faxsync/golang_services/internal/fax_sync_service/adapters/blobstore"
	"github.com/faxsync/golang_services/internal/fax_sync_service/adapters/downstream"
	"github.com/faxsync/golang_services/internal/fax_sync_service/app"
	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
	"github.com/faxsync/golang_services/internal/fax_sync_service/provider"
	"github.com/faxsync/golang_services/internal/fax_sync_service/repository/postgres"
	httptransport "github.com/faxsync/golang_services/internal/fax_sync_service/transport/http"
	"github.com/faxsync/golang_services/internal/platform/config"
	"github.com/faxsync/golang_services/internal/platform/database"
	"github.com/faxsync/golang_services/internal/platform/grpchealth"
	"github.com/faxsync/golang_services/internal/platform/httpretry"
	"github.com/faxsync/golang_services/internal/platform/logger"
	"github.com/faxsync/golang_services/internal/platform/messagebroker"
	"github.com/faxsync/golang_services/internal/platform/tracing"
)

const (
	serviceName         = "fax_sync_service"
	shutdownTimeout     = 30 * time.Second
	healthCheckInterval = 15 * time.Second
)

func main() {
	cfg, live, err := config.LoadAndWatch(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger, levelVar := logger.NewWithLevelVar(os.Stdout, cfg.LogLevel)
	live.OnLogLevelChange(func(level string) {
		levelVar.Set(logger.ParseLevel(level))
		appLogger.Info("Log level changed", "log_level", level)
	})
	appLogger.Info("Fax Sync Service starting...", "log_level", cfg.LogLevel, "broker", cfg.BrokerKind)

	mainCtx, mainCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer mainCancel()

	shutdownTracing, err := tracing.Init(mainCtx, cfg.OTelExporterEndpoint, serviceName, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialise tracing", "error", err)
		os.Exit(1)
	}

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Successfully connected to PostgreSQL database")

	var (
		publisher messagebroker.Publisher
		natsCli   *messagebroker.NatsClient
	)
	switch cfg.BrokerKind {
	case "amqp":
		amqpPub, err := messagebroker.NewAMQPPublisher(cfg.AMQPUrl, cfg.AMQPExchange, appLogger)
		if err != nil {
			appLogger.Error("Failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		publisher = amqpPub
	default:
		natsCli, err = messagebroker.NewNatsClient(cfg.NATSUrl, "fax-sync-service", appLogger)
		if err != nil {
			appLogger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		publisher = natsCli
	}
	defer publisher.Close()

	faxRepo := postgres.NewPgFaxRecordRepository(dbPool, appLogger)
	watermarkRepo := postgres.NewPgWatermarkRepository(dbPool, appLogger)
	outboundRepo := postgres.NewPgOutboundFaxRepository(dbPool, appLogger)

	httpClient := &http.Client{Timeout: cfg.ProviderHTTPTimeout}
	policy := httpretry.DefaultPolicy
	creds := downstream.Credentials{
		APIKey:       cfg.PartnerAPIKey,
		ClientName:   cfg.PartnerClientName,
		ClientSecret: cfg.PartnerClientSecret,
	}

	partners := downstream.NewPartnerClient(appLogger, cfg.PartnerServiceURL, creds, httpClient, policy)
	inbox := downstream.NewInboxClient(appLogger, cfg.InboxServiceURL, creds, httpClient, policy)
	documents := downstream.NewDocumentClient(appLogger, cfg.DocumentServiceURL, creds, httpClient, policy)
	referrals := downstream.NewReferralClient(appLogger, cfg.ReferralServiceURL, creds, httpClient, policy)
	converter := downstream.NewFileProcessingClient(appLogger, cfg.FileProcessingURL, httpClient, policy)

	tokens := provider.NewTokenManager(appLogger, partners, cfg.RingCentralTokenURL, httpClient)
	providers := []provider.FaxProvider{
		provider.NewSRFaxProvider(appLogger, cfg.SRFaxURL, httpClient, policy),
		provider.NewRingCentralProvider(appLogger, cfg.RingCentralBaseURL, tokens, httpClient, policy),
		provider.NewUniteFaxProvider(appLogger, cfg.UniteFaxPdfURL, httpClient, policy),
	}

	blobs, err := blobstore.NewGCSStore(mainCtx, cfg.GCSBucket, appLogger)
	if err != nil {
		appLogger.Error("Failed to create GCS client", "error", err)
		os.Exit(1)
	}
	defer blobs.Close()

	notifier := app.NewNotifier(publisher, cfg.FaxInboundSubject, cfg.FaxSentSubject, appLogger)
	orchestrator := app.NewSyncOrchestrator(partners, providers, faxRepo, watermarkRepo, blobs, converter, inbox, notifier, live,
		app.SyncConfig{
			PartnerConcurrency: cfg.SyncPartnerConcurrency,
			RecordConcurrency:  cfg.SyncRecordConcurrency,
			MaxCatchUp:         cfg.SyncMaxCatchUp,
		}, appLogger)
	retry := app.NewRetryController(faxRepo, blobs, notifier, cfg.RetryWindow, appLogger)

	defaultSRFax := &domain.SrFaxConfig{
		AccountNumber: cfg.SRFaxDefaultAccountNumber,
		Password:      cfg.SRFaxDefaultPassword,
		Number:        cfg.SRFaxDefaultNumber,
		Email:         cfg.SRFaxDefaultEmail,
		IsActive:      true,
	}
	router := app.NewOutboundRouter(partners, providers, outboundRepo, notifier, defaultSRFax, live, appLogger)
	renderer := app.NewTemplateRenderer(blobs, converter, cfg.FaxTemplateFolder, appLogger)
	outbound := app.NewOutboundService(router, outboundRepo, partners, documents, referrals, inbox, renderer, appLogger)
	faxes := app.NewFaxManagementService(faxRepo, retry, appLogger)
	uploads := app.NewUploadService(faxRepo, blobs, converter, inbox, notifier, appLogger)

	if natsCli != nil {
		consumer := app.NewStatusConsumer(natsCli, cfg.FaxStatusSubject, cfg.FaxStatusQueueGroup, faxes, appLogger)
		if err := consumer.Start(mainCtx); err != nil {
			appLogger.Error("Failed to start status consumer", "error", err)
			os.Exit(1)
		}
	} else {
		appLogger.Info("Status reports accepted over HTTP only", "broker", cfg.BrokerKind)
	}

	handler := httptransport.NewFaxHandler(orchestrator, outbound, faxes, uploads, validator.New(), appLogger)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      httptransport.NewRouter(handler, []byte(cfg.InternalJWTSecret), dbPool, appLogger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.MetricsPort), Handler: metricsMux}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("HTTP server starting", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		appLogger.Info("Metrics HTTP server starting", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return grpchealth.NewServer(serviceName, dbPool, appLogger).Serve(groupCtx, cfg.GRPCHealthPort, healthCheckInterval)
	})

	g.Go(func() error {
		runRealtimeSync(groupCtx, orchestrator, cfg.SyncRealtimeInterval, cfg.SyncPassTimeout, appLogger)
		return nil
	})

	g.Go(func() error {
		runRetrySweeps(groupCtx, retry, cfg.AutoRetryInterval, appLogger)
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var shutdownErr error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("http shutdown: %w", err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("metrics shutdown: %w", err))
		}
		uploads.Wait()
		if err := shutdownTracing(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("tracing shutdown: %w", err))
		}
		return shutdownErr
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Fax Sync Service stopped with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Fax Sync Service shut down successfully.")
}

// runRealtimeSync starts a REALTIME pass on every tick. A pass that outlives
// the interval delays the next tick rather than overlapping it.
func runRealtimeSync(ctx context.Context, orchestrator *app.SyncOrchestrator, interval, timeout time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			passCtx, cancel := context.WithTimeout(ctx, timeout)
			summary, err := orchestrator.RunSyncPass(passCtx, domain.SyncRequest{Mode: domain.SyncModeRealtime})
			cancel()
			if err != nil {
				logger.ErrorContext(ctx, "Realtime sync pass failed", "error", err)
				continue
			}
			logger.InfoContext(ctx, "Realtime sync pass finished",
				"partners", summary.Partners, "created", summary.Created, "failed", summary.Failed, "skipped", summary.Skipped)
		}
	}
}

func runRetrySweeps(ctx context.Context, retry *app.RetryController, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := retry.Sweep(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Retry sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.InfoContext(ctx, "Retry sweep republished faxes", "count", n)
			}
		}
	}
}
