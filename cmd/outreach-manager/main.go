// cmd/outreach-manager/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"coachreach/internal/ack"
	"coachreach/internal/campaign"
	"coachreach/internal/common/aws"
	"coachreach/internal/common/config"
	"coachreach/internal/common/database"
	"coachreach/internal/common/logger"
	"coachreach/internal/common/observability"
	"coachreach/internal/directory"
	"coachreach/internal/dispatch"
	"coachreach/internal/fanout"
	"coachreach/internal/gateway"
	"coachreach/internal/ledger"
	"coachreach/internal/server"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting outreach manager...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch with retry (audit index is best-effort, so a
	// missing cluster downgrades rather than kills the service) ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 5, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Warn("elasticsearch unavailable, escalation audit indexing disabled", zap.Error(err))
		esClient = nil
	} else {
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Channel gateways ---
	var adapters []gateway.Adapter
	if cfg.Channels.Email.Enabled {
		sesClient, err := aws.NewSESClient(ctx, cfg.Channels.AWSRegion)
		if err != nil {
			zapLog.Fatal("ses client init failed", zap.Error(err))
		}
		subject := fmt.Sprintf("%s: coaching request", cfg.App.Name)
		adapters = append(adapters, gateway.NewEmailAdapter(sesClient, cfg.Channels.Email.FromEmail, subject))
	}
	if cfg.Channels.SMS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Channels.AWSRegion)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		adapters = append(adapters, gateway.NewSMSAdapter(snsClient, cfg.Channels.SMS.SenderID))
	}
	if cfg.Channels.Chat.Enabled {
		adapters = append(adapters, gateway.NewChatAdapter(rdb.Client))
	}
	if len(adapters) == 0 {
		zapLog.Fatal("no channel gateways enabled")
	}

	// --- Wiring ---
	var auditor ledger.AuditIndexer
	if esClient != nil {
		auditor = esClient
	}
	ledgerStore := ledger.NewStore(pg.DB, auditor, cfg.Database.Elasticsearch.AuditIndex, log)
	campaignStore := campaign.NewStore(pg.DB)
	dir := directory.NewService(pg.DB, rdb.Client, log)
	broker := fanout.NewBroker(rdb.Client, cfg.Fanout.TopicPrefix, log)
	dispatcher := dispatch.NewDispatcher(gateway.NewRegistry(adapters...), ledgerStore, broker, campaignStore, cfg.Channels, log)
	manager := campaign.NewManager(campaignStore, dir, dispatcher, ledgerStore, ledgerStore, cfg.HTTP.PublicBaseURL, log)
	correlator := ack.NewCorrelator(campaignStore, dir, ledgerStore, log)

	// --- Scheduler ---
	scheduler := campaign.NewScheduler(
		manager,
		rdb,
		config.GetDuration(cfg.Scheduler.Interval),
		config.GetDuration(cfg.Scheduler.LockTTL),
		cfg.Scheduler.CatchUpOnStart,
		obs,
		log,
	)
	go scheduler.Run(ctx)

	// --- HTTP server ---
	health := map[string]server.HealthChecker{
		"postgres": func(ctx context.Context) error { return pg.Ping(ctx) },
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx) },
	}
	srv := server.New(manager, correlator, dispatcher, dir, health, log)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      srv.Router(),
		ReadTimeout:  config.GetDuration(cfg.HTTP.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.HTTP.WriteTimeout),
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.HTTP.Address))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLog.Info("Shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("http shutdown failed", zap.Error(err))
	}
	zapLog.Info("Outreach manager stopped")
}
