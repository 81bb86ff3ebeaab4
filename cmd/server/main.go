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

	"golang.org/x/sync/errgroup"

	jwttoken "rightsledger/internal/jwt_token"
	"rightsledger/internal/ownership/cache"
	"rightsledger/internal/ownership/conflict"
	"rightsledger/internal/ownership/expiry"
	"rightsledger/internal/ownership/handler"
	ledgermetrics "rightsledger/internal/ownership/metrics"
	"rightsledger/internal/ownership/service"
	"rightsledger/internal/ownership/store"
	"rightsledger/internal/platform/config"
	"rightsledger/internal/platform/httpserver"
	"rightsledger/internal/platform/kafka"
	"rightsledger/internal/platform/logger"
	"rightsledger/internal/platform/metrics"
	redisclient "rightsledger/internal/platform/redis"
	httptransport "rightsledger/internal/transport/http"
	"rightsledger/pkg/platform/audit/publishers/compliance"
	kafkapublisher "rightsledger/pkg/platform/audit/publishers/kafka"
	"rightsledger/pkg/platform/audit/worker"
	"rightsledger/pkg/platform/circuit"
)

// main wires dependencies and runs the HTTP server alongside the background
// workers until SIGINT or SIGTERM.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("rightsledger stopped", "error", err)
		os.Exit(1)
	}
	log.Info("rightsledger stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	ledger, err := store.Open(ctx, cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			log.Warn("close storage", "error", err)
		}
	}()

	ledgerMetrics := ledgermetrics.New()
	auditor := compliance.New(compliance.WithLogger(log), compliance.WithMetrics(compliance.NewMetrics()))
	checks := map[string]httptransport.HealthCheck{"storage": ledger.Ping}

	var ownershipCache *cache.RedisCache
	rdb, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		ownershipCache = cache.NewRedis(rdb.Client,
			cache.WithTTL(cfg.Cache.TTL),
			cache.WithLogger(log),
			cache.WithMetrics(ledgerMetrics),
			cache.WithBreaker(circuit.New("ownership-cache",
				circuit.WithFailureThreshold(cfg.Cache.BreakerFailures),
				circuit.WithCooldown(cfg.Cache.BreakerCooldown),
			)),
		)
		checks["redis"] = rdb.Health
	}

	detectorOpts := []conflict.Option{
		conflict.WithLogger(log),
		conflict.WithMetrics(ledgerMetrics),
		conflict.WithAuditPublisher(auditor),
		conflict.WithMarkDisputed(cfg.Detection.MarkDisputed),
	}
	serviceOpts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(ledgerMetrics),
		service.WithAuditPublisher(auditor),
	}
	sweeperOpts := []expiry.Option{
		expiry.WithLogger(log),
		expiry.WithMetrics(ledgerMetrics),
		expiry.WithAuditPublisher(auditor),
		expiry.WithInterval(cfg.Expiry.SweepInterval),
		expiry.WithBatchSize(cfg.Expiry.BatchSize),
	}
	// A nil *RedisCache must not become a non-nil interface.
	if ownershipCache != nil {
		detectorOpts = append(detectorOpts, conflict.WithInvalidator(ownershipCache))
		serviceOpts = append(serviceOpts, service.WithCache(ownershipCache))
		sweeperOpts = append(sweeperOpts, expiry.WithInvalidator(ownershipCache))
	}
	detector := conflict.New(ledger, detectorOpts...)

	g, ctx := errgroup.WithContext(ctx)

	var trigger service.DetectionTrigger = detector
	if cfg.Detection.Mode == config.DetectionAsync {
		queue := conflict.NewQueue(detector,
			conflict.WithQueueLogger(log),
			conflict.WithQueueMetrics(ledgerMetrics),
			conflict.WithWorkers(cfg.Detection.Workers),
			conflict.WithQueueSize(cfg.Detection.QueueSize),
		)
		trigger = queue
		g.Go(func() error { return queue.Run(ctx) })
	}
	svc := service.New(ledger, append(serviceOpts, service.WithDetection(trigger))...)
	sweeper := expiry.New(ledger, append(sweeperOpts, expiry.WithDetection(trigger))...)

	if cfg.Expiry.SweepInterval > 0 {
		g.Go(func() error { return sweeper.Run(ctx) })
	}
	if cfg.Detection.SweepInterval > 0 {
		g.Go(func() error { return detector.RunSweeper(ctx, cfg.Detection.SweepInterval) })
	}

	if err := startRelay(ctx, g, cfg, ledger, log); err != nil {
		return err
	}

	jwtService := jwttoken.NewJWTService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	ledgerHandler := handler.New(svc, detector, log, metrics.New(),
		jwttoken.NewJWTServiceAdapter(jwtService), cfg.Server.RequestTimeout)
	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(log, checks, ledgerHandler))

	g.Go(func() error {
		log.Info("starting rightsledger",
			"addr", cfg.Server.Addr,
			"storage", cfg.Storage.Driver,
			"detection", cfg.Detection.Mode,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// startRelay publishes outbox events to Kafka when brokers are configured.
func startRelay(ctx context.Context, g *errgroup.Group, cfg config.Config, ledger store.Ledger, log *slog.Logger) error {
	client, err := kafka.New(cfg.Kafka)
	if err != nil {
		return err
	}
	if client == nil {
		log.Info("no kafka brokers configured, ledger events stay in the outbox")
		return nil
	}
	if err := kafka.EnsureTopic(ctx, client, cfg.Kafka); err != nil {
		client.Close()
		return err
	}
	relay := worker.NewWorker(ledger, kafkapublisher.New(client, cfg.Kafka.Topic),
		worker.WithInterval(cfg.Outbox.RelayInterval),
		worker.WithBatchSize(cfg.Outbox.BatchSize),
		worker.WithLogger(log),
	)
	g.Go(func() error {
		defer client.Close()
		return relay.Run(ctx)
	})
	return nil
}
