package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"payment_processing/internal/bank"
	"payment_processing/internal/cache"
	"payment_processing/internal/config"
	"payment_processing/internal/handlers"
	"payment_processing/internal/kafka"
	"payment_processing/internal/metrics"
	"payment_processing/internal/repository"
	"payment_processing/internal/service"

	"github.com/go-chi/chi/v5"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.Default()

	// ---------- config ----------
	cfg := config.Load()

	// ---------- metrics ----------
	metrics.Register()

	// ---------- db ----------
	pool, err := repository.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("db:", err)
	}

	store := repository.NewStore(pool, cfg.OutboxMaxRetries)
	defer store.Close()

	metrics.StartDBCollectors(ctx, pool, 10*time.Second, logger)

	// ---------- redis ----------
	redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redisCache.Close()
	cache.StartRedisSizeCollector(ctx, redisCache.RawClient(), 30*time.Second, logger)

	// ---------- bank ----------
	bankClient := bank.NewMockClient(cfg.BankSuccessRate, logger)

	// ---------- services ----------
	paymentService := service.NewPaymentService(store, cfg.KafkaEventsTopic, logger)

	processing := service.NewProcessingService(
		store, bankClient, cfg.KafkaEventsTopic,
		cfg.ProcessInterval, cfg.ProcessBatchSize, logger,
	)
	processing.Start(ctx)

	reconciliation := service.NewReconciliationService(
		store, bankClient,
		cfg.ReconcileInterval, cfg.VerifyInterval,
		cfg.StuckAfter, cfg.VerifyAfter,
		logger,
	)
	reconciliation.Start(ctx)

	// ---------- kafka producer + outbox sender ----------
	producer, err := kafka.NewSyncProducer(cfg.KafkaBrokers)
	if err != nil {
		logger.Fatal("kafka producer:", err)
	}
	defer producer.Close()

	outboxSender := service.NewOutboxSender(
		store.Outbox, producer,
		cfg.OutboxPollInterval, cfg.OutboxBatchSize,
		cfg.OutboxRetentionDays, cfg.OutboxMaxRetries,
		logger,
	)
	outboxSender.Start(ctx)

	// ---------- kafka consumer (intake) ----------
	consumer, err := kafka.NewConsumer(
		cfg.KafkaBrokers,
		cfg.KafkaGroupID,
		cfg.KafkaRequestsTopic,
		paymentService,
		redisCache,
		logger,
	)
	if err != nil {
		logger.Fatal("kafka consumer:", err)
	}
	defer consumer.Close()

	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Printf("kafka consumer stopped: %v", err)
		}
	}()

	// ---------- router ----------
	r := chi.NewRouter()
	r.Use(metrics.HTTPMiddleware)
	r.Handle("/metrics", metrics.Handler())

	h := handlers.NewPaymentHandler(paymentService, redisCache, cfg.CacheTTL)
	handlers.RegisterPaymentRoutes(r, h)

	// ---------- start server ----------
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: r,
	}

	go func() {
		logger.Println("server starting on", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Println("http server:", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Println("http shutdown:", err)
	}
}
