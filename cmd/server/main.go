package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout-service/config"
	"checkout-service/internal/api"
	"checkout-service/internal/broker"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/service"
	"checkout-service/internal/settlement"
	"checkout-service/internal/store"
	"checkout-service/internal/util"
	"checkout-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting checkout service")

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint, cfg.Server.Env)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.Migrate {
		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := db.Migrate(migrateCtx)
		cancel()
		if err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicCheckout)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicCheckout))

	eventPublisher := broker.NewEventPublisher(producer)
	settlementClient := settlement.NewClient(cfg.Settlement.URL, cfg.Settlement.Timeout)

	checkoutService := service.NewCheckoutService(
		redisClient,
		redisClient,
		db,
		db,
		settlementClient,
		eventPublisher,
		service.Options{
			SessionTTL:        cfg.Business.SessionTTL,
			LockTTL:           cfg.Business.SubmitLock,
			SettlementTimeout: cfg.Settlement.Timeout,
		},
	)
	directoryService := service.NewDirectoryService(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	receiptConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCheckout, cfg.Kafka.ConsumerGroup)
	receiptWorker := worker.NewReceiptWorker(receiptConsumer, db)
	go func() {
		if err := receiptWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Receipt worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(checkoutService, directoryService,
		api.ReadinessCheck{Name: "postgres", Ping: db.Ping},
		api.ReadinessCheck{Name: "redis", Ping: redisClient.Ping},
	)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Submissions detach from the request context, so give them the lock TTL to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Business.SubmitLock)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := receiptWorker.Stop(); err != nil {
		logger.Error("Error stopping receipt worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
