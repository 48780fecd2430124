package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"accezzpay/internal/assets"
	"accezzpay/internal/checkout"
	"accezzpay/internal/checkout/checkout_api"
	"accezzpay/internal/config"
	"accezzpay/internal/database/migrations"
	"accezzpay/internal/gateway"
	"accezzpay/internal/issuance"
	"accezzpay/internal/kafka"
	"accezzpay/internal/logger"
	"accezzpay/internal/notify"
	"accezzpay/internal/receipt"
	"accezzpay/internal/store"
	"accezzpay/internal/webhook"
	"accezzpay/internal/webhook/webhook_api"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	if cfg.DSN == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Addr))
	return client
}

func runMigrations(bunDB *bun.DB, cfg config.DatabaseConfig, log *logger.Logger) {
	runner := migrations.NewRunner(bunDB, cfg.MigrationsDir)
	if err := runner.Initialize(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to initialize migrations: %v", err))
	}
	defer runner.Close()
	if err := runner.MigrateUp(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to run migrations: %v", err))
	}
	log.Info("DATABASE", "✅ Migrations applied")
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting payment pipeline initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()

	if cfg.Database.RunMigrations {
		runMigrations(bunDB, cfg.Database, log)
	}

	db := &store.DB{Bun: bunDB}

	// Per-order issuance lock: Redis across replicas when available,
	// otherwise in-process. The queue consumer and the receipt path
	// can race on one order either way, so never run without a lock.
	var lock issuance.OrderLock = issuance.NewLocalLock()
	if cfg.Redis.Enabled {
		redisClient := connectRedis(ctx, cfg.Redis, log)
		defer redisClient.Close()
		lock = issuance.NewRedisLock(redisClient)
	} else {
		log.Warn("REDIS", "Redis disabled, issuance lock is process-local only")
	}

	var publisher kafka.Publisher = kafka.NoopPublisher{}
	if cfg.Kafka.Enabled {
		requiredTopics := []string{
			cfg.Kafka.Topics.OrderPaid,
			cfg.Kafka.Topics.OrderRefunded,
			cfg.Kafka.Topics.TicketsIssued,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics)
		defer producer.Close()
		publisher = producer
		log.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		log.Warn("KAFKA", "Kafka disabled, order events will not be published")
	}

	var mailer notify.Mailer = notify.NoopMailer{}
	if cfg.Email.SMTPUsername != "" {
		mailer = notify.NewSMTPMailer(cfg.Email, log)
		log.Info("MAIL", "SMTP mailer configured")
	} else {
		log.Warn("MAIL", "SMTP credentials not set, emails will be dropped")
	}

	uploader := assets.NewLocalUploader(cfg.App.AssetDir, cfg.App.BaseURL)
	minter := &issuance.QRMinter{Uploader: uploader}

	engine := issuance.NewEngine(db, minter, mailer, publisher, lock, cfg.Fees, cfg.App.TicketCodePrefix, log)
	queue := issuance.NewQueue(engine, 256, log)
	queue.Start(ctx)
	log.Info("ISSUANCE", "Issuance queue started")

	gatewayClient := gateway.NewClient(cfg.Gateway, log)
	checkoutService := checkout.NewService(db, gatewayClient, queue, cfg, log)
	webhookService := webhook.NewService(db, gatewayClient, queue, engine, mailer, publisher, log)
	receiptBuilder := receipt.NewPDFBuilder("")

	checkoutHandler := checkout_api.NewHandler(checkoutService, log)
	webhookHandler := webhook_api.NewHandler(webhookService, db, receiptBuilder, log)

	log.Info("HTTP", "Setting up router")
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/payments/initialize", checkoutHandler.InitializePayment)
	r.Post("/webhooks/gateway", webhookHandler.HandleGatewayWebhook)
	r.Get("/orders/{reference}/receipt", webhookHandler.GetReceipt)
	log.Info("ROUTER", "Payment routes registered")

	// QR images are served straight off disk
	fileServer := http.StripPrefix("/assets/", http.FileServer(http.Dir(cfg.App.AssetDir)))
	r.Get("/assets/*", fileServer.ServeHTTP)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Payment pipeline running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	}

	// Let in-flight issuance finish before the process exits
	cancel()
	select {
	case <-queue.Done():
		log.Info("ISSUANCE", "Issuance queue drained")
	case <-time.After(10 * time.Second):
		log.Warn("ISSUANCE", "Issuance queue did not drain in time")
	}

	log.Info("HTTP", "✅ Payment pipeline shutdown complete")
}
