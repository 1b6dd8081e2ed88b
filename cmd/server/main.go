package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/craftvine/payments-service/internal/config"
	"github.com/craftvine/payments-service/internal/logger"
	"github.com/craftvine/payments-service/internal/model"
	"github.com/craftvine/payments-service/internal/monime"
	"github.com/craftvine/payments-service/internal/repo"
	"github.com/craftvine/payments-service/internal/service"
	httptransport "github.com/craftvine/payments-service/internal/transport/http"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	if cfg.Monime.WebhookSecret == "" && !cfg.IsDevelopment() {
		log.Fatal("MONIME_WEBHOOK_SECRET is required outside development")
	}

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(
		&model.WebhookEvent{},
		&model.DeliveryEscrow{},
		&model.WorkSubmission{},
		&model.Pitch{},
		&model.PitchInvestment{},
		&model.CashoutRequest{},
		&model.Transaction{},
		&model.Wallet{},
		&model.WalletEntry{},
		&model.PayoutProfile{},
		&model.Notification{},
		&model.OutboxEvent{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writer
	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	// 6. repo & services
	repository := repo.NewRepository(gdb, rdb, kw, log)
	payouts := monime.NewClient(cfg.Monime.APIBaseURL, cfg.Monime.APIKey, cfg.Monime.SpaceID)
	wallets := service.NewWalletService(repository, payouts, log)
	hooks := service.NewWebhookService(repository, wallets, payouts, cfg.Monime.WebhookSecret, cfg.IsDevelopment(), log)

	// 7. gin router
	router := httptransport.NewRouter(hooks, wallets, cfg.RateLimit, log)

	// 8. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("payments-server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
