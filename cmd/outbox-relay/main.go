package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/approval-flow/internal/infra"
	"github.com/xela07ax/approval-flow/internal/relay"
	"github.com/xela07ax/approval-flow/internal/repository/postgres"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 2. Ресурсы: Postgres (источник) и Redis (шина)
	store, err := postgres.NewStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to init postgres store", zap.Error(err))
	}
	defer store.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	pingCancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// 3. Сборка relay: Redis-паблишер под защитным контуром
	publisher := relay.NewReliablePublisher(
		relay.NewRedisPublisher(rdb, cfg.Relay.Channel),
		cfg.Relay,
	)

	reg := prometheus.NewRegistry()
	metrics := relay.NewMetrics(reg)

	// Экспортируем метрики для Prometheus
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(":9091", mux); err != nil {
			logger.Error("metrics endpoint failed", zap.Error(err))
		}
	}()

	// 4. Рабочий цикл до SIGTERM, с финальным drain внутри Run
	worker := relay.New(store, publisher, logger, metrics, cfg.Relay.PollInterval, cfg.Relay.BatchSize)
	worker.Run(ctx)
}
