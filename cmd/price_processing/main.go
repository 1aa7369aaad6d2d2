package main

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"agromarket/internal/alerts"
	"agromarket/internal/backend"
	"agromarket/internal/cache"
	"agromarket/internal/config"
	"agromarket/internal/handlers"
	"agromarket/internal/logger"
	"agromarket/internal/market"
	"agromarket/internal/models"
	"agromarket/internal/stream"
)

func main() {
	cfg, _ := config.Load()
	logger.InitLogger(cfg.LogLevel, cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cache.InitRedis(ctx, cfg.RedisAddr); err != nil {
		logger.Log.Warn("Redis unavailable, triggered alerts will not reach the market service", zap.Error(err))
	}

	storage, db, err := backend.Open(ctx, cfg)
	if err != nil {
		logger.Log.Fatal("Failed to open alert storage", zap.Error(err))
	}
	if db != nil {
		defer db.Close()
	}

	brokers := cfg.Brokers()
	if brokers == nil {
		logger.Log.Fatal("KAFKA_BROKERS is required for price processing")
	}
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": strings.Join(brokers, ","),
		"group.id":          cfg.KafkaGroupID,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		logger.Log.Fatal("Failed to create Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	if err := consumer.Subscribe(cfg.KafkaPriceTopic, nil); err != nil {
		logger.Log.Fatal("Failed to subscribe to Kafka topic", zap.String("topic", cfg.KafkaPriceTopic), zap.Error(err))
	}
	logger.Log.Info("Listening for price updates", zap.String("topic", cfg.KafkaPriceTopic))

	evaluator := alerts.NewEvaluator(cfg.AlertCooldown)
	for ctx.Err() == nil {
		msg, err := consumer.ReadMessage(time.Second)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) && kerr.IsTimeout() {
				continue
			}
			logger.Log.Error("Kafka consumer error", zap.Error(err))
			continue
		}

		update, err := stream.DecodeUpdate(msg.Value)
		if err != nil {
			logger.Log.Warn("Error parsing price update", zap.Error(err))
			continue
		}
		processPriceUpdate(ctx, storage, evaluator, update)
	}
	logger.Log.Info("Price processing stopped")
}

// processPriceUpdate evaluates the persisted price alerts against one
// update and broadcasts every alert that fires.
func processPriceUpdate(ctx context.Context, storage market.Storage, evaluator *alerts.Evaluator, update models.PriceUpdate) {
	priceAlerts, err := market.LoadPriceAlerts(ctx, storage)
	if err != nil {
		logger.Log.Error("Failed to load price alerts", zap.Error(err))
		return
	}

	for _, msg := range evaluator.Evaluate(priceAlerts, update) {
		logger.Log.Info("Price alert triggered",
			zap.String("alert_id", msg.AlertID),
			zap.String("crop", msg.Crop),
			zap.Float64("price", msg.Price),
			zap.String("triggered", string(msg.Triggered)),
		)
		handlers.BroadcastAlert(ctx, msg)
	}
}
