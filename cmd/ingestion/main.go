package main

import (
	"context"
	"encoding/json"
	"flag"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"agromarket/internal/config"
	"agromarket/internal/logger"
	"agromarket/internal/models"
	"agromarket/internal/stream"
)

const maxBackoff = 30 * time.Second

// SubscriptionMessage selects the crops the price feed should stream.
type SubscriptionMessage struct {
	Type     string   `json:"type"`
	Crops    []string `json:"crops"`
	Channels []string `json:"channels"`
}

// FeedMessage is one mandi price quote from the feed. Prices arrive as
// decimal strings.
type FeedMessage struct {
	Type   string `json:"type"`
	Crop   string `json:"crop"`
	Market string `json:"market"`
	Price  string `json:"price"`
	Time   string `json:"time"`
}

func main() {
	cfg, _ := config.Load()
	crops := flag.String("crops", "Tomato,Onion,Brinjal,Chilli,Paddy", "Comma-separated crops to subscribe to")
	feedURL := flag.String("feed", cfg.PriceFeedURL, "Price feed WebSocket URL")
	flag.Parse()

	logger.InitLogger(cfg.LogLevel, cfg.Environment)
	defer logger.Sync()

	brokers := cfg.Brokers()
	if brokers == nil {
		logger.Log.Fatal("KAFKA_BROKERS is required for ingestion")
	}
	publisher, err := stream.NewPublisher(brokers, cfg.KafkaPriceTopic)
	if err != nil {
		logger.Log.Fatal("Failed to create Kafka producer", zap.Error(err))
	}
	defer publisher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	subscribe := SubscriptionMessage{
		Type:     "subscribe",
		Crops:    splitList(*crops),
		Channels: []string{"prices"},
	}

	for ctx.Err() == nil {
		c := connectWebSocket(ctx, *feedURL)
		if c == nil {
			break
		}
		consume(ctx, c, subscribe, publisher)
	}
	logger.Log.Info("Ingestion stopped")
}

// connectWebSocket dials url with exponential backoff until it succeeds or
// ctx ends, in which case it returns nil.
func connectWebSocket(ctx context.Context, url string) *websocket.Conn {
	backoff := 1 * time.Second

	for {
		logger.Log.Info("Connecting to price feed", zap.String("url", url))
		c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err == nil {
			logger.Log.Info("Connected to price feed")
			return c
		}
		logger.Log.Warn("Price feed connection failed",
			zap.Error(err),
			zap.Duration("retry_in", backoff),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func consume(ctx context.Context, c *websocket.Conn, subscribe SubscriptionMessage, publisher *stream.Publisher) {
	defer c.Close()
	stopClose := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stopClose()

	if err := c.WriteJSON(subscribe); err != nil {
		logger.Log.Error("Subscription failed", zap.Error(err))
		return
	}
	logger.Log.Info("Subscribed to crop prices", zap.Strings("crops", subscribe.Crops))

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Log.Warn("Price feed read failed", zap.Error(err))
			}
			return
		}

		var msg FeedMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Log.Warn("Error parsing feed message", zap.Error(err))
			continue
		}

		update, ok := toPriceUpdate(msg)
		if !ok {
			continue
		}
		if err := publisher.Publish(update); err != nil {
			logger.Log.Error("Error producing Kafka message", zap.Error(err))
			continue
		}
		logger.Log.Debug("Price published",
			zap.String("crop", update.Crop),
			zap.String("region", update.Region),
			zap.Float64("price", update.Price),
		)
	}
}

// toPriceUpdate converts price quotes; other message types and unparseable
// prices are skipped.
func toPriceUpdate(msg FeedMessage) (models.PriceUpdate, bool) {
	if msg.Type != "price" || msg.Crop == "" {
		return models.PriceUpdate{}, false
	}
	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil || price <= 0 {
		return models.PriceUpdate{}, false
	}
	return models.PriceUpdate{
		Source:    "mandi-feed",
		Crop:      msg.Crop,
		Region:    msg.Market,
		Price:     price,
		Timestamp: msg.Time,
	}, true
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
