package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"agromarket/internal/cache"
	"agromarket/internal/logger"
	"agromarket/internal/models"
)

// SSE clients
var (
	clients = make(map[chan models.AlertMessage]bool)
	mu      sync.Mutex
)

// Redis channel carrying triggered price alerts between instances.
const alertsChannel = "agro_price_alerts"

var heartbeatInterval = 15 * time.Second

// InitSSE subscribes to the alerts channel and relays every message to the
// connected SSE clients until ctx ends. Without Redis, alerts published on
// this instance are still delivered locally.
func InitSSE(ctx context.Context) {
	sub, err := cache.NewRedisSubscriber(ctx, alertsChannel)
	if err != nil {
		logger.Log.Warn("Alert fan-out limited to this instance", zap.Error(err))
		return
	}
	go listenForAlerts(ctx, sub)
}

func listenForAlerts(ctx context.Context, sub *cache.RedisSubscriber) {
	defer sub.Close()
	logger.Log.Info("Starting to listen for alerts from Redis")

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Error("Error receiving message from Redis", zap.Error(err))
			time.Sleep(1 * time.Second)
			continue
		}

		var alert models.AlertMessage
		if err := json.Unmarshal([]byte(msg.Payload), &alert); err != nil {
			logger.Log.Error("Error unmarshaling alert message", zap.Error(err))
			continue
		}

		logger.Log.Info("Received alert from Redis",
			zap.String("crop", alert.Crop),
			zap.String("triggered", string(alert.Triggered)))
		broadcastToClients(alert)
	}
}

// StreamAlertsHandler holds an SSE connection open and writes each triggered
// alert as a data event, with a timestamp-only heartbeat while idle.
func StreamAlertsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	clientChan := make(chan models.AlertMessage, 10)
	mu.Lock()
	clients[clientChan] = true
	clientCount := len(clients)
	mu.Unlock()

	logger.Log.Info("New SSE client connected", zap.Int("total_clients", clientCount))

	defer func() {
		mu.Lock()
		delete(clients, clientChan)
		clientCount := len(clients)
		mu.Unlock()
		logger.Log.Info("SSE client disconnected", zap.Int("total_clients", clientCount))
	}()

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		var alert models.AlertMessage
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			alert = models.AlertMessage{Timestamp: time.Now().Format(time.RFC3339)}
		case alert = <-clientChan:
		}

		alertData, err := json.Marshal(alert)
		if err != nil {
			logger.Log.Error("Failed to marshal alert data", zap.Error(err))
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", alertData)
		flusher.Flush()
	}
}

func sseClientCount() int {
	mu.Lock()
	defer mu.Unlock()
	return len(clients)
}

// broadcastToClients sends alert to all connected SSE clients, dropping it
// for any client whose buffer is full.
func broadcastToClients(alert models.AlertMessage) {
	mu.Lock()
	defer mu.Unlock()

	if len(clients) == 0 {
		logger.Log.Debug("No SSE clients connected, skipping alert broadcast")
		return
	}

	for clientChan := range clients {
		select {
		case clientChan <- alert:
		default:
			logger.Log.Warn("Alert dropped due to slow client")
		}
	}
}

// BroadcastAlert publishes alert to Redis for distribution to every
// instance. When Redis is not configured the alert goes straight to this
// instance's clients.
func BroadcastAlert(ctx context.Context, alert models.AlertMessage) {
	alertJSON, err := json.Marshal(alert)
	if err != nil {
		logger.Log.Error("Failed to marshal alert", zap.Error(err))
		return
	}

	err = cache.PublishMessage(ctx, alertsChannel, string(alertJSON))
	if errors.Is(err, cache.ErrRedisDisabled) {
		broadcastToClients(alert)
		return
	}
	if err != nil {
		logger.Log.Error("Failed to publish alert to Redis", zap.Error(err))
		return
	}

	logger.Log.Info("Alert published to Redis",
		zap.String("alert_id", alert.AlertID),
		zap.String("crop", alert.Crop))
}
