package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"agromarket/internal/logger"
	"agromarket/internal/models"
)

const wsWriteWait = 10 * time.Second

type listingsMessage struct {
	Type     string           `json:"type"`
	Listings []models.Listing `json:"listings"`
}

// ListingHub pushes listing snapshots to WebSocket clients. Each client
// holds at most one pending snapshot; a newer one replaces it.
type ListingHub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[chan []models.Listing]struct{}
}

func NewListingHub() *ListingHub {
	return &ListingHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[chan []models.Listing]struct{}),
	}
}

// Broadcast queues snapshot for every connected client. It never blocks, so
// it is safe to use as the store's change hook.
func (h *ListingHub) Broadcast(snapshot []models.Listing) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

func (h *ListingHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request, sends initial and then every broadcast
// snapshot until the client goes away.
func (h *ListingHub) ServeWS(w http.ResponseWriter, r *http.Request, initial []models.Listing) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates := make(chan []models.Listing, 1)
	updates <- initial
	h.mu.Lock()
	h.clients[updates] = struct{}{}
	h.mu.Unlock()
	logger.Log.Info("Listings WebSocket client connected", zap.Int("total_clients", h.clientCount()))

	defer func() {
		h.mu.Lock()
		delete(h.clients, updates)
		h.mu.Unlock()
		logger.Log.Info("Listings WebSocket client disconnected", zap.Int("total_clients", h.clientCount()))
	}()

	// Reads only detect the close; clients send nothing meaningful.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case snapshot := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(listingsMessage{Type: "listings", Listings: snapshot}); err != nil {
				logger.Log.Warn("Failed to write listings snapshot", zap.Error(err))
				return
			}
		}
	}
}
