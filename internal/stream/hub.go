// Package stream distributes price ticks to real-time subscribers over
// websockets and serves the engine's HTTP read contract.
package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"fxengine/internal/domain"
	"fxengine/internal/infra"
)

// PriceMessage is the outbound broadcast payload, one per tick.
type PriceMessage struct {
	Type      string `json:"type"`
	Symbol    string `json:"symbol"`
	Bid       string `json:"bid"`
	Ask       string `json:"ask"`
	Timestamp int64  `json:"timestamp"`
	Synthetic bool   `json:"synthetic,omitempty"`
}

const clientSendBuffer = 16

// Hub fans price messages out to websocket subscribers. A subscriber whose
// send buffer stays full simply misses ticks; it is never allowed to slow
// the tick path down.
type Hub struct {
	metrics  *infra.Metrics
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty broadcast hub.
func NewHub(metrics *infra.Metrics) *Hub {
	return &Hub{
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Broadcast sends one quote to every subscriber.
func (h *Hub) Broadcast(q domain.Quote, synthetic bool) {
	msg := PriceMessage{
		Type:      "price",
		Symbol:    q.Symbol,
		Bid:       q.Bid.String(),
		Ask:       q.Ask.String(),
		Timestamp: q.At.UnixMilli(),
		Synthetic: synthetic,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.metrics.RecordBroadcastDrop()
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades a subscriber connection and streams ticks until it
// disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	slog.Debug("websocket subscriber connected", slog.String("remote", conn.RemoteAddr().String()))

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) writeLoop(c *client) {
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// readLoop discards inbound frames; its job is noticing disconnects.
func (h *Hub) readLoop(c *client) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}
