package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"fxengine/internal/domain"
	"fxengine/internal/infra"
)

func dialTestHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubBroadcastsToSubscriber(t *testing.T) {
	h := NewHub(&infra.Metrics{})
	conn := dialTestHub(t, h)

	waitForClients(t, h, 1)

	at := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	h.Broadcast(domain.Quote{Symbol: "USDJPY", Bid: 15000000, Ask: 15000050, At: at}, false)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var msg PriceMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if msg.Type != "price" || msg.Symbol != "USDJPY" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.Bid != "150.00000" || msg.Ask != "150.00050" {
		t.Errorf("prices must render as decimals: %+v", msg)
	}
	if msg.Timestamp != at.UnixMilli() {
		t.Errorf("expected millisecond timestamp %d, got %d", at.UnixMilli(), msg.Timestamp)
	}
	if msg.Synthetic {
		t.Error("live tick must not carry the synthetic flag")
	}
}

func TestHubFlagsSyntheticQuotes(t *testing.T) {
	h := NewHub(&infra.Metrics{})
	conn := dialTestHub(t, h)
	waitForClients(t, h, 1)

	h.Broadcast(domain.Quote{Symbol: "USDJPY", Bid: 1, Ask: 2, At: time.Now()}, true)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	var msg PriceMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if !msg.Synthetic {
		t.Error("synthetic tick must be flagged")
	}
}

func TestHubDropsDisconnectedSubscriber(t *testing.T) {
	h := NewHub(&infra.Metrics{})
	conn := dialTestHub(t, h)
	waitForClients(t, h, 1)

	conn.Close()
	waitForClients(t, h, 0)

	// Broadcasting into an empty hub must be a harmless no-op.
	h.Broadcast(domain.Quote{Symbol: "USDJPY", Bid: 1, Ask: 2, At: time.Now()}, false)
}

func waitForClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, got %d", want, h.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
