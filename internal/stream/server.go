package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"fxengine/internal/domain"
	"fxengine/internal/infra"
	"fxengine/internal/infra/feed"
	"fxengine/internal/service"
)

// Server exposes the engine read contract over HTTP: the live quote with its
// staleness verdict, candles, counters, and the websocket tick stream. While
// the feed is stale it may substitute clearly-flagged synthetic quotes for
// display continuity; execution paths never touch them.
type Server struct {
	hub            *Hub
	board          *service.QuoteBoard
	candles        *service.CandleAggregator
	orders         *service.OrderService
	synth          *feed.Synthetic
	metrics        *infra.Metrics
	allowSynthetic bool
}

// NewServer wires the read-contract surface.
func NewServer(hub *Hub, board *service.QuoteBoard, candles *service.CandleAggregator,
	orders *service.OrderService, synth *feed.Synthetic, metrics *infra.Metrics,
	allowSynthetic bool) *Server {
	return &Server{
		hub:            hub,
		board:          board,
		candles:        candles,
		orders:         orders,
		synth:          synth,
		metrics:        metrics,
		allowSynthetic: allowSynthetic,
	}
}

// Routes registers all handlers on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.hub.HandleWS)
	mux.HandleFunc("GET /api/quote", s.handleQuote)
	mux.HandleFunc("GET /api/candles", s.handleCandles)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("POST /api/orders", s.handlePlaceOrder)
	mux.HandleFunc("POST /api/orders/{id}/cancel", s.handleCancelOrder)
	mux.HandleFunc("POST /api/positions/{id}/close", s.handleClosePosition)
	return mux
}

// OnTick broadcasts a live tick and re-anchors the synthetic walk on it.
func (s *Server) OnTick(q domain.Quote) {
	s.synth.Anchor(q.Mid())
	s.hub.Broadcast(q, false)
}

// Run keeps display quotes flowing while the feed is stale. Synthetic
// quotes are flagged and only ever leave through the broadcast surface.
func (s *Server) Run(ctx context.Context) {
	if !s.allowSynthetic {
		return
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, ok := s.board.Snapshot(now); !ok {
				s.hub.Broadcast(s.synth.Next(now), true)
			}
		}
	}
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	q, ok := s.board.Snapshot(now)
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol": q.Symbol,
		"bid":    q.Bid.String(),
		"ask":    q.Ask.String(),
		"at":     q.At,
		"stale":  !ok,
	})
}

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	interval := service.BaseInterval
	if raw := r.URL.Query().Get("interval"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		interval = parsed
	}
	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	candles, err := s.candles.Aggregate(interval, limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, candles)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.Snapshot()
	writeJSON(w, http.StatusOK, struct {
		infra.MetricsSnapshot
		Subscribers int `json:"subscribers"`
	}{snap, s.hub.ClientCount()})
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req service.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.orders.PlaceOrder(req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := s.orders.CancelOrder(r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	pos, err := s.orders.ClosePosition(r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientMargin),
		errors.Is(err, domain.ErrStaleQuote),
		errors.Is(err, domain.ErrOrderNotPending),
		errors.Is(err, domain.ErrPositionNotOpen),
		errors.Is(err, domain.ErrAccountNotActive):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidOrder):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
