package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fxengine/internal/app"
	"fxengine/internal/infra/feed"
	"fxengine/internal/service"
	"fxengine/internal/stream"
	"fxengine/pkg/fixed"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// Pprof server, localhost only.
	go func() {
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("pprof server failed", slog.Any("error", err))
		}
	}()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := bootstrap.Config
	metrics := bootstrap.Metrics
	store := bootstrap.Store

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	symbol := cfg.Feed.Symbol
	board := service.NewQuoteBoard(symbol)

	// Engine components, all sharing the one store handle.
	matcher := service.NewMatcher(store, metrics)
	exits := service.NewExitMonitor(store, metrics)
	candles := service.NewCandleAggregator(store, metrics, symbol)
	orders := service.NewOrderService(store, board, metrics, symbol)
	losscut := service.NewLosscutMonitor(store, board, metrics,
		time.Duration(cfg.Engine.LosscutIntervalSec)*time.Second)
	swaps := service.NewSwapScheduler(store, metrics,
		time.Duration(cfg.Engine.SwapTickSec)*time.Second)

	settings, err := store.Settings()
	if err != nil {
		slog.Error("failed to load settings", slog.Any("error", err))
		os.Exit(1)
	}

	// Broadcast surface.
	hub := stream.NewHub(metrics)
	synth := feed.NewSynthetic(symbol, fixed.Price(150*fixed.PriceScale),
		settings.SpreadMarkup, time.Now().UnixNano())
	server := stream.NewServer(hub, board, candles, orders, synth, metrics, cfg.Engine.AllowSynthetic)

	// Tick fan-out. Each consumer drains independently and never blocks the
	// feed writer.
	board.Subscribe(ctx, "matcher", matcher.OnTick)
	board.Subscribe(ctx, "exit-monitor", exits.OnTick)
	board.Subscribe(ctx, "candles", candles.OnTick)
	board.Subscribe(ctx, "broadcast", server.OnTick)

	// Feed session: the quote board's only writer.
	client := feed.NewClient(feed.ClientConfig{
		Addr:         cfg.Feed.Addr,
		Symbol:       symbol,
		SenderCompID: cfg.Feed.SenderCompID,
		TargetCompID: cfg.Feed.TargetCompID,
		Account:      cfg.Feed.Account,
		Password:     cfg.Feed.Password,
		Heartbeat:    time.Duration(cfg.Feed.HeartbeatSec) * time.Second,
		Reconnect:    time.Duration(cfg.Feed.ReconnectSec) * time.Second,
	}, metrics, func(bid, ask fixed.Price, hasBid, hasAsk bool, at time.Time) {
		metrics.RecordTick()
		board.Set(bid, ask, hasBid, hasAsk, at)
	})
	if err := client.Connect(ctx); err != nil {
		slog.Error("failed to start feed client", slog.Any("error", err))
		os.Exit(1)
	}
	defer client.Disconnect()
	slog.Info("feed client started", slog.String("addr", cfg.Feed.Addr))

	go losscut.Run(ctx)
	go swaps.Run(ctx)
	go candles.Run(ctx)
	go server.Run(ctx)

	httpServer := &http.Server{Addr: cfg.Server.Addr, Handler: server.Routes()}
	go func() {
		slog.Info("http server listening", slog.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", slog.Any("error", err))
		}
	}()

	slog.Info("engine operational", slog.String("symbol", symbol))
	<-ctx.Done()

	slog.Info("shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown failed", slog.Any("error", err))
	}
}
