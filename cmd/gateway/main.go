package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"riskgate/internal/app"
	"riskgate/internal/gateway"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	reconcile := flag.Bool("reconcile", true, "reconcile exposures against venue positions on startup")
	flag.Parse()

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := bootstrap.Config

	// 3. Connect venue and reconcile persisted exposures against it
	if err := bootstrap.Venue.Connect(ctx); err != nil {
		slog.Warn("Initial venue connect failed; will retry per request", slog.Any("error", err))
	} else if *reconcile {
		if err := bootstrap.Risk.Reconcile(ctx, bootstrap.Venue); err != nil {
			slog.Warn("Startup reconciliation failed", slog.Any("error", err))
		}
	}
	defer bootstrap.Venue.Close()

	// 4. Dispatcher + Server
	dispatcher := gateway.NewDispatcher(gateway.DispatcherConfig{
		RequestTimeout:      time.Duration(cfg.Gateway.RequestTimeoutMS) * time.Millisecond,
		ReconnectMaxRetries: cfg.Gateway.ReconnectMaxRetries,
	}, bootstrap.Venue, bootstrap.Authorizer, bootstrap.Metrics, bootstrap.Journal)

	server := gateway.NewServer(cfg.BindAddr(), dispatcher, bootstrap.Metrics)

	slog.InfoContext(ctx, "✨ Gateway operational. Press Ctrl+C to exit.",
		slog.String("addr", cfg.BindAddr()))

	if err := server.Run(ctx); err != nil {
		slog.Error("Gateway server failed", slog.Any("error", err))
	}

	// 5. Print cumulative statistics on the way out
	snap := bootstrap.Metrics.Snapshot()
	slog.Info("👋 Shutting down gracefully",
		slog.Uint64("requests_served", snap.RequestsServed),
		slog.Uint64("orders_filled", snap.OrdersFilled),
		slog.Uint64("orders_rejected", snap.OrdersRejected),
		slog.Uint64("errors", snap.ErrorsTotal),
		slog.Uint64("reconnects", snap.Reconnects),
		slog.Int64("avg_latency_ns", snap.AvgLatencyNs))
}
