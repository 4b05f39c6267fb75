// Command bridge reads a JSON-lines signal file, converts the signals into
// risk-checked orders and either renders them to the audit log (dry run,
// the default) or submits them to a running gateway.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"riskgate/internal/app"
	"riskgate/internal/bridge"
	"riskgate/internal/domain"
	"riskgate/internal/gateway"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	signalPath := flag.String("signals", "", "path to JSON-lines signal file")
	gatewayURL := flag.String("gateway", "", "gateway URL (ws://host:port/ws); empty means dry run")
	limit := flag.Int("limit", 0, "stop after this many accepted orders (0 = unbounded)")
	flag.Parse()

	if *signalPath == "" {
		fmt.Fprintln(os.Stderr, "usage: bridge -signals <file.jsonl> [-gateway ws://...]")
		os.Exit(2)
	}

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	signals, err := readSignals(*signalPath)
	if err != nil {
		slog.Error("Failed to read signals", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("Signals loaded", slog.Int("count", len(signals)))

	cfg := bootstrap.Config
	b := bridge.New(bridge.Config{
		TakeProfitPct: cfg.Risk.TakeProfitPct,
		StopLossPct:   cfg.Risk.StopLossPct,
		MagicTag:      20240601,
	}, bootstrap.Risk, bootstrap.Authorizer)

	orders := b.ConvertBatch(signals, *limit)
	slog.Info("Signals converted", slog.Int("orders", len(orders)), slog.Int("skipped", len(signals)-len(orders)))

	var sink bridge.Sink = bridge.AuditSink{}
	if *gatewayURL != "" {
		client, err := gateway.DialClient(ctx, *gatewayURL, 10*time.Second)
		if err != nil {
			slog.Error("Failed to dial gateway", slog.Any("error", err))
			os.Exit(1)
		}
		defer client.Close()
		sink = bridge.NewGatewaySink(client)
		slog.Info("Live execution via gateway", slog.String("url", *gatewayURL))
	} else {
		slog.Info("Dry run: orders go to the audit log only")
	}

	if err := b.Execute(ctx, orders, sink); err != nil {
		slog.Error("Execution failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("👋 Done", slog.Int("orders", len(orders)))
}

// readSignals parses one JSON signal per line, skipping blanks.
func readSignals(path string) ([]domain.Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var signals []domain.Signal
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var sig domain.Signal
		if err := json.Unmarshal(raw, &sig); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		signals = append(signals, sig)
	}
	return signals, scanner.Err()
}
