package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/probkit/beliefnet/internal/api"
	"github.com/probkit/beliefnet/internal/bn"
	"github.com/probkit/beliefnet/internal/config"
	"github.com/probkit/beliefnet/internal/engine"
	"github.com/probkit/beliefnet/internal/history"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	cfgPath := flag.String("config", "configs/network.yaml", "Path to network YAML config")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	// ── Build initial network ─────────────────────────────────────────────────
	net, err := bn.Build(&cfg.Network)
	if err != nil {
		slog.Error("failed to build network", "err", err)
		os.Exit(1)
	}
	slog.Info("network built",
		"variables", net.NumVariables(),
		"order", net.TopologicalOrder(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Query history store ───────────────────────────────────────────────────
	var hist *history.Store
	if cfg.Engine.HistoryPath != "" {
		hist, err = history.Open(ctx, cfg.Engine.HistoryPath)
		if err != nil {
			slog.Error("failed to open query history", "path", cfg.Engine.HistoryPath, "err", err)
			os.Exit(1)
		}
		defer hist.Close()
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	svc := engine.New(ctx, net, hist, cfg.Engine)

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		if err := config.Validate(newCfg); err != nil {
			slog.Warn("hot-reload skipped: config invalid", "err", err)
			return
		}
		newNet, err := bn.Build(&newCfg.Network)
		if err != nil {
			slog.Warn("hot-reload skipped: network build failed", "err", err)
			return
		}
		svc.Swap(newNet)
		slog.Info("network hot-reloaded", "variables", newNet.NumVariables())
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.New(svc, loader)
	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	cancel() // stop worker pool
	svc.Shutdown()
	slog.Info("goodbye")
}
