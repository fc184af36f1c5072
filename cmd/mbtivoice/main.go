package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ent0n29/mbtivoice/internal/app"
	"github.com/ent0n29/mbtivoice/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg))

	built, err := app.Build(context.Background(), cfg)
	if err != nil {
		slog.Error("build failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			slog.Warn("cleanup failed", "error", err)
		}
	}()

	p := built.Providers
	slog.Info("providers",
		"baidu", p.Baidu,
		"volcano", p.Volcano,
		"token_cache", p.TokenCache,
		"artifact_mirror", p.Mirror,
		"archive", p.Archive,
	)
	if !p.Baidu {
		slog.Warn("baidu credentials missing; recognition and Chinese speech are disabled")
	}
	if !p.Volcano {
		slog.Warn("volcano credentials missing; non-Chinese speech is disabled")
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	built.Sessions.StartJanitor(runCtx, 5*time.Second)
	built.Artifacts.StartSweeper(runCtx, cfg.ArtifactSweepInterval)

	go func() {
		slog.Info("server listening", "addr", cfg.BindAddr, "artifact_dir", built.Artifacts.Dir())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listen error", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}

	slog.Info("shutdown complete")
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
