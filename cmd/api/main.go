package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plancheck-backend/internal/bootstrap"
	"plancheck-backend/internal/shared/config"
	"plancheck-backend/internal/shared/server"
	"plancheck-backend/internal/shared/telemetry"
)

const shutdownTimeout = 20 * time.Second

func main() {
	cfg := config.Load()
	if err := telemetry.Init(cfg.Env); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer telemetry.Sync()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.ReaperInAPI {
		go app.Reaper.Run(ctx, cfg.ReaperInterval)
	}

	addr := server.Addr(cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		telemetry.Info("api.listening", map[string]any{
			"addr":       addr,
			"env":        cfg.Env,
			"memory":     app.DB == nil,
			"reaper_api": cfg.ReaperInAPI,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			telemetry.Error("api.serve_failed", map[string]any{"err": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	telemetry.Info("api.shutdown", map[string]any{"timeout": shutdownTimeout.String()})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Error("api.shutdown_failed", map[string]any{"err": err.Error()})
	}
}
