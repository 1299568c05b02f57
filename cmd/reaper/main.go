package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plancheck-backend/internal/analyses"
	"plancheck-backend/internal/bootstrap"
	"plancheck-backend/internal/shared/config"
	"plancheck-backend/internal/shared/storage/db"
	"plancheck-backend/internal/shared/telemetry"
)

type sweeper interface {
	Sweep(ctx context.Context, userID string) (analyses.SweepResult, error)
	Run(ctx context.Context, interval time.Duration)
}

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg := config.Load()
	if err := telemetry.Init(cfg.Env); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer telemetry.Sync()

	app, err := bootstrap.BuildCore(cfg, db.DefaultWorkerOptions())
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()
	if app.DB == nil {
		// an in-memory store here would never see the API's analyses
		log.Fatal("reaper requires DATABASE_URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, app.Reaper, cfg.ReaperInterval, *once); err != nil {
		log.Fatalf("sweep: %v", err)
	}
}

func run(ctx context.Context, s sweeper, interval time.Duration, once bool) error {
	if once {
		res, err := s.Sweep(ctx, "")
		if err != nil {
			return err
		}
		telemetry.Info("reaper.once", map[string]any{
			"found":   res.TotalFound,
			"cleaned": res.Cleaned,
			"errors":  len(res.Errors),
		})
		return nil
	}
	telemetry.Info("reaper.started", map[string]any{"interval": interval.String()})
	s.Run(ctx, interval)
	telemetry.Info("reaper.stopped", nil)
	return nil
}
