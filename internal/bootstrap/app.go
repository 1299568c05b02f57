package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"plancheck-backend/internal/analyses"
	"plancheck-backend/internal/credits"
	"plancheck-backend/internal/feedback"
	"plancheck-backend/internal/notify"
	"plancheck-backend/internal/projects"
	"plancheck-backend/internal/services/health"
	"plancheck-backend/internal/settings"
	"plancheck-backend/internal/shared/config"
	"plancheck-backend/internal/shared/server"
	"plancheck-backend/internal/shared/storage/db"
	"plancheck-backend/internal/shared/storage/object"
	localstore "plancheck-backend/internal/shared/storage/object/local"
	s3store "plancheck-backend/internal/shared/storage/object/s3"
	"plancheck-backend/internal/shared/telemetry"
	"plancheck-backend/internal/uploads"
	"plancheck-backend/internal/workflow"
)

// App holds shared dependencies for the API, the reaper and the admin CLI.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Bus    notify.Bus

	Credits   *credits.Service
	Projects  *projects.Service
	Settings  *settings.Service
	Workflow  *workflow.Client
	Analyses  *analyses.Service
	Reaper    *analyses.Reaper
	Feedback  *feedback.Service
	Health    *health.Service
	closeFunc []func() error
}

// Build prepares dependencies and the router for the API process.
func Build(cfg config.Config) (*App, error) {
	app, err := BuildCore(cfg, db.DefaultServerOptions())
	if err != nil {
		return nil, err
	}
	app.Router = server.NewRouter(app.routerDeps())
	return app, nil
}

// BuildCore prepares services without HTTP routing, for the reaper worker and the admin CLI.
func BuildCore(cfg config.Config, dbDefaults db.Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	app := &App{Config: cfg, Health: health.NewService()}

	sqlDB, err := buildDB(ctx, cfg, dbDefaults)
	if err != nil {
		return nil, err
	}
	app.DB = sqlDB
	if sqlDB != nil {
		app.onClose(sqlDB.Close)
		app.Health.Register("database", sqlDB.PingContext)
		if cfg.IsDevLike() {
			if err := db.RunMigrations(ctx, sqlDB); err != nil {
				app.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Store = store

	if err := app.buildBus(cfg); err != nil {
		app.Close()
		return nil, err
	}

	app.buildServices()
	return app, nil
}

// Close releases connections opened by Build.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closeFunc) - 1; i >= 0; i-- {
		if err := a.closeFunc[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closeFunc = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.closeFunc = append(a.closeFunc, fn)
}

func buildDB(ctx context.Context, cfg config.Config, defaults db.Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.memory_fallback", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(defaults)
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.memory_fallback", map[string]any{"reason": "database connect failed", "err": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, s3store.Options{
			Region:        cfg.AWSRegion,
			Bucket:        cfg.S3Bucket,
			Prefix:        cfg.S3Prefix,
			KMSKeyID:      cfg.SSEKMSKeyID,
			PublicBaseURL: cfg.PublicFilesBaseURL,
		})
	default:
		baseURL := cfg.PublicFilesBaseURL
		if baseURL == "" {
			baseURL = cfg.PublicBaseURL + "/files"
		}
		return localstore.New(cfg.LocalStoreDir, baseURL), nil
	}
}

// Events fan out across processes only through Redis; the memory bus is per process.
func (a *App) buildBus(cfg config.Config) error {
	if cfg.RedisAddr == "" {
		a.Bus = notify.NewMemoryBus()
		a.onClose(a.Bus.Close)
		return nil
	}
	rdb, err := notify.NewRedisClient(cfg.RedisAddr)
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.memory_bus_fallback", map[string]any{"err": err.Error()})
			a.Bus = notify.NewMemoryBus()
			a.onClose(a.Bus.Close)
			return nil
		}
		return err
	}
	a.Bus = notify.NewRedisBus(rdb)
	a.onClose(a.Bus.Close)
	a.Health.Register("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	return nil
}

func (a *App) buildServices() {
	cfg := a.Config

	var (
		projectRepo  projects.Repo
		settingsRepo settings.Repo
		analysisRepo analyses.Repo
		feedbackRepo feedback.Repo
	)
	if a.DB != nil {
		a.Credits = credits.NewPostgresService(credits.NewPGStore(a.DB))
		projectRepo = &projects.PGRepo{DB: a.DB}
		settingsRepo = &settings.PGRepo{DB: a.DB}
		analysisRepo = &analyses.PGRepo{DB: a.DB}
		feedbackRepo = &feedback.PGRepo{DB: a.DB}
	} else {
		a.Credits = credits.NewService()
		projectRepo = projects.NewMemoryRepo()
		settingsRepo = settings.NewMemoryRepo()
		analysisRepo = analyses.NewMemoryRepo()
		feedbackRepo = feedback.NewMemoryRepo()
	}
	a.Credits.SignupCredits = cfg.SignupCredits

	a.Projects = projects.NewService(projectRepo)
	a.Settings = settings.NewService(settingsRepo)
	a.Workflow = workflow.NewClient(cfg.WorkflowDefaultURL, cfg.PublicBaseURL, cfg.WebhookSecret, cfg.WorkflowTimeout, a.Settings)
	a.Analyses = &analyses.Service{
		Repo:       analysisRepo,
		Projects:   a.Projects,
		Credits:    a.Credits,
		Dispatcher: a.Workflow,
		Events:     a.Bus,
		Cost:       cfg.AnalysisCost,
	}
	a.Reaper = analyses.NewReaper(a.Analyses, cfg.StaleAfter, cfg.ReaperConcurrency)
	a.Feedback = feedback.NewService(feedbackRepo, a.ownsAnalysis)
}

func (a *App) ownsAnalysis(ctx context.Context, userID, analysisID string) error {
	_, err := a.Analyses.Get(ctx, userID, analysisID)
	if errors.Is(err, analyses.ErrNotFound) {
		return feedback.ErrAnalysisNotFound
	}
	return err
}

func (a *App) routerDeps() server.RouterDeps {
	cfg := a.Config
	var presigner object.Presigner
	if p, ok := a.Store.(object.Presigner); ok {
		presigner = p
	}
	deps := server.RouterDeps{
		Config:   cfg,
		Health:   a.Health,
		Credits:  a.Credits,
		Ledger:   credits.NewHandler(a.Credits, cfg.AnalysisCost),
		Projects: projects.NewHandler(a.Projects),
		Settings: settings.NewHandler(a.Settings),
		Analyses: analyses.NewHandler(a.Analyses, a.Reaper, a.Bus, cfg.WebhookSecret, cfg.CORSAllowOrigin),
		Uploads:  uploads.NewHandler(a.Store, presigner),
		Feedback: feedback.NewHandler(a.Feedback),
	}
	if local, ok := a.Store.(*localstore.Store); ok {
		deps.FilesDir = local.Dir()
	}
	return deps
}
