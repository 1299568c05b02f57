package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"plancheck-backend/internal/analyses"
	"plancheck-backend/internal/credits"
	"plancheck-backend/internal/feedback"
	"plancheck-backend/internal/projects"
	"plancheck-backend/internal/services/health"
	"plancheck-backend/internal/settings"
	"plancheck-backend/internal/shared/config"
	"plancheck-backend/internal/shared/metrics"
	"plancheck-backend/internal/shared/server/middleware"
	"plancheck-backend/internal/shared/server/respond"
	"plancheck-backend/internal/uploads"
)

const (
	rateGroupDefault = "DEFAULT"
	rateGroupPolling = "POLLING"
	analysisPollPath = "/api/v1/analyses/:id"
)

// RouterDeps carries the handlers built by bootstrap.
type RouterDeps struct {
	Config   config.Config
	Health   *health.Service
	Credits  *credits.Service
	Ledger   *credits.Handler
	Projects *projects.Handler
	Settings *settings.Handler
	Analyses *analyses.Handler
	Uploads  *uploads.Handler
	Feedback *feedback.Handler
	// FilesDir is served under /files when plans live on local disk.
	FilesDir string
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())
	if deps.FilesDir != "" {
		r.Static("/files", deps.FilesDir)
	}

	public := r.Group("/api/v1")
	public.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			respond.JSON(c, http.StatusOK, gin.H{"ok": true})
			return
		}
		report := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	})
	if deps.Analyses != nil {
		deps.Analyses.RegisterPublicRoutes(public)
	}

	api := r.Group("/api/v1",
		middleware.Auth(cfg.Env),
		middleware.RateLimit(rateLimitConfig()),
	)
	registerMeRoutes(api, deps.Credits)
	if deps.Ledger != nil {
		deps.Ledger.RegisterRoutes(api)
	}
	if deps.Projects != nil {
		deps.Projects.RegisterRoutes(api)
	}
	if deps.Settings != nil {
		deps.Settings.RegisterRoutes(api)
	}
	if deps.Analyses != nil {
		deps.Analyses.RegisterRoutes(api)
	}
	if deps.Uploads != nil {
		deps.Uploads.RegisterRoutes(api)
	}
	if deps.Feedback != nil {
		deps.Feedback.RegisterRoutes(api)
	}
	if cfg.IsDevLike() && deps.Ledger != nil {
		dev := api.Group("/dev")
		deps.Ledger.RegisterDevRoutes(dev)
	}

	return r
}

// Status polling gets its own, larger bucket so a watching client cannot starve mutations.
func rateLimitConfig() middleware.RateLimitConfig {
	return middleware.RateLimitConfig{
		DefaultGroup: rateGroupDefault,
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodGet && c.FullPath() == analysisPollPath {
				return rateGroupPolling
			}
			return rateGroupDefault
		},
		Rules: map[string]middleware.RateLimitRule{
			rateGroupDefault: {Rate: 5, Burst: 30},
			rateGroupPolling: {Rate: 2, Burst: 60},
		},
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
