package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("PORT", "9000")
	t.Setenv("ANALYSIS_COST", "")
	t.Setenv("STALE_AFTER", "")
	t.Setenv("OBJECT_STORE", "")
	t.Setenv("REAPER_IN_API", "")

	cfg := Load()
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, 25, cfg.AnalysisCost)
	assert.Equal(t, 5*time.Minute, cfg.StaleAfter)
	assert.Equal(t, "local", cfg.ObjectStoreType)
	assert.Equal(t, "http://localhost:9000", cfg.PublicBaseURL)
	assert.True(t, cfg.ReaperInAPI)
	assert.True(t, cfg.IsDevLike())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("ANALYSIS_COST", "10")
	t.Setenv("STALE_AFTER", "90")
	t.Setenv("WORKFLOW_TIMEOUT", "2m")
	t.Setenv("OBJECT_STORE", "S3")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("PUBLIC_BASE_URL", "https://api.example/")

	cfg := Load()
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, 10, cfg.AnalysisCost)
	assert.Equal(t, 90*time.Second, cfg.StaleAfter)
	assert.Equal(t, 2*time.Minute, cfg.WorkflowTimeout)
	assert.Equal(t, "s3", cfg.ObjectStoreType)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowOrigin)
	assert.Equal(t, "https://api.example", cfg.PublicBaseURL)
	assert.False(t, cfg.ReaperInAPI)
	assert.False(t, cfg.IsDevLike())
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("ANALYSIS_COST", "-3")
	t.Setenv("STALE_AFTER", "soon")
	t.Setenv("REAPER_IN_API", "maybe")
	t.Setenv("ENV", "local")

	cfg := Load()
	assert.Equal(t, defaultAnalysisCost, cfg.AnalysisCost)
	assert.Equal(t, defaultStaleAfter, cfg.StaleAfter)
	assert.True(t, cfg.ReaperInAPI)
}
