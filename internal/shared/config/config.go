package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAnalysisCost    = 25
	defaultStaleAfter      = 5 * time.Minute
	defaultWorkflowTimeout = 30 * time.Second
)

// Config holds application configuration.
type Config struct {
	Port               string
	Env                string
	DatabaseURL        string
	CORSAllowOrigin    []string
	PublicBaseURL      string
	WorkflowDefaultURL string
	WorkflowTimeout    time.Duration
	WebhookSecret      string
	AnalysisCost       int
	SignupCredits      int
	StaleAfter         time.Duration
	ReaperInterval     time.Duration
	ReaperConcurrency  int
	ReaperInAPI        bool
	RedisAddr          string
	ObjectStoreType    string
	LocalStoreDir      string
	PublicFilesBaseURL string
	AWSRegion          string
	S3Bucket           string
	S3Prefix           string
	SSEKMSKeyID        string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}
	if env == "production" && strings.TrimSpace(os.Getenv("WEBHOOK_SECRET")) == "" {
		log.Printf("WEBHOOK_SECRET is empty; completion callbacks are unauthenticated")
	}

	port := getEnv("PORT", "8080")
	return Config{
		Port:               port,
		Env:                env,
		DatabaseURL:        dbURL,
		CORSAllowOrigin:    splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000")),
		PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+strings.TrimPrefix(port, ":")), "/"),
		WorkflowDefaultURL: strings.TrimSpace(getEnv("WORKFLOW_DEFAULT_URL", "")),
		WorkflowTimeout:    getDuration("WORKFLOW_TIMEOUT", defaultWorkflowTimeout),
		WebhookSecret:      strings.TrimSpace(getEnv("WEBHOOK_SECRET", "")),
		AnalysisCost:       getInt("ANALYSIS_COST", defaultAnalysisCost),
		SignupCredits:      getInt("SIGNUP_CREDITS", 0),
		StaleAfter:         getDuration("STALE_AFTER", defaultStaleAfter),
		ReaperInterval:     getDuration("REAPER_INTERVAL", time.Minute),
		ReaperConcurrency:  getInt("REAPER_CONCURRENCY", 4),
		ReaperInAPI:        getBool("REAPER_IN_API", env == "dev" || env == "local"),
		RedisAddr:          strings.TrimSpace(getEnv("REDIS_ADDR", "")),
		ObjectStoreType:    normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:      getEnv("LOCAL_STORE_DIR", "./data"),
		PublicFilesBaseURL: strings.TrimRight(getEnv("PUBLIC_FILES_BASE_URL", ""), "/"),
		AWSRegion:          getEnv("AWS_REGION", ""),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		S3Prefix:           getEnv("S3_PREFIX", "plans/"),
		SSEKMSKeyID:        getEnv("SSE_KMS_KEY_ID", ""),
	}
}

// IsDevLike reports whether env allows in-memory fallbacks and guest identities.
func (c Config) IsDevLike() bool {
	return c.Env == "dev" || c.Env == "local"
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		log.Printf("config %s invalid int %q, using %d", key, raw, def)
		return def
	}
	return val
}

func getBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config %s invalid bool %q, using %t", key, raw, def)
		return def
	}
	return val
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	// bare integers are seconds
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	log.Printf("config %s invalid duration %q, using %s", key, raw, def)
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
