// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string // auth-service

	// Redis & Postgres (both optional; memory fallbacks in dev)
	RedisURL         string
	DatabaseURL      string
	DBMaxConns       int32
	DBConnectTimeout time.Duration // bounds the startup ping of Postgres and Redis

	// Session tokens minted by the local identity authority
	SessionSecret string
	SessionIssuer string
	SessionTTL    time.Duration
	CookieName    string

	// Optional hosted identity provider; tokens are then verified via JWKS
	JWKSURL       string
	IdentityClaim string // JMESPath into verified claims
	EmailClaim    string

	// Route authorization
	RoutesFile         string
	ScreenPolicyFile   string
	PendingStaffPolicy string // allow | deny

	ProfileFetchTimeout time.Duration
	ProfileCacheTTL     time.Duration

	StaticDir        string
	MetricsEnabled   bool
	DebugDoubleWrite bool
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:                 env("DEALERGATE_ENV", "dev"),
		HTTPAddr:            env("DEALERGATE_HTTP_ADDR", ":8080"),
		RedisURL:            env("REDIS_URL", ""),
		DatabaseURL:         env("DATABASE_URL", ""),
		DBMaxConns:          int32(envInt("DB_MAX_CONNS", 0)),
		DBConnectTimeout:    envDur("DB_CONNECT_TIMEOUT_MS", 5000) * time.Millisecond,
		SessionSecret:       env("SESSION_SECRET", ""),
		SessionIssuer:       env("SESSION_ISSUER", "dealergate"),
		SessionTTL:          envDur("SESSION_TTL_SEC", 12*3600) * time.Second,
		CookieName:          env("SESSION_COOKIE", "dealergate_session"),
		JWKSURL:             env("JWKS_URL", ""),
		IdentityClaim:       env("IDENTITY_CLAIM", "sub"),
		EmailClaim:          env("EMAIL_CLAIM", "email"),
		RoutesFile:          env("ROUTES_FILE", ""),
		ScreenPolicyFile:    env("SCREEN_POLICY_FILE", ""),
		PendingStaffPolicy:  strings.ToLower(env("PENDING_STAFF_POLICY", "allow")),
		ProfileFetchTimeout: envDur("PROFILE_FETCH_TIMEOUT_MS", 5000) * time.Millisecond,
		ProfileCacheTTL:     envDur("PROFILE_CACHE_TTL_SEC", 60) * time.Second,
		StaticDir:           env("STATIC_DIR", ""),
		MetricsEnabled:      envBool("METRICS_ENABLED", true),
		DebugDoubleWrite:    envBool("DEBUG_DOUBLE_WRITE", false),
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set — using in-memory profile store and accounts for dev")
	}
	if cfg.SessionSecret == "" && cfg.Env == "dev" {
		cfg.SessionSecret = "dev-only-session-secret"
	}
	return cfg
}

// Prod reports whether the process runs with production settings.
func (c Config) Prod() bool { return c.Env == "prod" }

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return def
		}
		return i
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return time.Duration(def)
		}
		return time.Duration(i)
	}
	return time.Duration(def)
}
