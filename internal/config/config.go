// Package config loads application configuration from environment
// variables. Required values are enforced with must(); tunables carry
// defaults so a minimal .env is enough to boot the service.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values. Each field corresponds
// to an environment variable. Durations accept Go duration syntax
// ("24h", "15m") via the env helpers.
type Config struct {
	Env  string // application environment (dev/test/prod)
	Port string // HTTP port to listen on

	DBUser string
	DBPass string // optional
	DBHost string
	DBPort string
	DBName string

	JWTSecret  string        // secret used to sign all token kinds
	JWTIssuer  string        // issuer claim embedded in signed tokens
	AccessTTL  time.Duration // access token lifetime
	APIKeyTTL  time.Duration // default API key lifetime
	MFATTL     time.Duration // MFA challenge token lifetime
	SessionTTL time.Duration // session lifetime (and cache mirror TTL)
	RefreshTTL time.Duration // refresh token exchange window
	ResetTTL   time.Duration // password reset token lifetime

	BcryptCost    int           // cost factor for password hashing
	SweepInterval time.Duration // period of the expired-session cleanup timer
}

// Load reads configuration values from environment variables and returns
// a Config. Missing required variables cause a fatal log message.
func Load() Config {
	return Config{
		Env:  must("APP_ENV"),
		Port: must("APP_PORT"),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		JWTSecret:  must("JWT_SECRET"),
		JWTIssuer:  envStr("JWT_ISSUER", "tenant-auth"),
		AccessTTL:  envDur("ACCESS_TOKEN_TTL", 24*time.Hour),
		APIKeyTTL:  envDur("API_KEY_TTL", 365*24*time.Hour),
		MFATTL:     envDur("MFA_CHALLENGE_TTL", 5*time.Minute),
		SessionTTL: envDur("SESSION_TTL", 7*24*time.Hour),
		RefreshTTL: envDur("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		ResetTTL:   envDur("RESET_TOKEN_TTL", time.Hour),

		BcryptCost:    envInt("BCRYPT_COST", 12),
		SweepInterval: envDur("SESSION_SWEEP_INTERVAL", time.Hour),
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
