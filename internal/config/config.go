// Package config loads the server's environment-driven configuration, in
// the teacher's plain os.LookupEnv style (no flags/viper layer).
package config

import (
	"os"
	"time"
)

type Config struct {
	Port   string
	DBPath string

	SecretsPath       string
	SecretsPassphrase string

	// APIKey gates the administrative endpoints (generate/revoke/renew,
	// the admin feed). Empty disables the check — local dev only.
	APIKey string

	// JWTSecret verifies the replay-protection nonce the client manager
	// signs onto online validate requests (SPEC_FULL.md domain stack).
	JWTSecret string

	// Domain gates the admin WebSocket feed's allowed Origin.
	Domain string

	RedisURL string
	CacheTTL time.Duration

	ReclaimInterval time.Duration
	ReclaimTimeout  time.Duration
	HeartbeatTTL    time.Duration
}

func Load() *Config {
	return &Config{
		Port:              getEnv("LICENSED_PORT", "8080"),
		DBPath:            getEnv("LICENSED_DB_PATH", "./data/licensecore.db"),
		SecretsPath:       getEnv("LICENSED_SECRETS_PATH", "./data/secrets.json"),
		SecretsPassphrase: getEnv("LICENSED_SECRETS_PASSPHRASE", ""),
		APIKey:            getEnv("LICENSED_API_KEY", ""),
		JWTSecret:          getEnv("LICENSED_JWT_SECRET", ""),
		Domain:            getEnv("LICENSED_DOMAIN", "localhost"),
		RedisURL:          getEnv("LICENSED_REDIS_URL", ""),
		CacheTTL:          getDuration("LICENSED_CACHE_TTL", 30*time.Second),
		ReclaimInterval:   getDuration("LICENSED_RECLAIM_INTERVAL", 5*time.Minute),
		ReclaimTimeout:    getDuration("LICENSED_RECLAIM_TIMEOUT", 10*time.Minute),
		HeartbeatTTL:      getDuration("LICENSED_HEARTBEAT_TTL", 5*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
