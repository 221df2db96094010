package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names recognized by the client.
const (
	EnvBaseURL             = "CALLSYNC_BASE_URL"
	EnvDatabasePath        = "CALLSYNC_DATABASE_PATH"
	EnvOnlineCheckInterval = "CALLSYNC_ONLINE_CHECK_INTERVAL"
	EnvSyncInterval        = "CALLSYNC_SYNC_INTERVAL"
)

// parseEnv overlays Config with values from the process environment. A .env
// file in the working directory is loaded first when present; variables
// already set in the environment keep precedence over the file.
func parseEnv(cfg *Config) {
	_ = godotenv.Load()

	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv(EnvOnlineCheckInterval); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.OnlineCheckInterval = d
		}
	}
	if v := os.Getenv(EnvSyncInterval); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SyncInterval = d
		}
	}
}
