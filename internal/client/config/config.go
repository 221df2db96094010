package config

import "time"

// Config holds runtime settings for the callsync client.
//
// Units: all intervals are time.Duration values.
type Config struct {
	// BaseURL is the root of the directory API, including any path prefix.
	BaseURL string
	// DatabasePath is the SQLite file backing the local mirror.
	DatabasePath string
	// RequestTimeout bounds a single HTTP request.
	RequestTimeout time.Duration
	// RequestRetries is how often a failed request is retried.
	RequestRetries int
	// OnlineCheckInterval is how often the connectivity watcher probes the server.
	OnlineCheckInterval time.Duration
	// SyncInterval is the recurring directory refresh period.
	SyncInterval time.Duration
	// Sync bounds; zero values fall back to the service defaults.
	SyncPageSize   int
	SyncMaxPages   int
	SyncMaxRecords int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BaseURL = "https://calls.trolley.systems/api"
	c.DatabasePath = "callsync.db"
	c.RequestTimeout = 30 * time.Second
	c.RequestRetries = 2
	c.OnlineCheckInterval = 3 * time.Second
	c.SyncInterval = time.Minute
	c.SyncPageSize = 100
	c.SyncMaxPages = 10
	c.SyncMaxRecords = 1000
}

// LoadConfig constructs a Config by applying defaults, then overlaying the
// environment (including an optional .env file), an optional JSON file, and
// finally command-line flags. Later sources win.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
