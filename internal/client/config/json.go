package config

import (
	"encoding/json"
	"os"

	"github.com/trolleysystems/callsync/internal/flagx"
	"github.com/trolleysystems/callsync/internal/timex"
)

// JsonConfig is the DTO for JSON unmarshalling. Intervals use timex.Duration
// so the file can specify either strings like "3s" or integer nanoseconds.
// Only non-zero fields are copied onto the runtime Config.
type JsonConfig struct {
	BaseURL             string         `json:"base_url"`
	DatabasePath        string         `json:"database_path"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	RequestRetries      *int           `json:"request_retries"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	SyncInterval        timex.Duration `json:"sync_interval"`
	SyncPageSize        int            `json:"sync_page_size"`
	SyncMaxPages        int            `json:"sync_max_pages"`
	SyncMaxRecords      int            `json:"sync_max_records"`
}

// parseJson overlays Config with values from the JSON file named by the
// -c/-config flags. No flag, no file, nothing happens. Read or unmarshal
// errors panic; configuration is resolved once at startup and a broken file
// should stop the process.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.BaseURL != "" {
		cfg.BaseURL = jc.BaseURL
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.RequestRetries != nil {
		cfg.RequestRetries = *jc.RequestRetries
	}
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.SyncInterval.Duration > 0 {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.SyncPageSize > 0 {
		cfg.SyncPageSize = jc.SyncPageSize
	}
	if jc.SyncMaxPages > 0 {
		cfg.SyncMaxPages = jc.SyncMaxPages
	}
	if jc.SyncMaxRecords > 0 {
		cfg.SyncMaxRecords = jc.SyncMaxRecords
	}
}
