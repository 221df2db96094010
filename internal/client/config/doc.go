// Package config loads runtime configuration for the callsync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Environment variables, with an optional .env file (see parseEnv).
//  3. Optional JSON file selected via -c or -config (see parseJson).
//  4. Command-line flags (see parseFlags), which override everything.
//
// Supported flags
//
//	-a string   base URL of the directory API
//	-d string   path to the local cache database
//	-i int      online check interval (seconds)
//	-s int      auto-sync interval (seconds)
//
// # JSON schema
//
// Intervals use timex.Duration, so values can be strings like "3s" or
// integer nanoseconds:
//
//	{
//	  "base_url": "https://calls.trolley.systems/api",
//	  "database_path": "callsync.db",
//	  "online_check_interval": "3s",
//	  "sync_interval": "1m"
//	}
package config
