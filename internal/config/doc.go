// Package config handles loading the sovdtui configuration file.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/sovdtui/config.toml (default)
//  3. If the config file doesn't exist, fall back to hardcoded defaults
//  4. If the file exists but fields are missing/empty, use defaults
//
// # Default Values
//
//   - Gateway: localhost:8080
//   - API base path: /api/v1
//   - Fault poll interval: 5 seconds
//   - Debug log: disabled
//
// # TOML Format
//
// Example config.toml:
//
//	server_url = "192.168.1.5:8080"
//	base_path = "/api/v1"
//	poll_interval_seconds = 5
//	debug_log = "~/.local/share/sovdtui/debug.log"
//
// Command-line flags override file values; the last successfully connected
// server URL (persisted by the prefs package) overrides the config default.
package config
