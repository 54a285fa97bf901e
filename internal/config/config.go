package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Config captures the gateway connection settings sovdtui reads from its
// config file.
type Config struct {
	ServerURL           string
	BasePath            string
	PollIntervalSeconds int
	DebugLog            string
}

const (
	defaultConfigPath   = "~/.config/sovdtui/config.toml"
	defaultServerURL    = "localhost:8080"
	defaultBasePath     = "/api/v1"
	defaultPollInterval = 5
)

// Load locates and parses the config file, falling back to defaults when
// it is missing or fields are empty.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ServerURL:           defaultServerURL,
		BasePath:            defaultBasePath,
		PollIntervalSeconds: defaultPollInterval,
	}

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		ServerURL    string `toml:"server_url"`
		BasePath     string `toml:"base_path"`
		PollInterval int    `toml:"poll_interval_seconds"`
		DebugLog     string `toml:"debug_log"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if url := strings.TrimSpace(raw.ServerURL); url != "" {
		cfg.ServerURL = url
	}
	if base := strings.TrimSpace(raw.BasePath); base != "" {
		cfg.BasePath = base
	}
	if raw.PollInterval > 0 {
		cfg.PollIntervalSeconds = raw.PollInterval
	}
	if log := strings.TrimSpace(raw.DebugLog); log != "" {
		cfg.DebugLog = mustExpand(log)
	}

	return cfg, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
