package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all docflow server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	Port     int    `json:"port"`
	DBPath   string `json:"db_path"`
	LogLevel string `json:"log_level"`

	// Collaborator endpoints. A client is only wired when its base URL
	// is configured.
	DocumentsURL string `json:"documents_url"`
	EditionsURL  string `json:"editions_url"`
	TransferURL  string `json:"transfer_url"`
	APIToken     string `json:"api_token"`

	// SchedulerSpec is a cron spec for the automatic integration poll.
	SchedulerSpec string `json:"scheduler_spec"`
}

func defaultConfig() Config {
	return Config{
		Port:          4200,
		DBPath:        filepath.Join(docflowDir(), "docflow.db"),
		LogLevel:      "info",
		SchedulerSpec: "@every 1m",
	}
}

func docflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docflow"
	}
	return filepath.Join(home, ".docflow")
}

func settingsPath() string {
	return filepath.Join(docflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("DOCFLOW_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("DOCFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("DOCFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DOCFLOW_DOCUMENTS_URL"); v != "" {
		cfg.DocumentsURL = v
	}
	if v := os.Getenv("DOCFLOW_EDITIONS_URL"); v != "" {
		cfg.EditionsURL = v
	}
	if v := os.Getenv("DOCFLOW_TRANSFER_URL"); v != "" {
		cfg.TransferURL = v
	}
	if v := os.Getenv("DOCFLOW_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	if v := os.Getenv("DOCFLOW_SCHEDULER_SPEC"); v != "" {
		cfg.SchedulerSpec = v
	}

	return cfg
}
