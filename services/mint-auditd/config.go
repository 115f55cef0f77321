package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures runtime configuration for the mint-audit indexer.
type Config struct {
	ListenAddress string `yaml:"listen"`
	Environment   string `yaml:"environment"`
	LogLevel      string `yaml:"logLevel"`
	LogFile       string `yaml:"logFile"`

	// NodeWSURL is the node's event-stream endpoint, e.g.
	// ws://127.0.0.1:8645/ws/events.
	NodeWSURL string `yaml:"nodeWsUrl"`

	// DatabaseDSN selects the index backend: a postgres:// URL opens
	// Postgres, anything else is treated as a SQLite file path.
	DatabaseDSN string `yaml:"databaseDsn"`

	// CheckpointPath is the bbolt file holding the stream cursor and the
	// content-hash dedupe ledger.
	CheckpointPath string `yaml:"checkpointPath"`

	ExportDir      string        `yaml:"exportDir"`
	ExportInterval time.Duration `yaml:"exportInterval"`
	// ExportWindow is the lookback each export run covers.
	ExportWindow time.Duration `yaml:"exportWindow"`

	ReconnectMin time.Duration `yaml:"reconnectMin"`
	ReconnectMax time.Duration `yaml:"reconnectMax"`
}

// LoadConfig reads the YAML file at path (optional) and applies environment
// overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ListenAddress:  ":8084",
		LogLevel:       "info",
		NodeWSURL:      "ws://127.0.0.1:8645/ws/events",
		DatabaseDSN:    "mint-audit.db",
		CheckpointPath: "mint-audit-checkpoint.db",
		ExportDir:      "mint-audit-exports",
		ExportInterval: 24 * time.Hour,
		ExportWindow:   24 * time.Hour,
		ReconnectMin:   time.Second,
		ReconnectMax:   time.Minute,
	}
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("MINT_AUDITD_LISTEN")); v != "" {
		cfg.ListenAddress = v
	}
	if v := strings.TrimSpace(os.Getenv("MINT_AUDITD_NODE_WS")); v != "" {
		cfg.NodeWSURL = v
	}
	if v := strings.TrimSpace(os.Getenv("MINT_AUDITD_DATABASE_DSN")); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("MINT_AUDITD_CHECKPOINT")); v != "" {
		cfg.CheckpointPath = v
	}
	if v := strings.TrimSpace(os.Getenv("MINT_AUDITD_EXPORT_DIR")); v != "" {
		cfg.ExportDir = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values the indexer cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.NodeWSURL) == "" {
		return errors.New("nodeWsUrl must not be empty")
	}
	if !strings.HasPrefix(c.NodeWSURL, "ws://") && !strings.HasPrefix(c.NodeWSURL, "wss://") {
		return fmt.Errorf("nodeWsUrl %q must use ws:// or wss://", c.NodeWSURL)
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return errors.New("databaseDsn must not be empty")
	}
	if strings.TrimSpace(c.CheckpointPath) == "" {
		return errors.New("checkpointPath must not be empty")
	}
	if c.ExportInterval <= 0 {
		return errors.New("exportInterval must be positive")
	}
	if c.ExportWindow <= 0 {
		return errors.New("exportWindow must be positive")
	}
	if c.ReconnectMin <= 0 || c.ReconnectMax < c.ReconnectMin {
		return errors.New("reconnect backoff window is inverted")
	}
	return nil
}
