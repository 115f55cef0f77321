package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config carries the runtime settings for a mintgated node.
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	ChainID        uint64 `toml:"ChainID"`
	NetworkName    string `toml:"NetworkName"`
	LogLevel       string `toml:"LogLevel"`
	LogFile        string `toml:"LogFile,omitempty"`
	// RPCRateLimit caps write-method calls per source address per minute.
	RPCRateLimit int `toml:"RPCRateLimit"`
	RPCBurst     int `toml:"RPCBurst"`
	// WSBacklog bounds the event replay window kept for stream subscribers.
	WSBacklog int `toml:"WSBacklog"`

	Pauses    Pauses    `toml:"Pauses"`
	Telemetry Telemetry `toml:"Telemetry"`

	// Alloc seeds account balances the first time a data directory is
	// initialised. Keys are bech32 addresses, values base-10 amounts.
	Alloc map[string]string `toml:"Alloc,omitempty"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s contains unknown keys: %s", path, strings.Join(keys, ", "))
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8645"
	}
	if strings.TrimSpace(c.MetricsAddress) == "" {
		c.MetricsAddress = ":9464"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./mintgate-data"
	}
	if c.ChainID == 0 {
		c.ChainID = 1881
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "mintgate-local"
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	if c.RPCRateLimit == 0 {
		c.RPCRateLimit = 50
	}
	if c.RPCBurst == 0 {
		c.RPCBurst = 25
	}
	if c.WSBacklog == 0 {
		c.WSBacklog = 256
	}
	if c.Alloc == nil {
		c.Alloc = map[string]string{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
