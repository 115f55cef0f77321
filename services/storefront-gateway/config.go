package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mintgate/gateway/middleware"
)

// APIKeyConfig is one storefront tenant credential. Requests on the mint plane
// must be HMAC-signed with the secret.
type APIKeyConfig struct {
	Key    string `yaml:"key" json:"key"`
	Secret string `yaml:"secret" json:"secret"`
}

// AdminAuthConfig describes the JWT verification applied to the admin plane.
type AdminAuthConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Secret    string        `yaml:"secret"`
	Issuer    string        `yaml:"issuer"`
	Audience  string        `yaml:"audience"`
	ClockSkew time.Duration `yaml:"clockSkew"`
}

// RateLimitConfig configures the bucket for one route group.
type RateLimitConfig struct {
	Group         string         `yaml:"group"`
	RatePerSecond float64        `yaml:"ratePerSecond"`
	Burst         int            `yaml:"burst"`
	DefaultCost   int            `yaml:"defaultCost"`
	Costs         map[string]int `yaml:"costs"`
}

// CORSConfig lists the origins browsers may call the storefront from.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
	AllowedMethods []string `yaml:"allowedMethods"`
	AllowedHeaders []string `yaml:"allowedHeaders"`
}

// Config captures runtime configuration for the storefront gateway.
type Config struct {
	ListenAddress  string        `yaml:"listen"`
	Environment    string        `yaml:"environment"`
	LogLevel       string        `yaml:"logLevel"`
	LogFile        string        `yaml:"logFile"`
	NodeURL        string        `yaml:"nodeUrl"`
	NodeAuthToken  string        `yaml:"nodeAuthToken"`
	DatabasePath   string        `yaml:"databasePath"`
	NonceStorePath string        `yaml:"nonceStorePath"`
	TimestampSkew  time.Duration `yaml:"timestampSkew"`
	NonceTTL       time.Duration `yaml:"nonceTTL"`
	NonceCapacity  int           `yaml:"nonceCapacity"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	IdleTimeout    time.Duration `yaml:"idleTimeout"`

	APIKeys    []APIKeyConfig    `yaml:"apiKeys"`
	Admin      AdminAuthConfig   `yaml:"admin"`
	RateLimits []RateLimitConfig `yaml:"rateLimits"`
	CORS       CORSConfig        `yaml:"cors"`
}

// LoadConfig reads the YAML file at path (optional) and applies environment
// overrides. Secrets are usually supplied through the environment so config
// files can be committed.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ListenAddress: ":8082",
		LogLevel:      "info",
		DatabasePath:  "storefront-gateway.db",
		TimestampSkew: 2 * time.Minute,
		NonceTTL:      4 * time.Minute,
		NonceCapacity: 1024,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   120 * time.Second,
		Admin: AdminAuthConfig{
			Enabled:   true,
			Issuer:    "mintgate-ops",
			Audience:  "storefront",
			ClockSkew: 2 * time.Minute,
		},
	}
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		file, err := os.Open(trimmed)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("MINTGATE_STOREFRONT_LISTEN")); v != "" {
		cfg.ListenAddress = v
	}
	if v := strings.TrimSpace(os.Getenv("MINTGATE_STOREFRONT_NODE_URL")); v != "" {
		cfg.NodeURL = v
	}
	if v := strings.TrimSpace(os.Getenv("MINTGATE_STOREFRONT_NODE_TOKEN")); v != "" {
		cfg.NodeAuthToken = v
	}
	if v := strings.TrimSpace(os.Getenv("MINTGATE_STOREFRONT_DB_PATH")); v != "" {
		cfg.DatabasePath = v
	}
	if v := strings.TrimSpace(os.Getenv("MINTGATE_STOREFRONT_ADMIN_SECRET")); v != "" {
		cfg.Admin.Secret = v
	}
	// API keys may arrive as a JSON array so deployments can keep secrets out
	// of the config file: [{"key":"storefront","secret":"..."}].
	if v := strings.TrimSpace(os.Getenv("MINTGATE_STOREFRONT_API_KEYS")); v != "" {
		var entries []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &entries); err == nil {
			cfg.APIKeys = entries
		}
	}
}

// Validate rejects configurations the gateway cannot safely run with.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.NodeURL) == "" {
		return errors.New("nodeUrl is required")
	}
	if len(cfg.APIKeys) == 0 {
		return errors.New("at least one API key is required")
	}
	for i, entry := range cfg.APIKeys {
		if strings.TrimSpace(entry.Key) == "" || strings.TrimSpace(entry.Secret) == "" {
			return fmt.Errorf("apiKeys[%d] must include key and secret", i)
		}
	}
	if cfg.Admin.Enabled && strings.TrimSpace(cfg.Admin.Secret) == "" {
		return errors.New("admin.secret is required while the admin plane is enabled")
	}
	if cfg.TimestampSkew <= 0 {
		cfg.TimestampSkew = 2 * time.Minute
	}
	if cfg.NonceTTL < cfg.TimestampSkew {
		cfg.NonceTTL = 2 * cfg.TimestampSkew
	}
	return nil
}

// Secrets returns the API key map consumed by the HMAC authenticator.
func (cfg *Config) Secrets() map[string]string {
	out := make(map[string]string, len(cfg.APIKeys))
	for _, entry := range cfg.APIKeys {
		out[strings.TrimSpace(entry.Key)] = strings.TrimSpace(entry.Secret)
	}
	return out
}

// RateLimitGroups converts the configured limits into middleware form. Groups
// without configuration run unthrottled.
func (cfg *Config) RateLimitGroups() map[string]middleware.RateLimit {
	out := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for _, entry := range cfg.RateLimits {
		group := strings.TrimSpace(entry.Group)
		if group == "" {
			continue
		}
		out[group] = middleware.RateLimit{
			RatePerSecond: entry.RatePerSecond,
			Burst:         entry.Burst,
			DefaultCost:   entry.DefaultCost,
			Costs:         entry.Costs,
		}
	}
	return out
}
