package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mintgate/crypto"
)

var (
	testAllocAddrBytes = func() [20]byte {
		var addr [20]byte
		addr[0] = 0x42
		addr[len(addr)-1] = 0x24
		return addr
	}()
	testAllocAddrString = crypto.MustNewAddress(crypto.MintPrefix, testAllocAddrBytes[:]).String()
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config file to be written: %v", err)
	}
	if cfg.RPCAddress != ":8645" {
		t.Fatalf("unexpected default RPC address: %s", cfg.RPCAddress)
	}
	if cfg.ChainID != 1881 {
		t.Fatalf("unexpected default chain id: %d", cfg.ChainID)
	}
	if cfg.NetworkName != "mintgate-local" {
		t.Fatalf("unexpected default network name: %s", cfg.NetworkName)
	}
	if cfg.RPCRateLimit != 50 || cfg.RPCBurst != 25 {
		t.Fatalf("unexpected default rate limits: %d/%d", cfg.RPCRateLimit, cfg.RPCBurst)
	}
	if cfg.WSBacklog != 256 {
		t.Fatalf("unexpected default backlog: %d", cfg.WSBacklog)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if reloaded.RPCAddress != cfg.RPCAddress || reloaded.ChainID != cfg.ChainID {
		t.Fatalf("reloaded config diverged: %+v vs %+v", reloaded, cfg)
	}
	if reloaded.DataDir != cfg.DataDir || reloaded.NetworkName != cfg.NetworkName {
		t.Fatalf("reloaded config diverged: %+v vs %+v", reloaded, cfg)
	}
}

func TestLoadParsesSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := fmt.Sprintf(`RPCAddress = "0.0.0.0:9000"
MetricsAddress = ":9100"
DataDir = "./data"
ChainID = 777
NetworkName = "testnet"
LogLevel = "debug"
LogFile = "./node.log"
RPCRateLimit = 10
RPCBurst = 5
WSBacklog = 32

[Pauses]
Drop = true
Token = false

[Telemetry]
OTLPEndpoint = "collector:4318"
OTLPInsecure = true
OTLPHeaders = "authorization=Bearer abc"

[Alloc]
"%s" = "1000000000000000000"
`, testAllocAddrString)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RPCAddress != "0.0.0.0:9000" || cfg.MetricsAddress != ":9100" {
		t.Fatalf("unexpected addresses: %+v", cfg)
	}
	if cfg.ChainID != 777 {
		t.Fatalf("unexpected chain id: %d", cfg.ChainID)
	}
	if cfg.LogLevel != "debug" || cfg.LogFile != "./node.log" {
		t.Fatalf("unexpected logging settings: %+v", cfg)
	}
	if cfg.RPCRateLimit != 10 || cfg.RPCBurst != 5 || cfg.WSBacklog != 32 {
		t.Fatalf("unexpected limits: %+v", cfg)
	}
	if !cfg.Pauses.Drop || cfg.Pauses.Token {
		t.Fatalf("unexpected pauses: %+v", cfg.Pauses)
	}
	if cfg.Telemetry.OTLPEndpoint != "collector:4318" || !cfg.Telemetry.OTLPInsecure {
		t.Fatalf("unexpected telemetry: %+v", cfg.Telemetry)
	}
	if cfg.Telemetry.OTLPHeaders != "authorization=Bearer abc" {
		t.Fatalf("unexpected telemetry headers: %q", cfg.Telemetry.OTLPHeaders)
	}
	if len(cfg.Alloc) != 1 {
		t.Fatalf("unexpected alloc: %+v", cfg.Alloc)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `RPCAddress = ":8645"
ValidatorKey = "deprecated"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unknown keys") {
		t.Fatalf("expected unknown key rejection, got %v", err)
	}
}

func TestLoadFillsDefaultsForSparseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("NetworkName = \"devnet\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.NetworkName != "devnet" {
		t.Fatalf("unexpected network name: %s", cfg.NetworkName)
	}
	if cfg.RPCAddress != ":8645" || cfg.DataDir != "./mintgate-data" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.ChainID != 1881 || cfg.WSBacklog != 256 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.applyDefaults()
		return cfg
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty rpc address", func(c *Config) { c.RPCAddress = " " }, "RPCAddress"},
		{"zero chain id", func(c *Config) { c.ChainID = 0 }, "ChainID"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "LogLevel"},
		{"zero rate limit", func(c *Config) { c.RPCRateLimit = 0 }, "RPCRateLimit"},
		{"negative burst", func(c *Config) { c.RPCBurst = -1 }, "RPCBurst"},
		{"zero backlog", func(c *Config) { c.WSBacklog = 0 }, "WSBacklog"},
		{"bad alloc address", func(c *Config) { c.Alloc = map[string]string{"nope": "1"} }, "Alloc address"},
		{"bad alloc amount", func(c *Config) { c.Alloc = map[string]string{testAllocAddrString: "1.5"} }, "Alloc amount"},
		{"negative alloc amount", func(c *Config) { c.Alloc = map[string]string{testAllocAddrString: "-4"} }, "Alloc amount"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestGenesisAllocParsesAmounts(t *testing.T) {
	cfg := &Config{Alloc: map[string]string{
		testAllocAddrString: "1000000000000000000",
	}}

	alloc, err := cfg.GenesisAlloc()
	if err != nil {
		t.Fatalf("genesis alloc: %v", err)
	}
	amount, ok := alloc[testAllocAddrBytes]
	if !ok {
		t.Fatalf("expected alloc entry for %s", testAllocAddrString)
	}
	want, _ := new(big.Int).SetString("1000000000000000000", 10)
	if amount.Cmp(want) != 0 {
		t.Fatalf("unexpected amount: %s", amount)
	}

	cfg.Alloc[testAllocAddrString] = "  "
	alloc, err = cfg.GenesisAlloc()
	if err != nil {
		t.Fatalf("genesis alloc with blank amount: %v", err)
	}
	if alloc[testAllocAddrBytes].Sign() != 0 {
		t.Fatalf("blank amount should parse to zero, got %s", alloc[testAllocAddrBytes])
	}
}

func TestPausesModules(t *testing.T) {
	pauses := Pauses{Drop: true}
	modules := pauses.Modules()
	if !modules["drop"] {
		t.Fatalf("expected drop pause to be set: %+v", modules)
	}
	if modules["token"] {
		t.Fatalf("expected token pause to be clear: %+v", modules)
	}
}
