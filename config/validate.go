package config

import (
	"fmt"
	"strings"
)

var validLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Validate checks the configuration for values the node cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("RPCAddress must not be empty")
	}
	if c.ChainID == 0 {
		return fmt.Errorf("ChainID must not be zero")
	}
	if level := strings.ToLower(strings.TrimSpace(c.LogLevel)); level != "" {
		if _, ok := validLogLevels[level]; !ok {
			return fmt.Errorf("LogLevel %q is not one of debug, info, warn, error", c.LogLevel)
		}
	}
	if c.RPCRateLimit <= 0 {
		return fmt.Errorf("RPCRateLimit must be positive")
	}
	if c.RPCBurst <= 0 {
		return fmt.Errorf("RPCBurst must be positive")
	}
	if c.WSBacklog <= 0 {
		return fmt.Errorf("WSBacklog must be positive")
	}
	if _, err := c.GenesisAlloc(); err != nil {
		return err
	}
	return nil
}
