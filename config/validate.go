package config

import (
	"fmt"
	"math/big"
	"strings"
)

// Validate checks the runtime bounds of the configuration before the node
// boots with it.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress must not be empty")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if cfg.FeePercent > 100 {
		return fmt.Errorf("config: FeePercent out of range: %d", cfg.FeePercent)
	}
	if _, err := cfg.ParsedCreationFee(); err != nil {
		return err
	}
	return nil
}

// ParsedCreationFee parses the configured creation fee into a big integer.
func (c *Config) ParsedCreationFee() (*big.Int, error) {
	raw := strings.TrimSpace(c.CreationFee)
	if raw == "" {
		return big.NewInt(0), nil
	}
	fee, ok := new(big.Int).SetString(raw, 10)
	if !ok || fee.Sign() < 0 {
		return nil, fmt.Errorf("config: invalid CreationFee %q", c.CreationFee)
	}
	return fee, nil
}
