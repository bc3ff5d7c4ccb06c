package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"launchpad/crypto"
)

type Config struct {
	RPCAddress        string `toml:"RPCAddress"`
	DataDir           string `toml:"DataDir"`
	NetworkName       string `toml:"NetworkName"`
	OwnerKeystorePath string `toml:"OwnerKeystorePath"`
	// CreationFee is the flat fee charged per sale deployment, in base
	// currency units. Stored as a decimal string so large amounts survive
	// TOML round-trips.
	CreationFee string `toml:"CreationFee"`
	// FeePercent is the creator profit-share percentage stamped into newly
	// deployed sales.
	FeePercent uint32 `toml:"FeePercent"`
	Pauses     Pauses `toml:"Pauses"`
}

// Pauses holds the boot-time pause switches per module.
type Pauses struct {
	Sale      bool `toml:"Sale"`
	Launchpad bool `toml:"Launchpad"`
}

// Load loads the configuration from the given path, creating a default config
// file (including a fresh owner keystore) when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "launchpad-local"
	}
	if strings.TrimSpace(cfg.CreationFee) == "" {
		cfg.CreationFee = "0"
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OwnerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OwnerKeystorePath != keystorePath {
		cfg.OwnerKeystorePath = keystorePath
		return persist(configPath, cfg)
	}

	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCAddress:  ":8080",
		DataDir:     "./launchpad-data",
		NetworkName: "launchpad-local",
		CreationFee: "0",
		FeePercent:  0,
	}
	cfg.OwnerKeystorePath = keystorePath

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

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "owner.keystore")
}

// String renders the path-independent parts of the configuration for logs.
func (c *Config) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("rpc=%s data=%s network=%s fee=%s percent=%d", c.RPCAddress, c.DataDir, c.NetworkName, c.CreationFee, c.FeePercent)
}
