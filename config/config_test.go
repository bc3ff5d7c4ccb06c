package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8080" {
		t.Fatalf("rpc address = %q", cfg.RPCAddress)
	}
	if cfg.NetworkName != "launchpad-local" {
		t.Fatalf("network = %q", cfg.NetworkName)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if _, err := os.Stat(cfg.OwnerKeystorePath); err != nil {
		t.Fatalf("keystore not bootstrapped: %v", err)
	}
}

func TestLoadExistingConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `RPCAddress = ":9090"
DataDir = "./data"
NetworkName = "launchpad-test"
CreationFee = "2500"
FeePercent = 30
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":9090" {
		t.Fatalf("rpc address = %q", cfg.RPCAddress)
	}
	fee, err := cfg.ParsedCreationFee()
	if err != nil {
		t.Fatalf("parse fee: %v", err)
	}
	if fee.Cmp(big.NewInt(2500)) != 0 {
		t.Fatalf("fee = %s, want 2500", fee)
	}
	if cfg.FeePercent != 30 {
		t.Fatalf("fee percent = %d, want 30", cfg.FeePercent)
	}
	// Loading bootstraps a keystore next to the config and records its path.
	if cfg.OwnerKeystorePath == "" {
		t.Fatal("keystore path not recorded")
	}
	if _, err := os.Stat(cfg.OwnerKeystorePath); err != nil {
		t.Fatalf("keystore not created: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"empty rpc address", Config{DataDir: "./data", CreationFee: "0"}},
		{"empty data dir", Config{RPCAddress: ":8080", CreationFee: "0"}},
		{"percent above 100", Config{RPCAddress: ":8080", DataDir: "./data", CreationFee: "0", FeePercent: 101}},
		{"malformed fee", Config{RPCAddress: ":8080", DataDir: "./data", CreationFee: "12x"}},
		{"negative fee", Config{RPCAddress: ":8080", DataDir: "./data", CreationFee: "-5"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := Validate(&tc.cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
