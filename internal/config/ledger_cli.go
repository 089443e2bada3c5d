package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LedgerCLIConfig is the subset of the ledger CLI's config.yml read as a fallback.
type LedgerCLIConfig struct {
	JSONRPCURL  string `yaml:"json_rpc_url"`
	KeypairPath string `yaml:"keypair_path"`
	Commitment  string `yaml:"commitment"`
}

// LedgerCLIConfigPath returns ~/.config/solana/cli/config.yml.
func LedgerCLIConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "solana", "cli", "config.yml")
}

// LoadLedgerCLIConfig reads the ledger CLI config at path, or at the default
// location when path is empty.
func LoadLedgerCLIConfig(path string) (*LedgerCLIConfig, error) {
	if path == "" {
		path = LedgerCLIConfigPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c LedgerCLIConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &c, nil
}
