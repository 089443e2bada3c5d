// Package config loads verifybuild settings from an optional YAML file, .env
// files, environment variables and the ledger CLI's own configuration.
//
// Precedence, highest first: command-line flags (applied by the caller),
// environment, config file, ledger CLI config, defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default values.
const (
	DefaultRemoteURL       = "https://verify.osec.io"
	DefaultPollInterval    = "10s"
	DefaultVerifyProgramID = "EngB3ANqXh8nDFhzZYJkCfpCHWCHkTrJTCWKEuSFCh7B"
	DefaultUploader        = "9VWiUUhgNoRwTH5NVehYJEDwcotwYX3VgW4MChiHPAqU"
	HistoryOff             = "off"
)

// Environment variables read by Load.
const (
	EnvRPCURL      = "VERIFYBUILD_RPC_URL"
	EnvKeypair     = "VERIFYBUILD_KEYPAIR"
	EnvRemoteURL   = "VERIFYBUILD_REMOTE_URL"
	EnvHistory     = "VERIFYBUILD_HISTORY"
	EnvMemoryLimit = "SVB_DOCKER_MEMORY_LIMIT"
	EnvCPULimit    = "SVB_DOCKER_CPU_LIMIT"
)

// Config represents the application configuration.
type Config struct {
	RPCURL     string           `yaml:"rpc_url,omitempty"`
	Keypair    string           `yaml:"keypair,omitempty"`
	Remote     RemoteConfig     `yaml:"remote"`
	Docker     DockerConfig     `yaml:"docker"`
	Provenance ProvenanceConfig `yaml:"provenance"`
	// History is the path of the local history database, or "off".
	History string `yaml:"history,omitempty"`
}

// RemoteConfig configures the remote build farm.
type RemoteConfig struct {
	URL          string `yaml:"url,omitempty"`
	PollInterval string `yaml:"poll_interval,omitempty"`
}

// DockerConfig configures local sandboxed builds.
type DockerConfig struct {
	MemoryLimit string `yaml:"memory_limit,omitempty"`
	CPULimit    string `yaml:"cpu_limit,omitempty"`
	// Images points at an extra image table merged over the built-in one.
	Images string `yaml:"images,omitempty"`
}

// ProvenanceConfig configures on-chain provenance records.
type ProvenanceConfig struct {
	ProgramID       string      `yaml:"program_id,omitempty"`
	DefaultUploader string      `yaml:"default_uploader,omitempty"`
	PriorityFee     uint64      `yaml:"priority_fee,omitempty"`
	Confirm         RetryConfig `yaml:"confirm"`
}

// DefaultPath returns ~/.config/verifybuild/config.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "verifybuild", "config.yaml")
}

// DefaultHistoryPath returns the default location of the history database.
func DefaultHistoryPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "verifybuild", "history.db")
	}
	return filepath.Join(dir, "verifybuild", "history.db")
}

// Load builds the effective configuration. A missing file at path is only an
// error when required is set, i.e. when the user named it explicitly.
func Load(path string, required bool) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.RPCURL == "" || cfg.Keypair == "" {
		if cli, err := LoadLedgerCLIConfig(""); err == nil {
			if cfg.RPCURL == "" {
				cfg.RPCURL = cli.JSONRPCURL
			}
			if cfg.Keypair == "" {
				cfg.Keypair = cli.KeypairPath
			}
		}
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.RPCURL, EnvRPCURL)
	set(&cfg.Keypair, EnvKeypair)
	set(&cfg.Remote.URL, EnvRemoteURL)
	set(&cfg.History, EnvHistory)
	set(&cfg.Docker.MemoryLimit, EnvMemoryLimit)
	set(&cfg.Docker.CPULimit, EnvCPULimit)
}

func applyDefaults(cfg *Config) {
	if cfg.RPCURL == "" {
		cfg.RPCURL = MainnetURL
	}
	cfg.RPCURL = ResolveRPCURL(cfg.RPCURL)
	if cfg.Keypair == "" {
		cfg.Keypair = "~/.config/solana/id.json"
	}
	if cfg.Remote.URL == "" {
		cfg.Remote.URL = DefaultRemoteURL
	}
	cfg.Remote.URL = strings.TrimRight(cfg.Remote.URL, "/")
	if cfg.Remote.PollInterval == "" {
		cfg.Remote.PollInterval = DefaultPollInterval
	}
	if cfg.Provenance.ProgramID == "" {
		cfg.Provenance.ProgramID = DefaultVerifyProgramID
	}
	if cfg.Provenance.DefaultUploader == "" {
		cfg.Provenance.DefaultUploader = DefaultUploader
	}
	if cfg.History == "" {
		cfg.History = DefaultHistoryPath()
	}
}

// Validate checks fields that would otherwise fail late.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{"rpc_url": c.RPCURL, "remote.url": c.Remote.URL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s: %q is not an absolute URL", name, raw)
		}
	}
	if d, err := ParseDuration(c.Remote.PollInterval); err != nil {
		return fmt.Errorf("remote.poll_interval: %w", err)
	} else if d == 0 {
		return fmt.Errorf("remote.poll_interval must be positive")
	}
	if b := c.Provenance.Confirm.Backoff; b != "" && NormalizeRetryBackoff(string(b)) == "" {
		return fmt.Errorf("provenance.confirm.backoff: unknown mode %q", b)
	}
	return nil
}

// HistoryEnabled reports whether verdicts are recorded locally.
func (c *Config) HistoryEnabled() bool {
	return !strings.EqualFold(strings.TrimSpace(c.History), HistoryOff)
}
