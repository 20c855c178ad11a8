// Package config loads the CLI's configuration: storage and logging
// settings, plus a recorded fee policy, dust threshold, default sighash
// type, and Bitcoin network. internal/graph itself never reads a file; only
// cmd/pbuild loads a Config (spec §6), and it reads only the storage and
// logging settings from it.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"gopkg.in/yaml.v3"
)

// Network names a Bitcoin network; Params maps it to its chaincfg
// parameters.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
	NetworkRegtest Network = "regtest"
)

// Params returns the chaincfg.Params for the configured network.
func (n Network) Params() *chaincfg.Params {
	switch n {
	case NetworkTestnet:
		return &chaincfg.TestNet3Params
	case NetworkRegtest:
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// Config holds the settings the protocol builder CLI needs before it can
// build or sign anything.
type Config struct {
	// Network records the Bitcoin network. The CLI does not read it.
	Network Network `yaml:"network"`

	// Fees records an AUTO_AMOUNT fee estimation policy (see FeeConfig).
	Fees FeeConfig `yaml:"fees"`

	// DustThreshold records a minimum satoshi value for an explicit
	// (non-sentinel) output. The CLI does not check plan outputs against
	// it.
	DustThreshold int64 `yaml:"dust_threshold"`

	// DefaultSighashType records a default sighash type. The plan decoder
	// does not read it: an input with no sighash_type gets
	// txscript.SigHashDefault.
	DefaultSighashType SighashType `yaml:"default_sighash_type"`

	// Storage holds the persistence settings (see internal/storage).
	Storage StorageConfig `yaml:"storage"`

	// Logging holds the ambient logger settings.
	Logging LoggingConfig `yaml:"logging"`
}

// FeeConfig records an AUTO_AMOUNT fee estimation policy (spec §4.2). The
// amount resolver in internal/graph does not read it; it uses its own fixed
// 1 sat/vB rate and 5% safety buffer.
type FeeConfig struct {
	// FeeRateSatPerVByte is a flat fee rate in sat/vB.
	FeeRateSatPerVByte int64 `yaml:"fee_rate_sat_per_vbyte"`

	// SafetyBufferPercent pads the estimated fee by this percentage,
	// rounded up.
	SafetyBufferPercent int64 `yaml:"safety_buffer_percent"`
}

// SighashType is the YAML-friendly name of a txscript.SigHashType.
type SighashType string

const (
	SighashDefault        SighashType = "default"
	SighashAll            SighashType = "all"
	SighashNone           SighashType = "none"
	SighashSingle         SighashType = "single"
	SighashAllAnyoneCanPay SighashType = "all_anyonecanpay"
)

// TxscriptType converts s to the txscript.SigHashType it names.
func (s SighashType) TxscriptType() (txscript.SigHashType, error) {
	switch s {
	case "", SighashDefault:
		return txscript.SigHashDefault, nil
	case SighashAll:
		return txscript.SigHashAll, nil
	case SighashNone:
		return txscript.SigHashNone, nil
	case SighashSingle:
		return txscript.SigHashSingle, nil
	case SighashAllAnyoneCanPay:
		return txscript.SigHashAll | txscript.SigHashAnyOneCanPay, nil
	default:
		return 0, fmt.Errorf("config: unknown sighash type %q", s)
	}
}

// StorageConfig holds settings for internal/storage.
type StorageConfig struct {
	// DataDir is the directory holding saved protocol snapshots.
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds settings for pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns a Config with sensible defaults, matching the values
// spec.md §4.2 uses in its worked examples.
func Default() *Config {
	return &Config{
		Network: NetworkMainnet,
		Fees: FeeConfig{
			FeeRateSatPerVByte: 1,
			SafetyBufferPercent: 5,
		},
		DustThreshold:      546,
		DefaultSighashType: SighashDefault,
		Storage: StorageConfig{
			DataDir: "~/.pbuild",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// FileName is the default config file name within a data directory.
const FileName = "config.yaml"

// EnvVar is the environment variable the CLI reads to locate the data
// directory (spec §6).
const EnvVar = "BITVMX_ENV"

// Load reads configuration from dataDir/config.yaml. If the file doesn't
// exist, it writes one populated with defaults and returns that.
func Load(dataDir string) (*Config, error) {
	expanded := expandPath(dataDir)
	path := filepath.Join(expanded, FileName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		cfg.Storage.DataDir = dataDir
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("config: create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes c to path as YAML, creating its parent directory as needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("config: create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal config: %w", err)
	}

	header := []byte("# protocol-builder configuration\n# generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write config file: %w", err)
	}
	return nil
}

// PathFromEnv resolves the data directory whose config.yaml the CLI loads,
// reading BITVMX_ENV and falling back to "~/.pbuild" when unset (spec §6).
func PathFromEnv() string {
	if dir := os.Getenv(EnvVar); dir != "" {
		return dir
	}
	return "~/.pbuild"
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
