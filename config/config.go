// Package config loads the fusiond runtime configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for fusiond.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	Environment   string          `yaml:"env"`
	DataDir       string          `yaml:"data_dir"`
	JournalPath   string          `yaml:"journal"`
	Vault         string          `yaml:"vault"`
	Treasury      string          `yaml:"treasury"`
	Shutdown      Duration        `yaml:"shutdown_grace"`
	Escrow        EscrowConfig    `yaml:"escrow"`
	Swap          SwapConfig      `yaml:"swap"`
	Solver        SolverConfig    `yaml:"solver"`
	Oracle        OracleConfig    `yaml:"oracle"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
}

// EscrowConfig tunes the HTLC escrow engine.
type EscrowConfig struct {
	FeeRateBps  uint32   `yaml:"fee_rate_bps"`
	MinTimelock Duration `yaml:"min_timelock"`
	MaxTimelock Duration `yaml:"max_timelock"`
	Tokens      []string `yaml:"tokens"`
}

// SwapConfig configures the cross-ledger swap tracker.
type SwapConfig struct {
	Operators []string `yaml:"operators"`
}

// SolverConfig tunes the solver registry.
type SolverConfig struct {
	// MinStake is the stake a registration must declare, in base units.
	MinStake int64 `yaml:"min_stake"`
}

// OracleConfig seeds the static price source.
type OracleConfig struct {
	SpreadBps uint32 `yaml:"spread_bps"`
	Rates     []Rate `yaml:"rates"`
}

// Rate fixes one pair's price, scaled by 1e6 output units per input unit.
type Rate struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Rate int64  `yaml:"rate"`
}

// TelemetryConfig wires the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	Metrics  bool   `yaml:"metrics"`
	Traces   bool   `yaml:"traces"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Default returns the configuration fusiond runs with when no file is given.
func Default() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.Environment == "" {
		cfg.Environment = "dev"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.JournalPath == "" {
		cfg.JournalPath = "fusiond.sqlite"
	}
	if cfg.Vault == "" {
		cfg.Vault = "fusion.vault"
	}
	if cfg.Treasury == "" {
		cfg.Treasury = "fusion.treasury"
	}
	if cfg.Shutdown.Duration == 0 {
		cfg.Shutdown.Duration = 10 * time.Second
	}
	if cfg.Escrow.FeeRateBps == 0 {
		cfg.Escrow.FeeRateBps = 30
	}
	if cfg.Escrow.MinTimelock.Duration == 0 {
		cfg.Escrow.MinTimelock.Duration = time.Hour
	}
	if cfg.Escrow.MaxTimelock.Duration == 0 {
		cfg.Escrow.MaxTimelock.Duration = 24 * time.Hour
	}
	if len(cfg.Escrow.Tokens) == 0 {
		cfg.Escrow.Tokens = []string{"USDC", "WNEAR"}
	}
}

func validate(cfg Config) error {
	if cfg.Escrow.FeeRateBps > 1000 {
		return fmt.Errorf("escrow fee rate %d bps exceeds 10%% cap", cfg.Escrow.FeeRateBps)
	}
	if cfg.Escrow.MinTimelock.Duration <= 0 || cfg.Escrow.MinTimelock.Duration >= cfg.Escrow.MaxTimelock.Duration {
		return fmt.Errorf("escrow timelock window [%s, %s] is invalid", cfg.Escrow.MinTimelock.Duration, cfg.Escrow.MaxTimelock.Duration)
	}
	if cfg.Vault == cfg.Treasury {
		return fmt.Errorf("vault and treasury accounts must differ")
	}
	if cfg.Solver.MinStake < 0 {
		return fmt.Errorf("solver min stake must not be negative")
	}
	for _, rate := range cfg.Oracle.Rates {
		if rate.From == "" || rate.To == "" || rate.Rate <= 0 {
			return fmt.Errorf("oracle rate %s/%s must name both tokens and a positive rate", rate.From, rate.To)
		}
	}
	return nil
}
