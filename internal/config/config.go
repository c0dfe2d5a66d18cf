// Package config provides configuration management for popeye. Settings load
// from .popeye/config.yaml with POPEYE_-prefixed environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/randalmurphal/popeye/internal/consensus"
	"github.com/randalmurphal/popeye/internal/pipeline"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
	// EnvPrefix prefixes environment variable overrides.
	EnvPrefix = "POPEYE"
)

// ConsensusConfig tunes the consensus rules.
type ConsensusConfig struct {
	Threshold    float64 `yaml:"threshold" mapstructure:"threshold"`
	Quorum       int     `yaml:"quorum" mapstructure:"quorum"`
	MinReviewers int     `yaml:"min_reviewers" mapstructure:"min_reviewers"`
}

// ChecksConfig tunes check execution.
type ChecksConfig struct {
	TimeoutMS      int `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	StartTimeoutMS int `yaml:"start_timeout_ms" mapstructure:"start_timeout_ms"`
}

// RecoveryConfig bounds the recovery loop.
type RecoveryConfig struct {
	MaxIterations int `yaml:"max_iterations" mapstructure:"max_iterations"`
}

// Config is the popeye configuration.
type Config struct {
	Reviewers  []consensus.Reviewer  `yaml:"reviewers" mapstructure:"reviewers"`
	Arbitrator *consensus.Arbitrator `yaml:"arbitrator,omitempty" mapstructure:"arbitrator"`

	Consensus ConsensusConfig `yaml:"consensus" mapstructure:"consensus"`
	Checks    ChecksConfig    `yaml:"checks" mapstructure:"checks"`
	Recovery  RecoveryConfig  `yaml:"recovery" mapstructure:"recovery"`

	// Commands override resolved commands verbatim, keyed by check type.
	Commands map[string]string `yaml:"commands,omitempty" mapstructure:"commands"`

	// SessionGuidance is prepended to the master plan input at intake.
	SessionGuidance string `yaml:"session_guidance,omitempty" mapstructure:"session_guidance"`

	// ActiveRoles limits role planning to a subset; empty means all roles.
	ActiveRoles []string `yaml:"active_roles,omitempty" mapstructure:"active_roles"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Consensus: ConsensusConfig{
			Threshold:    0.95,
			Quorum:       2,
			MinReviewers: 2,
		},
		Checks: ChecksConfig{
			TimeoutMS:      120_000,
			StartTimeoutMS: 10_000,
		},
		Recovery: RecoveryConfig{
			MaxIterations: pipeline.DefaultMaxRecoveryIterations,
		},
	}
}

// Load reads the project configuration, merged over defaults. A missing
// config file is not an error.
func Load(projectDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(filepath.Join(projectDir, pipeline.StateDir, ConfigFileName))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	cfg := Default()
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Rules converts the consensus section into runner rules.
func (c *Config) Rules() consensus.Rules {
	return consensus.Rules{
		Threshold:    c.Consensus.Threshold,
		Quorum:       c.Consensus.Quorum,
		MinReviewers: c.Consensus.MinReviewers,
	}
}

// Roles returns the configured active roles, defaulting to every role.
func (c *Config) Roles() []pipeline.Role {
	if len(c.ActiveRoles) == 0 {
		return pipeline.AllRoles()
	}
	var roles []pipeline.Role
	for _, name := range c.ActiveRoles {
		roles = append(roles, pipeline.Role(name))
	}
	return roles
}

// validate rejects nonsensical settings.
func (c *Config) validate() error {
	if c.Consensus.Threshold < 0 || c.Consensus.Threshold > 1 {
		return fmt.Errorf("consensus threshold must be in [0,1], got %v", c.Consensus.Threshold)
	}
	if c.Recovery.MaxIterations <= 0 {
		return fmt.Errorf("recovery max_iterations must be positive, got %d", c.Recovery.MaxIterations)
	}
	for _, role := range c.ActiveRoles {
		if !pipeline.Role(role).Valid() {
			return fmt.Errorf("unknown role %q in active_roles", role)
		}
	}
	return nil
}
