// Copyright 2025 Certen Protocol
//
// Package config defines the node's configuration record and loads it from
// environment variables and an optional config file via viper, following
// the flat-struct-plus-env-override shape the rest of this codebase's
// ecosystem uses for its own CLIs.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting the ledgerd CLI needs across its subcommands.
type Config struct {
	// Database
	DatabaseURL         string
	DatabaseMaxConns    int
	DatabaseMaxIdleTime time.Duration
	DatabaseMaxLifetime time.Duration

	// Directory for a local KV store. Written by configure and printed by
	// show-config; start does not open a store here.
	KVDataDir string

	// ABI / ABCI socket server
	ListenAddr string

	// Metrics
	MetricsAddr string

	// Node identity
	NodeID         string
	Ed25519KeyPath string

	// Parallel validator
	HarvestTimeout           time.Duration
	RouteByAssetForNonCreate bool

	LogLevel string
}

const envPrefix = "LEDGERD"

func defaults(v *viper.Viper) {
	v.SetDefault("database_url", "")
	v.SetDefault("database_max_conns", 25)
	v.SetDefault("database_max_idle_time", "5m")
	v.SetDefault("database_max_lifetime", "1h")
	v.SetDefault("kv_data_dir", "./data/kv")
	v.SetDefault("listen_addr", "unix://./data/abci.sock")
	v.SetDefault("metrics_addr", "0.0.0.0:9090")
	v.SetDefault("node_id", "")
	v.SetDefault("ed25519_key_path", "./data/node_key.json")
	v.SetDefault("harvest_timeout", "30s")
	v.SetDefault("route_by_asset_for_non_create", false)
	v.SetDefault("log_level", "info")
}

// Load reads configFile (if non-empty) plus LEDGERD_-prefixed environment
// variables into a Config, environment taking precedence over file values.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		DatabaseURL:              v.GetString("database_url"),
		DatabaseMaxConns:         v.GetInt("database_max_conns"),
		DatabaseMaxIdleTime:      v.GetDuration("database_max_idle_time"),
		DatabaseMaxLifetime:      v.GetDuration("database_max_lifetime"),
		KVDataDir:                v.GetString("kv_data_dir"),
		ListenAddr:               v.GetString("listen_addr"),
		MetricsAddr:              v.GetString("metrics_addr"),
		NodeID:                   v.GetString("node_id"),
		Ed25519KeyPath:           v.GetString("ed25519_key_path"),
		HarvestTimeout:           v.GetDuration("harvest_timeout"),
		RouteByAssetForNonCreate: v.GetBool("route_by_asset_for_non_create"),
		LogLevel:                 v.GetString("log_level"),
	}
	return cfg, nil
}

// Validate checks that the settings required to run "start" are present.
func (c *Config) Validate() error {
	var problems []string
	if c.DatabaseURL == "" {
		problems = append(problems, "database_url is required")
	}
	if c.ListenAddr == "" {
		problems = append(problems, "listen_addr is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// WriteFile persists cfg as a YAML config file, for the configure command.
func WriteFile(cfg *Config, path string) error {
	v := viper.New()
	v.Set("database_url", cfg.DatabaseURL)
	v.Set("database_max_conns", cfg.DatabaseMaxConns)
	v.Set("database_max_idle_time", cfg.DatabaseMaxIdleTime.String())
	v.Set("database_max_lifetime", cfg.DatabaseMaxLifetime.String())
	v.Set("kv_data_dir", cfg.KVDataDir)
	v.Set("listen_addr", cfg.ListenAddr)
	v.Set("metrics_addr", cfg.MetricsAddr)
	v.Set("node_id", cfg.NodeID)
	v.Set("ed25519_key_path", cfg.Ed25519KeyPath)
	v.Set("harvest_timeout", cfg.HarvestTimeout.String())
	v.Set("route_by_asset_for_non_create", cfg.RouteByAssetForNonCreate)
	v.Set("log_level", cfg.LogLevel)
	return v.WriteConfigAs(path)
}
