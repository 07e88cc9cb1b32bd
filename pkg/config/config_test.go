// Copyright 2025 Certen Protocol
//
package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 25, cfg.DatabaseMaxConns)
	require.Equal(t, "unix://./data/abci.sock", cfg.ListenAddr)
	require.False(t, cfg.RouteByAssetForNonCreate)
}

func TestValidateRequiresDatabaseURLAndListenAddr(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "database_url is required")
	require.Contains(t, err.Error(), "listen_addr is required")

	cfg.DatabaseURL = "postgres://localhost/ledger"
	cfg.ListenAddr = "unix://./data/abci.sock"
	require.NoError(t, cfg.Validate())
}

func TestWriteFileThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgerd.yaml")
	original := &Config{
		DatabaseURL:              "postgres://localhost/ledger",
		DatabaseMaxConns:         10,
		KVDataDir:                "./data/kv",
		ListenAddr:               "unix://./data/abci.sock",
		MetricsAddr:              "0.0.0.0:9090",
		NodeID:                   "node-1",
		Ed25519KeyPath:           "./data/node_key.json",
		RouteByAssetForNonCreate: true,
		LogLevel:                 "debug",
	}

	require.NoError(t, WriteFile(original, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, original.DatabaseURL, loaded.DatabaseURL)
	require.Equal(t, original.DatabaseMaxConns, loaded.DatabaseMaxConns)
	require.Equal(t, original.NodeID, loaded.NodeID)
	require.Equal(t, original.RouteByAssetForNonCreate, loaded.RouteByAssetForNonCreate)
	require.Equal(t, original.LogLevel, loaded.LogLevel)
}
