// Copyright 2025 Certen Protocol
//
package ledgerd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/bftledger/node/pkg/config"
)

func newConfigureCommand() *cobra.Command {
	var (
		databaseURL string
		listenAddr  string
		metricsAddr string
		nodeID      string
		keyPath     string
		out         string
	)

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Write a config file from flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &config.Config{
				DatabaseURL:         databaseURL,
				DatabaseMaxConns:    25,
				DatabaseMaxIdleTime: 5 * time.Minute,
				DatabaseMaxLifetime: time.Hour,
				KVDataDir:           "./data/kv",
				ListenAddr:          listenAddr,
				MetricsAddr:         metricsAddr,
				NodeID:              nodeID,
				Ed25519KeyPath:      keyPath,
				HarvestTimeout:      30 * time.Second,
				LogLevel:            "info",
			}
			return config.WriteFile(cfg, out)
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string")
	cmd.Flags().StringVar(&listenAddr, "listen-addr", "unix://./data/abci.sock", "ABCI socket listen address")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "0.0.0.0:9090", "metrics HTTP listen address")
	cmd.Flags().StringVar(&nodeID, "node-id", "", "this node's identifier")
	cmd.Flags().StringVar(&keyPath, "ed25519-key-path", "./data/node_key.json", "path to the node's Ed25519 key file")
	cmd.Flags().StringVar(&out, "out", "./ledgerd.yaml", "config file path to write")
	return cmd
}
