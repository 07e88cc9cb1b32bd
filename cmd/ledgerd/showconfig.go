// Copyright 2025 Certen Protocol
//
package ledgerd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bftledger/node/pkg/config"
)

func newShowConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show-config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			fmt.Printf("database_url:            %s\n", redact(cfg.DatabaseURL))
			fmt.Printf("database_max_conns:       %d\n", cfg.DatabaseMaxConns)
			fmt.Printf("kv_data_dir:              %s\n", cfg.KVDataDir)
			fmt.Printf("listen_addr:              %s\n", cfg.ListenAddr)
			fmt.Printf("metrics_addr:             %s\n", cfg.MetricsAddr)
			fmt.Printf("node_id:                  %s\n", cfg.NodeID)
			fmt.Printf("ed25519_key_path:         %s\n", cfg.Ed25519KeyPath)
			fmt.Printf("harvest_timeout:          %s\n", cfg.HarvestTimeout)
			fmt.Printf("route_by_asset_for_non_create: %v\n", cfg.RouteByAssetForNonCreate)
			fmt.Printf("log_level:                %s\n", cfg.LogLevel)
			return nil
		},
	}
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "[redacted]"
}
