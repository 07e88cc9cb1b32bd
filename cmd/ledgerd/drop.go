// Copyright 2025 Certen Protocol
//
package ledgerd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bftledger/node/pkg/config"
	"github.com/bftledger/node/pkg/storage"
)

func newDropCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop the node's schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("refusing to drop schema without --force")
			}
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			store, err := storage.NewPostgresStore(storage.PostgresConfig{URL: cfg.DatabaseURL})
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Drop(context.Background())
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm the destructive drop")
	return cmd
}
