// Copyright 2025 Certen Protocol
//
// Package ledgerd implements the node's CLI surface (spec §6): configure,
// show-config, init, drop, start, and the upsert-validator election
// sub-actions, each a cobra command in its own file.
package ledgerd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

// NewRootCommand builds the ledgerd command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerd",
		Short:         "Permissioned BFT ledger node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")

	root.AddCommand(
		newConfigureCommand(),
		newShowConfigCommand(),
		newInitCommand(),
		newDropCommand(),
		newStartCommand(),
		newUpsertValidatorCommand(),
	)
	return root
}

// Execute runs the CLI and exits non-zero on error, the way a single-binary
// node entry point reports failures to its caller.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ledgerd:", err)
		os.Exit(1)
	}
}
