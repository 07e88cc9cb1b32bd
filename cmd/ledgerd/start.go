// Copyright 2025 Certen Protocol
//
package ledgerd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	abciserver "github.com/cometbft/cometbft/abci/server"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/spf13/cobra"

	"github.com/bftledger/node/pkg/abci"
	"github.com/bftledger/node/pkg/config"
	"github.com/bftledger/node/pkg/metrics"
	"github.com/bftledger/node/pkg/parallel"
	"github.com/bftledger/node/pkg/storage"
)

func newStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run crash recovery and boot the ABCI socket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg)
		},
	}
}

func run(cfg *config.Config) error {
	logger := log.New(os.Stdout, "[ledgerd] ", log.LstdFlags|log.Lmicroseconds)

	store, err := storage.NewPostgresStore(storage.PostgresConfig{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DatabaseMaxConns,
		ConnMaxIdleTime: cfg.DatabaseMaxIdleTime,
		ConnMaxLifetime: cfg.DatabaseMaxLifetime,
	}, storage.WithLogger(log.New(os.Stdout, "[storage] ", log.LstdFlags)))
	if err != nil {
		return err
	}
	defer store.Close()

	if err := abci.Recover(store, log.New(os.Stdout, "[recovery] ", log.LstdFlags)); err != nil {
		return err
	}

	coordinator := parallel.New(store)
	coordinator.RouteByAssetForNonCreate = cfg.RouteByAssetForNonCreate
	coordinator.SetHarvestTimeout(cfg.HarvestTimeout)
	defer coordinator.Stop()

	reg := metrics.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go metrics.Serve(ctx, cfg.MetricsAddr, log.New(os.Stdout, "[metrics] ", log.LstdFlags))

	app := abci.New(store, coordinator, reg, log.New(os.Stdout, "[abci] ", log.LstdFlags|log.Lmicroseconds))

	tmLogger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))
	tmLogger = tmLogger.With("module", "abci-server")

	srv := abciserver.NewSocketServer(cfg.ListenAddr, app)
	srv.SetLogger(tmLogger)
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop()

	logger.Printf("listening on %s", cfg.ListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Printf("shutting down")
	return nil
}
