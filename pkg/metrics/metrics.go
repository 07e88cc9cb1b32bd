// Copyright 2025 Certen Protocol
//
// Package metrics exposes the node's operational counters on a small HTTP
// mux, the way the teacher exposes its health/status endpoints alongside
// the ABCI socket server.
package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the counters the ABCI handler increments as it processes
// blocks.
type Registry struct {
	TxAccepted        prometheus.Counter
	TxRejected        prometheus.Counter
	ElectionConcluded prometheus.Counter
	HarvestTimeouts   prometheus.Counter
	BlockHeight       prometheus.Gauge
}

// New registers the node's counters with the default prometheus registry,
// the one Serve's /metrics handler exposes. A second call in the same
// process panics on the duplicate registration.
func New() *Registry {
	return &Registry{
		TxAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledgerd_tx_accepted_total",
			Help: "Transactions accepted during deliver_tx/end_block.",
		}),
		TxRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledgerd_tx_rejected_total",
			Help: "Transactions rejected by the validation engine.",
		}),
		ElectionConcluded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledgerd_election_concluded_total",
			Help: "Validator-set elections that transitioned to CONCLUDED.",
		}),
		HarvestTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledgerd_harvest_timeouts_total",
			Help: "end_block harvests that exceeded the configured timeout.",
		}),
		BlockHeight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ledgerd_block_height",
			Help: "Height of the last block committed by this node.",
		}),
	}
}

// Serve runs a small HTTP server exposing /metrics until ctx is canceled.
func Serve(ctx context.Context, addr string, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Printf("metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("metrics server error: %v", err)
	}
}
