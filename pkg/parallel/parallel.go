// Copyright 2025 Certen Protocol
//
// Package parallel implements the block-scoped parallel transaction
// validator (spec §4.D): a fixed pool of workers that validate concurrently
// while the coordinator preserves submission order on the way out and
// resets worker-local context between rounds.
package parallel

import (
	"context"
	"fmt"
	"math/big"
	"runtime"
	"sync"
	"time"

	"github.com/bftledger/node/pkg/ledger"
	"github.com/bftledger/node/pkg/txmodel"
	"github.com/bftledger/node/pkg/validation"
)

// DefaultHarvestTimeout is the default bound on Coordinator.Harvest.
const DefaultHarvestTimeout = 30 * time.Second

type controlSignal int

const (
	controlNone controlSignal = iota
	controlReset
	controlStop
)

type job struct {
	submissionIndex int
	tx              *txmodel.Transaction
	validators      *ledger.ValidatorSet
	control         controlSignal
}

type result struct {
	submissionIndex int
	tx              *txmodel.Transaction
	err             error
}

// Coordinator owns a fixed pool of workers and fans transactions out to
// them by a hash of the transaction id, assembling results back into
// submission order.
type Coordinator struct {
	store          ledger.Store
	workers        []chan job
	results        chan result
	harvestTimeout time.Duration

	// RouteByAssetForNonCreate routes TRANSFER/VOTE transactions by their
	// asset id instead of their own id, keeping a causal chain on one
	// worker at the cost of deviating from the spec's default routing
	// contract. Off by default; see DESIGN.md Open Question decision.
	RouteByAssetForNonCreate bool

	mu         sync.Mutex
	submitted  int
	validators *ledger.ValidatorSet
	wg         sync.WaitGroup
}

// New starts a pool of runtime.NumCPU() workers against store.
func New(store ledger.Store) *Coordinator {
	return NewWithWorkers(store, runtime.NumCPU())
}

// NewWithWorkers starts a pool of exactly w workers; used directly by tests
// that need deterministic worker counts (spec §8 scenario 3).
func NewWithWorkers(store ledger.Store, w int) *Coordinator {
	if w < 1 {
		w = 1
	}
	c := &Coordinator{
		store:          store,
		workers:        make([]chan job, w),
		results:        make(chan result, w*4),
		harvestTimeout: DefaultHarvestTimeout,
	}
	for i := range c.workers {
		c.workers[i] = make(chan job, 64)
		c.wg.Add(1)
		go c.runWorker(c.workers[i])
	}
	return c
}

// SetHarvestTimeout overrides DefaultHarvestTimeout.
func (c *Coordinator) SetHarvestTimeout(d time.Duration) {
	c.harvestTimeout = d
}

func (c *Coordinator) runWorker(jobs chan job) {
	defer c.wg.Done()
	assetContext := map[string][]*txmodel.Transaction{}

	for j := range jobs {
		switch j.control {
		case controlReset:
			assetContext = map[string][]*txmodel.Transaction{}
			continue
		case controlStop:
			return
		}

		assetID := j.tx.AssetID()
		accepted, err := validation.Validate(j.tx, c.store, assetContext[assetID], j.validators)
		if err == nil {
			assetContext[assetID] = append(assetContext[assetID], accepted)
		}
		c.results <- result{submissionIndex: j.submissionIndex, tx: accepted, err: err}
	}
}

// workerIndex hashes tx id (or asset id, under RouteByAssetForNonCreate) to
// a worker slot: parse_hex(key) mod W.
func (c *Coordinator) workerIndex(tx *txmodel.Transaction) (int, error) {
	key := tx.ID
	if c.RouteByAssetForNonCreate && tx.Operation != txmodel.OpCreate && tx.Operation != txmodel.OpValidatorElection {
		key = tx.AssetID()
	}
	n := new(big.Int)
	if _, ok := n.SetString(key, 16); !ok {
		return 0, fmt.Errorf("routing key %q is not valid hex", key)
	}
	n.Mod(n, big.NewInt(int64(len(c.workers))))
	return int(n.Int64()), nil
}

// Submit enqueues tx for validation and returns its submission index.
// SetValidators must be called before Submit if the round includes
// VALIDATOR_ELECTION transactions.
func (c *Coordinator) Submit(tx *txmodel.Transaction) (int, error) {
	idx, err := c.workerIndex(tx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	submissionIndex := c.submitted
	c.submitted++
	validators := c.validators
	c.mu.Unlock()

	c.workers[idx] <- job{submissionIndex: submissionIndex, tx: tx, validators: validators}
	return submissionIndex, nil
}

// SetValidators installs the validator set effective for the round about to
// be submitted. It must be called before Submit for any round that may
// include VALIDATOR_ELECTION transactions.
func (c *Coordinator) SetValidators(vs *ledger.ValidatorSet) {
	c.mu.Lock()
	c.validators = vs
	c.mu.Unlock()
}

// Harvest reads exactly n results (one per Submit call since the last
// Harvest) and returns them ordered by submission index; a nil slot is a
// rejection. If the timeout elapses first, Harvest returns an error and the
// caller must not write a pre-commit record for this round.
func (c *Coordinator) Harvest(ctx context.Context) ([]*txmodel.Transaction, error) {
	c.mu.Lock()
	n := c.submitted
	c.submitted = 0
	c.mu.Unlock()

	slots := make([]*txmodel.Transaction, n)
	errs := make([]error, n)

	timeout := time.NewTimer(c.harvestTimeout)
	defer timeout.Stop()

	for i := 0; i < n; i++ {
		select {
		case r := <-c.results:
			slots[r.submissionIndex] = r.tx
			errs[r.submissionIndex] = r.err
		case <-timeout.C:
			c.broadcast(controlReset)
			return nil, fmt.Errorf("harvest timed out after %s waiting for %d/%d results", c.harvestTimeout, i, n)
		case <-ctx.Done():
			c.broadcast(controlReset)
			return nil, ctx.Err()
		}
	}

	c.broadcast(controlReset)
	return slots, nil
}

func (c *Coordinator) broadcast(sig controlSignal) {
	for _, w := range c.workers {
		w <- job{control: sig}
	}
}

// Stop terminates every worker goroutine. The coordinator must not be used
// afterward.
func (c *Coordinator) Stop() {
	c.broadcast(controlStop)
	for _, w := range c.workers {
		close(w)
	}
	c.wg.Wait()
}
