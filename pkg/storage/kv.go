// Copyright 2025 Certen Protocol
//
// Package storage provides concrete implementations of ledger.Store: a
// cometbft-db-backed key/value store (used in tests and single-node
// development) and a Postgres-backed document store, which the ledgerd
// commands open. Both implement ledger.Store, the interface the core
// packages take.
package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/bftledger/node/pkg/ledger"
	"github.com/bftledger/node/pkg/txmodel"
)

// KVStore implements ledger.Store over a cometbft-db handle, following the
// key-layout convention of big-endian height suffixes used for range scans.
type KVStore struct {
	db dbm.DB
}

// NewKVStore wraps db as a ledger.Store.
func NewKVStore(db dbm.DB) *KVStore {
	return &KVStore{db: db}
}

// NewMemKVStore returns a KVStore backed by an in-memory cometbft-db
// instance, suitable for tests and single-node development.
func NewMemKVStore() *KVStore {
	return NewKVStore(dbm.NewMemDB())
}

var (
	prefixTx           = []byte("tx:")
	prefixTxAssetIndex = []byte("txasset:")
	prefixBlockHeight  = []byte("block:h:")
	keyBlockLatest     = []byte("block:latest")
	prefixBlockTxIndex = []byte("block:tx:")
	keyPreCommit       = []byte("precommit")
	prefixValidatorSet = []byte("validators:h:")
	prefixElectionIdx  = []byte("validators:e:")
)

func beUint64(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func txKey(id string) []byte {
	return append(append([]byte{}, prefixTx...), []byte(id)...)
}

func txAssetIndexKey(assetID, txID string) []byte {
	key := append(append([]byte{}, prefixTxAssetIndex...), []byte(assetID)...)
	key = append(key, 0x00)
	return append(key, []byte(txID)...)
}

func txAssetIndexPrefix(assetID string) []byte {
	key := append(append([]byte{}, prefixTxAssetIndex...), []byte(assetID)...)
	return append(key, 0x00)
}

func blockHeightKey(height uint64) []byte {
	return append(append([]byte{}, prefixBlockHeight...), beUint64(height)...)
}

func blockTxIndexKey(txID string) []byte {
	return append(append([]byte{}, prefixBlockTxIndex...), []byte(txID)...)
}

func validatorSetKey(height uint64) []byte {
	return append(append([]byte{}, prefixValidatorSet...), beUint64(height)...)
}

func electionIndexKey(electionID string) []byte {
	return append(append([]byte{}, prefixElectionIdx...), []byte(electionID)...)
}

// prefixUpperBound returns the smallest key that is strictly greater than
// every key with the given prefix, for use as an exclusive iterator bound.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff; unbounded
}

func (s *KVStore) GetTransaction(id string) (*txmodel.Transaction, error) {
	raw, err := s.db.Get(txKey(id))
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	if raw == nil {
		return nil, ledger.ErrNotFound
	}
	var tx txmodel.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", id, err)
	}
	return &tx, nil
}

func (s *KVStore) StoreTransactions(batch []*txmodel.Transaction) error {
	wb := s.db.NewBatch()
	defer wb.Close()
	for _, tx := range batch {
		raw, err := json.Marshal(tx)
		if err != nil {
			return fmt.Errorf("encode transaction %s: %w", tx.ID, err)
		}
		if err := wb.Set(txKey(tx.ID), raw); err != nil {
			return err
		}
		if err := wb.Set(txAssetIndexKey(tx.AssetID(), tx.ID), []byte{1}); err != nil {
			return err
		}
	}
	return wb.WriteSync()
}

func (s *KVStore) DeleteTransactions(ids []string) error {
	wb := s.db.NewBatch()
	defer wb.Close()
	for _, id := range ids {
		tx, err := s.GetTransaction(id)
		if err != nil && err != ledger.ErrNotFound {
			return err
		}
		if tx != nil {
			if err := wb.Delete(txAssetIndexKey(tx.AssetID(), tx.ID)); err != nil {
				return err
			}
		}
		if err := wb.Delete(txKey(id)); err != nil {
			return err
		}
	}
	return wb.WriteSync()
}

func (s *KVStore) GetLatestBlock() (*ledger.Block, error) {
	raw, err := s.db.Get(keyBlockLatest)
	if err != nil {
		return nil, fmt.Errorf("get latest block: %w", err)
	}
	if raw == nil {
		return nil, ledger.ErrNotFound
	}
	var b ledger.Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode latest block: %w", err)
	}
	return &b, nil
}

func (s *KVStore) StoreBlock(block *ledger.Block) error {
	raw, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("encode block %d: %w", block.Height, err)
	}
	wb := s.db.NewBatch()
	defer wb.Close()
	if err := wb.Set(blockHeightKey(block.Height), raw); err != nil {
		return err
	}
	if err := wb.Set(keyBlockLatest, raw); err != nil {
		return err
	}
	for _, txID := range block.Transactions {
		if err := wb.Set(blockTxIndexKey(txID), beUint64(block.Height)); err != nil {
			return err
		}
	}
	return wb.WriteSync()
}

func (s *KVStore) GetBlockContainingTx(id string) (uint64, bool, error) {
	raw, err := s.db.Get(blockTxIndexKey(id))
	if err != nil {
		return 0, false, fmt.Errorf("get block for tx %s: %w", id, err)
	}
	if raw == nil {
		return 0, false, nil
	}
	return binary.BigEndian.Uint64(raw), true, nil
}

func (s *KVStore) GetPreCommitState() (*ledger.PreCommitRecord, error) {
	raw, err := s.db.Get(keyPreCommit)
	if err != nil {
		return nil, fmt.Errorf("get pre-commit state: %w", err)
	}
	if raw == nil {
		return nil, ledger.ErrNotFound
	}
	var rec ledger.PreCommitRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode pre-commit state: %w", err)
	}
	return &rec, nil
}

func (s *KVStore) StorePreCommitState(record *ledger.PreCommitRecord) error {
	record.CommitID = ledger.PreCommitID
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode pre-commit state: %w", err)
	}
	return s.db.SetSync(keyPreCommit, raw)
}

func (s *KVStore) GetValidators(height uint64) (*ledger.ValidatorSet, error) {
	prefix := prefixValidatorSet
	end := validatorSetKey(height + 1)
	it, err := s.db.ReverseIterator(prefix, end)
	if err != nil {
		return nil, fmt.Errorf("scan validator sets: %w", err)
	}
	defer it.Close()
	if !it.Valid() {
		return nil, ledger.ErrNotFound
	}
	var vs ledger.ValidatorSet
	if err := json.Unmarshal(it.Value(), &vs); err != nil {
		return nil, fmt.Errorf("decode validator set: %w", err)
	}
	return &vs, nil
}

func (s *KVStore) StoreValidatorSet(height uint64, set []ledger.Validator, electionID string) error {
	vs := ledger.ValidatorSet{Height: height, Validators: set, ElectionID: electionID}
	raw, err := json.Marshal(vs)
	if err != nil {
		return fmt.Errorf("encode validator set: %w", err)
	}
	wb := s.db.NewBatch()
	defer wb.Close()
	if err := wb.Set(validatorSetKey(height), raw); err != nil {
		return err
	}
	if electionID != "" {
		if err := wb.Set(electionIndexKey(electionID), beUint64(height)); err != nil {
			return err
		}
	}
	return wb.WriteSync()
}

func (s *KVStore) GetValidatorsByElectionID(electionID string) (*ledger.ValidatorSet, error) {
	raw, err := s.db.Get(electionIndexKey(electionID))
	if err != nil {
		return nil, fmt.Errorf("lookup election %s: %w", electionID, err)
	}
	if raw == nil {
		return nil, ledger.ErrNotFound
	}
	height := binary.BigEndian.Uint64(raw)
	setRaw, err := s.db.Get(validatorSetKey(height))
	if err != nil {
		return nil, fmt.Errorf("get validator set at height %d: %w", height, err)
	}
	if setRaw == nil {
		return nil, ledger.ErrNotFound
	}
	var vs ledger.ValidatorSet
	if err := json.Unmarshal(setRaw, &vs); err != nil {
		return nil, fmt.Errorf("decode validator set: %w", err)
	}
	return &vs, nil
}

func (s *KVStore) GetAssetTokensForPublicKey(assetID, publicKey string) ([]ledger.AssetToken, error) {
	prefix := txAssetIndexPrefix(assetID)
	end := prefixUpperBound(prefix)
	it, err := s.db.Iterator(prefix, end)
	if err != nil {
		return nil, fmt.Errorf("scan asset index %s: %w", assetID, err)
	}
	defer it.Close()

	var tokens []ledger.AssetToken
	for ; it.Valid(); it.Next() {
		key := it.Key()
		if !bytes.HasPrefix(key, prefix) {
			continue
		}
		txID := string(key[len(prefix):])
		tx, err := s.GetTransaction(txID)
		if err != nil {
			if err == ledger.ErrNotFound {
				continue
			}
			return nil, err
		}
		for i, out := range tx.Outputs {
			if containsKey(out.PublicKeys, publicKey) {
				tokens = append(tokens, ledger.AssetToken{
					TxID:          tx.ID,
					OutputIndex:   i,
					Amount:        out.Amount,
					SoleRecipient: len(out.PublicKeys) == 1,
				})
			}
		}
	}
	return tokens, nil
}

func (s *KVStore) GetTransactionsForAsset(assetID string) ([]*txmodel.Transaction, error) {
	prefix := txAssetIndexPrefix(assetID)
	end := prefixUpperBound(prefix)
	it, err := s.db.Iterator(prefix, end)
	if err != nil {
		return nil, fmt.Errorf("scan asset index %s: %w", assetID, err)
	}
	defer it.Close()

	var txs []*txmodel.Transaction
	for ; it.Valid(); it.Next() {
		key := it.Key()
		if !bytes.HasPrefix(key, prefix) {
			continue
		}
		txID := string(key[len(prefix):])
		tx, err := s.GetTransaction(txID)
		if err != nil {
			if err == ledger.ErrNotFound {
				continue
			}
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func containsKey(keys []string, target string) bool {
	for _, k := range keys {
		if k == target {
			return true
		}
	}
	return false
}
