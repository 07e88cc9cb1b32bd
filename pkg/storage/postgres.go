// Copyright 2025 Certen Protocol
//
package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/bftledger/node/pkg/ledger"
	"github.com/bftledger/node/pkg/txmodel"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements ledger.Store over a pooled Postgres connection,
// with each record type kept in its own table and its payload stored as
// JSONB so callers never need a second codec alongside encoding/json.
type PostgresStore struct {
	db     *sql.DB
	logger *log.Logger
}

// PostgresOption configures a PostgresStore at construction time.
type PostgresOption func(*PostgresStore)

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) PostgresOption {
	return func(s *PostgresStore) {
		s.logger = logger
	}
}

// PostgresConfig carries connection pool tuning, mirroring the fields the
// node's own Config exposes to the CLI's configure/show-config commands.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// NewPostgresStore opens a connection pool against cfg.URL and verifies it
// with a ping before returning.
func NewPostgresStore(cfg PostgresConfig, opts ...PostgresOption) (*PostgresStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("postgres: database URL cannot be empty")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := &PostgresStore{
		db:     db,
		logger: log.New(log.Writer(), "[storage] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(store)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	store.logger.Printf("connected to database (max_open=%d, max_idle=%d)", cfg.MaxOpenConns, cfg.MaxIdleConns)
	return store, nil
}

// DB returns the underlying pool, for migration tooling and health checks.
func (s *PostgresStore) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// migration is one embedded *.sql file, applied in filename order.
type migration struct {
	version string
	sql     string
}

func (s *PostgresStore) loadMigrations() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		raw, err := migrationsFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, migration{version: e.Name(), sql: string(raw)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// MigrateUp applies every embedded migration that has not yet been recorded
// in schema_migrations, in filename order, each inside its own transaction.
func (s *PostgresStore) MigrateUp(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	migrations, err := s.loadMigrations()
	if err != nil {
		return err
	}

	applied := map[string]bool{}
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		s.logger.Printf("applying migration %s", m.version)
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.version, err)
		}
	}
	return nil
}

// Drop removes every table this store owns. Used by the CLI's drop command
// to reset a development database.
func (s *PostgresStore) Drop(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DROP TABLE IF EXISTS asset_index;
		DROP TABLE IF EXISTS transactions;
		DROP TABLE IF EXISTS blocks;
		DROP TABLE IF EXISTS block_tx_index;
		DROP TABLE IF EXISTS pre_commit;
		DROP TABLE IF EXISTS validator_sets;
		DROP TABLE IF EXISTS schema_migrations;
	`)
	return err
}

func (s *PostgresStore) GetTransaction(id string) (*txmodel.Transaction, error) {
	var raw []byte
	err := s.db.QueryRow(`SELECT payload FROM transactions WHERE id = $1`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	var tx txmodel.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", id, err)
	}
	return &tx, nil
}

func (s *PostgresStore) StoreTransactions(batch []*txmodel.Transaction) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin store transactions: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO transactions (id, asset_id, operation, payload, row_uuid) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload`)
	if err != nil {
		return fmt.Errorf("prepare insert transaction: %w", err)
	}
	defer stmt.Close()

	idxStmt, err := tx.Prepare(`INSERT INTO asset_index (asset_id, public_key, tx_id, output_index, amount, recipient_count) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (asset_id, public_key, tx_id, output_index) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare insert asset index: %w", err)
	}
	defer idxStmt.Close()

	for _, t := range batch {
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode transaction %s: %w", t.ID, err)
		}
		// Deterministic row UUID, derived the same way the teacher derives a
		// database-linkage UUID from a string bundle id
		// (uuid.NewSHA1(uuid.NameSpaceOID, ...)): a stable surrogate key for
		// joins from external tooling that expects a UUID column rather than
		// the ledger's own hex transaction id.
		rowUUID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(t.ID))
		if _, err := stmt.Exec(t.ID, t.AssetID(), string(t.Operation), raw, rowUUID); err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
		for i, out := range t.Outputs {
			for _, pk := range out.PublicKeys {
				if _, err := idxStmt.Exec(t.AssetID(), pk, t.ID, i, int64(out.Amount), len(out.PublicKeys)); err != nil {
					return fmt.Errorf("index transaction %s output %d: %w", t.ID, i, err)
				}
			}
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) DeleteTransactions(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete transactions: %w", err)
	}
	defer tx.Rollback()
	for _, id := range ids {
		if _, err := tx.Exec(`DELETE FROM asset_index WHERE tx_id = $1`, id); err != nil {
			return fmt.Errorf("delete asset index for %s: %w", id, err)
		}
		if _, err := tx.Exec(`DELETE FROM transactions WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete transaction %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) GetLatestBlock() (*ledger.Block, error) {
	var raw []byte
	err := s.db.QueryRow(`SELECT payload FROM blocks ORDER BY height DESC LIMIT 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest block: %w", err)
	}
	var b ledger.Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode latest block: %w", err)
	}
	return &b, nil
}

func (s *PostgresStore) StoreBlock(block *ledger.Block) error {
	raw, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("encode block %d: %w", block.Height, err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin store block: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO blocks (height, payload) VALUES ($1, $2)
		ON CONFLICT (height) DO UPDATE SET payload = EXCLUDED.payload`, int64(block.Height), raw); err != nil {
		return fmt.Errorf("insert block %d: %w", block.Height, err)
	}
	for _, txID := range block.Transactions {
		if _, err := tx.Exec(`INSERT INTO block_tx_index (tx_id, height) VALUES ($1, $2)
			ON CONFLICT (tx_id) DO UPDATE SET height = EXCLUDED.height`, txID, int64(block.Height)); err != nil {
			return fmt.Errorf("index block tx %s: %w", txID, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) GetBlockContainingTx(id string) (uint64, bool, error) {
	var height int64
	err := s.db.QueryRow(`SELECT height FROM block_tx_index WHERE tx_id = $1`, id).Scan(&height)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get block for tx %s: %w", id, err)
	}
	return uint64(height), true, nil
}

func (s *PostgresStore) GetPreCommitState() (*ledger.PreCommitRecord, error) {
	var raw []byte
	err := s.db.QueryRow(`SELECT payload FROM pre_commit WHERE commit_id = $1`, ledger.PreCommitID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pre-commit state: %w", err)
	}
	var rec ledger.PreCommitRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode pre-commit state: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) StorePreCommitState(record *ledger.PreCommitRecord) error {
	record.CommitID = ledger.PreCommitID
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode pre-commit state: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO pre_commit (commit_id, payload) VALUES ($1, $2)
		ON CONFLICT (commit_id) DO UPDATE SET payload = EXCLUDED.payload`, ledger.PreCommitID, raw)
	if err != nil {
		return fmt.Errorf("store pre-commit state: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetValidators(height uint64) (*ledger.ValidatorSet, error) {
	var raw []byte
	err := s.db.QueryRow(`SELECT payload FROM validator_sets WHERE height <= $1 ORDER BY height DESC LIMIT 1`, int64(height)).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get validators at height %d: %w", height, err)
	}
	var vs ledger.ValidatorSet
	if err := json.Unmarshal(raw, &vs); err != nil {
		return nil, fmt.Errorf("decode validator set: %w", err)
	}
	return &vs, nil
}

func (s *PostgresStore) StoreValidatorSet(height uint64, set []ledger.Validator, electionID string) error {
	vs := ledger.ValidatorSet{Height: height, Validators: set, ElectionID: electionID}
	raw, err := json.Marshal(vs)
	if err != nil {
		return fmt.Errorf("encode validator set: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO validator_sets (height, election_id, payload) VALUES ($1, $2, $3)
		ON CONFLICT (height) DO UPDATE SET election_id = EXCLUDED.election_id, payload = EXCLUDED.payload`,
		int64(height), nullableElectionID(electionID), raw)
	if err != nil {
		return fmt.Errorf("store validator set at height %d: %w", height, err)
	}
	return nil
}

func (s *PostgresStore) GetValidatorsByElectionID(electionID string) (*ledger.ValidatorSet, error) {
	var raw []byte
	err := s.db.QueryRow(`SELECT payload FROM validator_sets WHERE election_id = $1`, electionID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get validators for election %s: %w", electionID, err)
	}
	var vs ledger.ValidatorSet
	if err := json.Unmarshal(raw, &vs); err != nil {
		return nil, fmt.Errorf("decode validator set: %w", err)
	}
	return &vs, nil
}

func (s *PostgresStore) GetAssetTokensForPublicKey(assetID, publicKey string) ([]ledger.AssetToken, error) {
	rows, err := s.db.Query(`SELECT tx_id, output_index, amount, recipient_count FROM asset_index WHERE asset_id = $1 AND public_key = $2`, assetID, publicKey)
	if err != nil {
		return nil, fmt.Errorf("scan asset index %s: %w", assetID, err)
	}
	defer rows.Close()

	var tokens []ledger.AssetToken
	for rows.Next() {
		var tok ledger.AssetToken
		var amount int64
		var recipientCount int
		if err := rows.Scan(&tok.TxID, &tok.OutputIndex, &amount, &recipientCount); err != nil {
			return nil, fmt.Errorf("scan asset token: %w", err)
		}
		tok.Amount = uint64(amount)
		tok.SoleRecipient = recipientCount == 1
		tokens = append(tokens, tok)
	}
	return tokens, rows.Err()
}

func (s *PostgresStore) GetTransactionsForAsset(assetID string) ([]*txmodel.Transaction, error) {
	rows, err := s.db.Query(`SELECT payload FROM transactions WHERE asset_id = $1`, assetID)
	if err != nil {
		return nil, fmt.Errorf("scan transactions for asset %s: %w", assetID, err)
	}
	defer rows.Close()

	var txs []*txmodel.Transaction
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		var tx txmodel.Transaction
		if err := json.Unmarshal(raw, &tx); err != nil {
			return nil, fmt.Errorf("decode transaction: %w", err)
		}
		txs = append(txs, &tx)
	}
	return txs, rows.Err()
}

func nullableElectionID(id string) interface{} {
	if id == "" {
		return nil
	}
	return id
}
