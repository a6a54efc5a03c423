package auditledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// Append calls. The value is arbitrary but must be consistent across all
// server instances sharing a database.
const advisoryLockKey = int64(4_206_180_117)

// The payload column is BYTEA rather than JSONB: JSONB normalises key order
// and whitespace, which would change the hashed bytes.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS audit_ledger (
	position  BIGINT      PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	payload   BYTEA       NOT NULL,
	prev_hash TEXT        NOT NULL,
	hash      TEXT        NOT NULL UNIQUE
)`

const selectEntryColumns = `SELECT position, timestamp, payload, prev_hash, hash FROM audit_ledger`

// PostgresLedger persists the audit chain to a PostgreSQL database.
// It implements the Ledger interface.
type PostgresLedger struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	now    Clock
}

// NewPostgresLedger creates a PostgresLedger backed by the given connection
// pool. Call Init before first use.
func NewPostgresLedger(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLedger {
	return &PostgresLedger{pool: pool, logger: logger, now: systemClock}
}

// Init creates the table if needed and writes the genesis entry into an
// empty table.
func (l *PostgresLedger) Init(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create audit_ledger: %w", err)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	var n int
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM audit_ledger").Scan(&n); err != nil {
		return fmt.Errorf("count ledger entries: %w", err)
	}
	if n > 0 {
		return tx.Commit(ctx)
	}

	genesis := NewGenesis(l.now())
	if err := insertPostgres(ctx, tx, genesis); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit genesis: %w", err)
	}
	l.logger.Info("audit ledger genesis written", zap.String("hash", genesis.hash))
	return nil
}

func insertPostgres(ctx context.Context, tx pgx.Tx, e Entry) error {
	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_ledger (position, timestamp, payload, prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.position, e.timestamp, e.payload, e.prevHash, e.hash,
	); err != nil {
		return fmt.Errorf("insert ledger entry %d: %w", e.position, err)
	}
	return nil
}

func scanPostgres(row pgx.Row) (Entry, error) {
	var e Entry
	if err := row.Scan(&e.position, &e.timestamp, &e.payload, &e.prevHash, &e.hash); err != nil {
		return Entry{}, err
	}
	e.timestamp = e.timestamp.UTC()
	return e, nil
}

// Append implements Ledger.
// It acquires an advisory lock, reads the chain tail, computes the new entry
// hash and inserts it, all within a single transaction.
func (l *PostgresLedger) Append(ctx context.Context, payload Payload) (Entry, error) {
	// Fail before touching the database when the payload cannot be encoded.
	data, err := encode(payload)
	if err != nil {
		return Entry{}, err
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return Entry{}, fmt.Errorf("acquire advisory lock: %w", err)
	}

	prev, err := scanPostgres(tx.QueryRow(ctx, selectEntryColumns+" ORDER BY position DESC LIMIT 1"))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, fmt.Errorf("read ledger tail: %w", ErrEmptyChain)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read ledger tail: %w", err)
	}

	entry := newEntry(prev.position+1, nextTimestamp(l.now(), prev), data, prev.hash)
	if err := insertPostgres(ctx, tx, entry); err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, fmt.Errorf("commit ledger tx: %w", err)
	}

	l.logger.Debug("ledger entry appended",
		zap.Int("position", entry.position),
		zap.String("hash", entry.hash),
	)
	return entry.clone(), nil
}

// Get implements Ledger.
func (l *PostgresLedger) Get(ctx context.Context, position int) (Entry, error) {
	e, err := scanPostgres(l.pool.QueryRow(ctx, selectEntryColumns+" WHERE position = $1", position))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, fmt.Errorf("position %d: %w", position, ErrEntryNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get ledger entry %d: %w", position, err)
	}
	return e, nil
}

// Len implements Ledger.
func (l *PostgresLedger) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_ledger").Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return n, nil
}

// Entries implements Ledger.
func (l *PostgresLedger) Entries(ctx context.Context, from, limit int) ([]Entry, error) {
	if from < 0 {
		from = 0
	}
	query := selectEntryColumns + " WHERE position >= $1 ORDER BY position ASC"
	args := []any{from}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanPostgres(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Verify implements Ledger. It streams all rows ordered by position inside
// a read-only repeatable-read transaction, so concurrent appends are not
// observed halfway. Memory use is constant in chain length.
func (l *PostgresLedger) Verify(ctx context.Context) (Result, error) {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return Result{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, selectEntryColumns+" ORDER BY position ASC")
	if err != nil {
		return Result{}, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var v verifier
	for rows.Next() {
		e, err := scanPostgres(rows)
		if err != nil {
			return Result{}, fmt.Errorf("scan ledger row: %w", err)
		}
		v.next(e)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("read ledger rows: %w", err)
	}
	if v.n == 0 {
		return Result{}, ErrEmptyChain
	}
	return v.result(), nil
}

// Root implements Ledger.
func (l *PostgresLedger) Root(ctx context.Context) (string, error) {
	var hash string
	err := l.pool.QueryRow(ctx, "SELECT hash FROM audit_ledger ORDER BY position DESC LIMIT 1").Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrEmptyChain
	}
	if err != nil {
		return "", fmt.Errorf("get ledger root: %w", err)
	}
	return hash, nil
}
