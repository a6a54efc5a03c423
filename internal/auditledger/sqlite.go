package auditledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Timestamps are stored as unix milliseconds, matching TimestampResolution.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_ledger (
	position  INTEGER PRIMARY KEY,
	timestamp INTEGER NOT NULL,
	payload   BLOB    NOT NULL,
	prev_hash TEXT    NOT NULL,
	hash      TEXT    NOT NULL UNIQUE
)`

// SQLiteLedger persists the audit chain to a single SQLite file.
// It implements the Ledger interface and is meant for one writing process.
type SQLiteLedger struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
	now    Clock

	// mu serialises Append within the process; the transaction covers the
	// read-tail-then-insert pair on disk.
	mu sync.Mutex
}

// OpenSQLite opens (or creates) the ledger database at path and ensures the
// genesis entry exists.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteLedger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := &SQLiteLedger{db: db, path: path, logger: logger, now: systemClock}
	if err := l.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLedger) init(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create audit_ledger: %w", err)
	}

	var n int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_ledger").Scan(&n); err != nil {
		return fmt.Errorf("count ledger entries: %w", err)
	}
	if n > 0 {
		return nil
	}

	genesis := NewGenesis(l.now())
	if err := insertSQLite(ctx, l.db, genesis); err != nil {
		return err
	}
	l.logger.Info("audit ledger genesis written",
		zap.String("path", l.path),
		zap.String("hash", genesis.hash),
	)
	return nil
}

// Close releases the database handle.
func (l *SQLiteLedger) Close() error { return l.db.Close() }

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSQLite(ctx context.Context, db sqlExecer, e Entry) error {
	if _, err := db.ExecContext(ctx,
		`INSERT INTO audit_ledger (position, timestamp, payload, prev_hash, hash)
		 VALUES (?, ?, ?, ?, ?)`,
		e.position, e.timestamp.UnixMilli(), e.payload, e.prevHash, e.hash,
	); err != nil {
		return fmt.Errorf("insert ledger entry %d: %w", e.position, err)
	}
	return nil
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row sqlScanner) (Entry, error) {
	var (
		e  Entry
		ms int64
	)
	if err := row.Scan(&e.position, &ms, &e.payload, &e.prevHash, &e.hash); err != nil {
		return Entry{}, err
	}
	e.timestamp = time.UnixMilli(ms).UTC()
	return e, nil
}

// Append implements Ledger.
func (l *SQLiteLedger) Append(ctx context.Context, payload Payload) (Entry, error) {
	data, err := encode(payload)
	if err != nil {
		return Entry{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	prev, err := scanSQLite(tx.QueryRowContext(ctx, selectEntryColumns+" ORDER BY position DESC LIMIT 1"))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("read ledger tail: %w", ErrEmptyChain)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read ledger tail: %w", err)
	}

	entry := newEntry(prev.position+1, nextTimestamp(l.now(), prev), data, prev.hash)
	if err := insertSQLite(ctx, tx, entry); err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("commit ledger tx: %w", err)
	}

	l.logger.Debug("ledger entry appended",
		zap.Int("position", entry.position),
		zap.String("hash", entry.hash),
	)
	return entry.clone(), nil
}

// Get implements Ledger.
func (l *SQLiteLedger) Get(ctx context.Context, position int) (Entry, error) {
	e, err := scanSQLite(l.db.QueryRowContext(ctx, selectEntryColumns+" WHERE position = ?", position))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("position %d: %w", position, ErrEntryNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get ledger entry %d: %w", position, err)
	}
	return e, nil
}

// Len implements Ledger.
func (l *SQLiteLedger) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_ledger").Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return n, nil
}

// Entries implements Ledger.
func (l *SQLiteLedger) Entries(ctx context.Context, from, limit int) ([]Entry, error) {
	if from < 0 {
		from = 0
	}
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := l.db.QueryContext(ctx,
		selectEntryColumns+" WHERE position >= ? ORDER BY position ASC LIMIT ?", from, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Verify implements Ledger. Appends from this process wait for the scan to
// finish.
func (l *SQLiteLedger) Verify(ctx context.Context) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.QueryContext(ctx, selectEntryColumns+" ORDER BY position ASC")
	if err != nil {
		return Result{}, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var v verifier
	for rows.Next() {
		e, err := scanSQLite(rows)
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
func (l *SQLiteLedger) Root(ctx context.Context) (string, error) {
	var hash string
	err := l.db.QueryRowContext(ctx, "SELECT hash FROM audit_ledger ORDER BY position DESC LIMIT 1").Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrEmptyChain
	}
	if err != nil {
		return "", fmt.Errorf("get ledger root: %w", err)
	}
	return hash, nil
}
