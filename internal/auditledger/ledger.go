package auditledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSerialization is returned when a payload has no deterministic
	// encoding. The chain is unchanged.
	ErrSerialization = errors.New("auditledger: payload is not deterministically serializable")

	// ErrEmptyChain signals a ledger without its genesis entry. It is a
	// construction bug, never a recoverable runtime condition.
	ErrEmptyChain = errors.New("auditledger: chain has no genesis entry")

	// ErrEntryNotFound is returned by Get for a position past the tip.
	ErrEntryNotFound = errors.New("auditledger: entry not found")

	// ErrOutOfSequence is returned by Load when entry positions are not
	// 0, 1, 2, ... in order.
	ErrOutOfSequence = errors.New("auditledger: entry positions out of sequence")
)

// Ledger is the interface for the append-only audit chain.
// MemoryLedger, SQLiteLedger and PostgresLedger implement it.
type Ledger interface {
	// Append adds a new entry chained to the current tip.
	Append(ctx context.Context, payload Payload) (Entry, error)

	// Get returns the entry at the given zero-based position.
	Get(ctx context.Context, position int) (Entry, error)

	// Len returns the total number of entries, genesis included.
	Len(ctx context.Context) (int, error)

	// Entries returns up to limit entries starting at position from.
	// A limit <= 0 means through the tip.
	Entries(ctx context.Context, from, limit int) ([]Entry, error)

	// Verify walks the whole chain. Integrity findings are reported in the
	// Result; the error is reserved for failures to read the chain.
	Verify(ctx context.Context) (Result, error)

	// Root returns the hash of the most recent entry.
	Root(ctx context.Context) (string, error)
}

// Clock returns the current time. Backends accept one so tests can pin
// timestamps.
type Clock func() time.Time

func systemClock() time.Time { return time.Now() }

// nextTimestamp keeps timestamps non-decreasing when the wall clock steps
// backwards.
func nextTimestamp(now time.Time, last Entry) time.Time {
	ts := now.UTC().Truncate(TimestampResolution)
	if ts.Before(last.timestamp) {
		return last.timestamp
	}
	return ts
}

// next builds the successor of last.
func next(last Entry, now time.Time, payload Payload) (Entry, error) {
	return NewEntry(last.position+1, nextTimestamp(now, last), payload, last.hash)
}

// window clamps [from, from+limit) to a chain of length n.
func window(from, limit, n int) (int, int) {
	if from < 0 {
		from = 0
	}
	if from > n {
		from = n
	}
	end := n
	if limit > 0 && from+limit < n {
		end = from + limit
	}
	return from, end
}
