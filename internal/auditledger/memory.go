package auditledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLedger is an in-memory, thread-safe Ledger implementation.
// It is useful for tests, demos and for re-checking an exported chain.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []Entry
	now     Clock
}

// MemoryOption configures a MemoryLedger.
type MemoryOption func(*MemoryLedger)

// WithClock overrides the time source used for new entries.
func WithClock(c Clock) MemoryOption {
	return func(l *MemoryLedger) { l.now = c }
}

// New creates a MemoryLedger initialised with a genesis entry.
func New(opts ...MemoryOption) *MemoryLedger {
	l := &MemoryLedger{now: systemClock}
	for _, o := range opts {
		o(l)
	}
	l.entries = append(l.entries, NewGenesis(l.now()))
	return l
}

// Load rebuilds a MemoryLedger from previously exported entries. Nothing is
// recomputed or repaired, so Verify reports exactly what the export holds.
// Positions must run 0..n-1 in order.
func Load(entries []Entry, opts ...MemoryOption) (*MemoryLedger, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyChain
	}
	l := &MemoryLedger{now: systemClock}
	for _, o := range opts {
		o(l)
	}
	l.entries = make([]Entry, len(entries))
	for i, e := range entries {
		if e.position != i {
			return nil, fmt.Errorf("%w: entry %d has position %d", ErrOutOfSequence, i, e.position)
		}
		l.entries[i] = Restore(e.position, e.timestamp, e.payload, e.prevHash, e.hash)
	}
	return l, nil
}

func (l *MemoryLedger) tip() Entry {
	if len(l.entries) == 0 {
		panic(ErrEmptyChain)
	}
	return l.entries[len(l.entries)-1]
}

// Append implements Ledger.
func (l *MemoryLedger) Append(_ context.Context, payload Payload) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, err := next(l.tip(), l.now(), payload)
	if err != nil {
		return Entry{}, err
	}
	l.entries = append(l.entries, entry)
	return entry.clone(), nil
}

// Get implements Ledger.
func (l *MemoryLedger) Get(_ context.Context, position int) (Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if position < 0 || position >= len(l.entries) {
		return Entry{}, fmt.Errorf("position %d: %w", position, ErrEntryNotFound)
	}
	return l.entries[position].clone(), nil
}

// Len implements Ledger.
func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

// Entries implements Ledger.
func (l *MemoryLedger) Entries(_ context.Context, from, limit int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start, end := window(from, limit, len(l.entries))
	out := make([]Entry, 0, end-start)
	for _, e := range l.entries[start:end] {
		out = append(out, e.clone())
	}
	return out, nil
}

// Verify implements Ledger. The read lock is held for the whole scan so an
// append cannot interleave with it.
func (l *MemoryLedger) Verify(_ context.Context) (Result, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return VerifyChain(l.entries), nil
}

// Root implements Ledger.
func (l *MemoryLedger) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tip().hash, nil
}
