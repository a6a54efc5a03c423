// Package tamper builds deliberately corrupted copies of an exported audit
// chain. It exists to exercise and demonstrate tamper detection; it never
// touches a live Ledger. Feed its output to auditledger.VerifyChain or
// auditledger.Load.
package tamper

import (
	"fmt"

	"github.com/jmerrifield20/ethosguard/internal/auditledger"
	"github.com/tidwall/sjson"
)

// EditPayload returns a copy of entries in which the payload value at the
// given JSON path (sjson syntax) of the entry at position is replaced. The
// edited entry keeps its old hash, simulating content tampering.
func EditPayload(entries []auditledger.Entry, position int, path string, value any) ([]auditledger.Entry, error) {
	return edit(entries, position, path, value, false)
}

// EditAndRehash is like EditPayload but also recomputes the edited entry's
// own hash, simulating an attacker who covers the edit. The break then shows
// on the following entry's backward reference.
func EditAndRehash(entries []auditledger.Entry, position int, path string, value any) ([]auditledger.Entry, error) {
	return edit(entries, position, path, value, true)
}

// ReplaceHash returns a copy of entries with the stored hash of the entry at
// position overwritten.
func ReplaceHash(entries []auditledger.Entry, position int, hash string) ([]auditledger.Entry, error) {
	out, e, err := copyAt(entries, position)
	if err != nil {
		return nil, err
	}
	out[position] = auditledger.Restore(e.Position(), e.Timestamp(), e.Payload(), e.PrevHash(), hash)
	return out, nil
}

func edit(entries []auditledger.Entry, position int, path string, value any, rehash bool) ([]auditledger.Entry, error) {
	out, e, err := copyAt(entries, position)
	if err != nil {
		return nil, err
	}

	payload, err := sjson.SetBytes(e.Payload(), path, value)
	if err != nil {
		return nil, fmt.Errorf("set %q on entry %d: %w", path, position, err)
	}

	hash := e.Hash()
	if rehash {
		hash = auditledger.ComputeHash(e.Position(), e.PrevHash(), e.Timestamp(), payload)
	}
	out[position] = auditledger.Restore(e.Position(), e.Timestamp(), payload, e.PrevHash(), hash)
	return out, nil
}

func copyAt(entries []auditledger.Entry, position int) ([]auditledger.Entry, auditledger.Entry, error) {
	if position < 0 || position >= len(entries) {
		return nil, auditledger.Entry{}, fmt.Errorf("position %d: %w", position, auditledger.ErrEntryNotFound)
	}
	out := make([]auditledger.Entry, len(entries))
	copy(out, entries)
	return out, entries[position], nil
}
