package auditledger

import (
	"errors"
	"fmt"
)

// Reason classifies a verification failure.
type Reason string

const (
	// ReasonHashMismatch means an entry's stored hash does not match its
	// recomputed hash: its content or its hash was edited.
	ReasonHashMismatch Reason = "hash_mismatch"
	// ReasonBrokenLink means an entry's previous hash no longer matches the
	// stored hash of its predecessor: the predecessor was edited and rehashed.
	ReasonBrokenLink Reason = "broken_link"
)

var (
	// ErrHashMismatch matches an *IntegrityError with ReasonHashMismatch.
	ErrHashMismatch = errors.New("auditledger: entry hash mismatch")
	// ErrBrokenLink matches an *IntegrityError with ReasonBrokenLink.
	ErrBrokenLink = errors.New("auditledger: hash chain broken")
)

// Result is the outcome of a verification run.
type Result struct {
	Valid    bool   `json:"valid"`
	Reason   Reason `json:"reason,omitempty"`
	Position int    `json:"position,omitempty"`
	Entries  int    `json:"entries"` // chain length, also on failure
}

// Err returns nil for a valid result and an *IntegrityError otherwise.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &IntegrityError{Reason: r.Reason, Position: r.Position}
}

// IntegrityError describes where and how a chain failed verification.
type IntegrityError struct {
	Reason   Reason
	Position int
}

func (e *IntegrityError) Error() string {
	switch e.Reason {
	case ReasonBrokenLink:
		return fmt.Sprintf("hash chain broken at position %d", e.Position)
	default:
		return fmt.Sprintf("entry %d has invalid hash", e.Position)
	}
}

// Is lets errors.Is match ErrHashMismatch and ErrBrokenLink.
func (e *IntegrityError) Is(target error) bool {
	switch target {
	case ErrHashMismatch:
		return e.Reason == ReasonHashMismatch
	case ErrBrokenLink:
		return e.Reason == ReasonBrokenLink
	}
	return false
}

// verifier checks entries one at a time, keeping only the previous entry, so
// durable backends can stream rows through it. Entries after the first
// failure are counted but not checked.
type verifier struct {
	prev    Entry
	n       int
	failure *Result
}

// next feeds the entry at sequence index v.n.
func (v *verifier) next(curr Entry) {
	i := v.n
	v.n++
	if v.failure != nil {
		return
	}
	if i == 0 {
		// Genesis is the root of trust; nothing to link to.
		v.prev = curr
		return
	}
	if curr.Recompute() != curr.hash {
		v.failure = &Result{Reason: ReasonHashMismatch, Position: i}
		return
	}
	if curr.prevHash != v.prev.hash {
		v.failure = &Result{Reason: ReasonBrokenLink, Position: i}
		return
	}
	v.prev = curr
}

func (v *verifier) result() Result {
	if v.failure != nil {
		r := *v.failure
		r.Entries = v.n
		return r
	}
	return Result{Valid: true, Entries: v.n}
}

// VerifyChain checks a sequence of entries. Position 0 is trusted; every
// later entry must carry its own recomputed hash and link to its
// predecessor's stored hash. Positions in the result are sequence indexes;
// Entries is always the full length of the chain.
func VerifyChain(entries []Entry) Result {
	var v verifier
	for _, e := range entries {
		v.next(e)
	}
	return v.result()
}
