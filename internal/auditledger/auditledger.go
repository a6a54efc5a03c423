// Package auditledger implements a tamper-evident, append-only hash chain of
// audit records.
//
// The chain begins with a genesis entry whose PrevHash equals GenesisPrevHash
// (64 hex zeros). Every subsequent entry stores the SHA-256 of its
// predecessor, and its own hash covers its position, that backward reference,
// its timestamp and its canonical payload. Retroactive edits are therefore
// detected by Verify, either as a hash mismatch on the edited entry or as a
// broken link on the entry after it.
//
// Three implementations of the Ledger interface are provided:
//   - MemoryLedger: in-process, for tests, demos and offline checks.
//   - SQLiteLedger: single-file durable storage for one process.
//   - PostgresLedger: durable, for production use.
package auditledger
