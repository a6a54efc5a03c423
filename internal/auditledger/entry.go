package auditledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// GenesisPrevHash is the sentinel backward reference of the genesis entry.
const GenesisPrevHash = "0000000000000000000000000000000000000000000000000000000000000000"

// GenesisMessage is recorded in the genesis payload.
const GenesisMessage = "Genesis Block: EthosGuard Ledger Initialized"

// TimestampResolution is the precision timestamps are truncated to before
// hashing. Every backend stores at least this precision.
const TimestampResolution = time.Millisecond

var genesisPayload = []byte(`{"genesis":true,"message":"` + GenesisMessage + `"}`)

// Entry is a single record in the audit ledger. Its fields are set once at
// construction; accessors hand out copies.
type Entry struct {
	position  int
	timestamp time.Time
	payload   []byte
	prevHash  string
	hash      string
}

// NewEntry serializes payload canonically and builds an entry whose hash is
// computed immediately.
func NewEntry(position int, timestamp time.Time, payload Payload, prevHash string) (Entry, error) {
	if position < 0 {
		return Entry{}, fmt.Errorf("negative position %d", position)
	}
	data, err := encode(payload)
	if err != nil {
		return Entry{}, err
	}
	return newEntry(position, timestamp, data, prevHash), nil
}

// NewGenesis builds the position-0 entry anchoring a chain.
func NewGenesis(timestamp time.Time) Entry {
	return newEntry(0, timestamp, genesisPayload, GenesisPrevHash)
}

// Restore rebuilds an entry from stored fields without recomputing its hash.
// Storage backends and export decoding use it; the result is only as
// trustworthy as Verify says it is.
func Restore(position int, timestamp time.Time, payload []byte, prevHash, hash string) Entry {
	return Entry{
		position:  position,
		timestamp: timestamp.UTC(),
		payload:   bytes.Clone(payload),
		prevHash:  prevHash,
		hash:      hash,
	}
}

func newEntry(position int, timestamp time.Time, payload []byte, prevHash string) Entry {
	ts := timestamp.UTC().Truncate(TimestampResolution)
	return Entry{
		position:  position,
		timestamp: ts,
		payload:   payload,
		prevHash:  prevHash,
		hash:      ComputeHash(position, prevHash, ts, payload),
	}
}

// ComputeHash returns the hex SHA-256 digest over position, previous hash,
// timestamp and payload, in that order.
func ComputeHash(position int, prevHash string, timestamp time.Time, payload []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|", position, prevHash, timestamp.UTC().Format(time.RFC3339Nano))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Position is the zero-based sequence number.
func (e Entry) Position() int { return e.position }

// Timestamp is the UTC creation time.
func (e Entry) Timestamp() time.Time { return e.timestamp }

// Payload returns a copy of the canonical payload bytes.
func (e Entry) Payload() json.RawMessage { return bytes.Clone(e.payload) }

// PrevHash is the hash of the preceding entry.
func (e Entry) PrevHash() string { return e.prevHash }

// Hash is the stored hash of this entry.
func (e Entry) Hash() string { return e.hash }

// IsGenesis reports whether e sits at position 0.
func (e Entry) IsGenesis() bool { return e.position == 0 }

// Recompute returns the hash e should carry given its other fields.
func (e Entry) Recompute() string {
	return ComputeHash(e.position, e.prevHash, e.timestamp, e.payload)
}

// Decode unmarshals the payload into v.
func (e Entry) Decode(v any) error {
	if err := json.Unmarshal(e.payload, v); err != nil {
		return fmt.Errorf("decode payload of entry %d: %w", e.position, err)
	}
	return nil
}

type entryJSON struct {
	Position  int             `json:"position"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	PrevHash  string          `json:"previous_hash"`
	Hash      string          `json:"hash"`
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		Position:  e.position,
		Timestamp: e.timestamp,
		Payload:   e.payload,
		PrevHash:  e.prevHash,
		Hash:      e.hash,
	})
}

// UnmarshalJSON implements json.Unmarshaler. The decoded entry keeps the
// stored hash as-is; whitespace inside the payload is removed.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w entryJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	// Indented exports must still hash like the stored canonical bytes.
	var payload bytes.Buffer
	if len(w.Payload) > 0 {
		if err := json.Compact(&payload, w.Payload); err != nil {
			return fmt.Errorf("compact payload of entry %d: %w", w.Position, err)
		}
	}
	*e = Restore(w.Position, w.Timestamp, payload.Bytes(), w.PrevHash, w.Hash)
	return nil
}

func (e Entry) clone() Entry {
	e.payload = bytes.Clone(e.payload)
	return e
}
