package auditledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Payload is a value with a deterministic JSON encoding. Two calls on equal
// values must return identical bytes.
type Payload interface {
	CanonicalJSON() ([]byte, error)
}

// JSON wraps an arbitrary Go value as a Payload. The value is marshalled with
// encoding/json and then canonicalized, so map key order never leaks into
// the hash.
func JSON(v any) Payload { return jsonPayload{v: v} }

// Raw wraps already-encoded JSON as a Payload. The bytes are canonicalized
// on use.
func Raw(data []byte) Payload { return rawPayload(bytes.Clone(data)) }

type jsonPayload struct{ v any }

func (p jsonPayload) CanonicalJSON() ([]byte, error) {
	data, err := json.Marshal(p.v)
	if err != nil {
		return nil, err
	}
	return Canonicalize(data)
}

type rawPayload []byte

func (p rawPayload) CanonicalJSON() ([]byte, error) { return Canonicalize(p) }

// Canonicalize re-encodes a JSON document with sorted object keys, no
// insignificant whitespace and number literals preserved verbatim. Input
// that is not valid UTF-8 is rejected rather than coerced.
func Canonicalize(data []byte) ([]byte, error) {
	if !utf8.Valid(data) {
		return nil, errors.New("json is not valid UTF-8")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after json value")
	}
	return json.Marshal(v)
}

func encode(p Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrSerialization)
	}
	data, err := p.CanonicalJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return data, nil
}

// IsGenesisPayload reports whether data is the well-known genesis marker.
func IsGenesisPayload(data []byte) bool {
	return bytes.Equal(data, genesisPayload)
}
