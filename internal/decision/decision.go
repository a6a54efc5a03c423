// Package decision records machine-generated decisions in the audit ledger.
package decision

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/jmerrifield20/ethosguard/internal/auditledger"
)

var (
	// ErrInvalidDecision is returned by Validate and Recorder.Record for a
	// decision missing required fields or carrying non-finite numbers.
	ErrInvalidDecision = errors.New("invalid decision")
	// ErrNotDecision is returned when an entry's payload is not a decision,
	// e.g. the genesis entry.
	ErrNotDecision = errors.New("entry does not hold a decision")
)

// Decision is a single model prediction and its outcome, e.g. a credit-risk
// score and the resulting approval.
type Decision struct {
	ID           uuid.UUID         `json:"decision_id"`
	ModelID      string            `json:"model_id"`
	ModelVersion string            `json:"model_version,omitempty"`
	Subject      string            `json:"subject,omitempty"`
	Features     []float64         `json:"features"`
	Output       float64           `json:"output"`
	Outcome      string            `json:"outcome"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// CanonicalJSON implements auditledger.Payload.
func (d Decision) CanonicalJSON() ([]byte, error) {
	if d.Features == nil {
		d.Features = []float64{}
	}
	return auditledger.JSON(d).CanonicalJSON()
}

// Validate checks the fields every recorded decision must carry.
func (d Decision) Validate() error {
	if strings.TrimSpace(d.ModelID) == "" {
		return fmt.Errorf("%w: model_id is required", ErrInvalidDecision)
	}
	if strings.TrimSpace(d.Outcome) == "" {
		return fmt.Errorf("%w: outcome is required", ErrInvalidDecision)
	}
	if !finite(d.Output) {
		return fmt.Errorf("%w: output must be finite", ErrInvalidDecision)
	}
	for i, f := range d.Features {
		if !finite(f) {
			return fmt.Errorf("%w: feature %d must be finite", ErrInvalidDecision, i)
		}
	}
	return nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// FromEntry decodes the decision stored in e.
func FromEntry(e auditledger.Entry) (Decision, error) {
	if e.IsGenesis() || auditledger.IsGenesisPayload(e.Payload()) {
		return Decision{}, ErrNotDecision
	}
	var d Decision
	if err := e.Decode(&d); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrNotDecision, err)
	}
	if d.ID == uuid.Nil || d.ModelID == "" {
		return Decision{}, ErrNotDecision
	}
	return d, nil
}
