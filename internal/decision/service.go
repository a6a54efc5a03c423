package decision

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmerrifield20/ethosguard/internal/auditledger"
	"go.uber.org/zap"
)

// MetricsRecordFunc is an optional callback invoked after each successful
// append.
type MetricsRecordFunc func()

// Recorder validates decisions and appends them to a ledger.
type Recorder struct {
	ledger    auditledger.Ledger
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// NewRecorder creates a Recorder writing to ledger.
func NewRecorder(ledger auditledger.Ledger, logger *zap.Logger) *Recorder {
	return &Recorder{ledger: ledger, logger: logger}
}

// SetMetricsRecorder configures the metrics callback.
func (r *Recorder) SetMetricsRecorder(fn MetricsRecordFunc) {
	r.onMetrics = fn
}

// Record assigns an ID when missing, validates d and appends it. The
// returned decision carries the assigned ID.
func (r *Recorder) Record(ctx context.Context, d Decision) (Decision, auditledger.Entry, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if err := d.Validate(); err != nil {
		return Decision{}, auditledger.Entry{}, err
	}

	entry, err := r.ledger.Append(ctx, d)
	if err != nil {
		return Decision{}, auditledger.Entry{}, fmt.Errorf("append decision: %w", err)
	}
	if r.onMetrics != nil {
		r.onMetrics()
	}

	r.logger.Info("decision logged and signed",
		zap.Int("position", entry.Position()),
		zap.String("hash", entry.Hash()),
		zap.String("decision_id", d.ID.String()),
		zap.String("model_id", d.ModelID),
		zap.String("outcome", d.Outcome),
	)
	return d, entry, nil
}

// Lookup returns the decision stored at position together with its entry.
func (r *Recorder) Lookup(ctx context.Context, position int) (Decision, auditledger.Entry, error) {
	entry, err := r.ledger.Get(ctx, position)
	if err != nil {
		return Decision{}, auditledger.Entry{}, err
	}
	d, err := FromEntry(entry)
	if err != nil {
		return Decision{}, auditledger.Entry{}, err
	}
	return d, entry, nil
}
