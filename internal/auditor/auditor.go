// Package auditor periodically re-verifies an audit ledger and reports
// integrity failures. It never repairs anything.
package auditor

import (
	"context"
	"sync"
	"time"

	"github.com/jmerrifield20/ethosguard/internal/auditledger"
	"go.uber.org/zap"
)

// Config holds auditor configuration.
type Config struct {
	Interval time.Duration
}

// ResultFunc is an optional callback invoked after every verification run.
type ResultFunc func(res auditledger.Result)

// Auditor runs Verify on a fixed interval.
type Auditor struct {
	ledger   auditledger.Ledger
	cfg      Config
	onResult ResultFunc
	logger   *zap.Logger

	mu      sync.RWMutex
	last    auditledger.Result
	lastAt  time.Time
	checked bool
}

// New creates an Auditor for ledger.
func New(ledger auditledger.Ledger, cfg Config, logger *zap.Logger) *Auditor {
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	return &Auditor{ledger: ledger, cfg: cfg, logger: logger}
}

// SetResultCallback configures the per-run callback.
func (a *Auditor) SetResultCallback(fn ResultFunc) {
	a.onResult = fn
}

// Start runs an immediate check, then one per interval until ctx is done.
func (a *Auditor) Start(ctx context.Context) {
	a.logger.Info("ledger auditor started", zap.Duration("interval", a.cfg.Interval))

	a.Check(ctx)

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("ledger auditor stopped")
			return
		case <-ticker.C:
			a.Check(ctx)
		}
	}
}

// Check verifies the ledger once. A read failure is logged and leaves the
// previous result in place.
func (a *Auditor) Check(ctx context.Context) (auditledger.Result, error) {
	res, err := a.ledger.Verify(ctx)
	if err != nil {
		a.logger.Error("ledger verification could not run", zap.Error(err))
		return auditledger.Result{}, err
	}

	a.mu.Lock()
	a.last = res
	a.lastAt = time.Now().UTC()
	a.checked = true
	a.mu.Unlock()

	if res.Valid {
		a.logger.Debug("audit ledger is valid and untampered", zap.Int("entries", res.Entries))
	} else {
		a.logger.Warn("audit ledger integrity breach",
			zap.String("reason", string(res.Reason)),
			zap.Int("position", res.Position),
		)
	}
	if a.onResult != nil {
		a.onResult(res)
	}
	return res, nil
}

// Last returns the most recent result and when it was taken. ok is false
// until the first successful check.
func (a *Auditor) Last() (res auditledger.Result, at time.Time, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last, a.lastAt, a.checked
}
