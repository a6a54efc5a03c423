package decision_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/jmerrifield20/ethosguard/internal/auditledger"
	"github.com/jmerrifield20/ethosguard/internal/decision"
	"go.uber.org/zap"
)

var ctx = context.Background()

func sampleDecision() decision.Decision {
	return decision.Decision{
		ModelID:  "risk_v1",
		Features: []float64{0.8, 0.2},
		Output:   0.95,
		Outcome:  "approved",
	}
}

func TestRecord_assignsIDAndAppends(t *testing.T) {
	ledger := auditledger.New()
	rec := decision.NewRecorder(ledger, zap.NewNop())

	calls := 0
	rec.SetMetricsRecorder(func() { calls++ })

	d, entry, err := rec.Record(ctx, sampleDecision())
	if err != nil {
		t.Fatal(err)
	}
	if d.ID == uuid.Nil {
		t.Error("expected a decision ID to be assigned")
	}
	if entry.Position() != 1 {
		t.Errorf("expected position 1, got %d", entry.Position())
	}
	if calls != 1 {
		t.Errorf("expected metrics callback once, got %d", calls)
	}

	res, _ := ledger.Verify(ctx)
	if !res.Valid {
		t.Errorf("ledger invalid after record: %+v", res)
	}
}

func TestRecord_keepsProvidedID(t *testing.T) {
	rec := decision.NewRecorder(auditledger.New(), zap.NewNop())
	in := sampleDecision()
	in.ID = uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")

	d, _, err := rec.Record(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	if d.ID != in.ID {
		t.Errorf("ID changed: got %s", d.ID)
	}
}

func TestRecord_rejectsInvalid(t *testing.T) {
	ledger := auditledger.New()
	rec := decision.NewRecorder(ledger, zap.NewNop())

	cases := map[string]func(*decision.Decision){
		"missing model":   func(d *decision.Decision) { d.ModelID = " " },
		"missing outcome": func(d *decision.Decision) { d.Outcome = "" },
		"nan output":      func(d *decision.Decision) { d.Output = math.NaN() },
		"inf feature":     func(d *decision.Decision) { d.Features = []float64{math.Inf(1)} },
	}
	for name, mutate := range cases {
		d := sampleDecision()
		mutate(&d)
		if _, _, err := rec.Record(ctx, d); !errors.Is(err, decision.ErrInvalidDecision) {
			t.Errorf("%s: expected ErrInvalidDecision, got %v", name, err)
		}
	}

	if n, _ := ledger.Len(ctx); n != 1 {
		t.Errorf("invalid decisions reached the ledger: len=%d", n)
	}
}

func TestLookup_roundTrip(t *testing.T) {
	rec := decision.NewRecorder(auditledger.New(), zap.NewNop())
	in := sampleDecision()
	in.Metadata = map[string]string{"region": "eu", "channel": "web"}

	recorded, entry, err := rec.Record(ctx, in)
	if err != nil {
		t.Fatal(err)
	}

	got, gotEntry, err := rec.Lookup(ctx, entry.Position())
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != recorded.ID || got.Outcome != "approved" || got.Metadata["region"] != "eu" {
		t.Errorf("decoded decision differs: %+v", got)
	}
	if gotEntry.Hash() != entry.Hash() {
		t.Error("lookup returned a different entry")
	}
}

func TestLookup_genesisIsNotADecision(t *testing.T) {
	rec := decision.NewRecorder(auditledger.New(), zap.NewNop())
	if _, _, err := rec.Lookup(ctx, 0); !errors.Is(err, decision.ErrNotDecision) {
		t.Errorf("expected ErrNotDecision, got %v", err)
	}
	if _, _, err := rec.Lookup(ctx, 3); !errors.Is(err, auditledger.ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestCanonicalJSON_mapOrderIndependent(t *testing.T) {
	d := sampleDecision()
	d.ID = uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	d.Metadata = map[string]string{"z": "1", "a": "2", "m": "3"}

	first, err := d.CanonicalJSON()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		again, _ := d.CanonicalJSON()
		if string(again) != string(first) {
			t.Fatalf("canonical encoding not stable: %s vs %s", first, again)
		}
	}
}
