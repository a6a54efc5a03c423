package auditledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func openTestSQLite(t *testing.T) (*SQLiteLedger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger", "audit.db")
	l, err := OpenSQLite(context.Background(), path, zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, path
}

func TestSQLite_genesisAndAppend(t *testing.T) {
	ctx := context.Background()
	l, _ := openTestSQLite(t)

	n, err := l.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected genesis only, got %d entries", n)
	}

	e1, err := l.Append(ctx, JSON(map[string]int{"a": 1}))
	if err != nil {
		t.Fatal(err)
	}
	e2, err := l.Append(ctx, JSON(map[string]int{"a": 2}))
	if err != nil {
		t.Fatal(err)
	}
	if e2.PrevHash() != e1.Hash() || e2.Position() != 2 {
		t.Errorf("bad chaining: %+v", e2)
	}

	got, err := l.Get(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Hash() != e1.Hash() || !got.Timestamp().Equal(e1.Timestamp()) {
		t.Errorf("stored entry differs: got %v, want %v", got, e1)
	}

	root, _ := l.Root(ctx)
	if root != e2.Hash() {
		t.Errorf("root: got %q, want %q", root, e2.Hash())
	}

	res, err := l.Verify(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || res.Entries != 3 {
		t.Errorf("expected valid chain of 3, got %+v", res)
	}

	if _, err := l.Get(ctx, 9); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestSQLite_reopenKeepsChain(t *testing.T) {
	ctx := context.Background()
	l, path := openTestSQLite(t)
	e, err := l.Append(ctx, JSON("first"))
	if err != nil {
		t.Fatal(err)
	}
	l.Close()

	reopened, err := OpenSQLite(ctx, path, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	n, _ := reopened.Len(ctx)
	if n != 2 {
		t.Fatalf("expected 2 entries after reopen, got %d", n)
	}
	next, err := reopened.Append(ctx, JSON("second"))
	if err != nil {
		t.Fatal(err)
	}
	if next.PrevHash() != e.Hash() {
		t.Error("append after reopen did not chain to the stored tip")
	}
	if res, _ := reopened.Verify(ctx); !res.Valid {
		t.Errorf("chain invalid after reopen: %+v", res)
	}
}

func TestSQLite_entriesPage(t *testing.T) {
	ctx := context.Background()
	l, _ := openTestSQLite(t)
	for i := 0; i < 4; i++ {
		if _, err := l.Append(ctx, JSON(i)); err != nil {
			t.Fatal(err)
		}
	}

	all, err := l.Entries(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Errorf("expected 5 entries, got %d", len(all))
	}
	page, _ := l.Entries(ctx, 1, 2)
	if len(page) != 2 || page[0].Position() != 1 {
		t.Errorf("unexpected page: %v", page)
	}
}

func TestSQLite_detectsRowTampering(t *testing.T) {
	ctx := context.Background()
	l, _ := openTestSQLite(t)
	l.Append(ctx, JSON(map[string]int{"a": 1})) //nolint:errcheck
	l.Append(ctx, JSON(map[string]int{"a": 2})) //nolint:errcheck

	if _, err := l.db.Exec(`UPDATE audit_ledger SET payload = ? WHERE position = 1`, []byte(`{"a":99}`)); err != nil {
		t.Fatal(err)
	}
	res, err := l.Verify(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.Reason != ReasonHashMismatch || res.Position != 1 || res.Entries != 3 {
		t.Errorf("got %+v, want hash_mismatch at 1 over 3 entries", res)
	}

	// Rehash the edited row: the break surfaces one position later.
	e, _ := l.Get(ctx, 1)
	if _, err := l.db.Exec(`UPDATE audit_ledger SET hash = ? WHERE position = 1`, e.Recompute()); err != nil {
		t.Fatal(err)
	}
	res, _ = l.Verify(ctx)
	if res.Valid || res.Reason != ReasonBrokenLink || res.Position != 2 || res.Entries != 3 {
		t.Errorf("got %+v, want broken_link at 2 over 3 entries", res)
	}
}

func TestSQLite_rejectsUnserializablePayload(t *testing.T) {
	ctx := context.Background()
	l, _ := openTestSQLite(t)
	if _, err := l.Append(ctx, Raw([]byte("not json"))); !errors.Is(err, ErrSerialization) {
		t.Errorf("expected ErrSerialization, got %v", err)
	}
	if n, _ := l.Len(ctx); n != 1 {
		t.Errorf("chain grew after failed append: %d", n)
	}
}
