//go:build integration

package auditledger_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/ethosguard/internal/auditledger"
	"go.uber.org/zap"
)

func setupPostgres(t *testing.T) *auditledger.PostgresLedger {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect to postgres: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}

	pool.Exec(ctx, "DROP TABLE IF EXISTS audit_ledger") //nolint:errcheck

	l := auditledger.NewPostgresLedger(pool, zap.NewNop())
	if err := l.Init(ctx); err != nil {
		t.Fatalf("init ledger: %v", err)
	}
	return l
}

func TestPostgres_appendAndVerify(t *testing.T) {
	l := setupPostgres(t)

	e1, err := l.Append(ctx, auditledger.JSON(map[string]int{"a": 1}))
	if err != nil {
		t.Fatal(err)
	}
	e2, err := l.Append(ctx, auditledger.JSON(map[string]int{"a": 2}))
	if err != nil {
		t.Fatal(err)
	}
	if e2.PrevHash() != e1.Hash() {
		t.Error("chain broken between appends")
	}

	stored, err := l.Get(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Recompute() != e1.Hash() {
		t.Error("stored entry does not hash like the appended one")
	}

	res, err := l.Verify(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || res.Entries != 3 {
		t.Errorf("expected valid chain of 3, got %+v", res)
	}
}

func TestPostgres_initIsIdempotent(t *testing.T) {
	l := setupPostgres(t)
	if err := l.Init(ctx); err != nil {
		t.Fatal(err)
	}
	n, _ := l.Len(ctx)
	if n != 1 {
		t.Errorf("expected a single genesis entry, got %d", n)
	}
}
