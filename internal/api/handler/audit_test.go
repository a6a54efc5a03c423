package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ethosguard/internal/api/handler"
	"github.com/jmerrifield20/ethosguard/internal/auditledger"
	"github.com/jmerrifield20/ethosguard/internal/auditledger/tamper"
	"github.com/jmerrifield20/ethosguard/internal/auditor"
	"go.uber.org/zap"
)

func setupAuditRouter(t *testing.T, aud *auditor.Auditor) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler.NewAuditHandler(aud).Register(r.Group("/api/v1"))
	return r
}

func TestAuditLast_beforeFirstCheck(t *testing.T) {
	aud := auditor.New(auditledger.New(), auditor.Config{}, zap.NewNop())
	router := setupAuditRouter(t, aud)

	w := get(t, router, "/api/v1/ledger/audit")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decode(t, w); resp["checked"] != false {
		t.Errorf("expected checked=false, got %v", resp)
	}
}

func TestAuditLast_reportsFinding(t *testing.T) {
	src := seededLedger(t)
	entries, _ := src.Entries(context.Background(), 0, 0)
	forged, _ := tamper.EditPayload(entries, 1, "a", 99)
	loaded, err := auditledger.Load(forged)
	if err != nil {
		t.Fatal(err)
	}

	aud := auditor.New(loaded, auditor.Config{}, zap.NewNop())
	if _, err := aud.Check(context.Background()); err != nil {
		t.Fatal(err)
	}
	router := setupAuditRouter(t, aud)

	resp := decode(t, get(t, router, "/api/v1/ledger/audit"))
	if resp["checked"] != true {
		t.Fatalf("expected checked=true, got %v", resp)
	}
	res := resp["result"].(map[string]any)
	if res["valid"] != false || res["reason"] != string(auditledger.ReasonHashMismatch) {
		t.Errorf("unexpected result: %v", res)
	}
	if int(res["entries"].(float64)) != 3 {
		t.Errorf("expected full chain length 3, got %v", res["entries"])
	}
}
