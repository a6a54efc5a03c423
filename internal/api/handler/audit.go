package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ethosguard/internal/auditledger"
)

type auditStatus interface {
	Last() (auditledger.Result, time.Time, bool)
}

// AuditHandler serves the background auditor's most recent finding.
type AuditHandler struct {
	auditor auditStatus
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(auditor auditStatus) *AuditHandler {
	return &AuditHandler{auditor: auditor}
}

// Register mounts GET /ledger/audit on the given router group.
func (h *AuditHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/ledger/audit", h.Last)
}

// Last handles GET /ledger/audit. Before the first completed check it
// returns checked=false.
func (h *AuditHandler) Last(c *gin.Context) {
	res, at, ok := h.auditor.Last()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"checked": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"checked":    true,
		"checked_at": at,
		"result":     res,
	})
}
