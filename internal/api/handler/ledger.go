package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ethosguard/internal/auditledger"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// LedgerHandler exposes read-only HTTP endpoints for the audit ledger.
type LedgerHandler struct {
	ledger auditledger.Ledger
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledger auditledger.Ledger, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
		l.GET("/entries", h.ListEntries)
		l.GET("/entries/:idx", h.GetEntry)
		l.GET("/entries/:idx/payload", h.GetPayloadField)
	}
}

// Overview handles GET /ledger. Returns the chain length and current root hash.
func (h *LedgerHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.ledger.Len(ctx)
	if err != nil {
		h.logger.Error("ledger Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}

	root, err := h.ledger.Root(ctx)
	if err != nil {
		h.logger.Error("ledger Root", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger root"})
		return
	}

	SetLedgerLength(count)
	c.JSON(http.StatusOK, gin.H{
		"entries": count,
		"root":    root,
	})
}

// Verify handles GET /ledger/verify. Walks the full chain and reports integrity.
// An integrity failure is a finding, not a server error, so it is a 200.
func (h *LedgerHandler) Verify(c *gin.Context) {
	res, err := h.ledger.Verify(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger Verify", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read ledger"})
		return
	}

	RecordVerification(res.Valid)
	if !res.Valid {
		h.logger.Warn("ledger integrity check failed",
			zap.String("reason", string(res.Reason)),
			zap.Int("position", res.Position),
		)
	}
	c.JSON(http.StatusOK, res)
}

// ListEntries handles GET /ledger/entries?from=&limit=: one page of the export.
func (h *LedgerHandler) ListEntries(c *gin.Context) {
	from, err := queryInt(c, "from", 0)
	if err != nil || from < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be a non-negative integer"})
		return
	}
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil || limit < 1 || limit > maxPageSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
		return
	}

	entries, err := h.ledger.Entries(c.Request.Context(), from, limit)
	if err != nil {
		h.logger.Error("ledger Entries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}
	if entries == nil {
		entries = []auditledger.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"from":    from,
		"count":   len(entries),
		"entries": entries,
	})
}

// GetEntry handles GET /ledger/entries/:idx. Returns a single ledger entry.
func (h *LedgerHandler) GetEntry(c *gin.Context) {
	entry, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, entry)
}

// GetPayloadField handles GET /ledger/entries/:idx/payload?path=. It extracts a
// single value from an entry's payload using gjson path syntax. An empty
// path returns the whole payload.
func (h *LedgerHandler) GetPayloadField(c *gin.Context) {
	entry, ok := h.lookup(c)
	if !ok {
		return
	}

	path := c.Query("path")
	if path == "" {
		c.Data(http.StatusOK, "application/json; charset=utf-8", entry.Payload())
		return
	}

	value := gjson.GetBytes(entry.Payload(), path)
	c.JSON(http.StatusOK, gin.H{
		"position": entry.Position(),
		"path":     path,
		"exists":   value.Exists(),
		"value":    value.Value(),
	})
}

func (h *LedgerHandler) lookup(c *gin.Context) (auditledger.Entry, bool) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be a non-negative integer"})
		return auditledger.Entry{}, false
	}

	entry, err := h.ledger.Get(c.Request.Context(), idx)
	if errors.Is(err, auditledger.ErrEntryNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return auditledger.Entry{}, false
	}
	if err != nil {
		h.logger.Error("ledger Get", zap.Int("position", idx), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return auditledger.Entry{}, false
	}
	return entry, true
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	s := c.Query(key)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
