package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ethosguard/internal/auditledger"
	"github.com/jmerrifield20/ethosguard/internal/decision"
	"github.com/jmerrifield20/ethosguard/internal/identity"
	"go.uber.org/zap"
)

type decisionRecorder interface {
	Record(ctx context.Context, d decision.Decision) (decision.Decision, auditledger.Entry, error)
	Lookup(ctx context.Context, position int) (decision.Decision, auditledger.Entry, error)
}

// DecisionHandler accepts decisions from producers and serves them back.
type DecisionHandler struct {
	recorder decisionRecorder
	tokens   *identity.TokenIssuer // nil = unauthenticated writes
	logger   *zap.Logger
}

// NewDecisionHandler creates a new DecisionHandler. tokens may be nil to
// disable producer authentication.
func NewDecisionHandler(recorder decisionRecorder, tokens *identity.TokenIssuer, logger *zap.Logger) *DecisionHandler {
	return &DecisionHandler{recorder: recorder, tokens: tokens, logger: logger}
}

// Register mounts the decision routes on the given router group.
func (h *DecisionHandler) Register(rg *gin.RouterGroup) {
	d := rg.Group("/decisions")
	{
		d.POST("", identity.RequireScope(h.tokens, identity.ScopeAppend), h.Record)
		d.GET("/:idx", h.Get)
	}
}

// DecisionResponse is the body returned for a recorded or fetched decision.
type DecisionResponse struct {
	Decision decision.Decision `json:"decision"`
	Entry    auditledger.Entry `json:"entry"`
}

// Record handles POST /decisions.
func (h *DecisionHandler) Record(c *gin.Context) {
	var in decision.Decision
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	d, entry, err := h.recorder.Record(c.Request.Context(), in)
	switch {
	case errors.Is(err, decision.ErrInvalidDecision), errors.Is(err, auditledger.ErrSerialization):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("record decision", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record decision"})
		return
	}

	h.logger.Debug("decision accepted",
		zap.String("producer", identity.ProducerFromCtx(c)),
		zap.Int("position", entry.Position()),
	)
	c.JSON(http.StatusCreated, DecisionResponse{Decision: d, Entry: entry})
}

// Get handles GET /decisions/:idx.
func (h *DecisionHandler) Get(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be a non-negative integer"})
		return
	}

	d, entry, err := h.recorder.Lookup(c.Request.Context(), idx)
	switch {
	case errors.Is(err, auditledger.ErrEntryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	case errors.Is(err, decision.ErrNotDecision):
		c.JSON(http.StatusNotFound, gin.H{"error": "entry does not hold a decision"})
		return
	case err != nil:
		h.logger.Error("lookup decision", zap.Int("position", idx), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}
	c.JSON(http.StatusOK, DecisionResponse{Decision: d, Entry: entry})
}
