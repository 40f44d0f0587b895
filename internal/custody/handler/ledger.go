package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ChainOfCustody/internal/custody/service"
	"go.uber.org/zap"
)

// LedgerHandler exposes read-only HTTP endpoints for the history log chain.
type LedgerHandler struct {
	query  *service.QueryService
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(query *service.QueryService, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{query: query, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
	}
}

// Overview handles GET /ledger: returns the entry count and current root hash.
func (h *LedgerHandler) Overview(c *gin.Context) {
	ov, err := h.query.LedgerOverview(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger overview", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger", "code": CodeInternal})
		return
	}
	c.JSON(http.StatusOK, ov)
}

// Verify handles GET /ledger/verify: walks the full chain and reports integrity.
func (h *LedgerHandler) Verify(c *gin.Context) {
	res, err := h.query.VerifyLedger(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger verify", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger", "code": CodeInternal})
		return
	}
	c.JSON(http.StatusOK, res)
}
