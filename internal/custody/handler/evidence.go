package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
	"github.com/jmerrifield20/ChainOfCustody/internal/custody/service"
	"github.com/jmerrifield20/ChainOfCustody/internal/historylog"
	"github.com/jmerrifield20/ChainOfCustody/internal/identity"
	"go.uber.org/zap"
)

// EvidenceHandler serves the evidence lifecycle and case queries.
type EvidenceHandler struct {
	evidence *service.EvidenceService
	query    *service.QueryService
	tokens   *identity.CallerTokenIssuer // nil = X-Caller-Identity header mode
	logger   *zap.Logger
}

// NewEvidenceHandler creates a new EvidenceHandler.
func NewEvidenceHandler(evidence *service.EvidenceService, query *service.QueryService, tokens *identity.CallerTokenIssuer, logger *zap.Logger) *EvidenceHandler {
	return &EvidenceHandler{evidence: evidence, query: query, tokens: tokens, logger: logger}
}

// Register mounts the evidence and case routes on the given router group.
func (h *EvidenceHandler) Register(rg *gin.RouterGroup) {
	caller := identity.RequireCaller(h.tokens)

	ev := rg.Group("/evidence")
	{
		ev.POST("", caller, h.Add)
		ev.GET("/:itemId", h.Get)
		ev.GET("/:itemId/history", h.History)
		ev.POST("/:itemId/checkout", caller, h.Checkout)
		ev.POST("/:itemId/checkin", caller, h.Checkin)
		ev.POST("/:itemId/remove", caller, h.Remove)
	}

	cs := rg.Group("/cases")
	{
		cs.GET("", h.ListCases)
		cs.GET("/:caseId/items", h.ListItems)
	}
}

type addEvidenceRequest struct {
	CaseID string `json:"case_id"`
	ItemID string `json:"item_id"`
}

type removeEvidenceRequest struct {
	Reason     string `json:"reason"`
	ReleasedTo string `json:"released_to"`
}

// Add handles POST /evidence.
func (h *EvidenceHandler) Add(c *gin.Context) {
	var req addEvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	entry, err := h.evidence.AddEvidence(c.Request.Context(), identity.CallerFromCtx(c),
		strings.TrimSpace(req.CaseID), strings.TrimSpace(req.ItemID))
	h.respond(c, model.ActionAdd, http.StatusCreated, entry, err)
}

// Checkout handles POST /evidence/:itemId/checkout.
func (h *EvidenceHandler) Checkout(c *gin.Context) {
	entry, err := h.evidence.CheckoutEvidence(c.Request.Context(), identity.CallerFromCtx(c), c.Param("itemId"))
	h.respond(c, model.ActionCheckout, http.StatusOK, entry, err)
}

// Checkin handles POST /evidence/:itemId/checkin.
func (h *EvidenceHandler) Checkin(c *gin.Context) {
	entry, err := h.evidence.CheckinEvidence(c.Request.Context(), identity.CallerFromCtx(c), c.Param("itemId"))
	h.respond(c, model.ActionCheckin, http.StatusOK, entry, err)
}

// Remove handles POST /evidence/:itemId/remove.
func (h *EvidenceHandler) Remove(c *gin.Context) {
	var req removeEvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	// Unknown reasons go through unchanged so the service reports them after
	// the authorization check.
	reason, ok := model.ParseRemovalReason(req.Reason)
	if !ok {
		reason = model.RemovalReason(strings.ToUpper(strings.TrimSpace(req.Reason)))
	}

	entry, err := h.evidence.RemoveEvidence(c.Request.Context(), identity.CallerFromCtx(c),
		c.Param("itemId"), reason, req.ReleasedTo)
	h.respond(c, model.ActionRemove, http.StatusOK, entry, err)
}

func (h *EvidenceHandler) respond(c *gin.Context, action model.Action, status int, entry *historylog.Entry, err error) {
	RecordTransition(action, err)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(status, gin.H{"entry": entry})
}

// Get handles GET /evidence/:itemId.
func (h *EvidenceHandler) Get(c *gin.Context) {
	item, err := h.query.CurrentState(c.Request.Context(), c.Param("itemId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// History handles GET /evidence/:itemId/history.
func (h *EvidenceHandler) History(c *gin.Context) {
	entries, err := h.query.HistoryOf(c.Request.Context(), c.Param("itemId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// ListCases handles GET /cases.
func (h *EvidenceHandler) ListCases(c *gin.Context) {
	cases, err := h.query.ListCases(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cases": cases, "count": len(cases)})
}

// ListItems handles GET /cases/:caseId/items.
func (h *EvidenceHandler) ListItems(c *gin.Context) {
	items, err := h.query.ItemsInCase(c.Request.Context(), c.Param("caseId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}
