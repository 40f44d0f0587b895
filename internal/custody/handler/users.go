package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
	"github.com/jmerrifield20/ChainOfCustody/internal/custody/service"
	"github.com/jmerrifield20/ChainOfCustody/internal/identity"
	"go.uber.org/zap"
)

// UserHandler exposes the authorization registry.
type UserHandler struct {
	registry *service.Registry
	tokens   *identity.CallerTokenIssuer
	logger   *zap.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(registry *service.Registry, tokens *identity.CallerTokenIssuer, logger *zap.Logger) *UserHandler {
	return &UserHandler{registry: registry, tokens: tokens, logger: logger}
}

// Register mounts the registry routes on the given router group.
func (h *UserHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/admin", h.Admin)

	u := rg.Group("/users")
	{
		u.POST("", identity.RequireCaller(h.tokens), h.Authorize)
		u.GET("", h.List)
		u.GET("/:identity", h.Check)
	}
}

// Admin handles GET /admin.
func (h *UserHandler) Admin(c *gin.Context) {
	admin, err := h.registry.Admin(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admin": admin})
}

type authorizeRequest struct {
	Identity string `json:"identity"`
}

// Authorize handles POST /users. Only the admin may call it.
func (h *UserHandler) Authorize(c *gin.Context) {
	var req authorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	target := model.Identity(strings.TrimSpace(req.Identity))
	if err := h.registry.AddAuthorizedUser(c.Request.Context(), identity.CallerFromCtx(c), target); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"identity": target, "authorized": true})
}

// List handles GET /users.
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.registry.AuthorizedUsers(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

// Check handles GET /users/:identity.
func (h *UserHandler) Check(c *gin.Context) {
	ctx := c.Request.Context()
	id := model.Identity(c.Param("identity"))

	ok, err := h.registry.IsAuthorized(ctx, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	admin, _ := h.registry.Admin(ctx)
	c.JSON(http.StatusOK, gin.H{
		"identity":   id,
		"authorized": ok,
		"admin":      admin != "" && admin == id,
	})
}
