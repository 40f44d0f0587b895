package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
	"go.uber.org/zap"
)

// Error codes returned in the "code" field of error responses.
const (
	CodeUnauthorized      = "unauthorized"
	CodePermissionDenied  = "permission_denied"
	CodeForbidden         = "forbidden"
	CodeNotFound          = "not_found"
	CodeDuplicateItem     = "duplicate_item"
	CodeInvalidTransition = "invalid_transition"
	CodeInvalidArgument   = "invalid_argument"
	CodeInternal          = "internal"
)

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{model.ErrUnauthorized, http.StatusUnauthorized, CodeUnauthorized},
	{model.ErrPermissionDenied, http.StatusForbidden, CodePermissionDenied},
	{model.ErrForbidden, http.StatusForbidden, CodeForbidden},
	{model.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{model.ErrAdminNotSet, http.StatusNotFound, CodeNotFound},
	{model.ErrDuplicateItem, http.StatusConflict, CodeDuplicateItem},
	{model.ErrInvalidTransition, http.StatusConflict, CodeInvalidTransition},
	{model.ErrInvalidArgument, http.StatusBadRequest, CodeInvalidArgument},
}

// writeError translates a service error into an HTTP status and JSON body.
// Unknown errors are logged and reported as internal without detail.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			c.JSON(m.status, gin.H{"error": err.Error(), "code": m.code})
			return
		}
	}
	logger.Error("request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": CodeInternal})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": CodeInvalidArgument})
}
