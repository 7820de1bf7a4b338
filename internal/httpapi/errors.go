package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"smartlab/internal/apperr"
)

type errorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

// respondError writes the error envelope. Faults are logged and reported
// without detail.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	kind := apperr.KindOf(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.String("kind", string(kind)),
			zap.Error(err))
		kind = apperr.KindInternal
		msg = "internal error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{Kind: kind, Message: msg}})
}

// respondBindError reports a request that failed binding or validation.
func (h *Handler) respondBindError(c *gin.Context, err error) {
	msg := err.Error()
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			msg = fe.Field() + " is required"
		case "badge":
			msg = fe.Field() + " must be a non-empty badge uid of at most 64 characters"
		default:
			msg = fe.Field() + " failed " + fe.Tag()
		}
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errorBody{Kind: apperr.KindInvalidInput, Message: msg}})
}
