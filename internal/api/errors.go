package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trigg3rX/labelmarket-backend/internal/marketplace"
	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
)

var categoryStatus = map[pkgErrors.Category]int{
	pkgErrors.CategoryNotFound:         http.StatusNotFound,
	pkgErrors.CategoryLegacyRecord:     http.StatusUnprocessableEntity,
	pkgErrors.CategoryNetwork:          http.StatusServiceUnavailable,
	pkgErrors.CategoryRejected:         http.StatusForbidden,
	pkgErrors.CategoryContractAbort:    http.StatusConflict,
	pkgErrors.CategoryTransaction:      http.StatusBadGateway,
	pkgErrors.CategoryGuard:            http.StatusConflict,
	pkgErrors.CategoryInvalidInput:     http.StatusBadRequest,
	pkgErrors.CategoryPayloadTooLarge:  http.StatusRequestEntityTooLarge,
	pkgErrors.CategoryBlobNetwork:      http.StatusBadGateway,
	pkgErrors.CategoryBlobAccessDenied: http.StatusBadGateway,
	pkgErrors.CategoryBlobServer:       http.StatusBadGateway,
	pkgErrors.CategoryCancelled:        http.StatusRequestTimeout,
}

type errorResponse struct {
	Error    string             `json:"error"`
	Category pkgErrors.Category `json:"category"`
	Detail   string             `json:"detail,omitempty"`
}

func statusFor(err error) int {
	if errors.Is(err, marketplace.ErrReadOnly) {
		return http.StatusForbidden
	}
	if status, ok := categoryStatus[pkgErrors.Classify(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError writes the user-facing message; raw ledger text only goes to detail.
func (s *Server) respondError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	resp := errorResponse{
		Error:    pkgErrors.UserMessage(err),
		Category: pkgErrors.Classify(err),
		Detail:   pkgErrors.Detail(err),
	}
	if errors.Is(err, marketplace.ErrReadOnly) {
		resp.Error = "This server has no wallet configured and is read-only."
	}

	switch {
	case status == http.StatusNotFound:
		s.logger.Debugf("[%s] %v", op, err)
	case status >= http.StatusInternalServerError:
		s.logger.Errorf("[%s] %v", op, err)
	default:
		s.logger.Warnf("[%s] %v", op, err)
	}
	c.JSON(status, resp)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: msg, Category: pkgErrors.CategoryInvalidInput})
}
