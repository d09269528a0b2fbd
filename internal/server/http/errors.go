package http

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/filecatalog/internal/common"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrConfig),
		errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, common.ErrCatalog):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError responds with the status mapped from err. Messages of
// unclassified errors are logged but not sent to the client.
func (s *HTTPServer) writeError(c *gin.Context, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.Error(c.Request.Context(), "request failed", "path", c.Request.URL.Path, "error", err)
		msg = http.StatusText(code)
	}
	c.JSON(code, errorResponse{Error: msg})
}
