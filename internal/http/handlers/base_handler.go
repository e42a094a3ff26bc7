// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"carpool/internal/modules/carpool"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeCarpoolError maps error kinds to status codes; unknown errors never leak their text.
func writeCarpoolError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, carpool.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, carpool.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, carpool.ErrInvalidState), errors.Is(err, carpool.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, carpool.ErrValidationFailed):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// pathID parses a positive int64 path parameter, writing a 400 when it is not one.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}
