// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/apperrors"
)

type errorResponse struct {
	Error       string  `json:"error"`
	RetryAfterS float64 `json:"retry_after_seconds,omitempty"`
}

// isValidID ensures IDs are hex and at most 32 chars (matches the ID generator).
func isValidID(v string) bool {
	if v == "" || len(v) > 32 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeEngineError maps module errors onto HTTP statuses. A too-early
// completion additionally reports the remaining wait.
func writeEngineError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		writeError(c, status, "internal error")
		return
	}

	var tooEarly *apperrors.TooEarlyError
	if errors.As(err, &tooEarly) {
		writeJSON(c, status, errorResponse{
			Error:       err.Error(),
			RetryAfterS: tooEarly.Wait.Seconds(),
		})
		return
	}
	writeError(c, status, err.Error())
}
