package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vodcast/internal/coordinator"
	"vodcast/internal/extractor"
	"vodcast/internal/filestore"
	"vodcast/internal/pathutil"
	"vodcast/internal/store"
)

// errorBody is the structured JSON body every admin endpoint returns on
// failure.
type errorBody struct {
	ErrorCode string            `json:"error_code"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

func writeError(c *gin.Context, status int, code, message string, ctx map[string]string) {
	c.JSON(status, errorBody{ErrorCode: code, Message: message, Context: ctx})
}

// classifyError maps a package-level sentinel error onto the status code
// and error_code spec.md's admin surface documents: 400 validation, 404
// missing, 409 illegal state transition, 422 content-type issue, 500
// everything else.
func classifyError(c *gin.Context, err error, ctx map[string]string) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, filestore.ErrNotFound), errors.Is(err, extractor.ErrNotFound):
		writeError(c, http.StatusNotFound, "not_found", err.Error(), ctx)
	case errors.Is(err, store.ErrIllegalTransition):
		writeError(c, http.StatusConflict, "illegal_transition", err.Error(), ctx)
	case errors.Is(err, coordinator.ErrNotVOD), errors.Is(err, extractor.ErrItemFiltered):
		writeError(c, http.StatusUnprocessableEntity, "not_vod", err.Error(), ctx)
	case errors.Is(err, coordinator.ErrNotManual), errors.Is(err, pathutil.ErrInvalidIdentifier):
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error(), ctx)
	default:
		writeError(c, http.StatusInternalServerError, "internal", err.Error(), ctx)
	}
}
