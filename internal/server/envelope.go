package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/krishangopalgupta/NotesApp/internal/apperr"
	"go.uber.org/zap"
)

type successEnvelope struct {
	Status  int         `json:"status"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
}

type errorEnvelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func respond(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, successEnvelope{Status: status, Data: data, Message: message})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorEnvelope{Status: status, Message: message, Code: code})
}

// respondServiceError maps a service failure onto the error envelope.
func (h *httpHandler) respondServiceError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		h.logger.Error("unclassified service error",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		respondError(c, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	status := statusForKind(appErr.Kind())
	message := appErr.Message()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	respondError(c, status, appErr.Code(), message)
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAlreadyExists, apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
