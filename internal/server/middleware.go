package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/krishangopalgupta/NotesApp/internal/apperr"
	"github.com/krishangopalgupta/NotesApp/internal/auth"
	"github.com/krishangopalgupta/NotesApp/internal/users"
	"go.uber.org/zap"
)

var defaultAllowedOrigins = []string{"http://localhost:3000"}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	origins := allowedOrigins
	if len(origins) == 0 {
		origins = defaultAllowedOrigins
	}
	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Last-Event-ID"},
		ExposeHeaders:    []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// authorizeRequest resolves the caller from the access token and loads their profile.
// Tokens for deleted accounts are rejected like invalid ones.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		h.logTokenFailure(err)
		respondError(c, http.StatusUnauthorized, "unauthorized", "unauthorized request")
		return
	}

	profile, err := h.usersService.GetProfile(c.Request.Context(), claims.UserID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			h.logger.Info("token subject no longer exists", zap.String("user_id", claims.UserID))
			respondError(c, http.StatusUnauthorized, "unauthorized", "unauthorized request")
			return
		}
		h.respondServiceError(c, err)
		return
	}

	c.Set(userIDContextKey, profile.ID)
	c.Set(profileContextKey, profile)
	c.Next()
}

func (h *httpHandler) logTokenFailure(err error) {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		h.logger.Info("token validation failed", zap.Error(err))
	case errors.Is(err, auth.ErrMissingSessionToken):
		h.logger.Debug("token validation failed", zap.Error(err))
	default:
		h.logger.Warn("token validation failed", zap.Error(err))
	}
}

func currentProfile(c *gin.Context) (users.Profile, bool) {
	value, ok := c.Get(profileContextKey)
	if !ok {
		return users.Profile{}, false
	}
	profile, ok := value.(users.Profile)
	return profile, ok
}
