package server

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/krishangopalgupta/NotesApp/internal/auth"
	"github.com/krishangopalgupta/NotesApp/internal/media"
	"github.com/krishangopalgupta/NotesApp/internal/users"
	"go.uber.org/zap"
)

// multipartOverhead leaves room for the text fields next to the avatar part.
const multipartOverhead int64 = 1 << 20

var avatarFormFields = []string{"avatar", "avatarImage"}

type sessionPayload struct {
	User         users.Profile `json:"user"`
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
}

type loginRequestPayload struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type refreshRequestPayload struct {
	RefreshToken string `json:"refreshToken"`
}

type passwordRequestPayload struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type profileRequestPayload struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	FullName *string `json:"fullName"`
}

func (h *httpHandler) handleSignup(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxAvatarBytes+multipartOverhead)
	if err := c.Request.ParseMultipartForm(h.maxAvatarBytes + multipartOverhead); err != nil {
		h.respondMultipartError(c, err)
		return
	}

	input := users.SignupInput{
		Username: c.PostForm("username"),
		Email:    c.PostForm("email"),
		FullName: firstNonEmpty(c.PostForm("fullName"), c.PostForm("fullname")),
		Password: c.PostForm("password"),
	}

	upload, closeUpload, err := avatarUpload(c)
	if err != nil {
		h.respondMultipartError(c, err)
		return
	}
	defer closeUpload()

	session, err := h.usersService.Signup(c.Request.Context(), input, upload)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.writeSession(c, http.StatusCreated, session, "user registered successfully")
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	identifier := firstNonEmpty(request.Identifier, request.Username, request.Email)

	session, err := h.usersService.Login(c.Request.Context(), identifier, request.Password)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.writeSession(c, http.StatusOK, session, "user logged in successfully")
}

func (h *httpHandler) handleRefresh(c *gin.Context) {
	token, _ := c.Cookie(auth.RefreshTokenCookie)
	if c.Request.ContentLength != 0 {
		var request refreshRequestPayload
		if err := c.ShouldBindJSON(&request); err != nil {
			respondError(c, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
			return
		}
		if strings.TrimSpace(request.RefreshToken) != "" {
			token = request.RefreshToken
		}
	}
	if strings.TrimSpace(token) == "" {
		respondError(c, http.StatusUnauthorized, "unauthorized", "refresh token is required")
		return
	}

	session, err := h.usersService.RefreshSession(c.Request.Context(), token)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.writeSession(c, http.StatusOK, session, "access token refreshed")
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	if err := h.usersService.Logout(c.Request.Context(), currentUserID(c)); err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.clearSessionCookies(c)
	respond(c, http.StatusOK, gin.H{}, "user logged out")
}

func (h *httpHandler) handleCurrentUser(c *gin.Context) {
	profile, ok := currentProfile(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized", "unauthorized request")
		return
	}
	respond(c, http.StatusOK, profile, "current user fetched")
}

func (h *httpHandler) handleListUsers(c *gin.Context) {
	profiles, err := h.usersService.ListUsers(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, profiles, "users fetched")
}

func (h *httpHandler) handleChangePassword(c *gin.Context) {
	var request passwordRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	err := h.usersService.ChangePassword(c.Request.Context(), currentUserID(c), c.Param("userId"), request.OldPassword, request.NewPassword)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{}, "password changed")
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	var request profileRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	update := users.ProfileUpdate{
		Username: request.Username,
		Email:    request.Email,
		FullName: request.FullName,
	}
	profile, err := h.usersService.UpdateProfile(c.Request.Context(), currentUserID(c), c.Param("userId"), update)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, profile, "profile updated")
}

func (h *httpHandler) handleUpdateAvatar(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxAvatarBytes+multipartOverhead)
	if err := c.Request.ParseMultipartForm(h.maxAvatarBytes + multipartOverhead); err != nil {
		h.respondMultipartError(c, err)
		return
	}
	upload, closeUpload, err := avatarUpload(c)
	if err != nil {
		h.respondMultipartError(c, err)
		return
	}
	defer closeUpload()

	profile, err := h.usersService.UpdateAvatar(c.Request.Context(), currentUserID(c), c.Param("userId"), upload)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, profile, "avatar updated")
}

// avatarUpload opens the first avatar part. A missing part yields an empty Upload
// so the service decides whether the avatar is required.
func avatarUpload(c *gin.Context) (media.Upload, func(), error) {
	for _, field := range avatarFormFields {
		header, err := c.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return media.Upload{}, func() {}, err
		}
		file, err := header.Open()
		if err != nil {
			return media.Upload{}, func() {}, err
		}
		return media.Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
		}, func() { _ = file.Close() }, nil
	}
	return media.Upload{}, func() {}, nil
}

func (h *httpHandler) respondMultipartError(c *gin.Context, err error) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr), errors.Is(err, multipart.ErrMessageTooLarge):
		respondError(c, http.StatusRequestEntityTooLarge, "payload_too_large", "upload exceeds the size limit")
	default:
		h.logger.Debug("multipart form rejected", zap.Error(err))
		respondError(c, http.StatusBadRequest, "invalid_request", "request must be multipart/form-data")
	}
}

func (h *httpHandler) writeSession(c *gin.Context, status int, session users.Session, message string) {
	h.setCookie(c, auth.AccessTokenCookie, session.AccessToken.Value, session.AccessToken.TTL)
	h.setCookie(c, auth.RefreshTokenCookie, session.RefreshToken.Value, session.RefreshToken.TTL)
	respond(c, status, sessionPayload{
		User:         session.Profile,
		AccessToken:  session.AccessToken.Value,
		RefreshToken: session.RefreshToken.Value,
	}, message)
}

func (h *httpHandler) clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.AccessTokenCookie, "", -1, "/", h.cookies.Domain, h.cookies.Secure, true)
	c.SetCookie(auth.RefreshTokenCookie, "", -1, "/", h.cookies.Domain, h.cookies.Secure, true)
}

func (h *httpHandler) setCookie(c *gin.Context, name, value string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, int(ttl.Seconds()), "/", h.cookies.Domain, h.cookies.Secure, true)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
