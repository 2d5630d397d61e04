package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/krishangopalgupta/NotesApp/internal/auth"
	"github.com/krishangopalgupta/NotesApp/internal/logging"
	"github.com/krishangopalgupta/NotesApp/internal/media"
	"github.com/krishangopalgupta/NotesApp/internal/notes"
	"github.com/krishangopalgupta/NotesApp/internal/users"
	"go.uber.org/zap"
)

const (
	userIDContextKey  = "notes_user_id"
	profileContextKey = "notes_user_profile"
	apiPrefix         = "/api/v1"
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingUsersService     = errors.New("users service dependency required")
	errMissingNotesService     = errors.New("notes service dependency required")
)

// SessionValidator resolves the access token claims of a request.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.TokenClaims, error)
}

// CookieSettings controls the auth cookies written on session responses.
type CookieSettings struct {
	Secure bool
	Domain string
}

type Dependencies struct {
	Sessions          SessionValidator
	UsersService      *users.Service
	NotesService      *notes.Service
	Realtime          *RealtimeDispatcher
	Cookies           CookieSettings
	AllowedOrigins    []string
	AuthRateLimit     RateLimit
	MaxAvatarBytes    int64
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}
	if deps.NotesService == nil {
		return nil, errMissingNotesService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	maxAvatarBytes := deps.MaxAvatarBytes
	if maxAvatarBytes <= 0 {
		maxAvatarBytes = media.DefaultMaxAvatarBytes
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	handler := &httpHandler{
		sessions:          deps.Sessions,
		usersService:      deps.UsersService,
		notesService:      deps.NotesService,
		realtime:          realtime,
		cookies:           deps.Cookies,
		maxAvatarBytes:    maxAvatarBytes,
		heartbeatInterval: heartbeat,
		logger:            logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))
	router.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "route_not_found", "route not found")
	})

	api := router.Group(apiPrefix)

	credentials := api.Group("/users")
	credentials.Use(newKeyedLimiter(deps.AuthRateLimit).middleware(logger))
	credentials.POST("/signup", handler.handleSignup)
	credentials.POST("/login", handler.handleLogin)
	credentials.POST("/refresh-token", handler.handleRefresh)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.GET("/users", handler.handleListUsers)
	protected.GET("/users/me", handler.handleCurrentUser)
	protected.POST("/users/logout", handler.handleLogout)
	protected.PATCH("/users/:userId/password", handler.handleChangePassword)
	protected.PATCH("/users/:userId/profile", handler.handleUpdateProfile)
	protected.POST("/users/:userId/avatar", handler.handleUpdateAvatar)

	protected.POST("/notes", handler.handleCreateNote)
	protected.GET("/notes", handler.handleListNotes)
	protected.GET("/notes/pinned", handler.handleListPinned)
	protected.GET("/notes/trash", handler.handleListTrash)
	protected.POST("/notes/trash/restore", handler.handleRestoreAll)
	protected.GET("/notes/stream", handler.handleNotesStream)
	protected.GET("/notes/:noteId", handler.handleGetNote)
	protected.PATCH("/notes/:noteId", handler.handleUpdateNote)
	protected.DELETE("/notes/:noteId", handler.handleSoftDelete)
	protected.DELETE("/notes/:noteId/permanent", handler.handleHardDelete)
	protected.POST("/notes/:noteId/restore", handler.handleRestore)
	protected.PATCH("/notes/:noteId/pin", handler.handleTogglePin)
	protected.PATCH("/notes/:noteId/archive", handler.handleToggleArchive)
	protected.PATCH("/notes/:noteId/favourite", handler.handleToggleFavourite)

	return router, nil
}

type httpHandler struct {
	sessions          SessionValidator
	usersService      *users.Service
	notesService      *notes.Service
	realtime          *RealtimeDispatcher
	cookies           CookieSettings
	maxAvatarBytes    int64
	heartbeatInterval time.Duration
	logger            *zap.Logger
}

func currentUserID(c *gin.Context) string {
	return c.GetString(userIDContextKey)
}
