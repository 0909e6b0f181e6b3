package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/docvault/internal/access"
	"github.com/MarcoPoloResearchLab/docvault/internal/assist"
	"github.com/MarcoPoloResearchLab/docvault/internal/auth"
	"github.com/MarcoPoloResearchLab/docvault/internal/catalog"
	"github.com/MarcoPoloResearchLab/docvault/internal/licensing"
	"github.com/MarcoPoloResearchLab/docvault/internal/profiles"
	"github.com/MarcoPoloResearchLab/docvault/internal/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	sessionIDContextKey = "docvault_session_id"
	accessTokenQueryKey = "access_token"
)

var (
	errMissingCatalog       = errors.New("catalog store dependency required")
	errMissingEngine        = errors.New("licensing engine dependency required")
	errMissingGate          = errors.New("access gate dependency required")
	errMissingSessions      = errors.New("session store dependency required")
	errMissingProfiles      = errors.New("profile resolver dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

type ProfileResolver interface {
	Resolve(ctx context.Context, key string) (profiles.Profile, error)
}

type SessionTokenManager interface {
	IssueSessionToken(ctx context.Context, claims auth.SessionClaims) (string, int64, error)
	ValidateToken(token string) (auth.SessionClaims, error)
}

type Dependencies struct {
	Catalog        catalog.Store
	Engine         *licensing.Engine
	Gate           *access.Gate
	Sessions       *session.Store
	Profiles       ProfileResolver
	LoginLimiter   *profiles.AttemptLimiter
	TokenManager   SessionTokenManager
	Assist         *assist.Guard
	Realtime       *RealtimeDispatcher
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errMissingCatalog
	case deps.Engine == nil:
		return nil, errMissingEngine
	case deps.Gate == nil:
		return nil, errMissingGate
	case deps.Sessions == nil:
		return nil, errMissingSessions
	case deps.Profiles == nil:
		return nil, errMissingProfiles
	case deps.TokenManager == nil:
		return nil, errMissingTokenManager
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := deps.LoginLimiter
	if limiter == nil {
		limiter = profiles.NewAttemptLimiter(profiles.AttemptLimiterConfig{})
	}
	assistGuard := deps.Assist
	if assistGuard == nil {
		assistGuard = assist.NewGuard(assist.GuardConfig{Logger: logger})
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins...))

	handler := &httpHandler{
		catalog:  deps.Catalog,
		engine:   deps.Engine,
		gate:     deps.Gate,
		sessions: deps.Sessions,
		profiles: deps.Profiles,
		limiter:  limiter,
		tokens:   deps.TokenManager,
		assist:   assistGuard,
		realtime: realtime,
		logger:   logger,
	}

	router.POST("/auth/login", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/me", handler.handleMe)
	protected.POST("/auth/logout", handler.handleLogout)
	protected.GET("/documents", handler.handleListDocuments)
	protected.POST("/documents", handler.handlePublish)
	protected.GET("/documents/:id/purchase", handler.handleQuote)
	protected.POST("/documents/:id/purchase", handler.handlePurchase)
	protected.POST("/documents/:id/open", handler.handleOpen)
	protected.POST("/documents/:id/export", handler.handleExport)
	protected.GET("/documents/:id/download", handler.handleDownload)
	protected.GET("/documents/:id/tip", handler.handleStudyTip)
	protected.GET("/library", handler.handleLibrary)
	protected.GET("/library/events", handler.handleLibraryStream)

	return router, nil
}

func corsMiddleware(origins ...string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

type httpHandler struct {
	catalog  catalog.Store
	engine   *licensing.Engine
	gate     *access.Gate
	sessions *session.Store
	profiles ProfileResolver
	limiter  *profiles.AttemptLimiter
	tokens   SessionTokenManager
	assist   *assist.Guard
	realtime *RealtimeDispatcher
	logger   *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorCodeUnauthorized})
		return
	}
	c.Set(sessionIDContextKey, claims.SessionID)
	c.Next()
}

// bearerToken reads the Authorization header, or the access_token query parameter for EventSource clients.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return "", false
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		return token, token != ""
	}
	token := strings.TrimSpace(c.Query(accessTokenQueryKey))
	return token, token != ""
}

func (h *httpHandler) currentSession(c *gin.Context) (session.Session, bool) {
	sessionID := c.GetString(sessionIDContextKey)
	if sessionID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorCodeUnauthorized})
		return session.Session{}, false
	}
	current, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		h.writeError(c, "session.get", err)
		return session.Session{}, false
	}
	return current, true
}
