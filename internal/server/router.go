package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/idcards/internal/attendance"
	"github.com/MarcoPoloResearchLab/idcards/internal/auth"
	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
	"github.com/MarcoPoloResearchLab/idcards/internal/datasets"
	"github.com/MarcoPoloResearchLab/idcards/internal/export"
	"github.com/MarcoPoloResearchLab/idcards/internal/photos"
	"github.com/MarcoPoloResearchLab/idcards/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/idcards/internal/templates"
	"github.com/MarcoPoloResearchLab/idcards/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sessionClaimsContextKey = "idcards_session_claims"

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingTokenIssuer      = errors.New("token issuer dependency required")
	errMissingUsers            = errors.New("users service dependency required")
	errMissingTemplates        = errors.New("template registry dependency required")
	errMissingDatasets         = errors.New("dataset store dependency required")
	errMissingPhotos           = errors.New("photo store dependency required")
	errMissingAttendance       = errors.New("attendance service dependency required")
)

// SessionValidator authenticates requests.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	CookieName() string
}

// SessionIssuer mints session tokens after login.
type SessionIssuer interface {
	IssueSessionToken(ctx context.Context, principal auth.Principal) (string, time.Time, error)
}

// Dependencies wires the HTTP handler.
type Dependencies struct {
	Sessions   SessionValidator
	Issuer     SessionIssuer
	Users      *users.Service
	Templates  *templates.Registry
	Datasets   *datasets.Store
	Photos     *photos.Store
	Attendance *attendance.Service
	// Bridge rasterizes exports; a default bridge is used when nil.
	Bridge *export.Bridge
	// Realtime fans editor changes out to SSE subscribers; a new dispatcher is used when nil.
	Realtime *RealtimeDispatcher
	// ElementIDs issues ids for elements created in editor sessions.
	ElementIDs cards.IDProvider
	// SessionIDs issues editor session ids.
	SessionIDs     cards.IDProvider
	MatchPolicy    datasets.MatchPolicy
	AllowedOrigins []string
	SecureCookies  bool
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errMissingSessionValidator
	case deps.Issuer == nil:
		return nil, errMissingTokenIssuer
	case deps.Users == nil:
		return nil, errMissingUsers
	case deps.Templates == nil:
		return nil, errMissingTemplates
	case deps.Datasets == nil:
		return nil, errMissingDatasets
	case deps.Photos == nil:
		return nil, errMissingPhotos
	case deps.Attendance == nil:
		return nil, errMissingAttendance
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	bridge := deps.Bridge
	if bridge == nil {
		bridge = export.NewBridge(export.BridgeConfig{Logger: logger})
	}
	elementIDs := deps.ElementIDs
	if elementIDs == nil {
		elementIDs = cards.NewUUIDProvider()
	}
	sessionIDs := deps.SessionIDs
	if sessionIDs == nil {
		sessionIDs = cards.NewUUIDProvider()
	}
	policy := deps.MatchPolicy
	if policy == "" {
		policy = datasets.MatchExactThenSubstring
	}

	handler := &httpHandler{
		sessions:      deps.Sessions,
		issuer:        deps.Issuer,
		users:         deps.Users,
		templates:     deps.Templates,
		adapter:       templates.NewAdapter(deps.Templates, logger),
		datasets:      deps.Datasets,
		photos:        deps.Photos,
		attendance:    deps.Attendance,
		bridge:        bridge,
		realtime:      realtime,
		editors:       newSessionRegistry(sessionIDs),
		elementIDs:    elementIDs,
		matchPolicy:   policy,
		secureCookies: deps.SecureCookies,
		logger:        logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.Static(deps.Photos.BaseURL(), deps.Photos.Dir())
	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)
	router.POST("/auth/logout", handler.handleLogout)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/auth/me", handler.handleMe)

	protected.GET("/templates", handler.handleListTemplates)
	protected.GET("/templates/:id", handler.handleGetTemplate)
	protected.GET("/templates/:id/sample.csv", handler.handleSampleCSV)

	staff := protected.Group("/")
	staff.Use(requireRole(string(users.RoleAdmin), string(users.RoleFaculty)))
	staff.POST("/templates", handler.handleCreateTemplate)
	staff.PATCH("/templates/:id", handler.handleUpdateTemplate)
	staff.DELETE("/templates/:id", handler.handleDeleteTemplate)

	staff.GET("/datasets", handler.handleListDatasets)
	staff.POST("/datasets", handler.handleCreateDataset)
	staff.GET("/datasets/:id", handler.handleGetDataset)
	staff.DELETE("/datasets/:id", handler.handleDeleteDataset)
	staff.POST("/datasets/:id/match-photos", handler.handleMatchPhotos)
	staff.POST("/datasets/:id/generate", handler.handleGenerate)

	staff.GET("/photos", handler.handleListPhotos)
	staff.POST("/photos", handler.handleUploadPhotos)

	staff.GET("/attendance", handler.handleListAttendance)
	staff.POST("/attendance", handler.handleAppendAttendance)

	staff.POST("/editor/sessions", handler.handleOpenEditor)
	editorSession := staff.Group("/editor/sessions/:id")
	editorSession.Use(handler.loadEditorSession)
	editorSession.GET("", handler.handleEditorState)
	editorSession.DELETE("", handler.handleCloseEditor)
	editorSession.POST("/pointer", handler.handleEditorPointer)
	editorSession.POST("/keys", handler.handleEditorKey)
	editorSession.POST("/commands", handler.handleEditorCommand)
	editorSession.GET("/render.svg", handler.handleEditorSVG)
	editorSession.GET("/export.png", handler.handleEditorPNG)
	editorSession.GET("/export.pdf", handler.handleEditorPDF)
	editorSession.POST("/save", handler.handleEditorSave)
	editorSession.GET("/events", handler.handleEditorEvents)

	return router, nil
}

type httpHandler struct {
	sessions      SessionValidator
	issuer        SessionIssuer
	users         *users.Service
	templates     *templates.Registry
	adapter       *templates.Adapter
	datasets      *datasets.Store
	photos        *photos.Store
	attendance    *attendance.Service
	bridge        *export.Bridge
	realtime      *RealtimeDispatcher
	editors       *sessionRegistry
	elementIDs    cards.IDProvider
	matchPolicy   datasets.MatchPolicy
	secureCookies bool
	logger        *zap.Logger
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept", "Cache-Control"},
		ExposeHeaders:    []string{"Content-Disposition"},
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

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(sessionClaimsContextKey, claims)
	c.Next()
}

func requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := sessionClaims(c)
		if !ok || !claims.HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func sessionClaims(c *gin.Context) (auth.SessionClaims, bool) {
	value, ok := c.Get(sessionClaimsContextKey)
	if !ok {
		return auth.SessionClaims{}, false
	}
	claims, ok := value.(auth.SessionClaims)
	return claims, ok
}

func currentUserID(c *gin.Context) string {
	claims, _ := sessionClaims(c)
	return claims.UserID
}

// respondError maps service errors onto HTTP statuses. The body carries the
// service error code, or fallback when the error has none.
func (h *httpHandler) respondError(c *gin.Context, err error, fallback string) {
	code := errorCode(err, fallback)
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.String("code", code), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}

func errorCode(err error, fallback string) string {
	if code := serviceerr.CodeOf(err); code != "" {
		return code
	}
	return fallback
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, templates.ErrTemplateNotFound),
		errors.Is(err, datasets.ErrDatasetNotFound),
		errors.Is(err, users.ErrAccountNotFound),
		errors.Is(err, errEditorSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, users.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, attendance.ErrGateEntryMissing):
		return http.StatusForbidden
	case errors.Is(err, users.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, templates.ErrInvalidTemplate),
		errors.Is(err, templates.ErrReadOnlyTemplate),
		errors.Is(err, datasets.ErrInvalidDataset),
		errors.Is(err, datasets.ErrEmptyCSV),
		errors.Is(err, users.ErrInvalidRegistration),
		errors.Is(err, attendance.ErrInvalidEvent),
		errors.Is(err, photos.ErrEmptyUpload),
		errors.Is(err, photos.ErrUnsupportedMedia),
		errors.Is(err, cards.ErrUnknownSide):
		return http.StatusBadRequest
	case errors.Is(err, photos.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errEditorSessionLimit):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseSideQuery(c *gin.Context, fallback cards.Side) (cards.Side, error) {
	raw := strings.TrimSpace(c.Query("side"))
	if raw == "" {
		return fallback, nil
	}
	return cards.ParseSide(raw)
}
